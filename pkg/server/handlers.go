package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"lfsgate/pkg/service"
	"lfsgate/pkg/types"

	"github.com/gorilla/mux"
)

type handlers struct {
	batch    *service.BatchService
	transfer *service.TransferService
}

// handleBatch: POST /{user}/{repo}/objects/batch
func (h *handlers) handleBatch(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var req types.BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		service.WriteError(w, r, service.ValidationError("invalid batch body: %s", err.Error()))
		return
	}

	resp, err := h.batch.Batch(r.Context(), vars["user"], vars["repo"], r.Header.Get("Authorization"), &req)
	if err != nil {
		service.WriteError(w, r, err)
		return
	}
	service.WriteJSON(w, http.StatusOK, types.MediaType, resp)
}

// handlePut: PUT /{user}/{repo}/objects/{oid}
func (h *handlers) handlePut(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	err := h.transfer.PutObject(r.Context(), vars["user"], vars["repo"], vars["oid"], r.Header.Get("Authorization"), r.Body)
	if err != nil {
		service.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// handleGet: GET /{user}/{repo}/objects/{oid}
func (h *handlers) handleGet(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	reader, size, err := h.transfer.GetObject(r.Context(), vars["user"], vars["repo"], vars["oid"], r.Header.Get("Authorization"))
	if err != nil {
		service.WriteError(w, r, err)
		return
	}
	defer reader.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	w.WriteHeader(http.StatusOK)

	// 头已经发出，之后的错误只能记日志
	if _, err := io.Copy(w, reader); err != nil {
		slog.Warn("object download interrupted",
			slog.String("oid", vars["oid"]),
			slog.String("err", err.Error()),
		)
	}
}

// handleVerify: POST /{user}/{repo}/objects/verify
func (h *handlers) handleVerify(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	if err := h.transfer.VerifyObject(r.Context(), vars["user"], vars["repo"], r.Header.Get("Authorization"), r.Body); err != nil {
		service.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func notFound(w http.ResponseWriter, r *http.Request) {
	service.WriteError(w, r, &service.HTTPError{Status: http.StatusNotFound, Message: "Not Found"})
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	service.WriteError(w, r, &service.HTTPError{Status: http.StatusMethodNotAllowed, Message: "Method Not Allowed"})
}
