package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
)

const (
	// ChallengeHeader 是 401 响应附带的认证质询头
	ChallengeHeader = "LFS-Authenticate"
	ChallengeValue  = `Basic realm="Git LFS"`
)

// HTTPError 是可以直接映射成 HTTP 响应的业务错误
type HTTPError struct {
	Status  int
	Message string
	Header  map[string]string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%d %s", e.Status, e.Message)
}

// ValidationError 422: 请求体或参数不合法
func ValidationError(format string, args ...any) *HTTPError {
	return &HTTPError{Status: http.StatusUnprocessableEntity, Message: fmt.Sprintf(format, args...)}
}

// AuthenticationError 401: 缺少凭证或凭证格式不对
// challenge 为 true 时附带 LFS-Authenticate 质询头
func AuthenticationError(message string, challenge bool) *HTTPError {
	e := &HTTPError{Status: http.StatusUnauthorized, Message: message}
	if challenge {
		e.Header = map[string]string{ChallengeHeader: ChallengeValue}
	}
	return e
}

// AuthorizationError 403: 凭证存在但权限不足
func AuthorizationError(message string) *HTTPError {
	return &HTTPError{Status: http.StatusForbidden, Message: message}
}

// NotFoundError 404: 仅用于字节传输的 GET
func NotFoundError(message string) *HTTPError {
	return &HTTPError{Status: http.StatusNotFound, Message: message}
}

// errorBody 是所有错误响应的 JSON 形状
type errorBody struct {
	Message string `json:"message"`
}

// WriteError 把任意 error 映射成 JSON 响应
// HTTPError 按自身状态码返回，其它错误一律 500 且不暴露内部细节
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		slog.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("err", err.Error()),
		)
		httpErr = &HTTPError{Status: http.StatusInternalServerError, Message: http.StatusText(http.StatusInternalServerError)}
	}
	for k, v := range httpErr.Header {
		w.Header().Set(k, v)
	}
	WriteJSON(w, httpErr.Status, "application/json", errorBody{Message: httpErr.Message})
}

// WriteJSON 写出 JSON 响应
func WriteJSON(w http.ResponseWriter, status int, contentType string, payload any) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
