package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"lfsgate/pkg/app"
	"lfsgate/pkg/service"

	"github.com/gorilla/mux"
)

// NewRouter 注册所有 HTTP 路由
// verify 必须先于 {oid} 注册，否则会被当成 oid 为 "verify" 的对象
func NewRouter(application *app.App) *mux.Router {
	h := &handlers{
		batch:    service.NewBatchService(application),
		transfer: service.NewTransferService(application),
	}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", healthz).Methods(http.MethodGet).Name("healthz")
	r.HandleFunc("/{user}/{repo}/objects/batch", h.handleBatch).Methods(http.MethodPost).Name("batch")
	r.HandleFunc("/{user}/{repo}/objects/verify", h.handleVerify).Methods(http.MethodPost).Name("verify")
	r.HandleFunc("/{user}/{repo}/objects/{oid}", h.handlePut).Methods(http.MethodPut).Name("putObject")
	r.HandleFunc("/{user}/{repo}/objects/{oid}", h.handleGet).Methods(http.MethodGet).Name("getObject")

	r.NotFoundHandler = http.HandlerFunc(notFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)
	return r
}

// NewHandler 返回带日志和 panic 恢复的完整 handler
func NewHandler(application *app.App) http.Handler {
	return RecoveryMiddleware(LoggingMiddleware(NewRouter(application)))
}

// Server 包装 http.Server 及其依赖
type Server struct {
	srv *http.Server
}

func New(addr string, application *app.App) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           NewHandler(application),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Serve 在 l 上提供服务直到 Shutdown
func (s *Server) Serve(l net.Listener) error {
	slog.Info("HTTP server listening", "addr", l.Addr().String())
	err := s.srv.Serve(l)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// ListenAndServe 监听配置的地址
func (s *Server) ListenAndServe() error {
	l, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	return s.Serve(l)
}

// Shutdown 等待进行中的请求完成
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
