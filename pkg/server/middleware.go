package server

import (
	"context"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"lfsgate/pkg/service"
)

// =============================================================================
// 1. Logging Middleware (结构化日志)
// =============================================================================

// statusRecorder 记录 handler 实际写出的状态码和字节数
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += int64(n)
	return n, err
}

// Flush 透传给底层 writer，流式下载依赖它
func (r *statusRecorder) Flush() {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap 供 http.ResponseController 找到底层 writer
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// LoggingMiddleware 为每个请求打一条结构化日志
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}

		next.ServeHTTP(rec, r)

		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		logRequest(r, rec.status, rec.bytes, time.Since(start))
	})
}

// logRequest 统一的日志打印逻辑
// 4xx 是客户端问题记 Warn，5xx 记 Error
func logRequest(r *http.Request, status int, bytes int64, duration time.Duration) {
	level := slog.LevelInfo
	switch {
	case status >= 500:
		level = slog.LevelError
	case status >= 400:
		level = slog.LevelWarn
	}

	slog.Log(context.Background(), level, "HTTP Request",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Int("status", status),
		slog.Int64("bytes", bytes),
		slog.Duration("dur", duration),
		slog.String("remote", r.RemoteAddr),
	)
}

// =============================================================================
// 2. Recovery Middleware (防弹衣)
// =============================================================================

// RecoveryMiddleware 捕获 handler 中的 panic，返回 500 而不是断开连接
func RecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				if p == http.ErrAbortHandler {
					panic(p)
				}
				slog.Error("🔥 PANIC RECOVERED",
					slog.Any("panic", p),
					slog.String("stack", string(debug.Stack())),
				)
				service.WriteError(w, r, &service.HTTPError{
					Status:  http.StatusInternalServerError,
					Message: "internal server error: panic recovered",
				})
			}
		}()
		next.ServeHTTP(w, r)
	})
}
