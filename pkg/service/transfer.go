package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"lfsgate/pkg/app"
	"lfsgate/pkg/storage"
	"lfsgate/pkg/types"
)

// TokenScheme 是传输端点要求的 Authorization 前缀
const TokenScheme = "JWT "

// TransferService 处理 token 保护的字节传输和校验端点
type TransferService struct {
	app *app.App
}

func NewTransferService(application *app.App) *TransferService {
	return &TransferService{app: application}
}

// checkToken: 缺少或格式不对的凭证为 401，token 无效或作用域不符为 403
func (s *TransferService) checkToken(op types.Operation, user, repo, oid, authorization string) error {
	tok, ok := strings.CutPrefix(authorization, TokenScheme)
	if !ok || strings.TrimSpace(tok) == "" {
		return AuthenticationError("missing or malformed authorization", false)
	}
	if err := s.app.Tokens.Verify(strings.TrimSpace(tok), op, user, repo, oid); err != nil {
		return AuthorizationError("invalid token")
	}
	return nil
}

// PutObject 把 body 流式写入存储，直到 EOF
func (s *TransferService) PutObject(ctx context.Context, user, repo, oid, authorization string, body io.Reader) error {
	if err := s.checkToken(types.OperationUpload, user, repo, oid, authorization); err != nil {
		return err
	}
	if err := s.app.Store.Put(ctx, user, repo, oid, body); err != nil {
		return fmt.Errorf("store put: %w", err)
	}
	slog.Debug("object stored", "user", user, "repo", repo, "oid", oid)
	return nil
}

// GetObject 返回对象内容和大小，调用方负责 Close
func (s *TransferService) GetObject(ctx context.Context, user, repo, oid, authorization string) (io.ReadCloser, int64, error) {
	if err := s.checkToken(types.OperationDownload, user, repo, oid, authorization); err != nil {
		return nil, 0, err
	}

	size, err := s.app.Store.GetSize(ctx, user, repo, oid)
	if err != nil {
		return nil, 0, fmt.Errorf("store size: %w", err)
	}
	if size < 0 {
		return nil, 0, NotFoundError("object not found")
	}

	reader, err := s.app.Store.Get(ctx, user, repo, oid)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, 0, NotFoundError("object not found")
	}
	if err != nil {
		return nil, 0, fmt.Errorf("store get: %w", err)
	}
	return reader, size, nil
}

// VerifyObject 确认存储中的大小与客户端声明的完全一致
func (s *TransferService) VerifyObject(ctx context.Context, user, repo, authorization string, body io.Reader) error {
	if err := s.checkToken(types.OperationVerify, user, repo, "", authorization); err != nil {
		return err
	}

	var req types.VerifyRequest
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		return ValidationError("invalid verify body: %s", err.Error())
	}
	if err := req.Validate(); err != nil {
		return ValidationError("%s", err.Error())
	}

	size, err := s.app.Store.GetSize(ctx, user, repo, *req.Oid)
	if err != nil {
		return fmt.Errorf("store size: %w", err)
	}
	// 不存在的对象没有可比较的大小
	if size < 0 {
		return ValidationError("object %s not found", *req.Oid)
	}
	if size != *req.Size {
		return ValidationError("size mismatch: expected %d, stored %d", *req.Size, size)
	}
	return nil
}
