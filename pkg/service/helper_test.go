package service

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"lfsgate/pkg/app"
	"lfsgate/pkg/auth"
	"lfsgate/pkg/storage"
	"lfsgate/pkg/storage/disk"
	"lfsgate/pkg/token"
	"lfsgate/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBaseURL = "http://lfs.test/"

// setupTestApp 是所有 Service 测试共享的基础设施初始化逻辑
func setupTestApp(t *testing.T, authenticator auth.Authenticator, private bool) *app.App {
	t.Helper()

	store, err := disk.NewAdapter(t.TempDir())
	require.NoError(t, err)

	tokens, err := token.NewService(token.Config{Secret: "test-secret", TTL: time.Minute})
	require.NoError(t, err)

	return app.New(store, authenticator, tokens, testBaseURL, private)
}

// mintHeader 签发一个可直接放进 Authorization 的 token 头
func mintHeader(t *testing.T, a *app.App, op types.Operation, user, repo, oid string) string {
	t.Helper()
	grant, err := a.Tokens.Mint(op, user, repo, oid)
	require.NoError(t, err)
	return TokenScheme + grant.Token
}

// requireHTTPError 断言 err 是指定状态码的 HTTPError
func requireHTTPError(t *testing.T, err error, status int) *HTTPError {
	t.Helper()
	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr), "expected HTTPError, got %v", err)
	assert.Equal(t, status, httpErr.Status)
	return httpErr
}

func strPtr(s string) *string { return &s }
func intPtr(i int64) *int64   { return &i }

// failingStore 的每个操作都返回后端错误
type failingStore struct{}

var errBackend = errors.New("backend unavailable")

func (failingStore) Put(context.Context, string, string, string, io.Reader) error { return errBackend }
func (failingStore) Get(context.Context, string, string, string) (io.ReadCloser, error) {
	return nil, errBackend
}
func (failingStore) GetSize(context.Context, string, string, string) (int64, error) {
	return storage.SizeAbsent, errBackend
}

// directStore 给任意 Store 加上直传动作
type directStore struct {
	storage.Store
}

func (directStore) UploadAction(_ context.Context, _, _, oid string, _ int64) (*types.Action, error) {
	return &types.Action{Href: "https://bucket.example/up/" + oid, Header: map[string]string{"Authorization": "AWS k:s"}}, nil
}

func (directStore) DownloadAction(_ context.Context, _, _, oid string, _ int64) (*types.Action, error) {
	return &types.Action{Href: "https://bucket.example/down/" + oid, Header: map[string]string{"Authorization": "AWS k:s"}}, nil
}
