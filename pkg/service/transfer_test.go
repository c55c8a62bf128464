package service

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"lfsgate/pkg/auth"
	"lfsgate/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransfer_PutGetRoundTrip(t *testing.T) {
	a := setupTestApp(t, auth.None{}, true)
	svc := NewTransferService(a)
	ctx := context.Background()

	up := mintHeader(t, a, types.OperationUpload, "u", "r", "oid1")
	require.NoError(t, svc.PutObject(ctx, "u", "r", "oid1", up, strings.NewReader("abc")))

	down := mintHeader(t, a, types.OperationDownload, "u", "r", "oid1")
	reader, size, err := svc.GetObject(ctx, "u", "r", "oid1", down)
	require.NoError(t, err)
	defer reader.Close()

	assert.Equal(t, int64(3), size)
	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(data))
}

func TestTransfer_TokenChecks(t *testing.T) {
	a := setupTestApp(t, auth.None{}, true)
	svc := NewTransferService(a)
	ctx := context.Background()
	body := func() io.Reader { return strings.NewReader("abc") }

	// 缺少凭证或 scheme 不对 -> 401
	requireHTTPError(t, svc.PutObject(ctx, "u", "r", "o", "", body()), http.StatusUnauthorized)
	requireHTTPError(t, svc.PutObject(ctx, "u", "r", "o", readHeader, body()), http.StatusUnauthorized)
	requireHTTPError(t, svc.PutObject(ctx, "u", "r", "o", "JWT ", body()), http.StatusUnauthorized)

	// 作用域不符 -> 403
	tests := []struct {
		name   string
		header string
	}{
		{"garbage", "JWT not-a-token"},
		{"wrong action", mintHeader(t, a, types.OperationDownload, "u", "r", "o")},
		{"wrong user", mintHeader(t, a, types.OperationUpload, "x", "r", "o")},
		{"wrong repo", mintHeader(t, a, types.OperationUpload, "u", "x", "o")},
		{"wrong oid", mintHeader(t, a, types.OperationUpload, "u", "r", "x")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			requireHTTPError(t, svc.PutObject(ctx, "u", "r", "o", tt.header, body()), http.StatusForbidden)
		})
	}
}

func TestTransfer_GetMissing(t *testing.T) {
	a := setupTestApp(t, auth.None{}, true)
	svc := NewTransferService(a)

	_, _, err := svc.GetObject(context.Background(), "u", "r", "nope",
		mintHeader(t, a, types.OperationDownload, "u", "r", "nope"))
	requireHTTPError(t, err, http.StatusNotFound)
}

func TestTransfer_BackendErrorPropagates(t *testing.T) {
	a := setupTestApp(t, auth.None{}, true)
	a.Store = failingStore{}
	svc := NewTransferService(a)
	ctx := context.Background()

	err := svc.PutObject(ctx, "u", "r", "o", mintHeader(t, a, types.OperationUpload, "u", "r", "o"), strings.NewReader("x"))
	assert.ErrorIs(t, err, errBackend)

	_, _, err = svc.GetObject(ctx, "u", "r", "o", mintHeader(t, a, types.OperationDownload, "u", "r", "o"))
	assert.ErrorIs(t, err, errBackend)
}

func TestTransfer_Verify(t *testing.T) {
	a := setupTestApp(t, auth.None{}, true)
	svc := NewTransferService(a)
	ctx := context.Background()
	require.NoError(t, a.Store.Put(ctx, "u", "r", "oid1", strings.NewReader("abc")))

	verify := mintHeader(t, a, types.OperationVerify, "u", "r", "")

	require.NoError(t, svc.VerifyObject(ctx, "u", "r", verify, strings.NewReader(`{"oid":"oid1","size":3}`)))

	tests := []struct {
		name string
		body string
	}{
		{"size mismatch", `{"oid":"oid1","size":4}`},
		{"absent object", `{"oid":"nope","size":3}`},
		{"absent marker as size", `{"oid":"nope","size":-1}`},
		{"negative size", `{"oid":"oid1","size":-1}`},
		{"missing size", `{"oid":"oid1"}`},
		{"missing oid", `{"size":3}`},
		{"not json", `oid1`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.VerifyObject(ctx, "u", "r", verify, strings.NewReader(tt.body))
			requireHTTPError(t, err, http.StatusUnprocessableEntity)
		})
	}

	// verify token 不能用于其它仓库，也不能用 upload token 代替
	err := svc.VerifyObject(ctx, "u", "other", verify, strings.NewReader(`{"oid":"oid1","size":3}`))
	requireHTTPError(t, err, http.StatusForbidden)
	err = svc.VerifyObject(ctx, "u", "r", mintHeader(t, a, types.OperationUpload, "u", "r", "oid1"),
		strings.NewReader(`{"oid":"oid1","size":3}`))
	requireHTTPError(t, err, http.StatusForbidden)
}
