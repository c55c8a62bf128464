package token

import (
	"testing"
	"time"

	"lfsgate/pkg/types"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService(Config{Secret: "s3cr3t", TTL: time.Minute})
	require.NoError(t, err)
	return svc
}

func TestNewService_Config(t *testing.T) {
	_, err := NewService(Config{})
	assert.Error(t, err, "empty secret must be rejected")

	_, err = NewService(Config{Secret: "x", Algorithm: "RS256"})
	assert.Error(t, err, "non-HMAC algorithm must be rejected")

	svc, err := NewService(Config{Secret: "x", Algorithm: "HS512"})
	require.NoError(t, err)
	assert.Equal(t, DefaultTTL, svc.TTL())
}

func TestService_RoundTrip(t *testing.T) {
	svc := newTestService(t)

	grant, err := svc.Mint(types.OperationUpload, "alice", "repo.git", "oid1")
	require.NoError(t, err)
	assert.NotEmpty(t, grant.Token)

	assert.NoError(t, svc.Verify(grant.Token, types.OperationUpload, "alice", "repo.git", "oid1"))
}

func TestService_AnyFieldMismatchFails(t *testing.T) {
	svc := newTestService(t)
	grant, err := svc.Mint(types.OperationDownload, "alice", "repo", "oid1")
	require.NoError(t, err)

	tests := []struct {
		name   string
		action types.Operation
		user   string
		repo   string
		oid    string
	}{
		{"Action", types.OperationUpload, "alice", "repo", "oid1"},
		{"User", types.OperationDownload, "bob", "repo", "oid1"},
		{"Repo", types.OperationDownload, "alice", "other", "oid1"},
		{"Oid", types.OperationDownload, "alice", "repo", "oid2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.Verify(grant.Token, tt.action, tt.user, tt.repo, tt.oid)
			// 所有失败都是同一个错误
			assert.ErrorIs(t, err, ErrInvalidToken)
			assert.Equal(t, ErrInvalidToken, err)
		})
	}
}

func TestService_VerifyScopeWithoutOid(t *testing.T) {
	svc := newTestService(t)
	grant, err := svc.Mint(types.OperationVerify, "alice", "repo", "")
	require.NoError(t, err)

	assert.NoError(t, svc.Verify(grant.Token, types.OperationVerify, "alice", "repo", ""))
}

func TestService_Expired(t *testing.T) {
	svc := newTestService(t)
	issued := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return issued }

	grant, err := svc.Mint(types.OperationUpload, "u", "r", "o")
	require.NoError(t, err)
	assert.Equal(t, issued.Add(time.Minute), grant.ExpiresAt)

	// 时间拨到过期之后
	svc.now = func() time.Time { return issued.Add(2 * time.Minute) }
	assert.ErrorIs(t, svc.Verify(grant.Token, types.OperationUpload, "u", "r", "o"), ErrInvalidToken)
}

func TestService_ExpiresAtMatchesClaim(t *testing.T) {
	svc := newTestService(t)
	grant, err := svc.Mint(types.OperationUpload, "u", "r", "o")
	require.NoError(t, err)

	claims := &Claims{}
	_, _, err = jwt.NewParser().ParseUnverified(grant.Token, claims)
	require.NoError(t, err)
	assert.True(t, claims.ExpiresAt.Time.Equal(grant.ExpiresAt))
	assert.Equal(t, DefaultIssuer, claims.Issuer)
}

func TestService_WrongSecretOrIssuer(t *testing.T) {
	svc := newTestService(t)
	grant, err := svc.Mint(types.OperationUpload, "u", "r", "o")
	require.NoError(t, err)

	other, err := NewService(Config{Secret: "different", TTL: time.Minute})
	require.NoError(t, err)
	assert.ErrorIs(t, other.Verify(grant.Token, types.OperationUpload, "u", "r", "o"), ErrInvalidToken)

	foreign, err := NewService(Config{Secret: "s3cr3t", Issuer: "someone-else", TTL: time.Minute})
	require.NoError(t, err)
	assert.ErrorIs(t, foreign.Verify(grant.Token, types.OperationUpload, "u", "r", "o"), ErrInvalidToken)

	assert.ErrorIs(t, svc.Verify("not-a-jwt", types.OperationUpload, "u", "r", "o"), ErrInvalidToken)
}
