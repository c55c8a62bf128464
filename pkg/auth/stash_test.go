package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStash_PermissionCheck(t *testing.T) {
	var lastQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/api/1.0/repos", r.URL.Path)
		lastQuery = map[string]string{
			"name":        r.URL.Query().Get("name"),
			"projectname": r.URL.Query().Get("projectname"),
			"permission":  r.URL.Query().Get("permission"),
		}
		switch r.Header.Get("Authorization") {
		case BasicHeader("good", "pw"):
			_, _ = w.Write([]byte(`{"size":1}`))
		case BasicHeader("none", "pw"):
			_, _ = w.Write([]byte(`{"size":0}`))
		case BasicHeader("weird", "pw"):
			_, _ = w.Write([]byte(`[1,2,3]`))
		default:
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"size":1}`))
		}
	}))
	defer srv.Close()

	s, err := NewStash(Options{URL: srv.URL})
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("Granted read strips .git", func(t *testing.T) {
		ok, err := s.CanRead(ctx, "PROJ", "repo.git", BasicHeader("good", "pw"))
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "repo", lastQuery["name"])
		assert.Equal(t, "PROJ", lastQuery["projectname"])
		assert.Equal(t, LevelRead, lastQuery["permission"])
	})

	t.Run("Write level", func(t *testing.T) {
		ok, _ := s.CanWrite(ctx, "PROJ", "repo", BasicHeader("good", "pw"))
		assert.True(t, ok)
		assert.Equal(t, LevelWrite, lastQuery["permission"])
	})

	t.Run("Zero results", func(t *testing.T) {
		ok, _ := s.CanRead(ctx, "PROJ", "repo", BasicHeader("none", "pw"))
		assert.False(t, ok)
	})

	t.Run("Non-2xx denies even with matching body", func(t *testing.T) {
		ok, _ := s.CanRead(ctx, "PROJ", "repo", BasicHeader("bad", "pw"))
		assert.False(t, ok)
	})

	t.Run("Unexpected payload", func(t *testing.T) {
		ok, _ := s.CanRead(ctx, "PROJ", "repo", BasicHeader("weird", "pw"))
		assert.False(t, ok)
	})

	t.Run("Non-basic scheme never leaves the process", func(t *testing.T) {
		lastQuery = nil
		ok, _ := s.CanRead(ctx, "PROJ", "repo", "Bearer abc")
		assert.False(t, ok)
		assert.Nil(t, lastQuery)
	})
}

func TestStash_NetworkFailureDenies(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	s, err := NewStash(Options{URL: url})
	require.NoError(t, err)

	ok, err := s.CanRead(context.Background(), "p", "r", BasicHeader("u", "p"))
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestNew_Registry(t *testing.T) {
	a, err := New("none", Options{})
	require.NoError(t, err)
	assert.IsType(t, None{}, a)

	a, err = New("static", Options{})
	require.NoError(t, err)
	assert.IsType(t, &Static{}, a)

	_, err = New("basic", Options{Username: "u", Password: "p"})
	require.NoError(t, err)

	_, err = New("ldap", Options{})
	assert.ErrorIs(t, err, ErrUnknownAuthenticator)

	assert.Equal(t, []string{"basic", "none", "stash", "static"}, Names())
}

func TestStatic_Toggles(t *testing.T) {
	s := NewStatic()
	ctx := context.Background()

	ok, _ := s.CanRead(ctx, "", "", "")
	assert.True(t, ok)

	s.Write.Store(false)
	ok, _ = s.CanWrite(ctx, "", "", "")
	assert.False(t, ok)

	header, _ := s.CheckSSHAuthorization(ctx, SSHProof{})
	assert.Equal(t, StaticBridgeHeader, header)

	s.SSHValid.Store(false)
	header, _ = s.CheckSSHAuthorization(ctx, SSHProof{})
	assert.Empty(t, header)
}
