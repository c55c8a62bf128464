package cache

import (
	"bytes"
	"context"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"lfsgate/pkg/storage"
	"lfsgate/pkg/types"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------
// SpyStore (间谍存储)
// 用于统计底层方法被调用的次数，验证请求是否穿透了缓存
// -----------------------------------------------------------------------------
type SpyStore struct {
	mu        sync.Mutex
	sizeCount int32
	putCount  int32
	objects   map[string][]byte
}

func NewSpyStore() *SpyStore {
	return &SpyStore{objects: make(map[string][]byte)}
}

func (s *SpyStore) GetSize(ctx context.Context, user, repo, oid string) (int64, error) {
	atomic.AddInt32(&s.sizeCount, 1)
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[storage.Key(user, repo, oid)]
	if !ok {
		return storage.SizeAbsent, nil
	}
	return int64(len(data)), nil
}

func (s *SpyStore) Put(ctx context.Context, user, repo, oid string, r io.Reader) error {
	atomic.AddInt32(&s.putCount, 1)
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[storage.Key(user, repo, oid)] = data
	return nil
}

func (s *SpyStore) Get(ctx context.Context, user, repo, oid string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[storage.Key(user, repo, oid)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

type spyDirect struct {
	*SpyStore
}

func (spyDirect) UploadAction(ctx context.Context, user, repo, oid string, size int64) (*types.Action, error) {
	return &types.Action{Href: "https://direct/up/" + oid}, nil
}

func (spyDirect) DownloadAction(ctx context.Context, user, repo, oid string, size int64) (*types.Action, error) {
	return &types.Action{Href: "https://direct/down/" + oid}, nil
}

func setupCache(t *testing.T, backend storage.Store) (*miniredis.Miniredis, storage.Store) {
	t.Helper()
	mini := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	t.Cleanup(func() { client.Close() })
	return mini, Wrap(backend, client, time.Minute)
}

func TestCachedStore_SizeHitAndInvalidate(t *testing.T) {
	ctx := context.Background()
	spy := NewSpyStore()
	mini, store := setupCache(t, spy)

	// 1. 不存在：不缓存
	size, err := store.GetSize(ctx, "u", "r", "oid")
	require.NoError(t, err)
	assert.Equal(t, storage.SizeAbsent, size)
	assert.False(t, mini.Exists("lfs:size:u/r/oid"))

	// 2. 写入后第一次查询回源并回填
	require.NoError(t, store.Put(ctx, "u", "r", "oid", bytes.NewReader([]byte("abcd"))))
	size, err = store.GetSize(ctx, "u", "r", "oid")
	require.NoError(t, err)
	assert.Equal(t, int64(4), size)
	assert.True(t, mini.Exists("lfs:size:u/r/oid"))
	assert.Equal(t, int32(2), atomic.LoadInt32(&spy.sizeCount))

	// 3. 命中：底层不再被调用
	size, err = store.GetSize(ctx, "u", "r", "oid")
	require.NoError(t, err)
	assert.Equal(t, int64(4), size)
	assert.Equal(t, int32(2), atomic.LoadInt32(&spy.sizeCount), "backend GetSize should not be called on hit")

	// 4. 覆盖写会让缓存失效
	require.NoError(t, store.Put(ctx, "u", "r", "oid", bytes.NewReader([]byte("abcdefgh"))))
	assert.False(t, mini.Exists("lfs:size:u/r/oid"))
	size, err = store.GetSize(ctx, "u", "r", "oid")
	require.NoError(t, err)
	assert.Equal(t, int64(8), size)
}

func TestCachedStore_TTL(t *testing.T) {
	ctx := context.Background()
	spy := NewSpyStore()
	mini, store := setupCache(t, spy)

	require.NoError(t, store.Put(ctx, "u", "r", "o", bytes.NewReader([]byte("x"))))
	_, err := store.GetSize(ctx, "u", "r", "o")
	require.NoError(t, err)
	assert.Equal(t, time.Minute, mini.TTL("lfs:size:u/r/o"))

	mini.FastForward(2 * time.Minute)
	assert.False(t, mini.Exists("lfs:size:u/r/o"))
}

func TestCachedStore_RedisDownFallsBack(t *testing.T) {
	ctx := context.Background()
	spy := NewSpyStore()
	mini, store := setupCache(t, spy)
	require.NoError(t, spy.Put(ctx, "u", "r", "o", bytes.NewReader([]byte("xyz"))))

	mini.Close()

	size, err := store.GetSize(ctx, "u", "r", "o")
	require.NoError(t, err)
	assert.Equal(t, int64(3), size)
}

func TestCachedStore_CorruptEntryIgnored(t *testing.T) {
	ctx := context.Background()
	spy := NewSpyStore()
	mini, store := setupCache(t, spy)
	require.NoError(t, spy.Put(ctx, "u", "r", "o", bytes.NewReader([]byte("xyz"))))
	require.NoError(t, mini.Set("lfs:size:u/r/o", "not cbor"))

	size, err := store.GetSize(ctx, "u", "r", "o")
	require.NoError(t, err)
	assert.Equal(t, int64(3), size)
}

func TestWrap_PreservesDirectStore(t *testing.T) {
	_, plain := setupCache(t, NewSpyStore())
	_, isDirect := plain.(storage.DirectStore)
	assert.False(t, isDirect)

	_, wrapped := setupCache(t, spyDirect{NewSpyStore()})
	direct, ok := wrapped.(storage.DirectStore)
	require.True(t, ok)

	action, err := direct.UploadAction(context.Background(), "u", "r", "o", 1)
	require.NoError(t, err)
	assert.Equal(t, "https://direct/up/o", action.Href)
}

func TestDial(t *testing.T) {
	mini := miniredis.RunT(t)

	client, err := Dial(Config{RedisURL: "redis://" + mini.Addr() + "/0"})
	require.NoError(t, err)
	client.Close()

	_, err = Dial(Config{RedisURL: "not-a-url"})
	assert.Error(t, err)
}
