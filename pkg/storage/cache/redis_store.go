package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"lfsgate/pkg/storage"
	"lfsgate/pkg/types"

	"github.com/fxamacker/cbor/v2"
	"github.com/redis/go-redis/v9"
)

// DefaultTTL 是大小缓存的默认过期时间
const DefaultTTL = 10 * time.Minute

// entry 是写进 Redis 的缓存值
type entry struct {
	Size     int64 `cbor:"1,keyasint"`
	CachedAt int64 `cbor:"2,keyasint"`
}

var encMode, _ = cbor.EncOptions{
	Sort:        cbor.SortCanonical,
	IndefLength: cbor.IndefLengthForbidden,
}.EncMode()

var decMode, _ = cbor.DecOptions{
	MaxMapPairs:     16,
	MaxNestedLevels: 4,
	IndefLength:     cbor.IndefLengthForbidden,
}.DecMode()

// CachedStore 是一个装饰器，它为底层的 storage.Store 添加 Redis 大小缓存
//
// 只缓存 GetSize 的结果 (对象存在时)，对象内容一律透传
type CachedStore struct {
	backend storage.Store // 被装饰的底层存储 (如 S3)
	client  redis.UniversalClient
	ttl     time.Duration
}

type Config struct {
	RedisURL string        // 标准连接字符串: redis://<user>:<password>@<host>:<port>/<db>
	TTL      time.Duration // 过期时间，0 表示 DefaultTTL
}

// Dial 解析 URL 并做一次 fail-fast 的连接检查
func Dial(cfg Config) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// NewWithClient 使用现有客户端构造装饰器
func NewWithClient(backend storage.Store, client redis.UniversalClient, ttl time.Duration) *CachedStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &CachedStore{backend: backend, client: client, ttl: ttl}
}

// Wrap 装饰 backend；如果 backend 支持直传，返回值也保持 storage.DirectStore
func Wrap(backend storage.Store, client redis.UniversalClient, ttl time.Duration) storage.Store {
	cs := NewWithClient(backend, client, ttl)
	if direct, ok := backend.(storage.DirectStore); ok {
		return &CachedDirectStore{CachedStore: cs, direct: direct}
	}
	return cs
}

// cacheKey 生成 Redis Key，添加前缀防止冲突
func (s *CachedStore) cacheKey(user, repo, oid string) string {
	return "lfs:size:" + storage.Key(user, repo, oid)
}

// GetSize 优先查 Redis，未命中时回源并回填
func (s *CachedStore) GetSize(ctx context.Context, user, repo, oid string) (int64, error) {
	key := s.cacheKey(user, repo, oid)

	raw, err := s.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var e entry
		if derr := decMode.Unmarshal(raw, &e); derr == nil {
			return e.Size, nil
		}
		slog.Warn("discarding corrupt size cache entry", "key", key)
	case errors.Is(err, redis.Nil):
		// miss
	default:
		// 缓存故障降级为直接回源
		slog.Warn("redis unavailable, falling back to backend", "error", err)
	}

	size, err := s.backend.GetSize(ctx, user, repo, oid)
	if err != nil {
		return size, err
	}

	// 不缓存 "不存在"，否则上传完成后的第一次查询会读到旧结果
	if size >= 0 {
		s.fill(ctx, key, size)
	}
	return size, nil
}

func (s *CachedStore) fill(ctx context.Context, key string, size int64) {
	raw, err := encMode.Marshal(entry{Size: size, CachedAt: time.Now().Unix()})
	if err != nil {
		return
	}
	if err := s.client.Set(ctx, key, raw, s.ttl).Err(); err != nil {
		slog.Warn("failed to fill size cache", "key", key, "error", err)
	}
}

// Put 穿透到底层存储，成功后删除缓存项
func (s *CachedStore) Put(ctx context.Context, user, repo, oid string, r io.Reader) error {
	if err := s.backend.Put(ctx, user, repo, oid, r); err != nil {
		return err
	}
	if err := s.client.Del(ctx, s.cacheKey(user, repo, oid)).Err(); err != nil {
		slog.Warn("failed to invalidate size cache", "oid", oid, "error", err)
	}
	return nil
}

// Get 透传，不缓存对象内容
func (s *CachedStore) Get(ctx context.Context, user, repo, oid string) (io.ReadCloser, error) {
	return s.backend.Get(ctx, user, repo, oid)
}

// CachedDirectStore 让装饰后的直传后端仍然暴露直传动作
type CachedDirectStore struct {
	*CachedStore
	direct storage.DirectStore
}

var _ storage.DirectStore = (*CachedDirectStore)(nil)

func (s *CachedDirectStore) UploadAction(ctx context.Context, user, repo, oid string, size int64) (*types.Action, error) {
	return s.direct.UploadAction(ctx, user, repo, oid, size)
}

func (s *CachedDirectStore) DownloadAction(ctx context.Context, user, repo, oid string, size int64) (*types.Action, error) {
	return s.direct.DownloadAction(ctx, user, repo, oid, size)
}
