package storage

import (
	"context"
	"errors"
	"io"
	"strings"

	"lfsgate/pkg/types"
)

var (
	ErrNotFound = errors.New("object not found")
)

// SizeAbsent 是 GetSize 表示 "对象不存在" 的哨兵值
const SizeAbsent int64 = -1

// Store defines the interface for an LFS object backend.
// Objects are addressed by (user, repo, oid); the backend decides how that
// triple maps onto its own key space.
type Store interface {
	// Put 把 r 的内容流式写入后端，直到 EOF
	// 同一个 (user, repo, oid) 的并发 Put 没有锁，后写者覆盖前者
	Put(ctx context.Context, user, repo, oid string, r io.Reader) error

	// Get 返回对象的字节流，调用方负责 Close
	// 对象不存在时返回 ErrNotFound
	Get(ctx context.Context, user, repo, oid string) (io.ReadCloser, error)

	// GetSize 返回对象大小，不存在时返回 SizeAbsent (-1)
	GetSize(ctx context.Context, user, repo, oid string) (int64, error)
}

// DirectStore is implemented by backends that let clients transfer bytes
// straight to the storage provider. The returned actions point at the
// provider, not at this server's proxy endpoints.
type DirectStore interface {
	Store
	UploadAction(ctx context.Context, user, repo, oid string, size int64) (*types.Action, error)
	DownloadAction(ctx context.Context, user, repo, oid string, size int64) (*types.Action, error)
}

// Exists 定义为 GetSize > 0
//
// 注意：0 字节的对象与不存在的对象因此无法区分，这是已知限制
func Exists(ctx context.Context, s Store, user, repo, oid string) (bool, error) {
	size, err := s.GetSize(ctx, user, repo, oid)
	if err != nil {
		return false, err
	}
	return size > 0, nil
}

// Key 生成存储 Key: user/repo/oid
func Key(user, repo, oid string) string {
	return strings.Join([]string{user, repo, oid}, "/")
}
