package disk

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"lfsgate/pkg/storage"
)

// Adapter 实现了 storage.Store 接口，把对象存在本地文件系统
type Adapter struct {
	rootPath string // 比如: /var/lib/lfsgate/data
}

// NewAdapter 创建一个新的磁盘存储适配器
// root 为空时使用 <cwd>/data
func NewAdapter(root string) (*Adapter, error) {
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolve working dir: %w", err)
		}
		root = filepath.Join(wd, "data")
	}
	// 确保根目录存在
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create root storage dir: %w", err)
	}
	return &Adapter{rootPath: root}, nil
}

// layout 返回对象对应的物理路径
// 策略：对 user/repo/oid 做 URL-safe Base64，结果不含 "/"，
// 既避免路径穿越 (../)，也把目录结构压平成一层
func (s *Adapter) layout(user, repo, oid string) string {
	name := base64.URLEncoding.EncodeToString([]byte(storage.Key(user, repo, oid)))
	return filepath.Join(s.rootPath, name)
}

func (s *Adapter) Put(ctx context.Context, user, repo, oid string, r io.Reader) error {
	targetPath := s.layout(user, repo, oid)

	// 1. 准备目录 (根目录可能在运行期间被删除)
	dir := filepath.Dir(targetPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	// 2. 原子写入 (Atomic Write)
	// 先写到临时文件，然后 Rename。读者要么看到旧文件，要么看到完整的新文件
	tempFile, err := os.CreateTemp(dir, "temp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tempFile.Name())

	// 3. 流式拷贝，不在内存里缓冲整个对象
	if _, err := io.Copy(tempFile, r); err != nil {
		tempFile.Close()
		return fmt.Errorf("write object: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return err
	}

	// 4. 移动到最终位置
	if err := os.Rename(tempFile.Name(), targetPath); err != nil {
		return err
	}
	return nil
}

func (s *Adapter) Get(ctx context.Context, user, repo, oid string) (io.ReadCloser, error) {
	targetPath := s.layout(user, repo, oid)

	info, err := os.Stat(targetPath)
	if os.IsNotExist(err) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, storage.ErrNotFound
	}

	f, err := os.Open(targetPath)
	if os.IsNotExist(err) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (s *Adapter) GetSize(ctx context.Context, user, repo, oid string) (int64, error) {
	info, err := os.Stat(s.layout(user, repo, oid))
	if os.IsNotExist(err) {
		return storage.SizeAbsent, nil
	}
	if err != nil {
		return storage.SizeAbsent, fmt.Errorf("stat object: %w", err)
	}
	if !info.Mode().IsRegular() {
		return storage.SizeAbsent, nil
	}
	return info.Size(), nil
}
