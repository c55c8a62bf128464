package minio

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"lfsgate/pkg/storage"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config 用于初始化 Adapter
type Config struct {
	Endpoint  string // host:port，不带 scheme
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Adapter 实现了 storage.Store 接口，使用 minio-go 访问任意 S3 兼容存储
type Adapter struct {
	client *minio.Client
	bucket string
}

func NewAdapter(ctx context.Context, cfg Config) (*Adapter, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("minio bucket not set")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}

	return &Adapter{client: client, bucket: cfg.Bucket}, nil
}

// Put 以未知长度 (-1) 上传，minio-go 内部按分片流式发送
func (s *Adapter) Put(ctx context.Context, user, repo, oid string, r io.Reader) error {
	_, err := s.client.PutObject(ctx, s.bucket, storage.Key(user, repo, oid), r, -1,
		minio.PutObjectOptions{ContentType: "application/octet-stream"},
	)
	if err != nil {
		return fmt.Errorf("put object: %w", err)
	}
	return nil
}

func (s *Adapter) Get(ctx context.Context, user, repo, oid string) (io.ReadCloser, error) {
	key := storage.Key(user, repo, oid)
	// GetObject 是惰性的，先 Stat 一次才能把 "不存在" 区分出来
	if _, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{}); err != nil {
		if isNotFound(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("stat object: %w", err)
	}

	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object: %w", err)
	}
	return obj, nil
}

func (s *Adapter) GetSize(ctx context.Context, user, repo, oid string) (int64, error) {
	info, err := s.client.StatObject(ctx, s.bucket, storage.Key(user, repo, oid), minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return storage.SizeAbsent, nil
		}
		return storage.SizeAbsent, fmt.Errorf("stat object: %w", err)
	}
	return info.Size, nil
}

func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound
}
