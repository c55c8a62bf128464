package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"lfsgate/pkg/storage"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Adapter 实现了 storage.Store 接口，字节流经本服务代理到 S3
type Adapter struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
}

// Config 用于初始化 Adapter
type Config struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	// StorageClass 仅用于直传上传 (x-amz-storage-class)，为空时为 STANDARD
	StorageClass string
}

// NewAdapter 初始化 S3 客户端 (AWS SDK v2)
func NewAdapter(ctx context.Context, cfg Config) (*Adapter, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket not set")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	// 1. 加载基础配置 (仅包含 Region 和 Credentials)
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, "",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}

	// 2. 自定义 Endpoint (MinIO / 私有 S3) 时强制 Path Style
	// 即: http://host:9000/bucket/key
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	// 3. 自动创建 Bucket
	_, err = client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: &cfg.Bucket})
	if err != nil {
		_, err = client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: &cfg.Bucket})
		if err != nil {
			// 可能是并发创建或权限不足，交给后续请求暴露真正的问题
			slog.Warn("failed to ensure bucket exists",
				slog.String("bucket", cfg.Bucket),
				slog.String("err", err.Error()),
			)
		}
	}

	return &Adapter{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   cfg.Bucket,
	}, nil
}

// Put 通过分片上传 API 流式写入，长度未知的请求体也不会被整体读进内存
func (s *Adapter) Put(ctx context.Context, user, repo, oid string, r io.Reader) error {
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(storage.Key(user, repo, oid)),
		Body:        r,
		ContentType: aws.String("application/octet-stream"),
	})
	if err != nil {
		return fmt.Errorf("s3 put failed: %w", err)
	}
	return nil
}

// Get 直接返回 S3 的响应体
func (s *Adapter) Get(ctx context.Context, user, repo, oid string) (io.ReadCloser, error) {
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(storage.Key(user, repo, oid)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("s3 get failed: %w", err)
	}
	return resp.Body, nil
}

// GetSize 通过 HEAD 获取大小，404 映射为 SizeAbsent，其它错误向上抛
func (s *Adapter) GetSize(ctx context.Context, user, repo, oid string) (int64, error) {
	resp, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(storage.Key(user, repo, oid)),
	})
	if err != nil {
		if isNotFound(err) {
			return storage.SizeAbsent, nil
		}
		return storage.SizeAbsent, fmt.Errorf("s3 head failed: %w", err)
	}
	return aws.ToInt64(resp.ContentLength), nil
}

func isNotFound(err error) bool {
	var notFound *s3types.NotFound
	var noKey *s3types.NoSuchKey
	if errors.As(err, &notFound) || errors.As(err, &noKey) {
		return true
	}
	// 兼容性：HEAD 请求没有响应体，部分 S3 实现只能从状态码判断
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotFound {
		return true
	}
	return false
}
