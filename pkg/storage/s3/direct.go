package s3

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"lfsgate/pkg/storage"
	"lfsgate/pkg/types"
)

// DirectExpiry 是直传动作对外公布的有效期
// 旧版签名没有密码学意义上的过期，这里只是给客户端的参考值，比 token 的有效期短
const DirectExpiry = 15 * time.Minute

// DefaultStorageClass 是直传上传默认的 x-amz-storage-class
const DefaultStorageClass = "STANDARD"

// DirectAdapter 在 Adapter 的基础上实现 storage.DirectStore：
// 上传和下载由客户端直接对 S3 发起，请求头由本服务预先签好
type DirectAdapter struct {
	*Adapter
	signer       Signer
	bucket       string
	endpoint     string
	storageClass string
	now          func() time.Time
}

var _ storage.DirectStore = (*DirectAdapter)(nil)

// NewDirectAdapter 构造直传 Adapter，代理能力 (GetSize 等) 仍走 SDK 客户端
func NewDirectAdapter(ctx context.Context, cfg Config) (*DirectAdapter, error) {
	proxy, err := NewAdapter(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return newDirect(proxy, cfg), nil
}

func newDirect(proxy *Adapter, cfg Config) *DirectAdapter {
	class := cfg.StorageClass
	if class == "" {
		class = DefaultStorageClass
	}
	return &DirectAdapter{
		Adapter:      proxy,
		signer:       Signer{AccessKey: cfg.AccessKeyID, SecretKey: cfg.SecretAccessKey},
		bucket:       cfg.Bucket,
		endpoint:     resolveEndpoint(cfg.Endpoint, cfg.Region),
		storageClass: class,
		now:          time.Now,
	}
}

// resolveEndpoint: 显式 endpoint 优先；否则 us-east-1 (或未设置) 用全局域名，其它 region 用分区域名
func resolveEndpoint(endpoint, region string) string {
	if endpoint != "" {
		return endpoint
	}
	if region == "" || strings.EqualFold(region, "us-east-1") {
		return "https://s3.amazonaws.com"
	}
	return fmt.Sprintf("https://s3-%s.amazonaws.com", region)
}

// resource 是参与签名的 CanonicalizedResource: /bucket/user/repo/oid
func (d *DirectAdapter) resource(user, repo, oid string) string {
	return "/" + d.bucket + "/" + storage.Key(user, repo, oid)
}

func (d *DirectAdapter) objectURL(resource string) (*url.URL, error) {
	u, err := url.Parse(d.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid s3 endpoint %q: %w", d.endpoint, err)
	}
	u.Path = path.Join("/", u.Path, resource)
	return u, nil
}

func (d *DirectAdapter) UploadAction(ctx context.Context, user, repo, oid string, size int64) (*types.Action, error) {
	resource := d.resource(user, repo, oid)
	u, err := d.objectURL(resource)
	if err != nil {
		return nil, err
	}

	now := d.now()
	headers := map[string]string{
		"Host":                 u.Hostname(),
		"Date":                 now.UTC().Format(http.TimeFormat),
		"Content-Length":       strconv.FormatInt(size, 10),
		"Content-Type":         "application/octet-stream",
		"x-amz-content-sha256": oid,
		"x-amz-storage-class":  d.storageClass,
	}
	// x-amz-* 头参与签名，必须在 Authorize 之前放进去
	d.signer.Authorize(http.MethodPut, headers, resource)

	return &types.Action{
		Href:      u.String(),
		ExpiresAt: now.Add(DirectExpiry).UTC(),
		Header:    headers,
	}, nil
}

func (d *DirectAdapter) DownloadAction(ctx context.Context, user, repo, oid string, size int64) (*types.Action, error) {
	resource := d.resource(user, repo, oid)
	u, err := d.objectURL(resource)
	if err != nil {
		return nil, err
	}

	now := d.now()
	headers := map[string]string{
		"Host": u.Hostname(),
		"Date": now.UTC().Format(http.TimeFormat),
	}
	d.signer.Authorize(http.MethodGet, headers, resource)

	return &types.Action{
		Href:      u.String(),
		ExpiresAt: now.Add(DirectExpiry).UTC(),
		Header:    headers,
	}, nil
}
