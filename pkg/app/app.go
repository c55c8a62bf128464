// pkg/app/app.go
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"lfsgate/pkg/auth"
	"lfsgate/pkg/config"
	"lfsgate/pkg/meta"
	"lfsgate/pkg/storage"
	"lfsgate/pkg/storage/cache"
	"lfsgate/pkg/storage/chunked"
	"lfsgate/pkg/storage/disk"
	"lfsgate/pkg/storage/minio"
	"lfsgate/pkg/storage/s3"
	"lfsgate/pkg/token"
)

var ErrUnknownStore = errors.New("unsupported storage type")

// App 是整个应用程序的依赖容器 (Dependency Container)
// 它持有所有“单例”服务，启动后只读
type App struct {
	Store         storage.Store
	Authenticator auth.Authenticator
	Tokens        *token.Service

	// BaseURL 总是以 "/" 结尾
	BaseURL string
	Private bool

	closers []io.Closer
}

// New 直接用现成的组件组装 App (测试和嵌入场景)
func New(store storage.Store, authenticator auth.Authenticator, tokens *token.Service, baseURL string, private bool) *App {
	return &App{
		Store:         store,
		Authenticator: authenticator,
		Tokens:        tokens,
		BaseURL:       baseURL,
		Private:       private,
	}
}

// NewApp 是工厂函数，负责按配置组装这一台机器
// 它只读取 Settings，不知道具体的 CLI 命令
func NewApp(ctx context.Context, s *config.Settings) (*App, error) {
	// 1. Token 服务
	tokens, err := token.NewService(token.Config{
		Secret:    s.JWT.Secret,
		Algorithm: s.JWT.Algorithm,
		Issuer:    s.JWT.Issuer,
		TTL:       s.JWT.ExpiresIn,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init token service: %w", err)
	}

	// 2. 认证
	authenticator, err := auth.New(s.Authenticator.Type, auth.Options{
		Username:      s.Authenticator.Options.Username,
		Password:      s.Authenticator.Options.Password,
		PublicKeyPath: s.SSH.Key.Public,
		URL:           s.Authenticator.Options.URL,
		Timeout:       s.Authenticator.Options.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init authenticator: %w", err)
	}

	a := New(nil, authenticator, tokens, s.BaseURL, s.Private)

	// 3. 存储层 (Dependency Injection)
	store, err := initStore(ctx, s.Store.Type, s.Store.Options)
	if err != nil {
		return nil, fmt.Errorf("failed to init storage: %w", err)
	}
	if c, ok := store.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}

	// 4. 可选的大小缓存
	if s.Store.Cache.RedisURL != "" {
		client, err := cache.Dial(cache.Config{RedisURL: s.Store.Cache.RedisURL, TTL: s.Store.Cache.TTL})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to init store cache: %w", err)
		}
		a.closers = append(a.closers, client)
		store = cache.Wrap(store, client, s.Store.Cache.TTL)
	}
	a.Store = store

	_, direct := store.(storage.DirectStore)
	slog.Info("app initialized",
		slog.String("store", s.Store.Type),
		slog.Bool("direct", direct),
		slog.String("authenticator", s.Authenticator.Type),
		slog.Bool("private", s.Private),
	)
	return a, nil
}

// Close 释放存储层持有的连接
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

type storeFactory func(ctx context.Context, o config.StoreOptions) (storage.Store, error)

// storeFactories 在编译期固定，运行时只读
var storeFactories = map[string]storeFactory{
	"disk": func(_ context.Context, o config.StoreOptions) (storage.Store, error) {
		return disk.NewAdapter(o.Path)
	},
	"s3": func(ctx context.Context, o config.StoreOptions) (storage.Store, error) {
		if o.Bucket == "" {
			return nil, fmt.Errorf("s3 bucket is required")
		}
		return s3.NewAdapter(ctx, s3Config(o))
	},
	"s3_direct": func(ctx context.Context, o config.StoreOptions) (storage.Store, error) {
		if o.Bucket == "" {
			return nil, fmt.Errorf("s3 bucket is required")
		}
		return s3.NewDirectAdapter(ctx, s3Config(o))
	},
	"minio": func(ctx context.Context, o config.StoreOptions) (storage.Store, error) {
		if o.Bucket == "" || o.Endpoint == "" {
			return nil, fmt.Errorf("minio endpoint and bucket is required")
		}
		return minio.NewAdapter(ctx, minio.Config{
			Endpoint:  o.Endpoint,
			AccessKey: o.AccessKey,
			SecretKey: o.SecretKey,
			Bucket:    o.Bucket,
			UseSSL:    o.UseSSL,
		})
	},
	"chunked": func(_ context.Context, o config.StoreOptions) (storage.Store, error) {
		if o.DSN == "" {
			return nil, fmt.Errorf("chunked store dsn is required")
		}
		// 连接惰性建立，启动时数据库不可达不会阻止服务起来
		return chunked.NewAdapter(chunked.Config{
			DB:        meta.Config{Driver: o.Driver, DSN: o.DSN},
			ChunkSize: o.ChunkSize,
		}), nil
	},
}

func s3Config(o config.StoreOptions) s3.Config {
	return s3.Config{
		Endpoint:        o.Endpoint,
		Region:          o.Region,
		Bucket:          o.Bucket,
		AccessKeyID:     o.AccessKey,
		SecretAccessKey: o.SecretKey,
		StorageClass:    o.StorageClass,
	}
}

func initStore(ctx context.Context, typ string, o config.StoreOptions) (storage.Store, error) {
	factory, ok := storeFactories[typ]
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %v)", ErrUnknownStore, typ, StoreNames())
	}
	return factory(ctx, o)
}

// StoreNames 返回所有已知的存储类型
func StoreNames() []string {
	names := make([]string, 0, len(storeFactories))
	for name := range storeFactories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
