package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Settings 是启动时从 Viper 拷贝出来的强类型配置，请求路径上不再读 Viper
type Settings struct {
	Port    int    `mapstructure:"port"`
	BaseURL string `mapstructure:"base_url"`
	Private bool   `mapstructure:"private"`

	Log           LogSettings   `mapstructure:"log"`
	JWT           JWTSettings   `mapstructure:"jwt"`
	Store         StoreSettings `mapstructure:"store"`
	Authenticator AuthSettings  `mapstructure:"authenticator"`
	SSH           SSHSettings   `mapstructure:"ssh"`
}

type LogSettings struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text | json
}

type JWTSettings struct {
	Secret    string        `mapstructure:"secret"`
	Algorithm string        `mapstructure:"algorithm"`
	Issuer    string        `mapstructure:"issuer"`
	ExpiresIn time.Duration `mapstructure:"expires_in"`
}

type StoreSettings struct {
	Type    string        `mapstructure:"type"`
	Options StoreOptions  `mapstructure:"options"`
	Cache   CacheSettings `mapstructure:"cache"`
}

type StoreOptions struct {
	Path      string `mapstructure:"path"`
	Bucket    string `mapstructure:"bucket"`
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Driver    string `mapstructure:"driver"`
	DSN       string `mapstructure:"dsn"`
	ChunkSize int    `mapstructure:"chunk_size"`

	// StorageClass 是 s3_direct 上传使用的 x-amz-storage-class
	StorageClass string `mapstructure:"storage_class"`
}

type CacheSettings struct {
	RedisURL string        `mapstructure:"redis_url"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type AuthSettings struct {
	Type    string      `mapstructure:"type"`
	Options AuthOptions `mapstructure:"options"`
}

type AuthOptions struct {
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	URL      string        `mapstructure:"url"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type SSHSettings struct {
	Enabled bool      `mapstructure:"enabled"`
	Port    int       `mapstructure:"port"`
	IP      string    `mapstructure:"ip"`
	Key     SSHKeySet `mapstructure:"key"`
}

type SSHKeySet struct {
	Private string `mapstructure:"private"` // host key
	Public  string `mapstructure:"public"`  // 授权公钥文件或目录
}

// Current 把全局 Viper 的内容解码成 Settings 并校验
func Current() (*Settings, error) {
	return Decode(viper.GetViper())
}

// Decode 从指定的 Viper 实例解码配置
func Decode(v *viper.Viper) (*Settings, error) {
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate 检查必填项并规范化 base_url (总是以 "/" 结尾)
func (s *Settings) Validate() error {
	if s.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret is required")
	}
	if s.Port <= 0 || s.Port > 65535 {
		return fmt.Errorf("invalid port %d", s.Port)
	}
	u, err := url.Parse(s.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid base_url %q", s.BaseURL)
	}
	if !strings.HasSuffix(s.BaseURL, "/") {
		s.BaseURL += "/"
	}
	if s.SSH.Enabled && s.SSH.Key.Private == "" {
		return fmt.Errorf("ssh.key.private is required when ssh is enabled")
	}
	return nil
}

// Addr 返回 HTTP 监听地址
func (s *Settings) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

// SSHAddr 返回 SSH 监听地址
func (s *Settings) SSHAddr() string {
	return fmt.Sprintf("%s:%d", s.SSH.IP, s.SSH.Port)
}

// NewLogger 按 log.level / log.format 构造 slog.Logger
func (s *Settings) NewLogger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s.Log.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(s.Log.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
