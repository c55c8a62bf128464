package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"
)

var (
	ErrUnknownAuthenticator = errors.New("unknown authenticator type")
)

// SSHProof 是 SSH 公钥认证阶段交给 Authenticator 的材料
//
// Signature 为空表示签名已经由传输层 (x/crypto/ssh) 针对 KeyBlob
// 对应的公钥验证通过；非空时 Authenticator 需要自行验证签名。
type SSHProof struct {
	KeyAlgo    string
	KeyBlob    []byte
	SigAlgo    string
	SignedBlob []byte
	Signature  []byte
}

// Authenticator decides whether a request may read or write a repository and
// optionally bridges an SSH identity into an HTTP Authorization header.
type Authenticator interface {
	// CanRead 检查 authorization 头是否允许读取 user/repo
	CanRead(ctx context.Context, user, repo, authorization string) (bool, error)

	// CanWrite 检查 authorization 头是否允许写入 user/repo
	CanWrite(ctx context.Context, user, repo, authorization string) (bool, error)

	// CheckSSHAuthorization 返回可直接用于 HTTP 的 Authorization 头
	// 返回空串表示拒绝
	CheckSSHAuthorization(ctx context.Context, proof SSHProof) (string, error)
}

// Options 汇总所有实现可能用到的配置，各实现只读取自己关心的字段
type Options struct {
	// basic
	Username      string
	Password      string
	PublicKeyPath string // 单个文件，或包含 .pub 文件的目录

	// stash
	URL        string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Factory 根据 Options 构造一个 Authenticator
type Factory func(opts Options) (Authenticator, error)

// factories 在编译期固定，运行时只读
var factories = map[string]Factory{
	"none":   func(Options) (Authenticator, error) { return None{}, nil },
	"basic":  func(o Options) (Authenticator, error) { return NewBasic(o) },
	"stash":  func(o Options) (Authenticator, error) { return NewStash(o) },
	"static": func(Options) (Authenticator, error) { return NewStatic(), nil },
}

// New resolves name to an Authenticator. It is meant to be called once at
// startup; the returned value is shared for the process lifetime.
func New(name string, opts Options) (Authenticator, error) {
	factory, ok := factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %v)", ErrUnknownAuthenticator, name, Names())
	}
	return factory(opts)
}

// Names 返回所有已知的 Authenticator 名称
func Names() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
