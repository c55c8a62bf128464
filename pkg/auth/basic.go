package auth

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/crypto/ssh"
)

// credentials = auth-scheme 1*SP token68, scheme 大小写不敏感
var credentialsRegexp = regexp.MustCompile(`^ *(?:[Bb][Aa][Ss][Ii][Cc]) +([A-Za-z0-9\-._~+/]+=*) *$`)

// Credentials 是从 Basic 头里解析出的用户名密码
type Credentials struct {
	Username string
	Password string
}

// ParseBasic 解析 "Basic base64(user:pass)"，格式不对时返回 false
func ParseBasic(authorization string) (Credentials, bool) {
	match := credentialsRegexp.FindStringSubmatch(authorization)
	if match == nil {
		return Credentials{}, false
	}
	decoded, err := base64.StdEncoding.DecodeString(match[1])
	if err != nil {
		return Credentials{}, false
	}
	user, pass, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return Credentials{}, false
	}
	return Credentials{Username: user, Password: pass}, true
}

// BasicHeader 构造 "Basic base64(user:pass)"
func BasicHeader(username, password string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(username+":"+password))
}

// Basic checks a single global username/password pair. Write permission is
// identical to read permission. SSH keys, when configured, are bridged to a
// Basic header carrying that same credential.
type Basic struct {
	username string
	password string
	keys     []ssh.PublicKey
}

// NewBasic 构造 Basic，PublicKeyPath 为空时不支持 SSH
func NewBasic(opts Options) (*Basic, error) {
	if opts.Username == "" {
		return nil, fmt.Errorf("basic authenticator: username not set")
	}
	b := &Basic{username: opts.Username, password: opts.Password}

	if opts.PublicKeyPath != "" {
		keys, err := LoadPublicKeys(opts.PublicKeyPath)
		if err != nil {
			return nil, fmt.Errorf("basic authenticator: %w", err)
		}
		b.keys = keys
	}
	return b, nil
}

// NewBasicWithKeys 直接注入公钥集合 (测试和嵌入场景)
func NewBasicWithKeys(username, password string, keys []ssh.PublicKey) *Basic {
	return &Basic{username: username, password: password, keys: keys}
}

func (b *Basic) CanRead(_ context.Context, _, _, authorization string) (bool, error) {
	cred, ok := ParseBasic(authorization)
	if !ok {
		return false, nil
	}
	userOK := subtle.ConstantTimeCompare([]byte(cred.Username), []byte(b.username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(cred.Password), []byte(b.password)) == 1
	return userOK && passOK, nil
}

func (b *Basic) CanWrite(ctx context.Context, user, repo, authorization string) (bool, error) {
	return b.CanRead(ctx, user, repo, authorization)
}

// CheckSSHAuthorization 遍历公钥集合，第一个匹配的公钥即放行
func (b *Basic) CheckSSHAuthorization(_ context.Context, proof SSHProof) (string, error) {
	for _, key := range b.keys {
		if b.matches(key, proof) {
			return BasicHeader(b.username, b.password), nil
		}
	}
	return "", nil
}

func (b *Basic) matches(key ssh.PublicKey, proof SSHProof) bool {
	// 传输层已验签：只需确认这把公钥在集合内
	if len(proof.Signature) == 0 {
		return key.Type() == proof.KeyAlgo && bytes.Equal(key.Marshal(), proof.KeyBlob)
	}

	sig := &ssh.Signature{Format: proof.SigAlgo, Blob: proof.Signature}
	return key.Verify(proof.SignedBlob, sig) == nil
}
