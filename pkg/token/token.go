package token

import (
	"errors"
	"fmt"
	"time"

	"lfsgate/pkg/types"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken 是唯一的校验失败结果
// 签名错误、过期、字段不匹配全部折叠成这一个错误，不向调用方泄露细节
var ErrInvalidToken = errors.New("invalid token")

const (
	DefaultIssuer    = "lfsgate"
	DefaultAlgorithm = "HS256"
	DefaultTTL       = 30 * time.Minute
)

// Config 用于初始化 Service
type Config struct {
	Secret    string
	Algorithm string // HS256 | HS384 | HS512
	Issuer    string
	TTL       time.Duration
}

// Claims 是 scoped token 携带的声明
type Claims struct {
	User   string `json:"user"`
	Repo   string `json:"repo"`
	Action string `json:"action"`
	Oid    string `json:"oid,omitempty"`
	jwt.RegisteredClaims
}

// Grant 是一次 Mint 的结果
// ExpiresAt 与 token 内的 exp 来自同一个时钟读数，二者不会出现分歧
type Grant struct {
	Token     string
	ExpiresAt time.Time
}

// Service mints and verifies bearer tokens bound to one
// (action, user, repo[, oid]) tuple.
type Service struct {
	secret []byte
	method jwt.SigningMethod
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewService 校验配置并构造 Service
func NewService(cfg Config) (*Service, error) {
	if cfg.Secret == "" {
		return nil, fmt.Errorf("jwt secret not set")
	}
	alg := cfg.Algorithm
	if alg == "" {
		alg = DefaultAlgorithm
	}
	method, ok := jwt.GetSigningMethod(alg).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("unsupported jwt algorithm %q", alg)
	}
	issuer := cfg.Issuer
	if issuer == "" {
		issuer = DefaultIssuer
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{
		secret: []byte(cfg.Secret),
		method: method,
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// TTL 返回 token 有效期
func (s *Service) TTL() time.Duration { return s.ttl }

// Mint 签发一个 token。oid 为空时不写入 oid 声明 (verify 动作不绑定对象)
func (s *Service) Mint(action types.Operation, user, repo, oid string) (Grant, error) {
	// JWT 的 NumericDate 精度是秒，这里先截断，保证 expires_at 与 exp 完全一致
	now := s.now().UTC().Truncate(time.Second)
	exp := now.Add(s.ttl)

	claims := Claims{
		User:   user,
		Repo:   repo,
		Action: action.String(),
		Oid:    oid,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	signed, err := jwt.NewWithClaims(s.method, claims).SignedString(s.secret)
	if err != nil {
		return Grant{}, fmt.Errorf("sign token: %w", err)
	}
	return Grant{Token: signed, ExpiresAt: exp}, nil
}

// Verify checks signature, issuer and expiry, then requires every expected
// field to equal its claim. The oid is compared only when supplied.
func (s *Service) Verify(tokenString string, action types.Operation, user, repo, oid string) error {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{s.method.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid {
		return ErrInvalidToken
	}

	match := claims.Action == action.String() &&
		claims.User == user &&
		claims.Repo == repo &&
		(oid == "" || claims.Oid == oid)
	if !match {
		return ErrInvalidToken
	}
	return nil
}
