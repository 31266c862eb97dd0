package security

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"PPDesk/tools/errs"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// Options 控制签名与TTL等参数。
type Options struct {
	Secret []byte        // HMAC 密钥（生产用ENV/KMS）
	Alg    string        // HS256/HS384/HS512（默认 HS256）
	TTL    time.Duration // 令牌有效期（默认 15m，网关握手用短期令牌）
	Issuer string
}

// Claims 网关/控制台令牌载荷。
type Claims struct {
	UserID   string `json:"sub"`
	UserName string `json:"name,omitempty"`
	Origin   string `json:"origin,omitempty"`
	jwtlib.RegisteredClaims
}

func DefaultOptions(secret []byte) Options {
	return Options{Secret: secret, Alg: "HS256", TTL: 15 * time.Minute, Issuer: "ppdesk"}
}

// Enabled 未配置密钥时不签发也不校验。
func (o Options) Enabled() bool { return len(o.Secret) > 0 }

// Generate 为 userID 签发令牌，返回令牌与过期时间。
func Generate(opts Options, userID, userName, origin string) (string, time.Time, error) {
	if !opts.Enabled() {
		return "", time.Time{}, errs.ErrArgs.WithDetail("jwt secret is empty")
	}
	if strings.TrimSpace(userID) == "" {
		return "", time.Time{}, errs.ErrArgs.WithDetail("userId is empty")
	}
	method, err := signingMethod(opts.Alg)
	if err != nil {
		return "", time.Time{}, err
	}
	if opts.TTL <= 0 {
		opts.TTL = 15 * time.Minute
	}
	now := time.Now()
	exp := now.Add(opts.TTL)

	claims := Claims{
		UserID:   userID,
		UserName: userName,
		Origin:   origin,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   userID,
			Issuer:    opts.Issuer,
			IssuedAt:  jwtlib.NewNumericDate(now),
			NotBefore: jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(exp),
		},
	}
	signed, err := jwtlib.NewWithClaims(method, claims).SignedString(opts.Secret)
	if err != nil {
		return "", time.Time{}, errs.WrapMsg(err, "sign token", "userId", userID)
	}
	return signed, exp, nil
}

// Verify 校验签名与有效期，失败统一返回 ErrTokenInvalid。
func Verify(opts Options, token string) (*Claims, error) {
	if _, err := signingMethod(opts.Alg); err != nil { // 校验 alg 合法
		return nil, err
	}
	claims := &Claims{}
	parsed, err := jwtlib.ParseWithClaims(token, claims, func(t *jwtlib.Token) (interface{}, error) {
		// 仅允许 HMAC 家族
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected alg: %v", t.Header["alg"])
		}
		return opts.Secret, nil
	})
	if err != nil {
		return nil, errs.ErrTokenInvalid.WithDetail(err.Error()).Wrap()
	}
	if !parsed.Valid || claims.UserID == "" {
		return nil, errs.ErrTokenInvalid.Wrap()
	}
	return claims, nil
}

// TokenSource 缓存令牌，在过期前 1/5 TTL 时刷新。
type TokenSource struct {
	opts     Options
	userID   string
	userName string
	origin   string

	mu    sync.Mutex
	token string
	exp   time.Time
	now   func() time.Time
}

func NewTokenSource(opts Options, userID, userName, origin string) *TokenSource {
	return &TokenSource{opts: opts, userID: userID, userName: userName, origin: origin, now: time.Now}
}

// Token 未启用时返回空串。
func (s *TokenSource) Token() (string, error) {
	if s == nil || !s.opts.Enabled() {
		return "", nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ttl := s.opts.TTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	if s.token != "" && s.now().Add(ttl/5).Before(s.exp) {
		return s.token, nil
	}
	tok, exp, err := Generate(s.opts, s.userID, s.userName, s.origin)
	if err != nil {
		return "", err
	}
	s.token, s.exp = tok, exp
	return tok, nil
}

func signingMethod(alg string) (jwtlib.SigningMethod, error) {
	switch strings.ToUpper(strings.TrimSpace(alg)) {
	case "", "HS256":
		return jwtlib.SigningMethodHS256, nil
	case "HS384":
		return jwtlib.SigningMethodHS384, nil
	case "HS512":
		return jwtlib.SigningMethodHS512, nil
	default:
		return nil, errs.ErrArgs.WithDetail(fmt.Sprintf("unsupported alg: %s (use HS256/HS384/HS512)", alg))
	}
}
