package security

import (
	"net/http"
	"strings"

	"PPDesk/global"
	"PPDesk/tools/errs"
	jwtsec "PPDesk/tools/security"

	"github.com/gin-gonic/gin"
)

// context key
const (
	PPCtxAuthKey   = "authorization" // string，原始 token
	PPCtxClaimsKey = "claims"        // *jwtsec.Claims
)

type Options struct {
	JWT jwtsec.Options

	HeaderToken               string // 默认 "authorization"
	EnableAuthorizationBearer bool   // 默认 true
	QueryToken                string // websocket 握手无法带头时从 query 读取，默认 "token"
}

func DefaultOptions(j jwtsec.Options) *Options {
	return &Options{
		JWT:                       j,
		HeaderToken:               PPCtxAuthKey,
		EnableAuthorizationBearer: true,
		QueryToken:                "token",
	}
}

// TokenFrom 按 header -> Bearer -> query 的顺序取 token。
func TokenFrom(c *gin.Context, opts *Options) string {
	token := strings.TrimSpace(c.GetHeader(opts.HeaderToken))
	// 兼容 Authorization: Bearer xxx
	if opts.EnableAuthorizationBearer {
		if strings.HasPrefix(strings.ToLower(token), "bearer ") {
			token = strings.TrimSpace(token[len("bearer "):])
		}
		if token == "" {
			if authz := strings.TrimSpace(c.GetHeader("Authorization")); strings.HasPrefix(strings.ToLower(authz), "bearer ") {
				token = strings.TrimSpace(authz[len("bearer "):])
			}
		}
	}
	if token == "" && opts.QueryToken != "" {
		token = strings.TrimSpace(c.Query(opts.QueryToken))
	}
	return token
}

// Middleware 校验 HS* JWT；未配置密钥时放行。
func Middleware(opts *Options) gin.HandlerFunc {
	if opts == nil {
		opts = DefaultOptions(jwtsec.Options{})
	}
	return func(c *gin.Context) {
		if !opts.JWT.Enabled() {
			c.Next()
			return
		}
		token := TokenFrom(c, opts)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, global.Fail(errs.ErrTokenInvalid.WrapMsg("missing token")))
			return
		}
		claims, err := jwtsec.Verify(opts.JWT, token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, global.Fail(err))
			return
		}
		c.Set(PPCtxAuthKey, token)
		c.Set(PPCtxClaimsKey, claims)
		c.Next()
	}
}

// ClaimsFrom 读取中间件写入的身份。
func ClaimsFrom(c *gin.Context) (*jwtsec.Claims, bool) {
	v, ok := c.Get(PPCtxClaimsKey)
	if !ok {
		return nil, false
	}
	cl, ok := v.(*jwtsec.Claims)
	return cl, ok
}
