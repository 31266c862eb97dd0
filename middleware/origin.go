package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Origin 浏览器来源白名单；列表为空或请求不带 Origin 时放行。
func Origin(allowed []string) gin.HandlerFunc {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
			set[strings.ToLower(o)] = struct{}{}
		}
	}
	return func(c *gin.Context) {
		origin := strings.ToLower(strings.TrimRight(c.GetHeader("Origin"), "/"))
		if len(set) == 0 || origin == "" {
			c.Next()
			return
		}
		if _, ok := set[origin]; !ok {
			c.AbortWithStatus(http.StatusForbidden)
			return
		}
		c.Next()
	}
}
