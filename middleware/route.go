package middleware

import (
	"github.com/gin-gonic/gin"
)

// 配置选项
type RouteOpt struct {
	IsAuth bool
}

// Routes 把鉴权中间件绑定到一组路由上。
type Routes struct {
	r    gin.IRoutes
	auth gin.HandlerFunc
}

func NewRoutes(r gin.IRoutes, auth gin.HandlerFunc) *Routes {
	return &Routes{r: r, auth: auth}
}

func (rt *Routes) chain(handler gin.HandlerFunc, opt RouteOpt) []gin.HandlerFunc {
	if opt.IsAuth && rt.auth != nil {
		return []gin.HandlerFunc{rt.auth, handler}
	}
	return []gin.HandlerFunc{handler}
}

// 封装 POST
func (rt *Routes) POST(path string, handler gin.HandlerFunc, opt RouteOpt) {
	rt.r.POST(path, rt.chain(handler, opt)...)
}

// 封装 GET
func (rt *Routes) GET(path string, handler gin.HandlerFunc, opt RouteOpt) {
	rt.r.GET(path, rt.chain(handler, opt)...)
}
