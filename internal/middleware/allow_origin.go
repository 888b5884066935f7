package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// AllowOrigin 中间件：只接受配置中允许的来源
// 没有 Origin 头的请求（curl、服务间调用）放行，带 Origin 的必须在白名单里
func AllowOrigin(allowed []string) gin.HandlerFunc {
	allowSet := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		allowSet[o] = true
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && !allowSet[origin] {
			c.JSON(http.StatusForbidden, gin.H{
				"success": false,
				"error":   "origin not allowed",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
