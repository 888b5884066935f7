package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// MaxBodyBytes 请求体上限（50 KB）
const MaxBodyBytes = 50 * 1024

// BodyLimit 中间件：拒绝超大请求体
// ContentLength 已知时直接拒绝，未知（chunked）时用 MaxBytesReader 兜底
func BodyLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > MaxBodyBytes {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"success": false,
				"error":   "request body too large",
			})
			c.Abort()
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxBodyBytes)
		c.Next()
	}
}

// RequireJSON 中间件：POST 必须是 application/json
func RequireJSON() gin.HandlerFunc {
	return func(c *gin.Context) {
		ct := c.ContentType()
		if !strings.HasPrefix(ct, "application/json") {
			c.JSON(http.StatusUnsupportedMediaType, gin.H{
				"success": false,
				"error":   "content type must be application/json",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
