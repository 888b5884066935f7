package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"BurnUpgrade/internal/db"
	"BurnUpgrade/utils"
)

const (
	// RateLimitMax 窗口内每个 IP 最多允许的请求数
	RateLimitMax = 5
	// RateLimitWindow 限流窗口
	RateLimitWindow = 60 * time.Second
)

// RateLimit 中间件：按来源 IP 限制提交频率（票据存在数据库里，跨实例共享）
// 限流是尽力而为：查票或记票失败时放行，不能因为限流存储故障挡掉正常请求
func RateLimit(store *db.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()

		n, err := store.CountRecentTickets(ip, RateLimitWindow)
		if err != nil {
			utils.DefaultLogger.Warn("限流查询失败（放行）: %v", err)
			c.Next()
			return
		}
		if n >= RateLimitMax {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"error":   "too many requests, try again later",
			})
			c.Abort()
			return
		}

		if err := store.AddTicket(ip, RateLimitWindow); err != nil {
			utils.DefaultLogger.Warn("限流记票失败（放行）: %v", err)
		}
		c.Next()
	}
}
