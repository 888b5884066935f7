package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HealthzHandler 存活探针（liveness probe）
// 检查服务是否正在运行，总是返回 200（除非服务完全崩溃）
func HealthzHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"type":   "liveness",
	})
}

// ReadinessHandler 就绪探针（readiness probe）
// 数据库连通才算就绪
func (h *Handler) ReadinessHandler(c *gin.Context) {
	if err := h.store.Ping(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "not ready",
			"type":    "readiness",
			"message": "数据库连接失败",
			"error":   err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"type":   "readiness",
	})
}
