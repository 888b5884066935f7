package handler

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"github.com/gin-gonic/gin"

	"BurnUpgrade/internal/db"
	"BurnUpgrade/internal/middleware"
)

// TxVerifier 提交接口依赖的链上复核（ChainClient 实现，测试用假实现）
type TxVerifier interface {
	VerifyBurnTransaction(ctx context.Context, sig solana.Signature, wallet solana.PublicKey, mints []solana.PublicKey) error
}

// Handler 持有显式注入的依赖（不走包级全局）
type Handler struct {
	store    *db.Store
	verifier TxVerifier
	devMode  bool // 开发模式下 500 返回真实错误信息
}

func New(store *db.Store, verifier TxVerifier, devMode bool) *Handler {
	return &Handler{store: store, verifier: verifier, devMode: devMode}
}

func RegisterRoutes(r *gin.Engine, h *Handler, allowedOrigins []string) {
	api := r.Group("/api", middleware.AllowOrigin(allowedOrigins))
	api.POST("/burns",
		middleware.RateLimit(h.store),
		middleware.RequireJSON(),
		middleware.BodyLimit(),
		h.SubmitBurns,
	)
	api.GET("/upgrade-targets/:wallet", h.GetUpgradeTargets)

	r.GET("/healthz", HealthzHandler)
	r.GET("/readyz", h.ReadinessHandler)
}
