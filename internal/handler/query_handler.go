package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"BurnUpgrade/internal/models"
	"BurnUpgrade/utils"
)

// GetUpgradeTargets 返回该钱包已认领为升级目标的 mint 列表
// 前端据此把已锁定的资产从可销毁/可认领列表里剔除
func (h *Handler) GetUpgradeTargets(c *gin.Context) {
	wallet := c.Param("wallet")
	if !utils.IsValidAddress(wallet) {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "invalid wallet address",
		})
		return
	}

	mints, err := h.store.FindUpgradeTargetsForWallet(wallet)
	if err != nil {
		h.internalError(c, err)
		return
	}
	if mints == nil {
		mints = []string{}
	}

	c.JSON(http.StatusOK, models.UpgradeTargetsResponse{
		Wallet: wallet,
		Mints:  mints,
	})
}
