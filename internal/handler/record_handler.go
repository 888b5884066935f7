package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gin-gonic/gin"

	"BurnUpgrade/internal/db"
	"BurnUpgrade/internal/models"
	"BurnUpgrade/utils"
)

// SubmitBurns 销毁记录提交接口
// 流程：字段校验 → 链上复核 → 存量冲突预检 → 批量写入
// 预检只是给用户的快速拒绝路径，真正的唯一性由数据库约束保证
func (h *Handler) SubmitBurns(c *gin.Context) {
	var req models.SubmitBurnsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.SubmitBurnsResponse{
			Success: false,
			Error:   "invalid request: " + err.Error(),
		})
		return
	}

	if errMsg := validateSubmission(&req); errMsg != "" {
		c.JSON(http.StatusBadRequest, models.SubmitBurnsResponse{
			Success: false,
			Error:   errMsg,
		})
		return
	}

	wallet := solana.MustPublicKeyFromBase58(req.WalletAddress)

	// 链上复核：按签名分组，逐笔验证交易存在、未失败、fee payer 正确、mint 在账户列表中
	bySig := make(map[string][]solana.PublicKey)
	for _, b := range req.Burns {
		bySig[b.TransactionSignature] = append(bySig[b.TransactionSignature],
			solana.MustPublicKeyFromBase58(b.MintAddress))
	}
	for sigStr, mints := range bySig {
		sig, err := solana.SignatureFromBase58(sigStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, models.SubmitBurnsResponse{
				Success: false,
				Error:   "invalid transaction signature: " + sigStr,
			})
			return
		}
		if err := h.verifier.VerifyBurnTransaction(c.Request.Context(), sig, wallet, mints); err != nil {
			// 过期或伪造的销毁声明，直接拒绝，不重试
			c.JSON(http.StatusBadRequest, models.SubmitBurnsResponse{
				Success: false,
				Error:   "transaction verification failed: " + err.Error(),
			})
			return
		}
	}

	burnMints := make([]string, 0, len(req.Burns))
	for _, b := range req.Burns {
		burnMints = append(burnMints, b.MintAddress)
	}
	targetMints := make([]string, 0, len(req.Upgrades))
	for _, u := range req.Upgrades {
		targetMints = append(targetMints, u.UpgradeMint)
	}

	// 冲突预检（面向用户的提示；并发下仍以插入时的唯一约束为准）
	conflicts, err := h.findConflicts(burnMints, targetMints)
	if err != nil {
		h.internalError(c, err)
		return
	}
	if len(conflicts) > 0 {
		c.JSON(http.StatusConflict, models.SubmitBurnsResponse{
			Success: false,
			Error:   "Already recorded: " + strings.Join(conflicts, ", "),
		})
		return
	}

	// 组装记录：按 mint 配对升级认领
	claimByMint := make(map[string]models.UpgradeItem, len(req.Upgrades))
	for _, u := range req.Upgrades {
		claimByMint[u.BurnedMint] = u
	}
	now := time.Now()
	records := make([]models.BurnRecord, 0, len(req.Burns))
	for _, b := range req.Burns {
		rec := models.BurnRecord{
			Mint:        b.MintAddress,
			Name:        b.Name,
			BurntBy:     req.WalletAddress,
			TXSignature: b.TransactionSignature,
			BurntAt:     now,
		}
		if u, ok := claimByMint[b.MintAddress]; ok {
			target := u.UpgradeMint
			rec.UpgradeTargetMint = &target
			rec.UpgradeTargetName = u.UpgradeName
		}
		records = append(records, rec)
	}

	if err := h.store.InsertBurnRecords(records); err != nil {
		if err == db.ErrDuplicateRecord {
			// 预检和插入之间被并发提交抢先，按同样的冲突响应处理
			conflicts, _ := h.findConflicts(burnMints, targetMints)
			msg := "Already recorded"
			if len(conflicts) > 0 {
				msg = "Already recorded: " + strings.Join(conflicts, ", ")
			}
			c.JSON(http.StatusConflict, models.SubmitBurnsResponse{
				Success: false,
				Error:   msg,
			})
			return
		}
		h.internalError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.SubmitBurnsResponse{
		Success:  true,
		Message:  "burns recorded",
		Recorded: len(records),
	})
}

// findConflicts 返回已有记录的 mint 和已被认领的升级目标（去重后的列表）
func (h *Handler) findConflicts(burnMints, targetMints []string) ([]string, error) {
	var conflicts []string
	seen := make(map[string]bool)

	existing, err := h.store.FindByMints(burnMints)
	if err != nil {
		return nil, err
	}
	for _, r := range existing {
		if !seen[r.Mint] {
			seen[r.Mint] = true
			conflicts = append(conflicts, r.Mint)
		}
	}

	claimed, err := h.store.FindClaimedUpgradeTargets(targetMints)
	if err != nil {
		return nil, err
	}
	for _, r := range claimed {
		if r.UpgradeTargetMint != nil && !seen[*r.UpgradeTargetMint] {
			seen[*r.UpgradeTargetMint] = true
			conflicts = append(conflicts, *r.UpgradeTargetMint)
		}
	}
	return conflicts, nil
}

// validateSubmission 字段级校验，返回空串表示通过
func validateSubmission(req *models.SubmitBurnsRequest) string {
	if !utils.IsValidAddress(req.WalletAddress) {
		return "invalid wallet address"
	}
	if len(req.Burns) == 0 {
		return "burns is empty"
	}
	if len(req.Upgrades) != len(req.Burns) {
		return "upgrades length must equal burns length"
	}

	burnSet := make(map[string]bool, len(req.Burns))
	for _, b := range req.Burns {
		if !utils.IsValidAddress(b.MintAddress) {
			return "invalid mint address: " + b.MintAddress
		}
		if b.TransactionSignature == "" {
			return "missing transaction signature for " + b.MintAddress
		}
		if burnSet[b.MintAddress] {
			return "duplicate mint in burns: " + b.MintAddress
		}
		burnSet[b.MintAddress] = true
	}

	targetSet := make(map[string]bool, len(req.Upgrades))
	for _, u := range req.Upgrades {
		if !utils.IsValidAddress(u.UpgradeMint) {
			return "invalid upgrade mint: " + u.UpgradeMint
		}
		if !burnSet[u.BurnedMint] {
			return "upgrade references unknown burned mint: " + u.BurnedMint
		}
		if burnSet[u.UpgradeMint] {
			// 升级目标不能同时出现在销毁列表里
			return "upgrade target also in burns: " + u.UpgradeMint
		}
		if targetSet[u.UpgradeMint] {
			return "duplicate upgrade target: " + u.UpgradeMint
		}
		targetSet[u.UpgradeMint] = true
	}
	return ""
}

// internalError 500 响应：生产只给笼统信息，开发模式带真实错误
func (h *Handler) internalError(c *gin.Context, err error) {
	utils.DefaultLogger.Error("内部错误: %v", err)
	msg := "internal error"
	if h.devMode {
		msg = err.Error()
	}
	c.JSON(http.StatusInternalServerError, models.SubmitBurnsResponse{
		Success: false,
		Error:   msg,
	})
}
