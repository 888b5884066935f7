package services

import (
	"context"
	"time"

	"github.com/gagliardetto/solana-go"

	"BurnUpgrade/internal/models"
	"BurnUpgrade/utils"
)

// AuditChain 对账需要的链上查询
type AuditChain interface {
	ListBurnedAssets(ctx context.Context, collection solana.PublicKey) ([]BurnedAsset, error)
	LatestSignatureFor(ctx context.Context, addr solana.PublicKey) (solana.Signature, *time.Time, error)
}

// RecordSource 对账需要的存储侧全量记录（db.Store 实现）
type RecordSource interface {
	AllRecords() ([]models.BurnRecord, error)
}

// AuditEntry 一个链上销毁的对账结论
type AuditEntry struct {
	Mint      string
	Name      string
	Signature string     // 资产最近一笔交易的签名（视为销毁交易）
	BurnTime  *time.Time // nil 表示无法确定销毁时间
	MatchedBy string     // "mint" / "signature"，空串表示无匹配
}

// AuditReport 对账报告：Gaps 是链上已销毁但存储里没有记录的部分
type AuditReport struct {
	Checked int          // 进入对账范围的链上销毁数
	Skipped int          // 早于起始日期、排除在范围外的数量
	Entries []AuditEntry // 全部范围内条目（含匹配结果）
	Gaps    []AuditEntry // 无任何匹配的条目
}

// Auditor 离线对账：独立重建链上已销毁集合，和存储记录做差集
// 只读、可重复执行，不产生任何写入
type Auditor struct {
	chain      AuditChain
	store      RecordSource
	collection solana.PublicKey
	cutoff     time.Time // 只对账该日期之后的销毁
	log        *utils.Logger
}

func NewAuditor(chain AuditChain, store RecordSource, collection solana.PublicKey, cutoff time.Time) *Auditor {
	return &Auditor{
		chain:      chain,
		store:      store,
		collection: collection,
		cutoff:     cutoff,
		log:        utils.DefaultLogger,
	}
}

// Run 执行一轮对账
// 资产详情逐个串行查询（尊重 RPC 限速）；先按 mint 匹配，再按交易签名匹配
// 无法确定销毁时间的资产保守地留在对账范围内，不静默剔除
func (a *Auditor) Run(ctx context.Context) (*AuditReport, error) {
	burned, err := a.chain.ListBurnedAssets(ctx, a.collection)
	if err != nil {
		return nil, err
	}
	a.log.Info("链上共找到 %d 个已销毁资产", len(burned))

	records, err := a.store.AllRecords()
	if err != nil {
		return nil, err
	}
	byMint := make(map[string]bool, len(records))
	bySig := make(map[string]bool, len(records))
	for _, r := range records {
		byMint[r.Mint] = true
		if r.TXSignature != "" {
			bySig[r.TXSignature] = true
		}
	}

	report := &AuditReport{}
	for _, asset := range burned {
		mint, err := solana.PublicKeyFromBase58(asset.Mint)
		if err != nil {
			a.log.Warn("跳过无法解析的 mint: %s", asset.Mint)
			continue
		}

		sig, burnTime, err := a.chain.LatestSignatureFor(ctx, mint)
		if err != nil {
			// 查不到历史时同样保守处理：留在范围内继续比对
			a.log.Warn("查询 %s 的交易历史失败: %v", asset.Mint, err)
		}

		// 注意：这里把资产最近一笔交易当作销毁交易。若销毁后还有别的交易，
		// 销毁时间会被误判（可能影响起始日期过滤），语义确认前先保持原样。
		if burnTime != nil && burnTime.Before(a.cutoff) {
			report.Skipped++
			continue
		}

		entry := AuditEntry{
			Mint:     asset.Mint,
			Name:     asset.Name,
			BurnTime: burnTime,
		}
		if !sig.IsZero() {
			entry.Signature = sig.String()
		}

		switch {
		case byMint[asset.Mint]:
			entry.MatchedBy = "mint"
		case entry.Signature != "" && bySig[entry.Signature]:
			entry.MatchedBy = "signature"
		}

		report.Checked++
		report.Entries = append(report.Entries, entry)
		if entry.MatchedBy == "" {
			report.Gaps = append(report.Gaps, entry)
		}
	}

	return report, nil
}
