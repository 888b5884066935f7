package models

import (
	"time"

	"gorm.io/gorm"
)

// BurnRecord 销毁记录表：每个被销毁的 mint 只能有一条记录
// Mint 全局唯一（防止重复记录）；UpgradeTargetMint 非空时全局唯一
// （一个资产最多只能被一次销毁认领为升级目标，NULL 不参与唯一约束）
type BurnRecord struct {
	gorm.Model
	Mint        string    `gorm:"uniqueIndex;size:44"` // 被销毁 NFT 的 mint 地址
	Name        string    `gorm:"size:100"`            // NFT 名称（展示用）
	BurntBy     string    `gorm:"index;size:44"`       // 销毁者钱包地址
	TXSignature string    `gorm:"index;size:88"`       // 交易签名（一笔交易可包含多个销毁，不唯一）
	BurntAt     time.Time // 链上确认时间
	// 升级目标：指针类型，缺省写入 NULL
	UpgradeTargetMint *string `gorm:"uniqueIndex;size:44"`
	UpgradeTargetName string  `gorm:"size:100"`
}

// RateLimitTicket 限流票据表：按来源 IP 记录请求，窗口外的记录在写入时清理
// 仅用于限制提交频率，不参与核心唯一性约束
type RateLimitTicket struct {
	gorm.Model
	IP string `gorm:"index;size:64"`
}
