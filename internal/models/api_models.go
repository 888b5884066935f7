package models

// BurnItem 单个已销毁资产（提交接口）
type BurnItem struct {
	MintAddress          string `json:"mintAddress" binding:"required"`
	TransactionSignature string `json:"transactionSignature" binding:"required"`
	Name                 string `json:"name"`
}

// UpgradeItem 单个升级认领：burnedMint 与 upgradeMint 一一配对
type UpgradeItem struct {
	BurnedMint  string `json:"burnedMint" binding:"required"`
	UpgradeMint string `json:"upgradeMint" binding:"required"`
	UpgradeName string `json:"upgradeName"`
}

// SubmitBurnsRequest 销毁记录提交请求
type SubmitBurnsRequest struct {
	WalletAddress string        `json:"walletAddress" binding:"required"`
	Burns         []BurnItem    `json:"burns" binding:"required"`
	Upgrades      []UpgradeItem `json:"upgrades"`
}

// SubmitBurnsResponse 提交响应
type SubmitBurnsResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message,omitempty"`
	Error    string `json:"error,omitempty"`
	Recorded int    `json:"recorded,omitempty"`
}

// UpgradeTargetsResponse 钱包已认领升级目标查询响应
type UpgradeTargetsResponse struct {
	Wallet string   `json:"wallet"`
	Mints  []string `json:"mints"`
}
