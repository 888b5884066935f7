package utils

import (
	"github.com/gagliardetto/solana-go"
)

// IsValidAddress 校验是否为合法的 Solana 地址（base58，32 字节）
func IsValidAddress(addr string) bool {
	if addr == "" {
		return false
	}
	_, err := solana.PublicKeyFromBase58(addr)
	return err == nil
}

// ExplorerTxURL 拼接 explorer 交易链接
func ExplorerTxURL(signature string) string {
	return "https://explorer.solana.com/tx/" + signature + "?cluster=mainnet"
}
