package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/viper"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"BurnUpgrade/internal/db"
	"BurnUpgrade/internal/services"
)

// 离线对账入口：独立重建链上已销毁集合，和数据库记录做差集，打印差异报告
// 只读，不产生任何写入，可随时重跑
func main() {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	if err := viper.ReadInConfig(); err != nil {
		log.Fatal("读取配置失败:", err)
	}

	rpcURL := viper.GetString("solana.rpc_url")
	if rpcURL == "" {
		log.Fatal("solana.rpc_url 未配置")
	}
	collectionStr := viper.GetString("solana.collection_mint")
	collection, err := solana.PublicKeyFromBase58(collectionStr)
	if err != nil {
		log.Fatal("solana.collection_mint 不合法:", err)
	}

	// 对账起始日期（早于该日期的销毁不在范围内）
	cutoff := time.Time{}
	if s := viper.GetString("audit.cutoff_date"); s != "" {
		cutoff, err = time.Parse("2006-01-02", s)
		if err != nil {
			log.Fatal("audit.cutoff_date 格式应为 YYYY-MM-DD:", err)
		}
	}

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		viper.GetString("mysql.user"), viper.GetString("mysql.password"),
		viper.GetString("mysql.host"), viper.GetInt("mysql.port"),
		viper.GetString("mysql.dbname"))
	dbConn, err := gorm.Open(mysql.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatal("MySQL 连接失败:", err)
	}
	store := db.NewStore(dbConn)

	chain := services.NewChainClient(rpcURL)
	auditor := services.NewAuditor(chain, store, collection, cutoff)

	report, err := auditor.Run(context.Background())
	if err != nil {
		log.Fatal("对账失败:", err)
	}

	fmt.Printf("\n===== 对账报告（集合 %s）=====\n", collection.String())
	fmt.Printf("范围内链上销毁: %d  范围外跳过: %d\n\n", report.Checked, report.Skipped)
	for _, e := range report.Entries {
		status := "缺失"
		if e.MatchedBy != "" {
			status = "匹配(" + e.MatchedBy + ")"
		}
		bt := "未知"
		if e.BurnTime != nil {
			bt = e.BurnTime.Format(time.RFC3339)
		}
		fmt.Printf("%-10s mint=%s name=%q sig=%s 销毁时间=%s\n", status, e.Mint, e.Name, e.Signature, bt)
	}

	if len(report.Gaps) == 0 {
		fmt.Println("\n无缺口：所有链上销毁都有对应记录")
		return
	}
	fmt.Printf("\n!!! 发现 %d 个缺口（链上已销毁但无记录，需要人工处理）:\n", len(report.Gaps))
	for _, g := range report.Gaps {
		fmt.Printf("  %s %q sig=%s\n", g.Mint, g.Name, g.Signature)
	}
}
