package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/viper"

	"BurnUpgrade/internal/services"
	"BurnUpgrade/utils"
)

// Selections 销毁选择文件：持有人选中的待销毁资产和升级认领配对
type Selections struct {
	Burns []struct {
		MintAddress string `json:"mintAddress"`
		Name        string `json:"name"`
	} `json:"burns"`
	Upgrades []struct {
		BurnedMint  string `json:"burnedMint"`
		UpgradeMint string `json:"upgradeMint"`
		UpgradeName string `json:"upgradeName"`
	} `json:"upgrades"`
}

func main() {
	selectionsPath := flag.String("selections", "selections.json", "销毁选择文件路径")
	flag.Parse()

	// 读取配置
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
	keypairPath := viper.GetString("solana.keypair_path")
	if keypairPath == "" {
		log.Fatal("solana.keypair_path 未配置")
	}
	apiBaseURL := viper.GetString("app.api_base_url")
	if apiBaseURL == "" {
		log.Fatal("app.api_base_url 未配置")
	}
	batchSize := viper.GetInt("app.batch_size")
	if batchSize <= 0 {
		batchSize = 6 // 每笔交易的销毁指令数上限（受交易大小限制）
	}

	// 加载持有人钱包
	wallet, err := solana.PrivateKeyFromSolanaKeygenFile(keypairPath)
	if err != nil {
		log.Fatal("加载钱包失败:", err)
	}
	walletPub := wallet.PublicKey()
	fmt.Printf("钱包: %s\n", walletPub.String())

	// 读取销毁选择
	raw, err := os.ReadFile(*selectionsPath)
	if err != nil {
		log.Fatal("读取选择文件失败:", err)
	}
	var sel Selections
	if err := json.Unmarshal(raw, &sel); err != nil {
		log.Fatal("解析选择文件失败:", err)
	}
	if len(sel.Burns) == 0 {
		log.Fatal("选择文件中没有待销毁资产")
	}

	targets := make([]services.BurnTarget, 0, len(sel.Burns))
	for _, b := range sel.Burns {
		targets = append(targets, services.BurnTarget{
			MintAddress: b.MintAddress,
			DisplayName: b.Name,
		})
	}
	claims := make([]services.UpgradeClaim, 0, len(sel.Upgrades))
	for _, u := range sel.Upgrades {
		claims = append(claims, services.UpgradeClaim{
			BurnedMint:  u.BurnedMint,
			UpgradeMint: u.UpgradeMint,
			UpgradeName: u.UpgradeName,
		})
	}

	chain := services.NewChainClient(rpcURL)
	recorder := services.NewRecorder(services.NewAPIRecordSink(apiBaseURL))

	// 签名回调：这里直接用本地 keypair 签；接钱包适配器时换掉这个闭包即可
	signTx := func(tx *solana.Transaction) error {
		_, err := tx.Sign(func(pk solana.PublicKey) *solana.PrivateKey {
			if pk.Equals(walletPub) {
				return &wallet
			}
			return nil
		})
		return err
	}

	flow := services.NewBurnFlow(chain, recorder, walletPub, signTx, batchSize)
	flow.OnProgress(func(burned, total int) {
		fmt.Printf("进度: 已销毁 %d/%d\n", burned, total)
	})

	result, err := flow.Run(context.Background(), targets, claims)
	if result != nil {
		fmt.Printf("\n===== 销毁结果 =====\n")
		fmt.Printf("请求: %d  已销毁: %d  已记录: %d\n", result.Total, result.Burned, result.Recorded)
		for _, o := range result.Outcomes {
			fmt.Printf("交易 %s (%d 个资产)\n  %s\n", o.Signature, len(o.Burned), utils.ExplorerTxURL(o.Signature))
		}
	}
	if err != nil {
		// 已销毁但未记录是最严重的情况，签名已打印，供人工对账
		log.Fatal("销毁流程失败: ", err)
	}
	fmt.Println("全部完成")
}
