package main

import (
	"fmt"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"BurnUpgrade/internal/db"
	"BurnUpgrade/internal/handler"
	"BurnUpgrade/internal/services"
)

type Config struct {
	MySQL struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		DBName   string `mapstructure:"dbname"`
	} `mapstructure:"mysql"`
	Solana struct {
		RPCURL         string `mapstructure:"rpc_url"`
		CollectionMint string `mapstructure:"collection_mint"` // 允许销毁的集合地址
	} `mapstructure:"solana"`
	App struct {
		Port           int      `mapstructure:"port"`
		AllowedOrigins []string `mapstructure:"allowed_origins"`
		DevMode        bool     `mapstructure:"dev_mode"` // 开发模式：500 返回真实错误
	} `mapstructure:"app"`
}

func main() {
	// 读取配置
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	if err := viper.ReadInConfig(); err != nil {
		log.Fatal("读取配置失败:", err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		log.Fatal("解析配置失败:", err)
	}

	// 连接 MySQL，构造 Store（连接在这里建一次，显式传给需要的组件）
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.MySQL.User, cfg.MySQL.Password, cfg.MySQL.Host, cfg.MySQL.Port, cfg.MySQL.DBName)
	dbConn, err := gorm.Open(mysql.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatal("MySQL 连接失败:", err)
	}

	store := db.NewStore(dbConn)

	// 表结构和唯一索引迁移：启动时执行一次，可重复
	if err := store.Migrate(); err != nil {
		log.Fatal("表迁移失败:", err)
	}
	fmt.Println("数据库初始化完成")

	// 链上客户端（提交接口的交易复核用）
	if cfg.Solana.RPCURL == "" {
		log.Fatal("solana.rpc_url 未配置")
	}
	chain := services.NewChainClient(cfg.Solana.RPCURL)

	// 初始化 Gin
	r := gin.Default()
	h := handler.New(store, chain, cfg.App.DevMode)
	handler.RegisterRoutes(r, h, cfg.App.AllowedOrigins)

	// 启动服务器
	port := fmt.Sprintf(":%d", cfg.App.Port)
	fmt.Printf("服务器启动于端口 %s\n", port)
	if err := r.Run(port); err != nil {
		log.Fatal("Gin 服务器启动失败:", err)
	}
}
