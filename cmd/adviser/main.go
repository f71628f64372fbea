package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"consensus-trader/internal/advisor"
	"consensus-trader/internal/app"
	"consensus-trader/internal/config"
	"consensus-trader/internal/exchange"
	"consensus-trader/internal/journal"
	"consensus-trader/internal/log"
	"consensus-trader/internal/market"
	"consensus-trader/internal/store"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "配置文件路径，默认使用 configs/config.yaml")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	logger, err := log.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer func(logger *zap.Logger) {
		_ = logger.Sync()
	}(logger)

	sqliteStore, err := store.NewSQLite(cfg.Database)
	if err != nil {
		logger.Error("初始化数据库失败", zap.Error(err))
		os.Exit(1)
	}
	defer func() {
		if closeErr := sqliteStore.Close(); closeErr != nil {
			logger.Warn("关闭数据库失败", zap.Error(closeErr))
		}
	}()

	journalSvc, err := journal.NewService(sqliteStore, logger)
	if err != nil {
		logger.Error("初始化事件日志失败", zap.Error(err))
		os.Exit(1)
	}

	client := exchange.NewClient(cfg.Exchange, logger)
	provider := market.NewProvider(client, logger)

	council, err := advisor.NewCouncil(cfg.Advisors, journalSvc, logger)
	if err != nil {
		logger.Error("初始化建议源集合失败", zap.Error(err))
		os.Exit(1)
	}

	server := app.NewAdviceServer(cfg, provider, council, journalSvc, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Run(ctx); err != nil {
		logger.Error("服务运行异常", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("服务已安全退出")
}
