package main

import (
	"context"
	"flag"

	"vision/internal/api"
	"vision/internal/config"
	"vision/internal/logging"
	"vision/internal/output"
	"vision/internal/risk"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

var (
	configPath = flag.String("config", "configs/config.yaml", "配置文件路径")
	port       = flag.Int("port", 0, "API 服务端口，覆盖配置")
	verbose    = flag.Bool("verbose", false, "详细输出")
)

func main() {
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		logrus.Debug("未找到 .env 文件，使用系统环境变量")
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logrus.Fatalf("加载配置失败: %v", err)
	}
	if *verbose {
		cfg.Logging.Level = "debug"
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}

	logger, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		logrus.Fatalf("创建日志器失败: %v", err)
	}

	publisher, err := output.NewPublisher(cfg.Output, logger)
	if err != nil {
		logger.Fatalf("创建报告发布器失败: %v", err)
	}

	fetcher := risk.NewFetcher(cfg.API.RiskConfig(), logger)
	logger.WithField("api_base", fetcher.APIBase()).Info("风险抓取器已初始化")

	server := api.NewServer(cfg, fetcher, publisher, logger)
	if err := server.Run(context.Background()); err != nil {
		logger.Errorf("服务器异常退出: %v", err)
		return
	}
	logger.Info("服务器已关闭")
}
