package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"vision/internal/api"
	"vision/internal/config"
	"vision/internal/graph"
	"vision/internal/logging"
	"vision/internal/output"
	"vision/internal/risk"
	"vision/internal/validation"
	"vision/pkg/models"
)

var (
	configFile string
	verbose    bool
	network    string
	format     string
	apiBase    string
	timeout    time.Duration
)

// app 单次命令执行所需的依赖
type app struct {
	cfg       *config.Config
	logger    *logrus.Logger
	fetcher   *risk.Fetcher
	validator *validation.Validator
	out       *output.WriterOutput
}

func main() {
	rootCmd := &cobra.Command{
		Use:           "vision",
		Short:         "地址风险信号查询工具",
		Long:          `查询地址交易历史和 OFAC 名单，计算账户年龄、扇入扇出、邻居风险和突发异常等启发式风险指标`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "configs/config.yaml", "配置文件路径")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "详细输出")
	rootCmd.PersistentFlags().StringVar(&network, "network", "", "网络 (默认取配置中的 default_network)")
	rootCmd.PersistentFlags().StringVar(&format, "format", "", "输出格式 (json, text)")
	rootCmd.PersistentFlags().StringVar(&apiBase, "api-base", "", "上游接口地址，覆盖配置")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "单次请求超时，覆盖配置")

	rootCmd.AddCommand(
		addressCommand("summary", "地址画像：账户年龄、扇入扇出、OFAC 命中和分类",
			func(ctx context.Context, a *app, q models.AddressQuery) (interface{}, error) {
				return a.fetcher.GetAddressSummary(ctx, q.Address, q.Network)
			}),
		addressCommand("graph", "局部图统计：邻居风险比例和中心性",
			func(ctx context.Context, a *app, q models.AddressQuery) (interface{}, error) {
				return a.fetcher.GetLocalGraphStats(ctx, q.Address, q.Network)
			}),
		addressCommand("anomaly", "按日交易数的突发异常分数",
			func(ctx context.Context, a *app, q models.AddressQuery) (interface{}, error) {
				return a.fetcher.GetAnomalySeries(ctx, q.Address, q.Network)
			}),
		addressCommand("sanctions", "查询 OFAC 制裁名单",
			func(ctx context.Context, a *app, q models.AddressQuery) (interface{}, error) {
				return a.fetcher.CheckSanctions(ctx, q.Address, q.Network)
			}),
		addressCommand("txs", "列出地址最近100条交易",
			func(ctx context.Context, a *app, q models.AddressQuery) (interface{}, error) {
				return a.fetcher.ListTransactions(ctx, q.Address, q.Network, models.SortDesc)
			}),
		reportCommand(),
		classesCommand(),
		serveCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "执行失败: %v\n", err)
		os.Exit(1)
	}
}

// setup 加载 .env 和配置，应用命令行覆盖
func setup() (*app, error) {
	// .env 不存在时忽略
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, fmt.Errorf("加载配置失败: %w", err)
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	if format != "" {
		cfg.Output.Format = format
	}
	if apiBase != "" {
		cfg.API.BaseURL = apiBase
	}
	if timeout > 0 {
		cfg.API.Timeout = timeout.String()
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("创建日志器失败: %w", err)
	}

	return &app{
		cfg:       cfg,
		logger:    logger,
		fetcher:   risk.NewFetcher(cfg.API.RiskConfig(), logger),
		validator: validation.NewValidator(logger, false, cfg.API.Networks),
		out:       output.NewWriterOutput(os.Stdout, cfg.Output.Format, cfg.Output.Pretty),
	}, nil
}

// query 校验命令行地址参数
func (a *app) query(address string) (models.AddressQuery, error) {
	q := models.AddressQuery{Address: address, Network: network}
	result := a.validator.ValidateQuery(q)
	if err := result.Err(); err != nil {
		return q, err
	}
	for _, w := range result.Warnings {
		a.logger.Warn(w)
	}
	return q, nil
}

func addressCommand(use, short string, run func(ctx context.Context, a *app, q models.AddressQuery) (interface{}, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <address>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			q, err := a.query(args[0])
			if err != nil {
				return err
			}
			result, err := run(cmd.Context(), a, q)
			if err != nil {
				return err
			}
			return a.out.Write(result)
		},
	}
}

func reportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "report <address>",
		Short: "生成完整风险报告，启用 Kafka 时同时发布",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			q, err := a.query(args[0])
			if err != nil {
				return err
			}

			out, err := output.NewOutputWithConfig(a.cfg.Output, os.Stdout, a.logger)
			if err != nil {
				return fmt.Errorf("创建输出器失败: %w", err)
			}
			defer out.Close()

			report, err := a.fetcher.BuildReport(cmd.Context(), q.Address, q.Network)
			if err != nil {
				return err
			}
			return out.WriteReport(report)
		},
	}
}

func classesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "classes <result-json> [node-address]",
		Short: "计算图节点的显示类名",
		Example: `  vision classes '{"address":"0xA","risk_score":100}' 0xa
  vision classes '{"score":70}'`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result models.RenderResult
			if err := json.Unmarshal([]byte(args[0]), &result); err != nil {
				return fmt.Errorf("解析风险结果失败: %w", err)
			}
			node := ""
			if len(args) == 2 {
				node = args[1]
			}
			fmt.Fprintln(cmd.OutOrStdout(), graph.NodeClassesFor(&result, node))
			return nil
		},
	}
}

func serveCommand() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "启动 HTTP API 服务",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			if port > 0 {
				a.cfg.Server.Port = port
			}

			publisher, err := output.NewPublisher(a.cfg.Output, a.logger)
			if err != nil {
				return fmt.Errorf("创建报告发布器失败: %w", err)
			}

			server := api.NewServer(a.cfg, a.fetcher, publisher, a.logger)
			return server.Run(cmd.Context())
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "API 服务端口，覆盖配置")
	return cmd
}
