package risk

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"vision/internal/logging"
	"vision/pkg/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Fetcher 风险抓取器：拉取交易历史和 OFAC 结果并计算启发式指标。
// 调用之间不保留状态，可并发使用
type Fetcher struct {
	cfg    Config
	client *apiClient
	logger logrus.FieldLogger
	now    func() time.Time
}

// NewFetcher 创建风险抓取器
func NewFetcher(cfg Config, logger logrus.FieldLogger) *Fetcher {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	cfg = cfg.withDefaults()
	return &Fetcher{
		cfg:    cfg,
		client: newAPIClient(cfg, logger),
		logger: logger,
		now:    time.Now,
	}
}

// APIBase 实际使用的上游地址
func (f *Fetcher) APIBase() string {
	return f.cfg.APIBase
}

// network 空网络回落到默认值
func (f *Fetcher) network(network string) string {
	network = strings.TrimSpace(network)
	if network == "" {
		return f.cfg.DefaultNetwork
	}
	return network
}

// ListTransactions 拉取地址最多100条交易，order 为 asc 或 desc
func (f *Fetcher) ListTransactions(ctx context.Context, address, network string, order models.SortOrder) ([]models.Transaction, error) {
	if order != models.SortDesc {
		order = models.SortAsc
	}
	return f.client.listTransactions(ctx, address, f.network(network), order)
}

// CheckSanctions 查询地址是否命中 OFAC 名单
func (f *Fetcher) CheckSanctions(ctx context.Context, address, network string) (*models.SanctionsResult, error) {
	return f.client.checkSanctions(ctx, address, f.network(network))
}

// GetAddressSummary 地址画像：账户年龄、扇入扇出、OFAC 命中和分类
func (f *Fetcher) GetAddressSummary(ctx context.Context, address, network string) (*models.AddressSummary, error) {
	network = f.network(network)
	log := logging.NewRequestLogger(f.logger, "summary", address, network)

	txs, err := f.client.listTransactions(ctx, address, network, models.SortAsc)
	if err != nil {
		return nil, err
	}

	summary := &models.AddressSummary{
		Category:   models.CategoryWallet,
		MixerTaint: placeholderMixerTaint,
	}
	summary.AgeDays = accountAgeDays(txs, f.now())
	summary.FanInZ, summary.FanOutZ = fanZScores(txs)

	sanctions, err := f.client.checkSanctions(ctx, address, network)
	if err != nil {
		return nil, err
	}
	summary.SanctionHits = bool(sanctions.Hit)

	summary.Category = classifyCategory(txs)

	log.WithFields(logrus.Fields{
		"tx_count":      len(txs),
		"category":      summary.Category,
		"sanction_hits": summary.SanctionHits,
	}).Info("地址画像计算完成")
	return summary, nil
}

// GetLocalGraphStats 局部图统计：逐个查询邻居的 OFAC 状态，任一查询失败则整体失败
func (f *Fetcher) GetLocalGraphStats(ctx context.Context, address, network string) (*models.GraphStats, error) {
	network = f.network(network)
	log := logging.NewRequestLogger(f.logger, "graph_stats", address, network)

	txs, err := f.client.listTransactions(ctx, address, network, models.SortDesc)
	if err != nil {
		return nil, err
	}

	neighbors := neighborSet(txs, address)
	risky, err := f.countSanctioned(ctx, neighbors, network)
	if err != nil {
		return nil, err
	}

	stats := graphStats(len(neighbors), risky)
	log.WithFields(logrus.Fields{
		"neighbors": len(neighbors),
		"risky":     risky,
	}).Info("局部图统计计算完成")
	return stats, nil
}

// countSanctioned 统计命中 OFAC 的邻居数
func (f *Fetcher) countSanctioned(ctx context.Context, neighbors []string, network string) (int, error) {
	if f.cfg.NeighborConcurrency <= 1 {
		risky := 0
		for _, n := range neighbors {
			res, err := f.client.checkSanctions(ctx, n, network)
			if err != nil {
				return 0, err
			}
			if res.Hit {
				risky++
			}
		}
		return risky, nil
	}

	// 并发查询，第一个错误会取消其余请求并作为整体结果返回
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.cfg.NeighborConcurrency)
	var risky int64
	for _, n := range neighbors {
		n := n
		g.Go(func() error {
			res, err := f.client.checkSanctions(gctx, n, network)
			if err != nil {
				return err
			}
			if res.Hit {
				atomic.AddInt64(&risky, 1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return int(risky), nil
}

// GetAnomalySeries 按日计数的突发异常分数
func (f *Fetcher) GetAnomalySeries(ctx context.Context, address, network string) (*models.AnomalySeries, error) {
	network = f.network(network)

	txs, err := f.client.listTransactions(ctx, address, network, models.SortDesc)
	if err != nil {
		return nil, err
	}

	series := &models.AnomalySeries{BurstZ: burstZ(txs)}
	logging.NewRequestLogger(f.logger, "anomaly", address, network).
		WithField("burst_z", series.BurstZ).Info("异常分数计算完成")
	return series, nil
}

// BuildReport 依次计算三类指标并汇总为报告，任一步失败则整体失败
func (f *Fetcher) BuildReport(ctx context.Context, address, network string) (*models.RiskReport, error) {
	network = f.network(network)

	summary, err := f.GetAddressSummary(ctx, address, network)
	if err != nil {
		return nil, err
	}
	stats, err := f.GetLocalGraphStats(ctx, address, network)
	if err != nil {
		return nil, err
	}
	anomaly, err := f.GetAnomalySeries(ctx, address, network)
	if err != nil {
		return nil, err
	}

	return &models.RiskReport{
		ID:          uuid.NewString(),
		Address:     address,
		Network:     network,
		Summary:     summary,
		GraphStats:  stats,
		Anomaly:     anomaly,
		GeneratedAt: f.now().UTC(),
	}, nil
}
