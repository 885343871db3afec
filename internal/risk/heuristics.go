package risk

import (
	"math"
	"regexp"
	"strings"
	"time"

	"vision/pkg/models"
)

// 启发式参数。均值和标准差是假设的固定值，不来自真实分布
const (
	fanWindow      = 50
	categoryWindow = 100

	fanMean        = 5.0
	fanStdDev      = 3.0
	centralityMean = 8.0
	centralityStd  = 4.0

	// 风险资金流占比按邻居风险比例的固定权重折算
	riskyFlowWeight = 0.7

	// 未实现的指标，保留为显式占位值
	placeholderMixerTaint           = 0.0
	placeholderShortestPathSanction = 3
)

var exchangeLabel = regexp.MustCompile(`(?i)binance|kraken|coinbase|exchange`)

// zScore 按固定均值和标准差归一化
func zScore(v, mean, stdDev float64) float64 {
	return (v - mean) / stdDev
}

// tail 取最后 n 条
func tail(txs []models.Transaction, n int) []models.Transaction {
	if len(txs) <= n {
		return txs
	}
	return txs[len(txs)-n:]
}

// accountAgeDays 按第一条交易计算账户年龄（天），无交易或时间戳为0时返回 nil
func accountAgeDays(txs []models.Transaction, now time.Time) *float64 {
	if len(txs) == 0 {
		return nil
	}
	firstTs := txs[0].UnixSeconds()
	if firstTs == 0 {
		return nil
	}
	elapsed := float64(now.UnixMilli()-firstTs*1000) / float64(24*time.Hour/time.Millisecond)
	age := math.Max(0, elapsed)
	return &age
}

// fanZScores 最后50条交易中不同发送方/接收方数量的 z 值
func fanZScores(txs []models.Transaction) (fanInZ, fanOutZ float64) {
	senders := make(map[string]struct{})
	receivers := make(map[string]struct{})
	window := tail(txs, fanWindow)
	for i := range window {
		t := &window[i]
		if t.From != "" {
			senders[t.SenderKey()] = struct{}{}
		}
		if t.To != "" {
			receivers[t.ReceiverKey()] = struct{}{}
		}
	}
	return zScore(float64(len(senders)), fanMean, fanStdDev),
		zScore(float64(len(receivers)), fanMean, fanStdDev)
}

// classifyCategory 标签或方法名包含交易所关键字时标记为未验证交易所
func classifyCategory(txs []models.Transaction) string {
	for _, t := range tail(txs, categoryWindow) {
		if exchangeLabel.MatchString(t.Labels()) {
			return models.CategoryExchangeUnverified
		}
	}
	return models.CategoryWallet
}

// neighborSet 去重后的对手方地址（小写，按首次出现顺序），不含查询地址本身
func neighborSet(txs []models.Transaction, self string) []string {
	selfKey := strings.ToLower(self)
	seen := make(map[string]struct{})
	neighbors := make([]string, 0)
	add := func(addr string) {
		if addr == "" || addr == selfKey {
			return
		}
		if _, ok := seen[addr]; ok {
			return
		}
		seen[addr] = struct{}{}
		neighbors = append(neighbors, addr)
	}
	for i := range txs {
		if txs[i].From != "" {
			add(txs[i].SenderKey())
		}
		if txs[i].To != "" {
			add(txs[i].ReceiverKey())
		}
	}
	return neighbors
}

// graphStats 根据邻居数量与命中数计算局部图统计
func graphStats(neighborCount, riskyCount int) *models.GraphStats {
	ratio := 0.0
	if neighborCount > 0 {
		ratio = float64(riskyCount) / float64(neighborCount)
	}
	return &models.GraphStats{
		RiskyNeighborRatio:       ratio,
		ShortestPathToSanctioned: placeholderShortestPathSanction,
		CentralityZ:              zScore(float64(neighborCount), centralityMean, centralityStd),
		RiskyFlowRatio:           ratio * riskyFlowWeight,
	}
}

// burstZ 按 UTC 自然日分桶计数。last 取插入顺序中最后一个桶：
// 输入按时间倒序时它通常是最早的一天，不是最近一天。
// 时间戳缺失或无法解析的交易计入 1970-01-01 桶
func burstZ(txs []models.Transaction) float64 {
	index := make(map[string]int)
	counts := make([]int, 0)
	for i := range txs {
		day := txs[i].Day()
		pos, ok := index[day]
		if !ok {
			pos = len(counts)
			index[day] = pos
			counts = append(counts, 0)
		}
		counts[pos]++
	}

	sum := 0
	for _, c := range counts {
		sum += c
	}
	denom := len(counts)
	if denom == 0 {
		denom = 1
	}
	mean := float64(sum) / float64(denom)

	last := 0.0
	if len(counts) > 0 {
		last = float64(counts[len(counts)-1])
	}

	scaleBase := mean
	if scaleBase == 0 {
		scaleBase = 1
	}
	return (last - mean) / math.Max(1, math.Sqrt(scaleBase))
}
