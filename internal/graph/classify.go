package graph

import (
	"strings"

	"vision/pkg/models"
)

// 节点显示类名
const (
	ClassNode         = "node"
	ClassHalo         = "halo"
	ClassHaloRed      = "halo-red"
	ClassBandHigh     = "band-high"
	ClassBandElevated = "band-elevated"
	ClassBandModerate = "band-moderate"
)

// 分数分档阈值
const (
	blockedRiskScore = 100.0
	highScore        = 80.0
	elevatedScore    = 60.0
)

// NodeClassesFor 根据风险结果和节点地址生成空格分隔的类名。
// 顺序固定为 node [halo [halo-red]] band-*，result 为 nil 时按空结果处理
func NodeClassesFor(result *models.RenderResult, nodeAddress string) string {
	if result == nil {
		result = &models.RenderResult{}
	}

	classes := []string{ClassNode}
	blocked := IsBlocked(result)

	resultAddr := strings.ToLower(result.Address)
	nodeAddr := strings.ToLower(nodeAddress)
	if resultAddr != "" && nodeAddr != "" && resultAddr == nodeAddr {
		classes = append(classes, ClassHalo)
		if blocked {
			classes = append(classes, ClassHaloRed)
		}
	}

	classes = append(classes, band(blocked, EffectiveScore(result)))
	return strings.Join(classes, " ")
}

// IsBlocked block 为真、risk_score 恰为 100 或命中制裁名单
func IsBlocked(result *models.RenderResult) bool {
	if result == nil {
		return false
	}
	return result.Block ||
		(result.RiskScore != nil && *result.RiskScore == blockedRiskScore) ||
		result.SanctionHits
}

// EffectiveScore 优先 risk_score，其次 score，都缺失时为 0
func EffectiveScore(result *models.RenderResult) float64 {
	switch {
	case result == nil:
		return 0
	case result.RiskScore != nil:
		return *result.RiskScore
	case result.Score != nil:
		return *result.Score
	default:
		return 0
	}
}

func band(blocked bool, score float64) string {
	switch {
	case blocked || score >= highScore:
		return ClassBandHigh
	case score >= elevatedScore:
		return ClassBandElevated
	default:
		return ClassBandModerate
	}
}
