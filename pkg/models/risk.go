package models

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"
)

// DefaultNetwork 未指定网络时使用的链标识
const DefaultNetwork = "eth"

// 地址分类
const (
	CategoryWallet             = "wallet"
	CategoryExchangeUnverified = "exchange_unverified"
)

// AddressQuery 单次查询参数
type AddressQuery struct {
	Address string `json:"address"`
	Network string `json:"network"`
}

// Flag 按宽松真值语义解析的布尔字段：
// false、null、0、"" 为假，其余 JSON 值为真
type Flag bool

// UnmarshalJSON 实现 json.Unmarshaler
func (f *Flag) UnmarshalJSON(data []byte) error {
	*f = Flag(truthy(data))
	return nil
}

func truthy(data []byte) bool {
	raw := bytes.TrimSpace(data)
	switch {
	case len(raw) == 0:
		return false
	case bytes.Equal(raw, []byte("null")), bytes.Equal(raw, []byte("false")):
		return false
	case raw[0] == '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return false
		}
		return s != ""
	case raw[0] == '-' || (raw[0] >= '0' && raw[0] <= '9'):
		n, err := strconv.ParseFloat(string(raw), 64)
		return err == nil && n != 0
	default:
		return true
	}
}

// SanctionsResult OFAC 查询结果
type SanctionsResult struct {
	Hit Flag `json:"hit"`
}

// AddressSummary 地址画像
type AddressSummary struct {
	AgeDays      *float64 `json:"ageDays"`
	Category     string   `json:"category"`
	SanctionHits bool     `json:"sanctionHits"`
	MixerTaint   float64  `json:"mixerTaint"`
	FanInZ       float64  `json:"fanInZ"`
	FanOutZ      float64  `json:"fanOutZ"`
}

// GraphStats 局部图统计
type GraphStats struct {
	RiskyNeighborRatio       float64 `json:"riskyNeighborRatio"`
	ShortestPathToSanctioned int     `json:"shortestPathToSanctioned"`
	CentralityZ              float64 `json:"centralityZ"`
	RiskyFlowRatio           float64 `json:"riskyFlowRatio"`
}

// AnomalySeries 异常时间序列指标
type AnomalySeries struct {
	BurstZ float64 `json:"burstZ"`
}

// RiskReport 单个地址的完整风险报告
type RiskReport struct {
	ID          string          `json:"id"`
	Address     string          `json:"address"`
	Network     string          `json:"network"`
	Summary     *AddressSummary `json:"summary"`
	GraphStats  *GraphStats     `json:"graphStats"`
	Anomaly     *AnomalySeries  `json:"anomaly"`
	GeneratedAt time.Time       `json:"generatedAt"`
}

// RenderResult 节点渲染输入
type RenderResult struct {
	Address      string   `json:"address,omitempty"`
	Block        bool     `json:"block,omitempty"`
	RiskScore    *float64 `json:"risk_score,omitempty"`
	Score        *float64 `json:"score,omitempty"`
	SanctionHits bool     `json:"sanctionHits,omitempty"`
}

// UnmarshalJSON 宽松解析：非数值的分数视为缺失，布尔字段按真值语义解析
func (r *RenderResult) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	*r = RenderResult{}
	if raw, ok := fields["address"]; ok {
		var addr string
		if err := json.Unmarshal(raw, &addr); err == nil {
			r.Address = addr
		}
	}
	r.Block = truthy(fields["block"])
	r.SanctionHits = truthy(fields["sanctionHits"])
	r.RiskScore = number(fields["risk_score"])
	r.Score = number(fields["score"])
	return nil
}

func number(raw json.RawMessage) *float64 {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil
	}
	return &n
}

// Float64 返回指针形式的浮点数
func Float64(v float64) *float64 {
	return &v
}
