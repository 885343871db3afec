package risk

import (
	"net/http"
	"strings"
	"time"

	"vision/pkg/models"
)

// DefaultAPIBase 未配置时使用的上游接口地址
const DefaultAPIBase = "https://xwalletv1dot2.agedotcom.workers.dev"

// 默认请求超时
const DefaultTimeout = 15 * time.Second

// Config 风险抓取器配置，构造时显式传入
type Config struct {
	// APIBase 上游接口地址，末尾的 / 会被去掉
	APIBase string
	// Timeout 单次 HTTP 请求超时
	Timeout time.Duration
	// DefaultNetwork 调用方未指定网络时使用
	DefaultNetwork string
	// NeighborConcurrency 邻居 OFAC 查询的最大并发数，<=1 时逐个查询
	NeighborConcurrency int
	// RequestsPerSecond 客户端限速，0 表示不限速
	RequestsPerSecond float64
	// HTTPClient 自定义 HTTP 客户端，为空时按 Timeout 创建
	HTTPClient *http.Client
}

// withDefaults 补全缺省值
func (c Config) withDefaults() Config {
	c.APIBase = strings.TrimSpace(c.APIBase)
	if c.APIBase == "" {
		c.APIBase = DefaultAPIBase
	}
	c.APIBase = strings.TrimSuffix(c.APIBase, "/")

	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.DefaultNetwork == "" {
		c.DefaultNetwork = models.DefaultNetwork
	}
	if c.NeighborConcurrency < 1 {
		c.NeighborConcurrency = 1
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	return c
}
