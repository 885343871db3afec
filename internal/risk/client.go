package risk

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"vision/internal/errors"
	"vision/internal/metrics"
	"vision/pkg/models"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// 上游端点名称，用作指标标签
const (
	endpointTxList = "etherscan"
	endpointOFAC   = "ofac"
)

// txlist 固定查询参数
const (
	txListStartBlock = "0"
	txListEndBlock   = "99999999"
	txListPage       = "1"
	txListOffset     = 100
)

// apiClient 上游数据接口客户端
type apiClient struct {
	base    string
	http    *http.Client
	limiter *rate.Limiter
	logger  logrus.FieldLogger
}

func newAPIClient(cfg Config, logger logrus.FieldLogger) *apiClient {
	c := &apiClient{
		base:   cfg.APIBase,
		http:   cfg.HTTPClient,
		logger: logger,
	}
	if cfg.RequestsPerSecond > 0 {
		burst := int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return c
}

// txListURL 构造 txlist 请求地址，参数顺序与上游文档一致
func (c *apiClient) txListURL(address, network string, order models.SortOrder) string {
	params := [][2]string{
		{"module", "account"},
		{"action", "txlist"},
		{"address", address},
		{"startblock", txListStartBlock},
		{"endblock", txListEndBlock},
		{"page", txListPage},
		{"offset", fmt.Sprint(txListOffset)},
		{"sort", string(order)},
		{"network", network},
	}
	return c.base + "/etherscan?" + encodeOrdered(params)
}

// ofacURL 构造 OFAC 查询地址
func (c *apiClient) ofacURL(address, network string) string {
	return c.base + "/ofac?" + encodeOrdered([][2]string{
		{"address", address},
		{"network", network},
	})
}

func encodeOrdered(params [][2]string) string {
	parts := make([]string, 0, len(params))
	for _, p := range params {
		parts = append(parts, url.QueryEscape(p[0])+"="+url.QueryEscape(p[1]))
	}
	return strings.Join(parts, "&")
}

// fetchJSON 发起 GET 请求并解析 JSON 响应体
// 非2xx返回传输错误，响应体不是JSON返回解析错误，均不重试
func (c *apiClient) fetchJSON(ctx context.Context, endpoint, rawURL string, out interface{}) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return errors.WrapError(err, errors.ErrorTypeRateLimit, errors.SeverityLow,
				"RATE_LIMIT_WAIT", "等待限速器失败").WithComponent("risk")
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return errors.NewNetworkError(rawURL, err).WithComponent("risk")
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.UpstreamRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues(endpoint, metrics.StatusBucket(0)).Inc()
		return errors.NewNetworkError(rawURL, err).WithComponent("risk")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	metrics.UpstreamRequestsTotal.WithLabelValues(endpoint, metrics.StatusBucket(resp.StatusCode)).Inc()
	if err != nil {
		return errors.NewNetworkError(rawURL, err).WithComponent("risk")
	}

	c.logger.WithFields(logrus.Fields{
		"url":         rawURL,
		"status_code": resp.StatusCode,
		"duration":    time.Since(start).String(),
		"bytes":       len(body),
	}).Debug("上游请求完成")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.NewTransportError(resp.StatusCode, rawURL, body).WithComponent("risk")
	}

	if !json.Valid(body) {
		return errors.NewParseError(rawURL, body, fmt.Errorf("响应体不是合法JSON")).WithComponent("risk")
	}
	// 合法JSON但结构不符（如顶层为字符串）时按空结果处理
	if err := json.Unmarshal(body, out); err != nil {
		c.logger.WithField("url", rawURL).Debugf("响应结构不符，按空结果处理: %v", err)
	}
	return nil
}

// listTransactions 拉取最多100条交易
func (c *apiClient) listTransactions(ctx context.Context, address, network string, order models.SortOrder) ([]models.Transaction, error) {
	var resp models.TxListResponse
	if err := c.fetchJSON(ctx, endpointTxList, c.txListURL(address, network, order), &resp); err != nil {
		return nil, err
	}
	return resp.Transactions(), nil
}

// checkSanctions 查询单个地址的 OFAC 命中情况
func (c *apiClient) checkSanctions(ctx context.Context, address, network string) (*models.SanctionsResult, error) {
	var result models.SanctionsResult
	if err := c.fetchJSON(ctx, endpointOFAC, c.ofacURL(address, network), &result); err != nil {
		return nil, err
	}
	if result.Hit {
		metrics.SanctionLookupsTotal.WithLabelValues("hit").Inc()
	} else {
		metrics.SanctionLookupsTotal.WithLabelValues("clear").Inc()
	}
	return &result, nil
}
