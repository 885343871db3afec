package api

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"vision/internal/config"
	"vision/internal/errors"
	"vision/pkg/models"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAddr = "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed"

// stubService 固定返回值的 RiskService
type stubService struct {
	err      error
	networks []string
}

func (s *stubService) record(network string) {
	s.networks = append(s.networks, network)
}

func (s *stubService) GetAddressSummary(_ context.Context, _, network string) (*models.AddressSummary, error) {
	s.record(network)
	if s.err != nil {
		return nil, s.err
	}
	return &models.AddressSummary{Category: models.CategoryWallet, FanInZ: -5.0 / 3.0, FanOutZ: -5.0 / 3.0}, nil
}

func (s *stubService) GetLocalGraphStats(_ context.Context, _, network string) (*models.GraphStats, error) {
	s.record(network)
	if s.err != nil {
		return nil, s.err
	}
	return &models.GraphStats{CentralityZ: -2, ShortestPathToSanctioned: 3}, nil
}

func (s *stubService) GetAnomalySeries(_ context.Context, _, network string) (*models.AnomalySeries, error) {
	s.record(network)
	if s.err != nil {
		return nil, s.err
	}
	return &models.AnomalySeries{BurstZ: 1.5}, nil
}

func (s *stubService) CheckSanctions(_ context.Context, _, network string) (*models.SanctionsResult, error) {
	s.record(network)
	if s.err != nil {
		return nil, s.err
	}
	return &models.SanctionsResult{Hit: true}, nil
}

func (s *stubService) BuildReport(_ context.Context, address, network string) (*models.RiskReport, error) {
	s.record(network)
	if s.err != nil {
		return nil, s.err
	}
	return &models.RiskReport{
		ID:          "report-1",
		Address:     address,
		Network:     network,
		Summary:     &models.AddressSummary{Category: models.CategoryWallet},
		GraphStats:  &models.GraphStats{ShortestPathToSanctioned: 3},
		Anomaly:     &models.AnomalySeries{},
		GeneratedAt: time.Now().UTC(),
	}, nil
}

type recordingOutput struct {
	reports []*models.RiskReport
	err     error
}

func (o *recordingOutput) WriteReport(r *models.RiskReport) error {
	o.reports = append(o.reports, r)
	return o.err
}

func (o *recordingOutput) Close() error { return nil }

func newTestServer(t *testing.T, svc RiskService, out *recordingOutput) (*Server, *gin.Engine) {
	t.Helper()
	cfg := config.GetDefaultConfig()
	cfg.Server.Mode = gin.TestMode
	logger, _ := test.NewNullLogger()

	var s *Server
	if out != nil {
		s = NewServer(cfg, svc, out, logger)
	} else {
		s = NewServer(cfg, svc, nil, logger)
	}
	return s, s.Router()
}

func do(router http.Handler, method, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestHealthCheck(t *testing.T) {
	_, router := newTestServer(t, &stubService{}, nil)

	w := do(router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", decode(t, w)["status"])
}

func TestAddressEndpoints(t *testing.T) {
	svc := &stubService{}
	_, router := newTestServer(t, svc, nil)

	w := do(router, http.MethodGet, "/api/v1/address/"+testAddr+"/summary", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Nil(t, body["ageDays"])
	assert.Equal(t, "wallet", body["category"])

	w = do(router, http.MethodGet, "/api/v1/address/"+testAddr+"/graph?network=bsc", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, -2.0, decode(t, w)["centralityZ"])

	w = do(router, http.MethodGet, "/api/v1/address/"+testAddr+"/anomaly", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1.5, decode(t, w)["burstZ"])

	w = do(router, http.MethodGet, "/api/v1/address/"+testAddr+"/sanctions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["hit"])

	assert.Equal(t, []string{"", "bsc", "", ""}, svc.networks)
}

func TestAddressEndpoints_Validation(t *testing.T) {
	svc := &stubService{}
	s, router := newTestServer(t, svc, nil)

	w := do(router, http.MethodGet, "/api/v1/address/0x123/summary", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_ADDRESS", decode(t, w)["code"])

	w = do(router, http.MethodGet, "/api/v1/address/"+testAddr+"/summary?network=solana", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "UNSUPPORTED_NETWORK", decode(t, w)["code"])

	assert.Empty(t, svc.networks)

	// 每个失败请求只记录一次
	stats := s.errorHandler.GetStats()
	assert.Equal(t, 2, stats.TotalErrors)
	assert.Equal(t, 2, stats.ErrorsByComponent["validation"])
}

func TestAddressEndpoints_UpstreamErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
		want string
	}{
		{
			name: "transport",
			err:  errors.NewTransportError(500, "https://api.test/etherscan?x=1", []byte("boom")),
			code: http.StatusBadGateway,
			want: "HTTP 500",
		},
		{
			name: "parse",
			err:  errors.NewParseError("https://api.test/ofac", []byte("<html>"), stderrors.New("bad")),
			code: http.StatusBadGateway,
			want: "Invalid JSON",
		},
		{
			name: "unknown",
			err:  stderrors.New("unexpected"),
			code: http.StatusInternalServerError,
			want: "未知错误",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, router := newTestServer(t, &stubService{err: tt.err}, nil)

			w := do(router, http.MethodGet, "/api/v1/address/"+testAddr+"/graph", nil)
			assert.Equal(t, tt.code, w.Code)
			assert.Contains(t, decode(t, w)["error"], tt.want)
		})
	}
}

func TestReportEndpoint_Publishes(t *testing.T) {
	out := &recordingOutput{}
	_, router := newTestServer(t, &stubService{}, out)

	w := do(router, http.MethodGet, "/api/v1/address/"+testAddr+"/report?network=polygon", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "true", w.Header().Get("X-Report-Published"))
	require.Len(t, out.reports, 1)
	assert.Equal(t, "polygon", out.reports[0].Network)
	assert.Equal(t, "report-1", decode(t, w)["id"])
}

func TestReportEndpoint_PublishFailure(t *testing.T) {
	out := &recordingOutput{err: errors.ErrKafkaProduceFailed}
	s, router := newTestServer(t, &stubService{}, out)

	w := do(router, http.MethodGet, "/api/v1/address/"+testAddr+"/report", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "false", w.Header().Get("X-Report-Published"))
	assert.Equal(t, 1, s.errorHandler.GetStats().ErrorsByComponent["output"])
}

func TestReportEndpoint_NoPublisher(t *testing.T) {
	_, router := newTestServer(t, &stubService{}, nil)

	w := do(router, http.MethodGet, "/api/v1/address/"+testAddr+"/report", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("X-Report-Published"))
}

func TestClassesEndpoint(t *testing.T) {
	_, router := newTestServer(t, &stubService{}, nil)

	tests := []struct {
		body string
		want string
	}{
		{`{"result":{"address":"0xA","risk_score":100},"node":"0xa"}`, "node halo halo-red band-high"},
		{`{"result":{"address":"0xA","score":70},"node":"0xB"}`, "node band-elevated"},
		{`{"result":{},"node":""}`, "node band-moderate"},
		{`{"node":"0xa"}`, "node band-moderate"},
	}
	for _, tt := range tests {
		w := do(router, http.MethodPost, "/api/v1/classes", []byte(tt.body))
		require.Equal(t, http.StatusOK, w.Code, tt.body)
		assert.Equal(t, tt.want, decode(t, w)["classes"], tt.body)
	}

	w := do(router, http.MethodPost, "/api/v1/classes", []byte(`{"result":{"score":150}}`))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["warnings"], 1)

	w = do(router, http.MethodPost, "/api/v1/classes", []byte(`not json`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStatsEndpoint(t *testing.T) {
	_, router := newTestServer(t, &stubService{}, nil)

	do(router, http.MethodGet, "/api/v1/address/bad/summary", nil)
	w := do(router, http.MethodGet, "/api/v1/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, 1.0, body["total_errors"])
	assert.Equal(t, 1.0, body["errors_by_type"].(map[string]interface{})["Validation"])
}

func TestLogsEndpoint(t *testing.T) {
	cfg := config.GetDefaultConfig()
	cfg.Server.Mode = gin.TestMode
	logger, _ := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	s := NewServer(cfg, &stubService{}, nil, logger)
	router := s.Router()

	logger.Info("first")
	logger.Warn("second")
	logger.Debug("ignored")

	w := do(router, http.MethodGet, "/api/v1/logs?level=warning", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, 1.0, body["total"])

	w = do(router, http.MethodGet, "/api/v1/logs", nil)
	logs := decode(t, w)["logs"].([]interface{})
	require.Len(t, logs, 2)
	assert.Equal(t, "second", logs[0].(map[string]interface{})["message"])

	w = do(router, http.MethodDelete, "/api/v1/logs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	_, total := s.logBuffer.Page("", 1, 10)
	assert.Equal(t, 0, total)
}

func TestCORS(t *testing.T) {
	_, router := newTestServer(t, &stubService{}, nil)

	w := do(router, http.MethodOptions, "/api/v1/classes", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	_, router := newTestServer(t, &stubService{}, nil)

	do(router, http.MethodGet, "/health", nil)
	w := do(router, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "vision_http_requests_total"))
}

func TestStopWithoutStart(t *testing.T) {
	s, _ := newTestServer(t, &stubService{}, nil)
	assert.NoError(t, s.Stop(context.Background()))
}
