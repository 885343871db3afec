package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"vision/internal/config"
	"vision/internal/errors"
	"vision/internal/graph"
	"vision/internal/logging"
	"vision/internal/metrics"
	"vision/internal/output"
	"vision/internal/shutdown"
	"vision/internal/validation"
	"vision/pkg/models"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// RiskService 风险查询服务，由 risk.Fetcher 实现
type RiskService interface {
	GetAddressSummary(ctx context.Context, address, network string) (*models.AddressSummary, error)
	GetLocalGraphStats(ctx context.Context, address, network string) (*models.GraphStats, error)
	GetAnomalySeries(ctx context.Context, address, network string) (*models.AnomalySeries, error)
	CheckSanctions(ctx context.Context, address, network string) (*models.SanctionsResult, error)
	BuildReport(ctx context.Context, address, network string) (*models.RiskReport, error)
}

// Server API服务器
type Server struct {
	config       *config.Config
	service      RiskService
	outputter    output.Output
	validator    *validation.Validator
	errorHandler *errors.ErrorHandler
	logger       *logrus.Logger
	logBuffer    *LogBuffer
	server       *http.Server
	startedAt    time.Time
	mu           sync.Mutex
}

// classesRequest POST /api/v1/classes 请求体
type classesRequest struct {
	Result *models.RenderResult `json:"result"`
	Node   string               `json:"node"`
}

// NewServer 创建API服务器，out 为空时报告接口不发布
func NewServer(cfg *config.Config, service RiskService, out output.Output, logger *logrus.Logger) *Server {
	if cfg == nil {
		cfg = config.GetDefaultConfig()
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	logBuffer := NewLogBuffer(1000)
	logger.AddHook(NewLogHook(logBuffer))

	return &Server{
		config:       cfg,
		service:      service,
		outputter:    out,
		validator:    validation.NewValidator(logger, false, cfg.API.Networks),
		errorHandler: errors.NewErrorHandler(logger),
		logger:       logger,
		logBuffer:    logBuffer,
		startedAt:    time.Now(),
	}
}

// Router 构建路由
func (s *Server) Router() *gin.Engine {
	switch s.config.Server.Mode {
	case gin.DebugMode, gin.ReleaseMode, gin.TestMode:
		gin.SetMode(s.config.Server.Mode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(s.requestLogger())
	router.Use(metrics.Middleware())
	if s.config.Server.EnableCORS {
		router.Use(cors())
	}

	s.setupRoutes(router)
	return router
}

// Start 启动API服务器，阻塞直到服务器关闭
func (s *Server) Start() error {
	read, write := s.config.Server.ServerTimeouts()

	s.mu.Lock()
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Server.Port),
		Handler:      s.Router(),
		ReadTimeout:  read,
		WriteTimeout: write,
	}
	srv := s.server
	s.mu.Unlock()

	s.logger.Infof("API服务器启动在端口 %d", s.config.Server.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop 停止API服务器，等待进行中的请求完成
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	s.logger.Info("API服务器正在关闭")
	return srv.Shutdown(ctx)
}

// Run 启动服务，收到停机信号或 ctx 结束后依次关闭服务和输出器。
// 服务启动失败时直接返回该错误
func (s *Server) Run(ctx context.Context) error {
	gs := shutdown.NewGracefulShutdown(shutdown.DefaultTimeout, s.logger)
	gs.Register("http_server", shutdown.OrderStopAcceptingRequests, s.Stop)
	if s.outputter != nil {
		gs.Register("report_output", shutdown.OrderFlushProducers, func(context.Context) error {
			return s.outputter.Close()
		})
	}

	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	serveErr := make(chan error, 1)
	go func() { serveErr <- s.Start() }()

	shutdownErr := make(chan error, 1)
	go func() { shutdownErr <- gs.WaitForSignal(waitCtx) }()

	select {
	case err := <-serveErr:
		cancel()
		<-shutdownErr
		return err
	case err := <-shutdownErr:
		<-serveErr
		return err
	}
}

// setupRoutes 设置路由
func (s *Server) setupRoutes(router *gin.Engine) {
	router.GET("/health", s.healthCheck)
	router.GET("/metrics", metrics.Handler())

	api := router.Group("/api/v1")
	{
		address := api.Group("/address/:address")
		address.GET("/summary", s.getSummary)
		address.GET("/graph", s.getGraphStats)
		address.GET("/anomaly", s.getAnomaly)
		address.GET("/sanctions", s.getSanctions)
		address.GET("/report", s.getReport)

		api.POST("/classes", s.postClasses)

		api.GET("/stats", s.getStats)
		api.GET("/logs", s.getLogs)
		api.DELETE("/logs", s.clearLogs)
	}
}

// requestLogger 记录每个请求
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log := logging.NewHTTPLogger(s.logger, c.Request.Method, c.Request.URL.Path).WithFields(logrus.Fields{
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
			"client":   c.ClientIP(),
		})
		if c.Writer.Status() >= http.StatusInternalServerError {
			log.Warn("请求处理失败")
			return
		}
		log.Debug("请求完成")
	}
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// healthCheck 健康检查
func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
		"service":   "vision-api",
	})
}

// query 解析并校验路径中的地址和 network 参数
func (s *Server) query(c *gin.Context) (models.AddressQuery, bool) {
	q := models.AddressQuery{
		Address: c.Param("address"),
		Network: c.Query("network"),
	}
	result := s.validator.ValidateQuery(q)
	if err := result.Err(); err != nil {
		s.fail(c, err)
		return q, false
	}
	return q, true
}

// fail 按错误类型映射状态码并记录
func (s *Server) fail(c *gin.Context, err error) {
	ve := s.errorHandler.HandleError(err, "api")
	status := statusFor(ve)
	c.AbortWithStatusJSON(status, gin.H{
		"error": ve.Message,
		"code":  ve.Code,
	})
}

// statusFor 校验错误 400，上游传输/解析/网络错误 502，其余 500
func statusFor(ve *errors.VisionError) int {
	switch ve.Type {
	case errors.ErrorTypeValidation:
		return http.StatusBadRequest
	case errors.ErrorTypeTransport, errors.ErrorTypeParse, errors.ErrorTypeNetwork,
		errors.ErrorTypeTimeout, errors.ErrorTypeRateLimit, errors.ErrorTypeConnection:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) getSummary(c *gin.Context) {
	q, ok := s.query(c)
	if !ok {
		return
	}
	summary, err := s.service.GetAddressSummary(c.Request.Context(), q.Address, q.Network)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) getGraphStats(c *gin.Context) {
	q, ok := s.query(c)
	if !ok {
		return
	}
	stats, err := s.service.GetLocalGraphStats(c.Request.Context(), q.Address, q.Network)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) getAnomaly(c *gin.Context) {
	q, ok := s.query(c)
	if !ok {
		return
	}
	series, err := s.service.GetAnomalySeries(c.Request.Context(), q.Address, q.Network)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, series)
}

func (s *Server) getSanctions(c *gin.Context) {
	q, ok := s.query(c)
	if !ok {
		return
	}
	res, err := s.service.CheckSanctions(c.Request.Context(), q.Address, q.Network)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// getReport 生成完整报告，配置了输出器时同时发布。发布失败不影响响应
func (s *Server) getReport(c *gin.Context) {
	q, ok := s.query(c)
	if !ok {
		return
	}
	report, err := s.service.BuildReport(c.Request.Context(), q.Address, q.Network)
	if err != nil {
		s.fail(c, err)
		return
	}

	if s.outputter != nil {
		if err := s.outputter.WriteReport(report); err != nil {
			s.errorHandler.HandleError(err, "output")
			c.Header("X-Report-Published", "false")
		} else {
			c.Header("X-Report-Published", "true")
		}
	}
	c.JSON(http.StatusOK, report)
}

// postClasses 计算节点显示类名
func (s *Server) postClasses(c *gin.Context) {
	var req classesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, errors.WrapError(err, errors.ErrorTypeValidation, errors.SeverityLow,
			"INVALID_REQUEST", "请求体格式错误"))
		return
	}

	resp := gin.H{"classes": graph.NodeClassesFor(req.Result, req.Node)}
	check := s.validator.ValidateRenderResult(req.Result)
	warnings := append([]string{}, check.Warnings...)
	for _, e := range check.Errors {
		warnings = append(warnings, e.Message)
	}
	if len(warnings) > 0 {
		resp["warnings"] = warnings
	}
	c.JSON(http.StatusOK, resp)
}

// getStats 错误统计
func (s *Server) getStats(c *gin.Context) {
	stats := s.errorHandler.GetStats()
	c.JSON(http.StatusOK, gin.H{
		"uptime":              time.Since(s.startedAt).String(),
		"total_errors":        stats.TotalErrors,
		"errors_by_type":      stats.ErrorsByType,
		"errors_by_severity":  stats.ErrorsBySeverity,
		"errors_by_component": stats.ErrorsByComponent,
		"error_rate_per_hour": stats.GetErrorRate(time.Hour),
		"last_error":          stats.LastError,
	})
}

// getLogs 获取最近日志
func (s *Server) getLogs(c *gin.Context) {
	level := c.Query("level")
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "20"))

	logs, total := s.logBuffer.Page(level, page, pageSize)
	c.JSON(http.StatusOK, gin.H{
		"logs":     logs,
		"total":    total,
		"page":     page,
		"pageSize": pageSize,
		"level":    level,
	})
}

// clearLogs 清空日志
func (s *Server) clearLogs(c *gin.Context) {
	s.logBuffer.Clear()
	c.JSON(http.StatusOK, gin.H{"message": "日志已清空"})
}
