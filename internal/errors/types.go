package errors

import (
	stderrors "errors"
	"fmt"
	"time"
	"unicode/utf8"
)

// ErrorType 错误类型
type ErrorType int

const (
	// 网络相关错误
	ErrorTypeNetwork ErrorType = iota
	ErrorTypeConnection
	ErrorTypeTimeout
	ErrorTypeRateLimit

	// 上游接口错误
	ErrorTypeTransport
	ErrorTypeParse

	// 数据相关错误
	ErrorTypeSerialization
	ErrorTypeValidation

	// 系统相关错误
	ErrorTypeSystem
	ErrorTypeConfig

	// 外部服务错误
	ErrorTypeKafka
)

// ErrorSeverity 错误严重级别
type ErrorSeverity int

const (
	SeverityLow ErrorSeverity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// 响应体截断长度（字符数）
const SnippetLength = 200

// VisionError 自定义错误类型
type VisionError struct {
	Type       ErrorType              `json:"type"`
	Severity   ErrorSeverity          `json:"severity"`
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Timestamp  time.Time              `json:"timestamp"`
	Context    map[string]interface{} `json:"context,omitempty"`
	Cause      error                  `json:"-"`
	Retryable  bool                   `json:"retryable"`
	Component  string                 `json:"component"`
	URL        string                 `json:"url,omitempty"`
	StatusCode int                    `json:"status_code,omitempty"`
}

// Error 实现error接口
func (e *VisionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 支持errors.Unwrap
func (e *VisionError) Unwrap() error {
	return e.Cause
}

// Is 按错误码匹配，支持 errors.Is(err, ErrInvalidAddress)
func (e *VisionError) Is(target error) bool {
	t, ok := target.(*VisionError)
	if !ok {
		return false
	}
	return t.Code != "" && t.Code == e.Code
}

// IsRetryable 判断是否可重试（仅作分类，本模块不做重试）
func (e *VisionError) IsRetryable() bool {
	return e.Retryable
}

// WithContext 添加上下文信息
func (e *VisionError) WithContext(key string, value interface{}) *VisionError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithComponent 设置出错组件
func (e *VisionError) WithComponent(component string) *VisionError {
	e.Component = component
	return e
}

// NewVisionError 创建新的错误
func NewVisionError(errorType ErrorType, severity ErrorSeverity, code, message string) *VisionError {
	return &VisionError{
		Type:      errorType,
		Severity:  severity,
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
		Retryable: determineRetryable(errorType, code),
	}
}

// WrapError 包装现有错误
func WrapError(err error, errorType ErrorType, severity ErrorSeverity, code, message string) *VisionError {
	ve := NewVisionError(errorType, severity, code, message)
	ve.Cause = err
	return ve
}

// NewTransportError 上游返回非2xx状态码
func NewTransportError(statusCode int, url string, body []byte) *VisionError {
	ve := NewVisionError(ErrorTypeTransport, SeverityMedium, "HTTP_STATUS",
		fmt.Sprintf("HTTP %d from %s\n%s…", statusCode, url, Snippet(body)))
	ve.URL = url
	ve.StatusCode = statusCode
	ve.Retryable = statusCode == 429 || statusCode >= 500
	return ve
}

// NewParseError 上游响应体不是合法JSON
func NewParseError(url string, body []byte, cause error) *VisionError {
	ve := WrapError(cause, ErrorTypeParse, SeverityMedium, "INVALID_JSON",
		fmt.Sprintf("Invalid JSON from %s: %s…", url, Snippet(body)))
	ve.URL = url
	return ve
}

// NewNetworkError 请求未能得到响应
func NewNetworkError(url string, cause error) *VisionError {
	ve := WrapError(cause, ErrorTypeNetwork, SeverityMedium, "REQUEST_FAILED",
		fmt.Sprintf("request to %s failed", url))
	ve.URL = url
	return ve
}

// Snippet 截取响应体前 SnippetLength 个字符
func Snippet(body []byte) string {
	if utf8.RuneCount(body) <= SnippetLength {
		return string(body)
	}
	runes := []rune(string(body))
	return string(runes[:SnippetLength])
}

// AsVisionError 从错误链中提取 VisionError
func AsVisionError(err error) (*VisionError, bool) {
	var ve *VisionError
	if stderrors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

// determineRetryable 根据错误类型判断是否可重试
func determineRetryable(errorType ErrorType, code string) bool {
	switch errorType {
	case ErrorTypeNetwork, ErrorTypeConnection, ErrorTypeTimeout:
		return true
	case ErrorTypeRateLimit:
		return true
	case ErrorTypeKafka:
		return true
	default:
		// 上游状态码错误由 NewTransportError 按状态码单独判定
		return false
	}
}

// 预定义错误
var (
	ErrInvalidAddress = NewVisionError(
		ErrorTypeValidation,
		SeverityLow,
		"INVALID_ADDRESS",
		"无效的地址",
	)

	ErrUnsupportedNetwork = NewVisionError(
		ErrorTypeValidation,
		SeverityLow,
		"UNSUPPORTED_NETWORK",
		"不支持的网络",
	)

	ErrConfigInvalid = NewVisionError(
		ErrorTypeConfig,
		SeverityCritical,
		"CONFIG_INVALID",
		"配置无效",
	)

	ErrKafkaProduceFailed = NewVisionError(
		ErrorTypeKafka,
		SeverityHigh,
		"KAFKA_PRODUCE_FAILED",
		"Kafka消息发送失败",
	)
)

// 错误类型字符串映射
var errorTypeNames = map[ErrorType]string{
	ErrorTypeNetwork:       "Network",
	ErrorTypeConnection:    "Connection",
	ErrorTypeTimeout:       "Timeout",
	ErrorTypeRateLimit:     "RateLimit",
	ErrorTypeTransport:     "Transport",
	ErrorTypeParse:         "Parse",
	ErrorTypeSerialization: "Serialization",
	ErrorTypeValidation:    "Validation",
	ErrorTypeSystem:        "System",
	ErrorTypeConfig:        "Config",
	ErrorTypeKafka:         "Kafka",
}

// String 返回错误类型的字符串表示
func (et ErrorType) String() string {
	if name, exists := errorTypeNames[et]; exists {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", et)
}

// MarshalText 以名称作为JSON键
func (et ErrorType) MarshalText() ([]byte, error) {
	return []byte(et.String()), nil
}

// 严重级别字符串映射
var severityNames = map[ErrorSeverity]string{
	SeverityLow:      "Low",
	SeverityMedium:   "Medium",
	SeverityHigh:     "High",
	SeverityCritical: "Critical",
}

// String 返回严重级别的字符串表示
func (es ErrorSeverity) String() string {
	if name, exists := severityNames[es]; exists {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", es)
}

// MarshalText 以名称作为JSON键
func (es ErrorSeverity) MarshalText() ([]byte, error) {
	return []byte(es.String()), nil
}

// ErrorStats 错误统计
type ErrorStats struct {
	TotalErrors       int                   `json:"total_errors"`
	ErrorsByType      map[ErrorType]int     `json:"errors_by_type"`
	ErrorsBySeverity  map[ErrorSeverity]int `json:"errors_by_severity"`
	ErrorsByComponent map[string]int        `json:"errors_by_component"`
	RecentErrors      []*VisionError        `json:"recent_errors"`
	LastError         *VisionError          `json:"last_error"`
	LastErrorTime     time.Time             `json:"last_error_time"`
}

// NewErrorStats 创建错误统计
func NewErrorStats() *ErrorStats {
	return &ErrorStats{
		ErrorsByType:      make(map[ErrorType]int),
		ErrorsBySeverity:  make(map[ErrorSeverity]int),
		ErrorsByComponent: make(map[string]int),
		RecentErrors:      make([]*VisionError, 0),
	}
}

// RecordError 记录错误
func (es *ErrorStats) RecordError(err *VisionError) {
	es.TotalErrors++
	es.ErrorsByType[err.Type]++
	es.ErrorsBySeverity[err.Severity]++
	if err.Component != "" {
		es.ErrorsByComponent[err.Component]++
	}

	es.LastError = err
	es.LastErrorTime = err.Timestamp

	// 保留最近100个错误
	es.RecentErrors = append(es.RecentErrors, err)
	if len(es.RecentErrors) > 100 {
		es.RecentErrors = es.RecentErrors[1:]
	}
}

// GetErrorRate 获取错误率（错误/小时）
func (es *ErrorStats) GetErrorRate(duration time.Duration) float64 {
	if duration <= 0 {
		return 0
	}

	cutoff := time.Now().Add(-duration)
	recentCount := 0

	for _, err := range es.RecentErrors {
		if err.Timestamp.After(cutoff) {
			recentCount++
		}
	}

	return float64(recentCount) / duration.Hours()
}
