package errors

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// ErrorHandler 错误处理器：统计并按严重级别记录日志，不吞掉也不重试错误
type ErrorHandler struct {
	logger *logrus.Logger
	stats  *ErrorStats
	mu     sync.RWMutex

	callbacks []ErrorCallback
}

// ErrorCallback 错误回调函数
type ErrorCallback func(err *VisionError)

// NewErrorHandler 创建错误处理器
func NewErrorHandler(logger *logrus.Logger) *ErrorHandler {
	return &ErrorHandler{
		logger:    logger,
		stats:     NewErrorStats(),
		callbacks: make([]ErrorCallback, 0),
	}
}

// HandleError 处理错误，返回归一化后的 VisionError
func (eh *ErrorHandler) HandleError(err error, component string) *VisionError {
	if err == nil {
		return nil
	}

	ve, ok := AsVisionError(err)
	if !ok {
		// 包装普通错误
		ve = WrapError(err, ErrorTypeSystem, SeverityMedium, "UNKNOWN_ERROR", "未知错误")
	}
	if ve.Component == "" {
		ve.Component = component
	}

	eh.mu.Lock()
	eh.stats.RecordError(ve)
	callbacks := make([]ErrorCallback, len(eh.callbacks))
	copy(callbacks, eh.callbacks)
	eh.mu.Unlock()

	eh.log(ve)

	for _, cb := range callbacks {
		cb(ve)
	}

	return ve
}

// log 根据严重级别选择日志级别
func (eh *ErrorHandler) log(err *VisionError) {
	entry := eh.logger.WithFields(logrus.Fields{
		"error_type": err.Type.String(),
		"error_code": err.Code,
		"component":  err.Component,
		"retryable":  err.Retryable,
	})
	if err.URL != "" {
		entry = entry.WithField("url", err.URL)
	}
	if err.StatusCode != 0 {
		entry = entry.WithField("status_code", err.StatusCode)
	}
	if len(err.Context) > 0 {
		entry = entry.WithField("context", err.Context)
	}

	switch err.Severity {
	case SeverityLow:
		entry.Debug(err.Error())
	case SeverityMedium:
		entry.Warn(err.Error())
	default:
		entry.Error(err.Error())
	}
}

// AddCallback 添加错误回调
func (eh *ErrorHandler) AddCallback(callback ErrorCallback) {
	eh.mu.Lock()
	defer eh.mu.Unlock()
	eh.callbacks = append(eh.callbacks, callback)
}

// GetStats 获取错误统计信息的快照
func (eh *ErrorHandler) GetStats() ErrorStats {
	eh.mu.RLock()
	defer eh.mu.RUnlock()

	snapshot := ErrorStats{
		TotalErrors:       eh.stats.TotalErrors,
		ErrorsByType:      make(map[ErrorType]int, len(eh.stats.ErrorsByType)),
		ErrorsBySeverity:  make(map[ErrorSeverity]int, len(eh.stats.ErrorsBySeverity)),
		ErrorsByComponent: make(map[string]int, len(eh.stats.ErrorsByComponent)),
		RecentErrors:      append([]*VisionError(nil), eh.stats.RecentErrors...),
		LastError:         eh.stats.LastError,
		LastErrorTime:     eh.stats.LastErrorTime,
	}
	for k, v := range eh.stats.ErrorsByType {
		snapshot.ErrorsByType[k] = v
	}
	for k, v := range eh.stats.ErrorsBySeverity {
		snapshot.ErrorsBySeverity[k] = v
	}
	for k, v := range eh.stats.ErrorsByComponent {
		snapshot.ErrorsByComponent[k] = v
	}
	return snapshot
}

// ClearStats 清除统计信息
func (eh *ErrorHandler) ClearStats() {
	eh.mu.Lock()
	defer eh.mu.Unlock()
	eh.stats = NewErrorStats()
}
