package api

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// LogEntry 最近日志条目
type LogEntry struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// LogBuffer 保存最近 N 条日志，供 /api/v1/logs 查询
type LogBuffer struct {
	mu      sync.RWMutex
	entries []LogEntry
	max     int
}

// NewLogBuffer 创建日志缓冲
func NewLogBuffer(max int) *LogBuffer {
	if max <= 0 {
		max = 500
	}
	return &LogBuffer{entries: make([]LogEntry, 0, max), max: max}
}

// Add 追加一条日志，超出容量时丢弃最旧的
func (b *LogBuffer) Add(entry *logrus.Entry) {
	fields := make(map[string]interface{}, len(entry.Data))
	for k, v := range entry.Data {
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		fields[k] = v
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = append(b.entries, LogEntry{
		Timestamp: entry.Time,
		Level:     entry.Level.String(),
		Message:   entry.Message,
		Fields:    fields,
	})
	if len(b.entries) > b.max {
		b.entries = b.entries[len(b.entries)-b.max:]
	}
}

// Page 按级别阈值过滤后分页，最新的在前。minLevel 为空时不过滤
func (b *LogBuffer) Page(minLevel string, page, pageSize int) ([]LogEntry, int) {
	threshold := logrus.TraceLevel
	if minLevel != "" {
		if lvl, err := logrus.ParseLevel(minLevel); err == nil {
			threshold = lvl
		}
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	b.mu.RLock()
	matched := make([]LogEntry, 0, len(b.entries))
	for i := len(b.entries) - 1; i >= 0; i-- {
		lvl, err := logrus.ParseLevel(b.entries[i].Level)
		if err != nil || lvl <= threshold {
			matched = append(matched, b.entries[i])
		}
	}
	b.mu.RUnlock()

	total := len(matched)
	start := (page - 1) * pageSize
	if start >= total {
		return []LogEntry{}, total
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return matched[start:end], total
}

// Clear 清空
func (b *LogBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = make([]LogEntry, 0, b.max)
}

// LogHook 把日志写入缓冲的 logrus 钩子
type LogHook struct {
	buffer *LogBuffer
	levels []logrus.Level
}

// NewLogHook 创建日志钩子，只收集 info 及以上级别
func NewLogHook(buffer *LogBuffer) *LogHook {
	return &LogHook{
		buffer: buffer,
		levels: []logrus.Level{
			logrus.PanicLevel,
			logrus.FatalLevel,
			logrus.ErrorLevel,
			logrus.WarnLevel,
			logrus.InfoLevel,
		},
	}
}

// Fire 实现 logrus.Hook 接口
func (h *LogHook) Fire(entry *logrus.Entry) error {
	h.buffer.Add(entry)
	return nil
}

// Levels 实现 logrus.Hook 接口
func (h *LogHook) Levels() []logrus.Level {
	return h.levels
}
