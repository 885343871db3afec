package output

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"vision/internal/config"
	"vision/internal/errors"
	"vision/internal/metrics"
	"vision/pkg/models"

	"github.com/sirupsen/logrus"
)

// 输出格式
const (
	FormatJSON = "json"
	FormatText = "text"
)

// Output 报告输出接口
type Output interface {
	WriteReport(report *models.RiskReport) error
	Close() error
}

// WriterOutput 写到 io.Writer 的输出器（标准输出或文件）
type WriterOutput struct {
	mu     sync.Mutex
	w      io.Writer
	format string
	pretty bool
}

// NewWriterOutput 创建输出器，未知格式按 json 处理
func NewWriterOutput(w io.Writer, format string, pretty bool) *WriterOutput {
	if format != FormatText {
		format = FormatJSON
	}
	return &WriterOutput{w: w, format: format, pretty: pretty}
}

// Write 输出任意结果
func (o *WriterOutput) Write(v interface{}) error {
	data, err := Render(v, o.format, o.pretty)
	if err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if _, err := o.w.Write(data); err != nil {
		return fmt.Errorf("写入输出失败: %w", err)
	}
	return nil
}

// WriteReport 输出风险报告
func (o *WriterOutput) WriteReport(report *models.RiskReport) error {
	if report == nil {
		return nil
	}
	err := o.Write(report)
	recordPublish("writer", err)
	return err
}

// Close 关闭底层 writer（如果可关闭）
func (o *WriterOutput) Close() error {
	if c, ok := o.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Render 按格式序列化结果，结尾带换行
func Render(v interface{}, format string, pretty bool) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if pretty || format == FormatText {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeSerialization, errors.SeverityMedium,
			"SERIALIZE_FAILED", "序列化输出失败")
	}

	if format == FormatText {
		return renderText(data)
	}
	return append(data, '\n'), nil
}

// renderText 把 JSON 展平为按键排序的 key: value 行
func renderText(data []byte) ([]byte, error) {
	var generic interface{}
	if err := json.Unmarshal(data, &generic); err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeSerialization, errors.SeverityMedium,
			"SERIALIZE_FAILED", "序列化输出失败")
	}

	lines := make([]string, 0)
	flatten("", generic, &lines)
	sort.Strings(lines)
	return []byte(strings.Join(lines, "\n") + "\n"), nil
}

func flatten(prefix string, v interface{}, lines *[]string) {
	switch val := v.(type) {
	case map[string]interface{}:
		if len(val) == 0 && prefix != "" {
			*lines = append(*lines, prefix+": {}")
		}
		for k, child := range val {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			flatten(key, child, lines)
		}
	case nil:
		*lines = append(*lines, prefix+": null")
	case string:
		*lines = append(*lines, prefix+": "+val)
	default:
		raw, _ := json.Marshal(val)
		*lines = append(*lines, prefix+": "+string(raw))
	}
}

// MultiOutput 同时写入多个输出器，任一失败不影响其余
type MultiOutput struct {
	outputs []Output
}

// NewMultiOutput 组合输出器
func NewMultiOutput(outputs ...Output) *MultiOutput {
	return &MultiOutput{outputs: outputs}
}

// WriteReport 写入全部输出器并合并错误
func (m *MultiOutput) WriteReport(report *models.RiskReport) error {
	var errs []error
	for _, o := range m.outputs {
		if err := o.WriteReport(report); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

// Close 关闭全部输出器
func (m *MultiOutput) Close() error {
	var errs []error
	for _, o := range m.outputs {
		if err := o.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

// NewOutputWithConfig 按配置创建报告输出器：writer 总是启用，Kafka 按需启用
func NewOutputWithConfig(cfg *config.OutputConfig, w io.Writer, logger *logrus.Logger) (Output, error) {
	if cfg == nil {
		cfg = config.GetDefaultConfig().Output
	}
	writer := NewWriterOutput(w, cfg.Format, cfg.Pretty)
	if cfg.Kafka == nil || !cfg.Kafka.Enabled {
		return writer, nil
	}

	kafka, err := NewKafkaOutput(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
	if err != nil {
		return nil, err
	}
	return NewMultiOutput(writer, kafka), nil
}

// NewPublisher 只创建外部发布器，未启用 Kafka 时返回 nil
func NewPublisher(cfg *config.OutputConfig, logger *logrus.Logger) (Output, error) {
	if cfg == nil || cfg.Kafka == nil || !cfg.Kafka.Enabled {
		return nil, nil
	}
	return NewKafkaOutput(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
}

func recordPublish(sink string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	metrics.ReportsPublishedTotal.WithLabelValues(sink, result).Inc()
}
