package output

import (
	"encoding/json"
	"time"

	"vision/internal/errors"
	"vision/pkg/models"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"
)

// DefaultReportTopic 报告默认 topic
const DefaultReportTopic = "vision_risk_reports"

// KafkaOutput Kafka输出器，每份报告一条消息，以报告 ID 为 key
type KafkaOutput struct {
	logger   *logrus.Logger
	topic    string
	producer sarama.SyncProducer
}

// NewKafkaOutput 创建Kafka输出器
func NewKafkaOutput(brokers []string, topic string, logger *logrus.Logger) (*KafkaOutput, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	logger.Infof("初始化Kafka输出器，brokers: %v, topic: %s", brokers, topic)

	producer, err := sarama.NewSyncProducer(brokers, NewProducerConfig())
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeKafka, errors.SeverityHigh,
			"KAFKA_PRODUCER_FAILED", "创建Kafka生产者失败").
			WithContext("brokers", brokers)
	}

	logger.Info("Kafka生产者已创建")
	return NewKafkaOutputWithProducer(producer, topic, logger), nil
}

// NewKafkaOutputWithProducer 使用已有生产者创建输出器
func NewKafkaOutputWithProducer(producer sarama.SyncProducer, topic string, logger *logrus.Logger) *KafkaOutput {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if topic == "" {
		topic = DefaultReportTopic
	}
	return &KafkaOutput{
		logger:   logger,
		topic:    topic,
		producer: producer,
	}
}

// NewProducerConfig 同步生产者配置
func NewProducerConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Producer.Timeout = 5 * time.Second
	config.Version = sarama.V2_8_0_0
	return config
}

// WriteReport 发送报告
func (k *KafkaOutput) WriteReport(report *models.RiskReport) error {
	if report == nil {
		return nil
	}
	err := k.send(report)
	recordPublish("kafka", err)
	return err
}

func (k *KafkaOutput) send(report *models.RiskReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeSerialization, errors.SeverityMedium,
			"SERIALIZE_FAILED", "序列化报告失败")
	}

	msg := &sarama.ProducerMessage{
		Topic: k.topic,
		Key:   sarama.StringEncoder(report.ID),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("address"), Value: []byte(report.Address)},
			{Key: []byte("network"), Value: []byte(report.Network)},
		},
		Timestamp: report.GeneratedAt,
	}

	partition, offset, err := k.producer.SendMessage(msg)
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeKafka, errors.SeverityHigh,
			errors.ErrKafkaProduceFailed.Code, "发送报告到Kafka失败").
			WithContext("topic", k.topic).
			WithContext("report_id", report.ID)
	}

	k.logger.WithFields(logrus.Fields{
		"topic":     k.topic,
		"partition": partition,
		"offset":    offset,
		"report_id": report.ID,
		"address":   report.Address,
	}).Info("报告已发送到Kafka")
	return nil
}

// Close 关闭Kafka连接
func (k *KafkaOutput) Close() error {
	if k.producer != nil {
		return k.producer.Close()
	}
	return nil
}
