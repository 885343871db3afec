package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"vision/internal/errors"
	"vision/internal/logging"
	"vision/internal/risk"

	"github.com/spf13/viper"
)

// 环境变量前缀，例如 VISION_API_BASE_URL
const EnvPrefix = "VISION"

// Config 主配置
type Config struct {
	API     *APIConfig         `mapstructure:"api"`
	Server  *ServerConfig      `mapstructure:"server"`
	Output  *OutputConfig      `mapstructure:"output"`
	Logging *logging.LogConfig `mapstructure:"logging"`
}

// APIConfig 上游数据接口配置
type APIConfig struct {
	BaseURL             string   `mapstructure:"base_url"`
	Timeout             string   `mapstructure:"timeout"`
	DefaultNetwork      string   `mapstructure:"default_network"`
	Networks            []string `mapstructure:"networks"`
	NeighborConcurrency int      `mapstructure:"neighbor_concurrency"`
	RequestsPerSecond   float64  `mapstructure:"requests_per_second"`
}

// ServerConfig API 服务配置
type ServerConfig struct {
	Port         int    `mapstructure:"port"`
	Mode         string `mapstructure:"mode"`
	EnableCORS   bool   `mapstructure:"enable_cors"`
	ReadTimeout  string `mapstructure:"read_timeout"`
	WriteTimeout string `mapstructure:"write_timeout"`
}

// KafkaConfig Kafka配置
type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// OutputConfig 报告输出配置
type OutputConfig struct {
	Format string       `mapstructure:"format"` // json, text
	Pretty bool         `mapstructure:"pretty"`
	Kafka  *KafkaConfig `mapstructure:"kafka"`
}

// GetDefaultConfig 获取默认配置
func GetDefaultConfig() *Config {
	return &Config{
		API: &APIConfig{
			BaseURL:             risk.DefaultAPIBase,
			Timeout:             "15s",
			DefaultNetwork:      "eth",
			Networks:            []string{"eth", "bsc", "polygon", "arbitrum", "optimism", "base"},
			NeighborConcurrency: 1,
			RequestsPerSecond:   0,
		},
		Server: &ServerConfig{
			Port:         8080,
			Mode:         "release",
			EnableCORS:   true,
			ReadTimeout:  "30s",
			WriteTimeout: "120s",
		},
		Output: &OutputConfig{
			Format: "json",
			Pretty: true,
			Kafka: &KafkaConfig{
				Enabled: false,
				Brokers: []string{"localhost:9092"},
				Topic:   "vision_risk_reports",
			},
		},
		Logging: logging.DefaultLogConfig(),
	}
}

// LoadConfig 加载配置：默认值 < 配置文件 < VISION_* 环境变量
// configPath 为空或文件不存在时只使用默认值和环境变量
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v, GetDefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			v.SetConfigType("yaml")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("读取配置文件失败: %w", err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("检查配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	if err := ValidateConfig(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults 把默认配置注册到 viper，使环境变量覆盖对所有键生效
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("api.base_url", d.API.BaseURL)
	v.SetDefault("api.timeout", d.API.Timeout)
	v.SetDefault("api.default_network", d.API.DefaultNetwork)
	v.SetDefault("api.networks", d.API.Networks)
	v.SetDefault("api.neighbor_concurrency", d.API.NeighborConcurrency)
	v.SetDefault("api.requests_per_second", d.API.RequestsPerSecond)

	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.mode", d.Server.Mode)
	v.SetDefault("server.enable_cors", d.Server.EnableCORS)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)

	v.SetDefault("output.format", d.Output.Format)
	v.SetDefault("output.pretty", d.Output.Pretty)
	v.SetDefault("output.kafka.enabled", d.Output.Kafka.Enabled)
	v.SetDefault("output.kafka.brokers", d.Output.Kafka.Brokers)
	v.SetDefault("output.kafka.topic", d.Output.Kafka.Topic)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.output", d.Logging.Output)
}

// ValidateConfig 校验配置
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return invalid("配置为空")
	}
	if err := validateAPIConfig(cfg.API); err != nil {
		return err
	}
	if err := validateServerConfig(cfg.Server); err != nil {
		return err
	}
	if err := validateOutputConfig(cfg.Output); err != nil {
		return err
	}
	return nil
}

func validateAPIConfig(c *APIConfig) error {
	if c == nil {
		return invalid("缺少 api 配置")
	}
	if c.BaseURL != "" {
		u, err := url.Parse(c.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return invalid(fmt.Sprintf("api.base_url 无效: %s", c.BaseURL))
		}
	}
	if c.Timeout != "" {
		if _, err := time.ParseDuration(c.Timeout); err != nil {
			return invalid(fmt.Sprintf("api.timeout 无效: %s", c.Timeout))
		}
	}
	if c.NeighborConcurrency < 0 {
		return invalid("api.neighbor_concurrency 不能为负数")
	}
	if c.RequestsPerSecond < 0 {
		return invalid("api.requests_per_second 不能为负数")
	}
	return nil
}

func validateServerConfig(c *ServerConfig) error {
	if c == nil {
		return invalid("缺少 server 配置")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return invalid(fmt.Sprintf("server.port 超出范围: %d", c.Port))
	}
	for _, d := range []string{c.ReadTimeout, c.WriteTimeout} {
		if d == "" {
			continue
		}
		if _, err := time.ParseDuration(d); err != nil {
			return invalid(fmt.Sprintf("server 超时配置无效: %s", d))
		}
	}
	return nil
}

func validateOutputConfig(c *OutputConfig) error {
	if c == nil {
		return invalid("缺少 output 配置")
	}
	switch c.Format {
	case "json", "text":
	default:
		return invalid(fmt.Sprintf("不支持的输出格式: %s", c.Format))
	}
	if c.Kafka != nil && c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return invalid("启用 Kafka 时 brokers 不能为空")
		}
		if c.Kafka.Topic == "" {
			return invalid("启用 Kafka 时 topic 不能为空")
		}
	}
	return nil
}

func invalid(reason string) error {
	return errors.NewVisionError(errors.ErrorTypeConfig, errors.SeverityCritical,
		errors.ErrConfigInvalid.Code, reason)
}

// RiskConfig 转换为风险抓取器配置
func (c *APIConfig) RiskConfig() risk.Config {
	timeout, err := time.ParseDuration(c.Timeout)
	if err != nil {
		timeout = 0
	}
	return risk.Config{
		APIBase:             c.BaseURL,
		Timeout:             timeout,
		DefaultNetwork:      c.DefaultNetwork,
		NeighborConcurrency: c.NeighborConcurrency,
		RequestsPerSecond:   c.RequestsPerSecond,
	}
}

// ServerTimeouts 解析读写超时
func (c *ServerConfig) ServerTimeouts() (read, write time.Duration) {
	read, _ = time.ParseDuration(c.ReadTimeout)
	write, _ = time.ParseDuration(c.WriteTimeout)
	return read, write
}
