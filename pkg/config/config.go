// Package config 提供 TOML 配置加载、环境变量覆盖与校验
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 购物车服务配置
type Config struct {
	// 服务名称
	ServiceName string `mapstructure:"service_name"`
	// 服务版本
	Version string `mapstructure:"version"`
	// 环境：dev, staging, prod
	Environment string `mapstructure:"environment"`
	// HTTP 服务配置
	HTTP HTTPConfig `mapstructure:"http"`
	// gRPC 服务配置
	GRPC GRPCConfig `mapstructure:"grpc"`
	// Redis 配置
	Redis RedisConfig `mapstructure:"redis"`
	// 消息总线配置
	Bus BusConfig `mapstructure:"bus"`
	// Kafka 配置
	Kafka KafkaConfig `mapstructure:"kafka"`
	// RabbitMQ 配置
	RabbitMQ RabbitMQConfig `mapstructure:"rabbitmq"`
	// 过期清理配置
	Sweeper SweeperConfig `mapstructure:"sweeper"`
	// 限流配置
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	// 日志配置
	Logger LoggerConfig `mapstructure:"logger"`
	// 指标配置
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// HTTPConfig HTTP 服务配置
type HTTPConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
}

// GRPCConfig gRPC 服务配置（仅健康检查）
type GRPCConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	// 健康检查探测间隔（秒）
	HealthInterval int `mapstructure:"health_interval"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	MaxPoolSize  int    `mapstructure:"max_pool_size"`
	ConnTimeout  int    `mapstructure:"conn_timeout"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
}

// BusConfig 事件总线配置
type BusConfig struct {
	// 驱动：kafka, rabbitmq, none
	Driver string `mapstructure:"driver"`
	// 单次发布超时（毫秒）
	PublishTimeoutMS int `mapstructure:"publish_timeout_ms"`
	// 连续失败多少次后熔断
	BreakerFailures int `mapstructure:"breaker_failures"`
	// 熔断打开后多久进入半开（秒）
	BreakerOpenSeconds int `mapstructure:"breaker_open_seconds"`
}

// KafkaConfig Kafka 配置
type KafkaConfig struct {
	Brokers      []string `mapstructure:"brokers"`
	Topic        string   `mapstructure:"topic"`
	MaxRetries   int      `mapstructure:"max_retries"`
	RetryBackoff int      `mapstructure:"retry_backoff"`
}

// RabbitMQConfig RabbitMQ 配置
type RabbitMQConfig struct {
	URL        string `mapstructure:"url"`
	Exchange   string `mapstructure:"exchange"`
	RoutingKey string `mapstructure:"routing_key"`
}

// SweeperConfig 过期清理任务配置
type SweeperConfig struct {
	// 定时清理间隔（秒），0 表示不启动定时任务
	Interval int `mapstructure:"interval"`
	// SCAN 每批数量
	ScanCount int `mapstructure:"scan_count"`
	// 读取购物车时的并发度
	Fanout int `mapstructure:"fanout"`
}

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// 清理类接口每分钟允许的请求数
	SweepPerMinute int `mapstructure:"sweep_per_minute"`
}

// LoggerConfig 日志配置
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
	WithCaller bool   `mapstructure:"with_caller"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Load 从 TOML 文件加载配置，文件不存在时使用默认值，支持环境变量覆盖
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			v.SetConfigType("toml")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	// 环境变量前缀 APP_，使用 _ 替代 .
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate 验证配置的有效性
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service_name is required")
	}
	if c.Environment == "" {
		c.Environment = "dev"
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTP.Port)
	}
	if c.GRPC.Port <= 0 || c.GRPC.Port > 65535 {
		return fmt.Errorf("invalid gRPC port: %d", c.GRPC.Port)
	}
	switch c.Bus.Driver {
	case "kafka":
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka.brokers is required for kafka bus driver")
		}
		if c.Kafka.Topic == "" {
			return fmt.Errorf("kafka.topic is required for kafka bus driver")
		}
	case "rabbitmq":
		if c.RabbitMQ.URL == "" {
			return fmt.Errorf("rabbitmq.url is required for rabbitmq bus driver")
		}
	case "none":
	default:
		return fmt.Errorf("unknown bus driver: %q", c.Bus.Driver)
	}
	if c.Sweeper.Interval < 0 {
		return fmt.Errorf("invalid sweeper interval: %d", c.Sweeper.Interval)
	}
	if c.Sweeper.Fanout <= 0 {
		return fmt.Errorf("invalid sweeper fanout: %d", c.Sweeper.Fanout)
	}
	return nil
}

// PublishTimeout 返回单次事件发布超时
func (b BusConfig) PublishTimeout() time.Duration {
	return time.Duration(b.PublishTimeoutMS) * time.Millisecond
}

// SweepInterval 返回定时清理间隔
func (s SweeperConfig) SweepInterval() time.Duration {
	return time.Duration(s.Interval) * time.Second
}

// setDefaults 设置默认值
func setDefaults(v *viper.Viper) {
	v.SetDefault("service_name", "cart")
	v.SetDefault("version", "dev")
	v.SetDefault("environment", "dev")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.read_timeout", 30)
	v.SetDefault("http.write_timeout", 30)

	v.SetDefault("grpc.host", "0.0.0.0")
	v.SetDefault("grpc.port", 50051)
	v.SetDefault("grpc.health_interval", 10)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.max_pool_size", 10)
	v.SetDefault("redis.conn_timeout", 5)
	v.SetDefault("redis.read_timeout", 3)
	v.SetDefault("redis.write_timeout", 3)

	v.SetDefault("bus.driver", "none")
	v.SetDefault("bus.publish_timeout_ms", 2000)
	v.SetDefault("bus.breaker_failures", 5)
	v.SetDefault("bus.breaker_open_seconds", 30)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "cart.events")
	v.SetDefault("kafka.max_retries", 3)
	v.SetDefault("kafka.retry_backoff", 100)

	v.SetDefault("rabbitmq.url", "")
	v.SetDefault("rabbitmq.exchange", "cart.exchange")
	v.SetDefault("rabbitmq.routing_key", "cart.events")

	v.SetDefault("sweeper.interval", 0)
	v.SetDefault("sweeper.scan_count", 500)
	v.SetDefault("sweeper.fanout", 16)

	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("ratelimit.sweep_per_minute", 6)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("logger.output", "stdout")
	v.SetDefault("logger.file_path", "logs/cart.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 10)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.with_caller", false)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}
