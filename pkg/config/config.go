// Package config 提供 TOML 配置加载、环境变量覆盖与校验
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config 服务配置
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	GRPC      GRPCConfig      `mapstructure:"grpc"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Auth      AuthConfig      `mapstructure:"auth"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Risk      RiskConfig      `mapstructure:"risk"`
	Transfer  TransferConfig  `mapstructure:"transfer"`
	Report    ReportConfig    `mapstructure:"report"`
}

// ServerConfig 服务标识
type ServerConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// HTTPConfig HTTP 服务配置
type HTTPConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Addr 监听地址
func (c HTTPConfig) Addr() string { return fmt.Sprintf("%s:%d", c.Host, c.Port) }

// GRPCConfig gRPC 服务配置
type GRPCConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Addr 监听地址
func (c GRPCConfig) Addr() string { return fmt.Sprintf("%s:%d", c.Host, c.Port) }

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// 驱动：memory, mysql, postgres, sqlite
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
	// 最大连接数
	MaxOpenConns int `mapstructure:"max_open_conns"`
	// 最大空闲连接数
	MaxIdleConns int `mapstructure:"max_idle_conns"`
	// 连接最大生命周期（秒）
	ConnMaxLifetime int  `mapstructure:"conn_max_lifetime"`
	LogEnabled      bool `mapstructure:"log_enabled"`
	// 慢查询阈值（毫秒）
	SlowQueryThreshold int `mapstructure:"slow_query_threshold"`
}

// RedisConfig Redis 配置，addr 为空时使用进程内计数器
type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// KafkaConfig Kafka 配置，brokers 为空时不启用
type KafkaConfig struct {
	Brokers        []string      `mapstructure:"brokers"`
	Topic          string        `mapstructure:"topic"`
	GroupID        string        `mapstructure:"group_id"`
	DeadLetter     string        `mapstructure:"dead_letter_topic"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryBackoff   time.Duration `mapstructure:"retry_backoff"`
	SessionTimeout time.Duration `mapstructure:"session_timeout"`
	RelayInterval  time.Duration `mapstructure:"relay_interval"`
	RelayBatchSize int           `mapstructure:"relay_batch_size"`
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

// AuthConfig JWT 校验配置
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

// RateLimitConfig 转账提交限流
type RateLimitConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// 每秒请求数
	QPS   int `mapstructure:"qps"`
	Burst int `mapstructure:"burst"`
}

// ThresholdConfig 评分阈值
type ThresholdConfig struct {
	Score       int     `mapstructure:"score"`
	Probability float64 `mapstructure:"probability"`
}

// RiskConfig 风险评估相关配置
type RiskConfig struct {
	BlockThreshold  ThresholdConfig `mapstructure:"block_threshold"`
	ReviewThreshold ThresholdConfig `mapstructure:"review_threshold"`
	// 评估服务传输方式：http, grpc，为空表示未接入
	Transport       string        `mapstructure:"transport"`
	Endpoint        string        `mapstructure:"endpoint"`
	AssessorTimeout time.Duration `mapstructure:"assessor_timeout"`
	MaxAttempts     uint          `mapstructure:"max_attempts"`
	InitialBackoff  time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff      time.Duration `mapstructure:"max_backoff"`
	BreakerFailures uint32        `mapstructure:"breaker_failures"`
	BreakerCooldown time.Duration `mapstructure:"breaker_cooldown"`
}

// TransferConfig 转账校验与限额
type TransferConfig struct {
	HomeCurrency      string   `mapstructure:"home_currency"`
	AllowedCurrencies []string `mapstructure:"allowed_currencies"`
	MaxDailyCount     int      `mapstructure:"max_daily_count"`
	MaxSingleAmount   string   `mapstructure:"max_single_amount"`
	// 0 表示不限制
	MaxDailySum string `mapstructure:"max_daily_sum"`
}

// ReportConfig 汇总计数对账
type ReportConfig struct {
	ReconcileInterval time.Duration `mapstructure:"reconcile_interval"`
}

// Load 从 TOML 文件加载配置，支持 APP_ 前缀的环境变量覆盖，path 为空时只用默认值
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// 环境变量覆盖（使用 _ 替代 .）
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
	if c.Server.Name == "" {
		return errors.New("server.name is required")
	}
	if c.Server.Environment == "" {
		c.Server.Environment = "dev"
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("invalid http port: %d", c.HTTP.Port)
	}
	if c.GRPC.Port <= 0 || c.GRPC.Port > 65535 {
		return fmt.Errorf("invalid grpc port: %d", c.GRPC.Port)
	}

	switch c.Database.Driver {
	case "memory":
	case "mysql", "postgres", "sqlite":
		if c.Database.DSN == "" {
			return fmt.Errorf("database dsn is required for %s driver", c.Database.Driver)
		}
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	if err := c.Risk.validate(); err != nil {
		return err
	}
	if err := c.Transfer.validate(); err != nil {
		return err
	}
	if c.RateLimit.Enabled && (c.RateLimit.QPS <= 0 || c.RateLimit.Burst <= 0) {
		return errors.New("ratelimit qps and burst must be positive")
	}
	if c.Report.ReconcileInterval < 0 {
		return errors.New("report.reconcile_interval must not be negative")
	}
	return nil
}

func (r *RiskConfig) validate() error {
	for name, th := range map[string]ThresholdConfig{"block": r.BlockThreshold, "review": r.ReviewThreshold} {
		if th.Score < 0 || th.Score > 100 {
			return fmt.Errorf("risk.%s_threshold.score must be within [0,100]", name)
		}
		if th.Probability < 0 || th.Probability > 1 {
			return fmt.Errorf("risk.%s_threshold.probability must be within [0,1]", name)
		}
	}
	if r.ReviewThreshold.Score > r.BlockThreshold.Score || r.ReviewThreshold.Probability > r.BlockThreshold.Probability {
		return errors.New("risk review threshold must not exceed block threshold")
	}
	switch r.Transport {
	case "":
	case "http", "grpc":
		if r.Endpoint == "" {
			return fmt.Errorf("risk.endpoint is required for %s transport", r.Transport)
		}
	default:
		return fmt.Errorf("unsupported risk transport: %s", r.Transport)
	}
	return nil
}

func (t *TransferConfig) validate() error {
	if len(t.HomeCurrency) != 3 {
		return errors.New("transfer.home_currency must be a 3-letter code")
	}
	if len(t.AllowedCurrencies) == 0 {
		return errors.New("transfer.allowed_currencies must not be empty")
	}
	if t.MaxDailyCount < 0 {
		return errors.New("transfer.max_daily_count must not be negative")
	}
	for name, raw := range map[string]string{"max_single_amount": t.MaxSingleAmount, "max_daily_sum": t.MaxDailySum} {
		if raw == "" {
			continue
		}
		d, err := decimal.NewFromString(raw)
		if err != nil || d.IsNegative() {
			return fmt.Errorf("transfer.%s must be a non-negative decimal", name)
		}
	}
	return nil
}

// Amount 解析限额，空串视为 0
func Amount(raw string) decimal.Decimal {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// setDefaults 设置默认值
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.name", "fraudreview")
	v.SetDefault("server.version", "dev")
	v.SetDefault("server.environment", "dev")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.read_timeout", "30s")
	v.SetDefault("http.write_timeout", "60s")

	v.SetDefault("grpc.host", "0.0.0.0")
	v.SetDefault("grpc.port", 50051)

	v.SetDefault("database.driver", "memory")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 300)
	v.SetDefault("database.log_enabled", false)
	v.SetDefault("database.slow_query_threshold", 1000)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.dial_timeout", "5s")
	v.SetDefault("redis.read_timeout", "3s")
	v.SetDefault("redis.write_timeout", "3s")

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "fraudreview.transaction.events")
	v.SetDefault("kafka.group_id", "fraudreview-projection")
	v.SetDefault("kafka.dead_letter_topic", "fraudreview.transaction.events.dlq")
	v.SetDefault("kafka.max_retries", 3)
	v.SetDefault("kafka.retry_backoff", "100ms")
	v.SetDefault("kafka.session_timeout", "10s")
	v.SetDefault("kafka.relay_interval", "1s")
	v.SetDefault("kafka.relay_batch_size", 100)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("logger.output", "stdout")
	v.SetDefault("logger.file_path", "logs/fraudreview.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 10)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.with_caller", false)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "")

	v.SetDefault("ratelimit.enabled", false)
	v.SetDefault("ratelimit.qps", 5)
	v.SetDefault("ratelimit.burst", 10)

	v.SetDefault("risk.block_threshold.score", 90)
	v.SetDefault("risk.block_threshold.probability", 0.9)
	v.SetDefault("risk.review_threshold.score", 60)
	v.SetDefault("risk.review_threshold.probability", 0.6)
	v.SetDefault("risk.transport", "")
	v.SetDefault("risk.endpoint", "")
	v.SetDefault("risk.assessor_timeout", "2s")
	v.SetDefault("risk.max_attempts", 3)
	v.SetDefault("risk.initial_backoff", "50ms")
	v.SetDefault("risk.max_backoff", "500ms")
	v.SetDefault("risk.breaker_failures", 5)
	v.SetDefault("risk.breaker_cooldown", "30s")

	v.SetDefault("transfer.home_currency", "USD")
	v.SetDefault("transfer.allowed_currencies", []string{"USD", "EUR", "GBP"})
	v.SetDefault("transfer.max_daily_count", 7)
	v.SetDefault("transfer.max_single_amount", "60000")
	v.SetDefault("transfer.max_daily_sum", "0")

	v.SetDefault("report.reconcile_interval", "1m")
}

// GetEnv 获取环境变量，支持默认值
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
