package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Database DatabaseConfig `mapstructure:"database"`
	MySQL    MySQLConfig    `mapstructure:"mysql"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Lock     LockConfig     `mapstructure:"lock"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	SMTP     SMTPConfig     `mapstructure:"smtp"`
	Business BusinessConfig `mapstructure:"business"`
}

type ServerConfig struct {
	Port             int           `mapstructure:"port"`
	OperationTimeout time.Duration `mapstructure:"operation_timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json / text
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // mysql / sqlite
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LockConfig 账户锁配置
// backend=local 时只在单进程内互斥，多实例部署必须使用 redis
type LockConfig struct {
	Backend       string        `mapstructure:"backend"`
	TTL           time.Duration `mapstructure:"ttl"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
	MaxRetries    int           `mapstructure:"max_retries"`
}

type KafkaConfig struct {
	Enabled bool             `mapstructure:"enabled"`
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	LedgerEvents string `mapstructure:"ledger_events"`
}

type SMTPConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

// TierLimitConfig 单个等级的限额，0 表示不限
type TierLimitConfig struct {
	Daily   int64 `mapstructure:"daily"`
	Monthly int64 `mapstructure:"monthly"`
}

type BusinessConfig struct {
	Timezone        string                     `mapstructure:"timezone"`
	FundingMin      int64                      `mapstructure:"funding_min"`
	FundingMax      int64                      `mapstructure:"funding_max"`
	WithdrawalMin   int64                      `mapstructure:"withdrawal_min"`
	SeedMin         int64                      `mapstructure:"seed_min"`
	SeedMax         int64                      `mapstructure:"seed_max"`
	MaxAttempts     int                        `mapstructure:"max_attempts"`
	RetryBackoff    time.Duration              `mapstructure:"retry_backoff"`
	MaxRetryCount   int                        `mapstructure:"max_retry_count"` // outbox 最大投递次数
	OutboxInterval  time.Duration              `mapstructure:"outbox_interval"`
	OutboxBatchSize int                        `mapstructure:"outbox_batch_size"`
	ReconcileCron   string                     `mapstructure:"reconcile_cron"`
	Limits          map[string]TierLimitConfig `mapstructure:"limits"`
}

// Location 解析限额窗口使用的时区，空值使用本地时区
func (b BusinessConfig) Location() (*time.Location, error) {
	if b.Timezone == "" || strings.EqualFold(b.Timezone, "local") {
		return time.Local, nil
	}
	return time.LoadLocation(b.Timezone)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.operation_timeout", 5*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("database.driver", "mysql")
	v.SetDefault("mysql.max_open_conns", 50)
	v.SetDefault("mysql.max_idle_conns", 10)
	v.SetDefault("sqlite.path", "bank.db")

	v.SetDefault("lock.backend", "local")
	v.SetDefault("lock.ttl", 10*time.Second)
	v.SetDefault("lock.retry_interval", 50*time.Millisecond)
	v.SetDefault("lock.max_retries", 40)

	v.SetDefault("kafka.topic.ledger_events", "ledger_events")

	v.SetDefault("business.timezone", "Local")
	v.SetDefault("business.funding_min", 100)
	v.SetDefault("business.funding_max", 10_000_000)
	v.SetDefault("business.withdrawal_min", 1_000)
	v.SetDefault("business.seed_min", 1_000)
	v.SetDefault("business.seed_max", 50_000)
	v.SetDefault("business.max_attempts", 3)
	v.SetDefault("business.retry_backoff", 20*time.Millisecond)
	v.SetDefault("business.max_retry_count", 5)
	v.SetDefault("business.outbox_interval", 200*time.Millisecond)
	v.SetDefault("business.outbox_batch_size", 100)
	v.SetDefault("business.reconcile_cron", "@every 10m")
}

// LoadConfig 加载配置文件
// 环境变量以 BANK_ 为前缀覆盖文件配置，例如 BANK_MYSQL_PASSWORD
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("BANK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	b := c.Business
	if b.FundingMin <= 0 || b.FundingMax < b.FundingMin {
		return fmt.Errorf("充值金额区间非法: [%d, %d]", b.FundingMin, b.FundingMax)
	}
	if b.WithdrawalMin <= 0 {
		return fmt.Errorf("最小提现金额必须大于0: %d", b.WithdrawalMin)
	}
	if b.SeedMin <= 0 || b.SeedMax < b.SeedMin {
		return fmt.Errorf("开户初始余额区间非法: [%d, %d]", b.SeedMin, b.SeedMax)
	}
	if b.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts 至少为 1: %d", b.MaxAttempts)
	}
	if b.OutboxInterval <= 0 {
		return fmt.Errorf("outbox_interval 必须大于0: %v", b.OutboxInterval)
	}
	if b.OutboxBatchSize < 1 || b.MaxRetryCount < 1 {
		return fmt.Errorf("outbox_batch_size 和 max_retry_count 至少为 1: %d, %d", b.OutboxBatchSize, b.MaxRetryCount)
	}
	if c.Lock.RetryInterval <= 0 {
		return fmt.Errorf("lock.retry_interval 必须大于0: %v", c.Lock.RetryInterval)
	}
	if _, err := b.Location(); err != nil {
		return fmt.Errorf("时区配置错误: %w", err)
	}
	switch c.Database.Driver {
	case "mysql", "sqlite":
	default:
		return fmt.Errorf("不支持的数据库驱动: %s", c.Database.Driver)
	}
	switch c.Lock.Backend {
	case "local", "redis":
	default:
		return fmt.Errorf("不支持的锁类型: %s", c.Lock.Backend)
	}
	return nil
}
