package config

import (
	"bytes"
	_ "embed"
	"time"

	"github.com/spf13/viper"
)

//go:embed defaults.yaml
var defaults []byte

// ---- Root ----

type Config struct {
	HTTP       HTTPConfig      `mapstructure:"http"`
	MySQL      DatabaseConfig  `mapstructure:"mysql"`
	ClickHouse DatabaseConfig  `mapstructure:"clickhouse"`
	Redis      RedisConfig     `mapstructure:"redis"`
	Kafka      KafkaConfig     `mapstructure:"kafka"`
	Vault      VaultConfig     `mapstructure:"vault"`
	Dispatch   DispatchConfig  `mapstructure:"dispatch"`
	Tracking   TrackingConfig  `mapstructure:"tracking"`
	SMTP       SMTPConfig      `mapstructure:"smtp"`
	IMAP       IMAPConfig      `mapstructure:"imap"`
	RateLimit  RateLimitConfig `mapstructure:"rate_limit"`
	LogLevel   string          `mapstructure:"log_level"`
}

// ---- Leaf structs ----

type HTTPConfig struct {
	Addr   string `mapstructure:"addr"`
	APIKey string `mapstructure:"api_key"`
}

type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idletime"`
	PingTimeout     time.Duration `mapstructure:"ping_timeout"`
}

type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

type KafkaConfig struct {
	Brokers      []string      `mapstructure:"brokers"`
	EventsTopic  string        `mapstructure:"events_topic"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type VaultConfig struct {
	// KeyHex is the 32-byte AES key, hex encoded. Usually injected via
	// COLDMAIL_VAULT_KEYHEX rather than written into a config file.
	KeyHex string `mapstructure:"keyhex"`
}

type DispatchConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	BatchSize   int           `mapstructure:"batch_size"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	ClaimTTL    time.Duration `mapstructure:"claim_ttl"`
	LockTTL     time.Duration `mapstructure:"lock_ttl"`
}

type TrackingConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

type SMTPConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

type IMAPConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	Lookback time.Duration `mapstructure:"lookback"`
}

type RateLimitConfig struct {
	RPS   int `mapstructure:"rps"`
	Burst int `mapstructure:"burst"`
}

// Load reads embedded defaults, merges user YAML (if provided), and applies env overrides (COLDMAIL_*).
func Load(path string) (Config, error) {
	v := viper.New()

	// embedded defaults
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		_ = v.MergeInConfig()
	}

	// env override (COLDMAIL_*)
	v.SetEnvPrefix("COLDMAIL")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
