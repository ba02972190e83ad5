package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

//go:embed defaults.yaml
var defaults []byte

// ---- Root ----

type Config struct {
	HTTP       HTTPConfig       `mapstructure:"http"`
	Log        LogConfig        `mapstructure:"log"`
	Database   DatabaseConfig   `mapstructure:"database"`
	ClickHouse DatabaseConfig   `mapstructure:"clickhouse"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	Worker     WorkerConfig     `mapstructure:"worker"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Providers  []ProviderConfig `mapstructure:"providers"`
}

// ---- Leaf structs ----

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // mysql | sqlite
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
	DedupeTTL   time.Duration `mapstructure:"dedupe_ttl"`
}

type KafkaConfig struct {
	Brokers        []string          `mapstructure:"brokers"`
	GroupID        string            `mapstructure:"group_id"`
	IngestTopic    string            `mapstructure:"ingest_topic"`
	DeliveryTopics map[string]string `mapstructure:"delivery_topics"` // action_type -> topic
	MinBytes       int               `mapstructure:"min_bytes"`
	MaxBytes       int               `mapstructure:"max_bytes"`
	CommitInterval int               `mapstructure:"commit_interval_ms"`
}

type WorkerConfig struct {
	BatchSize       int           `mapstructure:"batch_size"`
	MaxAttempts     int           `mapstructure:"max_attempts"`
	Concurrency     int           `mapstructure:"concurrency"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	ExecutorTimeout time.Duration `mapstructure:"executor_timeout"`
	ActionTypes     []string      `mapstructure:"action_types"`
	LeaseTimeout    time.Duration `mapstructure:"lease_timeout"` // 0 disables the reaper
	ReapInterval    time.Duration `mapstructure:"reap_interval"`
}

type RateLimitConfig struct {
	RPS   int `mapstructure:"rps"`
	Burst int `mapstructure:"burst"`
}

type AuthConfig struct {
	APIKeys []string `mapstructure:"api_keys"`
}

type BreakerConfig struct {
	FailThreshold int `mapstructure:"fail_threshold" yaml:"fail_threshold"`
	OpenForMs     int `mapstructure:"open_for_ms"    yaml:"open_for_ms"`
}

type ProviderConfig struct {
	Name      string            `mapstructure:"name"`
	Enabled   bool              `mapstructure:"enabled"`
	BaseURL   string            `mapstructure:"base_url"`
	Routes    map[string]string `mapstructure:"routes"` // action_type -> path
	TimeoutMs int               `mapstructure:"timeout_ms"`
	Breaker   BreakerConfig     `mapstructure:"breaker"`
}

// Load reads embedded defaults, merges user YAML (if provided), and applies env overrides (ACTIONFLOW_*).
func Load(path string) (Config, error) {
	v := viper.New()

	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil && !isNotFound(err) {
			return Config{}, fmt.Errorf("merge %s: %w", path, err)
		}
	}

	// ACTIONFLOW_DATABASE_DSN -> database.dsn
	v.SetEnvPrefix("ACTIONFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func isNotFound(err error) bool {
	var nf viper.ConfigFileNotFoundError
	return errors.As(err, &nf) || errors.Is(err, fs.ErrNotExist)
}
