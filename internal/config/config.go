// Package config defines the configuration structures for ChemPredict.  No I/O
// lives in this file, only plain data types and validation.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// ─────────────────────────────────────────────────────────────────────────────
// Sub-configuration structs
// ─────────────────────────────────────────────────────────────────────────────

// DataConfig locates the synthetic training table.
type DataConfig struct {
	Dir  string `mapstructure:"dir"`
	File string `mapstructure:"file"`
	Rows int    `mapstructure:"rows"`
	// Seed of 0 draws a fresh seed per run.
	Seed uint64 `mapstructure:"seed"`
}

// Path returns the dataset location.
func (d DataConfig) Path() string {
	if filepath.IsAbs(d.File) || d.Dir == "" {
		return d.File
	}
	return filepath.Join(d.Dir, d.File)
}

// ModelConfig locates the persisted artifact and selects the predictor.
type ModelConfig struct {
	Dir            string `mapstructure:"dir"`
	ClassifierFile string `mapstructure:"classifier_file"`
	EncoderFile    string `mapstructure:"encoder_file"`
	Backend        string `mapstructure:"backend"` // "forest" | "rules"
	Watch          bool   `mapstructure:"watch"`
}

// TrainingConfig holds random-forest hyper-parameters.
type TrainingConfig struct {
	NEstimators  int     `mapstructure:"n_estimators"`
	MaxFeatures  int     `mapstructure:"max_features"` // 0 = every column
	TestFraction float64 `mapstructure:"test_fraction"`
	Seed         uint64  `mapstructure:"seed"`
}

// LogConfig holds structured-logging parameters.
type LogConfig struct {
	Level  string `mapstructure:"level"`  // "debug" | "info" | "warn" | "error"
	Format string `mapstructure:"format"` // "json" | "console"
	Output string `mapstructure:"output"`
}

// ServerConfig holds HTTP server tunables.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // "debug" | "release" | "test"
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	MaxBodySize     int64         `mapstructure:"max_body_size"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// CORSOrigins lists allowed browser origins; empty disables CORS.
	CORSOrigins []string `mapstructure:"cors_origins"`
	// RateLimitRPS caps requests per client IP; 0 disables the limit.
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// MetricsConfig controls the Prometheus registry.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
	Path      string `mapstructure:"path"`
}

// MinIOConfig holds MinIO / S3-compatible object-storage parameters.
type MinIOConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	Prefix    string `mapstructure:"prefix"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Region    string `mapstructure:"region"`
}

// StorageConfig selects where model artifacts live.
type StorageConfig struct {
	Backend string      `mapstructure:"backend"` // "local" | "minio"
	MinIO   MinIOConfig `mapstructure:"minio"`
}

// RedisConfig holds prediction-cache parameters.
type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	TTL          time.Duration `mapstructure:"ttl"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
}

// PostgresConfig holds prediction-history database parameters.
type PostgresConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"db_name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN returns a libpq-style connection string.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.DBName, p.SSLMode)
}

// KafkaConfig holds event-publisher parameters.
type KafkaConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Brokers      []string      `mapstructure:"brokers"`
	TopicPrefix  string        `mapstructure:"topic_prefix"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	RequiredAcks int           `mapstructure:"required_acks"`
	Async        bool          `mapstructure:"async"`
}

// FormConfig holds the process-wide terminal appearance.
type FormConfig struct {
	Appearance string `mapstructure:"appearance"` // "dark" | "light" | "system"
	Theme      string `mapstructure:"theme"`      // "charm" | "dracula" | "catppuccin" | "base16" | "base"
}

// ─────────────────────────────────────────────────────────────────────────────
// Root Config
// ─────────────────────────────────────────────────────────────────────────────

// Config is the root configuration structure.
type Config struct {
	Data     DataConfig     `mapstructure:"data"`
	Model    ModelConfig    `mapstructure:"model"`
	Training TrainingConfig `mapstructure:"training"`
	Log      LogConfig      `mapstructure:"log"`
	Server   ServerConfig   `mapstructure:"server"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Form     FormConfig     `mapstructure:"form"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Validation
// ─────────────────────────────────────────────────────────────────────────────

// Validate checks the fully-populated Config and returns the first problem.
func (c *Config) Validate() error {
	if c.Data.File == "" {
		return fmt.Errorf("config: data.file is required")
	}
	if c.Data.Rows < 1 {
		return fmt.Errorf("config: data.rows must be ≥ 1, got %d", c.Data.Rows)
	}

	if c.Model.ClassifierFile == "" || c.Model.EncoderFile == "" {
		return fmt.Errorf("config: model.classifier_file and model.encoder_file are required")
	}
	switch c.Model.Backend {
	case "forest", "rules":
	default:
		return fmt.Errorf("config: model.backend %q is invalid; expected forest|rules", c.Model.Backend)
	}

	if c.Training.NEstimators < 1 {
		return fmt.Errorf("config: training.n_estimators must be ≥ 1, got %d", c.Training.NEstimators)
	}
	if c.Training.MaxFeatures < 0 {
		return fmt.Errorf("config: training.max_features must be ≥ 0, got %d", c.Training.MaxFeatures)
	}
	if c.Training.TestFraction <= 0 || c.Training.TestFraction >= 1 {
		return fmt.Errorf("config: training.test_fraction %v is out of range (0, 1)", c.Training.TestFraction)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d is out of range [1, 65535]", c.Server.Port)
	}
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("config: server.mode %q is invalid; expected debug|release|test", c.Server.Mode)
	}
	if c.Server.RateLimitRPS < 0 || c.Server.RateLimitBurst < 0 {
		return fmt.Errorf("config: server.rate_limit_rps and server.rate_limit_burst must be ≥ 0")
	}

	switch c.Storage.Backend {
	case "local":
	case "minio":
		if c.Storage.MinIO.Endpoint == "" || c.Storage.MinIO.Bucket == "" {
			return fmt.Errorf("config: storage.minio.endpoint and storage.minio.bucket are required for the minio backend")
		}
	default:
		return fmt.Errorf("config: storage.backend %q is invalid; expected local|minio", c.Storage.Backend)
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("config: redis.addr is required when redis is enabled")
	}
	if c.Postgres.Enabled {
		if c.Postgres.Host == "" || c.Postgres.DBName == "" {
			return fmt.Errorf("config: postgres.host and postgres.db_name are required when postgres is enabled")
		}
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("config: kafka.brokers must contain at least one broker when kafka is enabled")
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log.level %q is invalid; expected debug|info|warn|error", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("config: log.format %q is invalid; expected json|console", c.Log.Format)
	}

	switch strings.ToLower(c.Form.Appearance) {
	case "dark", "light", "system":
	default:
		return fmt.Errorf("config: form.appearance %q is invalid; expected dark|light|system", c.Form.Appearance)
	}

	return nil
}
