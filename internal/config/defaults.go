package config

import "time"

// ─────────────────────────────────────────────────────────────────────────────
// Default value constants
// ─────────────────────────────────────────────────────────────────────────────

const (
	DefaultDataDir  = "data"
	DefaultDataFile = "organic_reaction_dataset.csv"
	DefaultDataRows = 5000

	DefaultModelDir       = "models"
	DefaultClassifierFile = "chemistry_model_v2.json"
	DefaultEncoderFile    = "label_encoders.json"
	DefaultModelBackend   = "forest"

	DefaultNEstimators  = 200
	DefaultTestFraction = 0.2
	DefaultTrainingSeed = 42

	DefaultServerHost = "0.0.0.0"
	DefaultServerPort = 8080
	DefaultServerMode = "release"

	DefaultMetricsNamespace = "chempredict"
	DefaultMetricsPath      = "/metrics"

	DefaultStorageBackend = "local"
	DefaultMinIOBucket    = "chempredict-models"

	DefaultRedisAddr      = "localhost:6379"
	DefaultRedisKeyPrefix = "chempredict:"
	DefaultRedisTTL       = 24 * time.Hour

	DefaultPostgresHost = "localhost"
	DefaultPostgresPort = 5432
	DefaultPostgresDB   = "chempredict"

	DefaultKafkaBroker      = "localhost:9092"
	DefaultKafkaTopicPrefix = "chempredict."

	DefaultLogLevel  = "info"
	DefaultLogFormat = "console"

	DefaultFormAppearance = "dark"
	DefaultFormTheme      = "charm"
)

// Defaults returns a Config with every field at its default value.  The loader
// registers it with viper so that environment overrides resolve for every key.
func Defaults() *Config {
	cfg := &Config{
		Metrics: MetricsConfig{Enabled: true},
		Model:   ModelConfig{Watch: true},
		Postgres: PostgresConfig{
			AutoMigrate: true,
		},
	}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills every zero-value field in cfg with its default.  Values
// already set are left unchanged.  Booleans cannot be told apart from "unset"
// and are left alone.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	// ── Data ──────────────────────────────────────────────────────────────────
	if cfg.Data.Dir == "" {
		cfg.Data.Dir = DefaultDataDir
	}
	if cfg.Data.File == "" {
		cfg.Data.File = DefaultDataFile
	}
	if cfg.Data.Rows == 0 {
		cfg.Data.Rows = DefaultDataRows
	}

	// ── Model ─────────────────────────────────────────────────────────────────
	if cfg.Model.Dir == "" {
		cfg.Model.Dir = DefaultModelDir
	}
	if cfg.Model.ClassifierFile == "" {
		cfg.Model.ClassifierFile = DefaultClassifierFile
	}
	if cfg.Model.EncoderFile == "" {
		cfg.Model.EncoderFile = DefaultEncoderFile
	}
	if cfg.Model.Backend == "" {
		cfg.Model.Backend = DefaultModelBackend
	}

	// ── Training ──────────────────────────────────────────────────────────────
	if cfg.Training.NEstimators == 0 {
		cfg.Training.NEstimators = DefaultNEstimators
	}
	if cfg.Training.TestFraction == 0 {
		cfg.Training.TestFraction = DefaultTestFraction
	}
	if cfg.Training.Seed == 0 {
		cfg.Training.Seed = DefaultTrainingSeed
	}

	// ── Log ───────────────────────────────────────────────────────────────────
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stderr"
	}

	// ── Server ────────────────────────────────────────────────────────────────
	if cfg.Server.Host == "" {
		cfg.Server.Host = DefaultServerHost
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultServerPort
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = DefaultServerMode
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 15 * time.Second
	}
	if cfg.Server.MaxBodySize == 0 {
		cfg.Server.MaxBodySize = 1 << 20
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	// ── Metrics ───────────────────────────────────────────────────────────────
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}

	// ── Storage ───────────────────────────────────────────────────────────────
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = DefaultStorageBackend
	}
	if cfg.Storage.MinIO.Bucket == "" {
		cfg.Storage.MinIO.Bucket = DefaultMinIOBucket
	}

	// ── Redis ─────────────────────────────────────────────────────────────────
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = DefaultRedisAddr
	}
	if cfg.Redis.PoolSize == 0 {
		cfg.Redis.PoolSize = 10
	}
	if cfg.Redis.DialTimeout == 0 {
		cfg.Redis.DialTimeout = 5 * time.Second
	}
	if cfg.Redis.ReadTimeout == 0 {
		cfg.Redis.ReadTimeout = 3 * time.Second
	}
	if cfg.Redis.WriteTimeout == 0 {
		cfg.Redis.WriteTimeout = 3 * time.Second
	}
	if cfg.Redis.TTL == 0 {
		cfg.Redis.TTL = DefaultRedisTTL
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = DefaultRedisKeyPrefix
	}

	// ── Postgres ──────────────────────────────────────────────────────────────
	if cfg.Postgres.Host == "" {
		cfg.Postgres.Host = DefaultPostgresHost
	}
	if cfg.Postgres.Port == 0 {
		cfg.Postgres.Port = DefaultPostgresPort
	}
	if cfg.Postgres.DBName == "" {
		cfg.Postgres.DBName = DefaultPostgresDB
	}
	if cfg.Postgres.SSLMode == "" {
		cfg.Postgres.SSLMode = "disable"
	}
	if cfg.Postgres.MaxOpenConns == 0 {
		cfg.Postgres.MaxOpenConns = 10
	}
	if cfg.Postgres.MaxIdleConns == 0 {
		cfg.Postgres.MaxIdleConns = 5
	}
	if cfg.Postgres.ConnMaxLifetime == 0 {
		cfg.Postgres.ConnMaxLifetime = 30 * time.Minute
	}

	// ── Kafka ─────────────────────────────────────────────────────────────────
	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{DefaultKafkaBroker}
	}
	if cfg.Kafka.TopicPrefix == "" {
		cfg.Kafka.TopicPrefix = DefaultKafkaTopicPrefix
	}
	if cfg.Kafka.BatchTimeout == 0 {
		cfg.Kafka.BatchTimeout = 50 * time.Millisecond
	}
	if cfg.Kafka.RequiredAcks == 0 {
		cfg.Kafka.RequiredAcks = 1
	}

	// ── Form ──────────────────────────────────────────────────────────────────
	if cfg.Form.Appearance == "" {
		cfg.Form.Appearance = DefaultFormAppearance
	}
	if cfg.Form.Theme == "" {
		cfg.Form.Theme = DefaultFormTheme
	}
}
