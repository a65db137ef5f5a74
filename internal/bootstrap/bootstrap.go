// Package bootstrap turns a loaded Config into wired infrastructure and
// application services.  Every optional backend is opened only when its
// section is enabled.
package bootstrap

import (
	"context"
	"strings"

	"github.com/turtacn/ChemPredict/internal/application/prediction"
	"github.com/turtacn/ChemPredict/internal/application/training"
	"github.com/turtacn/ChemPredict/internal/config"
	"github.com/turtacn/ChemPredict/internal/infrastructure/database/postgres"
	"github.com/turtacn/ChemPredict/internal/infrastructure/database/postgres/repositories"
	"github.com/turtacn/ChemPredict/internal/infrastructure/database/redis"
	"github.com/turtacn/ChemPredict/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/ChemPredict/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ChemPredict/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/ChemPredict/internal/infrastructure/storage/local"
	"github.com/turtacn/ChemPredict/internal/infrastructure/storage/minio"
	"github.com/turtacn/ChemPredict/internal/intelligence/forest"
	"github.com/turtacn/ChemPredict/internal/intelligence/mechanism"
	"github.com/turtacn/ChemPredict/internal/interfaces/http/handlers"
	"github.com/turtacn/ChemPredict/pkg/errors"
)

// trainingLockName serialises training runs across processes.
const trainingLockName = "chempredict:training"

// NewLogger builds the process logger from the log section.
func NewLogger(cfg config.LogConfig) (logging.Logger, error) {
	out := []string{cfg.Output}
	if cfg.Output == "" {
		out = []string{"stderr"}
	}
	return logging.NewLogger(logging.LogConfig{
		Level:            cfg.Level,
		Format:           cfg.Format,
		OutputPaths:      out,
		ErrorOutputPaths: []string{"stderr"},
	})
}

// Infrastructure holds the opened backends of one process.
type Infrastructure struct {
	cfg    *config.Config
	logger logging.Logger

	Store     mechanism.BlobStore
	Local     *local.Store
	MinIO     *minio.Client
	Redis     *redis.Client
	Postgres  *postgres.Connection
	History   *repositories.HistoryRepo
	Producer  *kafka.Producer
	Events    *kafka.EventPublisher
	Collector prometheus.MetricsCollector
	Metrics   *prometheus.AppMetrics
}

// Open connects every enabled backend.  On failure the backends opened so
// far are closed.
func Open(ctx context.Context, cfg *config.Config, logger logging.Logger) (*Infrastructure, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	infra := &Infrastructure{cfg: cfg, logger: logger}

	if err := infra.openStore(); err != nil {
		return nil, err
	}

	if cfg.Metrics.Enabled {
		collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{
			Namespace:            cfg.Metrics.Namespace,
			EnableProcessMetrics: true,
			EnableGoMetrics:      true,
		}, logger)
		if err != nil {
			infra.Close()
			return nil, err
		}
		infra.Collector = collector
		infra.Metrics = prometheus.NewAppMetrics(collector)
	}

	if cfg.Redis.Enabled {
		client, err := redis.NewClient(redis.Config{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		}, logger)
		if err != nil {
			infra.Close()
			return nil, err
		}
		infra.Redis = client
	}

	if cfg.Postgres.Enabled {
		if err := infra.openPostgres(ctx); err != nil {
			infra.Close()
			return nil, err
		}
	}

	if cfg.Kafka.Enabled {
		producer, err := kafka.NewProducer(kafka.ProducerConfig{
			Brokers:      cfg.Kafka.Brokers,
			RequiredAcks: cfg.Kafka.RequiredAcks,
			BatchTimeout: cfg.Kafka.BatchTimeout,
			Async:        cfg.Kafka.Async,
		}, logger)
		if err != nil {
			infra.Close()
			return nil, err
		}
		infra.Producer = producer
		infra.Events = kafka.NewEventPublisher(producer, cfg.Kafka.TopicPrefix, "chempredict", logger)
	}

	logger.Info("infrastructure initialized",
		logging.String("storage", cfg.Storage.Backend),
		logging.Bool("redis", infra.Redis != nil),
		logging.Bool("postgres", infra.Postgres != nil),
		logging.Bool("kafka", infra.Producer != nil),
		logging.Bool("metrics", infra.Collector != nil))
	return infra, nil
}

func (i *Infrastructure) openStore() error {
	switch strings.ToLower(i.cfg.Storage.Backend) {
	case "", "local":
		i.Local = local.New(i.cfg.Model.Dir, i.logger)
		i.Store = i.Local
	case "minio":
		m := i.cfg.Storage.MinIO
		client, err := minio.NewClient(minio.Config{
			Endpoint:  m.Endpoint,
			AccessKey: m.AccessKey,
			SecretKey: m.SecretKey,
			Bucket:    m.Bucket,
			Prefix:    m.Prefix,
			UseSSL:    m.UseSSL,
			Region:    m.Region,
		}, i.logger)
		if err != nil {
			return err
		}
		i.MinIO = client
		i.Store = minio.NewArtifactStore(client, i.logger)
	default:
		return errors.New(errors.ErrCodeValidation, "unknown storage backend").WithDetail(i.cfg.Storage.Backend)
	}
	return nil
}

func (i *Infrastructure) openPostgres(ctx context.Context) error {
	p := i.cfg.Postgres
	pgCfg := postgres.Config{
		Host:            p.Host,
		Port:            p.Port,
		Database:        p.DBName,
		Username:        p.User,
		Password:        p.Password,
		SSLMode:         p.SSLMode,
		MaxOpenConns:    p.MaxOpenConns,
		MaxIdleConns:    p.MaxIdleConns,
		ConnMaxLifetime: p.ConnMaxLifetime,
	}
	if p.AutoMigrate {
		if err := postgres.NewMigrator(postgres.BuildDSN(pgCfg), i.logger).Up(); err != nil {
			return err
		}
	}
	conn, err := postgres.NewConnection(pgCfg, i.logger)
	if err != nil {
		return err
	}
	if err := conn.HealthCheck(ctx); err != nil {
		_ = conn.Close()
		return err
	}
	i.Postgres = conn
	i.History = repositories.NewHistoryRepo(conn, i.logger)
	return nil
}

// ArtifactNames returns the configured blob names.
func (i *Infrastructure) ArtifactNames() mechanism.ArtifactNames {
	return mechanism.ArtifactNames{
		Classifier: i.cfg.Model.ClassifierFile,
		Encoders:   i.cfg.Model.EncoderFile,
	}
}

// Predictor returns the configured backend.
func (i *Infrastructure) Predictor() mechanism.Predictor {
	if i.cfg.Model.Backend == mechanism.BackendRules {
		return mechanism.NewRulePredictor()
	}
	return mechanism.NewForestPredictor(i.Store, i.ArtifactNames(), i.logger)
}

// PredictionService wires the predictor with every enabled side channel.
func (i *Infrastructure) PredictionService() *prediction.Service {
	opts := []prediction.Option{prediction.WithLogger(i.logger)}
	if i.Metrics != nil {
		opts = append(opts, prediction.WithMetrics(i.Metrics))
	}
	if i.Redis != nil {
		cache := redis.NewRedisCache(i.Redis, i.logger, redis.WithPrefix(i.cfg.Redis.KeyPrefix))
		opts = append(opts, prediction.WithCache(redis.NewPredictionCache(cache, i.cfg.Redis.TTL, i.logger)))
	}
	if i.History != nil {
		opts = append(opts, prediction.WithHistory(i.History))
	}
	if i.Events != nil {
		opts = append(opts, prediction.WithEvents(i.Events))
	}
	return prediction.NewService(i.Predictor(), i.cfg.Model.Backend, opts...)
}

// TrainingService wires the trainer with the configured hyper-parameters.
func (i *Infrastructure) TrainingService() *training.Service {
	t := i.cfg.Training
	trainer := mechanism.NewTrainer(
		mechanism.WithParams(forest.Params{
			NEstimators: t.NEstimators,
			MaxFeatures: t.MaxFeatures,
		}),
		mechanism.WithTestFraction(t.TestFraction),
		mechanism.WithSplitSeed(t.Seed),
		mechanism.WithTrainerLogger(i.logger),
	)

	opts := []training.Option{training.WithLogger(i.logger)}
	if i.cfg.Data.Seed != 0 {
		opts = append(opts, training.WithSeed(i.cfg.Data.Seed))
	}
	if i.Metrics != nil {
		opts = append(opts, training.WithMetrics(i.Metrics))
	}
	if i.History != nil {
		opts = append(opts, training.WithRuns(i.History))
	}
	if i.Events != nil {
		opts = append(opts, training.WithEvents(i.Events))
	}
	if i.Redis != nil {
		opts = append(opts, training.WithLock(redis.NewMutex(i.Redis, trainingLockName, i.logger)))
	}
	return training.NewService(i.Store, i.ArtifactNames(), trainer, opts...)
}

// HealthCheckers returns one checker per opened backend.
func (i *Infrastructure) HealthCheckers() []handlers.HealthChecker {
	var out []handlers.HealthChecker
	if i.Redis != nil {
		out = append(out, handlers.CheckFunc{ComponentName: "redis", Fn: i.Redis.Ping})
	}
	if i.Postgres != nil {
		out = append(out, handlers.CheckFunc{ComponentName: "postgres", Fn: i.Postgres.HealthCheck})
	}
	if i.MinIO != nil {
		out = append(out, handlers.CheckFunc{ComponentName: "minio", Fn: func(ctx context.Context) error {
			_, err := i.MinIO.HealthCheck(ctx)
			return err
		}})
	}
	return out
}

// Close releases every opened backend in reverse order.
func (i *Infrastructure) Close() {
	if i.Events != nil {
		if err := i.Events.Close(); err != nil {
			i.logger.Warn("kafka publisher close failed", logging.Err(err))
		}
	} else if i.Producer != nil {
		_ = i.Producer.Close()
	}
	if i.Postgres != nil {
		_ = i.Postgres.Close()
	}
	if i.Redis != nil {
		_ = i.Redis.Close()
	}
}
