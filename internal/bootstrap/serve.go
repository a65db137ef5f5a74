package bootstrap

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/turtacn/ChemPredict/internal/application/prediction"
	"github.com/turtacn/ChemPredict/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/ChemPredict/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ChemPredict/internal/infrastructure/watch"
	"github.com/turtacn/ChemPredict/internal/intelligence/mechanism"
	httpapi "github.com/turtacn/ChemPredict/internal/interfaces/http"
	"github.com/turtacn/ChemPredict/internal/interfaces/http/handlers"
	"github.com/turtacn/ChemPredict/internal/interfaces/http/middleware"
	"github.com/turtacn/ChemPredict/pkg/errors"
)

// NewHandler builds the gin engine for svc.
func (i *Infrastructure) NewHandler(svc *prediction.Service, version string) *gin.Engine {
	gin.SetMode(i.cfg.Server.Mode)

	var cors *middleware.CORSConfig
	if len(i.cfg.Server.CORSOrigins) > 0 {
		c := middleware.DefaultCORSConfig()
		c.AllowedOrigins = i.cfg.Server.CORSOrigins
		cors = &c
	}
	logCfg := middleware.DefaultLoggingConfig()
	if i.cfg.Metrics.Path != "" {
		logCfg.SkipPaths = []string{"/healthz", i.cfg.Metrics.Path}
	}

	var limiter *middleware.RateLimiter
	if i.cfg.Server.RateLimitRPS > 0 {
		rl := middleware.DefaultRateLimitConfig()
		rl.RequestsPerSecond = i.cfg.Server.RateLimitRPS
		rl.Burst = i.cfg.Server.RateLimitBurst
		rl.SkipPaths = logCfg.SkipPaths
		limiter = middleware.NewRateLimiter(rl)
	}

	return httpapi.NewRouter(httpapi.RouterConfig{
		PredictionHandler: handlers.NewPredictionHandler(svc),
		HealthHandler:     handlers.NewHealthHandler(version, i.HealthCheckers()...),
		CORS:              cors,
		Logging:           logCfg,
		RateLimit:         limiter,
		Logger:            i.logger,
		MetricsCollector:  i.Collector,
		Metrics:           i.Metrics,
		MaxBodySize:       i.cfg.Server.MaxBodySize,
	})
}

// Serve runs the HTTP API until ctx is done.  With the forest backend the
// model is loaded up front and reloaded when the artifact directory changes
// or a model.trained event arrives.
func (i *Infrastructure) Serve(ctx context.Context, version string) error {
	svc := i.PredictionService()

	if svc.Backend() == mechanism.BackendForest {
		if err := svc.ReloadModel(ctx); err != nil {
			if !errors.IsArtifactMissing(err) {
				return err
			}
			i.logger.Warn("no trained model yet; predictions fail until one is saved", logging.Err(err))
		}
	}

	srv := httpapi.NewServer(httpapi.ServerConfig{
		Addr:            i.cfg.Server.Addr(),
		ReadTimeout:     i.cfg.Server.ReadTimeout,
		WriteTimeout:    i.cfg.Server.WriteTimeout,
		ShutdownTimeout: i.cfg.Server.ShutdownTimeout,
	}, i.NewHandler(svc, version), i.logger)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	if svc.Backend() == mechanism.BackendForest {
		if err := i.startReloaders(gctx, g, svc); err != nil {
			cancel()
			_ = g.Wait()
			return err
		}
	}

	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		return srv.Stop(context.Background())
	})
	return g.Wait()
}

func (i *Infrastructure) startReloaders(ctx context.Context, g *errgroup.Group, svc *prediction.Service) error {
	if i.cfg.Model.Watch && i.Local != nil {
		names := i.ArtifactNames()
		w, err := watch.NewArtifactWatcher(i.Local.Dir(), []string{names.Classifier, names.Encoders},
			svc.ReloadModel, watch.Options{}, i.logger)
		if err != nil {
			return err
		}
		g.Go(func() error {
			defer w.Close()
			return w.Run(ctx)
		})
	}

	if i.cfg.Kafka.Enabled {
		topic := kafka.TopicName(i.cfg.Kafka.TopicPrefix, kafka.TopicModelTrained)
		// One group per process so every replica sees every event.
		consumer, err := kafka.NewConsumer(kafka.ConsumerConfig{
			Brokers:     i.cfg.Kafka.Brokers,
			GroupID:     "chempredict-reload-" + uuid.NewString(),
			Topics:      []string{topic},
			StartLatest: true,
		}, i.logger)
		if err != nil {
			return err
		}
		consumer.Subscribe(topic, func(ctx context.Context, _ *kafka.EventEnvelope) error {
			return svc.ReloadModel(ctx)
		})
		g.Go(func() error {
			defer consumer.Close()
			return consumer.Run(ctx)
		})
	}
	return nil
}
