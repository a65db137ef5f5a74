// Package training generates synthetic datasets and turns them into stored
// model artifacts.
package training

import (
	"context"
	"time"

	"github.com/turtacn/ChemPredict/internal/application/dataset"
	"github.com/turtacn/ChemPredict/internal/domain/history"
	"github.com/turtacn/ChemPredict/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ChemPredict/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/ChemPredict/internal/intelligence/mechanism"
	"github.com/turtacn/ChemPredict/pkg/errors"
)

const eventName = "model.trained"

// EventPublisher announces trained models.
type EventPublisher interface {
	ModelTrained(ctx context.Context, run *history.Run) error
}

// Locker serialises training across processes.
type Locker interface {
	Lock(ctx context.Context) error
	Unlock(ctx context.Context) error
}

// GenerateReport describes a written dataset.
type GenerateReport struct {
	Path        string               `json:"path"`
	Rows        int                  `json:"rows"`
	ClassCounts []dataset.ClassCount `json:"class_counts"`
}

// Service runs the generate and train pipelines.
type Service struct {
	store   mechanism.BlobStore
	names   mechanism.ArtifactNames
	trainer *mechanism.Trainer

	seed    *uint64
	events  EventPublisher
	runs    history.RunRepository
	lock    Locker
	metrics *prometheus.AppMetrics
	logger  logging.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithSeed makes Generate reproducible.
func WithSeed(seed uint64) Option { return func(s *Service) { s.seed = &seed } }

func WithEvents(p EventPublisher) Option { return func(s *Service) { s.events = p } }

func WithRuns(r history.RunRepository) Option { return func(s *Service) { s.runs = r } }

// WithLock holds l for the duration of Train.
func WithLock(l Locker) Option { return func(s *Service) { s.lock = l } }

func WithMetrics(m *prometheus.AppMetrics) Option { return func(s *Service) { s.metrics = m } }

func WithLogger(l logging.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService returns a Service that saves artifacts under names in store.
func NewService(store mechanism.BlobStore, names mechanism.ArtifactNames, trainer *mechanism.Trainer, opts ...Option) *Service {
	if trainer == nil {
		trainer = mechanism.NewTrainer()
	}
	s := &Service{
		store:   store,
		names:   names,
		trainer: trainer,
		logger:  logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Generate synthesizes labelled rows and writes them to path.
func (s *Service) Generate(ctx context.Context, rows int, path string) (*GenerateReport, error) {
	opts := []dataset.SynthesizerOption{dataset.WithLogger(s.logger)}
	if s.seed != nil {
		opts = append(opts, dataset.WithSeed(*s.seed))
	}
	tbl, err := dataset.NewSynthesizer(opts...).Generate(ctx, rows)
	if err != nil {
		return nil, err
	}
	if err := tbl.SaveFile(path); err != nil {
		return nil, err
	}

	counts := tbl.ClassCounts()
	fields := []logging.Field{logging.String("path", path), logging.Int("rows", tbl.Len())}
	for _, c := range counts {
		fields = append(fields, logging.Int(string(c.Mechanism), c.Count))
		prometheus.RecordDatasetRows(s.metrics, string(c.Mechanism), c.Count)
	}
	s.logger.Info("dataset written", fields...)

	return &GenerateReport{Path: path, Rows: tbl.Len(), ClassCounts: counts}, nil
}

// Train fits a classifier on the CSV at path and stores the artifact.  The
// run record and event are best effort.
func (s *Service) Train(ctx context.Context, path string) (report *mechanism.TrainingReport, err error) {
	if s.lock != nil {
		if err := s.lock.Lock(ctx); err != nil {
			return nil, err
		}
		defer func() {
			if uerr := s.lock.Unlock(context.WithoutCancel(ctx)); uerr != nil {
				s.logger.Warn("training lock release failed", logging.Err(uerr))
			}
		}()
	}

	start := time.Now()
	defer func() {
		version, acc := "", 0.0
		if report != nil {
			version, acc = report.Version, report.Accuracy
		}
		prometheus.RecordTrainingRun(s.metrics, version, acc, time.Since(start), err)
	}()

	tbl, err := dataset.LoadFile(path)
	if err != nil {
		return nil, err
	}
	art, report, err := s.trainer.Fit(ctx, tbl)
	if err != nil {
		return nil, err
	}
	if err := mechanism.SaveArtifact(ctx, s.store, s.names, art); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeTrainingFailed, "failed to save model artifact")
	}

	s.logger.Info("model trained",
		logging.String("model_id", report.ModelID),
		logging.String("version", report.Version),
		logging.Int("rows", report.Rows),
		logging.Float64("accuracy", report.Accuracy),
		logging.Duration("duration", report.Duration))

	run := &history.Run{
		ModelID:   report.ModelID,
		Version:   report.Version,
		Rows:      report.Rows,
		TrainRows: report.TrainRows,
		TestRows:  report.TestRows,
		Accuracy:  report.Accuracy,
		Duration:  report.Duration,
		CreatedAt: art.Metadata.TrainedAt,
	}
	if s.runs != nil {
		if err := s.runs.RecordRun(ctx, run); err != nil {
			s.logger.Warn("training run record failed", logging.Err(err))
		}
	}
	if s.events != nil {
		perr := s.events.ModelTrained(ctx, run)
		prometheus.RecordEvent(s.metrics, eventName, perr)
		if perr != nil {
			s.logger.Warn("model trained event publish failed", logging.Err(perr))
		}
	}
	return report, nil
}

// Runs lists recent training runs.
func (s *Service) Runs(ctx context.Context, limit int) ([]*history.Run, error) {
	if s.runs == nil {
		return nil, errors.New(errors.ErrCodeServiceUnavailable, "training history is not configured")
	}
	return s.runs.ListRuns(ctx, limit)
}
