// Package prediction serves mechanism predictions and keeps their audit
// trail.  The cache, history log, event stream and metrics are optional; a
// failure in any of them is logged and never fails the prediction.
package prediction

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/ChemPredict/internal/domain/history"
	"github.com/turtacn/ChemPredict/internal/domain/reaction"
	"github.com/turtacn/ChemPredict/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ChemPredict/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/ChemPredict/internal/intelligence/mechanism"
	"github.com/turtacn/ChemPredict/pkg/errors"
)

const (
	cacheName  = "prediction"
	eventName  = "prediction.completed"
	sideEffect = 2 * time.Second
)

// ErrHistoryDisabled is returned by History and Stats when no repository is
// configured.
var ErrHistoryDisabled = errors.New(errors.ErrCodeServiceUnavailable, "prediction history is not configured")

// Cache memoises predictions.  hit reports whether the value was cached.
type Cache interface {
	GetOrPredict(ctx context.Context, backend string, in mechanism.Input,
		predict func(ctx context.Context) (*mechanism.Prediction, error)) (pred *mechanism.Prediction, hit bool, err error)
	Invalidate(ctx context.Context) (int64, error)
}

// EventPublisher announces served predictions.
type EventPublisher interface {
	PredictionCompleted(ctx context.Context, r *history.Record) error
}

type reloader interface {
	Reload(ctx context.Context) error
}

type artifactSource interface {
	Artifact(ctx context.Context) (*mechanism.Artifact, error)
}

// Result is a served prediction.
type Result struct {
	mechanism.Prediction
	ID        uuid.UUID `json:"id"`
	CacheHit  bool      `json:"cache_hit"`
	LatencyMs float64   `json:"latency_ms"`
}

// Service orchestrates one prediction end to end.
type Service struct {
	predictor mechanism.Predictor
	backend   string
	cache     Cache
	history   history.Repository
	events    EventPublisher
	metrics   *prometheus.AppMetrics
	logger    logging.Logger
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

func WithCache(c Cache) Option { return func(s *Service) { s.cache = c } }

func WithHistory(r history.Repository) Option { return func(s *Service) { s.history = r } }

func WithEvents(p EventPublisher) Option { return func(s *Service) { s.events = p } }

func WithMetrics(m *prometheus.AppMetrics) Option { return func(s *Service) { s.metrics = m } }

func WithLogger(l logging.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock replaces time.Now for record timestamps and latency.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// NewService returns a Service answering from predictor under the given
// backend name.
func NewService(predictor mechanism.Predictor, backend string, opts ...Option) *Service {
	s := &Service{
		predictor: predictor,
		backend:   backend,
		logger:    logging.NewNopLogger(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Backend returns the backend name.
func (s *Service) Backend() string { return s.backend }

// Predict classifies in.
func (s *Service) Predict(ctx context.Context, in mechanism.Input) (*Result, error) {
	start := s.now()

	var (
		pred *mechanism.Prediction
		hit  bool
		err  error
	)
	if s.cache != nil {
		pred, hit, err = s.cache.GetOrPredict(ctx, s.backend, in, func(ctx context.Context) (*mechanism.Prediction, error) {
			return s.predictor.Predict(ctx, in)
		})
	} else {
		pred, err = s.predictor.Predict(ctx, in)
	}
	if err != nil {
		prometheus.RecordPredictionError(s.metrics, s.backend, err)
		s.logger.Debug("prediction rejected",
			logging.String("backend", s.backend),
			logging.String("code", string(errors.GetCode(err))),
			logging.Err(err))
		return nil, err
	}

	if s.backend == mechanism.BackendForest {
		if d, derr := in.Descriptor(); derr == nil && !d.HindranceConsistent() {
			s.logger.Warn("steric hindrance differs from the nucleophile catalog; the forest never saw this combination",
				logging.String("nucleophile", string(d.Nucleophile)),
				logging.String("hindrance", string(d.StericHindrance)))
		}
	}

	latency := s.now().Sub(start)
	prometheus.RecordPrediction(s.metrics, s.backend, string(pred.Mechanism), latency)
	if s.cache != nil {
		prometheus.RecordCacheAccess(s.metrics, cacheName, hit)
	}

	rec := history.NewRecord(fields(in), *in.Temperature, pred.Mechanism, pred.Probabilities,
		pred.ModelVersion, pred.Backend, hit, latency, s.now())
	s.audit(ctx, rec)

	s.logger.Info("prediction served",
		logging.String("id", rec.ID.String()),
		logging.String("mechanism", string(pred.Mechanism)),
		logging.String("backend", pred.Backend),
		logging.Bool("cache_hit", hit),
		logging.Duration("latency", latency))

	return &Result{
		Prediction: *pred,
		ID:         rec.ID,
		CacheHit:   hit,
		LatencyMs:  float64(latency) / float64(time.Millisecond),
	}, nil
}

// audit writes the history record and publishes the event, each under its
// own deadline.
func (s *Service) audit(ctx context.Context, rec *history.Record) {
	if s.history != nil {
		hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffect)
		err := s.history.Record(hctx, rec)
		cancel()
		prometheus.RecordHistoryWrite(s.metrics, err)
		if err != nil {
			s.logger.Warn("prediction history write failed", logging.String("id", rec.ID.String()), logging.Err(err))
		}
	}
	if s.events != nil {
		ectx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffect)
		err := s.events.PredictionCompleted(ectx, rec)
		cancel()
		prometheus.RecordEvent(s.metrics, eventName, err)
		if err != nil {
			s.logger.Warn("prediction event publish failed", logging.String("id", rec.ID.String()), logging.Err(err))
		}
	}
}

func fields(in mechanism.Input) map[string]string {
	return map[string]string{
		reaction.ColSubstrateDegree: in.SubstrateDegree,
		reaction.ColLeavingGroup:    in.LeavingGroup,
		reaction.ColNucleophile:     in.Nucleophile,
		reaction.ColSolventType:     in.SolventType,
		reaction.ColStericHindrance: in.StericHindrance,
	}
}

// History returns recent predictions, newest first.
func (s *Service) History(ctx context.Context, q history.Query) ([]*history.Record, error) {
	if s.history == nil {
		return nil, ErrHistoryDisabled
	}
	return s.history.List(ctx, q.Normalize())
}

// Stats aggregates the prediction log.
func (s *Service) Stats(ctx context.Context) (*history.Stats, error) {
	if s.history == nil {
		return nil, ErrHistoryDisabled
	}
	return s.history.Stats(ctx)
}

// Model returns the metadata of the active artifact.  The rule backend has
// none and yields NotFound.
func (s *Service) Model(ctx context.Context) (*mechanism.Metadata, error) {
	src, ok := s.predictor.(artifactSource)
	if !ok {
		return nil, errors.NotFound("backend " + s.backend + " has no model artifact")
	}
	a, err := src.Artifact(ctx)
	if err != nil {
		return nil, err
	}
	meta := a.Metadata
	return &meta, nil
}

// ReloadModel swaps in the stored artifact and drops cached predictions.
// Backends without an artifact ignore it.
func (s *Service) ReloadModel(ctx context.Context) error {
	r, ok := s.predictor.(reloader)
	if !ok {
		s.logger.Debug("reload ignored", logging.String("backend", s.backend))
		return nil
	}
	err := r.Reload(ctx)
	prometheus.RecordReload(s.metrics, err)
	if err != nil {
		return err
	}
	if s.cache != nil {
		if _, err := s.cache.Invalidate(ctx); err != nil {
			s.logger.Warn("cache invalidation after reload failed", logging.Err(err))
		}
	}
	return nil
}
