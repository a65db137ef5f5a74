// Package mechanism trains, persists and serves reaction-mechanism
// classifiers.  A trained model is an Artifact: a random forest plus the
// label encoders that map descriptor categories to feature codes.
package mechanism

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/ChemPredict/internal/application/dataset"
	"github.com/turtacn/ChemPredict/internal/domain/reaction"
	"github.com/turtacn/ChemPredict/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ChemPredict/internal/intelligence/forest"
	"github.com/turtacn/ChemPredict/pkg/errors"
)

const (
	// ModelName identifies the classifier family in metadata.
	ModelName = "chemistry_model"

	DefaultTestFraction = 0.2
	DefaultSplitSeed    = 42
)

// TrainingReport summarises one training run.
type TrainingReport struct {
	ModelID            string               `json:"model_id"`
	Version            string               `json:"version"`
	Rows               int                  `json:"rows"`
	TrainRows          int                  `json:"train_rows"`
	TestRows           int                  `json:"test_rows"`
	Accuracy           float64              `json:"accuracy"`
	Classes            []string             `json:"classes"`
	ClassCounts        []dataset.ClassCount `json:"class_counts"`
	Confusion          [][]int              `json:"confusion"`
	FeatureImportances map[string]float64   `json:"feature_importances"`
	Params             forest.Params        `json:"params"`
	Duration           time.Duration        `json:"duration"`
}

// Trainer fits an Artifact from a labelled table.
type Trainer struct {
	params       forest.Params
	testFraction float64
	splitSeed    uint64
	logger       logging.Logger
	now          func() time.Time
}

// TrainerOption configures a Trainer.
type TrainerOption func(*Trainer)

// WithParams sets the forest hyper-parameters.
func WithParams(p forest.Params) TrainerOption {
	return func(t *Trainer) { t.params = p }
}

// WithTestFraction sets the hold-out fraction.
func WithTestFraction(f float64) TrainerOption {
	return func(t *Trainer) {
		if f > 0 && f < 1 {
			t.testFraction = f
		}
	}
}

// WithSplitSeed sets the train/test shuffle seed.
func WithSplitSeed(seed uint64) TrainerOption {
	return func(t *Trainer) { t.splitSeed = seed }
}

// WithTrainerLogger sets the logger.
func WithTrainerLogger(l logging.Logger) TrainerOption {
	return func(t *Trainer) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithClock overrides the time source used for TrainedAt.
func WithClock(now func() time.Time) TrainerOption {
	return func(t *Trainer) {
		if now != nil {
			t.now = now
		}
	}
}

// NewTrainer returns a Trainer with the default forest (200 trees over every
// column) and an 80/20 split seeded with 42.
func NewTrainer(opts ...TrainerOption) *Trainer {
	t := &Trainer{
		params:       forest.DefaultParams(),
		testFraction: DefaultTestFraction,
		splitSeed:    DefaultSplitSeed,
		logger:       logging.NewNopLogger(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Fit encodes the table into golearn instances, holds out a test split,
// fits the forest on the rest and scores it on the held-out rows.  Encoders
// are fitted on the full table.
func (t *Trainer) Fit(ctx context.Context, tbl *dataset.Table) (*Artifact, *TrainingReport, error) {
	if tbl.Len() == 0 {
		return nil, nil, errors.DatasetInvalid("training table is empty")
	}
	start := t.now()

	n := tbl.Len()
	cols := make(map[string][]string, len(reaction.CategoricalColumns))
	targets := make([]string, n)
	for i, r := range tbl.Rows {
		for c, v := range r.Categorical() {
			cols[c] = append(cols[c], v)
		}
		targets[i] = string(r.Target)
	}
	enc := FitEncoders(cols, targets)

	x := make([][]float64, n)
	y := make([]int, n)
	for i, r := range tbl.Rows {
		v, err := enc.Vector(r.Categorical(), r.Temperature)
		if err != nil {
			return nil, nil, errors.Wrap(err, errors.ErrCodeTrainingFailed, "failed to encode row").
				WithDetail(fmt.Sprintf("row %d", i+1))
		}
		x[i] = v
		y[i], _ = enc.Target.Transform(targets[i])
	}

	schema := enc.Schema()
	grid, err := forest.NewInstances(schema, x, y)
	if err != nil {
		return nil, nil, err
	}
	trainIdx, testIdx := forest.TrainTestSplit(n, t.testFraction, t.splitSeed)
	evalIdx := testIdx
	if len(evalIdx) == 0 {
		evalIdx = trainIdx
	}

	t.logger.Info("training classifier",
		logging.Int("rows", n),
		logging.Int("train_rows", len(trainIdx)),
		logging.Int("test_rows", len(testIdx)),
		logging.Int("trees", t.params.NEstimators),
		logging.Int("max_features", t.params.MaxFeatures))

	rf, err := forest.Fit(ctx, forest.Rows(grid, trainIdx), schema, t.params)
	if err != nil {
		return nil, nil, err
	}
	ev, err := rf.Evaluate(forest.Rows(grid, evalIdx))
	if err != nil {
		return nil, nil, err
	}
	acc := ev.Accuracy

	trainedAt := t.now().UTC()
	id := uuid.New().String()
	meta := Metadata{
		ModelID:      id,
		ModelName:    ModelName,
		Version:      fmt.Sprintf("%d.%s", FormatVersion, trainedAt.Format("20060102150405")),
		Format:       FormatVersion,
		Architecture: architecture,
		TrainedAt:    trainedAt,
		Rows:         n,
		Features:     append([]string(nil), reaction.FeatureColumns...),
		Classes:      append([]string(nil), enc.Target.Classes...),
		Metrics:      map[string]float64{"accuracy": acc},
		Parameters:   t.params,
	}
	art := &Artifact{Metadata: meta, Forest: rf, Encoders: enc}

	imp := rf.SplitShare()
	importances := make(map[string]float64, len(imp))
	for i, c := range reaction.FeatureColumns {
		if i < len(imp) {
			importances[c] = imp[i]
		}
	}

	report := &TrainingReport{
		ModelID:            id,
		Version:            meta.Version,
		Rows:               n,
		TrainRows:          len(trainIdx),
		TestRows:           len(testIdx),
		Accuracy:           acc,
		Classes:            meta.Classes,
		ClassCounts:        tbl.ClassCounts(),
		Confusion:          ev.Confusion,
		FeatureImportances: importances,
		Params:             t.params,
		Duration:           t.now().Sub(start),
	}

	t.logger.Info("classifier trained",
		logging.String("model_id", id),
		logging.Float64("accuracy", acc),
		logging.Duration("elapsed", report.Duration))
	return art, report, nil
}
