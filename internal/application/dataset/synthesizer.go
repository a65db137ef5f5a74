package dataset

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/turtacn/ChemPredict/internal/domain/reaction"
	"github.com/turtacn/ChemPredict/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ChemPredict/pkg/errors"
)

// ctxCheckEvery is how many rows are generated between cancellation checks.
const ctxCheckEvery = 1024

// Synthesizer draws descriptors uniformly from the catalogs and labels them
// with the rule engine.  It is not safe for concurrent use.
type Synthesizer struct {
	rng    *rand.Rand
	logger logging.Logger

	substrates    []reaction.SubstrateDegree
	solvents      []reaction.SolventType
	leavingGroups []reaction.LeavingGroup
	nucleophiles  []reaction.NucleophileInfo
}

// SynthesizerOption configures a Synthesizer.
type SynthesizerOption func(*Synthesizer)

// WithSeed makes generation reproducible.
func WithSeed(seed uint64) SynthesizerOption {
	return func(s *Synthesizer) {
		s.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

// WithRand injects a random source.
func WithRand(r *rand.Rand) SynthesizerOption {
	return func(s *Synthesizer) {
		if r != nil {
			s.rng = r
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) SynthesizerOption {
	return func(s *Synthesizer) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSynthesizer returns a Synthesizer seeded from the clock unless an option
// says otherwise.
func NewSynthesizer(opts ...SynthesizerOption) *Synthesizer {
	now := uint64(time.Now().UnixNano())
	s := &Synthesizer{
		rng:           rand.New(rand.NewPCG(now, now>>1)),
		logger:        logging.NewNopLogger(),
		substrates:    reaction.SubstrateDegrees(),
		solvents:      reaction.SolventTypes(),
		leavingGroups: reaction.LeavingGroups(),
		nucleophiles:  reaction.NucleophileCatalog(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Row draws one labelled row.  Steric hindrance is copied from the chosen
// nucleophile's catalog entry.
func (s *Synthesizer) Row() Row {
	nu := s.nucleophiles[s.rng.IntN(len(s.nucleophiles))]
	d := reaction.Descriptor{
		SubstrateDegree: s.substrates[s.rng.IntN(len(s.substrates))],
		LeavingGroup:    s.leavingGroups[s.rng.IntN(len(s.leavingGroups))],
		Nucleophile:     nu.Name,
		SolventType:     s.solvents[s.rng.IntN(len(s.solvents))],
		StericHindrance: nu.Hindrance,
		Temperature:     roundTenth(s.rng.Float64() * reaction.MaxTemperature),
	}
	return Row{Descriptor: d, Target: reaction.DetermineMechanism(d)}
}

// Generate draws n rows.  Every draw produces exactly one row.
func (s *Synthesizer) Generate(ctx context.Context, n int) (*Table, error) {
	if n <= 0 {
		return nil, errors.InvalidInput("row count must be positive")
	}
	start := time.Now()
	t := &Table{Rows: make([]Row, 0, n)}
	for i := 0; i < n; i++ {
		if i%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, errors.Wrap(err, errors.ErrCodeTimeout, "dataset generation cancelled")
			}
		}
		t.Rows = append(t.Rows, s.Row())
	}
	s.logger.Debug("dataset generated",
		logging.Int("rows", n),
		logging.Duration("elapsed", time.Since(start)))
	return t, nil
}

func roundTenth(x float64) float64 {
	return math.Round(x*10) / 10
}
