// Package history defines the audit records kept for predictions and training
// runs, and the persistence contract for them.
package history

import (
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/ChemPredict/internal/domain/reaction"
)

// Record is one served prediction.
type Record struct {
	ID              uuid.UUID                      `json:"id"`
	SubstrateDegree string                         `json:"substrate_degree"`
	LeavingGroup    string                         `json:"leaving_group"`
	Nucleophile     string                         `json:"nucleophile"`
	SolventType     string                         `json:"solvent_type"`
	StericHindrance string                         `json:"steric_hindrance"`
	Temperature     float64                        `json:"temperature"`
	Mechanism       reaction.Mechanism             `json:"mechanism"`
	Probabilities   map[reaction.Mechanism]float64 `json:"probabilities"`
	ModelVersion    string                         `json:"model_version"`
	Backend         string                         `json:"backend"`
	CacheHit        bool                           `json:"cache_hit"`
	Latency         time.Duration                  `json:"latency"`
	CreatedAt       time.Time                      `json:"created_at"`
}

// NewRecord stamps a fresh id.  The descriptor fields are copied as given.
func NewRecord(categorical map[string]string, temperature float64, mech reaction.Mechanism,
	probs map[reaction.Mechanism]float64, modelVersion, backend string, cacheHit bool,
	latency time.Duration, now time.Time,
) *Record {
	return &Record{
		ID:              uuid.New(),
		SubstrateDegree: categorical[reaction.ColSubstrateDegree],
		LeavingGroup:    categorical[reaction.ColLeavingGroup],
		Nucleophile:     categorical[reaction.ColNucleophile],
		SolventType:     categorical[reaction.ColSolventType],
		StericHindrance: categorical[reaction.ColStericHindrance],
		Temperature:     temperature,
		Mechanism:       mech,
		Probabilities:   probs,
		ModelVersion:    modelVersion,
		Backend:         backend,
		CacheHit:        cacheHit,
		Latency:         latency,
		CreatedAt:       now.UTC(),
	}
}

// Query filters List.  Zero values mean "any".
type Query struct {
	Limit     int
	Mechanism reaction.Mechanism
	Backend   string
}

const (
	DefaultLimit = 50
	MaxLimit     = 1000
)

// Normalize clamps Limit into [1, MaxLimit].
func (q Query) Normalize() Query {
	switch {
	case q.Limit <= 0:
		q.Limit = DefaultLimit
	case q.Limit > MaxLimit:
		q.Limit = MaxLimit
	}
	return q
}

// Stats aggregates the prediction log.
type Stats struct {
	Total        int64                        `json:"total"`
	CacheHits    int64                        `json:"cache_hits"`
	ByMechanism  map[reaction.Mechanism]int64 `json:"by_mechanism"`
	AvgLatencyMs float64                      `json:"avg_latency_ms"`
	LastAt       *time.Time                   `json:"last_at,omitempty"`
}

// HitRatio is CacheHits/Total, 0 when empty.
func (s *Stats) HitRatio() float64 {
	if s == nil || s.Total == 0 {
		return 0
	}
	return float64(s.CacheHits) / float64(s.Total)
}

// Run is one completed training run.
type Run struct {
	ModelID   string        `json:"model_id"`
	Version   string        `json:"version"`
	Rows      int           `json:"rows"`
	TrainRows int           `json:"train_rows"`
	TestRows  int           `json:"test_rows"`
	Accuracy  float64       `json:"accuracy"`
	Duration  time.Duration `json:"duration"`
	CreatedAt time.Time     `json:"created_at"`
}
