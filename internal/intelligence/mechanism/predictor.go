package mechanism

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"

	"gonum.org/v1/gonum/floats"

	"github.com/turtacn/ChemPredict/internal/domain/reaction"
	"github.com/turtacn/ChemPredict/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ChemPredict/pkg/errors"
)

// Backend names.
const (
	BackendForest = "forest"
	BackendRules  = "rules"
)

// Input is one prediction request.  Categorical values are matched against
// the fitted encoders; common spellings ("polar_protic", "br") are
// canonicalised first.  A nil Temperature counts as missing.
type Input struct {
	SubstrateDegree string   `json:"Substrate_Degree"`
	LeavingGroup    string   `json:"Leaving_Group"`
	Nucleophile     string   `json:"Nucleophile"`
	SolventType     string   `json:"Solvent_Type"`
	StericHindrance string   `json:"Steric_Hindrance"`
	Temperature     *float64 `json:"Temperature"`
}

// InputFromDescriptor builds a complete Input.
func InputFromDescriptor(d reaction.Descriptor) Input {
	t := d.Temperature
	return Input{
		SubstrateDegree: string(d.SubstrateDegree),
		LeavingGroup:    string(d.LeavingGroup),
		Nucleophile:     string(d.Nucleophile),
		SolventType:     string(d.SolventType),
		StericHindrance: string(d.StericHindrance),
		Temperature:     &t,
	}
}

// Missing returns the names of empty fields in column order.
func (in Input) Missing() []string {
	var out []string
	for _, c := range reaction.CategoricalColumns {
		if strings.TrimSpace(in.categorical()[c]) == "" {
			out = append(out, c)
		}
	}
	if in.Temperature == nil {
		out = append(out, reaction.ColTemperature)
	}
	return out
}

func (in Input) categorical() map[string]string {
	return map[string]string{
		reaction.ColSubstrateDegree: in.SubstrateDegree,
		reaction.ColLeavingGroup:    in.LeavingGroup,
		reaction.ColNucleophile:     in.Nucleophile,
		reaction.ColSolventType:     in.SolventType,
		reaction.ColStericHindrance: in.StericHindrance,
	}
}

// canonical maps each categorical value to its catalog spelling when it
// parses, and leaves it as typed otherwise.
func (in Input) canonical() map[string]string {
	out := in.categorical()
	if v, err := reaction.ParseSubstrateDegree(in.SubstrateDegree); err == nil {
		out[reaction.ColSubstrateDegree] = string(v)
	}
	if v, err := reaction.ParseLeavingGroup(in.LeavingGroup); err == nil {
		out[reaction.ColLeavingGroup] = string(v)
	}
	if v, err := reaction.ParseNucleophile(in.Nucleophile); err == nil {
		out[reaction.ColNucleophile] = string(v)
	}
	if v, err := reaction.ParseSolventType(in.SolventType); err == nil {
		out[reaction.ColSolventType] = string(v)
	}
	if v, err := reaction.ParseHindrance(in.StericHindrance); err == nil {
		out[reaction.ColStericHindrance] = string(v)
	}
	return out
}

// Check reports missing fields and a non-finite temperature.  It does not
// check the temperature range.
func (in Input) Check() error {
	if missing := in.Missing(); len(missing) > 0 {
		return errors.InvalidInput(fmt.Sprintf("Missing required fields: [%s]", strings.Join(missing, ", "))).
			WithDetail(strings.Join(missing, ","))
	}
	if math.IsNaN(*in.Temperature) || math.IsInf(*in.Temperature, 0) {
		return errors.InvalidInput("Temperature must be a number").WithField(reaction.ColTemperature)
	}
	return nil
}

// Descriptor resolves the input against the reagent catalogs.
func (in Input) Descriptor() (reaction.Descriptor, error) {
	if err := in.Check(); err != nil {
		return reaction.Descriptor{}, err
	}
	c := in.canonical()
	d := reaction.Descriptor{
		SubstrateDegree: reaction.SubstrateDegree(c[reaction.ColSubstrateDegree]),
		LeavingGroup:    reaction.LeavingGroup(c[reaction.ColLeavingGroup]),
		Nucleophile:     reaction.Nucleophile(c[reaction.ColNucleophile]),
		SolventType:     reaction.SolventType(c[reaction.ColSolventType]),
		StericHindrance: reaction.Hindrance(c[reaction.ColStericHindrance]),
		Temperature:     *in.Temperature,
	}
	if err := d.Validate(); err != nil {
		return reaction.Descriptor{}, err
	}
	return d, nil
}

// Prediction is a classifier verdict.  Probabilities has a key for every
// mechanism and sums to one; Mechanism is its argmax.
type Prediction struct {
	Mechanism     reaction.Mechanism             `json:"mechanism"`
	Probabilities map[reaction.Mechanism]float64 `json:"probabilities"`
	ModelVersion  string                         `json:"model_version"`
	Backend       string                         `json:"backend"`
	Rule          reaction.RuleID                `json:"rule,omitempty"`
}

// Predictor classifies one reaction.
type Predictor interface {
	Predict(ctx context.Context, in Input) (*Prediction, error)
}

// ─────────────────────────────────────────────────────────────────────────────
// Forest-backed predictor
// ─────────────────────────────────────────────────────────────────────────────

// ForestPredictor answers from a persisted Artifact.  The artifact is loaded
// on first use and replaced atomically by Reload; in-flight predictions keep
// the artifact they started with.
type ForestPredictor struct {
	store  BlobStore
	names  ArtifactNames
	logger logging.Logger

	current atomic.Pointer[Artifact]
	loadMu  sync.Mutex
}

// NewForestPredictor returns a predictor over the artifact named by names.
func NewForestPredictor(store BlobStore, names ArtifactNames, logger logging.Logger) *ForestPredictor {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &ForestPredictor{store: store, names: names, logger: logger}
}

// NewForestPredictorFromArtifact returns a predictor pinned to a.  It has no
// store, so Reload fails.
func NewForestPredictorFromArtifact(a *Artifact, logger logging.Logger) *ForestPredictor {
	p := NewForestPredictor(nil, ArtifactNames{}, logger)
	p.current.Store(a)
	return p
}

// Reload reads the artifact from the store and swaps it in.  On failure the
// previous artifact stays active.
func (p *ForestPredictor) Reload(ctx context.Context) error {
	if p.store == nil {
		return errors.ArtifactMissing(p.names.Classifier).WithField(FieldClassifier)
	}
	p.loadMu.Lock()
	defer p.loadMu.Unlock()
	return p.loadLocked(ctx)
}

func (p *ForestPredictor) loadLocked(ctx context.Context) error {
	a, err := LoadArtifact(ctx, p.store, p.names)
	if err != nil {
		p.logger.Warn("artifact load failed",
			logging.String("classifier", p.names.Classifier),
			logging.Err(err))
		return err
	}
	prev := p.current.Swap(a)
	fields := []logging.Field{
		logging.String("model_id", a.Metadata.ModelID),
		logging.String("version", a.Metadata.Version),
	}
	if prev != nil {
		fields = append(fields, logging.String("previous_version", prev.Metadata.Version))
	}
	p.logger.Info("artifact loaded", fields...)
	return nil
}

// Artifact returns the active artifact, loading it if necessary.
func (p *ForestPredictor) Artifact(ctx context.Context) (*Artifact, error) {
	if a := p.current.Load(); a != nil {
		return a, nil
	}
	if p.store == nil {
		return nil, errors.ArtifactMissing(p.names.Classifier).WithField(FieldClassifier)
	}
	p.loadMu.Lock()
	defer p.loadMu.Unlock()
	if a := p.current.Load(); a != nil {
		return a, nil
	}
	if err := p.loadLocked(ctx); err != nil {
		return nil, err
	}
	return p.current.Load(), nil
}

// Predict validates in, encodes it and averages the forest's votes.
func (p *ForestPredictor) Predict(ctx context.Context, in Input) (*Prediction, error) {
	if err := in.Check(); err != nil {
		return nil, err
	}
	a, err := p.Artifact(ctx)
	if err != nil {
		return nil, err
	}
	x, err := a.Encoders.Vector(in.canonical(), *in.Temperature)
	if err != nil {
		return nil, err
	}

	proba := a.Forest.PredictProba(x)
	classes := a.Encoders.Mechanisms()
	out := make(map[reaction.Mechanism]float64, len(reaction.Mechanisms()))
	for _, m := range reaction.Mechanisms() {
		out[m] = 0
	}
	for i, m := range classes {
		out[m] = proba[i]
	}
	return &Prediction{
		Mechanism:     classes[floats.MaxIdx(proba)],
		Probabilities: out,
		ModelVersion:  a.Metadata.Version,
		Backend:       BackendForest,
	}, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Rule-engine predictor
// ─────────────────────────────────────────────────────────────────────────────

// RulePredictor answers from the rule engine with one-hot probabilities.
type RulePredictor struct{}

// NewRulePredictor returns a RulePredictor.
func NewRulePredictor() *RulePredictor { return &RulePredictor{} }

// Predict validates in against the catalogs and evaluates the rules.
func (RulePredictor) Predict(_ context.Context, in Input) (*Prediction, error) {
	d, err := in.Descriptor()
	if err != nil {
		return nil, err
	}
	dec := reaction.Evaluate(d)
	return &Prediction{
		Mechanism:     dec.Mechanism,
		Probabilities: dec.Probabilities(),
		ModelVersion:  BackendRules,
		Backend:       BackendRules,
		Rule:          dec.Rule,
	}, nil
}
