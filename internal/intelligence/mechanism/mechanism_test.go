package mechanism_test

import (
	"context"
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/turtacn/ChemPredict/internal/application/dataset"
	"github.com/turtacn/ChemPredict/internal/domain/reaction"
	"github.com/turtacn/ChemPredict/internal/intelligence/forest"
	"github.com/turtacn/ChemPredict/internal/intelligence/mechanism"
	"github.com/turtacn/ChemPredict/internal/testutil"
	"github.com/turtacn/ChemPredict/pkg/errors"
)

var (
	solvolysis = reaction.Descriptor{
		SubstrateDegree: reaction.Tertiary,
		LeavingGroup:    reaction.Bromide,
		Nucleophile:     reaction.Water,
		SolventType:     reaction.PolarProtic,
		StericHindrance: reaction.LowHindrance,
		Temperature:     25,
	}
	strongBase = reaction.Descriptor{
		SubstrateDegree: reaction.Tertiary,
		LeavingGroup:    reaction.Bromide,
		Nucleophile:     reaction.Hydroxide,
		SolventType:     reaction.PolarAprotic,
		StericHindrance: reaction.LowHindrance,
		Temperature:     25,
	}
)

// twoClassTable repeats two descriptors that differ only in nucleophile and
// solvent, so every tree separates them perfectly.
func twoClassTable() *dataset.Table {
	t := &dataset.Table{}
	for i := 0; i < 20; i++ {
		for _, d := range []reaction.Descriptor{solvolysis, strongBase} {
			t.Rows = append(t.Rows, dataset.Row{Descriptor: d, Target: reaction.DetermineMechanism(d)})
		}
	}
	return t
}

func fastParams() forest.Params {
	p := forest.DefaultParams()
	p.NEstimators = 20
	return p
}

func ptr(f float64) *float64 { return &f }

type MechanismTestSuite struct {
	suite.Suite
	ctx     context.Context
	store   *testutil.MemBlobStore
	names   mechanism.ArtifactNames
	trainer *mechanism.Trainer
}

func (s *MechanismTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = testutil.NewMemBlobStore()
	s.names = mechanism.DefaultArtifactNames()
	s.trainer = mechanism.NewTrainer(mechanism.WithParams(fastParams()))
}

func (s *MechanismTestSuite) trainAndSave(tbl *dataset.Table) *mechanism.Artifact {
	art, _, err := s.trainer.Fit(s.ctx, tbl)
	s.Require().NoError(err)
	s.Require().NoError(mechanism.SaveArtifact(s.ctx, s.store, s.names, art))
	return art
}

func (s *MechanismTestSuite) TestFit_Report() {
	art, report, err := s.trainer.Fit(s.ctx, twoClassTable())
	s.Require().NoError(err)

	s.Equal(40, report.Rows)
	s.Equal(32, report.TrainRows)
	s.Equal(8, report.TestRows)
	s.Equal(1.0, report.Accuracy)
	s.Equal([]string{"E2", "SN1"}, report.Classes)
	s.Len(report.Confusion, 2)
	s.Len(report.ClassCounts, 2)
	s.Equal(art.Metadata.ModelID, report.ModelID)
	s.Equal(mechanism.FormatVersion, art.Metadata.Format)
	s.Equal(reaction.FeatureColumns, art.Metadata.Features)
}

func (s *MechanismTestSuite) TestFit_EmptyTable() {
	_, _, err := s.trainer.Fit(s.ctx, &dataset.Table{})
	s.True(errors.IsCode(err, errors.ErrCodeDatasetInvalid))
}

func (s *MechanismTestSuite) TestFit_SynthesizedDataLearnsRules() {
	tbl, err := dataset.NewSynthesizer(dataset.WithSeed(11)).Generate(s.ctx, 1500)
	s.Require().NoError(err)

	p := fastParams()
	p.NEstimators = 40
	_, report, err := mechanism.NewTrainer(mechanism.WithParams(p)).Fit(s.ctx, tbl)
	s.Require().NoError(err)
	s.Equal(300, report.TestRows)
	s.Greater(report.Accuracy, 0.6)

	sum := 0.0
	for _, v := range report.FeatureImportances {
		sum += v
	}
	s.InDelta(1.0, sum, 1e-9)
}

func (s *MechanismTestSuite) TestForestPredictor_RoundTrip() {
	s.trainAndSave(twoClassTable())
	p := mechanism.NewForestPredictor(s.store, s.names, testutil.NewMockLogger())

	for _, d := range []reaction.Descriptor{solvolysis, strongBase} {
		pred, err := p.Predict(s.ctx, mechanism.InputFromDescriptor(d))
		s.Require().NoError(err)
		s.Equal(reaction.DetermineMechanism(d), pred.Mechanism)
		s.Equal(mechanism.BackendForest, pred.Backend)
		s.Len(pred.Probabilities, len(reaction.Mechanisms()))

		sum := 0.0
		for _, v := range pred.Probabilities {
			s.GreaterOrEqual(v, 0.0)
			s.LessOrEqual(v, 1.0)
			sum += v
		}
		s.InDelta(1.0, sum, 1e-9)
		s.Equal(0.0, pred.Probabilities[reaction.NoReaction])
	}
}

func (s *MechanismTestSuite) TestForestPredictor_CanonicalisesSpelling() {
	s.trainAndSave(twoClassTable())
	p := mechanism.NewForestPredictor(s.store, s.names, nil)

	pred, err := p.Predict(s.ctx, mechanism.Input{
		SubstrateDegree: "tertiary",
		LeavingGroup:    "br",
		Nucleophile:     "h2o",
		SolventType:     "polar_protic",
		StericHindrance: "low",
		Temperature:     ptr(25),
	})
	s.Require().NoError(err)
	s.Equal(reaction.SN1, pred.Mechanism)
}

func (s *MechanismTestSuite) TestForestPredictor_UnknownCategory() {
	s.trainAndSave(twoClassTable())
	p := mechanism.NewForestPredictor(s.store, s.names, nil)

	in := mechanism.InputFromDescriptor(solvolysis)
	in.Nucleophile = string(reaction.Methanol)
	_, err := p.Predict(s.ctx, in)
	s.Require().Error(err)
	s.True(errors.IsUnknownCategory(err))

	ae, ok := errors.AsAppError(err)
	s.Require().True(ok)
	s.Equal(reaction.ColNucleophile, ae.Field)
	s.Equal([]string{"H2O", "OH-"}, ae.Accepted)
}

func (s *MechanismTestSuite) TestForestPredictor_MissingFields() {
	p := mechanism.NewForestPredictor(s.store, s.names, nil)
	_, err := p.Predict(s.ctx, mechanism.Input{SubstrateDegree: "Tertiary"})
	s.Require().Error(err)
	s.True(errors.IsInvalidInput(err))
	s.Contains(err.Error(), "Missing required fields")
	s.Contains(err.Error(), reaction.ColTemperature)
	s.NotContains(err.Error(), reaction.ColSubstrateDegree)
}

func (s *MechanismTestSuite) TestForestPredictor_NonFiniteTemperature() {
	s.trainAndSave(twoClassTable())
	p := mechanism.NewForestPredictor(s.store, s.names, nil)
	in := mechanism.InputFromDescriptor(solvolysis)
	in.Temperature = ptr(math.NaN())
	_, err := p.Predict(s.ctx, in)
	s.True(errors.IsInvalidInput(err))
}

func (s *MechanismTestSuite) TestForestPredictor_ArtifactMissing() {
	p := mechanism.NewForestPredictor(s.store, s.names, nil)
	_, err := p.Predict(s.ctx, mechanism.InputFromDescriptor(solvolysis))
	s.Require().Error(err)
	s.True(errors.IsArtifactMissing(err))
	s.Equal(mechanism.ModelNotFoundTitle, mechanism.MissingTitle(err))
	s.Contains(err.Error(), "train the model first")

	s.trainAndSave(twoClassTable())
	s.store.Delete(s.names.Encoders)
	_, err = p.Predict(s.ctx, mechanism.InputFromDescriptor(solvolysis))
	s.True(errors.IsArtifactMissing(err))
	s.Equal(mechanism.EncodersNotFoundTitle, mechanism.MissingTitle(err))
}

func (s *MechanismTestSuite) TestLoadArtifact_Corrupt() {
	s.trainAndSave(twoClassTable())
	s.store.Corrupt(s.names.Classifier)
	_, err := mechanism.LoadArtifact(s.ctx, s.store, s.names)
	s.True(errors.IsCode(err, errors.ErrCodeArtifactCorrupt))
}

func (s *MechanismTestSuite) TestLoadArtifact_MismatchedEncoders() {
	s.trainAndSave(twoClassTable())
	other := testutil.NewMemBlobStore()
	art, _, err := s.trainer.Fit(s.ctx, twoClassTable())
	s.Require().NoError(err)
	s.Require().NoError(mechanism.SaveArtifact(s.ctx, other, s.names, art))

	enc, err := other.Get(s.ctx, s.names.Encoders)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Put(s.ctx, s.names.Encoders, enc))

	_, err = mechanism.LoadArtifact(s.ctx, s.store, s.names)
	s.True(errors.IsCode(err, errors.ErrCodeArtifactCorrupt))
}

func (s *MechanismTestSuite) TestLoadArtifact_TamperedEncoders() {
	s.trainAndSave(twoClassTable())
	raw, err := s.store.Get(s.ctx, s.names.Encoders)
	s.Require().NoError(err)

	var blob struct {
		ModelID string              `json:"model_id"`
		Columns map[string][]string `json:"columns"`
	}
	s.Require().NoError(json.Unmarshal(raw, &blob))
	s.Require().Equal([]string{"H2O", "OH-"}, blob.Columns[reaction.ColNucleophile])
	blob.Columns[reaction.ColNucleophile] = []string{"OH-"}
	raw, err = json.Marshal(blob)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Put(s.ctx, s.names.Encoders, raw))

	_, err = mechanism.LoadArtifact(s.ctx, s.store, s.names)
	s.Require().Error(err)
	s.True(errors.IsCode(err, errors.ErrCodeArtifactCorrupt))
	s.Contains(err.Error(), "checksum")
}

func (s *MechanismTestSuite) TestLoadArtifact_ChecksumRecorded() {
	art := s.trainAndSave(twoClassTable())
	s.Len(art.Metadata.Checksum, 64)

	loaded, err := mechanism.LoadArtifact(s.ctx, s.store, s.names)
	s.Require().NoError(err)
	s.Equal(art.Metadata.Checksum, loaded.Metadata.Checksum)
	s.Equal(art.Forest.Schema, loaded.Forest.Schema)
}

func (s *MechanismTestSuite) TestSaveArtifact_StoreFailure() {
	art, _, err := s.trainer.Fit(s.ctx, twoClassTable())
	s.Require().NoError(err)
	s.store.PutErr = assert.AnError
	err = mechanism.SaveArtifact(s.ctx, s.store, s.names, art)
	s.True(errors.IsCode(err, errors.ErrCodeStorageError))
}

func (s *MechanismTestSuite) TestArtifactExists() {
	ok, err := mechanism.ArtifactExists(s.ctx, s.store, s.names)
	s.Require().NoError(err)
	s.False(ok)

	s.trainAndSave(twoClassTable())
	ok, err = mechanism.ArtifactExists(s.ctx, s.store, s.names)
	s.Require().NoError(err)
	s.True(ok)
}

func (s *MechanismTestSuite) TestReload_SwapsAndKeepsPreviousOnFailure() {
	first := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	second := first.Add(time.Hour)

	s.trainer = mechanism.NewTrainer(mechanism.WithParams(fastParams()), mechanism.WithClock(func() time.Time { return first }))
	s.trainAndSave(twoClassTable())

	logger := testutil.NewMockLogger()
	p := mechanism.NewForestPredictor(s.store, s.names, logger)
	s.Require().NoError(p.Reload(s.ctx))
	a1, err := p.Artifact(s.ctx)
	s.Require().NoError(err)
	s.Equal("3.20240101000000", a1.Metadata.Version)

	s.trainer = mechanism.NewTrainer(mechanism.WithParams(fastParams()), mechanism.WithClock(func() time.Time { return second }))
	s.trainAndSave(twoClassTable())
	s.Require().NoError(p.Reload(s.ctx))
	a2, err := p.Artifact(s.ctx)
	s.Require().NoError(err)
	s.Equal("3.20240101010000", a2.Metadata.Version)

	s.store.Corrupt(s.names.Classifier)
	s.Error(p.Reload(s.ctx))
	a3, err := p.Artifact(s.ctx)
	s.Require().NoError(err)
	s.Equal(a2.Metadata.ModelID, a3.Metadata.ModelID)
	s.True(logger.HasMessage("warn", "artifact load failed"))
}

func (s *MechanismTestSuite) TestPinnedPredictor() {
	art, _, err := s.trainer.Fit(s.ctx, twoClassTable())
	s.Require().NoError(err)
	p := mechanism.NewForestPredictorFromArtifact(art, nil)

	pred, err := p.Predict(s.ctx, mechanism.InputFromDescriptor(strongBase))
	s.Require().NoError(err)
	s.Equal(reaction.E2, pred.Mechanism)
	s.True(errors.IsArtifactMissing(p.Reload(s.ctx)))
}

func TestMechanismTestSuite(t *testing.T) {
	suite.Run(t, new(MechanismTestSuite))
}

// ─────────────────────────────────────────────────────────────────────────────
// Rule predictor
// ─────────────────────────────────────────────────────────────────────────────

func TestRulePredictor_OneHot(t *testing.T) {
	pred, err := mechanism.NewRulePredictor().Predict(context.Background(), mechanism.InputFromDescriptor(solvolysis))
	require.NoError(t, err)
	assert.Equal(t, reaction.SN1, pred.Mechanism)
	assert.Equal(t, mechanism.BackendRules, pred.Backend)
	assert.Equal(t, reaction.RuleTertiarySolvolysisS1, pred.Rule)
	assert.Equal(t, 1.0, pred.Probabilities[reaction.SN1])
	assert.Len(t, pred.Probabilities, len(reaction.Mechanisms()))
}

func TestRulePredictor_OutOfRangeTemperatureIsAccepted(t *testing.T) {
	in := mechanism.InputFromDescriptor(solvolysis)
	in.Temperature = ptr(150)
	pred, err := mechanism.NewRulePredictor().Predict(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, reaction.E1, pred.Mechanism)
}

func TestRulePredictor_UnknownCategory(t *testing.T) {
	in := mechanism.InputFromDescriptor(solvolysis)
	in.Nucleophile = "Br-"
	_, err := mechanism.NewRulePredictor().Predict(context.Background(), in)
	require.Error(t, err)
	assert.True(t, errors.IsUnknownCategory(err))
}

func TestInput_Missing(t *testing.T) {
	assert.Equal(t, reaction.FeatureColumns, mechanism.Input{}.Missing())
	assert.Empty(t, mechanism.InputFromDescriptor(solvolysis).Missing())

	in := mechanism.InputFromDescriptor(solvolysis)
	in.SolventType = "  "
	assert.Equal(t, []string{reaction.ColSolventType}, in.Missing())
}
