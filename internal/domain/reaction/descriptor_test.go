package reaction

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turtacn/ChemPredict/pkg/errors"
)

func TestParsers_CaseInsensitive(t *testing.T) {
	s, err := ParseSubstrateDegree(" tertiary ")
	require.NoError(t, err)
	assert.Equal(t, Tertiary, s)

	lg, err := ParseLeavingGroup("tso-")
	require.NoError(t, err)
	assert.Equal(t, Tosylate, lg)

	lg, err = ParseLeavingGroup("br")
	require.NoError(t, err)
	assert.Equal(t, Bromide, lg)

	nu, err := ParseNucleophile("tbuo-")
	require.NoError(t, err)
	assert.Equal(t, TertButoxide, nu)

	solv, err := ParseSolventType("polar_aprotic")
	require.NoError(t, err)
	assert.Equal(t, PolarAprotic, solv)

	h, err := ParseHindrance("HIGH")
	require.NoError(t, err)
	assert.Equal(t, HighHindrance, h)

	m, err := ParseMechanism("noreaction")
	require.NoError(t, err)
	assert.Equal(t, NoReaction, m)

	m, err = ParseMechanism("sn2")
	require.NoError(t, err)
	assert.Equal(t, SN2, m)
}

func TestParsers_UnknownCategoryListsAccepted(t *testing.T) {
	_, err := ParseNucleophile("Br-")
	require.Error(t, err)
	assert.True(t, errors.IsUnknownCategory(err))

	ae, ok := errors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, ColNucleophile, ae.Field)
	assert.Equal(t, []string{"H2O", "CH3OH", "NH3", "OH-", "CH3O-", "CN-", "tBuO-", "LDA"}, ae.Accepted)

	_, err = ParseSubstrateDegree("Quaternary")
	assert.True(t, errors.IsUnknownCategory(err))
	_, err = ParseLeavingGroup("At-")
	assert.True(t, errors.IsUnknownCategory(err))
	_, err = ParseSolventType("Nonpolar")
	assert.True(t, errors.IsUnknownCategory(err))
	_, err = ParseHindrance("Medium")
	assert.True(t, errors.IsUnknownCategory(err))
	_, err = ParseMechanism("SN3")
	assert.True(t, errors.IsUnknownCategory(err))
}

func TestCatalog_LeavingGroupQuality(t *testing.T) {
	assert.Equal(t, QualityPoor, Fluoride.Quality())
	assert.Equal(t, QualityFair, Chloride.Quality())
	assert.Equal(t, QualityGood, Bromide.Quality())
	assert.Equal(t, QualityExcellent, Iodide.Quality())
	assert.Equal(t, QualityExcellent, Tosylate.Quality())
	assert.Equal(t, QualityUnknown, LeavingGroup("At-").Quality())
	assert.Equal(t, "Excellent", Tosylate.Quality().String())
}

func TestCatalog_Nucleophiles(t *testing.T) {
	cases := map[Nucleophile]struct {
		s Strength
		h Hindrance
	}{
		Water:                   {Weak, LowHindrance},
		Methanol:                {Weak, LowHindrance},
		Ammonia:                 {Moderate, LowHindrance},
		Hydroxide:               {Strong, LowHindrance},
		Methoxide:               {Strong, LowHindrance},
		Cyanide:                 {Strong, LowHindrance},
		TertButoxide:            {Strong, HighHindrance},
		LithiumDiisopropylamide: {Strong, HighHindrance},
	}
	require.Len(t, Nucleophiles(), len(cases))
	for nu, want := range cases {
		assert.Equal(t, want.s, nu.Strength(), nu)
		assert.Equal(t, want.h, nu.IntrinsicHindrance(), nu)
	}
}

func TestCatalog_SnapshotCopies(t *testing.T) {
	snap := Snapshot()
	snap.Nucleophiles[0].Strength = Strong
	assert.Equal(t, Weak, Water.Strength())
	assert.Len(t, snap.LeavingGroups, 5)
	assert.Equal(t, 100.0, snap.Temperature.Max)
}

func TestParseTemperature(t *testing.T) {
	v, err := ParseTemperature(" 25.5 ")
	require.NoError(t, err)
	assert.Equal(t, 25.5, v)

	for _, ok := range []string{"0", "100", "50"} {
		_, err := ParseTemperature(ok)
		assert.NoError(t, err, ok)
	}

	_, err = ParseTemperature("warm")
	require.Error(t, err)
	assert.True(t, errors.IsInvalidInput(err))
	assert.Contains(t, err.Error(), "Temperature must be a number")

	_, err = ParseTemperature("NaN")
	assert.True(t, errors.IsInvalidInput(err))

	for _, bad := range []string{"-0.1", "100.1", "250"} {
		_, err := ParseTemperature(bad)
		require.Error(t, err, bad)
		assert.True(t, errors.IsInvalidInput(err))
		assert.Contains(t, err.Error(), "between 0 and 100")
	}
}

func TestRawDescriptor_Parse(t *testing.T) {
	d, err := RawDescriptor{
		SubstrateDegree: "secondary",
		LeavingGroup:    "I-",
		Nucleophile:     "CN-",
		SolventType:     "Polar Aprotic",
		StericHindrance: "low",
		Temperature:     "30",
	}.Parse()
	require.NoError(t, err)
	assert.Equal(t, Descriptor{Secondary, Iodide, Cyanide, PolarAprotic, LowHindrance, 30}, d)
	assert.True(t, d.HindranceConsistent())

	_, err = RawDescriptor{
		SubstrateDegree: "secondary", LeavingGroup: "I-", Nucleophile: "CN-",
		SolventType: "Polar Aprotic", StericHindrance: "low", Temperature: "x",
	}.Parse()
	assert.True(t, errors.IsInvalidInput(err))
}

func TestDescriptor_Validate(t *testing.T) {
	d := Descriptor{Secondary, Iodide, Cyanide, PolarAprotic, LowHindrance, 30}
	assert.NoError(t, d.Validate())

	d.Nucleophile = "Br-"
	assert.True(t, errors.IsUnknownCategory(d.Validate()))

	d.Nucleophile = Cyanide
	d.StericHindrance = HighHindrance
	assert.NoError(t, d.Validate())
	assert.False(t, d.HindranceConsistent())
}

func TestDescriptor_JSONUsesColumnNames(t *testing.T) {
	d := Descriptor{Tertiary, Bromide, Methoxide, PolarProtic, LowHindrance, 25}
	raw, err := json.Marshal(d)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"Substrate_Degree": "Tertiary",
		"Leaving_Group": "Br-",
		"Nucleophile": "CH3O-",
		"Solvent_Type": "Polar Protic",
		"Steric_Hindrance": "Low",
		"Temperature": 25
	}`, string(raw))
}

func TestMechanism_Classes(t *testing.T) {
	assert.True(t, SN1.IsSubstitution())
	assert.True(t, E2.IsElimination())
	assert.False(t, NoReaction.IsSubstitution())
	assert.False(t, NoReaction.IsElimination())
}
