package reaction

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/turtacn/ChemPredict/pkg/errors"
)

// Temperature bounds, in °C, enforced by the form and the CLI.
const (
	MinTemperature = 0.0
	MaxTemperature = 100.0

	// HighTemperatureThreshold is exclusive: 50.0 counts as low.
	HighTemperatureThreshold = 50.0
)

// Descriptor bundles the six reaction features.
//
// During synthesis StericHindrance always equals the nucleophile's intrinsic
// hindrance.  Callers of the predictor may set it independently; such
// combinations never occur in training data.
type Descriptor struct {
	SubstrateDegree SubstrateDegree `json:"Substrate_Degree"`
	LeavingGroup    LeavingGroup    `json:"Leaving_Group"`
	Nucleophile     Nucleophile     `json:"Nucleophile"`
	SolventType     SolventType     `json:"Solvent_Type"`
	StericHindrance Hindrance       `json:"Steric_Hindrance"`
	Temperature     float64         `json:"Temperature"`
}

// IsHighTemperature reports whether the temperature is above 50 °C.
func (d Descriptor) IsHighTemperature() bool {
	return d.Temperature > HighTemperatureThreshold
}

// HindranceConsistent reports whether StericHindrance matches the
// nucleophile's catalog hindrance.
func (d Descriptor) HindranceConsistent() bool {
	return d.Nucleophile.IsValid() && d.Nucleophile.IntrinsicHindrance() == d.StericHindrance
}

// Categorical returns the five categorical values keyed by column name.
func (d Descriptor) Categorical() map[string]string {
	return map[string]string{
		ColSubstrateDegree: string(d.SubstrateDegree),
		ColLeavingGroup:    string(d.LeavingGroup),
		ColNucleophile:     string(d.Nucleophile),
		ColSolventType:     string(d.SolventType),
		ColStericHindrance: string(d.StericHindrance),
	}
}

// Validate checks every categorical field against the catalogs.  It does not
// check the temperature range.
func (d Descriptor) Validate() error {
	if !d.SubstrateDegree.IsValid() {
		return errors.UnknownCategory(ColSubstrateDegree, string(d.SubstrateDegree), names(SubstrateDegrees()))
	}
	if !d.LeavingGroup.IsValid() {
		return errors.UnknownCategory(ColLeavingGroup, string(d.LeavingGroup), names(LeavingGroups()))
	}
	if !d.Nucleophile.IsValid() {
		return errors.UnknownCategory(ColNucleophile, string(d.Nucleophile), names(Nucleophiles()))
	}
	if !d.SolventType.IsValid() {
		return errors.UnknownCategory(ColSolventType, string(d.SolventType), names(SolventTypes()))
	}
	if !d.StericHindrance.IsValid() {
		return errors.UnknownCategory(ColStericHindrance, string(d.StericHindrance), names(Hindrances()))
	}
	if math.IsNaN(d.Temperature) || math.IsInf(d.Temperature, 0) {
		return errors.InvalidInput("Temperature must be a finite number").WithField(ColTemperature)
	}
	return nil
}

func (d Descriptor) String() string {
	return fmt.Sprintf("%s/%s/%s/%s/%s/%.1f°C",
		d.SubstrateDegree, d.LeavingGroup, d.Nucleophile, d.SolventType, d.StericHindrance, d.Temperature)
}

// ─────────────────────────────────────────────────────────────────────────────
// Temperature input
// ─────────────────────────────────────────────────────────────────────────────

// ParseTemperature converts user text into a temperature and checks the
// [0, 100] range.
func ParseTemperature(s string) (float64, error) {
	t, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(t) || math.IsInf(t, 0) {
		return 0, errors.InvalidInput("Temperature must be a number").WithField(ColTemperature)
	}
	if err := ValidateTemperature(t); err != nil {
		return 0, err
	}
	return t, nil
}

// ValidateTemperature checks the closed [0, 100] °C range.
func ValidateTemperature(t float64) error {
	if math.IsNaN(t) || t < MinTemperature || t > MaxTemperature {
		return errors.InvalidInput(
			fmt.Sprintf("Temperature must be between %.0f and %.0f °C", MinTemperature, MaxTemperature),
		).WithField(ColTemperature).WithDetail(fmt.Sprintf("got %v", t))
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Parsing from raw fields
// ─────────────────────────────────────────────────────────────────────────────

// RawDescriptor carries the six fields as text, the way they arrive from a
// form, a CLI or a CSV row.
type RawDescriptor struct {
	SubstrateDegree string
	LeavingGroup    string
	Nucleophile     string
	SolventType     string
	StericHindrance string
	Temperature     string
}

// Parse resolves every field against the catalogs.  Temperature must be
// numeric but its range is not checked.
func (r RawDescriptor) Parse() (Descriptor, error) {
	var (
		d   Descriptor
		err error
	)
	if d.SubstrateDegree, err = ParseSubstrateDegree(r.SubstrateDegree); err != nil {
		return Descriptor{}, err
	}
	if d.LeavingGroup, err = ParseLeavingGroup(r.LeavingGroup); err != nil {
		return Descriptor{}, err
	}
	if d.Nucleophile, err = ParseNucleophile(r.Nucleophile); err != nil {
		return Descriptor{}, err
	}
	if d.SolventType, err = ParseSolventType(r.SolventType); err != nil {
		return Descriptor{}, err
	}
	if d.StericHindrance, err = ParseHindrance(r.StericHindrance); err != nil {
		return Descriptor{}, err
	}
	t, perr := strconv.ParseFloat(strings.TrimSpace(r.Temperature), 64)
	if perr != nil || math.IsNaN(t) || math.IsInf(t, 0) {
		return Descriptor{}, errors.InvalidInput("Temperature must be a number").WithField(ColTemperature)
	}
	d.Temperature = t
	return d, nil
}
