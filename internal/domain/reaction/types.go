// Package reaction provides the domain model for nucleophilic substitution and
// elimination reactions: the descriptor enumerations, the fixed reagent
// catalogs and the rule engine that labels a descriptor with its mechanism.
//
// Every enumeration is a string type whose value is the canonical wire name
// used in CSV cells, JSON payloads and CLI flags.
package reaction

import (
	"strings"

	"github.com/turtacn/ChemPredict/pkg/errors"
)

// Column names of the training table and the prediction input.
const (
	ColSubstrateDegree = "Substrate_Degree"
	ColLeavingGroup    = "Leaving_Group"
	ColNucleophile     = "Nucleophile"
	ColSolventType     = "Solvent_Type"
	ColStericHindrance = "Steric_Hindrance"
	ColTemperature     = "Temperature"
	ColTarget          = "Target_Mechanism"
)

// FeatureColumns lists the six input columns in table order.
var FeatureColumns = []string{
	ColSubstrateDegree,
	ColLeavingGroup,
	ColNucleophile,
	ColSolventType,
	ColStericHindrance,
	ColTemperature,
}

// CategoricalColumns lists the five categorical input columns in table order.
var CategoricalColumns = []string{
	ColSubstrateDegree,
	ColLeavingGroup,
	ColNucleophile,
	ColSolventType,
	ColStericHindrance,
}

// ─────────────────────────────────────────────────────────────────────────────
// SubstrateDegree
// ─────────────────────────────────────────────────────────────────────────────

// SubstrateDegree is the substitution degree of the carbon bearing the
// leaving group.
type SubstrateDegree string

const (
	Methyl    SubstrateDegree = "Methyl"
	Primary   SubstrateDegree = "Primary"
	Secondary SubstrateDegree = "Secondary"
	Tertiary  SubstrateDegree = "Tertiary"
)

// SubstrateDegrees returns every substrate degree in declaration order.
func SubstrateDegrees() []SubstrateDegree {
	return []SubstrateDegree{Methyl, Primary, Secondary, Tertiary}
}

func (s SubstrateDegree) String() string { return string(s) }

// IsValid reports whether s is a declared substrate degree.
func (s SubstrateDegree) IsValid() bool {
	switch s {
	case Methyl, Primary, Secondary, Tertiary:
		return true
	}
	return false
}

// ParseSubstrateDegree resolves a name case-insensitively.
func ParseSubstrateDegree(s string) (SubstrateDegree, error) {
	v, ok := match(s, SubstrateDegrees())
	if !ok {
		return "", errors.UnknownCategory(ColSubstrateDegree, s, names(SubstrateDegrees()))
	}
	return v, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// SolventType
// ─────────────────────────────────────────────────────────────────────────────

// SolventType is the solvent class.
type SolventType string

const (
	PolarProtic  SolventType = "Polar Protic"
	PolarAprotic SolventType = "Polar Aprotic"
)

// SolventTypes returns every solvent type in declaration order.
func SolventTypes() []SolventType {
	return []SolventType{PolarProtic, PolarAprotic}
}

func (s SolventType) String() string { return string(s) }

func (s SolventType) IsValid() bool {
	return s == PolarProtic || s == PolarAprotic
}

// ParseSolventType resolves a name case-insensitively.  Underscores and
// hyphens are accepted in place of the space ("polar_aprotic").
func ParseSolventType(s string) (SolventType, error) {
	norm := strings.NewReplacer("_", " ", "-", " ").Replace(s)
	v, ok := match(norm, SolventTypes())
	if !ok {
		return "", errors.UnknownCategory(ColSolventType, s, names(SolventTypes()))
	}
	return v, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Hindrance
// ─────────────────────────────────────────────────────────────────────────────

// Hindrance is a steric hindrance level.
type Hindrance string

const (
	LowHindrance  Hindrance = "Low"
	HighHindrance Hindrance = "High"
)

// Hindrances returns every hindrance level in declaration order.
func Hindrances() []Hindrance {
	return []Hindrance{LowHindrance, HighHindrance}
}

func (h Hindrance) String() string { return string(h) }

func (h Hindrance) IsValid() bool {
	return h == LowHindrance || h == HighHindrance
}

// ParseHindrance resolves a name case-insensitively.
func ParseHindrance(s string) (Hindrance, error) {
	v, ok := match(s, Hindrances())
	if !ok {
		return "", errors.UnknownCategory(ColStericHindrance, s, names(Hindrances()))
	}
	return v, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Mechanism
// ─────────────────────────────────────────────────────────────────────────────

// Mechanism is the predicted reaction pathway.
type Mechanism string

const (
	SN1        Mechanism = "SN1"
	SN2        Mechanism = "SN2"
	E1         Mechanism = "E1"
	E2         Mechanism = "E2"
	NoReaction Mechanism = "No Reaction"
)

// Mechanisms returns every mechanism in display order.
func Mechanisms() []Mechanism {
	return []Mechanism{SN1, SN2, E1, E2, NoReaction}
}

func (m Mechanism) String() string { return string(m) }

func (m Mechanism) IsValid() bool {
	switch m {
	case SN1, SN2, E1, E2, NoReaction:
		return true
	}
	return false
}

// IsSubstitution reports whether m is SN1 or SN2.
func (m Mechanism) IsSubstitution() bool { return m == SN1 || m == SN2 }

// IsElimination reports whether m is E1 or E2.
func (m Mechanism) IsElimination() bool { return m == E1 || m == E2 }

// ParseMechanism resolves a name case-insensitively.  "NoReaction" and
// "none" are accepted for No Reaction.
func ParseMechanism(s string) (Mechanism, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "noreaction", "no_reaction", "none":
		return NoReaction, nil
	}
	v, ok := match(s, Mechanisms())
	if !ok {
		return "", errors.UnknownCategory(ColTarget, s, names(Mechanisms()))
	}
	return v, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// helpers
// ─────────────────────────────────────────────────────────────────────────────

func match[T ~string](s string, all []T) (T, bool) {
	s = strings.TrimSpace(s)
	for _, v := range all {
		if strings.EqualFold(string(v), s) {
			return v, true
		}
	}
	var zero T
	return zero, false
}

func names[T ~string](all []T) []string {
	out := make([]string, len(all))
	for i, v := range all {
		out[i] = string(v)
	}
	return out
}
