package reaction

import (
	"github.com/turtacn/ChemPredict/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// Leaving groups
// ─────────────────────────────────────────────────────────────────────────────

// LeavingGroup is a substituent that departs during the reaction.
type LeavingGroup string

const (
	Fluoride LeavingGroup = "F-"
	Chloride LeavingGroup = "Cl-"
	Bromide  LeavingGroup = "Br-"
	Iodide   LeavingGroup = "I-"
	Tosylate LeavingGroup = "TsO-"
)

// Quality ranks how readily a leaving group departs.
type Quality int

const (
	QualityUnknown Quality = iota
	QualityPoor
	QualityFair
	QualityGood
	QualityExcellent
)

func (q Quality) String() string {
	switch q {
	case QualityPoor:
		return "Poor"
	case QualityFair:
		return "Fair"
	case QualityGood:
		return "Good"
	case QualityExcellent:
		return "Excellent"
	default:
		return "Unknown"
	}
}

var leavingGroupQuality = map[LeavingGroup]Quality{
	Fluoride: QualityPoor,
	Chloride: QualityFair,
	Bromide:  QualityGood,
	Iodide:   QualityExcellent,
	Tosylate: QualityExcellent,
}

// LeavingGroups returns the catalog in declaration order.
func LeavingGroups() []LeavingGroup {
	return []LeavingGroup{Fluoride, Chloride, Bromide, Iodide, Tosylate}
}

func (lg LeavingGroup) String() string { return string(lg) }

// Quality returns the catalog rank, or QualityUnknown for groups outside the
// catalog.
func (lg LeavingGroup) Quality() Quality {
	return leavingGroupQuality[lg]
}

func (lg LeavingGroup) IsValid() bool {
	_, ok := leavingGroupQuality[lg]
	return ok
}

// ParseLeavingGroup resolves a name case-insensitively.  The trailing minus
// sign may be omitted ("br" → Br-).
func ParseLeavingGroup(s string) (LeavingGroup, error) {
	if v, ok := match(s, LeavingGroups()); ok {
		return v, nil
	}
	if v, ok := match(s+"-", LeavingGroups()); ok {
		return v, nil
	}
	return "", errors.UnknownCategory(ColLeavingGroup, s, names(LeavingGroups()))
}

// ─────────────────────────────────────────────────────────────────────────────
// Nucleophiles
// ─────────────────────────────────────────────────────────────────────────────

// Strength is the nucleophile/base strength class.
type Strength string

const (
	Weak     Strength = "Weak"
	Moderate Strength = "Moderate"
	Strong   Strength = "Strong"
)

func (s Strength) String() string { return string(s) }

// Nucleophile names a reagent from the fixed catalog.
type Nucleophile string

const (
	Water                   Nucleophile = "H2O"
	Methanol                Nucleophile = "CH3OH"
	Ammonia                 Nucleophile = "NH3"
	Hydroxide               Nucleophile = "OH-"
	Methoxide               Nucleophile = "CH3O-"
	Cyanide                 Nucleophile = "CN-"
	TertButoxide            Nucleophile = "tBuO-"
	LithiumDiisopropylamide Nucleophile = "LDA"
)

// NucleophileInfo is a catalog entry.
type NucleophileInfo struct {
	Name      Nucleophile `json:"name"`
	Strength  Strength    `json:"strength"`
	Hindrance Hindrance   `json:"hindrance"`
}

var nucleophileCatalog = []NucleophileInfo{
	{Water, Weak, LowHindrance},
	{Methanol, Weak, LowHindrance},
	{Ammonia, Moderate, LowHindrance},
	{Hydroxide, Strong, LowHindrance},
	{Methoxide, Strong, LowHindrance},
	// Good nucleophile, weak base.
	{Cyanide, Strong, LowHindrance},
	{TertButoxide, Strong, HighHindrance},
	{LithiumDiisopropylamide, Strong, HighHindrance},
}

var nucleophileIndex = func() map[Nucleophile]NucleophileInfo {
	m := make(map[Nucleophile]NucleophileInfo, len(nucleophileCatalog))
	for _, n := range nucleophileCatalog {
		m[n.Name] = n
	}
	return m
}()

// NucleophileCatalog returns a copy of the catalog in declaration order.
func NucleophileCatalog() []NucleophileInfo {
	out := make([]NucleophileInfo, len(nucleophileCatalog))
	copy(out, nucleophileCatalog)
	return out
}

// Nucleophiles returns the catalog names in declaration order.
func Nucleophiles() []Nucleophile {
	out := make([]Nucleophile, len(nucleophileCatalog))
	for i, n := range nucleophileCatalog {
		out[i] = n.Name
	}
	return out
}

func (n Nucleophile) String() string { return string(n) }

// Info returns the catalog entry for n.
func (n Nucleophile) Info() (NucleophileInfo, bool) {
	info, ok := nucleophileIndex[n]
	return info, ok
}

// Strength returns the catalog strength, or "" outside the catalog.
func (n Nucleophile) Strength() Strength {
	return nucleophileIndex[n].Strength
}

// IntrinsicHindrance returns the catalog hindrance, or "" outside the catalog.
func (n Nucleophile) IntrinsicHindrance() Hindrance {
	return nucleophileIndex[n].Hindrance
}

func (n Nucleophile) IsValid() bool {
	_, ok := nucleophileIndex[n]
	return ok
}

// ParseNucleophile resolves a name case-insensitively.
func ParseNucleophile(s string) (Nucleophile, error) {
	v, ok := match(s, Nucleophiles())
	if !ok {
		return "", errors.UnknownCategory(ColNucleophile, s, names(Nucleophiles()))
	}
	return v, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Catalog snapshot
// ─────────────────────────────────────────────────────────────────────────────

// LeavingGroupInfo is a leaving-group catalog entry.
type LeavingGroupInfo struct {
	Name    LeavingGroup `json:"name"`
	Quality string       `json:"quality"`
}

// Catalog is a serialisable view of every enumeration and reagent table.
type Catalog struct {
	SubstrateDegrees []SubstrateDegree   `json:"substrate_degrees"`
	LeavingGroups    []LeavingGroupInfo  `json:"leaving_groups"`
	Nucleophiles     []NucleophileInfo   `json:"nucleophiles"`
	SolventTypes     []SolventType       `json:"solvent_types"`
	Hindrances       []Hindrance         `json:"steric_hindrances"`
	Mechanisms       []Mechanism         `json:"mechanisms"`
	Temperature      TemperatureInterval `json:"temperature"`
}

// TemperatureInterval is the closed interval accepted at input boundaries.
type TemperatureInterval struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Snapshot returns the full catalog.
func Snapshot() Catalog {
	lgs := make([]LeavingGroupInfo, 0, len(leavingGroupQuality))
	for _, lg := range LeavingGroups() {
		lgs = append(lgs, LeavingGroupInfo{Name: lg, Quality: lg.Quality().String()})
	}
	return Catalog{
		SubstrateDegrees: SubstrateDegrees(),
		LeavingGroups:    lgs,
		Nucleophiles:     NucleophileCatalog(),
		SolventTypes:     SolventTypes(),
		Hindrances:       Hindrances(),
		Mechanisms:       Mechanisms(),
		Temperature:      TemperatureInterval{Min: MinTemperature, Max: MaxTemperature},
	}
}
