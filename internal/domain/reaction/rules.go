package reaction

// RuleID identifies the branch of the rule table that decided a mechanism.
type RuleID string

const (
	RuleOutOfDomain          RuleID = "out-of-domain"
	RulePoorLeavingGroup     RuleID = "poor-leaving-group"
	RuleMethylSN2            RuleID = "methyl-strong-unhindered"
	RuleMethylNone           RuleID = "methyl-no-reaction"
	RulePrimaryBulkyE2       RuleID = "primary-bulky-base"
	RulePrimarySN2           RuleID = "primary-strong"
	RulePrimaryNone          RuleID = "primary-no-reaction"
	RuleTertiaryStrongE2     RuleID = "tertiary-strong-base"
	RuleTertiarySolvolysisE1 RuleID = "tertiary-solvolysis-hot"
	RuleTertiarySolvolysisS1 RuleID = "tertiary-solvolysis-cool"
	RuleTertiaryNone         RuleID = "tertiary-no-reaction"
	RuleSecondaryBulkyE2     RuleID = "secondary-bulky-base"
	RuleSecondaryHotE2       RuleID = "secondary-strong-hot"
	RuleSecondaryAproticSN2  RuleID = "secondary-strong-aprotic"
	RuleSecondaryProticE2    RuleID = "secondary-strong-protic"
	RuleSecondaryWeakE1      RuleID = "secondary-weak-protic-hot"
	RuleSecondaryWeakSN1     RuleID = "secondary-weak-protic-cool"
	RuleSecondaryNone        RuleID = "secondary-no-reaction"
)

// Decision is the rule engine's verdict for one descriptor.
type Decision struct {
	Mechanism Mechanism `json:"mechanism"`
	Rule      RuleID    `json:"rule"`
	Rationale string    `json:"rationale"`
}

// Probabilities returns the one-hot distribution implied by the decision.
// Every mechanism is present as a key.
func (d Decision) Probabilities() map[Mechanism]float64 {
	out := make(map[Mechanism]float64, len(Mechanisms()))
	for _, m := range Mechanisms() {
		out[m] = 0
	}
	out[d.Mechanism] = 1
	return out
}

func decide(m Mechanism, rule RuleID, why string) Decision {
	return Decision{Mechanism: m, Rule: rule, Rationale: why}
}

// DetermineMechanism labels d.  It is pure and total.
func DetermineMechanism(d Descriptor) Mechanism {
	return Evaluate(d).Mechanism
}

// Evaluate labels d and reports which rule fired.  The first matching rule
// wins.  Descriptors with a leaving group or nucleophile outside the catalogs
// evaluate to No Reaction.
func Evaluate(d Descriptor) Decision {
	quality := d.LeavingGroup.Quality()
	info, known := d.Nucleophile.Info()
	if quality == QualityUnknown || !known {
		return decide(NoReaction, RuleOutOfDomain, "leaving group or nucleophile is not in the catalog")
	}

	if quality == QualityPoor {
		return decide(NoReaction, RulePoorLeavingGroup, "poor leaving group does not depart")
	}

	hot := d.IsHighTemperature()
	strong := info.Strength == Strong
	bulky := d.StericHindrance == HighHindrance
	protic := d.SolventType == PolarProtic

	switch d.SubstrateDegree {
	case Methyl:
		if strong && d.StericHindrance == LowHindrance {
			return decide(SN2, RuleMethylSN2, "unhindered methyl carbon with a strong nucleophile")
		}
		return decide(NoReaction, RuleMethylNone, "methyl substrates undergo neither SN1 nor elimination")

	case Primary:
		if bulky {
			return decide(E2, RulePrimaryBulkyE2, "bulky base forces elimination even on a primary carbon")
		}
		if strong {
			return decide(SN2, RulePrimarySN2, "primary carbon with a strong nucleophile")
		}
		return decide(NoReaction, RulePrimaryNone, "primary carbocations are too unstable for SN1/E1")

	case Tertiary:
		if strong {
			return decide(E2, RuleTertiaryStrongE2, "strong base on a tertiary carbon eliminates")
		}
		if protic {
			if hot {
				return decide(E1, RuleTertiarySolvolysisE1, "solvolysis above 50 °C favours elimination")
			}
			return decide(SN1, RuleTertiarySolvolysisS1, "solvolysis at or below 50 °C favours substitution")
		}
		return decide(NoReaction, RuleTertiaryNone, "weak nucleophile without a protic solvent")

	case Secondary:
		if strong {
			switch {
			case bulky:
				return decide(E2, RuleSecondaryBulkyE2, "bulky strong base eliminates")
			case hot:
				return decide(E2, RuleSecondaryHotE2, "heat favours elimination")
			case d.SolventType == PolarAprotic:
				return decide(SN2, RuleSecondaryAproticSN2, "aprotic solvent leaves the nucleophile unsolvated")
			default:
				return decide(E2, RuleSecondaryProticE2, "protic solvent cages the nucleophile")
			}
		}
		if protic {
			if hot {
				return decide(E1, RuleSecondaryWeakE1, "weak nucleophile, protic solvent, above 50 °C")
			}
			return decide(SN1, RuleSecondaryWeakSN1, "weak nucleophile, protic solvent, at or below 50 °C")
		}
		return decide(NoReaction, RuleSecondaryNone, "weak nucleophile without a protic solvent")
	}

	return decide(NoReaction, RuleOutOfDomain, "substrate degree is not recognised")
}
