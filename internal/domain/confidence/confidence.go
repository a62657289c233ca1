// Package confidence models the evidence quality behind a classification:
// four 0-100 factor scores, a derived overall score, and the routing decision
// type the overall score maps to.
package confidence

import "errors"

// Factors holds the confidence evidence accumulated during one run.
// Overall is always derived from the four factor scores; it is never set
// directly outside initialization.
type Factors struct {
	DataQuality        float64  `json:"data_quality"`
	RegulatoryClarity  float64  `json:"regulatory_clarity"`
	PrecedentMatch     float64  `json:"precedent_match"`
	ModelCertainty     float64  `json:"model_certainty"`
	Overall            float64  `json:"overall"`
	UncertaintyFactors []string `json:"uncertainty_factors,omitempty"`
}

// Update is a partial factor update produced by a capability provider.
// Nil fields leave the current value untouched.
type Update struct {
	DataQuality        *float64 `json:"data_quality,omitempty"`
	RegulatoryClarity  *float64 `json:"regulatory_clarity,omitempty"`
	PrecedentMatch     *float64 `json:"precedent_match,omitempty"`
	ModelCertainty     *float64 `json:"model_certainty,omitempty"`
	UncertaintyFactors []string `json:"uncertainty_factors,omitempty"`
}

// initialScore represents maximum uncertainty: no evidence either way.
const initialScore = 50

// Initial returns the starting factors for a run: all scores at 50.
func Initial() Factors {
	return Factors{
		DataQuality:       initialScore,
		RegulatoryClarity: initialScore,
		PrecedentMatch:    initialScore,
		ModelCertainty:    initialScore,
		Overall:           initialScore,
	}
}

// Merge applies a partial update onto cur and recomputes Overall as the
// unweighted mean of the four factor scores. Uncertainty factors accumulate;
// duplicates are kept, as the list is an audit log of why confidence is
// impaired. Merge is commutative over disjoint updates because the mean is
// order-free.
func Merge(cur Factors, upd Update) Factors {
	next := cur
	if upd.DataQuality != nil {
		next.DataQuality = clamp(*upd.DataQuality)
	}
	if upd.RegulatoryClarity != nil {
		next.RegulatoryClarity = clamp(*upd.RegulatoryClarity)
	}
	if upd.PrecedentMatch != nil {
		next.PrecedentMatch = clamp(*upd.PrecedentMatch)
	}
	if upd.ModelCertainty != nil {
		next.ModelCertainty = clamp(*upd.ModelCertainty)
	}
	next.Overall = (next.DataQuality + next.RegulatoryClarity + next.PrecedentMatch + next.ModelCertainty) / 4

	if len(upd.UncertaintyFactors) > 0 {
		merged := make([]string, 0, len(cur.UncertaintyFactors)+len(upd.UncertaintyFactors))
		merged = append(merged, cur.UncertaintyFactors...)
		merged = append(merged, upd.UncertaintyFactors...)
		next.UncertaintyFactors = merged
	}
	return next
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// Score returns a pointer to v, for building partial updates.
func Score(v float64) *float64 {
	return &v
}

// DecisionType is the routing outcome derived from the overall score.
type DecisionType string

// Decision types, ordered from highest to lowest confidence band.
const (
	DecisionAutomated  DecisionType = "AUTOMATED"
	DecisionReview     DecisionType = "HUMAN_REVIEW"
	DecisionExpert     DecisionType = "EXPERT_CONSULTATION"
	DecisionEscalation DecisionType = "ESCALATION"
)

// Policy holds the decision-type thresholds. A score at or above Automated
// routes to AUTOMATED; below Expert routes to ESCALATION; the intermediate
// bands route to HUMAN_REVIEW and EXPERT_CONSULTATION respectively.
type Policy struct {
	Automated float64 `yaml:"automated"`
	Review    float64 `yaml:"review"`
	Expert    float64 `yaml:"expert"`
}

// DefaultPolicy returns the standard deployment thresholds.
func DefaultPolicy() Policy {
	return Policy{Automated: 85, Review: 70, Expert: 50}
}

// ErrInvalidPolicy indicates the thresholds are not strictly descending
// within the 0-100 range.
var ErrInvalidPolicy = errors.New("confidence thresholds must satisfy 0 < expert < review < automated <= 100")

// Validate checks that AUTOMATED is the strictly highest band.
func (p Policy) Validate() error {
	if p.Expert <= 0 || p.Expert >= p.Review || p.Review >= p.Automated || p.Automated > 100 {
		return ErrInvalidPolicy
	}
	return nil
}

// Decide maps an overall score to a decision type under this policy.
func (p Policy) Decide(overall float64) DecisionType {
	switch {
	case overall >= p.Automated:
		return DecisionAutomated
	case overall >= p.Review:
		return DecisionReview
	case overall >= p.Expert:
		return DecisionExpert
	default:
		return DecisionEscalation
	}
}
