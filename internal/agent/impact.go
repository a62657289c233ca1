package agent

import (
	"context"
	"fmt"

	"github.com/sustainfi/sfdr-engine/internal/domain/classification"
	"github.com/sustainfi/sfdr-engine/internal/domain/confidence"
)

// mandatoryPAIIndicators is the core indicator set periodic reports must
// cover when principal adverse impacts are considered.
var mandatoryPAIIndicators = []string{
	"ghg_emissions",
	"carbon_footprint",
	"energy_consumption_intensity",
	"biodiversity_sensitive_areas",
	"hazardous_waste",
	"board_gender_diversity",
	"unga_global_compact_violations",
}

// Impact analyzes principal-adverse-impact indicator coverage: which of the
// mandatory indicators the fund tracks, and how that supports its claimed
// disclosure tier.
type Impact struct{}

// NewImpact returns the PAI indicator analysis provider.
func NewImpact() *Impact { return &Impact{} }

func (a *Impact) ID() string { return "impact" }

func (a *Impact) Describe() string {
	return "analyzes principal-adverse-impact indicator coverage"
}

func (a *Impact) Execute(_ context.Context, in Input) (*Output, error) {
	req := in.Request

	assessment := &classification.ImpactAssessment{}
	declared := make(map[string]bool, len(req.Risk.PAIIndicators))
	for _, ind := range req.Risk.PAIIndicators {
		declared[ind] = true
	}
	for _, ind := range mandatoryPAIIndicators {
		if declared[ind] {
			assessment.IndicatorsCovered = append(assessment.IndicatorsCovered, ind)
		} else {
			assessment.IndicatorsMissing = append(assessment.IndicatorsMissing, ind)
		}
	}
	assessment.CoverageRatio = float64(len(assessment.IndicatorsCovered)) / float64(len(mandatoryPAIIndicators))

	var uncertainty []string
	if req.Risk.PAIConsidered && len(req.Risk.PAIIndicators) == 0 {
		uncertainty = append(uncertainty, "adverse impacts considered but no indicators selected")
	}

	// Coverage supports the claimed tier; the opinion mirrors the declared
	// ambition only when the indicator evidence backs it.
	opinion := classification.Article6
	switch {
	case req.Sustainability.HasObjective && req.Risk.PAIConsidered && assessment.CoverageRatio >= 0.4:
		opinion = classification.Article9
	case req.Risk.PAIConsidered || req.ESG.Integrated:
		opinion = classification.Article8
	}

	// PrecedentMatch: funds with strong indicator coverage match the filed
	// precedent base closely; zero coverage leaves precedent neutral-low.
	precedent := 40 + 50*assessment.CoverageRatio

	return &Output{
		Impact: assessment,
		Opinion: &classification.Opinion{
			AgentID:        a.ID(),
			Classification: opinion,
			Rationale:      fmt.Sprintf("indicator coverage %.0f%% supports %s", assessment.CoverageRatio*100, opinion),
		},
		Summary: fmt.Sprintf("%d/%d mandatory indicators covered", len(assessment.IndicatorsCovered), len(mandatoryPAIIndicators)),
		Confidence: confidence.Update{
			PrecedentMatch:     confidence.Score(precedent),
			UncertaintyFactors: uncertainty,
		},
	}, nil
}
