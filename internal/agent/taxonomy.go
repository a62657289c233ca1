package agent

import (
	"context"
	"fmt"

	"github.com/sustainfi/sfdr-engine/internal/domain/classification"
	"github.com/sustainfi/sfdr-engine/internal/domain/confidence"
)

// Taxonomy checks the EU taxonomy-alignment declarations for internal
// consistency: an alignment claim needs environmental objectives and should
// come with a sustainable-investment objective backing it.
type Taxonomy struct{}

// NewTaxonomy returns the taxonomy-alignment check provider.
func NewTaxonomy() *Taxonomy { return &Taxonomy{} }

func (a *Taxonomy) ID() string { return "taxonomy" }

func (a *Taxonomy) Describe() string {
	return "checks taxonomy-alignment declarations for consistency"
}

func (a *Taxonomy) Execute(_ context.Context, in Input) (*Output, error) {
	req := in.Request

	assessment := &classification.TaxonomyAssessment{
		AlignmentClaimed:   req.Taxonomy.Claimed,
		AlignmentMinimum:   req.Taxonomy.AlignmentMinimum,
		ObjectivesDeclared: req.Taxonomy.EnvironmentalObjectives,
		Consistent:         true,
	}

	if req.Taxonomy.Claimed {
		if len(req.Taxonomy.EnvironmentalObjectives) == 0 {
			assessment.Consistent = false
			assessment.Findings = append(assessment.Findings, "alignment claimed without environmental objectives")
		}
		if !req.Sustainability.HasObjective && req.Taxonomy.AlignmentMinimum > 0 {
			assessment.Consistent = false
			assessment.Findings = append(assessment.Findings, "alignment minimum declared without a sustainable-investment objective")
		}
		if req.Taxonomy.AlignmentMinimum > req.Sustainability.InvestmentMinimum {
			assessment.Consistent = false
			assessment.Findings = append(assessment.Findings, "taxonomy alignment minimum exceeds the sustainable-investment minimum")
		}
	}

	var clarity float64
	var uncertainty []string
	switch {
	case !req.Taxonomy.Claimed:
		// Nothing claimed, nothing to contradict.
		clarity = 65
	case assessment.Consistent:
		clarity = 85
	default:
		clarity = 35
		uncertainty = append(uncertainty, "taxonomy declarations internally inconsistent")
	}

	opinion := classification.Article6
	switch {
	case req.Taxonomy.Claimed && assessment.Consistent && req.Sustainability.HasObjective:
		opinion = classification.Article9
	case req.ESG.Integrated:
		opinion = classification.Article8
	}

	return &Output{
		Taxonomy: assessment,
		Opinion: &classification.Opinion{
			AgentID:        a.ID(),
			Classification: opinion,
			Rationale:      fmt.Sprintf("taxonomy declarations consistent=%t support %s", assessment.Consistent, opinion),
		},
		Summary: fmt.Sprintf("taxonomy check: claimed=%t consistent=%t findings=%d", assessment.AlignmentClaimed, assessment.Consistent, len(assessment.Findings)),
		Confidence: confidence.Update{
			RegulatoryClarity:  confidence.Score(clarity),
			UncertaintyFactors: uncertainty,
		},
	}, nil
}
