package agent

import (
	"context"
	"fmt"

	"github.com/sustainfi/sfdr-engine/internal/domain/classification"
	"github.com/sustainfi/sfdr-engine/internal/domain/confidence"
	"github.com/sustainfi/sfdr-engine/internal/domain/rules"
)

// Inference derives the provisional article from the structured disclosure
// evidence and the declared fields. Certainty reflects how far the request
// sits from the eligibility boundaries, not just which side of them.
type Inference struct{}

// NewInference returns the category-inference provider.
func NewInference() *Inference { return &Inference{} }

func (a *Inference) ID() string { return "inference" }

func (a *Inference) Describe() string {
	return "infers the disclosure article from structured evidence"
}

func (a *Inference) Execute(_ context.Context, in Input) (*Output, error) {
	req := in.Request
	rec := rules.Classify(req)

	result := &classification.InferenceResult{
		Classification: rec.Classification,
		Rationale:      rec.Reasoning[0],
		Signals:        signalsFor(in),
		Certainty:      certaintyFor(in, rec.Classification),
	}

	clarity := regulatoryClarity(in)
	var uncertainty []string
	if result.Certainty < 60 {
		uncertainty = append(uncertainty, "declared profile sits close to an eligibility boundary")
	}

	return &Output{
		Inference: result,
		Opinion: &classification.Opinion{
			AgentID:        a.ID(),
			Classification: rec.Classification,
			Rationale:      result.Rationale,
		},
		Summary: fmt.Sprintf("inferred %s with certainty %.0f", rec.Classification, result.Certainty),
		Confidence: confidence.Update{
			ModelCertainty:     confidence.Score(result.Certainty),
			RegulatoryClarity:  confidence.Score(clarity),
			UncertaintyFactors: uncertainty,
		},
	}, nil
}

// certaintyFor scores 0-100 how decisively the request lands in its article.
func certaintyFor(in Input, article classification.Article) float64 {
	req := in.Request
	switch article {
	case classification.Article9:
		// Margin above the allocation floor drives certainty.
		margin := req.Sustainability.InvestmentMinimum - rules.MinSustainableAllocation
		score := 70 + margin
		if len(req.Risk.PAIIndicators) > 0 {
			score += 5
		}
		return score
	case classification.Article8:
		score := 65.0
		if len(req.ESG.CharacteristicsPromoted) > 0 {
			score += 10
		}
		if req.Sustainability.HasObjective {
			// Declared an objective but missed the Article 9 bar: borderline.
			score -= 20
		}
		return score
	default:
		score := 75.0
		if in.Structured != nil && len(in.Structured.ESGSignals) > 2 {
			// ESG-heavy text without any declared claim is suspicious.
			score -= 25
		}
		return score
	}
}

// regulatoryClarity scores how explicitly the request declares its position.
func regulatoryClarity(in Input) float64 {
	req := in.Request
	score := 40.0
	if req.Sustainability.HasObjective {
		score += 20
	}
	if req.ESG.Integrated {
		score += 15
	}
	if req.Risk.ProcessDescription != "" {
		score += 15
	}
	if req.Taxonomy.Claimed {
		score += 10
	}
	return score
}

func signalsFor(in Input) []string {
	var signals []string
	if in.Request.Sustainability.HasObjective {
		signals = append(signals, "declared sustainable-investment objective")
	}
	if in.Request.ESG.Integrated {
		signals = append(signals, "declared ESG integration")
	}
	if in.Structured != nil {
		signals = append(signals, in.Structured.ESGSignals...)
	}
	return signals
}
