package rules

import (
	"fmt"

	"github.com/sustainfi/sfdr-engine/internal/domain/classification"
	"github.com/sustainfi/sfdr-engine/internal/domain/fund"
)

// Recommendation is the deterministic article recommendation plus the
// reasoning that justifies the chosen branch.
type Recommendation struct {
	Classification classification.Article `json:"classification"`
	Reasoning      []string               `json:"reasoning"`
}

// Classify walks the article decision tree. It is independent of Validate:
// a request may be eligible for Article 8/9 while still failing ERROR-level
// rules, and those findings are reported separately. Classify always returns
// exactly one article and never fails.
func Classify(req *fund.ClassificationRequest) Recommendation {
	if eligible, reasons := article9Eligible(req); eligible {
		return Recommendation{Classification: classification.Article9, Reasoning: reasons}
	}
	if eligible, reasons := article8Eligible(req); eligible {
		return Recommendation{Classification: classification.Article8, Reasoning: reasons}
	}
	return Recommendation{
		Classification: classification.Article6,
		Reasoning: []string{
			"no sustainable-investment objective declared and the promotion criteria are not met",
			"fund defaults to Article 6 disclosure obligations",
		},
	}
}

// article9Eligible checks the full most-restrictive predicate: objective
// narrative present, minimum allocation met, measurement methodology present,
// adverse-impact consideration enabled.
func article9Eligible(req *fund.ClassificationRequest) (bool, []string) {
	s := req.Sustainability
	if !s.HasObjective || len(s.ObjectiveNarrative) < MinObjectiveNarrative {
		return false, nil
	}
	if s.InvestmentMinimum < MinSustainableAllocation {
		return false, nil
	}
	if len(s.MeasurementMethodology) < MinMethodology {
		return false, nil
	}
	if !req.Risk.PAIConsidered {
		return false, nil
	}
	return true, []string{
		"sustainable-investment objective is declared with a substantive narrative",
		fmt.Sprintf("committed allocation %.1f%% meets the %.0f%% Article 9 floor", s.InvestmentMinimum, MinSustainableAllocation),
		"objective attainment is backed by a measurement methodology",
		"principal adverse impacts are considered",
	}
}

// article8Eligible checks the characteristics-promotion predicate: ESG
// integration enabled, sustainability-risk process defined, promotional
// marketing flag set.
func article8Eligible(req *fund.ClassificationRequest) (bool, []string) {
	if !req.ESG.Integrated {
		return false, nil
	}
	if req.Risk.ProcessDescription == "" {
		return false, nil
	}
	if !req.Fund.MarketedAsESG {
		return false, nil
	}
	return true, []string{
		"environmental/social characteristics are integrated into the investment process",
		"a sustainability-risk process is defined",
		"the fund is marketed on its ESG characteristics",
	}
}
