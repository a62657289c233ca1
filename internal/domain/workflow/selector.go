package workflow

import "github.com/sustainfi/sfdr-engine/internal/domain/fund"

// Complexity scoring weights and bands. The score is monotonic in every
// scored feature: adding a feature never selects a simpler workflow.
const (
	weightComplexStrategy = 2
	weightPAI             = 2
	weightContinuous      = 1
	assetClassBaseline    = 3

	standardBand = 3 // score >= standardBand selects standard
	complexBand  = 6 // score >= complexBand selects complex

	// complexStrategyLen marks an investment-strategy narrative as complex.
	complexStrategyLen = 240
)

// Library holds the process-wide workflow templates: built-in presets plus
// YAML-loaded overrides keyed by ID. Initialized once at startup, read-only
// afterwards, safe for unsynchronized concurrent reads.
type Library struct {
	byID map[string]Workflow
}

// NewLibrary builds a Library from the presets with custom templates layered
// over them (a custom template with a builtin ID replaces the preset).
func NewLibrary(custom []Workflow) *Library {
	byID := make(map[string]Workflow)
	for _, w := range BuiltinWorkflows() {
		byID[w.ID] = w
	}
	for _, w := range custom {
		byID[w.ID] = w
	}
	return &Library{byID: byID}
}

// Get returns the workflow with the given ID.
func (l *Library) Get(id string) (Workflow, bool) {
	w, ok := l.byID[id]
	return w, ok
}

// Select chooses the workflow for a request from its complexity score.
// Selection is total and deterministic: every request resolves to exactly
// one workflow, and a nil request falls back to the simple preset.
func (l *Library) Select(req *fund.ClassificationRequest) Workflow {
	id := IDSimple
	switch score := ComplexityScore(req); {
	case score >= complexBand:
		id = IDComplex
	case score >= standardBand:
		id = IDStandard
	}

	if w, ok := l.byID[id]; ok {
		return w
	}
	// Custom library without the selected ID: fall back to the preset set.
	for _, w := range BuiltinWorkflows() {
		if w.ID == id {
			return w
		}
	}
	return simple()
}

// ComplexityScore computes the weighted request complexity. It never fails;
// a nil request scores zero.
func ComplexityScore(req *fund.ClassificationRequest) int {
	if req == nil {
		return 0
	}

	score := 0
	if len(req.Fund.InvestmentStrategy) >= complexStrategyLen {
		score += weightComplexStrategy
	}
	if extra := len(req.Fund.AssetClasses) - assetClassBaseline; extra > 0 {
		score += extra
	}
	if req.Risk.PAIConsidered {
		score += weightPAI
	}
	if req.ContinuousRiskReview() {
		score += weightContinuous
	}
	return score
}
