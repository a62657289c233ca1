package workflow

import "time"

// Agent IDs bound by the built-in workflows.
const (
	AgentDocIntel  = "docintel"
	AgentInference = "inference"
	AgentImpact    = "impact"
	AgentTaxonomy  = "taxonomy"
)

// Built-in workflow IDs.
const (
	IDSimple   = "simple"
	IDStandard = "standard"
	IDComplex  = "complex"
)

// BuiltinWorkflows returns the set of built-in workflow templates.
func BuiltinWorkflows() []Workflow {
	return []Workflow{
		simple(),
		standard(),
		complex(),
	}
}

// simple: structure the documents, infer the category. Used for plain
// requests and as the fallback when complexity scoring is indeterminate.
func simple() Workflow {
	return Workflow{
		ID:          IDSimple,
		Name:        "Simple Classification",
		Description: "Two-step run: document structuring followed by category inference.",
		Builtin:     true,
		Steps: []Step{
			{ID: "structure", AgentID: AgentDocIntel, Input: InputFundDocuments, Output: OutputStructuredData},
			{ID: "infer", AgentID: AgentInference, Input: InputStructuredData, Output: OutputClassificationResult},
		},
	}
}

// standard: adds a taxonomy-alignment check; inference and taxonomy both read
// the structured data, so the stage is parallel-capable.
func standard() Workflow {
	return Workflow{
		ID:          IDStandard,
		Name:        "Standard Classification",
		Description: "Three-step run with a taxonomy-alignment check; analysis stage is parallel-capable.",
		Builtin:     true,
		Parallel:    true,
		Steps: []Step{
			{ID: "structure", AgentID: AgentDocIntel, Input: InputFundDocuments, Output: OutputStructuredData},
			{ID: "infer", AgentID: AgentInference, Input: InputStructuredData, Output: OutputClassificationResult},
			{ID: "taxonomy", AgentID: AgentTaxonomy, Input: InputStructuredData, Output: OutputTaxonomyAssessment},
		},
	}
}

// complex: full run including PAI indicator analysis, with a longer timeout
// on the structuring step for document-heavy requests.
func complex() Workflow {
	return Workflow{
		ID:          IDComplex,
		Name:        "Complex Classification",
		Description: "Four-step run adding impact-indicator analysis for document-heavy, PAI-reporting funds.",
		Builtin:     true,
		Parallel:    true,
		Steps: []Step{
			{ID: "structure", AgentID: AgentDocIntel, Input: InputFundDocuments, Output: OutputStructuredData, Timeout: 60 * time.Second},
			{ID: "infer", AgentID: AgentInference, Input: InputStructuredData, Output: OutputClassificationResult},
			{ID: "impact", AgentID: AgentImpact, Input: InputStructuredData, Output: OutputImpactAssessment},
			{ID: "taxonomy", AgentID: AgentTaxonomy, Input: InputStructuredData, Output: OutputTaxonomyAssessment},
		},
	}
}
