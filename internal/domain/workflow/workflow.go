// Package workflow defines classification workflow templates: named, ordered
// step sequences that bind capability providers to typed step payloads.
// Templates may be loaded from YAML files or taken from the built-in presets.
package workflow

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrIDRequired       = errors.New("workflow id is required")
	ErrNameRequired     = errors.New("workflow name is required")
	ErrNoSteps          = errors.New("workflow must have at least one step")
	ErrStepMissingID    = errors.New("step id is required")
	ErrStepMissingAgent = errors.New("step agent_id is required")
	ErrInvalidInput     = errors.New("invalid step input kind")
	ErrInvalidOutput    = errors.New("invalid step output kind")
	ErrFirstStepInput   = errors.New("first stage must read fund documents")
)

// InputKind is the typed payload a step consumes. The closed set gives the
// executor compile-time-checked dispatch instead of string-keyed lookups.
type InputKind string

// Step input kinds.
const (
	InputFundDocuments        InputKind = "fund_documents"
	InputStructuredData       InputKind = "structured_data"
	InputClassificationResult InputKind = "classification_result"
)

// OutputKind is the typed payload a step produces.
type OutputKind string

// Step output kinds.
const (
	OutputStructuredData       OutputKind = "structured_data"
	OutputClassificationResult OutputKind = "classification_result"
	OutputImpactAssessment     OutputKind = "impact_assessment"
	OutputTaxonomyAssessment   OutputKind = "taxonomy_assessment"
)

// DefaultStepTimeout applies when a step declares no timeout.
const DefaultStepTimeout = 30 * time.Second

// Step is one unit of work in a workflow.
type Step struct {
	ID      string        `json:"id" yaml:"id"`
	AgentID string        `json:"agent_id" yaml:"agent_id"`
	Input   InputKind     `json:"input" yaml:"input"`
	Output  OutputKind    `json:"output" yaml:"output"`
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// EffectiveTimeout returns the declared timeout or the default.
func (s Step) EffectiveTimeout() time.Duration {
	if s.Timeout > 0 {
		return s.Timeout
	}
	return DefaultStepTimeout
}

// Workflow is a named, ordered step sequence. When Parallel is set, steps
// within one stage (same input kind) may execute concurrently; stages still
// run in declared order.
type Workflow struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Builtin     bool   `json:"builtin" yaml:"-"`
	Parallel    bool   `json:"parallel" yaml:"parallel"`
	Steps       []Step `json:"steps" yaml:"steps"`
}

// Validate checks the workflow for structural correctness.
func (w *Workflow) Validate() error {
	if w.ID == "" {
		return ErrIDRequired
	}
	if w.Name == "" {
		return ErrNameRequired
	}
	if len(w.Steps) == 0 {
		return ErrNoSteps
	}

	for i, s := range w.Steps {
		if s.ID == "" {
			return fmt.Errorf("step %d: %w", i, ErrStepMissingID)
		}
		if s.AgentID == "" {
			return fmt.Errorf("step %d: %w", i, ErrStepMissingAgent)
		}
		switch s.Input {
		case InputFundDocuments, InputStructuredData, InputClassificationResult:
		default:
			return fmt.Errorf("step %d input %q: %w", i, s.Input, ErrInvalidInput)
		}
		switch s.Output {
		case OutputStructuredData, OutputClassificationResult, OutputImpactAssessment, OutputTaxonomyAssessment:
		default:
			return fmt.Errorf("step %d output %q: %w", i, s.Output, ErrInvalidOutput)
		}
	}

	if w.Steps[0].Input != InputFundDocuments {
		return ErrFirstStepInput
	}
	return nil
}

// Stages partitions the steps into dependency stages by input kind:
// fund documents first, then structured data, then classification results.
// Steps keep their declared order within a stage.
func (w *Workflow) Stages() [][]Step {
	rank := func(k InputKind) int {
		switch k {
		case InputFundDocuments:
			return 0
		case InputStructuredData:
			return 1
		default:
			return 2
		}
	}

	stages := make([][]Step, 3)
	for _, s := range w.Steps {
		r := rank(s.Input)
		stages[r] = append(stages[r], s)
	}

	out := make([][]Step, 0, 3)
	for _, st := range stages {
		if len(st) > 0 {
			out = append(out, st)
		}
	}
	return out
}
