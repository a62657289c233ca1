// Package agent defines the capability-provider contract and the built-in
// providers: stateless units that each produce one kind of partial analysis
// result plus a confidence contribution. Providers never touch the run
// context; the executor alone moves payloads in and out.
package agent

import (
	"context"
	"fmt"

	"github.com/sustainfi/sfdr-engine/internal/domain/classification"
	"github.com/sustainfi/sfdr-engine/internal/domain/confidence"
	"github.com/sustainfi/sfdr-engine/internal/domain/fund"
)

// Input is the typed step payload handed to a provider. Request is always
// present; Structured and Inference are set according to the step's declared
// input kind.
type Input struct {
	Request    *fund.ClassificationRequest
	Structured *classification.StructuredData
	Inference  *classification.InferenceResult
}

// Output is a provider's partial result. Exactly one payload field matching
// the step's declared output kind is set. Terminate signals the executor to
// halt the workflow early; it is not an error.
type Output struct {
	Structured *classification.StructuredData
	Inference  *classification.InferenceResult
	Impact     *classification.ImpactAssessment
	Taxonomy   *classification.TaxonomyAssessment

	Opinion *classification.Opinion
	Summary string

	Confidence confidence.Update

	Terminate       bool
	TerminateReason string
}

// Agent is a stateless capability provider.
type Agent interface {
	// ID returns the stable provider identifier bound by workflow steps.
	ID() string

	// Describe returns a one-line description for the decision trail.
	Describe() string

	// Execute produces the provider's partial result. It must be pure over
	// its input and must honor ctx cancellation for long-running work.
	Execute(ctx context.Context, in Input) (*Output, error)
}

// Registry maps agent IDs to providers. Registration order is significant:
// it breaks ties in the final classification vote. The registry is built at
// startup and read-only afterwards.
type Registry struct {
	order []string
	byID  map[string]Agent
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]Agent)}
}

// Register adds a provider. Duplicate IDs are rejected.
func (r *Registry) Register(a Agent) error {
	if _, ok := r.byID[a.ID()]; ok {
		return fmt.Errorf("agent %q already registered", a.ID())
	}
	r.byID[a.ID()] = a
	r.order = append(r.order, a.ID())
	return nil
}

// Get returns the provider with the given ID.
func (r *Registry) Get(id string) (Agent, bool) {
	a, ok := r.byID[id]
	return a, ok
}

// Rank returns the registration position of an agent, used to resolve vote
// ties in favor of the first-registered provider. Unknown agents rank last.
func (r *Registry) Rank(id string) int {
	for i, got := range r.order {
		if got == id {
			return i
		}
	}
	return len(r.order)
}

// Default returns a registry with the four built-in providers in their
// canonical order.
func Default() *Registry {
	r := NewRegistry()
	for _, a := range []Agent{
		NewDocIntel(),
		NewInference(),
		NewImpact(),
		NewTaxonomy(),
	} {
		// Built-in IDs are unique by construction.
		_ = r.Register(a)
	}
	return r
}
