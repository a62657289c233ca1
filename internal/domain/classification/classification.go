// Package classification defines the SFDR article labels and the terminal
// artifacts of one orchestration run: the decision path (audit trail) and
// the orchestration result.
package classification

import (
	"time"

	"github.com/sustainfi/sfdr-engine/internal/domain/confidence"
	"github.com/sustainfi/sfdr-engine/internal/domain/fund"
)

// Article is the SFDR disclosure category assigned to a fund. Exactly one is
// assigned per run.
type Article string

// The three mutually exclusive SFDR articles.
const (
	Article6 Article = "ARTICLE_6" // no sustainability claim
	Article8 Article = "ARTICLE_8" // promotes environmental/social characteristics
	Article9 Article = "ARTICLE_9" // sustainable-investment objective
)

// Valid reports whether a is one of the three known articles.
func (a Article) Valid() bool {
	return a == Article6 || a == Article8 || a == Article9
}

// Status is the terminal state of an orchestration run.
type Status string

// Run statuses. TERMINATED_EARLY is a successful outcome: a provider signaled
// that further analysis is pointless.
const (
	StatusCompleted       Status = "COMPLETED"
	StatusTerminatedEarly Status = "TERMINATED_EARLY"
	StatusError           Status = "ERROR"
)

// Importance grades a path step for audit readers.
type Importance string

// Step importance levels.
const (
	ImportanceLow    Importance = "LOW"
	ImportanceMedium Importance = "MEDIUM"
	ImportanceHigh   Importance = "HIGH"
)

// PathStep records one executed workflow step. Input and Output are compact
// summaries suitable for the audit trail, not full payload copies.
type PathStep struct {
	Sequence    int               `json:"sequence"` // logical order, stable under parallel stages
	StepID      string            `json:"step_id"`
	AgentID     string            `json:"agent_id"`
	Input       string            `json:"input"`
	Output      string            `json:"output"`
	Confidence  float64           `json:"confidence"` // overall score after this step's merge
	Timestamp   time.Time         `json:"timestamp"`
	Duration    time.Duration     `json:"duration"`
	Importance  Importance        `json:"importance"`
	Description string            `json:"description"`
	Attributes  map[string]string `json:"attributes,omitempty"`
}

// DecisionPath is the append-only audit trail of one run. It is mutable only
// while the executor owns it; callers receive it as an immutable artifact.
type DecisionPath struct {
	Steps         []PathStep `json:"steps"`
	FinalDecision Article    `json:"final_decision,omitempty"`
}

// Append adds a step with the next logical sequence number.
func (p *DecisionPath) Append(step PathStep) {
	step.Sequence = len(p.Steps) + 1
	p.Steps = append(p.Steps, step)
}

// Opinion is a capability provider's classification recommendation,
// aggregated by majority vote into the final decision.
type Opinion struct {
	AgentID        string  `json:"agent_id"`
	Classification Article `json:"classification"`
	Rationale      string  `json:"rationale,omitempty"`
}

// AgentContribution summarizes what one agent added to the run.
type AgentContribution struct {
	AgentID    string        `json:"agent_id"`
	StepID     string        `json:"step_id"`
	Summary    string        `json:"summary"`
	Confidence float64       `json:"confidence"`
	Duration   time.Duration `json:"duration"`
}

// OrchestrationResult is the terminal, immutable record of one run.
type OrchestrationResult struct {
	OrchestrationID    string              `json:"orchestration_id"`
	StartTime          time.Time           `json:"start_time"`
	EndTime            time.Time           `json:"end_time"`
	Classification     Article             `json:"classification,omitempty"`
	Confidence         confidence.Factors  `json:"confidence"`
	DecisionType       confidence.DecisionType `json:"decision_type,omitempty"`
	DecisionPath       DecisionPath        `json:"decision_path"`
	AgentContributions []AgentContribution `json:"agent_contributions,omitempty"`
	WorkflowID         string              `json:"workflow_id,omitempty"`
	Status             Status              `json:"status"`
	Error              string              `json:"error,omitempty"`
}

// Context is the mutable state scoped to a single run. It is owned
// exclusively by the workflow executor and discarded on completion; no
// locking is required because no state is shared across runs.
type Context struct {
	OrchestrationID string
	Request         *fund.ClassificationRequest
	Confidence      confidence.Factors
	Path            DecisionPath

	structured *StructuredData
	result     *InferenceResult
	notes      map[string]string
}

// NewContext builds a run context around a request with initial confidence.
func NewContext(id string, req *fund.ClassificationRequest) *Context {
	return &Context{
		OrchestrationID: id,
		Request:         req,
		Confidence:      confidence.Initial(),
		notes:           make(map[string]string),
	}
}

// SetStructured stores the document-structuring output.
func (c *Context) SetStructured(sd *StructuredData) { c.structured = sd }

// Structured returns the stored document-structuring output, if any.
func (c *Context) Structured() *StructuredData { return c.structured }

// SetResult stores the category-inference output.
func (c *Context) SetResult(r *InferenceResult) { c.result = r }

// Result returns the stored category-inference output, if any.
func (c *Context) Result() *InferenceResult { return c.result }

// AddNote records shared knowledge for downstream steps and the audit trail.
func (c *Context) AddNote(key, value string) { c.notes[key] = value }

// Note returns a shared-knowledge entry.
func (c *Context) Note(key string) (string, bool) {
	v, ok := c.notes[key]
	return v, ok
}
