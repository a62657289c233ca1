package service

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sustainfi/sfdr-engine/internal/agent"
	"github.com/sustainfi/sfdr-engine/internal/domain/classification"
	"github.com/sustainfi/sfdr-engine/internal/domain/confidence"
	"github.com/sustainfi/sfdr-engine/internal/domain/fund"
	"github.com/sustainfi/sfdr-engine/internal/domain/workflow"
)

type fakeAgent struct {
	id string
	fn func(ctx context.Context, in agent.Input) (*agent.Output, error)
}

func (f *fakeAgent) ID() string       { return f.id }
func (f *fakeAgent) Describe() string { return "fake " + f.id }
func (f *fakeAgent) Execute(ctx context.Context, in agent.Input) (*agent.Output, error) {
	return f.fn(ctx, in)
}

func structuringOutput() *agent.Output {
	return &agent.Output{
		Structured: &classification.StructuredData{Completeness: 100},
		Summary:    "structured 1 document",
		Confidence: confidence.Update{DataQuality: confidence.Score(80)},
	}
}

func opinionOutput(id string, article classification.Article, certainty float64) *agent.Output {
	return &agent.Output{
		Inference: &classification.InferenceResult{Classification: article},
		Opinion:   &classification.Opinion{AgentID: id, Classification: article},
		Summary:   "classified as " + string(article),
		Confidence: confidence.Update{
			ModelCertainty: confidence.Score(certainty),
		},
	}
}

func plainRequest() *fund.ClassificationRequest {
	return &fund.ClassificationRequest{
		Fund: fund.Metadata{
			EntityID: "7a5f1d2e-9c34-4b8a-b1de-6f0a2c9d8e41",
			Name:     "Test Fund",
		},
	}
}

func registryWith(t *testing.T, agents ...agent.Agent) *agent.Registry {
	t.Helper()
	r := agent.NewRegistry()
	for _, a := range agents {
		if err := r.Register(a); err != nil {
			t.Fatal(err)
		}
	}
	return r
}

func twoStepWorkflow() workflow.Workflow {
	return workflow.Workflow{
		ID:   "wf-test",
		Name: "test",
		Steps: []workflow.Step{
			{ID: "structure", AgentID: "a", Input: workflow.InputFundDocuments, Output: workflow.OutputStructuredData},
			{ID: "infer", AgentID: "b", Input: workflow.InputStructuredData, Output: workflow.OutputClassificationResult},
		},
	}
}

func TestOrchestrator_SequentialRun(t *testing.T) {
	reg := registryWith(t,
		&fakeAgent{id: "a", fn: func(context.Context, agent.Input) (*agent.Output, error) {
			return structuringOutput(), nil
		}},
		&fakeAgent{id: "b", fn: func(_ context.Context, in agent.Input) (*agent.Output, error) {
			if in.Structured == nil {
				t.Fatal("expected structured data input")
			}
			return opinionOutput("b", classification.Article8, 90), nil
		}},
	)

	o := NewOrchestrator(reg, confidence.DefaultPolicy(), 0, nil)
	run := classification.NewContext("run-1", plainRequest())
	res := o.Run(context.Background(), twoStepWorkflow(), run)

	if res.Status != classification.StatusCompleted {
		t.Fatalf("status = %s, error = %s", res.Status, res.Error)
	}
	if res.Classification != classification.Article8 {
		t.Fatalf("classification = %s, want ARTICLE_8", res.Classification)
	}
	if got := len(res.DecisionPath.Steps); got != 2 {
		t.Fatalf("path has %d steps, want 2", got)
	}
	for i, step := range res.DecisionPath.Steps {
		if step.Sequence != i+1 {
			t.Fatalf("step %d sequence = %d", i, step.Sequence)
		}
	}
	if res.DecisionPath.FinalDecision != classification.Article8 {
		t.Fatalf("final decision = %s", res.DecisionPath.FinalDecision)
	}
	// DataQuality 80, ModelCertainty 90, two untouched factors at 50.
	if want := (80.0 + 90.0 + 50.0 + 50.0) / 4; res.Confidence.Overall != want {
		t.Fatalf("overall = %.2f, want %.2f", res.Confidence.Overall, want)
	}
	if len(res.AgentContributions) != 2 {
		t.Fatalf("contributions = %d, want 2", len(res.AgentContributions))
	}
}

func TestOrchestrator_StepErrorPreservesPath(t *testing.T) {
	reg := registryWith(t,
		&fakeAgent{id: "a", fn: func(context.Context, agent.Input) (*agent.Output, error) {
			return structuringOutput(), nil
		}},
		&fakeAgent{id: "b", fn: func(context.Context, agent.Input) (*agent.Output, error) {
			return nil, errors.New("upstream unavailable")
		}},
	)

	o := NewOrchestrator(reg, confidence.DefaultPolicy(), 0, nil)
	run := classification.NewContext("run-1", plainRequest())
	res := o.Run(context.Background(), twoStepWorkflow(), run)

	if res.Status != classification.StatusError {
		t.Fatalf("status = %s, want ERROR", res.Status)
	}
	if !strings.Contains(res.Error, "infer") || !strings.Contains(res.Error, "upstream unavailable") {
		t.Fatalf("error = %q", res.Error)
	}
	if got := len(res.DecisionPath.Steps); got != 1 {
		t.Fatalf("path has %d steps, want only the completed step", got)
	}
	if res.Classification != "" {
		t.Fatalf("failed run must not carry a classification, got %s", res.Classification)
	}
}

func TestOrchestrator_PanicBecomesError(t *testing.T) {
	reg := registryWith(t,
		&fakeAgent{id: "a", fn: func(context.Context, agent.Input) (*agent.Output, error) {
			panic("nil dereference in extractor")
		}},
		&fakeAgent{id: "b", fn: func(context.Context, agent.Input) (*agent.Output, error) {
			t.Fatal("step after panic must not run")
			return nil, nil
		}},
	)

	o := NewOrchestrator(reg, confidence.DefaultPolicy(), 0, nil)
	run := classification.NewContext("run-1", plainRequest())
	res := o.Run(context.Background(), twoStepWorkflow(), run)

	if res.Status != classification.StatusError {
		t.Fatalf("status = %s, want ERROR", res.Status)
	}
	if !strings.Contains(res.Error, "panicked") {
		t.Fatalf("error = %q, want panic to surface", res.Error)
	}
}

func TestOrchestrator_StepTimeout(t *testing.T) {
	reg := registryWith(t,
		&fakeAgent{id: "a", fn: func(ctx context.Context, _ agent.Input) (*agent.Output, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}},
		&fakeAgent{id: "b", fn: func(context.Context, agent.Input) (*agent.Output, error) {
			return opinionOutput("b", classification.Article6, 75), nil
		}},
	)

	wf := twoStepWorkflow()
	wf.Steps[0].Timeout = 10 * time.Millisecond

	o := NewOrchestrator(reg, confidence.DefaultPolicy(), 0, nil)
	run := classification.NewContext("run-1", plainRequest())
	res := o.Run(context.Background(), wf, run)

	if res.Status != classification.StatusError {
		t.Fatalf("status = %s, want ERROR", res.Status)
	}
	if !strings.Contains(res.Error, context.DeadlineExceeded.Error()) {
		t.Fatalf("error = %q, want deadline exceeded", res.Error)
	}
}

func TestOrchestrator_EarlyTermination(t *testing.T) {
	var secondRan atomic.Bool
	reg := registryWith(t,
		&fakeAgent{id: "a", fn: func(context.Context, agent.Input) (*agent.Output, error) {
			out := structuringOutput()
			out.Terminate = true
			out.TerminateReason = "no disclosure evidence to analyze"
			return out, nil
		}},
		&fakeAgent{id: "b", fn: func(context.Context, agent.Input) (*agent.Output, error) {
			secondRan.Store(true)
			return opinionOutput("b", classification.Article8, 90), nil
		}},
	)

	o := NewOrchestrator(reg, confidence.DefaultPolicy(), 0, nil)
	run := classification.NewContext("run-1", plainRequest())
	res := o.Run(context.Background(), twoStepWorkflow(), run)

	if res.Status != classification.StatusTerminatedEarly {
		t.Fatalf("status = %s, want TERMINATED_EARLY", res.Status)
	}
	if secondRan.Load() {
		t.Fatal("stage after termination signal must not run")
	}
	if len(res.DecisionPath.Steps) != 1 {
		t.Fatalf("path has %d steps, want 1", len(res.DecisionPath.Steps))
	}
	if res.Classification != "" {
		t.Fatalf("no opinions were produced, vote must abstain, got %s", res.Classification)
	}
}

func TestOrchestrator_ParallelStageMergesInDeclaredOrder(t *testing.T) {
	// The last declared step finishes first. Per-field merge is last-write-
	// wins, so RegulatoryClarity must end at the last DECLARED value even
	// though that step completed earliest.
	reg := registryWith(t,
		&fakeAgent{id: "a", fn: func(context.Context, agent.Input) (*agent.Output, error) {
			return structuringOutput(), nil
		}},
		&fakeAgent{id: "slow", fn: func(context.Context, agent.Input) (*agent.Output, error) {
			time.Sleep(30 * time.Millisecond)
			return &agent.Output{
				Inference:  &classification.InferenceResult{Classification: classification.Article8},
				Summary:    "slow analysis",
				Confidence: confidence.Update{RegulatoryClarity: confidence.Score(60)},
			}, nil
		}},
		&fakeAgent{id: "fast", fn: func(context.Context, agent.Input) (*agent.Output, error) {
			return &agent.Output{
				Taxonomy:   &classification.TaxonomyAssessment{Consistent: true},
				Summary:    "fast analysis",
				Confidence: confidence.Update{RegulatoryClarity: confidence.Score(80)},
			}, nil
		}},
	)

	wf := workflow.Workflow{
		ID:       "wf-parallel",
		Name:     "parallel",
		Parallel: true,
		Steps: []workflow.Step{
			{ID: "structure", AgentID: "a", Input: workflow.InputFundDocuments, Output: workflow.OutputStructuredData},
			{ID: "analyze-slow", AgentID: "slow", Input: workflow.InputStructuredData, Output: workflow.OutputClassificationResult},
			{ID: "analyze-fast", AgentID: "fast", Input: workflow.InputStructuredData, Output: workflow.OutputTaxonomyAssessment},
		},
	}

	o := NewOrchestrator(reg, confidence.DefaultPolicy(), 0, nil)
	run := classification.NewContext("run-1", plainRequest())
	res := o.Run(context.Background(), wf, run)

	if res.Status != classification.StatusCompleted {
		t.Fatalf("status = %s, error = %s", res.Status, res.Error)
	}
	if res.Confidence.RegulatoryClarity != 80 {
		t.Fatalf("regulatory clarity = %.1f, want last declared step's 80", res.Confidence.RegulatoryClarity)
	}
	// Sequence numbers follow declared order, not completion order.
	wantOrder := []string{"structure", "analyze-slow", "analyze-fast"}
	for i, step := range res.DecisionPath.Steps {
		if step.StepID != wantOrder[i] {
			t.Fatalf("step %d = %s, want %s", i, step.StepID, wantOrder[i])
		}
	}
}

func TestOrchestrator_VoteMajority(t *testing.T) {
	reg := registryWith(t,
		&fakeAgent{id: "a", fn: func(context.Context, agent.Input) (*agent.Output, error) {
			return structuringOutput(), nil
		}},
		&fakeAgent{id: "b", fn: func(context.Context, agent.Input) (*agent.Output, error) {
			return opinionOutput("b", classification.Article9, 90), nil
		}},
		&fakeAgent{id: "c", fn: func(context.Context, agent.Input) (*agent.Output, error) {
			out := opinionOutput("c", classification.Article8, 70)
			out.Inference = nil
			out.Taxonomy = &classification.TaxonomyAssessment{}
			return out, nil
		}},
		&fakeAgent{id: "d", fn: func(context.Context, agent.Input) (*agent.Output, error) {
			out := opinionOutput("d", classification.Article8, 75)
			out.Inference = nil
			out.Impact = &classification.ImpactAssessment{}
			return out, nil
		}},
	)

	wf := workflow.Workflow{
		ID:   "wf-vote",
		Name: "vote",
		Steps: []workflow.Step{
			{ID: "structure", AgentID: "a", Input: workflow.InputFundDocuments, Output: workflow.OutputStructuredData},
			{ID: "infer", AgentID: "b", Input: workflow.InputStructuredData, Output: workflow.OutputClassificationResult},
			{ID: "taxonomy", AgentID: "c", Input: workflow.InputStructuredData, Output: workflow.OutputTaxonomyAssessment},
			{ID: "impact", AgentID: "d", Input: workflow.InputStructuredData, Output: workflow.OutputImpactAssessment},
		},
	}

	o := NewOrchestrator(reg, confidence.DefaultPolicy(), 0, nil)
	run := classification.NewContext("run-1", plainRequest())
	res := o.Run(context.Background(), wf, run)

	if res.Classification != classification.Article8 {
		t.Fatalf("classification = %s, want majority ARTICLE_8", res.Classification)
	}
}

func TestOrchestrator_VoteTieFavorsFirstRegistered(t *testing.T) {
	reg := registryWith(t,
		&fakeAgent{id: "a", fn: func(context.Context, agent.Input) (*agent.Output, error) {
			return structuringOutput(), nil
		}},
		&fakeAgent{id: "b", fn: func(context.Context, agent.Input) (*agent.Output, error) {
			return opinionOutput("b", classification.Article9, 90), nil
		}},
		&fakeAgent{id: "c", fn: func(context.Context, agent.Input) (*agent.Output, error) {
			out := opinionOutput("c", classification.Article8, 70)
			out.Inference = nil
			out.Taxonomy = &classification.TaxonomyAssessment{}
			return out, nil
		}},
	)

	wf := workflow.Workflow{
		ID:   "wf-tie",
		Name: "tie",
		Steps: []workflow.Step{
			{ID: "structure", AgentID: "a", Input: workflow.InputFundDocuments, Output: workflow.OutputStructuredData},
			{ID: "infer", AgentID: "b", Input: workflow.InputStructuredData, Output: workflow.OutputClassificationResult},
			{ID: "taxonomy", AgentID: "c", Input: workflow.InputStructuredData, Output: workflow.OutputTaxonomyAssessment},
		},
	}

	o := NewOrchestrator(reg, confidence.DefaultPolicy(), 0, nil)
	run := classification.NewContext("run-1", plainRequest())
	res := o.Run(context.Background(), wf, run)

	if res.Classification != classification.Article9 {
		t.Fatalf("classification = %s, tie must favor the first-registered provider", res.Classification)
	}
}

func TestOrchestrator_UnknownAgent(t *testing.T) {
	reg := registryWith(t)
	o := NewOrchestrator(reg, confidence.DefaultPolicy(), 0, nil)
	run := classification.NewContext("run-1", plainRequest())
	res := o.Run(context.Background(), twoStepWorkflow(), run)

	if res.Status != classification.StatusError {
		t.Fatalf("status = %s, want ERROR", res.Status)
	}
	if !strings.Contains(res.Error, "unknown agent") {
		t.Fatalf("error = %q", res.Error)
	}
}

func TestOrchestrator_DecisionTypeFromPolicy(t *testing.T) {
	reg := registryWith(t,
		&fakeAgent{id: "a", fn: func(context.Context, agent.Input) (*agent.Output, error) {
			out := structuringOutput()
			out.Confidence = confidence.Update{DataQuality: confidence.Score(20)}
			return out, nil
		}},
		&fakeAgent{id: "b", fn: func(context.Context, agent.Input) (*agent.Output, error) {
			out := opinionOutput("b", classification.Article6, 30)
			out.Confidence.RegulatoryClarity = confidence.Score(30)
			out.Confidence.PrecedentMatch = confidence.Score(30)
			return out, nil
		}},
	)

	o := NewOrchestrator(reg, confidence.DefaultPolicy(), 0, nil)
	run := classification.NewContext("run-1", plainRequest())
	res := o.Run(context.Background(), twoStepWorkflow(), run)

	// Overall (20+30+30+30)/4 = 27.5 sits below the expert band.
	if res.DecisionType != confidence.DecisionEscalation {
		t.Fatalf("decision type = %s, want ESCALATION", res.DecisionType)
	}
	if res.Classification != classification.Article6 {
		t.Fatalf("low confidence still returns the provisional classification, got %q", res.Classification)
	}
}
