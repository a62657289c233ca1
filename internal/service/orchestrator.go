package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sustainfi/sfdr-engine/internal/agent"
	"github.com/sustainfi/sfdr-engine/internal/domain"
	"github.com/sustainfi/sfdr-engine/internal/domain/classification"
	"github.com/sustainfi/sfdr-engine/internal/domain/confidence"
	"github.com/sustainfi/sfdr-engine/internal/domain/workflow"
)

// Orchestrator executes classification workflows. It threads the run context
// through the declared steps, accumulates the decision path, and merges
// confidence after every step. One Orchestrator serves all runs; per-run
// state lives in the classification.Context that each run owns exclusively.
type Orchestrator struct {
	registry       *agent.Registry
	policy         confidence.Policy
	defaultTimeout time.Duration
	now            func() time.Time
}

// NewOrchestrator creates an Orchestrator bound to an agent registry and a
// confidence policy. A zero defaultTimeout falls back to the workflow
// package default.
func NewOrchestrator(registry *agent.Registry, policy confidence.Policy, defaultTimeout time.Duration, now func() time.Time) *Orchestrator {
	if defaultTimeout <= 0 {
		defaultTimeout = workflow.DefaultStepTimeout
	}
	if now == nil {
		now = time.Now
	}
	return &Orchestrator{
		registry:       registry,
		policy:         policy,
		defaultTimeout: defaultTimeout,
		now:            now,
	}
}

// stepResult pairs a step with its provider output for post-stage processing.
type stepResult struct {
	step     workflow.Step
	out      *agent.Output
	err      error
	started  time.Time
	duration time.Duration
}

// Run executes the workflow over the run context and returns the terminal
// result. Stages execute in declared order; within a parallel-capable
// workflow the steps of one stage run concurrently and their outputs are
// merged in declared step order, so the confidence trail is identical across
// runs regardless of goroutine scheduling. Any step failure, including a
// provider panic or timeout, converts to a terminal ERROR result that keeps
// the decision path accumulated so far.
func (o *Orchestrator) Run(ctx context.Context, wf workflow.Workflow, run *classification.Context) *classification.OrchestrationResult {
	result := &classification.OrchestrationResult{
		OrchestrationID: run.OrchestrationID,
		WorkflowID:      wf.ID,
		Status:          classification.StatusCompleted,
	}

	var (
		opinions      []classification.Opinion
		contributions []classification.AgentContribution
		terminated    bool
	)

stages:
	for _, stage := range wf.Stages() {
		results := o.runStage(ctx, wf, stage, run)

		for _, sr := range results {
			if sr.err != nil {
				result.Status = classification.StatusError
				result.Error = fmt.Sprintf("step %s: %v", sr.step.ID, sr.err)
				slog.Error("workflow step failed",
					"orchestration_id", run.OrchestrationID,
					"step_id", sr.step.ID,
					"agent_id", sr.step.AgentID,
					"error", sr.err,
				)
				break stages
			}

			o.absorb(run, sr)

			contributions = append(contributions, classification.AgentContribution{
				AgentID:    sr.step.AgentID,
				StepID:     sr.step.ID,
				Summary:    sr.out.Summary,
				Confidence: run.Confidence.Overall,
				Duration:   sr.duration,
			})
			if sr.out.Opinion != nil {
				opinions = append(opinions, *sr.out.Opinion)
			}
			if sr.out.Terminate {
				slog.Info("workflow terminated early",
					"orchestration_id", run.OrchestrationID,
					"step_id", sr.step.ID,
					"reason", sr.out.TerminateReason,
				)
				terminated = true
			}
		}
		if terminated {
			break
		}
	}

	result.Confidence = run.Confidence
	result.AgentContributions = contributions
	result.DecisionPath = run.Path

	if result.Status == classification.StatusError {
		return result
	}
	if terminated {
		result.Status = classification.StatusTerminatedEarly
	}

	// A low overall score is not a failure: the provisional classification
	// is still returned and the decision type routes it downstream.
	result.Classification = o.vote(opinions)
	result.DecisionType = o.policy.Decide(run.Confidence.Overall)
	result.DecisionPath.FinalDecision = result.Classification
	return result
}

// runStage executes one stage. Sequential workflows, and single-step stages,
// run inline; parallel-capable stages fan out with one goroutine per step.
// Results come back indexed by declared position.
func (o *Orchestrator) runStage(ctx context.Context, wf workflow.Workflow, stage []workflow.Step, run *classification.Context) []stepResult {
	results := make([]stepResult, len(stage))

	if !wf.Parallel || len(stage) == 1 {
		for i, step := range stage {
			results[i] = o.runStep(ctx, step, run)
			if results[i].err != nil {
				return results[:i+1]
			}
		}
		return results
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, step := range stage {
		g.Go(func() error {
			results[i] = o.runStep(gctx, step, run)
			return nil
		})
	}
	_ = g.Wait() // step errors travel in results, never through the group
	return results
}

// runStep resolves the provider, builds the typed input, and invokes the
// provider under the step timeout. A timed-out provider is abandoned rather
// than preempted; its goroutine finishes into a buffered channel.
func (o *Orchestrator) runStep(ctx context.Context, step workflow.Step, run *classification.Context) stepResult {
	sr := stepResult{step: step, started: o.now()}

	prov, ok := o.registry.Get(step.AgentID)
	if !ok {
		sr.err = fmt.Errorf("%w: %s", domain.ErrUnknownAgent, step.AgentID)
		return sr
	}

	in, err := o.buildInput(step, run)
	if err != nil {
		sr.err = err
		return sr
	}

	timeout := step.Timeout
	if timeout <= 0 {
		timeout = o.defaultTimeout
	}
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type invocation struct {
		out *agent.Output
		err error
	}
	done := make(chan invocation, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- invocation{err: fmt.Errorf("agent %s panicked: %v", step.AgentID, r)}
			}
		}()
		out, err := prov.Execute(stepCtx, in)
		done <- invocation{out: out, err: err}
	}()

	select {
	case inv := <-done:
		sr.out, sr.err = inv.out, inv.err
	case <-stepCtx.Done():
		sr.err = fmt.Errorf("agent %s: %w", step.AgentID, stepCtx.Err())
	}
	if sr.err == nil && sr.out == nil {
		sr.err = fmt.Errorf("agent %s returned no output", step.AgentID)
	}
	sr.duration = o.now().Sub(sr.started)
	return sr
}

// buildInput assembles the typed step payload from the request and the
// outputs stored by prior stages.
func (o *Orchestrator) buildInput(step workflow.Step, run *classification.Context) (agent.Input, error) {
	in := agent.Input{Request: run.Request}
	switch step.Input {
	case workflow.InputFundDocuments:
		// Raw request only.
	case workflow.InputStructuredData:
		sd := run.Structured()
		if sd == nil {
			return in, fmt.Errorf("step %s requires structured data before any step produced it", step.ID)
		}
		in.Structured = sd
	case workflow.InputClassificationResult:
		res := run.Result()
		if res == nil {
			return in, fmt.Errorf("step %s requires a classification result before any step produced it", step.ID)
		}
		in.Inference = res
	default:
		return in, fmt.Errorf("step %s has unknown input kind %q", step.ID, step.Input)
	}
	return in, nil
}

// absorb applies a successful step to the run context: stores the typed
// output, merges confidence, and appends the audit trail entry.
func (o *Orchestrator) absorb(run *classification.Context, sr stepResult) {
	out := sr.out

	switch sr.step.Output {
	case workflow.OutputStructuredData:
		run.SetStructured(out.Structured)
	case workflow.OutputClassificationResult:
		run.SetResult(out.Inference)
	case workflow.OutputImpactAssessment:
		if out.Impact != nil {
			run.AddNote("impact", out.Summary)
		}
	case workflow.OutputTaxonomyAssessment:
		if out.Taxonomy != nil {
			run.AddNote("taxonomy", out.Summary)
		}
	}

	run.Confidence = confidence.Merge(run.Confidence, out.Confidence)

	run.Path.Append(classification.PathStep{
		StepID:      sr.step.ID,
		AgentID:     sr.step.AgentID,
		Input:       string(sr.step.Input),
		Output:      out.Summary,
		Confidence:  run.Confidence.Overall,
		Timestamp:   sr.started,
		Duration:    sr.duration,
		Importance:  importanceFor(sr.step.Output),
		Description: describe(o.registry, sr.step.AgentID),
	})
}

// vote selects the final classification by majority over the provider
// opinions. Ties resolve toward the article first proposed by the
// earliest-registered provider. With no opinions at all the vote abstains
// and the caller falls back to the rule-based recommendation.
func (o *Orchestrator) vote(opinions []classification.Opinion) classification.Article {
	if len(opinions) == 0 {
		return ""
	}

	counts := make(map[classification.Article]int)
	bestRank := make(map[classification.Article]int)
	for _, op := range opinions {
		counts[op.Classification]++
		rank := o.registry.Rank(op.AgentID)
		if got, ok := bestRank[op.Classification]; !ok || rank < got {
			bestRank[op.Classification] = rank
		}
	}

	var winner classification.Article
	for article, n := range counts {
		if winner == "" {
			winner = article
			continue
		}
		switch {
		case n > counts[winner]:
			winner = article
		case n == counts[winner] && bestRank[article] < bestRank[winner]:
			winner = article
		}
	}
	return winner
}

func importanceFor(kind workflow.OutputKind) classification.Importance {
	switch kind {
	case workflow.OutputClassificationResult:
		return classification.ImportanceHigh
	case workflow.OutputStructuredData:
		return classification.ImportanceMedium
	default:
		return classification.ImportanceLow
	}
}

func describe(registry *agent.Registry, agentID string) string {
	if a, ok := registry.Get(agentID); ok {
		return a.Describe()
	}
	return agentID
}
