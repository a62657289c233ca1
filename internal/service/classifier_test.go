package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sustainfi/sfdr-engine/internal/agent"
	"github.com/sustainfi/sfdr-engine/internal/domain"
	"github.com/sustainfi/sfdr-engine/internal/domain/classification"
	"github.com/sustainfi/sfdr-engine/internal/domain/confidence"
	"github.com/sustainfi/sfdr-engine/internal/domain/fund"
	"github.com/sustainfi/sfdr-engine/internal/domain/rules"
	"github.com/sustainfi/sfdr-engine/internal/domain/workflow"
	"github.com/sustainfi/sfdr-engine/internal/port/auditsink"
	"github.com/sustainfi/sfdr-engine/internal/port/messagequeue"
	"github.com/sustainfi/sfdr-engine/internal/resilience"
)

type fakeSink struct {
	mu      sync.Mutex
	records []auditsink.Record
	saveErr error
}

func (s *fakeSink) Save(_ context.Context, rec auditsink.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *fakeSink) Get(_ context.Context, id string) (*classification.OrchestrationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.records {
		if rec.Result.OrchestrationID == id {
			return rec.Result, nil
		}
	}
	return nil, domain.ErrNotFound
}

type fakeCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newFakeCache() *fakeCache { return &fakeCache{data: make(map[string][]byte)} }

func (c *fakeCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *fakeCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *fakeCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

type fakeQueue struct {
	mu       sync.Mutex
	subjects []string
}

func (q *fakeQueue) Publish(_ context.Context, subject string, _ []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.subjects = append(q.subjects, subject)
	return nil
}

func (q *fakeQueue) Subscribe(context.Context, string, messagequeue.Handler) (func(), error) {
	return func() {}, nil
}

func (q *fakeQueue) Close() error { return nil }

// builtinFakes registers opinion-producing fakes under the built-in agent IDs
// so the preset workflows resolve.
func builtinFakes(t *testing.T, calls *atomic.Int64) *agent.Registry {
	t.Helper()
	return registryWith(t,
		&fakeAgent{id: workflow.AgentDocIntel, fn: func(context.Context, agent.Input) (*agent.Output, error) {
			if calls != nil {
				calls.Add(1)
			}
			return structuringOutput(), nil
		}},
		&fakeAgent{id: workflow.AgentInference, fn: func(context.Context, agent.Input) (*agent.Output, error) {
			return opinionOutput(workflow.AgentInference, classification.Article8, 90), nil
		}},
		&fakeAgent{id: workflow.AgentImpact, fn: func(context.Context, agent.Input) (*agent.Output, error) {
			out := opinionOutput(workflow.AgentImpact, classification.Article8, 80)
			out.Inference = nil
			out.Impact = &classification.ImpactAssessment{}
			return out, nil
		}},
		&fakeAgent{id: workflow.AgentTaxonomy, fn: func(context.Context, agent.Input) (*agent.Output, error) {
			out := opinionOutput(workflow.AgentTaxonomy, classification.Article8, 80)
			out.Inference = nil
			out.Taxonomy = &classification.TaxonomyAssessment{Consistent: true}
			return out, nil
		}},
	)
}

func newTestClassifier(t *testing.T, reg *agent.Registry, opts ...ClassifierOption) *Classifier {
	t.Helper()
	orch := NewOrchestrator(reg, confidence.DefaultPolicy(), time.Second, nil)
	return NewClassifier(rules.NewRuleSet(), workflow.NewLibrary(nil), orch, 2, opts...)
}

func TestClassifier_RejectsInvalidRequest(t *testing.T) {
	c := newTestClassifier(t, builtinFakes(t, nil))

	req := plainRequest()
	req.Fund.EntityID = "not-a-uuid"

	_, err := c.Classify(context.Background(), req)
	if err == nil {
		t.Fatal("expected rejection")
	}
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error type = %T", err)
	}
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatal("validation rejection must unwrap to ErrValidation")
	}
	if verr.Result.IsValid {
		t.Fatal("carried result must be invalid")
	}
	if len(verr.Result.Issues) == 0 {
		t.Fatal("carried result must list the issues")
	}
}

func TestClassifier_CompletedRun(t *testing.T) {
	sink := &fakeSink{}
	queue := &fakeQueue{}
	c := newTestClassifier(t, builtinFakes(t, nil),
		WithAuditSink(sink, resilience.NewBreaker(3, time.Minute)),
		WithQueue(queue),
	)

	res, err := c.Classify(context.Background(), plainRequest())
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != classification.StatusCompleted {
		t.Fatalf("status = %s, error = %s", res.Status, res.Error)
	}
	if res.Classification != classification.Article8 {
		t.Fatalf("classification = %s", res.Classification)
	}
	if res.OrchestrationID == "" {
		t.Fatal("missing orchestration id")
	}
	if res.WorkflowID != workflow.IDSimple {
		t.Fatalf("plain request selected %s, want the simple workflow", res.WorkflowID)
	}
	if res.EndTime.Before(res.StartTime) {
		t.Fatal("end before start")
	}

	if len(sink.records) != 1 {
		t.Fatalf("sink saw %d records", len(sink.records))
	}
	rec := sink.records[0]
	if rec.Result.OrchestrationID != res.OrchestrationID {
		t.Fatal("audit record carries wrong run")
	}
	if rec.Validation == nil || !rec.Validation.IsValid {
		t.Fatal("audit record must carry the validation result")
	}

	if len(queue.subjects) != 1 || queue.subjects[0] != "classifications.completed" {
		t.Fatalf("published subjects = %v", queue.subjects)
	}
}

func TestClassifier_FallbackWhenNoOpinions(t *testing.T) {
	// Structuring terminates immediately, so no provider opines and the
	// rule-based recommendation decides.
	reg := registryWith(t,
		&fakeAgent{id: workflow.AgentDocIntel, fn: func(context.Context, agent.Input) (*agent.Output, error) {
			out := structuringOutput()
			out.Terminate = true
			out.TerminateReason = "no disclosure evidence to analyze"
			return out, nil
		}},
		&fakeAgent{id: workflow.AgentInference, fn: func(context.Context, agent.Input) (*agent.Output, error) {
			t.Fatal("inference must not run after termination")
			return nil, nil
		}},
	)
	c := newTestClassifier(t, reg)

	res, err := c.Classify(context.Background(), plainRequest())
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != classification.StatusTerminatedEarly {
		t.Fatalf("status = %s, want TERMINATED_EARLY", res.Status)
	}
	if res.Classification != classification.Article6 {
		t.Fatalf("classification = %s, want rule fallback ARTICLE_6", res.Classification)
	}
	if res.DecisionPath.FinalDecision != classification.Article6 {
		t.Fatalf("final decision = %s", res.DecisionPath.FinalDecision)
	}
}

func TestClassifier_DecisionCache(t *testing.T) {
	var calls atomic.Int64
	cache := newFakeCache()
	c := newTestClassifier(t, builtinFakes(t, &calls), WithCache(cache, time.Minute))

	first, err := c.Classify(context.Background(), plainRequest())
	if err != nil {
		t.Fatal(err)
	}
	second, err := c.Classify(context.Background(), plainRequest())
	if err != nil {
		t.Fatal(err)
	}

	if calls.Load() != 1 {
		t.Fatalf("providers ran %d times, want 1 (second run served from cache)", calls.Load())
	}
	if second.OrchestrationID != first.OrchestrationID {
		t.Fatal("cached result must be the original run")
	}
	if second.Classification != first.Classification {
		t.Fatal("cached classification differs")
	}
}

func TestClassifier_AuditFailureDoesNotFailRun(t *testing.T) {
	sink := &fakeSink{saveErr: errors.New("connection refused")}
	c := newTestClassifier(t, builtinFakes(t, nil),
		WithAuditSink(sink, resilience.NewBreaker(3, time.Minute)),
	)

	res, err := c.Classify(context.Background(), plainRequest())
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != classification.StatusCompleted {
		t.Fatalf("status = %s", res.Status)
	}
}

func TestClassifier_FailedRunPublishesFailure(t *testing.T) {
	reg := registryWith(t,
		&fakeAgent{id: workflow.AgentDocIntel, fn: func(context.Context, agent.Input) (*agent.Output, error) {
			return nil, errors.New("extractor crashed")
		}},
		&fakeAgent{id: workflow.AgentInference, fn: func(context.Context, agent.Input) (*agent.Output, error) {
			return opinionOutput(workflow.AgentInference, classification.Article8, 90), nil
		}},
	)
	queue := &fakeQueue{}
	c := newTestClassifier(t, reg, WithQueue(queue))

	res, err := c.Classify(context.Background(), plainRequest())
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != classification.StatusError {
		t.Fatalf("status = %s", res.Status)
	}
	if len(queue.subjects) != 1 || queue.subjects[0] != "classifications.failed" {
		t.Fatalf("published subjects = %v", queue.subjects)
	}
}

func TestClassifier_BatchPreservesOrder(t *testing.T) {
	c := newTestClassifier(t, builtinFakes(t, nil))

	reqs := make([]*fund.ClassificationRequest, 5)
	for i := range reqs {
		reqs[i] = plainRequest()
		reqs[i].Fund.Name = "Fund " + string(rune('A'+i))
	}
	reqs[2].Fund.EntityID = "not-a-uuid"

	items := c.ClassifyBatch(context.Background(), reqs)
	if len(items) != 5 {
		t.Fatalf("got %d items", len(items))
	}
	for i, item := range items {
		if i == 2 {
			if !errors.Is(item.Err, domain.ErrValidation) {
				t.Fatalf("item 2 err = %v, want validation rejection", item.Err)
			}
			continue
		}
		if item.Err != nil {
			t.Fatalf("item %d err = %v", i, item.Err)
		}
		if item.Result.Classification != classification.Article8 {
			t.Fatalf("item %d classification = %s", i, item.Result.Classification)
		}
	}
}

func TestClassifier_ResultLookup(t *testing.T) {
	sink := &fakeSink{}
	c := newTestClassifier(t, builtinFakes(t, nil),
		WithAuditSink(sink, resilience.NewBreaker(3, time.Minute)),
	)

	res, err := c.Classify(context.Background(), plainRequest())
	if err != nil {
		t.Fatal(err)
	}

	got, err := c.Result(context.Background(), res.OrchestrationID)
	if err != nil {
		t.Fatal(err)
	}
	if got.OrchestrationID != res.OrchestrationID {
		t.Fatal("lookup returned wrong run")
	}

	if _, err := c.Result(context.Background(), "absent"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
