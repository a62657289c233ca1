package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/sustainfi/sfdr-engine/internal/domain"
	"github.com/sustainfi/sfdr-engine/internal/domain/classification"
	"github.com/sustainfi/sfdr-engine/internal/domain/confidence"
	"github.com/sustainfi/sfdr-engine/internal/domain/fund"
	"github.com/sustainfi/sfdr-engine/internal/domain/rules"
	"github.com/sustainfi/sfdr-engine/internal/domain/workflow"
	"github.com/sustainfi/sfdr-engine/internal/port/auditsink"
	"github.com/sustainfi/sfdr-engine/internal/port/cache"
	"github.com/sustainfi/sfdr-engine/internal/port/messagequeue"
	"github.com/sustainfi/sfdr-engine/internal/resilience"
)

// ValidationError reports that a request was rejected before orchestration.
// It carries the full rule result so callers can surface every issue at once.
type ValidationError struct {
	Result rules.Result
}

func (e *ValidationError) Error() string {
	n := 0
	for _, iss := range e.Result.Issues {
		if iss.Severity == rules.SeverityError {
			n++
		}
	}
	return fmt.Sprintf("request failed validation with %d error(s)", n)
}

func (e *ValidationError) Unwrap() error { return domain.ErrValidation }

// Classifier is the single entry point for classification runs. It validates
// the request, selects and executes a workflow, and handles the side effects
// of a finished run: audit persistence, decision events, and the decision
// cache. Ports may be nil; a missing port disables that side effect.
type Classifier struct {
	rules        *rules.RuleSet
	library      *workflow.Library
	orchestrator *Orchestrator

	sink    auditsink.Sink
	breaker *resilience.Breaker
	queue   messagequeue.Queue
	cache   cache.Cache

	cacheTTL    time.Duration
	batchWindow int64
	now         func() time.Time
	newID       func() string
}

// ClassifierOption customizes a Classifier.
type ClassifierOption func(*Classifier)

// WithAuditSink wires the audit store, guarded by the given breaker.
func WithAuditSink(sink auditsink.Sink, breaker *resilience.Breaker) ClassifierOption {
	return func(c *Classifier) {
		c.sink = sink
		c.breaker = breaker
	}
}

// WithQueue wires the decision-event publisher.
func WithQueue(q messagequeue.Queue) ClassifierOption {
	return func(c *Classifier) { c.queue = q }
}

// WithCache wires the decision cache.
func WithCache(ca cache.Cache, ttl time.Duration) ClassifierOption {
	return func(c *Classifier) {
		c.cache = ca
		c.cacheTTL = ttl
	}
}

// WithClock overrides the clock, for tests.
func WithClock(now func() time.Time) ClassifierOption {
	return func(c *Classifier) { c.now = now }
}

// NewClassifier assembles the classification facade.
func NewClassifier(rs *rules.RuleSet, library *workflow.Library, orch *Orchestrator, batchWindow int64, opts ...ClassifierOption) *Classifier {
	if batchWindow < 1 {
		batchWindow = 1
	}
	c := &Classifier{
		rules:        rs,
		library:      library,
		orchestrator: orch,
		batchWindow:  batchWindow,
		now:          time.Now,
		newID:        uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Validate runs the rule set against a request without orchestrating.
func (c *Classifier) Validate(req *fund.ClassificationRequest) rules.Result {
	return c.rules.Validate(req)
}

// Classify runs one request end to end. Requests with ERROR-severity issues
// are rejected with a *ValidationError before any workflow executes. A run
// whose providers produced no classification opinion falls back to the
// rule-based recommendation so every completed run carries an article.
func (c *Classifier) Classify(ctx context.Context, req *fund.ClassificationRequest) (*classification.OrchestrationResult, error) {
	validation := c.rules.Validate(req)
	if !validation.IsValid {
		return nil, &ValidationError{Result: validation}
	}

	key := req.Hash()
	if cached := c.cachedResult(ctx, key); cached != nil {
		slog.Debug("decision cache hit", "entity_id", req.Fund.EntityID)
		return cached, nil
	}

	id := c.newID()
	run := classification.NewContext(id, req)
	wf := c.library.Select(req)

	start := c.now()
	result := c.orchestrator.Run(ctx, wf, run)
	result.StartTime = start
	result.EndTime = c.now()

	if result.Status != classification.StatusError && result.Classification == "" {
		rec := rules.Classify(req)
		result.Classification = rec.Classification
		result.DecisionPath.FinalDecision = rec.Classification
		slog.Info("no provider opinion, using rule-based recommendation",
			"orchestration_id", id,
			"classification", rec.Classification,
		)
	}

	c.audit(ctx, auditsink.Record{Result: result, Request: req, Validation: &validation})
	c.publish(ctx, req, result)
	// Only fully-analyzed runs are cached.
	if result.Status == classification.StatusCompleted {
		c.storeCached(ctx, key, result)
	}

	slog.Info("classification finished",
		"orchestration_id", id,
		"entity_id", req.Fund.EntityID,
		"workflow_id", result.WorkflowID,
		"classification", result.Classification,
		"decision_type", result.DecisionType,
		"confidence", result.Confidence.Overall,
		"status", result.Status,
		"duration", result.EndTime.Sub(result.StartTime),
	)
	return result, nil
}

// BatchItem is the per-request outcome of a batch run.
type BatchItem struct {
	Result *classification.OrchestrationResult
	Err    error
}

// ClassifyBatch runs every request with at most the configured window in
// flight. One request's failure never aborts the others; items come back in
// request order.
func (c *Classifier) ClassifyBatch(ctx context.Context, reqs []*fund.ClassificationRequest) []BatchItem {
	items := make([]BatchItem, len(reqs))
	sem := semaphore.NewWeighted(c.batchWindow)

	for i, req := range reqs {
		if err := sem.Acquire(ctx, 1); err != nil {
			items[i] = BatchItem{Err: err}
			continue
		}
		go func() {
			defer sem.Release(1)
			res, err := c.Classify(ctx, req)
			items[i] = BatchItem{Result: res, Err: err}
		}()
	}

	// Draining the full window waits for every in-flight request.
	if err := sem.Acquire(context.Background(), c.batchWindow); err == nil {
		sem.Release(c.batchWindow)
	}
	return items
}

// Result returns a persisted run by orchestration ID.
func (c *Classifier) Result(ctx context.Context, orchestrationID string) (*classification.OrchestrationResult, error) {
	if c.sink == nil {
		return nil, domain.ErrNotFound
	}
	return c.sink.Get(ctx, orchestrationID)
}

func (c *Classifier) cachedResult(ctx context.Context, key string) *classification.OrchestrationResult {
	if c.cache == nil {
		return nil
	}
	data, found, err := c.cache.Get(ctx, key)
	if err != nil || !found {
		return nil
	}
	var res classification.OrchestrationResult
	if err := json.Unmarshal(data, &res); err != nil {
		slog.Warn("decision cache entry unreadable", "error", err)
		return nil
	}
	return &res
}

func (c *Classifier) storeCached(ctx context.Context, key string, res *classification.OrchestrationResult) {
	if c.cache == nil {
		return
	}
	data, err := json.Marshal(res)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, key, data, c.cacheTTL); err != nil {
		slog.Warn("decision cache store failed", "error", err)
	}
}

// audit persists the run best-effort. Store failures trip the breaker and
// are logged; they never fail the classification.
func (c *Classifier) audit(ctx context.Context, rec auditsink.Record) {
	if c.sink == nil {
		return
	}
	save := func() error { return c.sink.Save(ctx, rec) }
	var err error
	if c.breaker != nil {
		err = c.breaker.Execute(save)
	} else {
		err = save()
	}
	if err != nil {
		slog.Error("audit persistence failed",
			"orchestration_id", rec.Result.OrchestrationID,
			"error", err,
		)
	}
}

// publish emits the decision event best-effort.
func (c *Classifier) publish(ctx context.Context, req *fund.ClassificationRequest, res *classification.OrchestrationResult) {
	if c.queue == nil {
		return
	}

	subject := messagequeue.SubjectCompleted
	switch {
	case res.Status == classification.StatusError:
		subject = messagequeue.SubjectFailed
	case res.DecisionType == confidence.DecisionEscalation:
		subject = messagequeue.SubjectEscalated
	}

	event := messagequeue.DecisionEvent{
		OrchestrationID: res.OrchestrationID,
		EntityID:        req.Fund.EntityID,
		FundName:        req.Fund.Name,
		Classification:  string(res.Classification),
		DecisionType:    string(res.DecisionType),
		Confidence:      res.Confidence.Overall,
		WorkflowID:      res.WorkflowID,
		Status:          string(res.Status),
		Error:           res.Error,
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err := c.queue.Publish(ctx, subject, data); err != nil {
		slog.Error("decision event publish failed",
			"orchestration_id", res.OrchestrationID,
			"subject", subject,
			"error", err,
		)
	}
}
