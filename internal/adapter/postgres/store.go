package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sustainfi/sfdr-engine/internal/domain"
	"github.com/sustainfi/sfdr-engine/internal/domain/classification"
	"github.com/sustainfi/sfdr-engine/internal/domain/confidence"
	"github.com/sustainfi/sfdr-engine/internal/port/auditsink"
)

// Store implements auditsink.Sink using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Save persists the orchestration result and its decision path in one
// transaction.
func (s *Store) Save(ctx context.Context, rec auditsink.Record) error {
	res := rec.Result

	reqJSON, err := json.Marshal(rec.Request)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	valJSON, err := json.Marshal(rec.Validation)
	if err != nil {
		return fmt.Errorf("marshal validation: %w", err)
	}
	factorsJSON, err := json.Marshal(res.Confidence)
	if err != nil {
		return fmt.Errorf("marshal confidence: %w", err)
	}
	contribJSON, err := json.Marshal(res.AgentContributions)
	if err != nil {
		return fmt.Errorf("marshal contributions: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`INSERT INTO orchestration_results
		 (orchestration_id, entity_id, fund_name, classification, decision_type, confidence,
		  confidence_factors, contributions, workflow_id, status, error, request, validation,
		  started_at, completed_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		res.OrchestrationID, rec.Request.Fund.EntityID, rec.Request.Fund.Name,
		nullIfEmpty(string(res.Classification)), nullIfEmpty(string(res.DecisionType)),
		res.Confidence.Overall, factorsJSON, contribJSON,
		nullIfEmpty(res.WorkflowID), string(res.Status), nullIfEmpty(res.Error),
		reqJSON, valJSON, res.StartTime, res.EndTime)
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}

	for _, step := range res.DecisionPath.Steps {
		_, err = tx.Exec(ctx,
			`INSERT INTO decision_path_steps
			 (orchestration_id, sequence, step_id, agent_id, input, output, confidence,
			  importance, description, step_at, duration_ms)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
			res.OrchestrationID, step.Sequence, step.StepID, step.AgentID,
			step.Input, step.Output, step.Confidence, string(step.Importance),
			step.Description, step.Timestamp, step.Duration.Milliseconds())
		if err != nil {
			return fmt.Errorf("insert path step %d: %w", step.Sequence, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Get returns the stored result for an orchestration ID, including its
// decision path.
func (s *Store) Get(ctx context.Context, orchestrationID string) (*classification.OrchestrationResult, error) {
	var (
		res         classification.OrchestrationResult
		cls, dt     *string
		wf, errMsg  *string
		status      string
		factorsJSON []byte
		contribJSON []byte
	)

	row := s.pool.QueryRow(ctx,
		`SELECT orchestration_id, classification, decision_type, confidence_factors,
		        contributions, workflow_id, status, error, started_at, completed_at
		 FROM orchestration_results WHERE orchestration_id = $1`, orchestrationID)
	err := row.Scan(&res.OrchestrationID, &cls, &dt, &factorsJSON, &contribJSON,
		&wf, &status, &errMsg, &res.StartTime, &res.EndTime)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get result: %w", err)
	}

	res.Status = classification.Status(status)
	if cls != nil {
		res.Classification = classification.Article(*cls)
	}
	if dt != nil {
		res.DecisionType = confidence.DecisionType(*dt)
	}
	if wf != nil {
		res.WorkflowID = *wf
	}
	if errMsg != nil {
		res.Error = *errMsg
	}
	if err := json.Unmarshal(factorsJSON, &res.Confidence); err != nil {
		return nil, fmt.Errorf("unmarshal confidence: %w", err)
	}
	if err := json.Unmarshal(contribJSON, &res.AgentContributions); err != nil {
		return nil, fmt.Errorf("unmarshal contributions: %w", err)
	}

	steps, err := s.loadSteps(ctx, orchestrationID)
	if err != nil {
		return nil, err
	}
	res.DecisionPath = classification.DecisionPath{Steps: steps, FinalDecision: res.Classification}

	return &res, nil
}

func (s *Store) loadSteps(ctx context.Context, orchestrationID string) ([]classification.PathStep, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT sequence, step_id, agent_id, input, output, confidence, importance,
		        description, step_at, duration_ms
		 FROM decision_path_steps WHERE orchestration_id = $1 ORDER BY sequence`, orchestrationID)
	if err != nil {
		return nil, fmt.Errorf("list path steps: %w", err)
	}
	defer rows.Close()

	var steps []classification.PathStep
	for rows.Next() {
		var (
			step       classification.PathStep
			importance string
			durationMS int64
		)
		if err := rows.Scan(&step.Sequence, &step.StepID, &step.AgentID, &step.Input,
			&step.Output, &step.Confidence, &importance, &step.Description,
			&step.Timestamp, &durationMS); err != nil {
			return nil, fmt.Errorf("scan path step: %w", err)
		}
		step.Importance = classification.Importance(importance)
		step.Duration = time.Duration(durationMS) * time.Millisecond
		steps = append(steps, step)
	}
	return steps, rows.Err()
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
