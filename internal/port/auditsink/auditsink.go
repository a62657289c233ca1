// Package auditsink defines the port for durable storage of orchestration
// results and their decision paths. The engine treats the sink as
// best-effort: classification never blocks on persistence.
package auditsink

import (
	"context"

	"github.com/sustainfi/sfdr-engine/internal/domain/classification"
	"github.com/sustainfi/sfdr-engine/internal/domain/fund"
	"github.com/sustainfi/sfdr-engine/internal/domain/rules"
)

// Record pairs a terminal orchestration result with the request and
// validation findings that produced it.
type Record struct {
	Result     *classification.OrchestrationResult
	Request    *fund.ClassificationRequest
	Validation *rules.Result
}

// Sink is the port interface for the audit/governance store.
type Sink interface {
	// Save persists a completed classification record.
	Save(ctx context.Context, rec Record) error

	// Get returns the stored result for an orchestration ID.
	Get(ctx context.Context, orchestrationID string) (*classification.OrchestrationResult, error)
}
