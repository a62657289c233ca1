package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sustainfi/sfdr-engine/internal/domain/classification"
	"github.com/sustainfi/sfdr-engine/internal/domain/fund"
	"github.com/sustainfi/sfdr-engine/internal/domain/rules"
	"github.com/sustainfi/sfdr-engine/internal/service"
)

// Body limits. Batch requests carry full document text for many funds.
const (
	classifyBodyLimit = 1 << 20  // 1 MiB
	batchBodyLimit    = 16 << 20 // 16 MiB
	maxBatchSize      = 100
)

// Handlers bundles the HTTP handlers around the classification facade.
type Handlers struct {
	classifier *service.Classifier
}

// NewHandlers creates the handler set.
func NewHandlers(classifier *service.Classifier) *Handlers {
	return &Handlers{classifier: classifier}
}

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Get("/health", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Post("/classify", h.Classify)
		r.Post("/classify/batch", h.ClassifyBatch)
		r.Post("/validate", h.Validate)
		r.Get("/results/{id}", h.GetResult)
	})
}

// validationRejection is the response body for requests rejected by the
// eligibility rules. The full rule result lets the caller fix every issue in
// one pass.
type validationRejection struct {
	Error      string       `json:"error"`
	Validation rules.Result `json:"validation"`
}

// Classify runs one classification request end to end.
func (h *Handlers) Classify(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[fund.ClassificationRequest](w, r, classifyBodyLimit)
	if !ok {
		return
	}

	res, err := h.classifier.Classify(r.Context(), &req)
	if err != nil {
		var verr *service.ValidationError
		if errors.As(err, &verr) {
			writeJSON(w, http.StatusUnprocessableEntity, validationRejection{
				Error:      verr.Error(),
				Validation: verr.Result,
			})
			return
		}
		writeDomainError(w, err, "classification failed")
		return
	}

	writeJSON(w, http.StatusOK, res)
}

type batchRequest struct {
	Requests []*fund.ClassificationRequest `json:"requests"`
}

type batchItem struct {
	Result     *classification.OrchestrationResult `json:"result,omitempty"`
	Error      string                              `json:"error,omitempty"`
	Validation *rules.Result                       `json:"validation,omitempty"`
}

type batchResponse struct {
	Items []batchItem `json:"items"`
}

// ClassifyBatch runs up to maxBatchSize requests with a bounded concurrency
// window. Items come back in request order; one rejected request never fails
// the batch.
func (h *Handlers) ClassifyBatch(w http.ResponseWriter, r *http.Request) {
	body, ok := readJSON[batchRequest](w, r, batchBodyLimit)
	if !ok {
		return
	}
	if len(body.Requests) == 0 {
		writeError(w, http.StatusBadRequest, "requests must not be empty")
		return
	}
	if len(body.Requests) > maxBatchSize {
		writeError(w, http.StatusBadRequest, "batch exceeds maximum size")
		return
	}

	results := h.classifier.ClassifyBatch(r.Context(), body.Requests)

	resp := batchResponse{Items: make([]batchItem, len(results))}
	for i, item := range results {
		switch {
		case item.Err == nil:
			resp.Items[i] = batchItem{Result: item.Result}
		default:
			bi := batchItem{Error: item.Err.Error()}
			var verr *service.ValidationError
			if errors.As(item.Err, &verr) {
				bi.Validation = &verr.Result
			}
			resp.Items[i] = bi
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// Validate runs the eligibility rules without orchestrating a workflow.
func (h *Handlers) Validate(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[fund.ClassificationRequest](w, r, classifyBodyLimit)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.classifier.Validate(&req))
}

// GetResult returns a persisted run by orchestration ID.
func (h *Handlers) GetResult(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}

	res, err := h.classifier.Result(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "result not found")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Health reports process liveness.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}
