package messagequeue

// DecisionEvent is the schema for classifications.* messages.
type DecisionEvent struct {
	OrchestrationID string  `json:"orchestration_id"`
	EntityID        string  `json:"entity_id"`
	FundName        string  `json:"fund_name"`
	Classification  string  `json:"classification,omitempty"`
	DecisionType    string  `json:"decision_type,omitempty"`
	Confidence      float64 `json:"confidence"`
	WorkflowID      string  `json:"workflow_id,omitempty"`
	Status          string  `json:"status"`
	Error           string  `json:"error,omitempty"`
}
