package domain

import "context"

// BatchRecord is the persisted representation of one generated batch.
type BatchRecord struct {
	ID         string      `json:"id"`
	ExternalID string      `json:"external_id"`
	Region     string      `json:"region"`
	StartDay   int         `json:"start_day"`
	Outcome    PlanOutcome `json:"outcome"`
}

// AssignmentRecord persists one batch-stage resource assignment.
type AssignmentRecord struct {
	ID         string        `json:"id"`
	ExternalID string        `json:"external_id"`
	BatchID    string        `json:"batch_id"`
	Entry      ScheduleEntry `json:"entry"`
	// ActualEndDay differs from Entry.EndDay when a transfer trigger ended
	// the stage early.
	ActualEndDay int `json:"actual_end_day"`
}

// Transaction exposes the create operations that a persistence implementation
// must support within an atomic scope. Records in batchcore are append-only;
// a re-run supersedes prior output rather than mutating it.
type Transaction interface {
	Snapshot() TransactionView
	PutResourceGroup(ResourceGroup) (ResourceGroup, error)
	PutStageDefinition(StageDefinition) (StageDefinition, error)
	CreateBatch(BatchRecord) (BatchRecord, error)
	CreateAssignment(AssignmentRecord) (AssignmentRecord, error)
	CreateDailyState(DailyState) error
	AppendEvent(Event) error
	// BindExternalID maps a source identifier to a created record identifier.
	// Re-runs with the same idempotency key resolve the mapping instead of
	// creating duplicates.
	BindExternalID(externalID, recordID string) error
	LookupExternalID(externalID string) (string, bool)
}

// TransactionView provides read-only access to snapshot data for rules.
type TransactionView interface {
	RuleView
	FindBatch(id string) (BatchRecord, bool)
	FindResourceGroup(id string) (ResourceGroup, bool)
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	ListBatches() []BatchRecord
	ListAssignments() []AssignmentRecord
	ListDailyStates(batchID string) []DailyState
	ListEvents(batchID string) []Event
	LookupExternalID(externalID string) (string, bool)
}
