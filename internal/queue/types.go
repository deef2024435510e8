package queue

import (
	"time"

	"github.com/syncline/ordersync/internal/events"
)

// Queue states for the sparse queue_state index. Successful rows have the
// attribute removed entirely; they stay in the table as the audit trail but
// drop out of the index.
const (
	StatePending = "PENDING"
	StateFailed  = "FAILED"
)

// Row is one durable synchronization request. A row is created once at
// ingestion and mutated only by the dispatcher: attempts increment in place
// and the outcome lands on the same record, so the audit trail and the retry
// state are the same row. Rows are never deleted.
type Row struct {
	ID             string                `dynamodbav:"id"` // PK
	SourceOrderID  string                `dynamodbav:"source_order_id"`
	EventType      string                `dynamodbav:"event_type"`
	SyncState      events.SyncState      `dynamodbav:"sync_state"`
	FinancialState events.FinancialState `dynamodbav:"financial_state"`
	// Payload is the immutable snapshot of the order payload at enqueue
	// time; later events never mutate it.
	Payload     string     `dynamodbav:"payload"`
	CreatedAt   time.Time  `dynamodbav:"created_at"`
	ProcessedAt *time.Time `dynamodbav:"processed_at,omitempty"`
	Attempts    int        `dynamodbav:"attempts"`
	LastError   string     `dynamodbav:"last_error,omitempty"`
	QueueState  string     `dynamodbav:"queue_state,omitempty"` // sparse GSI partition key
}
