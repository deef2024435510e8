package mapping

import (
	"time"

	"github.com/syncline/ordersync/internal/events"
)

// Record is the durable association between a source order and its mirrored
// sink order. At most one sink id exists per source id; the record is never
// deleted.
type Record struct {
	SourceOrderID string           `dynamodbav:"source_order_id"` // PK
	SinkOrderID   string           `dynamodbav:"sink_order_id,omitempty"`
	LastSyncState events.SyncState `dynamodbav:"last_sync_state,omitempty"`
	UpdatedAt     time.Time        `dynamodbav:"updated_at"`
}
