package syncer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/syncline/ordersync/internal/events"
	"github.com/syncline/ordersync/internal/mapping"
	"github.com/syncline/ordersync/internal/sink"
)

// fakeMappings is an in-memory MappingStore.
type fakeMappings struct {
	mu   sync.Mutex
	rows map[string]mapping.Record
}

func newFakeMappings() *fakeMappings {
	return &fakeMappings{rows: map[string]mapping.Record{}}
}

func (f *fakeMappings) Get(ctx context.Context, sourceOrderID string) (*mapping.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.rows[sourceOrderID]
	if !ok {
		return nil, nil
	}
	cp := rec
	return &cp, nil
}

func (f *fakeMappings) Put(ctx context.Context, sourceOrderID, sinkOrderID string, state events.SyncState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[sourceOrderID] = mapping.Record{
		SourceOrderID: sourceOrderID,
		SinkOrderID:   sinkOrderID,
		LastSyncState: state,
		UpdatedAt:     time.Now(),
	}
	return nil
}

// fakeSink is an in-memory sink.API recording every mutation.
type fakeSink struct {
	mu     sync.Mutex
	orders map[string]*sink.Order // by sink id
	byRef  map[string]string      // external ref -> sink id
	nextID int

	creates, updates, cancels, refunds int

	createErr   error // returned once by the next CreateOrder, then cleared
	createDelay time.Duration
	findMisses  int // number of FindByExternalRef calls that miss before hits resume
}

func newFakeSink() *fakeSink {
	return &fakeSink{
		orders: map[string]*sink.Order{},
		byRef:  map[string]string{},
	}
}

func (f *fakeSink) CreateOrder(ctx context.Context, req *sink.OrderRequest) (*sink.Order, error) {
	if f.createDelay > 0 {
		time.Sleep(f.createDelay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.createErr != nil {
		err := f.createErr
		f.createErr = nil
		return nil, err
	}
	f.nextID++
	id := fmt.Sprintf("sink-%d", f.nextID)
	o := &sink.Order{ID: id, ExternalRef: req.ExternalRef, FinancialStatus: req.FinancialStatus}
	f.orders[id] = o
	f.byRef[req.ExternalRef] = id
	return o, nil
}

func (f *fakeSink) UpdateFinancialStatus(ctx context.Context, orderID, status string) (*sink.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates++
	o, ok := f.orders[orderID]
	if !ok {
		return nil, &sink.APIError{StatusCode: 404, Code: "not_found", Message: "order not found"}
	}
	o.FinancialStatus = status
	return o, nil
}

func (f *fakeSink) CancelOrder(ctx context.Context, orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels++
	o, ok := f.orders[orderID]
	if !ok {
		return &sink.APIError{StatusCode: 404, Code: "not_found", Message: "order not found"}
	}
	o.FinancialStatus = "cancelled"
	return nil
}

func (f *fakeSink) RefundOrder(ctx context.Context, orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refunds++
	o, ok := f.orders[orderID]
	if !ok {
		return &sink.APIError{StatusCode: 404, Code: "not_found", Message: "order not found"}
	}
	o.FinancialStatus = "refunded"
	return nil
}

func (f *fakeSink) FindByExternalRef(ctx context.Context, externalRef string) (*sink.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findMisses > 0 {
		f.findMisses--
		return nil, nil
	}
	id, ok := f.byRef[externalRef]
	if !ok {
		return nil, nil
	}
	cp := *f.orders[id]
	return &cp, nil
}
