// Package syncer applies one canonical order transition against the
// storefront: acquire the per-order lock, resolve or create the sink order,
// apply the status change idempotently, and record the mapping.
package syncer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/syncline/ordersync/internal/events"
	"github.com/syncline/ordersync/internal/locks"
	"github.com/syncline/ordersync/internal/mapping"
	"github.com/syncline/ordersync/internal/sink"
	"github.com/syncline/ordersync/internal/source"
)

// MappingStore is the durable source-id to sink-id association the syncer
// consults before any create call.
type MappingStore interface {
	Get(ctx context.Context, sourceOrderID string) (*mapping.Record, error)
	Put(ctx context.Context, sourceOrderID, sinkOrderID string, state events.SyncState) error
}

// Options configures a Syncer.
type Options struct {
	LockTimeout  time.Duration
	ParseOptions source.ParseOptions
}

// Syncer is the orchestrator. One instance is shared by all callers; the
// lock table and the sink client's pacing state live on it, never in globals.
type Syncer struct {
	mappings    MappingStore
	api         sink.API
	locks       *locks.Table
	lockTimeout time.Duration
	parseOpts   source.ParseOptions
	logger      *zap.Logger
}

// New builds a Syncer.
func New(mappings MappingStore, api sink.API, lockTable *locks.Table, opts Options, logger *zap.Logger) *Syncer {
	timeout := opts.LockTimeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &Syncer{
		mappings:    mappings,
		api:         api,
		locks:       lockTable,
		lockTimeout: timeout,
		parseOpts:   opts.ParseOptions,
		logger:      logger,
	}
}

// ExternalRef is the idempotency tag embedded in every created sink order.
func ExternalRef(sourceOrderID string) string {
	return "src:" + sourceOrderID
}

// Synchronize applies the classified transition for the given payload
// snapshot. It performs exactly one create-or-update against the sink per
// invocation and releases the order lock on every exit path.
func (s *Syncer) Synchronize(ctx context.Context, payload []byte, cls events.Classification) error {
	order, err := source.Parse(payload, s.parseOpts)
	if err != nil {
		return fmt.Errorf("parse payload: %w", err)
	}

	if err := s.locks.Acquire(ctx, order.ID, s.lockTimeout); err != nil {
		return fmt.Errorf("acquire order lock %s: %w", order.ID, err)
	}
	defer s.locks.Release(order.ID)

	log := s.logger.With(
		zap.String("source_order_id", order.ID),
		zap.String("sync_state", string(cls.Sync)),
		zap.String("financial_state", string(cls.Financial)),
	)

	sinkID, lastState, err := s.resolve(ctx, order.ID)
	if err != nil {
		return err
	}

	if sinkID == "" {
		// Nothing to cancel or refund if the order was never mirrored.
		if cls.Sync == events.SyncCancelled || cls.Sync == events.SyncRefunded {
			log.Info("skipping transition for order never created on sink")
			return nil
		}

		created, err := s.api.CreateOrder(ctx, buildCreateRequest(order, cls))
		if err == nil {
			if err := s.mappings.Put(ctx, order.ID, created.ID, cls.Sync); err != nil {
				return fmt.Errorf("record mapping: %w", err)
			}
			log.Info("created sink order", zap.String("sink_order_id", created.ID))
			return nil
		}
		if !sink.IsDuplicateIdentity(err) {
			return fmt.Errorf("create sink order: %w", err)
		}

		// Duplicate-detection race under at-least-once delivery: the order
		// exists even though the mapping has not learned it. Re-resolve and
		// fall through to the update path.
		log.Warn("duplicate identity on create, re-resolving", zap.Error(err))
		found, ferr := s.api.FindByExternalRef(ctx, ExternalRef(order.ID))
		if ferr != nil {
			return fmt.Errorf("re-resolve after duplicate identity: %w", ferr)
		}
		if found == nil {
			return fmt.Errorf("create sink order: %w", err)
		}
		sinkID = found.ID
		lastState = ""
	}

	if lastState != "" && events.IsRegression(lastState, cls.Sync) {
		log.Info("skipping state regression",
			zap.String("sink_order_id", sinkID),
			zap.String("current_state", string(lastState)),
		)
		return nil
	}

	if err := s.applyTransition(ctx, sinkID, cls); err != nil {
		return fmt.Errorf("apply transition: %w", err)
	}
	if err := s.mappings.Put(ctx, order.ID, sinkID, cls.Sync); err != nil {
		return fmt.Errorf("record mapping: %w", err)
	}
	log.Info("updated sink order", zap.String("sink_order_id", sinkID))
	return nil
}

// resolve finds the sink order for a source id: mapping store first, bounded
// remote search by idempotency tag only when the mapping is silent. The
// remote search is the slow path taken once per order at most.
func (s *Syncer) resolve(ctx context.Context, sourceOrderID string) (sinkID string, lastState events.SyncState, err error) {
	rec, err := s.mappings.Get(ctx, sourceOrderID)
	if err != nil {
		return "", "", fmt.Errorf("mapping lookup: %w", err)
	}
	if rec != nil && rec.SinkOrderID != "" {
		return rec.SinkOrderID, rec.LastSyncState, nil
	}

	found, err := s.api.FindByExternalRef(ctx, ExternalRef(sourceOrderID))
	if err != nil {
		return "", "", fmt.Errorf("remote search: %w", err)
	}
	if found == nil {
		return "", "", nil
	}
	return found.ID, "", nil
}

func (s *Syncer) applyTransition(ctx context.Context, sinkID string, cls events.Classification) error {
	switch cls.Financial {
	case events.FinancialCancelled:
		return s.api.CancelOrder(ctx, sinkID)
	case events.FinancialRefunded:
		return s.api.RefundOrder(ctx, sinkID)
	default:
		_, err := s.api.UpdateFinancialStatus(ctx, sinkID, string(cls.Financial))
		return err
	}
}

func buildCreateRequest(order *source.Order, cls events.Classification) *sink.OrderRequest {
	items := make([]sink.ItemRequest, 0, len(order.Items))
	for _, it := range order.Items {
		items = append(items, sink.ItemRequest{
			SKU:      it.SKU,
			Name:     it.Name,
			Quantity: it.Quantity,
			Price:    it.Price,
		})
	}

	return &sink.OrderRequest{
		ExternalRef:     ExternalRef(order.ID),
		FinancialStatus: string(cls.Financial),
		Total:           order.Total,
		PaymentMethod:   order.PaymentMethod,
		Note:            "Imported from source order " + order.ID,
		Customer: sink.CustomerRequest{
			Name:     order.Customer.Name,
			Email:    order.Customer.Email,
			Document: order.Customer.Document,
			Phone:    order.Customer.Phone,
		},
		Address: sink.AddressRequest{
			Street:  order.Address.Street,
			Number:  order.Address.Number,
			City:    order.Address.City,
			State:   order.Address.State,
			ZipCode: order.Address.ZipCode,
			Country: order.Address.Country,
		},
		Items: items,
	}
}
