// Package dispatcher drains the durable retry queue. Exactly one dispatcher
// runs per deployment, and it walks pending rows serially so the sink's
// pacing discipline is never contended.
package dispatcher

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/syncline/ordersync/internal/awsx"
	"github.com/syncline/ordersync/internal/events"
	"github.com/syncline/ordersync/internal/queue"
)

// QueueStore is the durable request queue the dispatcher drains.
type QueueStore interface {
	FetchPending(ctx context.Context, limit int) ([]queue.Row, error)
	MarkProcessed(ctx context.Context, id string) error
	RecordFailure(ctx context.Context, id, errMsg string) (exhausted bool, err error)
}

// Synchronizer applies one classified transition against the sink.
type Synchronizer interface {
	Synchronize(ctx context.Context, payload []byte, cls events.Classification) error
}

// MetricsEmitter publishes drain pass counters.
type MetricsEmitter interface {
	EmitDrainStats(ctx context.Context, stats awsx.DrainStats) error
}

// Options configures a Dispatcher.
type Options struct {
	Interval  time.Duration // time between drain passes
	RowDelay  time.Duration // pause between rows inside one pass
	BatchSize int           // max rows fetched per pass
}

// Dispatcher periodically fetches pending rows and hands each to the
// synchronizer, recording the per-row outcome back on the row itself.
type Dispatcher struct {
	store     QueueStore
	syncer    Synchronizer
	metrics   MetricsEmitter
	interval  time.Duration
	rowDelay  time.Duration
	batchSize int
	logger    *zap.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
	sleep    func(time.Duration)
}

// New builds a Dispatcher.
func New(store QueueStore, syncer Synchronizer, metrics MetricsEmitter, opts Options, logger *zap.Logger) *Dispatcher {
	interval := opts.Interval
	if interval == 0 {
		interval = 5 * time.Second
	}
	batch := opts.BatchSize
	if batch == 0 {
		batch = 25
	}
	return &Dispatcher{
		store:     store,
		syncer:    syncer,
		metrics:   metrics,
		interval:  interval,
		rowDelay:  opts.RowDelay,
		batchSize: batch,
		logger:    logger,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
		sleep:     time.Sleep,
	}
}

// Start runs the drain loop until Stop is called or ctx is cancelled.
// It blocks; run it in its own goroutine.
func (d *Dispatcher) Start(ctx context.Context) {
	defer close(d.doneCh)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.logger.Info("dispatcher started", zap.Duration("interval", d.interval))
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("dispatcher stopping", zap.Error(ctx.Err()))
			return
		case <-d.stopCh:
			d.logger.Info("dispatcher stopped")
			return
		case <-ticker.C:
			if _, err := d.DrainOnce(ctx); err != nil {
				d.logger.Error("drain pass failed", zap.Error(err))
			}
		}
	}
}

// Stop signals the loop to exit and waits for the in-flight pass to finish.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() { close(d.stopCh) })
	<-d.doneCh
}

// DrainOnce fetches one batch of pending rows and processes them serially,
// oldest first. A row failure never aborts the pass: the error lands on the
// row and the pass continues.
func (d *Dispatcher) DrainOnce(ctx context.Context) (awsx.DrainStats, error) {
	var stats awsx.DrainStats

	rows, err := d.store.FetchPending(ctx, d.batchSize)
	if err != nil {
		return stats, err
	}
	stats.Fetched = len(rows)
	if len(rows) == 0 {
		return stats, nil
	}

	for i, row := range rows {
		if ctx.Err() != nil {
			break
		}
		if i > 0 && d.rowDelay > 0 {
			d.sleep(d.rowDelay)
		}
		d.processRow(ctx, row, &stats)
	}

	if d.metrics != nil {
		if err := d.metrics.EmitDrainStats(ctx, stats); err != nil {
			d.logger.Warn("metric emission failed", zap.Error(err))
		}
	}
	return stats, nil
}

func (d *Dispatcher) processRow(ctx context.Context, row queue.Row, stats *awsx.DrainStats) {
	log := d.logger.With(
		zap.String("row_id", row.ID),
		zap.String("source_order_id", row.SourceOrderID),
		zap.String("event_type", row.EventType),
		zap.Int("attempts", row.Attempts),
	)

	cls := events.Classification{Sync: row.SyncState, Financial: row.FinancialState}
	syncErr := d.syncer.Synchronize(ctx, []byte(row.Payload), cls)
	if syncErr == nil {
		if err := d.store.MarkProcessed(ctx, row.ID); err != nil {
			log.Error("row processed but outcome not recorded", zap.Error(err))
			stats.Failed++
			return
		}
		log.Info("row processed")
		stats.Processed++
		return
	}

	stats.Failed++
	exhausted, recErr := d.store.RecordFailure(ctx, row.ID, syncErr.Error())
	if recErr != nil {
		log.Error("row failed and failure not recorded", zap.Error(recErr), zap.NamedError("sync_error", syncErr))
		return
	}
	if exhausted {
		stats.Exhausted++
		log.Error("row permanently failed", zap.Error(syncErr))
		return
	}
	log.Warn("row failed, will retry", zap.Error(syncErr))
}
