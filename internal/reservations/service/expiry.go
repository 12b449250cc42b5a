package service

import (
	"context"
	"slotkeeper/internal/reservations/events"
	"slotkeeper/internal/reservations/repository"
	"slotkeeper/pkg/logger"
	"slotkeeper/pkg/metrics"
	"slotkeeper/pkg/model"
	"sync"
	"sync/atomic"
	"time"
)

// Reaper periodically marks lapsed PENDING holds EXPIRED. It never deletes;
// expired rows stay as history.
type Reaper struct {
	ledger    repository.Ledger
	publisher events.Publisher
	interval  time.Duration
	batchSize int
	log       *logger.Logger

	started  atomic.Bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func NewReaper(ledger repository.Ledger, publisher events.Publisher, interval time.Duration, batchSize int, log *logger.Logger) *Reaper {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Reaper{
		ledger:    ledger,
		publisher: publisher,
		interval:  interval,
		batchSize: batchSize,
		log:       log.Component("reaper"),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start runs the sweep loop until ctx is cancelled or Stop is called.
func (r *Reaper) Start(ctx context.Context) {
	if !r.started.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer close(r.done)

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		r.log.Info("Reaper started", "interval", r.interval, "batch_size", r.batchSize)
		for {
			select {
			case <-ctx.Done():
				r.log.Info("Reaper stopped", "reason", ctx.Err())
				return
			case <-r.stop:
				r.log.Info("Reaper stopped")
				return
			case <-ticker.C:
				if _, err := r.Sweep(ctx); err != nil {
					r.log.Error("Reaper sweep failed", "error", err)
				}
			}
		}
	}()
}

// Stop ends the loop and waits for an in-flight sweep to finish.
func (r *Reaper) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
	if r.started.Load() {
		<-r.done
	}
}

// Sweep drains stale holds batch by batch and returns how many it expired.
func (r *Reaper) Sweep(ctx context.Context) (int, error) {
	total := 0
	for {
		reaped, err := r.ledger.ExpireStalePending(ctx, r.batchSize)
		total += len(reaped)
		if len(reaped) > 0 {
			metrics.AddExpired(len(reaped))
			for _, res := range reaped {
				r.publish(ctx, res)
			}
		}
		if err != nil {
			return total, err
		}
		if r.batchSize <= 0 || len(reaped) < r.batchSize || ctx.Err() != nil {
			break
		}
	}

	if total > 0 {
		r.log.Info("Expired stale holds", "count", total)
	}
	return total, nil
}

func (r *Reaper) publish(ctx context.Context, res *model.Reservation) {
	event := model.NewReservationEvent(model.EventReservationExpired, res, "")
	if err := r.publisher.Publish(ctx, event); err != nil {
		r.log.Warn("Failed to publish expiry event", "reservation_id", res.ID, "error", err)
	}
}
