package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hookline/hookline/internal/delivery"
	"github.com/hookline/hookline/internal/logging"
	"github.com/hookline/hookline/internal/metrics"
	"github.com/hookline/hookline/internal/store"
)

const reclaimBatchSize = 100

// ReclaimStore lists attempts stuck in a non-terminal state past the grace
// period.
type ReclaimStore interface {
	StaleAttempts(ctx context.Context, grace time.Duration, limit int) ([]store.StaleAttempt, error)
}

// Reclaimer periodically republishes stale attempts: processing rows orphaned
// by a crashed worker and pending rows whose enqueue never completed. The
// status a republished job finds in the log is indeterminate, which is fine;
// workers are idempotent and terminal rows absorb the extra delivery.
type Reclaimer struct {
	st       ReclaimStore
	prod     Publisher
	topic    string
	grace    time.Duration
	interval time.Duration
	logger   *logging.Logger
}

func NewReclaimer(st ReclaimStore, prod Publisher, topic string, grace time.Duration) *Reclaimer {
	return &Reclaimer{
		st:       st,
		prod:     prod,
		topic:    topic,
		grace:    grace,
		interval: grace / 2,
		logger:   logging.New("hookline-reclaimer"),
	}
}

// Run sweeps until the context is cancelled.
func (r *Reclaimer) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := r.Sweep(ctx)
			if err != nil {
				r.logger.WithContext(ctx).WithError(err).Error("reclaim sweep failed")
				continue
			}
			if n > 0 {
				r.logger.WithContext(ctx).WithField("count", n).Info("requeued stale attempts")
			}
		}
	}
}

// Sweep republishes one batch of stale attempts and returns how many.
func (r *Reclaimer) Sweep(ctx context.Context) (int, error) {
	stale, err := r.st.StaleAttempts(ctx, r.grace, reclaimBatchSize)
	if err != nil {
		return 0, err
	}
	requeued := 0
	for _, a := range stale {
		task := delivery.Task{
			EventID:       a.EventID,
			DestinationID: a.DestinationID,
			AccountID:     a.AccountID,
			URL:           a.URL,
			Method:        a.Method,
			Headers:       a.Headers,
			Payload:       a.Payload,
			Attempt:       a.Attempts,
			PublishedAt:   time.Now().UTC().Format(time.RFC3339),
		}
		b, _ := json.Marshal(task)
		if err := r.prod.Publish(r.topic, b); err != nil {
			r.logger.WithContext(ctx).WithEvent(a.EventID).WithDestination(a.DestinationID).WithError(err).Error("reclaim publish failed")
			continue
		}
		metrics.RecordReclaimed()
		requeued++
	}
	return requeued, nil
}
