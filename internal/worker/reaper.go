package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmehdipour/actionflow/internal/metrics"
	"github.com/jmehdipour/actionflow/internal/model"
	"github.com/jmehdipour/actionflow/internal/repository"
	"go.uber.org/zap"
)

// LeaseExpired is the receipt error written for a reaped claim.
const LeaseExpired = "lease expired"

type ReapStore interface {
	ListStale(ctx context.Context, claimedBefore time.Time, limit int) ([]model.Action, error)
	Settle(ctx context.Context, s model.Settlement) (model.Action, error)
}

// Reaper returns claims held longer than Lease to the retry path, counting
// the lost execution as a failed attempt.
type Reaper struct {
	store       ReapStore
	lease       time.Duration
	interval    time.Duration
	maxAttempts int
	log         *zap.Logger
	now         func() time.Time
}

func NewReaper(store ReapStore, lease, interval time.Duration, maxAttempts int, log *zap.Logger) *Reaper {
	if interval <= 0 {
		interval = time.Minute
	}
	if maxAttempts <= 0 {
		maxAttempts = model.DefaultMaxAttempts
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Reaper{store: store, lease: lease, interval: interval, maxAttempts: maxAttempts, log: log, now: time.Now}
}

func (r *Reaper) Enabled() bool { return r.lease > 0 }

// RunOnce settles every stale claim and returns how many it reaped.
func (r *Reaper) RunOnce(ctx context.Context) (int, error) {
	if !r.Enabled() {
		return 0, nil
	}
	now := r.now()
	stale, err := r.store.ListStale(ctx, now.Add(-r.lease), 100)
	if err != nil {
		return 0, fmt.Errorf("list stale: %w", err)
	}

	reaped := 0
	for _, a := range stale {
		_, err := r.store.Settle(ctx, model.Settlement{
			ActionID:    a.ID,
			MaxAttempts: r.maxAttempts,
			At:          now,
			ClaimedAt:   a.ClaimedAt,
			Receipt: model.Receipt{
				ConversationID:  a.ConversationID,
				SourceID:        a.ID,
				Channel:         a.Channel,
				ActionType:      a.Type,
				Status:          model.ReceiptFailed,
				PayloadSnapshot: a.Payload,
				Error:           LeaseExpired,
			},
		})
		if errors.Is(err, repository.ErrNotProcessing) {
			// settled by its worker in the meantime
			continue
		}
		if err != nil {
			r.log.Error("reap failed", zap.String("action_id", a.ID), zap.Error(err))
			continue
		}
		metrics.ActionsTotal.WithLabelValues(metrics.StageReaped, a.Type.String()).Inc()
		r.log.Warn("reaped stale claim",
			zap.String("action_id", a.ID),
			zap.String("action_type", a.Type.String()),
			zap.Timep("claimed_at", a.ClaimedAt),
		)
		reaped++
	}
	return reaped, nil
}

func (r *Reaper) Run(ctx context.Context) error {
	if !r.Enabled() {
		<-ctx.Done()
		return nil
	}
	tick := time.NewTicker(r.interval)
	defer tick.Stop()

	for {
		if _, err := r.RunOnce(ctx); err != nil {
			r.log.Error("reaper poll failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
		}
	}
}
