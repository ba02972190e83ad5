package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmehdipour/actionflow/internal/executor"
	"github.com/jmehdipour/actionflow/internal/metrics"
	"github.com/jmehdipour/actionflow/internal/model"
	"github.com/jmehdipour/actionflow/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Store is the slice of the outbox the worker needs. Both the SQL
// repository and the memory store satisfy it.
type Store interface {
	FetchPending(ctx context.Context, q model.PendingQuery) ([]model.Action, error)
	Claim(ctx context.Context, id string, at time.Time) (*model.Action, error)
	Settle(ctx context.Context, s model.Settlement) (model.Action, error)
}

type Resolver interface {
	Resolve(t model.ActionType) executor.Executor
}

type Config struct {
	BatchSize       int
	MaxAttempts     int
	Concurrency     int
	PollInterval    time.Duration
	ExecutorTimeout time.Duration
	ActionTypes     []model.ActionType // empty: every type
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 10
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = model.DefaultMaxAttempts
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.ExecutorTimeout <= 0 {
		c.ExecutorTimeout = 30 * time.Second
	}
	return c
}

// Worker drains the action outbox. It keeps no state between polls, so any
// number of workers may share one store.
type Worker struct {
	store Store
	execs Resolver
	cfg   Config
	log   *zap.Logger
	now   func() time.Time
}

func New(store Store, execs Resolver, cfg Config, log *zap.Logger) *Worker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Worker{
		store: store,
		execs: execs,
		cfg:   cfg.withDefaults(),
		log:   log,
		now:   time.Now,
	}
}

// BatchResult summarizes one poll.
type BatchResult struct {
	Fetched  int
	Claimed  int
	Lost     int
	Executed int
	Retried  int
	Failed   int
	Errors   int // settle errors; the action stays processing
}

type tally struct {
	mu sync.Mutex
	BatchResult
}

func (t *tally) add(fn func(*BatchResult)) {
	t.mu.Lock()
	fn(&t.BatchResult)
	t.mu.Unlock()
}

// RunOnce fetches one batch, claims each action and executes the winners
// with bounded concurrency. Per-action failures never fail the batch.
func (w *Worker) RunOnce(ctx context.Context) (BatchResult, error) {
	start := time.Now()
	defer func() { metrics.BatchDuration.Observe(time.Since(start).Seconds()) }()

	batch, err := w.store.FetchPending(ctx, model.PendingQuery{
		Types:       w.cfg.ActionTypes,
		MaxAttempts: w.cfg.MaxAttempts,
		Limit:       w.cfg.BatchSize,
	})
	if err != nil {
		return BatchResult{}, fmt.Errorf("fetch pending: %w", err)
	}

	res := &tally{}
	res.Fetched = len(batch)

	g := errgroup.Group{}
	g.SetLimit(w.cfg.Concurrency)

	for _, a := range batch {
		if ctx.Err() != nil {
			break
		}

		claimed, err := w.store.Claim(ctx, a.ID, w.now())
		if err != nil {
			w.log.Error("claim failed", zap.String("action_id", a.ID), zap.Error(err))
			res.add(func(r *BatchResult) { r.Errors++ })
			continue
		}
		if claimed == nil {
			metrics.ActionsTotal.WithLabelValues(metrics.StageLost, a.Type.String()).Inc()
			res.add(func(r *BatchResult) { r.Lost++ })
			continue
		}
		metrics.ActionsTotal.WithLabelValues(metrics.StageClaimed, a.Type.String()).Inc()
		res.add(func(r *BatchResult) { r.Claimed++ })

		act := *claimed
		g.Go(func() error {
			w.process(ctx, act, res)
			return nil
		})
	}
	_ = g.Wait()

	return res.BatchResult, nil
}

func (w *Worker) process(ctx context.Context, a model.Action, res *tally) {
	out := w.execute(ctx, a)

	status := model.ReceiptExecuted
	if !out.OK {
		status = model.ReceiptFailed
	}
	now := w.now()

	// settle even when ctx was cancelled mid-execution, otherwise the claim
	// is left in processing
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	settled, err := w.store.Settle(sctx, model.Settlement{
		ActionID:    a.ID,
		Success:     out.OK,
		MaxAttempts: w.cfg.MaxAttempts,
		At:          now,
		ClaimedAt:   a.ClaimedAt,
		Receipt: model.Receipt{
			ConversationID:    a.ConversationID,
			SourceID:          a.ID,
			Channel:           a.Channel,
			ActionType:        a.Type,
			Status:            status,
			Provider:          out.Provider,
			ProviderReceiptID: out.ProviderReceiptID,
			PayloadSnapshot:   a.Payload,
			Result:            out.Result,
			Error:             out.Error,
			CreatedAt:         now,
		},
	})
	if err != nil {
		lvl := zap.ErrorLevel
		if errors.Is(err, repository.ErrNotProcessing) {
			lvl = zap.WarnLevel
		}
		w.log.Log(lvl, "settle failed",
			zap.String("action_id", a.ID),
			zap.String("action_type", a.Type.String()),
			zap.Error(err),
		)
		res.add(func(r *BatchResult) { r.Errors++ })
		return
	}

	fields := []zap.Field{
		zap.String("action_id", a.ID),
		zap.String("action_type", a.Type.String()),
		zap.Int("attempts", settled.Attempts),
	}
	switch settled.Status {
	case model.ActionExecuted:
		metrics.ActionsTotal.WithLabelValues(metrics.StageExecuted, a.Type.String()).Inc()
		res.add(func(r *BatchResult) { r.Executed++ })
		w.log.Debug("action executed", append(fields, zap.String("result", out.Result))...)
	case model.ActionFailed:
		metrics.ActionsTotal.WithLabelValues(metrics.StageFailed, a.Type.String()).Inc()
		res.add(func(r *BatchResult) { r.Failed++ })
		w.log.Warn("action failed permanently", append(fields, zap.String("error", out.Error))...)
	default:
		metrics.ActionsTotal.WithLabelValues(metrics.StageRetried, a.Type.String()).Inc()
		res.add(func(r *BatchResult) { r.Retried++ })
		w.log.Info("action attempt failed", append(fields, zap.String("error", out.Error))...)
	}
}

// execute runs the resolved executor under ExecutorTimeout. Errors, panics
// and timeouts all come back as OK=false.
func (w *Worker) execute(ctx context.Context, a model.Action) executor.Result {
	ctx, cancel := context.WithTimeout(ctx, w.cfg.ExecutorTimeout)
	defer cancel()

	done := make(chan executor.Result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- executor.Result{Error: fmt.Sprintf("executor panic: %v", r)}
			}
		}()
		res, err := w.execs.Resolve(a.Type).Execute(ctx, a)
		if err != nil {
			res.OK = false
			res.Error = err.Error()
		}
		if !res.OK && res.Error == "" {
			res.Error = "executor reported failure"
		}
		done <- res
	}()

	select {
	case res := <-done:
		return res
	case <-ctx.Done():
		return executor.Result{Error: fmt.Sprintf("executor: %v", ctx.Err())}
	}
}

// Run polls RunOnce every PollInterval until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	tick := time.NewTicker(w.cfg.PollInterval)
	defer tick.Stop()

	for {
		res, err := w.RunOnce(ctx)
		if err != nil {
			w.log.Error("poll failed", zap.Error(err))
		} else if res.Fetched > 0 {
			w.log.Info("batch done",
				zap.Int("fetched", res.Fetched),
				zap.Int("claimed", res.Claimed),
				zap.Int("lost", res.Lost),
				zap.Int("executed", res.Executed),
				zap.Int("retried", res.Retried),
				zap.Int("failed", res.Failed),
			)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
		}
	}
}
