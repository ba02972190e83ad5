package executor

import (
	"context"
	"time"

	"github.com/jmehdipour/actionflow/internal/model"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisGuard remembers actions whose side effect already succeeded.
type RedisGuard struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
}

func NewRedisGuard(rdb *redis.Client, ttl time.Duration) *RedisGuard {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisGuard{rdb: rdb, ttl: ttl, prefix: "actionflow:done:"}
}

func (g *RedisGuard) Done(ctx context.Context, actionID string) (bool, error) {
	n, err := g.rdb.Exists(ctx, g.prefix+actionID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (g *RedisGuard) MarkDone(ctx context.Context, actionID string) error {
	return g.rdb.SetNX(ctx, g.prefix+actionID, time.Now().UTC().Format(time.RFC3339Nano), g.ttl).Err()
}

type deduped struct {
	guard *RedisGuard
	next  Executor
	log   *zap.Logger
}

// Deduped skips next when the guard says the action already succeeded, and
// marks the action after a successful run. Redis errors never block
// execution. A nil guard returns next unchanged.
func Deduped(guard *RedisGuard, next Executor, log *zap.Logger) Executor {
	if guard == nil {
		return next
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &deduped{guard: guard, next: next, log: log}
}

func (d *deduped) Execute(ctx context.Context, a model.Action) (Result, error) {
	done, err := d.guard.Done(ctx, a.ID)
	if err != nil {
		d.log.Warn("dedupe check failed", zap.String("action_id", a.ID), zap.Error(err))
	}
	if done {
		return Result{OK: true, Result: "already delivered"}, nil
	}

	res, err := d.next.Execute(ctx, a)
	if err == nil && res.OK {
		if merr := d.guard.MarkDone(ctx, a.ID); merr != nil {
			d.log.Warn("dedupe mark failed", zap.String("action_id", a.ID), zap.Error(merr))
		}
	}
	return res, err
}
