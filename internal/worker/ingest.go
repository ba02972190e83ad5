package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jmehdipour/actionflow/internal/kafka"
	"github.com/jmehdipour/actionflow/internal/repository"
	"github.com/jmehdipour/actionflow/internal/service/ingest"
	"go.uber.org/zap"
)

type Fetcher interface {
	Fetch(ctx context.Context) (kafka.Message, error)
	Commit(ctx context.Context, m kafka.Message) error
}

type Recorder interface {
	Record(ctx context.Context, env ingest.Envelope) (ingest.Recorded, error)
}

// Ingestor records envelopes from the ingest topic. Malformed messages are
// committed and skipped; storage errors are retried until ctx ends.
type Ingestor struct {
	src   Fetcher
	rec   Recorder
	log   *zap.Logger
	retry time.Duration
}

func NewIngestor(src Fetcher, rec Recorder, log *zap.Logger) *Ingestor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Ingestor{src: src, rec: rec, log: log, retry: 200 * time.Millisecond}
}

func (i *Ingestor) Run(ctx context.Context) error {
	for {
		m, err := i.src.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			i.log.Warn("kafka fetch failed", zap.Error(err))
			if !sleep(ctx, i.retry) {
				return nil
			}
			continue
		}

		if !i.handle(ctx, m) {
			return nil
		}
		if err := i.src.Commit(ctx, m); err != nil && ctx.Err() == nil {
			i.log.Warn("kafka commit failed", zap.Int64("offset", m.Offset), zap.Error(err))
		}
	}
}

// handle reports false only when ctx ended before the message was settled.
func (i *Ingestor) handle(ctx context.Context, m kafka.Message) bool {
	var env ingest.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		i.log.Warn("bad envelope json", zap.Int64("offset", m.Offset), zap.Error(err))
		return true
	}
	if env.Event.ConversationID == "" && len(m.Key) > 0 {
		env.Event.ConversationID = string(m.Key)
	}

	for {
		rec, err := i.rec.Record(ctx, env)
		if err == nil {
			i.log.Debug("envelope recorded",
				zap.String("event_id", rec.Event.ID),
				zap.String("conversation_id", rec.Event.ConversationID),
				zap.Int("actions", len(rec.Actions)),
			)
			return true
		}
		if errors.Is(err, repository.ErrInvalidEvent) || errors.Is(err, repository.ErrInvalidAction) {
			i.log.Warn("envelope rejected", zap.Int64("offset", m.Offset), zap.Error(err))
			return true
		}
		i.log.Error("record envelope failed", zap.Int64("offset", m.Offset), zap.Error(err))
		if !sleep(ctx, i.retry) {
			return false
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
