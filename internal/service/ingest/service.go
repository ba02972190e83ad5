package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/jmehdipour/actionflow/internal/metrics"
	"github.com/jmehdipour/actionflow/internal/model"
	"github.com/jmehdipour/actionflow/internal/projection"
	"github.com/jmehdipour/actionflow/internal/repository"
	"github.com/jmoiron/sqlx"
)

// Envelope is one conversation event plus the actions it triggers. It is the
// body of POST /v1/conversations/:id/events and of ingest topic messages.
type Envelope struct {
	Event   model.Event    `json:"event"`
	Actions []model.Action `json:"actions,omitempty"`
}

type Recorded struct {
	Event   model.Event    `json:"event"`
	Actions []model.Action `json:"actions"`
}

// Service writes events and their outbox actions in a single transaction, so
// an action exists only if the event that caused it was stored.
type Service struct {
	db      *sqlx.DB
	events  repository.EventsRepository
	actions repository.ActionsRepository
}

func New(db *sqlx.DB, eventsRepo repository.EventsRepository, actionsRepo repository.ActionsRepository) *Service {
	return &Service{db: db, events: eventsRepo, actions: actionsRepo}
}

// Record appends env.Event and enqueues env.Actions. Actions inherit the
// event's conversation id when they carry none.
func (s *Service) Record(ctx context.Context, env Envelope) (Recorded, error) {
	if env.Event.CreatedAt.IsZero() {
		env.Event.CreatedAt = time.Now()
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return Recorded{}, err
	}
	defer func() { _ = tx.Rollback() }()

	ev, err := s.events.Append(ctx, tx, env.Event)
	if err != nil {
		return Recorded{}, err
	}

	out := Recorded{Event: ev, Actions: make([]model.Action, 0, len(env.Actions))}
	for i, a := range env.Actions {
		if a.ConversationID == "" {
			a.ConversationID = ev.ConversationID
		}
		if a.CreatedAt.IsZero() {
			// keep submission order under FIFO fetch
			a.CreatedAt = ev.CreatedAt.Add(time.Duration(i) * time.Microsecond)
		}
		queued, err := s.actions.Enqueue(ctx, tx, a)
		if err != nil {
			return Recorded{}, fmt.Errorf("action %d: %w", i, err)
		}
		out.Actions = append(out.Actions, queued)
	}

	if err := tx.Commit(); err != nil {
		return Recorded{}, err
	}

	metrics.EventsTotal.WithLabelValues(ev.Type.String()).Inc()
	return out, nil
}

func (s *Service) Enqueue(ctx context.Context, a model.Action) (model.Action, error) {
	return s.actions.Enqueue(ctx, nil, a)
}

func (s *Service) Events(ctx context.Context, conversationID string) ([]model.Event, error) {
	return s.events.ListByConversation(ctx, conversationID)
}

// Status projects the conversation's current state from its event log.
func (s *Service) Status(ctx context.Context, conversationID string) (projection.Projection, error) {
	evs, err := s.events.ListByConversation(ctx, conversationID)
	if err != nil {
		return projection.Projection{}, err
	}
	return projection.Status(evs), nil
}
