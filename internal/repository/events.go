package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmehdipour/actionflow/internal/model"
	"github.com/jmehdipour/actionflow/internal/util"
	"github.com/jmoiron/sqlx"
)

// EventsRepository is the append-only conversation log. There is deliberately
// no update or delete.
type EventsRepository interface {
	Append(ctx context.Context, tx *sqlx.Tx, e model.Event) (model.Event, error)
	ListByConversation(ctx context.Context, conversationID string) ([]model.Event, error)
}

type EventsRepositoryImpl struct {
	base
}

func NewEventsRepository(db *sqlx.DB) *EventsRepositoryImpl {
	return &EventsRepositoryImpl{base{db: db}}
}

type eventRow struct {
	ID             string        `db:"id"`
	ConversationID string        `db:"conversation_id"`
	Type           string        `db:"event_type"`
	Subtype        string        `db:"subtype"`
	Actor          string        `db:"actor"`
	Payload        model.Payload `db:"payload"`
	CreatedAt      int64         `db:"created_at"`
}

func (r eventRow) model() model.Event {
	return model.Event{
		ID:             r.ID,
		ConversationID: r.ConversationID,
		Type:           model.EventType(r.Type),
		Subtype:        r.Subtype,
		Actor:          r.Actor,
		Payload:        r.Payload,
		CreatedAt:      fromMicros(r.CreatedAt),
	}
}

// Append validates required fields and inserts e, filling id and created_at when empty.
func (r *EventsRepositoryImpl) Append(ctx context.Context, tx *sqlx.Tx, e model.Event) (model.Event, error) {
	e.ConversationID = strings.TrimSpace(e.ConversationID)
	e.Type = model.EventType(strings.TrimSpace(e.Type.String()))
	if e.ConversationID == "" {
		return model.Event{}, fmt.Errorf("%w: conversation_id is required", ErrInvalidEvent)
	}
	if e.Type == "" {
		return model.Event{}, fmt.Errorf("%w: event_type is required", ErrInvalidEvent)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	e.CreatedAt = fromMicros(toMicros(e.CreatedAt))
	if e.ID == "" {
		e.ID = util.NewAt(e.CreatedAt)
	}
	if e.Payload == nil {
		e.Payload = model.Payload{}
	}

	const q = `
		INSERT INTO events (id, conversation_id, event_type, subtype, actor, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	err := r.withTx(ctx, tx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, q,
			e.ID, e.ConversationID, e.Type.String(), e.Subtype, e.Actor, e.Payload, toMicros(e.CreatedAt),
		)
		return err
	})
	if err != nil {
		return model.Event{}, fmt.Errorf("append event: %w", err)
	}
	return e, nil
}

// ListByConversation returns the conversation's events oldest first.
func (r *EventsRepositoryImpl) ListByConversation(ctx context.Context, conversationID string) ([]model.Event, error) {
	const q = `
		SELECT id, conversation_id, event_type, subtype, actor, payload, created_at
		FROM events
		WHERE conversation_id = ?
		ORDER BY created_at ASC, id ASC
	`
	var rows []eventRow
	if err := r.db.SelectContext(ctx, &rows, q, conversationID); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}

	out := make([]model.Event, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.model())
	}
	return out, nil
}
