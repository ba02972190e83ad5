package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmehdipour/actionflow/internal/model"
	"github.com/jmehdipour/actionflow/internal/util"
	"github.com/jmoiron/sqlx"
)

// ActionsRepository persists the action outbox. Status only moves through
// Claim, Settle and the reaper's Settle of stale claims.
type ActionsRepository interface {
	Enqueue(ctx context.Context, tx *sqlx.Tx, a model.Action) (model.Action, error)
	Get(ctx context.Context, id string) (model.Action, error)
	ListByConversation(ctx context.Context, conversationID string) ([]model.Action, error)
	FetchPending(ctx context.Context, q model.PendingQuery) ([]model.Action, error)
	Claim(ctx context.Context, id string, at time.Time) (*model.Action, error)
	Settle(ctx context.Context, s model.Settlement) (model.Action, error)
	ListStale(ctx context.Context, claimedBefore time.Time, limit int) ([]model.Action, error)
}

type ActionsRepositoryImpl struct {
	base
}

func NewActionsRepository(db *sqlx.DB) *ActionsRepositoryImpl {
	return &ActionsRepositoryImpl{base{db: db}}
}

const actionColumns = `id, action_type, status, conversation_id, organization_id, channel,
	payload, priority, attempts, created_at, claimed_at, executed_at`

type actionRow struct {
	ID             string        `db:"id"`
	Type           string        `db:"action_type"`
	Status         string        `db:"status"`
	ConversationID string        `db:"conversation_id"`
	OrganizationID string        `db:"organization_id"`
	Channel        string        `db:"channel"`
	Payload        model.Payload `db:"payload"`
	Priority       int           `db:"priority"`
	Attempts       int           `db:"attempts"`
	CreatedAt      int64         `db:"created_at"`
	ClaimedAt      sql.NullInt64 `db:"claimed_at"`
	ExecutedAt     sql.NullInt64 `db:"executed_at"`
}

func (r actionRow) model() model.Action {
	return model.Action{
		ID:             r.ID,
		Type:           model.ActionType(r.Type),
		Status:         model.ActionStatus(r.Status),
		ConversationID: r.ConversationID,
		OrganizationID: r.OrganizationID,
		Channel:        r.Channel,
		Payload:        r.Payload,
		Priority:       r.Priority,
		Attempts:       r.Attempts,
		CreatedAt:      fromMicros(r.CreatedAt),
		ClaimedAt:      fromNullMicros(r.ClaimedAt),
		ExecutedAt:     fromNullMicros(r.ExecutedAt),
	}
}

func toActions(rows []actionRow) []model.Action {
	out := make([]model.Action, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.model())
	}
	return out
}

// Enqueue inserts a new action with status=pending and attempts=0.
func (r *ActionsRepositoryImpl) Enqueue(ctx context.Context, tx *sqlx.Tx, a model.Action) (model.Action, error) {
	a.Type = model.ActionType(strings.TrimSpace(a.Type.String()))
	a.ConversationID = strings.TrimSpace(a.ConversationID)
	if a.Type == "" {
		return model.Action{}, fmt.Errorf("%w: action_type is required", ErrInvalidAction)
	}
	if a.ConversationID == "" {
		return model.Action{}, fmt.Errorf("%w: conversation_id is required", ErrInvalidAction)
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	a.CreatedAt = fromMicros(toMicros(a.CreatedAt))
	if a.ID == "" {
		a.ID = util.NewAt(a.CreatedAt)
	}
	if a.Payload == nil {
		a.Payload = model.Payload{}
	}
	a.Status = model.ActionPending
	a.Attempts = 0
	a.ClaimedAt = nil
	a.ExecutedAt = nil

	const q = `
		INSERT INTO actions
		    (id, action_type, status, conversation_id, organization_id, channel, payload, priority, attempts, created_at)
		VALUES
		    (?,  ?,           'pending', ?,            ?,               ?,       ?,       ?,        0,        ?)
	`
	err := r.withTx(ctx, tx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, q,
			a.ID, a.Type.String(), a.ConversationID, a.OrganizationID, a.Channel, a.Payload, a.Priority, toMicros(a.CreatedAt),
		)
		return err
	})
	if err != nil {
		return model.Action{}, fmt.Errorf("enqueue action: %w", err)
	}
	return a, nil
}

func (r *ActionsRepositoryImpl) Get(ctx context.Context, id string) (model.Action, error) {
	return r.get(ctx, r.db, id)
}

func (r *ActionsRepositoryImpl) get(ctx context.Context, q sqlx.QueryerContext, id string) (model.Action, error) {
	var row actionRow
	err := sqlx.GetContext(ctx, q, &row, `SELECT `+actionColumns+` FROM actions WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Action{}, ErrNotFound
	}
	if err != nil {
		return model.Action{}, fmt.Errorf("get action: %w", err)
	}
	return row.model(), nil
}

func (r *ActionsRepositoryImpl) ListByConversation(ctx context.Context, conversationID string) ([]model.Action, error) {
	var rows []actionRow
	q := `SELECT ` + actionColumns + ` FROM actions WHERE conversation_id = ? ORDER BY created_at ASC, id ASC`
	if err := r.db.SelectContext(ctx, &rows, q, conversationID); err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}
	return toActions(rows), nil
}

// FetchPending returns up to q.Limit pending actions, oldest first, whose
// attempts are still below q.MaxAttempts.
func (r *ActionsRepositoryImpl) FetchPending(ctx context.Context, q model.PendingQuery) ([]model.Action, error) {
	if q.Limit <= 0 {
		q.Limit = 10
	}
	if q.MaxAttempts <= 0 {
		q.MaxAttempts = model.DefaultMaxAttempts
	}

	query := `SELECT ` + actionColumns + ` FROM actions WHERE status = 'pending' AND attempts < ?`
	args := []any{q.MaxAttempts}
	if len(q.Types) > 0 {
		types := make([]string, 0, len(q.Types))
		for _, t := range q.Types {
			types = append(types, t.String())
		}
		query += ` AND action_type IN (?)`
		args = append(args, types)
	}
	query += ` ORDER BY created_at ASC, id ASC LIMIT ?`
	args = append(args, q.Limit)

	query, args, err := sqlx.In(query, args...)
	if err != nil {
		return nil, err
	}
	query = r.db.Rebind(query)

	var rows []actionRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("fetch pending: %w", err)
	}
	return toActions(rows), nil
}

// Claim moves one action from pending to processing with a single
// conditional UPDATE. (nil, nil) means the row was not pending anymore:
// another worker won the race.
func (r *ActionsRepositoryImpl) Claim(ctx context.Context, id string, at time.Time) (*model.Action, error) {
	const q = `UPDATE actions SET status = 'processing', claimed_at = ? WHERE id = ? AND status = 'pending'`
	res, err := r.db.ExecContext(ctx, q, toMicros(at), id)
	if err != nil {
		return nil, fmt.Errorf("claim action: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("claim action: %w", err)
	}
	if n == 0 {
		return nil, nil
	}

	a, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Settle applies the outcome of a claimed execution and appends its receipt
// in one transaction. When s.ClaimedAt is set the update is fenced on it, so
// a claim that was reaped and re-claimed cannot be settled twice.
func (r *ActionsRepositoryImpl) Settle(ctx context.Context, s model.Settlement) (model.Action, error) {
	if s.MaxAttempts <= 0 {
		s.MaxAttempts = model.DefaultMaxAttempts
	}
	if s.At.IsZero() {
		s.At = time.Now()
	}

	var (
		q    string
		args []any
	)
	if s.Success {
		q = `UPDATE actions SET status = 'executed', executed_at = ? WHERE id = ? AND status = 'processing'`
		args = []any{toMicros(s.At), s.ActionID}
	} else {
		// status is assigned before attempts: MySQL evaluates SET left to right.
		q = `UPDATE actions
			SET status = CASE WHEN attempts + 1 >= ? THEN 'failed' ELSE 'pending' END,
			    attempts = attempts + 1,
			    claimed_at = NULL
			WHERE id = ? AND status = 'processing'`
		args = []any{s.MaxAttempts, s.ActionID}
	}
	if s.ClaimedAt != nil {
		q += ` AND claimed_at = ?`
		args = append(args, toMicros(*s.ClaimedAt))
	}

	var settled model.Action
	err := r.withTx(ctx, nil, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotProcessing
		}

		if s.Receipt.SourceID == "" {
			s.Receipt.SourceID = s.ActionID
		}
		if s.Receipt.CreatedAt.IsZero() {
			s.Receipt.CreatedAt = s.At
		}
		if _, err := insertReceipt(ctx, tx, s.Receipt); err != nil {
			return err
		}

		settled, err = r.get(ctx, tx, s.ActionID)
		return err
	})
	if err != nil {
		return model.Action{}, fmt.Errorf("settle action %s: %w", s.ActionID, err)
	}
	return settled, nil
}

// ListStale returns processing actions claimed before claimedBefore.
func (r *ActionsRepositoryImpl) ListStale(ctx context.Context, claimedBefore time.Time, limit int) ([]model.Action, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []actionRow
	q := `SELECT ` + actionColumns + ` FROM actions
		WHERE status = 'processing' AND claimed_at < ?
		ORDER BY claimed_at ASC, id ASC LIMIT ?`
	if err := r.db.SelectContext(ctx, &rows, q, toMicros(claimedBefore), limit); err != nil {
		return nil, fmt.Errorf("list stale actions: %w", err)
	}
	return toActions(rows), nil
}
