package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmehdipour/actionflow/internal/model"
	"github.com/jmehdipour/actionflow/internal/util"
	"github.com/jmoiron/sqlx"
)

// ReceiptsRepository is the append-only audit log of execution attempts.
type ReceiptsRepository interface {
	Insert(ctx context.Context, tx *sqlx.Tx, rc model.Receipt) (model.Receipt, error)
	ListBySource(ctx context.Context, actionID string) ([]model.Receipt, error)
	ListByConversation(ctx context.Context, conversationID string) ([]model.Receipt, error)
}

type ReceiptsRepositoryImpl struct {
	base
}

func NewReceiptsRepository(db *sqlx.DB) *ReceiptsRepositoryImpl {
	return &ReceiptsRepositoryImpl{base{db: db}}
}

const receiptColumns = `id, conversation_id, source_id, channel, action_type, status, provider,
	provider_receipt_id, payload_snapshot, result, error, created_at`

type receiptRow struct {
	ID                string        `db:"id"`
	ConversationID    string        `db:"conversation_id"`
	SourceID          string        `db:"source_id"`
	Channel           string        `db:"channel"`
	ActionType        string        `db:"action_type"`
	Status            string        `db:"status"`
	Provider          string        `db:"provider"`
	ProviderReceiptID string        `db:"provider_receipt_id"`
	PayloadSnapshot   model.Payload `db:"payload_snapshot"`
	Result            string        `db:"result"`
	Error             string        `db:"error"`
	CreatedAt         int64         `db:"created_at"`
}

func (r receiptRow) model() model.Receipt {
	return model.Receipt{
		ID:                r.ID,
		ConversationID:    r.ConversationID,
		SourceID:          r.SourceID,
		Channel:           r.Channel,
		ActionType:        model.ActionType(r.ActionType),
		Status:            model.ReceiptStatus(r.Status),
		Provider:          r.Provider,
		ProviderReceiptID: r.ProviderReceiptID,
		PayloadSnapshot:   r.PayloadSnapshot,
		Result:            r.Result,
		Error:             r.Error,
		CreatedAt:         fromMicros(r.CreatedAt),
	}
}

func (r *ReceiptsRepositoryImpl) Insert(ctx context.Context, tx *sqlx.Tx, rc model.Receipt) (model.Receipt, error) {
	var out model.Receipt
	err := r.withTx(ctx, tx, func(tx *sqlx.Tx) error {
		var err error
		out, err = insertReceipt(ctx, tx, rc)
		return err
	})
	return out, err
}

func insertReceipt(ctx context.Context, tx *sqlx.Tx, rc model.Receipt) (model.Receipt, error) {
	if rc.SourceID == "" {
		return model.Receipt{}, fmt.Errorf("%w: receipt source_id is required", ErrInvalidAction)
	}
	if rc.CreatedAt.IsZero() {
		rc.CreatedAt = time.Now()
	}
	rc.CreatedAt = fromMicros(toMicros(rc.CreatedAt))
	if rc.ID == "" {
		rc.ID = util.NewAt(rc.CreatedAt)
	}
	if rc.PayloadSnapshot == nil {
		rc.PayloadSnapshot = model.Payload{}
	}

	const q = `
		INSERT INTO receipts
		    (id, conversation_id, source_id, channel, action_type, status, provider,
		     provider_receipt_id, payload_snapshot, result, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := tx.ExecContext(ctx, q,
		rc.ID, rc.ConversationID, rc.SourceID, rc.Channel, rc.ActionType.String(), rc.Status.String(),
		rc.Provider, rc.ProviderReceiptID, rc.PayloadSnapshot, rc.Result, rc.Error, toMicros(rc.CreatedAt),
	)
	if err != nil {
		return model.Receipt{}, fmt.Errorf("insert receipt: %w", err)
	}
	return rc, nil
}

// ListBySource returns every attempt of one action, oldest first.
func (r *ReceiptsRepositoryImpl) ListBySource(ctx context.Context, actionID string) ([]model.Receipt, error) {
	return r.list(ctx, `source_id = ?`, actionID)
}

func (r *ReceiptsRepositoryImpl) ListByConversation(ctx context.Context, conversationID string) ([]model.Receipt, error) {
	return r.list(ctx, `conversation_id = ?`, conversationID)
}

func (r *ReceiptsRepositoryImpl) list(ctx context.Context, where string, arg any) ([]model.Receipt, error) {
	var rows []receiptRow
	q := `SELECT ` + receiptColumns + ` FROM receipts WHERE ` + where + ` ORDER BY created_at ASC, id ASC`
	if err := r.db.SelectContext(ctx, &rows, q, arg); err != nil {
		return nil, fmt.Errorf("list receipts: %w", err)
	}
	out := make([]model.Receipt, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.model())
	}
	return out, nil
}
