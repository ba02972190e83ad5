package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmehdipour/actionflow/internal/model"
	"github.com/jmoiron/sqlx"
)

// ReceiptFilter narrows the receipt report. Zero values are ignored.
type ReceiptFilter struct {
	ConversationID string
	ActionType     model.ActionType
	Status         model.ReceiptStatus
	Since          time.Time
	Limit          int
	Offset         int
}

// CHReceiptsRepository reads the receipt mirror in ClickHouse, which is fed
// from the primary receipts table by CDC. Reporting only; never written here.
type CHReceiptsRepository interface {
	List(ctx context.Context, f ReceiptFilter) ([]model.Receipt, error)
}

type chReceiptsRepository struct {
	ch *sqlx.DB // ClickHouse connection
}

func NewCHReceiptsRepository(ch *sqlx.DB) CHReceiptsRepository {
	return &chReceiptsRepository{ch: ch}
}

func (r *chReceiptsRepository) List(ctx context.Context, f ReceiptFilter) ([]model.Receipt, error) {
	q, args := buildReceiptReport(f)

	var rows []receiptRow
	if err := r.ch.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("clickhouse receipts: %w", err)
	}
	out := make([]model.Receipt, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.model())
	}
	return out, nil
}

func buildReceiptReport(f ReceiptFilter) (string, []any) {
	if f.Limit <= 0 || f.Limit > 1000 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	q := `SELECT ` + receiptColumns + ` FROM actionflow.receipts WHERE 1 = 1`
	args := []any{}

	if f.ConversationID != "" {
		q += " AND conversation_id = ?"
		args = append(args, f.ConversationID)
	}
	if f.ActionType != "" {
		q += " AND action_type = ?"
		args = append(args, f.ActionType.String())
	}
	if f.Status != "" {
		q += " AND status = ?"
		args = append(args, f.Status.String())
	}
	if !f.Since.IsZero() {
		q += " AND created_at >= ?"
		args = append(args, toMicros(f.Since))
	}

	q += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, f.Limit, f.Offset)

	return q, args
}
