package repository

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jmehdipour/actionflow/internal/db"
	"github.com/jmehdipour/actionflow/internal/model"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	sqlDB, err := db.NewSQLiteConnection(filepath.Join(t.TempDir(), "actionflow.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.Migrate(context.Background(), sqlDB, db.DriverSQLite))
	return sqlDB
}

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func TestEvents_AppendAndListOrdered(t *testing.T) {
	ctx := context.Background()
	repo := NewEventsRepository(openTestDB(t))

	// appended out of order on purpose
	_, err := repo.Append(ctx, nil, model.Event{ConversationID: "c1", Type: model.EventEmailSent, CreatedAt: t0.Add(2 * time.Second)})
	require.NoError(t, err)
	first, err := repo.Append(ctx, nil, model.Event{
		ConversationID: "c1",
		Type:           model.EventEscalationSent,
		Subtype:        model.SubtypeDesign,
		Actor:          "agent:7",
		Payload:        model.Payload{"reason": "pricing"},
		CreatedAt:      t0,
	})
	require.NoError(t, err)
	require.NotEmpty(t, first.ID)
	_, err = repo.Append(ctx, nil, model.Event{ConversationID: "c2", Type: model.EventResolved, CreatedAt: t0})
	require.NoError(t, err)

	events, err := repo.ListByConversation(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, model.EventEscalationSent, events[0].Type)
	assert.Equal(t, model.SubtypeDesign, events[0].Subtype)
	assert.Equal(t, "agent:7", events[0].Actor)
	assert.Equal(t, "pricing", events[0].Payload.String("reason"))
	assert.True(t, events[0].CreatedAt.Equal(t0))
	assert.Equal(t, model.EventEmailSent, events[1].Type)
}

func TestEvents_AppendValidation(t *testing.T) {
	repo := NewEventsRepository(openTestDB(t))

	_, err := repo.Append(context.Background(), nil, model.Event{Type: model.EventEmailSent})
	require.ErrorIs(t, err, ErrInvalidEvent)

	_, err = repo.Append(context.Background(), nil, model.Event{ConversationID: "c1", Type: "  "})
	require.ErrorIs(t, err, ErrInvalidEvent)
}

func TestActions_EnqueueForcesPending(t *testing.T) {
	ctx := context.Background()
	repo := NewActionsRepository(openTestDB(t))

	a, err := repo.Enqueue(ctx, nil, model.Action{
		Type:           model.ActionEmailSend,
		Status:         model.ActionExecuted,
		Attempts:       7,
		ConversationID: "c1",
		OrganizationID: "org-1",
		Channel:        "email",
		Payload:        model.Payload{"to": "a@b.c"},
		Priority:       2,
	})
	require.NoError(t, err)

	got, err := repo.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ActionPending, got.Status)
	assert.Zero(t, got.Attempts)
	assert.Equal(t, "org-1", got.OrganizationID)
	assert.Equal(t, "a@b.c", got.Payload.String("to"))
	assert.Equal(t, 2, got.Priority)
	assert.Nil(t, got.ExecutedAt)

	_, err = repo.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = repo.Enqueue(ctx, nil, model.Action{ConversationID: "c1"})
	require.ErrorIs(t, err, ErrInvalidAction)
}

func TestActions_FetchPendingFiltersAndOrders(t *testing.T) {
	ctx := context.Background()
	repo := NewActionsRepository(openTestDB(t))

	mk := func(typ model.ActionType, at time.Time) model.Action {
		a, err := repo.Enqueue(ctx, nil, model.Action{Type: typ, ConversationID: "c1", CreatedAt: at})
		require.NoError(t, err)
		return a
	}
	late := mk(model.ActionEmailSend, t0.Add(3*time.Minute))
	early := mk(model.ActionDMSend, t0)
	mk(model.ActionType("sync_woo"), t0.Add(time.Minute))
	claimed := mk(model.ActionWebsiteReply, t0.Add(2*time.Minute))
	_, err := repo.Claim(ctx, claimed.ID, t0)
	require.NoError(t, err)

	got, err := repo.FetchPending(ctx, model.PendingQuery{Types: model.DefaultActionTypes, MaxAttempts: 3, Limit: 10})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, early.ID, got[0].ID)
	assert.Equal(t, late.ID, got[1].ID)

	all, err := repo.FetchPending(ctx, model.PendingQuery{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	one, err := repo.FetchPending(ctx, model.PendingQuery{Limit: 1})
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, early.ID, one[0].ID)
}

func TestActions_FetchPendingSkipsExhausted(t *testing.T) {
	ctx := context.Background()
	repo := NewActionsRepository(openTestDB(t))

	a, err := repo.Enqueue(ctx, nil, model.Action{Type: model.ActionEmailSend, ConversationID: "c1"})
	require.NoError(t, err)

	// two failures with a generous cap leave it pending with attempts=2
	for i := 0; i < 2; i++ {
		_, err := repo.Claim(ctx, a.ID, t0)
		require.NoError(t, err)
		_, err = repo.Settle(ctx, model.Settlement{ActionID: a.ID, MaxAttempts: 10, At: t0, Receipt: model.Receipt{Status: model.ReceiptFailed}})
		require.NoError(t, err)
	}

	got, err := repo.FetchPending(ctx, model.PendingQuery{MaxAttempts: 2})
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = repo.FetchPending(ctx, model.PendingQuery{MaxAttempts: 3})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestActions_ClaimIsExclusive(t *testing.T) {
	ctx := context.Background()
	repo := NewActionsRepository(openTestDB(t))

	a, err := repo.Enqueue(ctx, nil, model.Action{Type: model.ActionDMSend, ConversationID: "c1"})
	require.NoError(t, err)

	const N = 10
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []string
		errs    []error
	)
	wg.Add(N)
	for i := 0; i < N; i++ {
		go func() {
			defer wg.Done()
			got, err := repo.Claim(ctx, a.ID, time.Now())
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			if got != nil {
				winners = append(winners, got.ID)
			}
		}()
	}
	wg.Wait()

	require.Empty(t, errs)
	require.Equal(t, []string{a.ID}, winners)

	got, err := repo.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ActionProcessing, got.Status)
	assert.NotNil(t, got.ClaimedAt)
}

func TestActions_ClaimNonPendingReturnsNil(t *testing.T) {
	ctx := context.Background()
	repo := NewActionsRepository(openTestDB(t))

	got, err := repo.Claim(ctx, "does-not-exist", t0)
	require.NoError(t, err)
	require.Nil(t, got)

	a, err := repo.Enqueue(ctx, nil, model.Action{Type: model.ActionDMSend, ConversationID: "c1"})
	require.NoError(t, err)
	_, err = repo.Claim(ctx, a.ID, t0)
	require.NoError(t, err)

	again, err := repo.Claim(ctx, a.ID, t0)
	require.NoError(t, err)
	require.Nil(t, again)
}

func TestActions_SettleSuccessWritesReceipt(t *testing.T) {
	ctx := context.Background()
	sqlDB := openTestDB(t)
	actions := NewActionsRepository(sqlDB)
	receipts := NewReceiptsRepository(sqlDB)

	a, err := actions.Enqueue(ctx, nil, model.Action{Type: model.ActionEmailSend, ConversationID: "c1", Channel: "email"})
	require.NoError(t, err)
	claimed, err := actions.Claim(ctx, a.ID, t0)
	require.NoError(t, err)
	require.NotNil(t, claimed)

	done, err := actions.Settle(ctx, model.Settlement{
		ActionID:  a.ID,
		Success:   true,
		At:        t0.Add(time.Second),
		ClaimedAt: claimed.ClaimedAt,
		Receipt: model.Receipt{
			ConversationID:    "c1",
			Channel:           "email",
			ActionType:        model.ActionEmailSend,
			Status:            model.ReceiptExecuted,
			Provider:          "mailer",
			ProviderReceiptID: "msg-42",
			Result:            "sent",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, model.ActionExecuted, done.Status)
	require.NotNil(t, done.ExecutedAt)
	assert.True(t, done.ExecutedAt.Equal(t0.Add(time.Second)))

	rs, err := receipts.ListBySource(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, rs, 1)
	assert.Equal(t, model.ReceiptExecuted, rs[0].Status)
	assert.Equal(t, "msg-42", rs[0].ProviderReceiptID)
	assert.Equal(t, "sent", rs[0].Result)

	// terminal: a second settle is rejected
	_, err = actions.Settle(ctx, model.Settlement{ActionID: a.ID, Success: true})
	require.ErrorIs(t, err, ErrNotProcessing)
}

func TestActions_SettleFailureRetriesThenFails(t *testing.T) {
	ctx := context.Background()
	sqlDB := openTestDB(t)
	actions := NewActionsRepository(sqlDB)
	receipts := NewReceiptsRepository(sqlDB)

	a, err := actions.Enqueue(ctx, nil, model.Action{Type: model.ActionEmailSend, ConversationID: "c1"})
	require.NoError(t, err)

	want := []model.ActionStatus{model.ActionPending, model.ActionPending, model.ActionFailed}
	for i, status := range want {
		claimed, err := actions.Claim(ctx, a.ID, t0)
		require.NoError(t, err)
		require.NotNil(t, claimed, "attempt %d", i+1)

		got, err := actions.Settle(ctx, model.Settlement{
			ActionID:    a.ID,
			MaxAttempts: 3,
			At:          t0,
			Receipt:     model.Receipt{ConversationID: "c1", Status: model.ReceiptFailed, Error: "boom"},
		})
		require.NoError(t, err)
		assert.Equal(t, status, got.Status)
		assert.Equal(t, i+1, got.Attempts)
		assert.Nil(t, got.ClaimedAt)
	}

	again, err := actions.Claim(ctx, a.ID, t0)
	require.NoError(t, err)
	assert.Nil(t, again)

	rs, err := receipts.ListBySource(ctx, a.ID)
	require.NoError(t, err)
	assert.Len(t, rs, 3)
	for _, r := range rs {
		assert.Equal(t, model.ReceiptFailed, r.Status)
		assert.Equal(t, "boom", r.Error)
	}
}

func TestActions_SettleFencedOnClaim(t *testing.T) {
	ctx := context.Background()
	actions := NewActionsRepository(openTestDB(t))

	a, err := actions.Enqueue(ctx, nil, model.Action{Type: model.ActionEmailSend, ConversationID: "c1"})
	require.NoError(t, err)
	_, err = actions.Claim(ctx, a.ID, t0)
	require.NoError(t, err)

	stale := t0.Add(-time.Hour)
	_, err = actions.Settle(ctx, model.Settlement{ActionID: a.ID, Success: true, ClaimedAt: &stale})
	require.ErrorIs(t, err, ErrNotProcessing)

	got, err := actions.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ActionProcessing, got.Status)
}

func TestActions_ListStale(t *testing.T) {
	ctx := context.Background()
	actions := NewActionsRepository(openTestDB(t))

	old, err := actions.Enqueue(ctx, nil, model.Action{Type: model.ActionDMSend, ConversationID: "c1"})
	require.NoError(t, err)
	fresh, err := actions.Enqueue(ctx, nil, model.Action{Type: model.ActionDMSend, ConversationID: "c1"})
	require.NoError(t, err)

	_, err = actions.Claim(ctx, old.ID, t0)
	require.NoError(t, err)
	_, err = actions.Claim(ctx, fresh.ID, t0.Add(time.Hour))
	require.NoError(t, err)

	stale, err := actions.ListStale(ctx, t0.Add(30*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, old.ID, stale[0].ID)
}

func TestReceipts_ListByConversation(t *testing.T) {
	ctx := context.Background()
	receipts := NewReceiptsRepository(openTestDB(t))

	for i, conv := range []string{"c1", "c2", "c1"} {
		_, err := receipts.Insert(ctx, nil, model.Receipt{
			ConversationID: conv,
			SourceID:       "a" + string(rune('0'+i)),
			ActionType:     model.ActionDMSend,
			Status:         model.ReceiptExecuted,
			CreatedAt:      t0.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
	}

	rs, err := receipts.ListByConversation(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, rs, 2)
	assert.Equal(t, "a0", rs[0].SourceID)
	assert.Equal(t, "a2", rs[1].SourceID)

	_, err = receipts.Insert(ctx, nil, model.Receipt{ConversationID: "c1"})
	require.ErrorIs(t, err, ErrInvalidAction)
}

func TestBuildReceiptReport(t *testing.T) {
	q, args := buildReceiptReport(ReceiptFilter{
		ConversationID: "c1",
		Status:         model.ReceiptFailed,
		Since:          t0,
		Limit:          5000,
	})

	assert.Contains(t, q, "conversation_id = ?")
	assert.Contains(t, q, "status = ?")
	assert.Contains(t, q, "created_at >= ?")
	assert.NotContains(t, q, "action_type = ?")
	assert.Equal(t, []any{"c1", "failed", t0.UnixMicro(), 50, 0}, args)
}
