package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jmehdipour/actionflow/internal/model"
	"github.com/jmehdipour/actionflow/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_ClaimIsExclusive(t *testing.T) {
	ctx := context.Background()
	s := New()
	a, err := s.Enqueue(ctx, model.Action{Type: model.ActionDMSend, ConversationID: "c1"})
	require.NoError(t, err)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := s.Claim(ctx, a.ID, time.Now())
			if err == nil && got != nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestStore_SettleLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()
	a, err := s.Enqueue(ctx, model.Action{Type: model.ActionEmailSend, ConversationID: "c1"})
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		c, err := s.Claim(ctx, a.ID, time.Now())
		require.NoError(t, err)
		require.NotNil(t, c)
		got, err := s.Settle(ctx, model.Settlement{ActionID: a.ID, MaxAttempts: 3, ClaimedAt: c.ClaimedAt,
			Receipt: model.Receipt{Status: model.ReceiptFailed, Error: "x"}})
		require.NoError(t, err)
		assert.Equal(t, i, got.Attempts)
	}

	got, err := s.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ActionFailed, got.Status)

	_, err = s.Settle(ctx, model.Settlement{ActionID: a.ID, Success: true})
	require.ErrorIs(t, err, repository.ErrNotProcessing)

	rs, err := s.ListBySource(ctx, a.ID)
	require.NoError(t, err)
	assert.Len(t, rs, 3)
}

func TestStore_FetchPendingFIFO(t *testing.T) {
	ctx := context.Background()
	s := New()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b, _ := s.Enqueue(ctx, model.Action{Type: model.ActionEmailSend, ConversationID: "c", CreatedAt: base.Add(time.Second)})
	a, _ := s.Enqueue(ctx, model.Action{Type: model.ActionEmailSend, ConversationID: "c", CreatedAt: base})
	_, _ = s.Enqueue(ctx, model.Action{Type: "other", ConversationID: "c", CreatedAt: base})

	got, err := s.FetchPending(ctx, model.PendingQuery{Types: []model.ActionType{model.ActionEmailSend}})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, a.ID, got[0].ID)
	assert.Equal(t, b.ID, got[1].ID)
}

func TestStore_SettleFencedOnClaim(t *testing.T) {
	ctx := context.Background()
	s := New()
	a, _ := s.Enqueue(ctx, model.Action{Type: model.ActionEmailSend, ConversationID: "c"})
	_, err := s.Claim(ctx, a.ID, time.Now())
	require.NoError(t, err)

	other := time.Now().Add(-time.Hour)
	_, err = s.Settle(ctx, model.Settlement{ActionID: a.ID, Success: true, ClaimedAt: &other})
	require.ErrorIs(t, err, repository.ErrNotProcessing)
}
