package ingest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jmehdipour/actionflow/internal/db"
	"github.com/jmehdipour/actionflow/internal/model"
	"github.com/jmehdipour/actionflow/internal/projection"
	"github.com/jmehdipour/actionflow/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T) (*Service, repository.ActionsRepository) {
	t.Helper()
	sqlDB, err := db.NewSQLiteConnection(filepath.Join(t.TempDir(), "ingest.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.Migrate(context.Background(), sqlDB, db.DriverSQLite))

	actions := repository.NewActionsRepository(sqlDB)
	return New(sqlDB, repository.NewEventsRepository(sqlDB), actions), actions
}

func TestRecord_EventWithActions(t *testing.T) {
	ctx := context.Background()
	svc, actions := newService(t)

	rec, err := svc.Record(ctx, Envelope{
		Event: model.Event{ConversationID: "c1", Type: model.EventEscalationSent},
		Actions: []model.Action{
			{Type: model.ActionEmailSend, Channel: "email"},
			{Type: model.ActionDMSend},
		},
	})
	require.NoError(t, err)
	require.Len(t, rec.Actions, 2)
	assert.Equal(t, "c1", rec.Actions[0].ConversationID)

	pending, err := actions.FetchPending(ctx, model.PendingQuery{Limit: 10})
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, model.ActionEmailSend, pending[0].Type)
	assert.Equal(t, model.ActionDMSend, pending[1].Type)
}

func TestRecord_RollsBackOnInvalidAction(t *testing.T) {
	ctx := context.Background()
	svc, actions := newService(t)

	_, err := svc.Record(ctx, Envelope{
		Event:   model.Event{ConversationID: "c1", Type: model.EventEscalationSent},
		Actions: []model.Action{{Type: ""}},
	})
	require.ErrorIs(t, err, repository.ErrInvalidAction)

	evs, err := svc.Events(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, evs)

	pending, err := actions.FetchPending(ctx, model.PendingQuery{})
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestStatus_Projects(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	for _, typ := range []model.EventType{model.EventEscalationSent, model.EventEmailSent} {
		_, err := svc.Record(ctx, Envelope{Event: model.Event{ConversationID: "c1", Type: typ}})
		require.NoError(t, err)
	}

	p, err := svc.Status(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, projection.StatusBlocked, p.Status)
	assert.Equal(t, []string{projection.MissingQuote}, p.Missing)

	p, err = svc.Status(ctx, "unknown")
	require.NoError(t, err)
	assert.Equal(t, projection.StatusOpen, p.Status)
}
