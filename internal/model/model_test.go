package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseActionType(t *testing.T) {
	typ, ok := ParseActionType(" Email_Send ")
	assert.True(t, ok)
	assert.Equal(t, ActionEmailSend, typ)

	typ, ok = ParseActionType("sync_woo")
	assert.False(t, ok)
	assert.Equal(t, ActionType("sync_woo"), typ)
}

func TestActionStatus_Transitions(t *testing.T) {
	assert.True(t, ActionPending.CanTransitionTo(ActionProcessing))
	assert.False(t, ActionPending.CanTransitionTo(ActionExecuted))
	assert.True(t, ActionProcessing.CanTransitionTo(ActionPending))
	assert.True(t, ActionProcessing.CanTransitionTo(ActionFailed))
	assert.False(t, ActionExecuted.CanTransitionTo(ActionPending))
	assert.False(t, ActionFailed.CanTransitionTo(ActionProcessing))

	assert.True(t, ActionExecuted.Terminal())
	assert.False(t, ActionProcessing.Terminal())
	assert.False(t, ActionStatus("queued").Valid())
}

func TestEventType_Known(t *testing.T) {
	assert.True(t, EventMarkedOngoing.Known())
	assert.False(t, EventType("customer_waved").Known())
}

func TestPayload_ScanValue(t *testing.T) {
	v, err := Payload{"to": "a@b.c"}.Value()
	require.NoError(t, err)

	var p Payload
	require.NoError(t, p.Scan(v))
	assert.Equal(t, "a@b.c", p.String("to"))

	require.NoError(t, p.Scan(`{"n":1}`))
	assert.Equal(t, float64(1), p["n"])
	assert.Equal(t, "", p.String("n"))

	require.NoError(t, p.Scan(nil))
	assert.Empty(t, p)

	require.Error(t, p.Scan(42))
	require.Error(t, p.Scan([]byte("{")))

	v, err = Payload(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, []byte("{}"), v)
}

func TestPayload_CloneDoesNotAlias(t *testing.T) {
	src := Payload{"a": "1"}
	c := src.Clone()
	c["a"] = "2"
	assert.Equal(t, "1", src.String("a"))
}
