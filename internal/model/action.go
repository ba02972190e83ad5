package model

import (
	"strings"
	"time"
)

// ActionType names a side effect. The known set is listed below; anything
// else is kept verbatim and resolved by the executor registry at run time.
type ActionType string

const (
	ActionDMSend         ActionType = "dm_send"
	ActionEmailSend      ActionType = "email_send"
	ActionWebsiteReply   ActionType = "website_reply"
	ActionApproveMessage ActionType = "approve_message"
)

// DefaultActionTypes is the allow-list consumed by the worker when none is configured.
var DefaultActionTypes = []ActionType{ActionDMSend, ActionEmailSend, ActionWebsiteReply, ActionApproveMessage}

func (t ActionType) String() string { return string(t) }

// Known reports whether t is one of the built-in action types.
func (t ActionType) Known() bool {
	switch t {
	case ActionDMSend, ActionEmailSend, ActionWebsiteReply, ActionApproveMessage:
		return true
	default:
		return false
	}
}

// ParseActionType normalizes input. The bool reports a known type; unknown
// non-empty values are still returned so they can be stored.
func ParseActionType(s string) (ActionType, bool) {
	t := ActionType(strings.ToLower(strings.TrimSpace(s)))
	return t, t.Known()
}

type ActionStatus string

const (
	ActionPending    ActionStatus = "pending"
	ActionProcessing ActionStatus = "processing"
	ActionExecuted   ActionStatus = "executed"
	ActionFailed     ActionStatus = "failed"
)

func (s ActionStatus) String() string { return string(s) }

func (s ActionStatus) Valid() bool {
	switch s {
	case ActionPending, ActionProcessing, ActionExecuted, ActionFailed:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transition is allowed.
func (s ActionStatus) Terminal() bool {
	return s == ActionExecuted || s == ActionFailed
}

// CanTransitionTo reports whether s -> next is allowed by the action lifecycle.
func (s ActionStatus) CanTransitionTo(next ActionStatus) bool {
	switch s {
	case ActionPending:
		return next == ActionProcessing
	case ActionProcessing:
		return next == ActionPending || next == ActionExecuted || next == ActionFailed
	default:
		return false
	}
}

// DefaultMaxAttempts bounds how many times one action is executed.
const DefaultMaxAttempts = 3

// Action is a side-effecting work item in the outbox.
type Action struct {
	ID             string       `json:"id"`
	Type           ActionType   `json:"action_type"`
	Status         ActionStatus `json:"status"`
	ConversationID string       `json:"conversation_id"`
	OrganizationID string       `json:"organization_id,omitempty"`
	Channel        string       `json:"channel,omitempty"`
	Payload        Payload      `json:"payload,omitempty"`
	Priority       int          `json:"priority"`
	Attempts       int          `json:"attempts"`
	CreatedAt      time.Time    `json:"created_at"`
	ClaimedAt      *time.Time   `json:"claimed_at,omitempty"`
	ExecutedAt     *time.Time   `json:"executed_at,omitempty"`
}

// PendingQuery selects the next batch of work.
type PendingQuery struct {
	Types       []ActionType // empty = every type
	MaxAttempts int
	Limit       int
}
