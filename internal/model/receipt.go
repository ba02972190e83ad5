package model

import "time"

type ReceiptStatus string

const (
	ReceiptExecuted ReceiptStatus = "executed"
	ReceiptFailed   ReceiptStatus = "failed"
)

func (s ReceiptStatus) String() string { return string(s) }

// Receipt is the audit record of a single execution attempt.
type Receipt struct {
	ID                string        `json:"id"`
	ConversationID    string        `json:"conversation_id"`
	SourceID          string        `json:"source_id"` // action id
	Channel           string        `json:"channel,omitempty"`
	ActionType        ActionType    `json:"action_type"`
	Status            ReceiptStatus `json:"status"`
	Provider          string        `json:"provider,omitempty"`
	ProviderReceiptID string        `json:"provider_receipt_id,omitempty"`
	PayloadSnapshot   Payload       `json:"payload_snapshot,omitempty"`
	Result            string        `json:"result,omitempty"`
	Error             string        `json:"error,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
}

// Settlement is the outcome of one claimed execution, applied atomically
// together with its receipt.
type Settlement struct {
	ActionID    string
	Success     bool
	MaxAttempts int
	At          time.Time
	ClaimedAt   *time.Time // fences the update on the claim being settled
	Receipt     Receipt
}
