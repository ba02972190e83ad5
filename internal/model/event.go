package model

import "time"

// EventType is the open vocabulary of conversation events.
// Unknown values are carried through untouched.
type EventType string

const (
	EventEscalationSent        EventType = "escalation_sent"
	EventEmailSent             EventType = "email_sent"
	EventAIResponseSent        EventType = "ai_response_sent"
	EventOutboundMessageSent   EventType = "outbound_message_sent"
	EventQuoteAttached         EventType = "quote_attached"
	EventQuoteDrafted          EventType = "quote_drafted"
	EventQuoteProvided         EventType = "quote_provided"
	EventMarkedNoQuoteRequired EventType = "marked_no_quote_required"
	EventAssetUploaded         EventType = "asset_uploaded"
	EventAssetReviewRequired   EventType = "asset_review_required"
	EventAssetReviewed         EventType = "asset_reviewed"
	EventMarkedComplete        EventType = "marked_complete"
	EventResolved              EventType = "resolved"

	// informational only
	EventCallRequested EventType = "call_requested"
	EventMarkedOngoing EventType = "marked_ongoing"
)

// SubtypeDesign marks a design escalation, which counts as a file review.
const SubtypeDesign = "design"

var knownEventTypes = map[EventType]struct{}{
	EventEscalationSent: {}, EventEmailSent: {}, EventAIResponseSent: {},
	EventOutboundMessageSent: {}, EventQuoteAttached: {}, EventQuoteDrafted: {},
	EventQuoteProvided: {}, EventMarkedNoQuoteRequired: {}, EventAssetUploaded: {},
	EventAssetReviewRequired: {}, EventAssetReviewed: {}, EventMarkedComplete: {},
	EventResolved: {}, EventCallRequested: {}, EventMarkedOngoing: {},
}

func (t EventType) String() string { return string(t) }

// Known reports whether t belongs to the vocabulary this build understands.
func (t EventType) Known() bool {
	_, ok := knownEventTypes[t]
	return ok
}

// Event is an immutable fact appended to a conversation's log.
type Event struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Type           EventType `json:"event_type"`
	Subtype        string    `json:"subtype,omitempty"`
	Actor          string    `json:"actor,omitempty"`
	Payload        Payload   `json:"payload,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}
