// Package projection derives read-side views from a conversation's event log.
// Nothing here is persisted; every view is recomputed from the events.
package projection

import "github.com/jmehdipour/actionflow/internal/model"

type ConversationStatus string

const (
	StatusOpen     ConversationStatus = "open"
	StatusBlocked  ConversationStatus = "blocked"
	StatusComplete ConversationStatus = "complete"
)

func (s ConversationStatus) String() string { return string(s) }

const (
	MissingEmail       = "Email not sent"
	MissingQuote       = "Quote not attached or dismissed"
	MissingFilesReview = "Files not reviewed"
)

var (
	emailEvents = []model.EventType{
		model.EventEmailSent,
		model.EventAIResponseSent,
		model.EventOutboundMessageSent,
	}
	quoteEvents = []model.EventType{
		model.EventQuoteAttached,
		model.EventQuoteDrafted,
		model.EventQuoteProvided,
		model.EventMarkedNoQuoteRequired,
	}
	assetEvents = []model.EventType{
		model.EventAssetUploaded,
		model.EventAssetReviewRequired,
	}
	closingEvents = []model.EventType{
		model.EventMarkedComplete,
		model.EventResolved,
	}
)

// Projection is the derived status of one escalated conversation.
type Projection struct {
	Status  ConversationStatus `json:"status"`
	Missing []string           `json:"missing"`
}

// Status folds events into a Projection. It is deterministic for a given
// event set and never mutates its input.
func Status(events []model.Event) Projection {
	seen := index(events)
	closed := seen.any(closingEvents)

	if !seen.has(model.EventEscalationSent) {
		if closed {
			return Projection{Status: StatusComplete, Missing: []string{}}
		}
		return Projection{Status: StatusOpen, Missing: []string{}}
	}

	emailSent := seen.any(emailEvents)
	quoteHandled := seen.any(quoteEvents)
	filesReviewed := !seen.any(assetEvents) || seen.has(model.EventAssetReviewed) || seen.designEscalation

	missing := make([]string, 0, 3)
	if !emailSent {
		missing = append(missing, MissingEmail)
	}
	if !quoteHandled {
		missing = append(missing, MissingQuote)
	}
	if !filesReviewed {
		missing = append(missing, MissingFilesReview)
	}

	// a closing event wins even when follow-ups are still missing
	if closed || len(missing) == 0 {
		return Projection{Status: StatusComplete, Missing: missing}
	}
	return Projection{Status: StatusBlocked, Missing: missing}
}

type eventSet struct {
	types            map[model.EventType]struct{}
	designEscalation bool
}

func index(events []model.Event) eventSet {
	s := eventSet{types: make(map[model.EventType]struct{}, len(events))}
	for _, e := range events {
		if e.Type == "" {
			continue
		}
		s.types[e.Type] = struct{}{}
		if e.Type == model.EventEscalationSent && e.Subtype == model.SubtypeDesign {
			s.designEscalation = true
		}
	}
	return s
}

func (s eventSet) has(t model.EventType) bool {
	_, ok := s.types[t]
	return ok
}

func (s eventSet) any(ts []model.EventType) bool {
	for _, t := range ts {
		if s.has(t) {
			return true
		}
	}
	return false
}
