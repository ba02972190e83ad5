package executor

import (
	"context"
	"fmt"

	"github.com/jmehdipour/actionflow/internal/dispatcher"
	"github.com/jmehdipour/actionflow/internal/model"
)

// Deliverer is satisfied by *dispatcher.Dispatcher.
type Deliverer interface {
	Deliver(ctx context.Context, req dispatcher.Request) (dispatcher.Response, error)
}

// HTTPDelivery posts the action to a provider route through the dispatcher.
// The action id travels as the idempotency key so a provider can drop a
// duplicate after a crash between delivery and settle.
type HTTPDelivery struct {
	d     Deliverer
	route string
}

func NewHTTPDelivery(d Deliverer, route string) *HTTPDelivery {
	return &HTTPDelivery{d: d, route: route}
}

type deliveryBody struct {
	ActionID       string        `json:"action_id"`
	ActionType     string        `json:"action_type"`
	ConversationID string        `json:"conversation_id"`
	OrganizationID string        `json:"organization_id,omitempty"`
	Channel        string        `json:"channel,omitempty"`
	Payload        model.Payload `json:"payload"`
}

func (e *HTTPDelivery) Execute(ctx context.Context, a model.Action) (Result, error) {
	route := e.route
	if route == "" {
		route = a.Type.String()
	}

	res, err := e.d.Deliver(ctx, dispatcher.Request{
		Route:          route,
		IdempotencyKey: a.ID,
		Body: deliveryBody{
			ActionID:       a.ID,
			ActionType:     a.Type.String(),
			ConversationID: a.ConversationID,
			OrganizationID: a.OrganizationID,
			Channel:        a.Channel,
			Payload:        a.Payload,
		},
	})
	if err != nil {
		return Result{OK: false, Error: err.Error(), Provider: res.Provider}, nil
	}

	return Result{
		OK:                true,
		Result:            fmt.Sprintf("delivered via %s", res.Provider),
		Provider:          res.Provider,
		ProviderReceiptID: res.ReceiptID,
	}, nil
}
