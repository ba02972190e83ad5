package executor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmehdipour/actionflow/internal/model"
)

// Publisher is satisfied by *kafka.Producer.
type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// Publish hands the action to a downstream channel service over the broker.
// The message key is the action id, which consumers use to drop duplicates.
type Publish struct {
	pub   Publisher
	topic string
}

func NewPublish(pub Publisher, topic string) *Publish {
	return &Publish{pub: pub, topic: topic}
}

func (e *Publish) Execute(ctx context.Context, a model.Action) (Result, error) {
	if e.topic == "" {
		return Result{}, fmt.Errorf("no topic for %s", a.Type)
	}

	value, err := json.Marshal(deliveryBody{
		ActionID:       a.ID,
		ActionType:     a.Type.String(),
		ConversationID: a.ConversationID,
		OrganizationID: a.OrganizationID,
		Channel:        a.Channel,
		Payload:        a.Payload,
	})
	if err != nil {
		return Result{}, fmt.Errorf("marshal action: %w", err)
	}

	if err := e.pub.Publish(ctx, e.topic, []byte(a.ID), value); err != nil {
		return Result{OK: false, Error: err.Error(), Provider: "kafka"}, nil
	}
	return Result{
		OK:                true,
		Result:            "published to " + e.topic,
		Provider:          "kafka",
		ProviderReceiptID: a.ID,
	}, nil
}
