package cmd

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jmehdipour/actionflow/internal/config"
	"github.com/jmehdipour/actionflow/internal/db"
	"github.com/jmehdipour/actionflow/internal/model"
	"github.com/jmehdipour/actionflow/internal/repository"
	"github.com/jmehdipour/actionflow/internal/service/ingest"
	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with a demo conversation",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		sqlDB, err := db.Open(cfg.Database)
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer sqlDB.Close()

		svc := ingest.New(sqlDB, repository.NewEventsRepository(sqlDB), repository.NewActionsRepository(sqlDB))

		log.Println(">> Seeding demo conversation...")

		convID, err := seedConversation(cmd.Context(), svc)
		if err != nil {
			return err
		}

		p, err := svc.Status(cmd.Context(), convID)
		if err != nil {
			return err
		}
		log.Printf(">> Seed completed: conversation=%s status=%s missing=%v", convID, p.Status, p.Missing)
		return nil
	},
}

// seedConversation records an escalated conversation with one customer email
// outstanding, plus the outbound actions it triggered.
func seedConversation(ctx context.Context, svc *ingest.Service) (string, error) {
	convID := "demo-" + time.Now().UTC().Format("20060102150405")
	base := time.Now().Add(-time.Hour)

	steps := []ingest.Envelope{
		{
			Event: model.Event{ConversationID: convID, Type: model.EventAssetUploaded, Actor: "customer", CreatedAt: base},
		},
		{
			Event: model.Event{
				ConversationID: convID,
				Type:           model.EventEscalationSent,
				Subtype:        model.SubtypeDesign,
				Actor:          "agent:demo",
				Payload:        model.Payload{"reason": "custom artwork"},
				CreatedAt:      base.Add(time.Minute),
			},
			Actions: []model.Action{
				{Type: model.ActionEmailSend, Channel: "email", Payload: model.Payload{"to": "customer@example.com", "template": "escalated"}},
				{Type: model.ActionDMSend, Channel: "instagram", Payload: model.Payload{"text": "We're on it!"}},
			},
		},
		{
			Event: model.Event{ConversationID: convID, Type: model.EventQuoteDrafted, Actor: "agent:demo", CreatedAt: base.Add(2 * time.Minute)},
			Actions: []model.Action{
				{Type: model.ActionApproveMessage, Payload: model.Payload{"draft": "quote-1"}},
			},
		},
	}

	for _, env := range steps {
		if _, err := svc.Record(ctx, env); err != nil {
			return "", fmt.Errorf("seed %s: %w", env.Event.Type, err)
		}
	}
	return convID, nil
}
