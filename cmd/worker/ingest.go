package worker

import (
	"fmt"
	"log"
	"time"

	"github.com/jmehdipour/actionflow/internal/config"
	"github.com/jmehdipour/actionflow/internal/db"
	"github.com/jmehdipour/actionflow/internal/kafka"
	"github.com/jmehdipour/actionflow/internal/logger"
	"github.com/jmehdipour/actionflow/internal/metrics"
	"github.com/jmehdipour/actionflow/internal/repository"
	"github.com/jmehdipour/actionflow/internal/service/ingest"
	"github.com/jmehdipour/actionflow/internal/worker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Consume conversation envelopes from Kafka into the event log and outbox",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath(cmd))
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		logger.Init(cfg.Log.Level)
		defer func() { _ = logger.Log.Sync() }()

		metrics.MustRegister(prometheus.DefaultRegisterer)

		if len(cfg.Kafka.Brokers) == 0 || cfg.Kafka.IngestTopic == "" {
			return fmt.Errorf("kafka.brokers and kafka.ingest_topic are required")
		}

		dbx, err := db.Open(cfg.Database)
		if err != nil {
			return fmt.Errorf("%s connect: %w", cfg.Database.Driver, err)
		}
		defer dbx.Close()
		svc := ingest.New(dbx, repository.NewEventsRepository(dbx), repository.NewActionsRepository(dbx))

		groupID := cfg.Kafka.GroupID
		if groupID == "" {
			groupID = "actionflow"
		}
		groupID += "-ingest"

		consumer := kafka.NewConsumer(kafka.Config{
			Brokers:        cfg.Kafka.Brokers,
			Topic:          cfg.Kafka.IngestTopic,
			GroupID:        groupID,
			MinBytes:       cfg.Kafka.MinBytes,
			MaxBytes:       cfg.Kafka.MaxBytes,
			CommitInterval: time.Duration(cfg.Kafka.CommitInterval) * time.Millisecond,
		})
		defer consumer.Close()

		ctx, stop := signalContext()
		defer stop()

		log.Printf(">> ingest started topic=%s group=%s", cfg.Kafka.IngestTopic, groupID)

		return worker.NewIngestor(consumer, svc, logger.Log).Run(ctx)
	},
}
