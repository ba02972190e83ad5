package worker

import (
	"fmt"
	"log"

	"github.com/jmehdipour/actionflow/internal/config"
	"github.com/jmehdipour/actionflow/internal/db"
	"github.com/jmehdipour/actionflow/internal/logger"
	"github.com/jmehdipour/actionflow/internal/metrics"
	"github.com/jmehdipour/actionflow/internal/model"
	"github.com/jmehdipour/actionflow/internal/repository"
	"github.com/jmehdipour/actionflow/internal/worker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Poll the action outbox and execute pending actions",
	RunE: func(cmd *cobra.Command, args []string) error {
		// 1) load config
		cfg, err := config.Load(configPath(cmd))
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		logger.Init(cfg.Log.Level)
		defer func() { _ = logger.Log.Sync() }()

		metrics.MustRegister(prometheus.DefaultRegisterer)

		// 2) primary store
		dbx, err := db.Open(cfg.Database)
		if err != nil {
			return fmt.Errorf("%s connect: %w", cfg.Database.Driver, err)
		}
		defer dbx.Close()
		actionsRepo := repository.NewActionsRepository(dbx)

		// 3) executors
		reg, closeExecs, err := buildRegistry(cfg, logger.Log)
		if err != nil {
			return err
		}
		defer closeExecs()

		w := worker.New(actionsRepo, reg, worker.Config{
			BatchSize:       cfg.Worker.BatchSize,
			MaxAttempts:     cfg.Worker.MaxAttempts,
			Concurrency:     cfg.Worker.Concurrency,
			PollInterval:    cfg.Worker.PollInterval,
			ExecutorTimeout: cfg.Worker.ExecutorTimeout,
			ActionTypes:     actionTypes(cfg.Worker.ActionTypes),
		}, logger.Log)
		reaper := worker.NewReaper(actionsRepo, cfg.Worker.LeaseTimeout, cfg.Worker.ReapInterval, cfg.Worker.MaxAttempts, logger.Log)

		// 4) graceful shutdown
		ctx, stop := signalContext()
		defer stop()

		log.Printf(">> worker started batch=%d concurrency=%d poll=%s types=%v executors=%v reaper=%t",
			cfg.Worker.BatchSize, cfg.Worker.Concurrency, cfg.Worker.PollInterval,
			cfg.Worker.ActionTypes, reg.Types(), reaper.Enabled())

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error { return w.Run(ctx) })
		if reaper.Enabled() {
			g.Go(func() error { return reaper.Run(ctx) })
		}
		return g.Wait()
	},
}

func actionTypes(raw []string) []model.ActionType {
	out := make([]model.ActionType, 0, len(raw))
	for _, s := range raw {
		if t, _ := model.ParseActionType(s); t != "" {
			out = append(out, t)
		}
	}
	return out
}
