package worker

import (
	"fmt"
	"log"

	"github.com/jmehdipour/actionflow/internal/config"
	"github.com/jmehdipour/actionflow/internal/db"
	"github.com/jmehdipour/actionflow/internal/logger"
	"github.com/jmehdipour/actionflow/internal/metrics"
	"github.com/jmehdipour/actionflow/internal/repository"
	"github.com/jmehdipour/actionflow/internal/worker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var reapOnce bool

var reapCmd = &cobra.Command{
	Use:   "reap",
	Short: "Return claims stuck in processing past worker.lease_timeout to the retry path",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath(cmd))
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		logger.Init(cfg.Log.Level)
		defer func() { _ = logger.Log.Sync() }()

		if cfg.Worker.LeaseTimeout <= 0 {
			return fmt.Errorf("worker.lease_timeout must be > 0 to reap")
		}
		metrics.MustRegister(prometheus.DefaultRegisterer)

		dbx, err := db.Open(cfg.Database)
		if err != nil {
			return fmt.Errorf("%s connect: %w", cfg.Database.Driver, err)
		}
		defer dbx.Close()

		r := worker.NewReaper(repository.NewActionsRepository(dbx),
			cfg.Worker.LeaseTimeout, cfg.Worker.ReapInterval, cfg.Worker.MaxAttempts, logger.Log)

		ctx, stop := signalContext()
		defer stop()

		if reapOnce {
			n, err := r.RunOnce(ctx)
			if err != nil {
				return err
			}
			log.Printf(">> reaped %d stale claims", n)
			return nil
		}

		log.Printf(">> reaper started lease=%s interval=%s", cfg.Worker.LeaseTimeout, cfg.Worker.ReapInterval)
		return r.Run(ctx)
	},
}

func init() {
	reapCmd.Flags().BoolVar(&reapOnce, "once", false, "reap a single pass and exit")
}
