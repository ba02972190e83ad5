package worker

import (
	"fmt"
	"strings"

	"github.com/jmehdipour/actionflow/internal/config"
	"github.com/jmehdipour/actionflow/internal/db"
	"github.com/jmehdipour/actionflow/internal/dispatcher"
	"github.com/jmehdipour/actionflow/internal/executor"
	"github.com/jmehdipour/actionflow/internal/kafka"
	"github.com/jmehdipour/actionflow/internal/model"
	"go.uber.org/zap"
)

// buildRegistry registers a Kafka publisher for every delivery topic and an
// HTTP delivery for every provider route. The returned func releases the
// producer and redis client.
func buildRegistry(cfg config.Config, log *zap.Logger) (*executor.Registry, func(), error) {
	closers := []func() error{}
	closeAll := func() {
		for _, c := range closers {
			_ = c()
		}
	}

	rdb, err := db.NewRedisClient(db.RedisOpts{
		Addr:        cfg.Redis.Addr,
		Password:    cfg.Redis.Password,
		DB:          cfg.Redis.DB,
		DialTimeout: cfg.Redis.DialTimeout,
	})
	if err != nil {
		return nil, closeAll, fmt.Errorf("redis connect: %w", err)
	}
	var guard *executor.RedisGuard
	if rdb != nil {
		closers = append(closers, rdb.Close)
		guard = executor.NewRedisGuard(rdb, cfg.Redis.DedupeTTL)
	}

	reg := executor.NewRegistry()
	register := func(t model.ActionType, e executor.Executor) {
		if err := reg.Register(t, executor.Deduped(guard, e, log)); err != nil {
			log.Warn("executor skipped", zap.String("action_type", t.String()), zap.Error(err))
		}
	}

	// broker deliveries
	if len(cfg.Kafka.Brokers) > 0 && len(cfg.Kafka.DeliveryTopics) > 0 {
		producer := kafka.NewProducer(cfg.Kafka.Brokers)
		closers = append(closers, producer.Close)
		for typ, topic := range cfg.Kafka.DeliveryTopics {
			t, _ := model.ParseActionType(typ)
			register(t, executor.NewPublish(producer, topic))
		}
	}

	// providers -> dispatcher
	var provs []dispatcher.Provider
	for _, pc := range cfg.Providers {
		if !pc.Enabled || strings.TrimSpace(pc.BaseURL) == "" || len(pc.Routes) == 0 {
			continue
		}
		provs = append(provs,
			dispatcher.NewHTTPProvider(
				pc.Name,
				strings.TrimRight(pc.BaseURL, "/"),
				pc.Routes,
				pc.TimeoutMs,
				pc.Breaker.FailThreshold,
				pc.Breaker.OpenForMs,
			),
		)
	}
	if len(provs) > 0 {
		disp := dispatcher.NewDispatcher(provs)
		for _, route := range disp.Routes() {
			t, _ := model.ParseActionType(route)
			register(t, executor.NewHTTPDelivery(disp, route))
		}
	}

	return reg, closeAll, nil
}
