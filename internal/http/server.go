package http

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/jmehdipour/actionflow/internal/config"
	"github.com/jmehdipour/actionflow/internal/http/middleware"
	"github.com/jmehdipour/actionflow/internal/metrics"
	"github.com/jmehdipour/actionflow/internal/repository"
	"github.com/jmehdipour/actionflow/internal/service/ingest"
	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

type Server struct{ e *echo.Echo }

// NewServer wires the API. clickhouseDB and rds may be nil: reports answer
// 503 and rate limiting is skipped.
func NewServer(cfg config.Config, primaryDB, clickhouseDB *sqlx.DB, rds *redis.Client) *Server {
	// repos (primary)
	eventsRepo := repository.NewEventsRepository(primaryDB)
	actionsRepo := repository.NewActionsRepository(primaryDB)
	receiptsRepo := repository.NewReceiptsRepository(primaryDB)

	// repos (ClickHouse)
	var chReceiptsRepo repository.CHReceiptsRepository
	if clickhouseDB != nil {
		chReceiptsRepo = repository.NewCHReceiptsRepository(clickhouseDB)
	}

	// services
	ingestSvc := ingest.New(primaryDB, eventsRepo, actionsRepo)

	// echo
	e := echo.New()
	e.HideBanner = true
	e.Use(echoMid.Recover(), echoMid.Logger())

	metrics.MustRegister(prometheus.DefaultRegisterer)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// health
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	// middlewares
	authMW := middleware.APIKeyMiddleware(cfg.Auth.APIKeys)
	rlMW := middleware.RateLimitMiddleware(middleware.RateLimitConfig{
		Redis:          rds,
		DefaultRPS:     cfg.RateLimit.RPS,
		KeyPrefix:      "rl:client:",
		Window:         time.Second,
		RetryAfterHint: true,
	})

	// routes
	v1 := e.Group("/v1", authMW, rlMW)
	v1.POST("/conversations/:id/events", appendEventHandler(ingestSvc))
	v1.GET("/conversations/:id/events", listEventsHandler(ingestSvc))
	v1.GET("/conversations/:id/status", statusHandler(ingestSvc))
	v1.POST("/actions", enqueueActionHandler(ingestSvc))
	v1.GET("/actions/:id", getActionHandler(actionsRepo))
	v1.GET("/actions/:id/receipts", listReceiptsHandler(receiptsRepo))
	v1.GET("/reports/receipts", receiptsReportHandler(chReceiptsRepo))

	return &Server{e: e}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.e.ServeHTTP(w, r) }

func (s *Server) Start(addr string) error {
	log.Printf("http: listening on %s", addr)
	return s.e.Start(addr)
}
func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }
