package db

import (
	"context"
	"fmt"
	"time"

	_ "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/jmoiron/sqlx"
)

type ClickHouseOpts struct {
	DSN         string // clickhouse://default:@localhost:9000/actionflow?dial_timeout=5s
	Pool        MySQLOpts
	PingTimeout time.Duration // default 3s
}

// NewClickHouseConnection opens the reporting store. An empty DSN means
// reporting is disabled and (nil, nil) is returned.
func NewClickHouseConnection(opts ClickHouseOpts) (*sqlx.DB, error) {
	if opts.DSN == "" {
		return nil, nil
	}
	if opts.PingTimeout <= 0 {
		opts.PingTimeout = 3 * time.Second
	}
	db, err := sqlx.Open("clickhouse", opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}
	applyPool(db, opts.Pool)

	ctx, cancel := context.WithTimeout(context.Background(), opts.PingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}

	return db, nil
}
