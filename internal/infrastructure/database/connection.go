package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/snipekit/snipekit/internal/infrastructure/config"
)

// Pool wraps a pgx connection pool with liveness checks on acquire. Each
// logical task (request handler, scheduler subtask, parallel refresh worker)
// acquires its own connection; sessions are never shared across goroutines.
type Pool struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// Connect creates the connection pool and verifies the database is reachable.
func Connect(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*Pool, error) {
	pgCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		pgCfg.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MinIdleConns > 0 {
		pgCfg.MinConns = int32(cfg.MinIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		pgCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}
	pgCfg.MaxConnIdleTime = 10 * time.Minute
	pgCfg.HealthCheckPeriod = time.Minute
	pgCfg.ConnConfig.ConnectTimeout = 5 * time.Second
	pgCfg.ConnConfig.RuntimeParams = map[string]string{
		"application_name": "snipekit",
		"timezone":         "UTC",
	}

	// Pre-ping on acquire so a dead pooled connection is never handed to a
	// bid-window task.
	pgCfg.BeforeAcquire = func(ctx context.Context, conn *pgx.Conn) bool {
		pingCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
		defer cancel()
		return conn.Ping(pingCtx) == nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connection pool initialized",
		zap.Int32("max_conns", pgCfg.MaxConns))

	return &Pool{pool: pool, logger: logger}, nil
}

// Pgx exposes the underlying pgx pool.
func (p *Pool) Pgx() *pgxpool.Pool {
	return p.pool
}

// Ping checks database liveness.
func (p *Pool) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Transaction executes fn within a database transaction.
func (p *Pool) Transaction(ctx context.Context, fn func(pgx.Tx) error) error {
	return pgx.BeginTxFunc(ctx, p.pool, pgx.TxOptions{}, fn)
}

// Close closes all database connections.
func (p *Pool) Close() {
	p.pool.Close()
	p.logger.Info("database connection pool closed")
}
