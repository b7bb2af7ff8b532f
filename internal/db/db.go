// Package db opens the Postgres pool and applies schema migrations.
package db

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/logger"
)

const DefaultMigrationsDir = "migrations"

// NewPool connects to databaseURL and registers the pgvector types on every
// connection.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// SourceURL turns a migrations directory into a golang-migrate source URL.
func SourceURL(dir string) (string, error) {
	if dir == "" {
		dir = DefaultMigrationsDir
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	return "file://" + filepath.ToSlash(abs), nil
}

// Migrate applies every pending up migration in dir.
func Migrate(databaseURL, dir string) error {
	source, err := SourceURL(dir)
	if err != nil {
		return fmt.Errorf("resolve migrations dir: %w", err)
	}

	m, err := migrate.New(source, databaseURL)
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if err := errors.Join(srcErr, dbErr); err != nil {
			logger.Warn("[DB][Migrate] Failed to close migrator", "err", err)
		}
	}()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Debug("[DB][Migrate] Schema up to date")
			return nil
		}
		return fmt.Errorf("apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	logger.Info("[DB][Migrate] Schema migrated", "version", version, "dirty", dirty)
	return nil
}
