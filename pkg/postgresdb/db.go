package postgresdb

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rahil234/SnapCart-sub000/internal/core/logger"
	"github.com/rahil234/SnapCart-sub000/pkg/config"
)

const defaultPingTimeout = 5 * time.Second

// Database is the shared *sqlx.DB pool for the wallet and stock repositories.
type Database struct {
	log logger.Logger
	*sqlx.DB
}

func NewPostgresDB(cfg config.DBConfig, log logger.Logger) (*Database, error) {
	db, err := sqlx.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	configurePool(db, cfg)

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultPingTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to %s:%d/%s: %w", cfg.Host, cfg.Port, cfg.Name, err)
	}

	log.Info("Connected to database",
		logger.StringField("host", cfg.Host),
		logger.StringField("name", cfg.Name),
		logger.IntField("max_open_conns", cfg.MaxOpenConns),
		logger.IntField("max_idle_conns", cfg.MaxIdleConns),
		logger.StringField("conn_max_lifetime", cfg.ConnMaxLifetime.String()))

	return &Database{log: log, DB: db}, nil
}

// configurePool applies the pool limits. Zero values keep database/sql defaults.
func configurePool(db *sqlx.DB, cfg config.DBConfig) {
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
}

func (db *Database) Close() error {
	stats := db.Stats()
	db.log.Info("Closing database connection",
		logger.IntField("open_connections", stats.OpenConnections),
		logger.IntField("in_use", stats.InUse))
	return db.DB.Close()
}
