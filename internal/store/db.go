package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
)

// Pool sizes the database/sql pool in front of pgx. Zero fields take the
// defaults from DefaultPool.
type Pool struct {
	MaxOpen     int
	MaxIdle     int
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
	// AppName is reported to Postgres as application_name.
	AppName string
}

// DefaultPool suits a single API or worker process.
func DefaultPool() Pool {
	return Pool{
		MaxOpen:     20,
		MaxIdle:     10,
		MaxLifetime: 30 * time.Minute,
		MaxIdleTime: 5 * time.Minute,
		AppName:     "stride",
	}
}

func (p Pool) withDefaults() Pool {
	d := DefaultPool()
	if p.MaxOpen <= 0 {
		p.MaxOpen = d.MaxOpen
	}
	if p.MaxIdle <= 0 {
		p.MaxIdle = d.MaxIdle
	}
	if p.MaxIdle > p.MaxOpen {
		p.MaxIdle = p.MaxOpen
	}
	if p.MaxLifetime <= 0 {
		p.MaxLifetime = d.MaxLifetime
	}
	if p.MaxIdleTime <= 0 {
		p.MaxIdleTime = d.MaxIdleTime
	}
	if p.AppName == "" {
		p.AppName = d.AppName
	}
	return p
}

// Open parses databaseURL with pgx, registers it with database/sql and
// verifies the connection. The pool is closed again if the ping fails.
func Open(ctx context.Context, databaseURL string, pool Pool) (*sql.DB, error) {
	connConfig, err := pgx.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	pool = pool.withDefaults()
	if _, ok := connConfig.RuntimeParams["application_name"]; !ok {
		connConfig.RuntimeParams["application_name"] = pool.AppName
	}

	db := stdlib.OpenDB(*connConfig)
	db.SetMaxOpenConns(pool.MaxOpen)
	db.SetMaxIdleConns(pool.MaxIdle)
	db.SetConnMaxLifetime(pool.MaxLifetime)
	db.SetConnMaxIdleTime(pool.MaxIdleTime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return db, nil
}
