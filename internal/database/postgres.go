package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/newrelic/go-agent/v3/integrations/nrpq"
)

const connectTimeout = 5 * time.Second

// PostgresDB wraps the rides store connection. Every conditional write the
// dispatcher relies on runs against this single pool.
type PostgresDB struct {
	*sqlx.DB
}

func NewPostgres(databaseURL string, maxConns, maxIdleConns int) (*PostgresDB, error) {
	// nrpq wraps lib/pq so queries show up as traced datastore segments
	db, err := sqlx.Connect("nrpostgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresDB{DB: db}, nil
}

func (p *PostgresDB) Close() error {
	return p.DB.Close()
}

func (p *PostgresDB) Health(ctx context.Context) error {
	return p.PingContext(ctx)
}
