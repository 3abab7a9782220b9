// Package store persists terminal outcomes to an append-only PostgreSQL journal.
// Nothing in a run reads the journal back.
package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/renewbot/api/schemas"
	"github.com/xkilldash9x/renewbot/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var tableNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ErrInvalidTable is returned for a journal table name that is not a plain identifier.
var ErrInvalidTable = errors.New("invalid journal table name")

// DBPool abstracts pgxpool.Pool so the journal can be tested with pgxmock.
type DBPool interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Journal writes one row per terminal outcome notice.
type Journal struct {
	pool  DBPool
	table string
	log   *zap.Logger
	now   func() time.Time
}

// New verifies the connection and creates the journal table if needed.
func New(ctx context.Context, pool DBPool, table string, logger *zap.Logger) (*Journal, error) {
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTable, table)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	j := &Journal{
		pool:  pool,
		table: pgx.Identifier{table}.Sanitize(),
		log:   logger.Named("store"),
		now:   time.Now,
	}
	if _, err := pool.Exec(ctx, j.createTableSQL()); err != nil {
		return nil, fmt.Errorf("failed to create journal table: %w", err)
	}
	return j, nil
}

// Connect opens a pool for cfg.URL and wraps it in a Journal. The returned
// close function releases the pool.
func Connect(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*Journal, func(), error) {
	pool, err := pgxpool.New(ctx, cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create database pool: %w", err)
	}
	j, err := New(ctx, pool, cfg.Table, logger)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return j, pool.Close, nil
}

func (j *Journal) createTableSQL() string {
	return fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s (
            id UUID PRIMARY KEY,
            run_id TEXT NOT NULL,
            identifier TEXT NOT NULL,
            status TEXT NOT NULL,
            message TEXT NOT NULL,
            resource JSONB,
            evidence_path TEXT,
            started_at TIMESTAMPTZ NOT NULL,
            recorded_at TIMESTAMPTZ NOT NULL
        );
    `, j.table)
}

func (j *Journal) insertSQL() string {
	return fmt.Sprintf(`
        INSERT INTO %s (id, run_id, identifier, status, message, resource, evidence_path, started_at, recorded_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);
    `, j.table)
}

// Name identifies the sink in logs.
func (j *Journal) Name() string {
	return "journal"
}

// Deliver records outcome notices. Progress notices are ignored.
func (j *Journal) Deliver(ctx context.Context, n schemas.Notice) error {
	if n.Kind != schemas.NoticeOutcome || n.Outcome == nil {
		return nil
	}
	o := n.Outcome

	var resource []byte
	if n.Resource != nil {
		b, err := json.Marshal(n.Resource)
		if err != nil {
			return fmt.Errorf("failed to encode resource record: %w", err)
		}
		resource = b
	}
	var evidencePath *string
	if n.Shot != nil {
		evidencePath = &n.Shot.Path
	}

	_, err := j.pool.Exec(ctx, j.insertSQL(),
		uuid.NewString(), o.RunID, o.Identifier, string(o.Status), o.Message,
		resource, evidencePath, o.StartedAt.UTC(), j.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record outcome: %w", err)
	}
	j.log.Debug("Outcome recorded.", zap.String("identifier", o.Identifier), zap.String("status", string(o.Status)))
	return nil
}
