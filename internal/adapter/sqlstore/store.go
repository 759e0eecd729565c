// Package sqlstore persists decisions for audit and serves them back by id.
// It runs on SQLite (modernc.org/sqlite) or PostgreSQL (lib/pq).
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/couchcryptid/launch-advisor/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS decisions (
	id          TEXT PRIMARY KEY,
	site_code   TEXT NOT NULL,
	launch_time TEXT NOT NULL,
	verdict     TEXT NOT NULL,
	risk_score  INTEGER NOT NULL,
	decided_at  TEXT NOT NULL,
	payload     TEXT NOT NULL
)`

const insertDecision = `
	INSERT INTO decisions (id, site_code, launch_time, verdict, risk_score, decided_at, payload)
	VALUES (?, ?, ?, ?, ?, ?, ?)`

const selectDecision = `SELECT id, payload FROM decisions WHERE id = ?`

// Store is a SQL-backed decision audit log.
type Store struct {
	db *sqlx.DB
}

// Open connects with the given driver ("sqlite" or "postgres") and creates
// the schema if needed.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	if driver != "sqlite" && driver != "postgres" {
		return nil, fmt.Errorf("unsupported audit driver %q", driver)
	}
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s db: %w", driver, err)
	}
	if driver == "sqlite" {
		// One connection keeps :memory: databases shared and serializes writers.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s db: %w", driver, err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Name identifies the sink in metrics and logs.
func (s *Store) Name() string { return "sql" }

// Record inserts the decision. Decision ids are unique, so recording the same
// decision twice is an error.
func (s *Store) Record(ctx context.Context, d domain.DecisionResult) error {
	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("serialize decision: %w", err)
	}
	_, err = s.db.ExecContext(ctx, s.db.Rebind(insertDecision),
		d.ID,
		d.SiteCode,
		d.LaunchTime.UTC().Format(time.RFC3339),
		string(d.Verdict),
		d.RiskScore,
		d.DecidedAt.UTC().Format(time.RFC3339Nano),
		string(payload),
	)
	if err != nil {
		return fmt.Errorf("insert decision %s: %w", d.ID, err)
	}
	return nil
}

type decisionRow struct {
	ID      string `db:"id"`
	Payload string `db:"payload"`
}

// Get returns the stored decision or domain.ErrDecisionNotFound.
func (s *Store) Get(ctx context.Context, id string) (domain.DecisionResult, error) {
	var row decisionRow
	if err := s.db.GetContext(ctx, &row, s.db.Rebind(selectDecision), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.DecisionResult{}, domain.ErrDecisionNotFound
		}
		return domain.DecisionResult{}, fmt.Errorf("select decision %s: %w", id, err)
	}

	var d domain.DecisionResult
	if err := json.Unmarshal([]byte(row.Payload), &d); err != nil {
		return domain.DecisionResult{}, fmt.Errorf("decode decision %s: %w", id, err)
	}
	return d, nil
}

// CheckReadiness pings the database.
func (s *Store) CheckReadiness(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}
