// Package store persists discovery runs and the cross-run domain
// verification cache in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/contact-discovery/internal/discovery"
	"github.com/sells-group/contact-discovery/internal/verify"
)

// RunStatus tracks a discovery run's lifecycle.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run is a persisted discovery run.
type Run struct {
	ID        string               `json:"id"`
	Topic     string               `json:"topic"`
	SessionID string               `json:"session_id"`
	Status    RunStatus            `json:"status"`
	Result    *discovery.RunResult `json:"result,omitempty"`
	Error     string               `json:"error,omitempty"`
	CreatedAt time.Time            `json:"created_at"`
	UpdatedAt time.Time            `json:"updated_at"`
}

// SQLiteStore persists runs and domain checks using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS discovery_runs (
	id         TEXT PRIMARY KEY,
	topic      TEXT NOT NULL,
	session_id TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	result     TEXT,
	error      TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS domain_checks (
	domain       TEXT PRIMARY KEY,
	has_mx       INTEGER NOT NULL,
	mx_host      TEXT,
	is_catch_all INTEGER NOT NULL,
	checked_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_discovery_runs_status ON discovery_runs(status);
CREATE INDEX IF NOT EXISTS idx_discovery_runs_topic ON discovery_runs(topic);
CREATE INDEX IF NOT EXISTS idx_domain_checks_checked_at ON domain_checks(checked_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, topic, sessionID string) (*Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO discovery_runs (id, topic, session_id, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, topic, sessionID, string(RunStatusRunning), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &Run{
		ID:        id,
		Topic:     topic,
		SessionID: sessionID,
		Status:    RunStatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, result *discovery.RunResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal result")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE discovery_runs SET result = ?, status = ?, updated_at = ? WHERE id = ?`,
		string(resultJSON), string(RunStatusComplete), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) FailRun(ctx context.Context, runID string, runErr error) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE discovery_runs SET error = ?, status = ?, updated_at = ? WHERE id = ?`,
		runErr.Error(), string(RunStatusFailed), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, topic, session_id, status, result, error, created_at, updated_at FROM discovery_runs WHERE id = ?`,
		runID,
	)

	var r Run
	var resultJSON, errMsg sql.NullString
	err := row.Scan(&r.ID, &r.Topic, &r.SessionID, &r.Status, &resultJSON, &errMsg, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Errorf("run not found: %s", runID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	if resultJSON.Valid {
		r.Result = &discovery.RunResult{}
		if err := json.Unmarshal([]byte(resultJSON.String), r.Result); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal result")
		}
	}
	r.Error = errMsg.String
	return &r, nil
}

// SaveDomainCheck upserts a domain verification record. Implements
// verify.RecordSink.
func (s *SQLiteStore) SaveDomainCheck(ctx context.Context, rec verify.DomainRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO domain_checks (domain, has_mx, mx_host, is_catch_all, checked_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(domain) DO UPDATE SET
		   has_mx = excluded.has_mx,
		   mx_host = excluded.mx_host,
		   is_catch_all = excluded.is_catch_all,
		   checked_at = excluded.checked_at`,
		rec.Domain, rec.HasMX, rec.MXHost, rec.CatchAll, time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: save domain check %s", rec.Domain)
}

// LoadDomainChecks returns records newer than maxAge, for seeding the
// verifier. A zero maxAge loads everything.
func (s *SQLiteStore) LoadDomainChecks(ctx context.Context, maxAge time.Duration) ([]verify.DomainRecord, error) {
	query := `SELECT domain, has_mx, mx_host, is_catch_all FROM domain_checks`
	var args []any
	if maxAge > 0 {
		query += ` WHERE checked_at > ?`
		args = append(args, time.Now().UTC().Add(-maxAge))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load domain checks")
	}
	defer rows.Close()

	var recs []verify.DomainRecord
	for rows.Next() {
		var rec verify.DomainRecord
		var mxHost sql.NullString
		if err := rows.Scan(&rec.Domain, &rec.HasMX, &mxHost, &rec.CatchAll); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan domain check")
		}
		rec.MXHost = mxHost.String
		recs = append(recs, rec)
	}
	return recs, eris.Wrap(rows.Err(), "sqlite: load domain checks iterate")
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}
