// Package audit keeps a local, queryable log of decisions in SQLite.
// Writes happen off the request path; a failed write loses one audit row,
// never a response.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/decisionlab/risk-engine/internal/service"
)

// Entry is one persisted decision.
type Entry struct {
	ID           int64     `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	Caller       string    `json:"caller"`
	Endpoint     string    `json:"endpoint"`
	Probability  float64   `json:"risk_probability"`
	Label        string    `json:"risk_label"`
	Decision     string    `json:"decision"`
	ExpectedLoss float64   `json:"expected_loss_usd"`
	Warnings     []string  `json:"warnings"`
	ReasonCodes  []string  `json:"reason_codes"`
	ModelVersion string    `json:"model_version"`
}

// Log is the SQLite-backed decision log.
type Log struct {
	db     *sql.DB
	insert *sql.Stmt
}

const schema = `
CREATE TABLE IF NOT EXISTS decisions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	caller TEXT NOT NULL,
	endpoint TEXT NOT NULL,
	risk_probability REAL NOT NULL,
	risk_label TEXT NOT NULL,
	decision TEXT NOT NULL,
	expected_loss_usd REAL NOT NULL,
	warnings TEXT NOT NULL,
	reason_codes TEXT NOT NULL,
	model_version TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_decisions_created_at ON decisions(created_at);
CREATE INDEX IF NOT EXISTS idx_decisions_caller ON decisions(caller);
`

// Open creates or opens the decision log at path.
func Open(path string) (*Log, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating audit directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening audit db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing audit schema: %w", err)
	}

	insert, err := db.Prepare(`INSERT INTO decisions
		(caller, endpoint, risk_probability, risk_label, decision, expected_loss_usd, warnings, reason_codes, model_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("preparing audit insert: %w", err)
	}

	slog.Info("Audit log opened", "path", path)
	return &Log{db: db, insert: insert}, nil
}

// Record persists one decision. Failures are logged and dropped.
func (l *Log) Record(ctx context.Context, caller, endpoint string, rec service.DecisionRecord) {
	warnings, _ := json.Marshal(rec.Warnings)
	codes, _ := json.Marshal(rec.ReasonCodes)
	_, err := l.insert.ExecContext(ctx,
		caller, endpoint, rec.Probability, rec.Label, string(rec.Decision),
		rec.ExpectedLoss, string(warnings), string(codes), rec.ModelVersion)
	if err != nil {
		slog.Warn("audit write failed", "caller", caller, "error", err)
	}
}

// Recent returns the newest entries, newest first.
func (l *Log) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit < 1 || limit > 500 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx, `SELECT
		id, created_at, caller, endpoint, risk_probability, risk_label, decision,
		expected_loss_usd, warnings, reason_codes, model_version
		FROM decisions ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying audit log: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var warnings, codes string
		if err := rows.Scan(&e.ID, &e.CreatedAt, &e.Caller, &e.Endpoint, &e.Probability,
			&e.Label, &e.Decision, &e.ExpectedLoss, &warnings, &codes, &e.ModelVersion); err != nil {
			return nil, fmt.Errorf("scanning audit row: %w", err)
		}
		_ = json.Unmarshal([]byte(warnings), &e.Warnings)
		_ = json.Unmarshal([]byte(codes), &e.ReasonCodes)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close releases the database handle.
func (l *Log) Close() error {
	if l.insert != nil {
		l.insert.Close()
	}
	return l.db.Close()
}
