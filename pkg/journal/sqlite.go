package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"tailbeacon/pkg/logging"
	"tailbeacon/pkg/model"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS discovery_runs(
	id TEXT PRIMARY KEY,
	started_at INTEGER,
	duration_ms INTEGER,
	status_ok INTEGER,
	candidates INTEGER,
	chains INTEGER,
	beacons INTEGER,
	body TEXT
);
CREATE INDEX IF NOT EXISTS idx_discovery_runs_started ON discovery_runs(started_at);`

// SQLite is the default journal, a single local database file.
type SQLite struct {
	db  *sql.DB
	log *zap.Logger
}

func OpenSQLite(ctx context.Context, path string, log *zap.Logger) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("sqlite mkdir: %w", err)
	}
	dsn := "file:" + path + "?_pragma=busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	db.SetMaxOpenConns(1)
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	return &SQLite{db: db, log: logging.OrNop(log).Named("journal")}, nil
}

func (s *SQLite) Record(ctx context.Context, run model.DiscoveryRun) error {
	body, err := encodeRun(run)
	if err != nil {
		return err
	}
	ctx, cancel := opTimeout(ctx)
	defer cancel()
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO discovery_runs(id, started_at, duration_ms, status_ok, candidates, chains, beacons, body) VALUES(?,?,?,?,?,?,?,?)`,
		run.ID, run.StartedAt.UnixNano(), run.DurationMs, run.StatusOK, run.Candidates, run.Chains, len(run.Beacons), body)
	if err != nil {
		return fmt.Errorf("record run %s: %w", run.ID, err)
	}
	return nil
}

// Recent returns up to limit runs, newest first.
func (s *SQLite) Recent(ctx context.Context, limit int) ([]model.DiscoveryRun, error) {
	ctx, cancel := opTimeout(ctx)
	defer cancel()
	rows, err := s.db.QueryContext(ctx, `SELECT body FROM discovery_runs ORDER BY started_at DESC LIMIT ?`, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.DiscoveryRun{}
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		run, err := decodeRun(body)
		if err != nil {
			s.log.Warn("skip undecodable run", zap.Error(err))
			continue
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func (s *SQLite) Prune(ctx context.Context, before time.Time) (int64, error) {
	ctx, cancel := opTimeout(ctx)
	defer cancel()
	res, err := s.db.ExecContext(ctx, `DELETE FROM discovery_runs WHERE started_at < ?`, before.UnixNano())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SQLite) Close() error { return s.db.Close() }
