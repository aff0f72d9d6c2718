// Package journal persists a record of every discovery sweep.
package journal

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"tailbeacon/pkg/model"
)

// Journal records sweeps and returns the most recent ones.
type Journal interface {
	Record(ctx context.Context, run model.DiscoveryRun) error
	Recent(ctx context.Context, limit int) ([]model.DiscoveryRun, error)
	// Prune drops runs started before the cutoff and reports how many went.
	Prune(ctx context.Context, before time.Time) (int64, error)
	Close() error
}

const defaultRecent = 20

// Open picks MySQL when mysqlDSN is set, SQLite at sqlitePath otherwise.
func Open(ctx context.Context, sqlitePath, mysqlDSN string, log *zap.Logger) (Journal, error) {
	if mysqlDSN != "" {
		return OpenMySQL(mysqlDSN, log)
	}
	return OpenSQLite(ctx, sqlitePath, log)
}

func encodeRun(run model.DiscoveryRun) (string, error) {
	b, err := json.Marshal(run)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeRun(body string) (model.DiscoveryRun, error) {
	var run model.DiscoveryRun
	err := json.Unmarshal([]byte(body), &run)
	return run, err
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultRecent
	}
	return limit
}

func opTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, 2*time.Second)
}
