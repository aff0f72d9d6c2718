package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tailbeacon/pkg/model"
)

func sampleRun(id string, at time.Time) model.DiscoveryRun {
	gp := 18789
	return model.DiscoveryRun{
		ID:         id,
		StartedAt:  at,
		DurationMs: 412,
		StatusOK:   true,
		Candidates: 1,
		Chains:     1,
		Completed:  1,
		Outcomes:   map[string]int{"beacon": 1},
		Beacons: []model.Beacon{{
			DisplayName: "Peter’s Mac Studio",
			Port:        18789,
			GatewayPort: &gp,
			TailnetDNS:  "peters-mac-studio-1.sheep-coho.ts.net",
		}},
	}
}

func TestSQLiteRecordAndRecent(t *testing.T) {
	ctx := context.Background()
	j, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "nested", "runs.db"), nil)
	require.NoError(t, err)
	defer j.Close()

	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, j.Record(ctx, sampleRun("a", base)))
	require.NoError(t, j.Record(ctx, sampleRun("b", base.Add(time.Minute))))
	require.NoError(t, j.Record(ctx, sampleRun("c", base.Add(2*time.Minute))))

	runs, err := j.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "c", runs[0].ID)
	assert.Equal(t, "b", runs[1].ID)
	require.Len(t, runs[0].Beacons, 1)
	assert.Equal(t, "Peter’s Mac Studio", runs[0].Beacons[0].DisplayName)
	require.NotNil(t, runs[0].Beacons[0].GatewayPort)
	assert.Equal(t, 18789, *runs[0].Beacons[0].GatewayPort)
	assert.Equal(t, 1, runs[0].Outcomes["beacon"])

	n, err := j.Prune(ctx, base.Add(90*time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	runs, err = j.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "c", runs[0].ID)
}

func TestSQLiteRecordReplacesSameID(t *testing.T) {
	ctx := context.Background()
	j, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "runs.db"), nil)
	require.NoError(t, err)
	defer j.Close()

	run := sampleRun("same", time.Now())
	require.NoError(t, j.Record(ctx, run))
	run.Beacons = nil
	require.NoError(t, j.Record(ctx, run))
	runs, err := j.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Empty(t, runs[0].Beacons)
}

func TestOpenDefaultsToSQLite(t *testing.T) {
	j, err := Open(context.Background(), filepath.Join(t.TempDir(), "runs.db"), "", nil)
	require.NoError(t, err)
	defer j.Close()
	_, ok := j.(*SQLite)
	assert.True(t, ok)
}

func TestNewRunRecord(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	rec, err := newRunRecord(sampleRun("x", at))
	require.NoError(t, err)
	assert.Equal(t, "x", rec.ID)
	assert.Equal(t, 1, rec.Beacons)
	assert.True(t, rec.StatusOK)
	back, err := decodeRun(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, "x", back.ID)
	assert.True(t, back.StartedAt.Equal(at))
}
