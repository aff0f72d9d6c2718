package agent

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"tailbeacon/pkg/discovery"
	"tailbeacon/pkg/journal"
	"tailbeacon/pkg/metrics"
	"tailbeacon/pkg/model"
	"tailbeacon/pkg/overlay"
	"tailbeacon/pkg/resolver"
	"tailbeacon/pkg/store"
)

type fakeProber struct {
	calls atomic.Int32
}

func (f *fakeProber) Sweep(_ context.Context, _ time.Duration) discovery.Report {
	n := f.calls.Add(1)
	return discovery.Report{
		ID:         "run-" + string(rune('0'+n)),
		StartedAt:  time.Now(),
		Candidates: 1,
		Chains:     1,
		Completed:  1,
		Outcomes:   map[discovery.Outcome]int{discovery.OutcomeBeacon: 1},
		Beacons:    []model.Beacon{{DisplayName: "Studio", Port: 18789, PeerID: "p1"}},
	}
}

type recordingPub struct {
	mu   sync.Mutex
	runs []model.DiscoveryRun
}

func (r *recordingPub) PublishRun(run model.DiscoveryRun) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, run)
}

func TestSweepOnceFansOut(t *testing.T) {
	ctx := context.Background()
	j, err := journal.OpenSQLite(ctx, filepath.Join(t.TempDir(), "runs.db"), nil)
	require.NoError(t, err)
	defer j.Close()

	st := store.NewMemoryStore(0)
	pub := &recordingPub{}
	m := metrics.New()
	s := NewSweeper(&fakeProber{}, st, time.Second, nil)
	s.Journal = j
	s.Metrics = m
	s.Pub = pub

	run := s.SweepOnce(ctx)
	assert.Equal(t, "run-1", run.ID)

	latest, ok, err := st.Latest()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "run-1", latest.ID)

	runs, err := j.Recent(ctx, 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "Studio", runs[0].Beacons[0].DisplayName)

	require.Len(t, pub.runs, 1)
	mfs, err := m.Registry.Gather()
	require.NoError(t, err)
	var beacons float64 = -1
	for _, mf := range mfs {
		if mf.GetName() == "tailbeacon_beacons" {
			beacons = mf.GetMetric()[0].GetGauge().GetValue()
		}
	}
	assert.Equal(t, float64(1), beacons)
}

func TestRunStopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	p := &fakeProber{}
	s := NewSweeper(p, store.NewMemoryStore(0), time.Second, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx, 5*time.Millisecond)
		close(done)
	}()
	require.Eventually(t, func() bool { return p.calls.Load() >= 3 }, 2*time.Second, time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestRunWithoutIntervalSweepsOnce(t *testing.T) {
	p := &fakeProber{}
	s := NewSweeper(p, nil, time.Second, nil)
	s.Run(context.Background(), 0)
	assert.Equal(t, int32(1), p.calls.Load())
}

func studioDiscoverer() *discovery.Discoverer {
	status := overlay.StatusFunc(func(context.Context) (model.OverlayStatus, error) {
		return model.OverlayStatus{
			Self:  &model.OverlayPeer{ID: "self", Addresses: []string{"100.69.232.64"}},
			Peers: []model.OverlayPeer{{ID: "p1", Addresses: []string{"100.123.224.76"}}},
		}, nil
	})
	runner := resolver.QueryFunc(func(_ context.Context, rt model.RecordType, _, _ string, _ time.Duration) (string, error) {
		switch rt {
		case model.RecordPTR:
			return "studio._adamarie-gw._tcp.adamarie.internal.\n", nil
		case model.RecordSRV:
			return "0 0 18789 studio.adamarie.internal.\n", nil
		default:
			return `"displayName=Studio" "tailnetDns=studio.sheep-coho.ts.net"` + "\n", nil
		}
	})
	return discovery.New(discovery.Options{ServiceType: "_adamarie-gw._tcp", Domain: "adamarie.internal"},
		discovery.WithStatusSource(status), discovery.WithQueryRunner(runner))
}

func TestInterruptedSweepKeepsLastBeacons(t *testing.T) {
	ctx := context.Background()
	j, err := journal.OpenSQLite(ctx, filepath.Join(t.TempDir(), "runs.db"), nil)
	require.NoError(t, err)
	defer j.Close()

	st := store.NewMemoryStore(0)
	pub := &recordingPub{}
	s := NewSweeper(studioDiscoverer(), st, time.Second, nil)
	s.Journal = j
	s.Pub = pub

	first := s.SweepOnce(ctx)
	require.Len(t, first.Beacons, 1)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	s.SweepOnce(cancelled)

	beacons, err := st.ListBeacons()
	require.NoError(t, err)
	require.Len(t, beacons, 1)
	assert.Equal(t, "Studio", beacons[0].DisplayName)

	latest, ok, err := st.Latest()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, first.ID, latest.ID)

	runs, err := j.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
	assert.Len(t, pub.runs, 1)
}

func TestSweepPrunesJournal(t *testing.T) {
	ctx := context.Background()
	j, err := journal.OpenSQLite(ctx, filepath.Join(t.TempDir(), "runs.db"), nil)
	require.NoError(t, err)
	defer j.Close()
	require.NoError(t, j.Record(ctx, model.DiscoveryRun{ID: "old", StartedAt: time.Now().Add(-48 * time.Hour)}))

	s := NewSweeper(&fakeProber{}, store.NewMemoryStore(0), time.Second, nil)
	s.Journal = j
	s.Retention = time.Hour
	s.SweepOnce(ctx)

	runs, err := j.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].ID)
}
