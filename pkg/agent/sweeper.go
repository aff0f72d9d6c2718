package agent

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"tailbeacon/pkg/discovery"
	"tailbeacon/pkg/journal"
	"tailbeacon/pkg/logging"
	"tailbeacon/pkg/metrics"
	"tailbeacon/pkg/model"
	"tailbeacon/pkg/store"
)

// Prober runs one discovery sweep. *discovery.Discoverer satisfies it.
type Prober interface {
	Sweep(ctx context.Context, timeout time.Duration) discovery.Report
}

// Publisher receives every completed run, e.g. websocket subscribers.
type Publisher interface {
	PublishRun(run model.DiscoveryRun)
}

// Sweeper runs discovery and fans the result out to the store, journal,
// metrics and subscribers. Sweeps never overlap.
type Sweeper struct {
	Prober  Prober
	Store   store.BeaconStore
	Journal journal.Journal // optional
	Metrics *metrics.Metrics
	Pub     Publisher // optional
	Timeout time.Duration
	// Retention bounds the journal; runs older than this are pruned after
	// each sweep. Zero keeps everything.
	Retention time.Duration

	log *zap.Logger
	mu  sync.Mutex
}

func NewSweeper(p Prober, st store.BeaconStore, timeout time.Duration, log *zap.Logger) *Sweeper {
	return &Sweeper{Prober: p, Store: st, Timeout: timeout, log: logging.OrNop(log).Named("sweeper")}
}

// SweepOnce runs a sweep and records it. Persistence failures are logged;
// the run is still returned. A sweep whose ctx ends early is returned but not
// recorded, so the last complete beacon set keeps being served.
func (s *Sweeper) SweepOnce(ctx context.Context) model.DiscoveryRun {
	s.mu.Lock()
	defer s.mu.Unlock()

	rep := s.Prober.Sweep(ctx, s.Timeout)
	run := rep.Run()
	if err := ctx.Err(); err != nil {
		s.log.Debug("sweep interrupted; not recorded", zap.String("run", run.ID), zap.Error(err))
		return run
	}
	s.Metrics.Observe(rep)
	if s.Store != nil {
		if err := s.Store.SaveRun(run); err != nil {
			s.log.Warn("store run failed", zap.String("run", run.ID), zap.Error(err))
		}
	}
	if s.Journal != nil {
		// the run is complete; persist it even if ctx ends now
		jctx := context.WithoutCancel(ctx)
		if err := s.Journal.Record(jctx, run); err != nil {
			s.log.Warn("journal run failed", zap.String("run", run.ID), zap.Error(err))
		}
		if s.Retention > 0 {
			n, err := s.Journal.Prune(jctx, run.StartedAt.Add(-s.Retention))
			if err != nil {
				s.log.Warn("journal prune failed", zap.Error(err))
			} else if n > 0 {
				s.log.Debug("journal pruned", zap.Int64("runs", n))
			}
		}
	}
	if s.Pub != nil {
		s.Pub.PublishRun(run)
	}
	return run
}

// Run sweeps immediately and then every interval until ctx is done.
// If interval <= 0 only the first sweep runs.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	s.SweepOnce(ctx)
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}
