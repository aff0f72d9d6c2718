// Package discovery sweeps every overlay peer for advertised gateways.
//
// Multicast DNS does not cross the overlay, so each peer's own resolver is
// asked the DNS-SD questions directly over unicast. A sweep is best-effort:
// per-peer failures are logged and counted, never returned.
package discovery

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tailbeacon/pkg/beacon"
	"tailbeacon/pkg/logging"
	"tailbeacon/pkg/model"
	"tailbeacon/pkg/overlay"
	"tailbeacon/pkg/records"
	"tailbeacon/pkg/resolver"
)

// Outcome classifies how one chain ended.
type Outcome string

const (
	OutcomeBeacon     Outcome = "beacon"
	OutcomeAbsent     Outcome = "absent"
	OutcomeTimeout    Outcome = "timeout"
	OutcomeFailed     Outcome = "failed"
	OutcomeParseError Outcome = "parse_error"
	OutcomeAbandoned  Outcome = "abandoned"
)

// Options selects what a sweep looks for.
type Options struct {
	ServiceType    string
	Domain         string
	MaxConcurrency int // <=0 means one goroutine per chain
}

// Report is the full result of one sweep.
type Report struct {
	ID         string
	StartedAt  time.Time
	Elapsed    time.Duration
	StatusErr  error
	Candidates int
	Chains     int
	Completed  int
	Abandoned  int
	Outcomes   map[Outcome]int
	Beacons    []model.Beacon
}

// Run converts the report into its journal form.
func (r Report) Run() model.DiscoveryRun {
	outcomes := make(map[string]int, len(r.Outcomes))
	for k, v := range r.Outcomes {
		outcomes[string(k)] = v
	}
	return model.DiscoveryRun{
		ID:         r.ID,
		StartedAt:  r.StartedAt,
		DurationMs: r.Elapsed.Milliseconds(),
		StatusOK:   r.StatusErr == nil,
		Candidates: r.Candidates,
		Chains:     r.Chains,
		Completed:  r.Completed,
		Abandoned:  r.Abandoned,
		Outcomes:   outcomes,
		Beacons:    r.Beacons,
	}
}

// Discoverer runs sweeps. Safe for concurrent use.
type Discoverer struct {
	opts   Options
	status overlay.StatusSource
	runner resolver.QueryRunner
	log    *zap.Logger
}

type Option func(*Discoverer)

// WithStatusSource replaces the default Tailscale status reader.
func WithStatusSource(s overlay.StatusSource) Option {
	return func(d *Discoverer) { d.status = s }
}

// WithQueryRunner replaces the default dig runner.
func WithQueryRunner(r resolver.QueryRunner) Option {
	return func(d *Discoverer) { d.runner = r }
}

func WithLogger(l *zap.Logger) Option {
	return func(d *Discoverer) { d.log = l }
}

func New(opts Options, options ...Option) *Discoverer {
	d := &Discoverer{opts: opts}
	for _, o := range options {
		o(d)
	}
	d.log = logging.OrNop(d.log).Named("discovery")
	if d.status == nil {
		d.status = overlay.NewTailscaleSource("", d.log)
	}
	if d.runner == nil {
		d.runner = resolver.NewDigRunner("", d.log)
	}
	return d
}

// Discover returns the de-duplicated beacons found within timeout. It never
// fails: an unreachable overlay or silent peers yield an empty slice.
func (d *Discoverer) Discover(ctx context.Context, timeout time.Duration) []model.Beacon {
	return d.Sweep(ctx, timeout).Beacons
}

type chainResult struct {
	beacon *model.Beacon
	err    error
}

// Sweep is Discover with counters.
func (d *Discoverer) Sweep(ctx context.Context, timeout time.Duration) (rep Report) {
	rep = Report{ID: uuid.NewString(), StartedAt: time.Now(), Outcomes: map[Outcome]int{}, Beacons: []model.Beacon{}}
	defer func() { rep.Elapsed = time.Since(rep.StartedAt) }()
	if timeout <= 0 {
		timeout = beacon.DefaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	log := d.log.With(zap.String("run", rep.ID))

	st, err := d.status.Read(runCtx)
	if err != nil {
		rep.StatusErr = err
		log.Info("overlay status unavailable; no wide-area discovery", zap.Error(err))
		return rep
	}
	candidates := st.Candidates()
	rep.Candidates = len(candidates)

	var reqs []beacon.Request
	for _, p := range candidates {
		for _, addr := range p.Addresses {
			reqs = append(reqs, beacon.Request{
				Peer:        p,
				Nameserver:  addr,
				ServiceType: d.opts.ServiceType,
				Domain:      d.opts.Domain,
			})
		}
	}
	rep.Chains = len(reqs)
	if len(reqs) == 0 {
		log.Debug("no candidate peers")
		return rep
	}

	asm := beacon.NewAssembler(d.runner, d.log)
	// Buffered to len(reqs) so abandoned chains never block on send.
	results := make(chan chainResult, len(reqs))
	g, gctx := errgroup.WithContext(runCtx)
	if d.opts.MaxConcurrency > 0 {
		g.SetLimit(d.opts.MaxConcurrency)
	}
	go func() {
		for _, req := range reqs {
			req := req
			// chains still queued behind the limit at the deadline are abandoned unstarted
			if gctx.Err() != nil {
				break
			}
			g.Go(func() error {
				if gctx.Err() != nil {
					return nil
				}
				if deadline, ok := gctx.Deadline(); ok {
					req.Timeout = time.Until(deadline)
				}
				b, err := asm.Assemble(gctx, req)
				results <- chainResult{beacon: b, err: err}
				return nil
			})
		}
		_ = g.Wait()
		close(results)
	}()

	var found []model.Beacon
collect:
	for {
		select {
		case r, ok := <-results:
			if !ok {
				break collect
			}
			rep.Completed++
			outcome := classify(r)
			rep.Outcomes[outcome]++
			if r.beacon != nil {
				found = append(found, *r.beacon)
			} else if r.err != nil {
				log.Debug("chain abandoned", zap.String("outcome", string(outcome)), zap.Error(r.err))
			}
		case <-runCtx.Done():
			break collect
		}
	}
	rep.Abandoned = rep.Chains - rep.Completed
	if rep.Abandoned > 0 {
		rep.Outcomes[OutcomeAbandoned] += rep.Abandoned
	}

	rep.Beacons = Dedupe(found)
	sort.SliceStable(rep.Beacons, func(i, j int) bool {
		if rep.Beacons[i].DisplayName != rep.Beacons[j].DisplayName {
			return rep.Beacons[i].DisplayName < rep.Beacons[j].DisplayName
		}
		return rep.Beacons[i].Key() < rep.Beacons[j].Key()
	})
	log.Info("sweep finished",
		zap.Int("candidates", rep.Candidates),
		zap.Int("chains", rep.Chains),
		zap.Int("abandoned", rep.Abandoned),
		zap.Int("beacons", len(rep.Beacons)),
		zap.Duration("elapsed", time.Since(rep.StartedAt)))
	return rep
}

func classify(r chainResult) Outcome {
	var pe *records.ParseError
	switch {
	case r.beacon != nil:
		return OutcomeBeacon
	case r.err == nil:
		return OutcomeAbsent
	case errors.Is(r.err, beacon.ErrChainTimeout):
		return OutcomeTimeout
	case errors.As(r.err, &pe):
		return OutcomeParseError
	case errors.Is(r.err, context.Canceled), errors.Is(r.err, context.DeadlineExceeded):
		return OutcomeAbandoned
	default:
		return OutcomeFailed
	}
}

// Dedupe keeps one beacon per identity (see model.Beacon.Key). The one with
// more populated optional fields wins; ties keep the earlier entry, so pass
// beacons in completion order.
func Dedupe(in []model.Beacon) []model.Beacon {
	out := make([]model.Beacon, 0, len(in))
	index := map[string]int{}
	for _, b := range in {
		key := b.Key()
		if i, ok := index[key]; ok {
			if b.Populated() > out[i].Populated() {
				out[i] = b
			}
			continue
		}
		index[key] = len(out)
		out = append(out, b)
	}
	return out
}
