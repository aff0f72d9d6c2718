//go:build consul

package consul

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"

	consulapi "github.com/hashicorp/consul/api"
	"go.uber.org/zap"

	"tailbeacon/pkg/logging"
	"tailbeacon/pkg/model"
)

// Store publishes discovery results into Consul KV so other services can
// watch the beacon set.
type Store struct {
	cli *consulapi.Client
	log *zap.Logger
	max int
}

const (
	beaconPrefix = "tailbeacon/beacons/"
	runPrefix    = "tailbeacon/runs/"
	latestKey    = "tailbeacon/latest"
)

func NewStore(addr string, log *zap.Logger) *Store {
	cfg := consulapi.DefaultConfig()
	if addr != "" {
		cfg.Address = addr
	}
	l := logging.OrNop(log).Named("consul")
	cli, err := consulapi.NewClient(cfg)
	if err != nil {
		l.Error("consul client", zap.Error(err))
	}
	return &Store{cli: cli, log: l, max: 50}
}

func beaconKey(key string) string { return beaconPrefix + url.PathEscape(key) }

// maxTxnOps is Consul's default limit on operations in one transaction.
const maxTxnOps = 64

// runOps builds the single transaction that replaces the served snapshot.
// Per-beacon keys are only written when they fit in the same transaction;
// the latest key always carries the full set.
func runOps(run model.DiscoveryRun) (consulapi.KVTxnOps, error) {
	data, err := json.Marshal(run)
	if err != nil {
		return nil, err
	}
	ops := consulapi.KVTxnOps{
		{Verb: consulapi.KVDeleteTree, Key: beaconPrefix},
		{Verb: consulapi.KVSet, Key: latestKey, Value: data},
		{Verb: consulapi.KVSet, Key: runKey(run), Value: data},
	}
	if len(ops)+len(run.Beacons) > maxTxnOps {
		return ops, nil
	}
	for _, b := range run.Beacons {
		bd, err := json.Marshal(b)
		if err != nil {
			return nil, err
		}
		ops = append(ops, &consulapi.KVTxnOp{Verb: consulapi.KVSet, Key: beaconKey(b.Key()), Value: bd})
	}
	return ops, nil
}

func runKey(run model.DiscoveryRun) string {
	return runPrefix + run.StartedAt.UTC().Format("20060102T150405.000000000Z") + "-" + run.ID
}

func (s *Store) SaveRun(run model.DiscoveryRun) error {
	if s.cli == nil {
		return fmt.Errorf("consul client not configured")
	}
	ops, err := runOps(run)
	if err != nil {
		return err
	}
	if len(ops) == 3 && len(run.Beacons) > 0 {
		s.log.Warn("too many beacons for one transaction; per-beacon keys skipped", zap.Int("beacons", len(run.Beacons)))
	}
	ok, resp, _, err := s.cli.KV().Txn(ops, nil)
	if err != nil {
		return fmt.Errorf("save run %s: %w", run.ID, err)
	}
	if !ok {
		var msgs []string
		if resp != nil {
			for _, e := range resp.Errors {
				msgs = append(msgs, e.What)
			}
		}
		return fmt.Errorf("save run %s: transaction rolled back: %s", run.ID, strings.Join(msgs, "; "))
	}
	s.pruneRuns()
	return nil
}

func (s *Store) pruneRuns() {
	keys, _, err := s.cli.KV().Keys(runPrefix, "", nil)
	if err != nil || len(keys) <= s.max {
		return
	}
	sort.Strings(keys)
	for _, k := range keys[:len(keys)-s.max] {
		if _, err := s.cli.KV().Delete(k, nil); err != nil {
			s.log.Warn("prune run", zap.String("key", k), zap.Error(err))
		}
	}
}

func (s *Store) Latest() (model.DiscoveryRun, bool, error) {
	if s.cli == nil {
		return model.DiscoveryRun{}, false, fmt.Errorf("consul client not configured")
	}
	kv, _, err := s.cli.KV().Get(latestKey, nil)
	if err != nil || kv == nil {
		return model.DiscoveryRun{}, false, err
	}
	var run model.DiscoveryRun
	if err := json.Unmarshal(kv.Value, &run); err != nil {
		return model.DiscoveryRun{}, false, err
	}
	return run, true, nil
}

func (s *Store) ListBeacons() ([]model.Beacon, error) {
	run, ok, err := s.Latest()
	if err != nil {
		return nil, err
	}
	if !ok {
		return []model.Beacon{}, nil
	}
	return run.Beacons, nil
}

// GetBeacon reads from the latest snapshot, not the per-beacon keys, so it is
// consistent with ListBeacons.
func (s *Store) GetBeacon(key string) (model.Beacon, bool, error) {
	run, ok, err := s.Latest()
	if err != nil || !ok {
		return model.Beacon{}, false, err
	}
	for _, b := range run.Beacons {
		if b.Key() == key {
			return b, true, nil
		}
	}
	return model.Beacon{}, false, nil
}

func (s *Store) ListRuns(limit int) ([]model.DiscoveryRun, error) {
	if s.cli == nil {
		return nil, fmt.Errorf("consul client not configured")
	}
	pairs, _, err := s.cli.KV().List(runPrefix, nil)
	if err != nil {
		return nil, err
	}
	sort.Slice(pairs, func(i, j int) bool { return strings.Compare(pairs[i].Key, pairs[j].Key) > 0 })
	var out []model.DiscoveryRun
	for _, p := range pairs {
		if limit > 0 && len(out) >= limit {
			break
		}
		var r model.DiscoveryRun
		if err := json.Unmarshal(p.Value, &r); err == nil {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) Ping() error {
	if s.cli == nil {
		return fmt.Errorf("consul client not configured")
	}
	_, err := s.cli.Status().Leader()
	return err
}
