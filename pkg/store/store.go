package store

import "tailbeacon/pkg/model"

// BeaconStore keeps what the latest sweeps found so the API can serve it
// without re-running discovery.
type BeaconStore interface {
	SaveRun(model.DiscoveryRun) error
	Latest() (model.DiscoveryRun, bool, error)
	ListBeacons() ([]model.Beacon, error)
	GetBeacon(key string) (model.Beacon, bool, error)
	ListRuns(limit int) ([]model.DiscoveryRun, error)
	Ping() error
}

