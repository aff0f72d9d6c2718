package model

import "time"

// DiscoveryRun summarizes one discovery sweep.
type DiscoveryRun struct {
	ID         string         `json:"id"`
	StartedAt  time.Time      `json:"startedAt"`
	DurationMs int64          `json:"durationMs"`
	StatusOK   bool           `json:"statusOk"`
	Candidates int            `json:"candidates"`
	Chains     int            `json:"chains"`
	Completed  int            `json:"completed"`
	Abandoned  int            `json:"abandoned"`
	Outcomes   map[string]int `json:"outcomes,omitempty"` // outcome -> chain count
	Beacons    []Beacon       `json:"beacons"`
}
