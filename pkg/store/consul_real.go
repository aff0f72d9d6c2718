//go:build consul

package store

import (
	"go.uber.org/zap"

	"tailbeacon/pkg/consul"
)

// NewConsulStore creates a Consul-backed store (requires build tag consul).
func NewConsulStore(addr string, log *zap.Logger) BeaconStore {
	return consul.NewStore(addr, log)
}
