//go:build consul

package consul

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	consulapi "github.com/hashicorp/consul/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tailbeacon/pkg/model"
)

func TestRunOpsReplaceSnapshotInOneTransaction(t *testing.T) {
	run := model.DiscoveryRun{
		ID:        "r1",
		StartedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Beacons: []model.Beacon{
			{DisplayName: "Studio", Port: 18789, TailnetDNS: "studio.ts.net"},
			{DisplayName: "Mini", Port: 18789, PeerID: "p2"},
		},
	}
	ops, err := runOps(run)
	require.NoError(t, err)
	require.Len(t, ops, 5)

	assert.Equal(t, consulapi.KVDeleteTree, ops[0].Verb)
	assert.Equal(t, beaconPrefix, ops[0].Key)
	assert.Equal(t, latestKey, ops[1].Key)
	assert.Equal(t, "tailbeacon/runs/20260102T030405.000000000Z-r1", ops[2].Key)

	var latest model.DiscoveryRun
	require.NoError(t, json.Unmarshal(ops[1].Value, &latest))
	assert.Len(t, latest.Beacons, 2)

	assert.Equal(t, "tailbeacon/beacons/dns:studio.ts.net:18789", ops[3].Key)
	assert.Equal(t, "tailbeacon/beacons/peer:p2", ops[4].Key)
	for _, op := range ops[1:] {
		assert.Equal(t, consulapi.KVSet, op.Verb)
	}
}

func TestRunOpsStayWithinTransactionLimit(t *testing.T) {
	run := model.DiscoveryRun{ID: "big"}
	for i := 0; i < maxTxnOps; i++ {
		run.Beacons = append(run.Beacons, model.Beacon{Port: 1, PeerID: fmt.Sprintf("p%d", i)})
	}
	ops, err := runOps(run)
	require.NoError(t, err)
	assert.Len(t, ops, 3)

	var latest model.DiscoveryRun
	require.NoError(t, json.Unmarshal(ops[1].Value, &latest))
	assert.Len(t, latest.Beacons, maxTxnOps)
}
