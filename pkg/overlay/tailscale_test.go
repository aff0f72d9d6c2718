package overlay

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixtureStatus = `{
  "Self": { "TailscaleIPs": ["100.69.232.64"] },
  "Peer": {
    "peer-1": { "TailscaleIPs": ["100.123.224.76"] }
  }
}`

func TestParseTailscaleStatusFixture(t *testing.T) {
	st, err := ParseTailscaleStatus([]byte(fixtureStatus))
	require.NoError(t, err)
	require.NotNil(t, st.Self)
	assert.Equal(t, []string{"100.69.232.64"}, st.Self.Addresses)
	require.Len(t, st.Peers, 1)
	assert.Equal(t, "peer-1", st.Peers[0].ID)
	assert.Equal(t, []string{"100.123.224.76"}, st.Peers[0].Addresses)
}

func TestParseTailscaleStatusFullDocument(t *testing.T) {
	doc := `{
	  "BackendState": "Running",
	  "Self": {"ID": "nSelf", "HostName": "laptop", "DNSName": "laptop.sheep-coho.ts.net.", "TailscaleIPs": ["100.69.232.64", "fd7a:115c:a1e0::1"], "Online": true},
	  "Peer": {
	    "nodekey:b": {"HostName": "studio", "DNSName": "studio.sheep-coho.ts.net.", "TailscaleIPs": ["100.123.224.76", "fd7a:115c:a1e0::2"], "Online": true},
	    "nodekey:a": {"HostName": "phone", "TailscaleIPs": []}
	  }
	}`
	st, err := ParseTailscaleStatus([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, "nSelf", st.Self.ID)
	assert.Equal(t, "laptop.sheep-coho.ts.net", st.Self.DNSName)
	require.Len(t, st.Peers, 2)
	assert.Equal(t, "nodekey:a", st.Peers[0].ID, "peers are ordered by key")
	assert.Empty(t, st.Peers[0].Addresses)
	assert.Equal(t, "studio.sheep-coho.ts.net", st.Peers[1].DNSName)
	assert.Equal(t, "100.123.224.76", st.Peers[1].Primary())

	cands := st.Candidates()
	require.Len(t, cands, 1)
	assert.Equal(t, "nodekey:b", cands[0].ID)
}

func TestParseTailscaleStatusUnavailable(t *testing.T) {
	for name, doc := range map[string]string{
		"malformed json":   `{"Self":`,
		"stopped":          `{"BackendState":"Stopped","Self":{"TailscaleIPs":[]}}`,
		"self missing ips": `{"Self":{"HostName":"x"},"Peer":{}}`,
		"peer missing ips": `{"Self":{"TailscaleIPs":["100.1.1.1"]},"Peer":{"p":{"HostName":"y"}}}`,
		"peer null entry":  `{"Peer":{"p":null}}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseTailscaleStatus([]byte(doc))
			assert.True(t, errors.Is(err, ErrStatusUnavailable), "got %v", err)
		})
	}
}

func TestParseTailscaleStatusZeroPeers(t *testing.T) {
	st, err := ParseTailscaleStatus([]byte(`{"Self":{"TailscaleIPs":["100.69.232.64"]},"Peer":{}}`))
	require.NoError(t, err)
	assert.Empty(t, st.Candidates())
}

func TestTailscaleSourceRead(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script fake requires a POSIX shell")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "tailscale")
	script := "#!/bin/sh\n[ \"$1 $2\" = \"status --json\" ] || exit 2\ncat <<'JSON'\n" + fixtureStatus + "\nJSON\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))

	st, err := NewTailscaleSource(path, nil).Read(context.Background())
	require.NoError(t, err)
	require.Len(t, st.Peers, 1)

	failing := filepath.Join(dir, "tailscale-down")
	require.NoError(t, os.WriteFile(failing, []byte("#!/bin/sh\necho 'failed to connect to local tailscaled' >&2\nexit 1\n"), 0o755))
	_, err = NewTailscaleSource(failing, nil).Read(context.Background())
	assert.True(t, errors.Is(err, ErrStatusUnavailable))
	assert.Contains(t, err.Error(), "tailscaled")
}

func TestTailscaleSourceMissingBinary(t *testing.T) {
	_, err := NewTailscaleSource(filepath.Join(t.TempDir(), "absent"), nil).Read(context.Background())
	assert.True(t, errors.Is(err, ErrStatusUnavailable))
}
