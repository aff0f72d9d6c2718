package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tailbeacon/pkg/auth"
	"tailbeacon/pkg/model"
	"tailbeacon/pkg/overlay"
	"tailbeacon/pkg/resolver"
	"tailbeacon/pkg/store"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd("tailbeacon")
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "tailbeacon "))
}

func TestHashPassword(t *testing.T) {
	out, err := execute(t, "", "hash-password", "hunter2")
	require.NoError(t, err)
	assert.True(t, auth.CheckPassword(strings.TrimSpace(out), "hunter2"))

	out, err = execute(t, "from-stdin\n", "hash-password")
	require.NoError(t, err)
	assert.True(t, auth.CheckPassword(strings.TrimSpace(out), "from-stdin"))

	_, err = execute(t, "", "hash-password")
	assert.Error(t, err)
}

func TestToken(t *testing.T) {
	t.Setenv("JWT_SECRET", "cli-secret")
	out, err := execute(t, "", "token", "--user", "ops")
	require.NoError(t, err)
	claims, err := auth.NewSigner("cli-secret").Parse(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.Username)
}

// writeScript creates an executable shell script standing in for a CLI.
func writeScript(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte("#!/bin/sh\n"+body), 0o755))
	return p
}

func TestDiscoverPrintsBeacons(t *testing.T) {
	status := `{"BackendState":"Running",
"Self":{"HostName":"self","DNSName":"self.sheep-coho.ts.net.","TailscaleIPs":["100.69.232.64"]},
"Peer":{"nodekey:abc":{"HostName":"studio","DNSName":"peters-mac-studio-1.sheep-coho.ts.net.","TailscaleIPs":["100.123.224.76"],"Online":true}}}`
	ts := writeScript(t, "tailscale", "cat <<'JSON'\n"+status+"\nJSON\n")
	dig := writeScript(t, "dig", `for a in "$@"; do last="$a"; done
case "$last" in
PTR) printf '%s\n' 'studio-gateway._adamarie-gw._tcp.adamarie.internal.' ;;
SRV) printf '%s\n' '0 0 18789 peters-mac-studio-1.adamarie.internal.' ;;
TXT) printf '%s\n' '"displayName=Peter\226\128\153s Mac Studio" "gatewayPort=18789" "tailnetDns=peters-mac-studio-1.sheep-coho.ts.net" "cliPath=/Users/peter/Projects/adamarie/bin/adamarie.js"' ;;
esac
`)
	out, err := execute(t, "", "discover", "--tailscale", ts, "--dig", dig, "--resolver", "dig", "--overlay", "tailscale", "--domain", "adamarie.internal", "--timeout", "3s")
	require.NoError(t, err)

	var beacons []model.Beacon
	require.NoError(t, json.Unmarshal([]byte(out), &beacons))
	require.Len(t, beacons, 1)
	b := beacons[0]
	assert.Equal(t, "Peter’s Mac Studio", b.DisplayName)
	assert.Equal(t, 18789, b.Port)
	require.NotNil(t, b.GatewayPort)
	assert.Equal(t, 18789, *b.GatewayPort)
	assert.Equal(t, "peters-mac-studio-1.sheep-coho.ts.net", b.TailnetDNS)
	assert.Equal(t, "/Users/peter/Projects/adamarie/bin/adamarie.js", b.CLIPath)
}

func TestDiscoverEmptyWhenOverlayMissing(t *testing.T) {
	out, err := execute(t, "", "discover", "--tailscale", filepath.Join(t.TempDir(), "missing"), "--timeout", "1s")
	require.NoError(t, err)
	assert.JSONEq(t, "[]", out)
}

func TestBuilders(t *testing.T) {
	a := &app{}
	a.cfg.Overlay = "wireguard"
	src, err := newStatusSource(a)
	require.NoError(t, err)
	assert.IsType(t, &overlay.WireGuardSource{}, src)
	a.cfg.Overlay = "zerotier"
	_, err = newStatusSource(a)
	assert.Error(t, err)

	a.cfg.Resolver = "dns"
	r, err := newQueryRunner(a)
	require.NoError(t, err)
	assert.IsType(t, &resolver.DNSRunner{}, r)
	a.cfg.Resolver = "doh"
	_, err = newQueryRunner(a)
	assert.Error(t, err)

	a.cfg.Store = "memory"
	st, err := newStore(a)
	require.NoError(t, err)
	assert.IsType(t, &store.MemoryStore{}, st)
	a.cfg.Store = "etcd"
	_, err = newStore(a)
	assert.Error(t, err)
}

func TestServeRefusesDevSecretWhenAuthEnabled(t *testing.T) {
	hash, err := auth.HashPassword("hunter2")
	require.NoError(t, err)
	t.Setenv("JWT_SECRET", "")
	t.Setenv("TAILBEACON_ADMIN_HASH", hash)

	_, err = execute(t, "", "serve", "--journal", "off", "--addr", "127.0.0.1:0")
	assert.ErrorIs(t, err, errInsecureSecret)
}

func TestTokenRefusesDevSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	out, err := execute(t, "", "token")
	assert.ErrorIs(t, err, errInsecureSecret)
	assert.Empty(t, out)
}

func TestNewAuthenticator(t *testing.T) {
	a := &app{log: zap.NewNop()}
	authn, err := newAuthenticator(a)
	require.NoError(t, err)
	assert.Empty(t, authn.AdminHash)

	a.cfg.AdminPasswordHash = "$2a$10$abcdefghijklmnopqrstuv"
	_, err = newAuthenticator(a)
	assert.ErrorIs(t, err, errInsecureSecret)

	a.cfg.JWTSecret = "real-secret"
	authn, err = newAuthenticator(a)
	require.NoError(t, err)
	assert.False(t, authn.Signer.Insecure())
}

func TestDiscoverRejectsEmptyDomain(t *testing.T) {
	_, err := execute(t, "", "discover", "--domain", "", "--tailscale", filepath.Join(t.TempDir(), "missing"))
	assert.ErrorContains(t, err, "domain must not be empty")

	_, err = execute(t, "", "discover", "--domain", ".", "--tailscale", filepath.Join(t.TempDir(), "missing"))
	assert.ErrorContains(t, err, "domain must not be empty")
}
