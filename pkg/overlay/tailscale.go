package overlay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"tailbeacon/pkg/logging"
	"tailbeacon/pkg/model"
)

// tailscaleCandidates are checked when the CLI is not on PATH.
var tailscaleCandidates = []string{
	"/Applications/Tailscale.app/Contents/MacOS/Tailscale",
	"/opt/homebrew/bin/tailscale",
	"/usr/local/bin/tailscale",
	"/usr/bin/tailscale",
}

// TailscaleSource runs `tailscale status --json`.
type TailscaleSource struct {
	Path    string
	Timeout time.Duration
	log     *zap.Logger
}

// NewTailscaleSource returns a source for the CLI at path; "" locates it.
func NewTailscaleSource(path string, log *zap.Logger) *TailscaleSource {
	return &TailscaleSource{Path: strings.TrimSpace(path), Timeout: 5 * time.Second, log: logging.OrNop(log).Named("tailscale")}
}

func (s *TailscaleSource) Read(ctx context.Context) (model.OverlayStatus, error) {
	bin, err := s.locate()
	if err != nil {
		return model.OverlayStatus{}, err
	}
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	cmd := exec.CommandContext(ctx, bin, "status", "--json")
	cmd.WaitDelay = 250 * time.Millisecond
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return model.OverlayStatus{}, fmt.Errorf("%w: %s status --json failed: %v output=%s", ErrStatusUnavailable, bin, err, strings.TrimSpace(stderr.String()))
	}
	st, err := ParseTailscaleStatus(out)
	if err != nil {
		return model.OverlayStatus{}, err
	}
	s.log.Debug("overlay status read", zap.String("bin", bin), zap.Int("peers", len(st.Peers)))
	return st, nil
}

func (s *TailscaleSource) locate() (string, error) {
	if s.Path != "" {
		if _, err := os.Stat(s.Path); err != nil {
			return "", fmt.Errorf("%w: tailscale binary %s: %v", ErrStatusUnavailable, s.Path, err)
		}
		return s.Path, nil
	}
	if p, err := exec.LookPath("tailscale"); err == nil {
		return p, nil
	}
	for _, p := range tailscaleCandidates {
		if fi, err := os.Stat(p); err == nil && !fi.IsDir() {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: tailscale CLI not installed", ErrStatusUnavailable)
}

type tsPeer struct {
	ID           string    `json:"ID"`
	HostName     string    `json:"HostName"`
	DNSName      string    `json:"DNSName"`
	TailscaleIPs *[]string `json:"TailscaleIPs"`
	Online       bool      `json:"Online"`
}

type tsStatus struct {
	BackendState string             `json:"BackendState"`
	Self         *tsPeer            `json:"Self"`
	Peer         map[string]*tsPeer `json:"Peer"`
}

// ParseTailscaleStatus converts `tailscale status --json` output. Self and
// every peer must carry a TailscaleIPs field; peers are ordered by key.
func ParseTailscaleStatus(data []byte) (model.OverlayStatus, error) {
	var raw tsStatus
	if err := json.Unmarshal(data, &raw); err != nil {
		return model.OverlayStatus{}, fmt.Errorf("%w: decode status: %v", ErrStatusUnavailable, err)
	}
	if raw.BackendState != "" && raw.BackendState != "Running" {
		return model.OverlayStatus{}, fmt.Errorf("%w: backend state %s", ErrStatusUnavailable, raw.BackendState)
	}
	var st model.OverlayStatus
	if raw.Self != nil {
		if raw.Self.TailscaleIPs == nil {
			return model.OverlayStatus{}, fmt.Errorf("%w: Self missing TailscaleIPs", ErrStatusUnavailable)
		}
		self := convertPeer("self", raw.Self)
		st.Self = &self
	}
	keys := make([]string, 0, len(raw.Peer))
	for k := range raw.Peer {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		p := raw.Peer[k]
		if p == nil || p.TailscaleIPs == nil {
			return model.OverlayStatus{}, fmt.Errorf("%w: peer %s missing TailscaleIPs", ErrStatusUnavailable, k)
		}
		st.Peers = append(st.Peers, convertPeer(k, p))
	}
	return st, nil
}

func convertPeer(key string, p *tsPeer) model.OverlayPeer {
	id := key
	if p.ID != "" && key == "self" {
		id = p.ID
	}
	var addrs []string
	for _, ip := range *p.TailscaleIPs {
		if ip = strings.TrimSpace(ip); ip != "" {
			addrs = append(addrs, ip)
		}
	}
	return model.OverlayPeer{
		ID:        id,
		HostName:  p.HostName,
		DNSName:   strings.TrimSuffix(p.DNSName, "."),
		Addresses: addrs,
		Online:    p.Online,
	}
}
