package model

// OverlayPeer describes one member of the overlay network as reported by the overlay client.
type OverlayPeer struct {
	ID        string   `json:"id"`
	HostName  string   `json:"hostName,omitempty"`
	DNSName   string   `json:"dnsName,omitempty"`
	Addresses []string `json:"addresses"` // first is primary
	Online    bool     `json:"online"`
}

// Primary returns the first overlay address or "" when the peer has none.
func (p OverlayPeer) Primary() string {
	if len(p.Addresses) == 0 {
		return ""
	}
	return p.Addresses[0]
}

// OverlayStatus is one read of the overlay membership table.
type OverlayStatus struct {
	Self  *OverlayPeer  `json:"self,omitempty"`
	Peers []OverlayPeer `json:"peers"`
}

// Candidates returns the peers that should be queried for beacons.
// Self is excluded by ID and by any address it shares with a peer.
func (s OverlayStatus) Candidates() []OverlayPeer {
	selfAddrs := map[string]struct{}{}
	selfID := ""
	if s.Self != nil {
		selfID = s.Self.ID
		for _, a := range s.Self.Addresses {
			selfAddrs[a] = struct{}{}
		}
	}
	out := make([]OverlayPeer, 0, len(s.Peers))
	for _, p := range s.Peers {
		if len(p.Addresses) == 0 {
			continue
		}
		if selfID != "" && p.ID == selfID {
			continue
		}
		isSelf := false
		for _, a := range p.Addresses {
			if _, ok := selfAddrs[a]; ok {
				isSelf = true
				break
			}
		}
		if isSelf {
			continue
		}
		out = append(out, p)
	}
	return out
}
