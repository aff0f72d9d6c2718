package model

import (
	"strconv"
	"strings"
)

// Beacon is one discovered gateway endpoint.
type Beacon struct {
	DisplayName  string    `json:"displayName"`
	Port         int       `json:"port"`                  // SRV port
	GatewayPort  *int      `json:"gatewayPort,omitempty"` // TXT gatewayPort; nil when not advertised
	TailnetDNS   string    `json:"tailnetDns,omitempty"`
	CLIPath      string    `json:"cliPath,omitempty"`
	InstanceName string    `json:"instanceName"`
	Host         string    `json:"host"` // SRV target without trailing dot
	PeerID       string    `json:"peerId"`
	Nameserver   string    `json:"nameserver"`
	TXT          TXTFields `json:"txt,omitempty"`
}

// Key is the identity used for de-duplication: (tailnetDns, port), or the
// source peer when tailnetDns is absent.
func (b Beacon) Key() string {
	if b.TailnetDNS != "" {
		return "dns:" + strings.ToLower(b.TailnetDNS) + ":" + strconv.Itoa(b.Port)
	}
	return "peer:" + b.PeerID
}

// Populated counts optional fields carrying a value.
func (b Beacon) Populated() int {
	n := 0
	if b.GatewayPort != nil {
		n++
	}
	if b.TailnetDNS != "" {
		n++
	}
	if b.CLIPath != "" {
		n++
	}
	return n
}

