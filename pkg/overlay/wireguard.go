package overlay

import (
	"context"
	"fmt"
	"net"

	"golang.zx2c4.com/wireguard/wgctrl"
	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"

	"tailbeacon/pkg/model"
)

// WireGuardSource reads membership from a plain WireGuard interface. Peers
// are keyed by public key; host-length AllowedIPs are their overlay addresses.
type WireGuardSource struct {
	Iface string
}

func NewWireGuardSource(iface string) *WireGuardSource {
	if iface == "" {
		iface = "wg0"
	}
	return &WireGuardSource{Iface: iface}
}

func (s *WireGuardSource) Read(_ context.Context) (model.OverlayStatus, error) {
	client, err := wgctrl.New()
	if err != nil {
		return model.OverlayStatus{}, fmt.Errorf("%w: wgctrl: %v", ErrStatusUnavailable, err)
	}
	defer client.Close()
	dev, err := client.Device(s.Iface)
	if err != nil {
		return model.OverlayStatus{}, fmt.Errorf("%w: wireguard device %s: %v", ErrStatusUnavailable, s.Iface, err)
	}
	return statusFromDevice(dev, interfaceAddrs(s.Iface)), nil
}

func interfaceAddrs(name string) []string {
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return nil
	}
	addrs, err := iface.Addrs()
	if err != nil {
		return nil
	}
	var out []string
	for _, a := range addrs {
		if ipnet, ok := a.(*net.IPNet); ok {
			out = append(out, ipnet.IP.String())
		}
	}
	return out
}

func statusFromDevice(dev *wgtypes.Device, selfAddrs []string) model.OverlayStatus {
	st := model.OverlayStatus{
		Self: &model.OverlayPeer{ID: dev.PublicKey.String(), HostName: dev.Name, Addresses: selfAddrs, Online: true},
	}
	for _, p := range dev.Peers {
		peer := model.OverlayPeer{ID: p.PublicKey.String(), Online: !p.LastHandshakeTime.IsZero()}
		for _, ipnet := range p.AllowedIPs {
			ones, bits := ipnet.Mask.Size()
			if bits == 0 || ones != bits {
				continue
			}
			peer.Addresses = append(peer.Addresses, ipnet.IP.String())
		}
		st.Peers = append(st.Peers, peer)
	}
	return st
}
