package bootstrap

import (
	"context"
	"fmt"

	"chordring/internal/discovery"
	"chordring/internal/ringid"
)

// Discovery resolves a bootstrap peer via one LAN broadcast probe round,
// per §6/§13: the first non-self reply's source IP, combined with the
// fixed overlay port, becomes the sole candidate address.
type Discovery struct {
	prober      *discovery.Prober
	overlayPort int
}

// NewDiscovery builds a Discovery bootstrap using prober to find a peer
// reachable on overlayPort.
func NewDiscovery(prober *discovery.Prober, overlayPort int) *Discovery {
	return &Discovery{prober: prober, overlayPort: overlayPort}
}

func (d *Discovery) Discover(ctx context.Context) ([]string, error) {
	ip, err := d.prober.Probe(ctx)
	if err != nil {
		return nil, err
	}
	if ip == "" {
		return nil, nil
	}
	return []string{fmt.Sprintf("%s:%d", ip, d.overlayPort)}, nil
}

func (d *Discovery) Register(ctx context.Context, self ringid.NodeDescriptor) error { return nil }

func (d *Discovery) Deregister(ctx context.Context, self ringid.NodeDescriptor) error { return nil }
