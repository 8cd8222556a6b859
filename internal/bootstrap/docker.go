package bootstrap

import (
	"context"
	"fmt"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"

	"chordring/internal/config"
	"chordring/internal/logger"
	"chordring/internal/ringid"
)

// Docker discovers bootstrap peers among sibling containers carrying a
// configured label on a configured network. Grounded on
// github.com/docker/docker/client, which the teacher's go.mod declares but
// no teacher source file imports — wired in here rather than dropped, per
// DESIGN.md.
type Docker struct {
	cli     *client.Client
	label   string
	network string
	port    int
	lgr     logger.Logger
}

// NewDocker builds a Docker bootstrap from cfg, talking to the local
// Docker daemon via the standard environment-derived connection.
func NewDocker(cfg config.DockerBootstrapConfig, lgr logger.Logger) (*Docker, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("bootstrap: connect to docker daemon: %w", err)
	}
	if lgr == nil {
		lgr = &logger.NopLogger{}
	}
	return &Docker{cli: cli, label: cfg.Label, network: cfg.Network, port: cfg.Port, lgr: lgr}, nil
}

// Discover lists running containers carrying the configured label and
// returns the "host:port" of each one's address on the configured
// network.
func (d *Docker) Discover(ctx context.Context) ([]string, error) {
	containers, err := d.cli.ContainerList(ctx, container.ListOptions{
		Filters: filters.NewArgs(filters.Arg("label", d.label)),
	})
	if err != nil {
		return nil, fmt.Errorf("bootstrap: list containers: %w", err)
	}

	out := make([]string, 0, len(containers))
	for _, c := range containers {
		net, ok := c.NetworkSettings.Networks[d.network]
		if !ok || net.IPAddress == "" {
			continue
		}
		out = append(out, fmt.Sprintf("%s:%d", net.IPAddress, d.port))
	}
	d.lgr.Debug("docker: discovered peers", logger.F("count", len(out)))
	return out, nil
}

// Register is a no-op: sibling containers are discovered by their label,
// not by an explicit registration call.
func (d *Docker) Register(ctx context.Context, self ringid.NodeDescriptor) error { return nil }

func (d *Docker) Deregister(ctx context.Context, self ringid.NodeDescriptor) error { return nil }
