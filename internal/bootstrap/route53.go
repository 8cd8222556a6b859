package bootstrap

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	"github.com/aws/aws-sdk-go-v2/service/route53/types"

	"chordring/internal/config"
	"chordring/internal/logger"
	"chordring/internal/ringid"
)

// Route53 publishes and discovers bootstrap peers as DNS SRV records,
// grounded directly on the teacher's aws-sdk-go-v2/service/route53-based
// registrar. On Register, it upserts an SRV record named
// "<node-id>.<domain-suffix>" pointing at this peer's host:port; Discover
// resolves the configured SRV name via the standard resolver (stdlib
// net.LookupSRV, not the teacher's miekg/dns import — see DESIGN.md for
// why that import is excluded).
type Route53 struct {
	client       *route53.Client
	hostedZoneID string
	domainSuffix string
	ttl          int64
	lgr          logger.Logger
}

// NewRoute53 builds a Route53 bootstrap from cfg, resolving AWS
// credentials through the standard SDK credential chain.
func NewRoute53(ctx context.Context, cfg config.RegisterConfig, dnsName string, lgr logger.Logger) (*Route53, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: load AWS config: %w", err)
	}
	if lgr == nil {
		lgr = &logger.NopLogger{}
	}
	suffix := cfg.DomainSuffix
	if dnsName != "" {
		suffix = dnsName
	}
	return &Route53{
		client:       route53.NewFromConfig(awsCfg),
		hostedZoneID: cfg.HostedZoneID,
		domainSuffix: strings.TrimSuffix(suffix, "."),
		ttl:          cfg.TTL,
		lgr:          lgr,
	}, nil
}

func (r *Route53) recordName(id ringid.ID) string {
	return fmt.Sprintf("%s.%s.", id.String(), r.domainSuffix)
}

// Discover resolves the configured domain suffix's SRV records into
// "host:port" candidates. A resolution failure (e.g. NXDOMAIN because no
// peer has registered yet) is reported as an empty list, not an error.
func (r *Route53) Discover(ctx context.Context) ([]string, error) {
	_, addrs, err := net.DefaultResolver.LookupSRV(ctx, "koorde", "tcp", r.domainSuffix)
	if err != nil {
		r.lgr.Debug("route53: SRV lookup found no peers yet", logger.F("domain", r.domainSuffix), logger.F("err", err))
		return nil, nil
	}
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		host := strings.TrimSuffix(a.Target, ".")
		out = append(out, net.JoinHostPort(host, strconv.Itoa(int(a.Port))))
	}
	return out, nil
}

// Register upserts an SRV record for self under this peer's own id, so a
// later Discover by any peer picks it up.
func (r *Route53) Register(ctx context.Context, self ringid.NodeDescriptor) error {
	host, _, err := net.SplitHostPort(self.Addr())
	if err != nil {
		return fmt.Errorf("bootstrap: self address %q: %w", self.Addr(), err)
	}

	value := fmt.Sprintf("0 0 %d %s.", self.Port, host)
	_, err = r.client.ChangeResourceRecordSets(ctx, &route53.ChangeResourceRecordSetsInput{
		HostedZoneId: aws.String(r.hostedZoneID),
		ChangeBatch: &types.ChangeBatch{
			Changes: []types.Change{
				{
					Action: types.ChangeActionUpsert,
					ResourceRecordSet: &types.ResourceRecordSet{
						Name:            aws.String(r.recordName(self.ID)),
						Type:            types.RRTypeSrv,
						TTL:             aws.Int64(r.ttl),
						ResourceRecords: []types.ResourceRecord{{Value: aws.String(value)}},
					},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("bootstrap: upsert SRV record: %w", err)
	}
	r.lgr.Info("route53: registered", logger.FDescriptor("self", self))
	return nil
}

// Deregister deletes the SRV record Register published.
func (r *Route53) Deregister(ctx context.Context, self ringid.NodeDescriptor) error {
	host, _, err := net.SplitHostPort(self.Addr())
	if err != nil {
		return fmt.Errorf("bootstrap: self address %q: %w", self.Addr(), err)
	}
	value := fmt.Sprintf("0 0 %d %s.", self.Port, host)
	_, err = r.client.ChangeResourceRecordSets(ctx, &route53.ChangeResourceRecordSetsInput{
		HostedZoneId: aws.String(r.hostedZoneID),
		ChangeBatch: &types.ChangeBatch{
			Changes: []types.Change{
				{
					Action: types.ChangeActionDelete,
					ResourceRecordSet: &types.ResourceRecordSet{
						Name:            aws.String(r.recordName(self.ID)),
						Type:            types.RRTypeSrv,
						TTL:             aws.Int64(r.ttl),
						ResourceRecords: []types.ResourceRecord{{Value: aws.String(value)}},
					},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("bootstrap: delete SRV record: %w", err)
	}
	r.lgr.Info("route53: deregistered", logger.FDescriptor("self", self))
	return nil
}

