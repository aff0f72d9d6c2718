// Package beacon walks the PTR → SRV → TXT chain for one peer and builds the
// discovered gateway descriptor.
package beacon

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"tailbeacon/pkg/logging"
	"tailbeacon/pkg/model"
	"tailbeacon/pkg/records"
	"tailbeacon/pkg/resolver"
)

// ErrChainTimeout means one query of the chain overran its share of the budget.
var ErrChainTimeout = errors.New("beacon chain timed out")

// DefaultTimeout is the chain budget when a request carries none.
const DefaultTimeout = 3 * time.Second

// Request describes one chain: which peer, which resolver, what service.
type Request struct {
	Peer        model.OverlayPeer
	Nameserver  string
	ServiceType string
	Domain      string
	Timeout     time.Duration // whole chain; each query gets a third
}

// Assembler resolves a single peer's advertisement.
type Assembler struct {
	runner resolver.QueryRunner
	log    *zap.Logger
}

func NewAssembler(runner resolver.QueryRunner, log *zap.Logger) *Assembler {
	return &Assembler{runner: runner, log: logging.OrNop(log).Named("beacon")}
}

// Assemble returns nil, nil when the peer advertises nothing. Every error is
// scoped to this peer.
func (a *Assembler) Assemble(ctx context.Context, req Request) (*model.Beacon, error) {
	budget := req.Timeout
	if budget <= 0 {
		budget = DefaultTimeout
	}
	slice := budget / 3
	domain := strings.Trim(req.Domain, ".")
	serviceType := strings.Trim(req.ServiceType, ".")
	log := a.log.With(zap.String("peer", req.Peer.ID), zap.String("ns", req.Nameserver))

	ptr, err := a.query(ctx, model.RecordPTR, serviceType+"."+domain, req.Nameserver, slice)
	if err != nil {
		return nil, err
	}
	instance, ok := pickInstance(records.ParsePTR(ptr.Text), serviceType, domain)
	if !ok {
		log.Debug("no advertised instance")
		return nil, nil
	}

	srvAns, err := a.query(ctx, model.RecordSRV, instance.FQDN, req.Nameserver, slice)
	if err != nil {
		return nil, err
	}
	if srvAns.Empty() {
		log.Debug("instance without srv", zap.String("instance", instance.FQDN))
		return nil, nil
	}
	srv, err := records.ParseSRV(srvAns.Text)
	if err != nil {
		return nil, err
	}

	txtAns, err := a.query(ctx, model.RecordTXT, instance.FQDN, req.Nameserver, slice)
	if err != nil {
		return nil, err
	}
	var fields model.TXTFields
	if !txtAns.Empty() {
		fields = records.ParseTXT(txtAns.Text)
	}

	b := merge(req, instance, srv, fields)
	log.Debug("beacon assembled", zap.String("displayName", b.DisplayName), zap.Int("port", b.Port))
	return b, nil
}

type answer struct {
	text string
	err  error
}

// query bounds one resolver call by slice even when the runner ignores its
// context; a late runner is left to finish on its own.
func (a *Assembler) query(ctx context.Context, rt model.RecordType, target, ns string, slice time.Duration) (model.RawRecordAnswer, error) {
	raw := model.RawRecordAnswer{Type: rt, Target: target, Nameserver: ns}
	qctx, cancel := context.WithTimeout(ctx, slice)
	defer cancel()

	ch := make(chan answer, 1)
	go func() {
		text, err := a.runner.Query(qctx, rt, target, ns, slice)
		ch <- answer{text: text, err: err}
	}()

	select {
	case ans := <-ch:
		if ans.err != nil {
			if errors.Is(ans.err, resolver.ErrQueryTimeout) || (errors.Is(ans.err, context.DeadlineExceeded) && ctx.Err() == nil) {
				return raw, fmt.Errorf("%w: %s %s @%s: %w", ErrChainTimeout, rt, target, ns, ans.err)
			}
			return raw, fmt.Errorf("%s %s @%s: %w", rt, target, ns, ans.err)
		}
		raw.Text = ans.text
		return raw, nil
	case <-qctx.Done():
		if ctx.Err() != nil {
			return raw, fmt.Errorf("%s %s @%s: %w", rt, target, ns, ctx.Err())
		}
		return raw, fmt.Errorf("%w: %s %s @%s exceeded %s", ErrChainTimeout, rt, target, ns, slice)
	}
}

func pickInstance(instances []records.Instance, serviceType, domain string) (records.Instance, bool) {
	for _, in := range instances {
		if records.HasServiceSuffix(in.FQDN, serviceType, domain) {
			return in, true
		}
	}
	return records.Instance{}, false
}

func merge(req Request, instance records.Instance, srv records.SRV, fields model.TXTFields) *model.Beacon {
	b := &model.Beacon{
		Port:         srv.Port,
		Host:         srv.Target,
		InstanceName: instance.Name,
		PeerID:       req.Peer.ID,
		Nameserver:   req.Nameserver,
		TXT:          fields,
	}
	if v, ok := fields.Get(model.TXTDisplayName); ok {
		b.DisplayName = prettify(v)
	}
	if b.DisplayName == "" {
		b.DisplayName = prettify(instance.Name)
	}
	if b.DisplayName == "" {
		b.DisplayName = srv.Target
	}
	if v, ok := fields.Get(model.TXTGatewayPort); ok {
		if port, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && port > 0 && port <= 65535 {
			b.GatewayPort = &port
		}
	}
	if v, ok := fields.Get(model.TXTTailnetDNS); ok {
		b.TailnetDNS = strings.TrimSuffix(strings.TrimSpace(v), ".")
	}
	if v, ok := fields.Get(model.TXTCLIPath); ok {
		b.CLIPath = strings.TrimSpace(v)
	}
	return b
}

// prettify collapses runs of whitespace.
func prettify(name string) string {
	return strings.Join(strings.Fields(name), " ")
}
