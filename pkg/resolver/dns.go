package resolver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/miekg/dns"
	"go.uber.org/zap"

	"tailbeacon/pkg/logging"
	"tailbeacon/pkg/model"
)

// DNSRunner queries the nameserver directly and renders answers the way
// `dig +short` prints them, so both runners feed the same parsers.
type DNSRunner struct {
	Port string
	Net  string // "udp" (default) or "tcp"
	log  *zap.Logger
}

// NewDNSRunner returns a runner that talks to nameserver:port.
func NewDNSRunner(port string, log *zap.Logger) *DNSRunner {
	if port == "" {
		port = "53"
	}
	return &DNSRunner{Port: port, Net: "udp", log: logging.OrNop(log).Named("dns")}
}

var queryTypes = map[model.RecordType]uint16{
	model.RecordPTR: dns.TypePTR,
	model.RecordSRV: dns.TypeSRV,
	model.RecordTXT: dns.TypeTXT,
}

func (r *DNSRunner) Query(ctx context.Context, recordType model.RecordType, target, nameserver string, timeout time.Duration) (string, error) {
	qtype, ok := queryTypes[recordType]
	if !ok {
		return "", fmt.Errorf("%w: unsupported record type %q", ErrQueryFailed, recordType)
	}
	timeout = effectiveTimeout(timeout)
	qctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(target), qtype)
	msg.RecursionDesired = true
	client := &dns.Client{Net: r.Net, Timeout: timeout}
	in, _, err := client.ExchangeContext(qctx, msg, net.JoinHostPort(nameserver, r.Port))
	if err != nil {
		var nerr net.Error
		if errors.Is(qctx.Err(), context.DeadlineExceeded) || (errors.As(err, &nerr) && nerr.Timeout()) {
			return "", fmt.Errorf("%w: %s %s @%s: %v", ErrQueryTimeout, recordType, target, nameserver, err)
		}
		return "", fmt.Errorf("%w: %s %s @%s: %v", ErrQueryFailed, recordType, target, nameserver, err)
	}
	switch in.Rcode {
	case dns.RcodeSuccess, dns.RcodeNameError:
	default:
		r.log.Debug("non-success rcode", zap.String("target", target), zap.String("rcode", dns.RcodeToString[in.Rcode]))
		return "", fmt.Errorf("%w: %s %s @%s: rcode %s", ErrQueryFailed, recordType, target, nameserver, dns.RcodeToString[in.Rcode])
	}
	return renderShort(in.Answer, qtype), nil
}

// renderShort mirrors dig +short output for the record types we ask for.
func renderShort(answers []dns.RR, qtype uint16) string {
	var b strings.Builder
	for _, rr := range answers {
		if rr.Header().Rrtype != qtype {
			continue
		}
		switch v := rr.(type) {
		case *dns.PTR:
			b.WriteString(v.Ptr)
		case *dns.SRV:
			b.WriteString(strconv.Itoa(int(v.Priority)))
			b.WriteByte(' ')
			b.WriteString(strconv.Itoa(int(v.Weight)))
			b.WriteByte(' ')
			b.WriteString(strconv.Itoa(int(v.Port)))
			b.WriteByte(' ')
			b.WriteString(v.Target)
		case *dns.TXT:
			for i, s := range v.Txt {
				if i > 0 {
					b.WriteByte(' ')
				}
				b.WriteByte('"')
				b.WriteString(s)
				b.WriteByte('"')
			}
		default:
			continue
		}
		b.WriteByte('\n')
	}
	return b.String()
}
