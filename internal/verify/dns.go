package verify

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// NetResolver resolves MX records with the system resolver under a
// bounded timeout.
type NetResolver struct {
	resolver *net.Resolver
	timeout  time.Duration
}

// NewNetResolver creates a resolver. A zero timeout defaults to 5s.
func NewNetResolver(timeout time.Duration) *NetResolver {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &NetResolver{resolver: net.DefaultResolver, timeout: timeout}
}

// LookupMX returns exchanger hosts in preference order, trailing dots
// stripped. DNS not-found errors pass through unwrapped so callers can
// distinguish them from resolver failures.
func (r *NetResolver) LookupMX(ctx context.Context, domain string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	records, err := r.resolver.LookupMX(ctx, domain)
	if err != nil {
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
			return nil, err
		}
		return nil, eris.Wrapf(err, "verify: mx lookup for %s", domain)
	}

	hosts := make([]string, 0, len(records))
	for _, mx := range records {
		host := strings.TrimSuffix(mx.Host, ".")
		if host != "" {
			hosts = append(hosts, host)
		}
	}
	return hosts, nil
}
