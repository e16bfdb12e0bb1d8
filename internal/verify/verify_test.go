package verify

import (
	"context"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResolver struct {
	hosts   map[string][]string
	err     error
	lookups atomic.Int64
}

func (r *fakeResolver) LookupMX(_ context.Context, domain string) ([]string, error) {
	r.lookups.Add(1)
	if r.err != nil {
		return nil, r.err
	}
	hosts, ok := r.hosts[domain]
	if !ok {
		return nil, &net.DNSError{Err: "no such host", Name: domain, IsNotFound: true}
	}
	return hosts, nil
}

type fakeProber struct {
	mu      sync.Mutex
	probes  []string
	outcome func(recipient string) ProbeOutcome
}

func (p *fakeProber) Probe(_ context.Context, _, recipient string) (ProbeOutcome, error) {
	p.mu.Lock()
	p.probes = append(p.probes, recipient)
	p.mu.Unlock()
	if p.outcome == nil {
		return ProbeRejected, nil
	}
	return p.outcome(recipient), nil
}

func (p *fakeProber) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.probes)
}

// rejectSynthetic accepts real recipients and rejects catch-all probes,
// the shape of a well-behaved exchanger.
func rejectSynthetic(recipient string) ProbeOutcome {
	if strings.HasPrefix(recipient, "probe-") {
		return ProbeRejected
	}
	return ProbeAccepted
}

func TestVerifyNoMXRecord(t *testing.T) {
	resolver := &fakeResolver{hosts: map[string][]string{}}
	v := New(resolver, &fakeProber{})

	res := v.Verify(context.Background(), "jane@nonexistent.example")
	assert.False(t, res.Accepted)
	assert.Equal(t, "no_mx_record", res.Reason)
	assert.Equal(t, "nonexistent.example", res.Domain)
}

func TestVerifyConfirmed(t *testing.T) {
	resolver := &fakeResolver{hosts: map[string][]string{"acme.com": {"mx1.acme.com"}}}
	prober := &fakeProber{outcome: rejectSynthetic}
	v := New(resolver, prober)

	res := v.Verify(context.Background(), "john.smith@acme.com")
	assert.True(t, res.Accepted)
	assert.Equal(t, StatusConfirmed, res.Status)
	assert.Equal(t, "mx1.acme.com", res.MXHost)
}

func TestVerifySMTPRejected(t *testing.T) {
	resolver := &fakeResolver{hosts: map[string][]string{"acme.com": {"mx1.acme.com"}}}
	prober := &fakeProber{outcome: func(string) ProbeOutcome { return ProbeRejected }}
	v := New(resolver, prober)

	res := v.Verify(context.Background(), "ghost@acme.com")
	assert.False(t, res.Accepted)
	assert.Equal(t, "smtp_rejected", res.Reason)
}

func TestVerifyAmbiguousAccepted(t *testing.T) {
	resolver := &fakeResolver{hosts: map[string][]string{"acme.com": {"mx1.acme.com"}}}
	prober := &fakeProber{outcome: func(recipient string) ProbeOutcome {
		if strings.HasPrefix(recipient, "probe-") {
			return ProbeRejected
		}
		return ProbeAmbiguous
	}}
	v := New(resolver, prober)

	res := v.Verify(context.Background(), "maybe@acme.com")
	assert.True(t, res.Accepted)
	assert.Equal(t, StatusUnverifiable, res.Status)
	assert.Equal(t, "smtp_ambiguous", res.Reason)
}

func TestVerifyCatchAllSkipsPerAddressProbe(t *testing.T) {
	resolver := &fakeResolver{hosts: map[string][]string{"catchall.io": {"mx.catchall.io"}}}
	prober := &fakeProber{outcome: func(string) ProbeOutcome { return ProbeAccepted }}
	v := New(resolver, prober)

	res := v.Verify(context.Background(), "anyone@catchall.io")
	require.True(t, res.Accepted)
	assert.Equal(t, StatusCatchAll, res.Status)

	// Only the synthetic catch-all probe should have run.
	require.Equal(t, 1, prober.count())
	assert.True(t, strings.HasPrefix(prober.probes[0], "probe-"))

	v.Verify(context.Background(), "someoneelse@catchall.io")
	assert.Equal(t, 1, prober.count())
}

func TestVerifyDNSFailureAssumeValid(t *testing.T) {
	resolver := &fakeResolver{err: &net.DNSError{Err: "i/o timeout", Name: "acme.com", IsTimeout: true}}
	v := New(resolver, &fakeProber{})

	res := v.Verify(context.Background(), "jane@acme.com")
	assert.True(t, res.Accepted)
	assert.Equal(t, StatusUnverifiable, res.Status)
	assert.Equal(t, "dns_failure", res.Reason)
}

func TestVerifyDNSFailureStrict(t *testing.T) {
	resolver := &fakeResolver{err: &net.DNSError{Err: "i/o timeout", Name: "acme.com", IsTimeout: true}}
	v := New(resolver, &fakeProber{}, WithStrictDNS())

	res := v.Verify(context.Background(), "jane@acme.com")
	assert.False(t, res.Accepted)
	assert.Equal(t, "dns_failure", res.Reason)
}

func TestVerifyDomainProbedOnce(t *testing.T) {
	resolver := &fakeResolver{hosts: map[string][]string{"acme.com": {"mx1.acme.com"}}}
	prober := &fakeProber{outcome: rejectSynthetic}
	v := New(resolver, prober)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := v.Verify(context.Background(), "jane.doe@acme.com")
			assert.True(t, res.Accepted)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), resolver.lookups.Load())
	// One catch-all probe plus one recipient probe per Verify call.
	assert.Equal(t, 17, prober.count())
}

func TestSeedSkipsProbing(t *testing.T) {
	resolver := &fakeResolver{hosts: map[string][]string{}}
	prober := &fakeProber{outcome: rejectSynthetic}
	v := New(resolver, prober)
	v.Seed([]DomainRecord{
		{Domain: "Acme.com", HasMX: true, MXHost: "mx1.acme.com"},
		{Domain: "catchall.io", HasMX: true, MXHost: "mx.catchall.io", CatchAll: true},
	})

	res := v.Verify(context.Background(), "jane.doe@acme.com")
	assert.True(t, res.Accepted)
	assert.Equal(t, StatusConfirmed, res.Status)

	res = v.Verify(context.Background(), "anyone@catchall.io")
	assert.True(t, res.Accepted)
	assert.Equal(t, StatusCatchAll, res.Status)

	assert.Equal(t, int64(0), resolver.lookups.Load())
	// No catch-all probes, only the one recipient probe for acme.com.
	assert.Equal(t, 1, prober.count())
}

type captureSink struct {
	mu   sync.Mutex
	recs []DomainRecord
}

func (s *captureSink) SaveDomainCheck(_ context.Context, rec DomainRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = append(s.recs, rec)
	return nil
}

func TestVerifyPersistsDomainRecord(t *testing.T) {
	resolver := &fakeResolver{hosts: map[string][]string{"acme.com": {"mx1.acme.com"}}}
	prober := &fakeProber{outcome: rejectSynthetic}
	sink := &captureSink{}
	v := New(resolver, prober, WithRecordSink(sink))

	v.Verify(context.Background(), "jane@acme.com")
	v.Verify(context.Background(), "jane@nonexistent.example")

	require.Len(t, sink.recs, 2)
	assert.Equal(t, DomainRecord{Domain: "acme.com", HasMX: true, MXHost: "mx1.acme.com"}, sink.recs[0])
	assert.Equal(t, DomainRecord{Domain: "nonexistent.example"}, sink.recs[1])
}

func TestAdjustConfidence(t *testing.T) {
	assert.InDelta(t, 0.9, AdjustConfidence(0.9, StatusConfirmed), 1e-9)
	assert.InDelta(t, 0.7, AdjustConfidence(0.9, StatusCatchAll), 1e-9)
	assert.InDelta(t, 0.8, AdjustConfidence(0.9, StatusUnverifiable), 1e-9)
	assert.Equal(t, 0.0, AdjustConfidence(0.1, StatusCatchAll))
	assert.Equal(t, 1.0, AdjustConfidence(1.5, StatusConfirmed))
}
