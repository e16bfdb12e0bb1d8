// Package verify estimates whether an address can receive mail without
// sending one: MX resolution, a catch-all probe per domain, and an SMTP
// recipient check per address. Ambiguity resolves toward acceptance; the
// bias is recall over precision and is configurable, not silently
// tightened.
package verify

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Status describes the verification outcome for an accepted address.
type Status string

const (
	// StatusConfirmed means the mail exchanger accepted the recipient.
	StatusConfirmed Status = "confirmed"
	// StatusUnverifiable means the check was ambiguous (4xx, timeout,
	// refusal, DNS failure) and the address is accepted with a penalty.
	StatusUnverifiable Status = "unverifiable"
	// StatusCatchAll means the domain accepts any local part, making a
	// positive probe uninformative.
	StatusCatchAll Status = "catch_all"
)

// Confidence penalties per status, applied to the classifier's base.
const (
	catchAllPenalty     = 0.2
	unverifiablePenalty = 0.1
)

// Result is the outcome of verifying one address.
type Result struct {
	Accepted bool   `json:"accepted"`
	Status   Status `json:"status,omitempty"`
	Domain   string `json:"domain"`
	MXHost   string `json:"mx_host,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// DomainRecord is the cached per-domain verification state.
type DomainRecord struct {
	Domain   string `json:"domain"`
	HasMX    bool   `json:"has_mx"`
	MXHost   string `json:"mx_host,omitempty"`
	CatchAll bool   `json:"is_catch_all"`
}

// Resolver looks up mail exchanger hosts for a domain, best first.
type Resolver interface {
	LookupMX(ctx context.Context, domain string) ([]string, error)
}

// ProbeOutcome classifies an SMTP recipient check.
type ProbeOutcome int

const (
	// ProbeAmbiguous covers 4xx responses, timeouts, refusals and
	// disconnects: nothing definitive either way.
	ProbeAmbiguous ProbeOutcome = iota
	// ProbeAccepted is a 250-class response to RCPT.
	ProbeAccepted
	// ProbeRejected is a definitive 550/551/553-class rejection.
	ProbeRejected
)

// Prober performs a protocol-level recipient check against a mail
// exchanger.
type Prober interface {
	Probe(ctx context.Context, mxHost, recipient string) (ProbeOutcome, error)
}

// RecordSink persists completed domain records. Persistence failures are
// logged and ignored; losing the cache must never fail a run.
type RecordSink interface {
	SaveDomainCheck(ctx context.Context, rec DomainRecord) error
}

// Verifier runs the per-domain verification state machine. Domain state
// is computed once per run and reused for every address on that domain;
// concurrent first lookups on a new domain share a single probe.
type Verifier struct {
	resolver Resolver
	prober   Prober
	limiter  *rate.Limiter
	sink     RecordSink

	// assumeValidOnDNSError accepts addresses whose domain could not be
	// resolved due to transient resolver trouble.
	assumeValidOnDNSError bool

	mu      sync.Mutex
	domains map[string]*domainEntry
}

type domainEntry struct {
	once      sync.Once
	rec       DomainRecord
	dnsFailed bool
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithRateLimit caps SMTP probes per second.
func WithRateLimit(perSecond float64) Option {
	return func(v *Verifier) {
		if perSecond > 0 {
			v.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// WithRecordSink persists domain records as they are computed.
func WithRecordSink(sink RecordSink) Option {
	return func(v *Verifier) {
		v.sink = sink
	}
}

// WithStrictDNS rejects addresses on resolver failure instead of
// assuming deliverability.
func WithStrictDNS() Option {
	return func(v *Verifier) {
		v.assumeValidOnDNSError = false
	}
}

// New creates a Verifier.
func New(resolver Resolver, prober Prober, opts ...Option) *Verifier {
	v := &Verifier{
		resolver:              resolver,
		prober:                prober,
		assumeValidOnDNSError: true,
		domains:               make(map[string]*domainEntry),
	}
	for _, o := range opts {
		o(v)
	}
	return v
}

// Seed preloads domain records from a previous run so known domains skip
// the MX and catch-all probes entirely.
func (v *Verifier) Seed(records []DomainRecord) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, rec := range records {
		e := &domainEntry{}
		rec.Domain = strings.ToLower(rec.Domain)
		e.once.Do(func() { e.rec = rec })
		v.domains[rec.Domain] = e
	}
}

// Verify runs the state machine for one address. The address's shape is
// assumed already validated by extraction.
func (v *Verifier) Verify(ctx context.Context, email string) Result {
	at := strings.LastIndex(email, "@")
	domain := strings.ToLower(email[at+1:])

	entry := v.domainState(ctx, domain)

	if entry.dnsFailed {
		if v.assumeValidOnDNSError {
			return Result{Accepted: true, Status: StatusUnverifiable, Domain: domain, Reason: "dns_failure"}
		}
		return Result{Accepted: false, Domain: domain, Reason: "dns_failure"}
	}

	if !entry.rec.HasMX {
		return Result{Accepted: false, Domain: domain, Reason: "no_mx_record"}
	}

	if entry.rec.CatchAll {
		return Result{Accepted: true, Status: StatusCatchAll, Domain: domain, MXHost: entry.rec.MXHost}
	}

	outcome, err := v.probe(ctx, entry.rec.MXHost, email)
	switch outcome {
	case ProbeAccepted:
		return Result{Accepted: true, Status: StatusConfirmed, Domain: domain, MXHost: entry.rec.MXHost}
	case ProbeRejected:
		return Result{Accepted: false, Domain: domain, MXHost: entry.rec.MXHost, Reason: "smtp_rejected"}
	default:
		if err != nil {
			zap.L().Debug("verify: ambiguous recipient probe",
				zap.String("email", email),
				zap.Error(err),
			)
		}
		return Result{Accepted: true, Status: StatusUnverifiable, Domain: domain, MXHost: entry.rec.MXHost, Reason: "smtp_ambiguous"}
	}
}

// AdjustConfidence applies the status penalty to a base confidence and
// clamps to [0,1].
func AdjustConfidence(base float64, status Status) float64 {
	switch status {
	case StatusCatchAll:
		base -= catchAllPenalty
	case StatusUnverifiable:
		base -= unverifiablePenalty
	}
	if base < 0 {
		return 0
	}
	if base > 1 {
		return 1
	}
	return base
}

// domainState returns the entry for a domain, computing it exactly once.
// Followers block on the in-flight computation instead of duplicating
// the probe.
func (v *Verifier) domainState(ctx context.Context, domain string) *domainEntry {
	v.mu.Lock()
	entry, ok := v.domains[domain]
	if !ok {
		entry = &domainEntry{}
		v.domains[domain] = entry
	}
	v.mu.Unlock()

	entry.once.Do(func() { v.resolveDomain(ctx, domain, entry) })
	return entry
}

func (v *Verifier) resolveDomain(ctx context.Context, domain string, entry *domainEntry) {
	entry.rec = DomainRecord{Domain: domain}

	hosts, err := v.resolver.LookupMX(ctx, domain)
	if err != nil {
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
			v.persist(ctx, entry.rec)
			return
		}
		zap.L().Warn("verify: mx lookup failed",
			zap.String("domain", domain),
			zap.Error(err),
		)
		entry.dnsFailed = true
		return
	}
	if len(hosts) == 0 {
		v.persist(ctx, entry.rec)
		return
	}

	entry.rec.HasMX = true
	entry.rec.MXHost = hosts[0]

	// Catch-all probe: a synthetic local part that cannot exist. If the
	// exchanger accepts it, positive per-address probes mean nothing.
	synthetic := "probe-" + uuid.NewString() + "@" + domain
	outcome, err := v.probe(ctx, entry.rec.MXHost, synthetic)
	if err != nil {
		zap.L().Debug("verify: catch-all probe inconclusive",
			zap.String("domain", domain),
			zap.Error(err),
		)
	}
	entry.rec.CatchAll = outcome == ProbeAccepted
	if entry.rec.CatchAll {
		zap.L().Info("verify: catch-all domain detected", zap.String("domain", domain))
	}

	v.persist(ctx, entry.rec)
}

func (v *Verifier) probe(ctx context.Context, mxHost, recipient string) (ProbeOutcome, error) {
	if v.limiter != nil {
		if err := v.limiter.Wait(ctx); err != nil {
			return ProbeAmbiguous, err
		}
	}
	return v.prober.Probe(ctx, mxHost, recipient)
}

func (v *Verifier) persist(ctx context.Context, rec DomainRecord) {
	if v.sink == nil {
		return
	}
	if err := v.sink.SaveDomainCheck(ctx, rec); err != nil {
		zap.L().Warn("verify: persist domain record failed",
			zap.String("domain", rec.Domain),
			zap.Error(err),
		)
	}
}
