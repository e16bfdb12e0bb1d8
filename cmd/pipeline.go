package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/contact-discovery/internal/dedup"
	"github.com/sells-group/contact-discovery/internal/discovery"
	"github.com/sells-group/contact-discovery/internal/fetch"
	"github.com/sells-group/contact-discovery/internal/store"
	"github.com/sells-group/contact-discovery/internal/strategy"
	"github.com/sells-group/contact-discovery/internal/verify"
	"github.com/sells-group/contact-discovery/pkg/searxng"
)

// Domain records older than this are re-probed rather than trusted.
const domainCheckMaxAge = 24 * time.Hour

// discoveryEnv holds the initialized store and pipeline stages shared by
// the discover and serve commands.
type discoveryEnv struct {
	store    *store.SQLiteStore
	search   discovery.SearchBackend
	fetcher  discovery.Fetcher
	strategy discovery.Strategy
	verifier discovery.Verifier
	dedup    *dedup.Store
	runCfg   discovery.Config
}

// Close releases resources held by the environment.
func (env *discoveryEnv) Close() {
	if env.store != nil {
		_ = env.store.Close()
	}
}

// initDiscovery sets up the store, search backend, fetcher, phrase
// strategy, and verifier. Callers should defer env.Close().
func initDiscovery(ctx context.Context) (*discoveryEnv, error) {
	st, err := store.NewSQLite(cfg.Store.Path)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	searchClient := searxng.NewClient(
		searxng.WithBaseURL(cfg.Search.BaseURL),
		searxng.WithMaxResults(cfg.Search.MaxResults),
		searxng.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Search.TimeoutSecs) * time.Second}),
	)
	backend := &searchBackend{client: searchClient}
	if cfg.Search.RateLimit > 0 {
		backend.limiter = rate.NewLimiter(rate.Limit(cfg.Search.RateLimit), 1)
	}

	fetcher := fetch.NewHTTPFetcher(
		fetch.WithTimeout(time.Duration(cfg.Fetch.TimeoutSecs)*time.Second),
		fetch.WithUserAgent(cfg.Fetch.UserAgent),
		fetch.WithMaxBodyBytes(cfg.Fetch.MaxBodyBytes),
	)

	var strat discovery.Strategy
	if cfg.Strategy.AnthropicKey != "" {
		strat = strategy.NewLLM(cfg.Strategy.AnthropicKey, cfg.Strategy.Model, cfg.Strategy.MaxPhrases)
		zap.L().Info("llm phrase generation enabled", zap.String("model", cfg.Strategy.Model))
	} else {
		strat = strategy.NewStatic()
		zap.L().Debug("DISCOVERY_STRATEGY_ANTHROPIC_KEY not set, using static phrase templates")
	}

	verifyOpts := []verify.Option{
		verify.WithRateLimit(cfg.Verify.ProbeRateLimit),
		verify.WithRecordSink(st),
	}
	if !cfg.Verify.AssumeValidOnDNSError {
		verifyOpts = append(verifyOpts, verify.WithStrictDNS())
	}
	verifier := verify.New(
		verify.NewNetResolver(cfg.Verify.DNSTimeout()),
		verify.NewDialProber(cfg.Verify.HelloDomain, cfg.Verify.MailFrom, cfg.Verify.SMTPTimeout()),
		verifyOpts...,
	)
	if recs, err := st.LoadDomainChecks(ctx, domainCheckMaxAge); err != nil {
		zap.L().Warn("loading cached domain checks failed", zap.Error(err))
	} else if len(recs) > 0 {
		verifier.Seed(recs)
		zap.L().Info("seeded verifier from domain cache", zap.Int("domains", len(recs)))
	}

	dedupStore, err := dedup.NewStore(cfg.Cache.Dir)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	return &discoveryEnv{
		store:    st,
		search:   backend,
		fetcher:  fetcher,
		strategy: strat,
		verifier: verifier,
		dedup:    dedupStore,
		runCfg: discovery.Config{
			TargetCount:      cfg.Discovery.TargetCount,
			MinRounds:        cfg.Discovery.MinRounds,
			MaxRounds:        cfg.Discovery.MaxRounds,
			MaxEmptyRounds:   cfg.Discovery.MaxEmptyRounds,
			FetchConcurrency: cfg.Discovery.FetchConcurrency,
			FetchTopN:        cfg.Discovery.FetchTopN,
			RetryAttempts:    cfg.Discovery.RetryAttempts,
		},
	}, nil
}

func (env *discoveryEnv) newEngine(topic, sessionID string, target int) *discovery.Engine {
	runCfg := env.runCfg
	if target > 0 {
		runCfg.TargetCount = target
	}
	campaign := dedup.NewCampaign(env.dedup, topic, sessionID)
	return discovery.NewEngine(env.search, env.fetcher, env.strategy, env.verifier, campaign, runCfg)
}

// runDiscovery creates a ledger row and executes a run synchronously.
// A ledger failure is logged and the run proceeds without bookkeeping.
func (env *discoveryEnv) runDiscovery(ctx context.Context, topic, sessionID string, target int) (*discovery.RunResult, error) {
	runID := ""
	if run, err := env.store.CreateRun(ctx, topic, sessionID); err != nil {
		zap.L().Warn("creating run record failed, continuing without ledger", zap.Error(err))
	} else {
		runID = run.ID
	}
	return env.executeRun(ctx, runID, topic, sessionID, target)
}

// executeRun drives the engine for an existing ledger row. Ledger
// updates are best effort once the run itself has an outcome.
func (env *discoveryEnv) executeRun(ctx context.Context, runID, topic, sessionID string, target int) (*discovery.RunResult, error) {
	result, err := env.newEngine(topic, sessionID, target).Run(ctx, topic)
	if err != nil {
		if runID != "" {
			if ferr := env.store.FailRun(context.WithoutCancel(ctx), runID, err); ferr != nil {
				zap.L().Warn("recording run failure failed", zap.String("run_id", runID), zap.Error(ferr))
			}
		}
		return nil, err
	}
	if runID != "" {
		if cerr := env.store.CompleteRun(ctx, runID, result); cerr != nil {
			zap.L().Warn("recording run result failed", zap.String("run_id", runID), zap.Error(cerr))
		}
	}
	return result, nil
}

// searchBackend adapts the SearxNG client to the discovery pipeline and
// paces queries.
type searchBackend struct {
	client  searxng.Client
	limiter *rate.Limiter
}

func (s *searchBackend) Search(ctx context.Context, query string) ([]discovery.SearchResult, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	hits, err := s.client.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	out := make([]discovery.SearchResult, len(hits))
	for i, h := range hits {
		out[i] = discovery.SearchResult{Title: h.Title, URL: h.URL, Content: h.Content}
	}
	return out, nil
}
