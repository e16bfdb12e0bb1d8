package discovery

import (
	"context"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/contact-discovery/internal/resilience"
	"github.com/sells-group/contact-discovery/internal/verify"
)

// Config bounds a discovery run.
type Config struct {
	// TargetCount is the number of accepted addresses to aim for.
	TargetCount int
	// MinRounds is the floor before the target can end the run; early
	// rounds skew toward the most obvious addresses and stopping there
	// produces shallow results.
	MinRounds int
	// MaxRounds is the hard ceiling on search rounds.
	MaxRounds int
	// MaxEmptyRounds ends the run after this many consecutive rounds
	// that accepted nothing new.
	MaxEmptyRounds int
	// FetchConcurrency limits parallel page fetches and verifications.
	FetchConcurrency int
	// FetchTopN caps how many result pages a round fetches.
	FetchTopN int
	// RetryAttempts is the number of retries per search or fetch call.
	RetryAttempts int
}

func (c Config) withDefaults() Config {
	if c.TargetCount <= 0 {
		c.TargetCount = 5
	}
	if c.MinRounds <= 0 {
		c.MinRounds = 5
	}
	if c.MaxRounds <= 0 {
		c.MaxRounds = 20
	}
	if c.MaxEmptyRounds <= 0 {
		c.MaxEmptyRounds = 5
	}
	if c.FetchConcurrency <= 0 {
		c.FetchConcurrency = 8
	}
	if c.FetchTopN <= 0 {
		c.FetchTopN = 15
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = 2
	}
	return c
}

// promisingKeywords mark result pages likely to list contact details.
var promisingKeywords = []string{"contact", "about", "team", "press"}

// Engine runs the discovery loop.
type Engine struct {
	search   SearchBackend
	fetcher  Fetcher
	strategy Strategy
	verifier Verifier
	history  History
	cfg      Config
	log      *zap.Logger
}

// NewEngine wires the pipeline stages together.
func NewEngine(search SearchBackend, fetcher Fetcher, strategy Strategy, verifier Verifier, history History, cfg Config) *Engine {
	return &Engine{
		search:   search,
		fetcher:  fetcher,
		strategy: strategy,
		verifier: verifier,
		history:  history,
		cfg:      cfg.withDefaults(),
		log:      zap.L().With(zap.String("component", "discovery")),
	}
}

// Run executes rounds until the target is met past the minimum round
// floor, the round ceiling is hit, or too many consecutive rounds come
// up empty. Every accepted address is appended to the campaign history
// even when the returned payload is truncated to the target.
func (e *Engine) Run(ctx context.Context, topic string) (*RunResult, error) {
	start := time.Now()

	// Cache trouble degrades to in-memory-only dedup; a run is never
	// failed over it.
	seen, err := e.history.Load()
	if err != nil {
		e.log.Warn("loading campaign history failed, deduplicating in memory only", zap.Error(err))
		seen = make(map[string]struct{})
	}
	e.log.Info("starting run",
		zap.String("topic", topic),
		zap.Int("target", e.cfg.TargetCount),
		zap.Int("previously_seen", len(seen)),
	)

	var accepted []AcceptedResult
	consecutiveEmpty := 0
	rounds := 0

	for round := 1; round <= e.cfg.MaxRounds; round++ {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "discovery: run canceled")
		}
		rounds = round

		found := e.runRound(ctx, topic, round, seen)
		accepted = append(accepted, found...)

		if len(found) == 0 {
			consecutiveEmpty++
		} else {
			consecutiveEmpty = 0
		}
		e.log.Info("round complete",
			zap.Int("round", round),
			zap.Int("new", len(found)),
			zap.Int("total", len(accepted)),
		)

		if len(accepted) >= e.cfg.TargetCount && round >= e.cfg.MinRounds {
			break
		}
		if consecutiveEmpty >= e.cfg.MaxEmptyRounds {
			e.log.Warn("ending run early", zap.Int("consecutive_empty_rounds", consecutiveEmpty))
			break
		}
	}

	if len(accepted) > 0 {
		emails := make([]string, len(accepted))
		for i, a := range accepted {
			emails[i] = a.Email
		}
		if err := e.history.Append(emails); err != nil {
			e.log.Warn("appending campaign history failed", zap.Error(err))
		}
	}

	targetAchieved := len(accepted) >= e.cfg.TargetCount
	if len(accepted) > e.cfg.TargetCount {
		accepted = accepted[:e.cfg.TargetCount]
	}
	emails := make([]string, len(accepted))
	for i, a := range accepted {
		emails[i] = a.Email
	}

	return &RunResult{
		Success:        len(accepted) > 0,
		Emails:         emails,
		EmailDetails:   accepted,
		TotalEmails:    len(accepted),
		SearchRounds:   rounds,
		ExecutionTime:  math.Round(time.Since(start).Seconds()*100) / 100,
		Industry:       topic,
		TargetAchieved: targetAchieved,
	}, nil
}

// runRound executes one round and returns the newly accepted results.
// seen is updated with every acceptance. Failures inside a round are
// logged and tolerated; a round can only come up empty, never fail the
// run.
func (e *Engine) runRound(ctx context.Context, topic string, round int, seen map[string]struct{}) []AcceptedResult {
	phrases, err := e.strategy.Generate(ctx, topic, round)
	if err != nil || len(phrases) == 0 {
		if err != nil {
			e.log.Warn("phrase generation failed", zap.Int("round", round), zap.Error(err))
		}
		return nil
	}

	results := e.searchAll(ctx, phrases)

	candidates := make(map[string]Candidate)
	merge := func(found []Candidate) {
		for _, c := range found {
			if existing, ok := candidates[c.Email]; ok {
				mergeContext(&existing, candidateContext{name: c.Name, title: c.Title, department: c.Department})
				candidates[c.Email] = existing
				continue
			}
			candidates[c.Email] = c
		}
	}

	// Snippets alone often carry addresses; harvest them before
	// spending fetches.
	for _, r := range results {
		merge(Extract(r.URL, r.Title, []byte(r.Title+" "+r.Content)))
	}

	for _, found := range e.fetchAll(ctx, promising(results, e.cfg.FetchTopN)) {
		merge(found)
	}

	return e.processCandidates(ctx, round, candidates, seen)
}

// searchAll runs every phrase concurrently with retry and collects the
// hits from whichever phrases succeeded.
func (e *Engine) searchAll(ctx context.Context, phrases []string) []SearchResult {
	var mu sync.Mutex
	var results []SearchResult

	g, gctx := errgroup.WithContext(ctx)
	for _, phrase := range phrases {
		g.Go(func() error {
			hits, err := resilience.DoVal(gctx, e.retryConfig("search"), func(ctx context.Context) ([]SearchResult, error) {
				return e.search.Search(ctx, phrase)
			})
			if err != nil {
				e.log.Warn("search phrase failed", zap.String("phrase", phrase), zap.Error(err))
				return nil
			}
			mu.Lock()
			results = append(results, hits...)
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	withAddresses := 0
	for _, r := range results {
		if strings.Contains(r.Content, "@") {
			withAddresses++
		}
	}
	e.log.Debug("search results collected",
		zap.Int("phrases", len(phrases)),
		zap.Int("results", len(results)),
		zap.Int("with_address_signs", withAddresses),
	)
	return results
}

// fetchAll retrieves result pages concurrently and extracts candidates
// from each body.
func (e *Engine) fetchAll(ctx context.Context, results []SearchResult) [][]Candidate {
	found := make([][]Candidate, len(results))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.FetchConcurrency)
	for i, r := range results {
		g.Go(func() error {
			body, err := resilience.DoVal(gctx, e.retryConfig("fetch"), func(ctx context.Context) ([]byte, error) {
				return e.fetcher.Fetch(ctx, r.URL)
			})
			if err != nil {
				e.log.Debug("fetch failed", zap.String("url", r.URL), zap.Error(err))
				return nil
			}
			found[i] = Extract(r.URL, r.Title, body)
			return nil
		})
	}
	g.Wait()
	return found
}

// processCandidates classifies and verifies the round's unique
// candidates. Addresses already seen in this campaign are skipped before
// any probe runs.
func (e *Engine) processCandidates(ctx context.Context, round int, candidates map[string]Candidate, seen map[string]struct{}) []AcceptedResult {
	fresh := make([]Candidate, 0, len(candidates))
	for email, c := range candidates {
		if _, dup := seen[email]; dup {
			continue
		}
		fresh = append(fresh, c)
	}

	var mu sync.Mutex
	var out []AcceptedResult
	verified := make(map[string]struct{})

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.FetchConcurrency)
	for _, c := range fresh {
		g.Go(func() error {
			hasContext := c.Name != "" || c.Title != "" || c.Department != ""
			cls := Classify(c.Email, hasContext)
			if !cls.Accepted {
				e.log.Debug("candidate rejected", zap.String("email", c.Email), zap.String("reason", cls.Reason))
				return nil
			}

			res := e.verifier.Verify(gctx, c.Email)
			mu.Lock()
			verified[c.Email] = struct{}{}
			mu.Unlock()
			if !res.Accepted {
				e.log.Debug("candidate unverifiable", zap.String("email", c.Email), zap.String("reason", res.Reason))
				return nil
			}

			mu.Lock()
			out = append(out, AcceptedResult{
				Email:       c.Email,
				Confidence:  verify.AdjustConfidence(cls.Confidence, res.Status),
				Status:      res.Status,
				Name:        c.Name,
				Title:       c.Title,
				Department:  c.Department,
				SourceURL:   c.SourceURL,
				SourceTitle: c.SourceTitle,
				Round:       round,
			})
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	// Only verified addresses are marked seen. A classification reject
	// stays eligible: a later round may find the same address with name
	// or title context and accept it.
	for email := range verified {
		seen[email] = struct{}{}
	}
	return out
}

// promising filters results whose URL or title hint at contact pages,
// falling back to the top of the list when nothing matches.
func promising(results []SearchResult, topN int) []SearchResult {
	var keep []SearchResult
	for _, r := range results {
		haystack := strings.ToLower(r.URL + " " + r.Title)
		for _, kw := range promisingKeywords {
			if strings.Contains(haystack, kw) {
				keep = append(keep, r)
				break
			}
		}
	}
	if len(keep) == 0 {
		keep = results
	}
	if len(keep) > topN {
		keep = keep[:topN]
	}
	return keep
}

func (e *Engine) retryConfig(operation string) resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts: e.cfg.RetryAttempts + 1,
		OnRetry:     resilience.RetryLogger("discovery", operation),
	}
}
