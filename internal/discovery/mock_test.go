package discovery

import (
	"context"
	"sync"

	"github.com/sells-group/contact-discovery/internal/verify"
)

type mockSearch struct {
	mu      sync.Mutex
	results map[string][]SearchResult // keyed by query, "" is the default
	err     error
	queries []string
}

func (m *mockSearch) Search(_ context.Context, query string) ([]SearchResult, error) {
	m.mu.Lock()
	m.queries = append(m.queries, query)
	m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	if hits, ok := m.results[query]; ok {
		return hits, nil
	}
	return m.results[""], nil
}

type mockFetcher struct {
	mu    sync.Mutex
	pages map[string][]byte
	urls  []string
}

func (m *mockFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	m.mu.Lock()
	m.urls = append(m.urls, url)
	m.mu.Unlock()
	if body, ok := m.pages[url]; ok {
		return body, nil
	}
	return nil, context.Canceled
}

type mockStrategy struct {
	phrases map[int][]string // keyed by round
	err     error
}

func (m *mockStrategy) Generate(_ context.Context, topic string, round int) ([]string, error) {
	if m.err != nil {
		return nil, m.err
	}
	if p, ok := m.phrases[round]; ok {
		return p, nil
	}
	return []string{topic + " contact"}, nil
}

type mockVerifier struct {
	mu      sync.Mutex
	results map[string]verify.Result // keyed by email
	calls   map[string]int
}

func newMockVerifier(results map[string]verify.Result) *mockVerifier {
	return &mockVerifier{results: results, calls: make(map[string]int)}
}

func (m *mockVerifier) Verify(_ context.Context, email string) verify.Result {
	m.mu.Lock()
	m.calls[email]++
	m.mu.Unlock()
	if res, ok := m.results[email]; ok {
		return res
	}
	return verify.Result{Accepted: true, Status: verify.StatusConfirmed}
}

func (m *mockVerifier) callCount(email string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[email]
}

type mockHistory struct {
	mu       sync.Mutex
	seen     map[string]struct{}
	appended []string
	loadErr  error
}

func newMockHistory(seen ...string) *mockHistory {
	m := &mockHistory{seen: make(map[string]struct{})}
	for _, s := range seen {
		m.seen[s] = struct{}{}
	}
	return m
}

func (m *mockHistory) Load() (map[string]struct{}, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]struct{}, len(m.seen))
	for k := range m.seen {
		out[k] = struct{}{}
	}
	return out, nil
}

func (m *mockHistory) Append(emails []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appended = append(m.appended, emails...)
	return nil
}
