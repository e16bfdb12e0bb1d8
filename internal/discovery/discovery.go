// Package discovery orchestrates round-based email discovery: generate
// search phrases, collect pages, extract and classify candidates, verify
// deliverability, and deduplicate against prior runs in the same
// campaign.
package discovery

import (
	"context"

	"github.com/sells-group/contact-discovery/internal/verify"
)

// SearchResult is one hit returned by the search backend.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

// SearchBackend runs a web search for one phrase.
type SearchBackend interface {
	Search(ctx context.Context, query string) ([]SearchResult, error)
}

// Fetcher retrieves a page body.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Strategy produces search phrases for a topic, keyed by round so later
// rounds broaden rather than repeat.
type Strategy interface {
	Generate(ctx context.Context, topic string, round int) ([]string, error)
}

// Verifier checks deliverability for an address.
type Verifier interface {
	Verify(ctx context.Context, email string) verify.Result
}

// History is the campaign-scoped dedup cache: addresses accepted by
// earlier runs under the same topic and session.
type History interface {
	Load() (map[string]struct{}, error)
	Append(emails []string) error
}

// Candidate is an extracted address plus whatever surrounding context
// the source page yielded.
type Candidate struct {
	Email       string `json:"email"`
	Name        string `json:"name,omitempty"`
	Title       string `json:"title,omitempty"`
	Department  string `json:"department,omitempty"`
	SourceURL   string `json:"source_url,omitempty"`
	SourceTitle string `json:"source_title,omitempty"`
}

// AcceptedResult is a candidate that survived classification,
// verification and dedup.
type AcceptedResult struct {
	Email       string        `json:"email"`
	Confidence  float64       `json:"confidence"`
	Status      verify.Status `json:"status"`
	Name        string        `json:"name,omitempty"`
	Title       string        `json:"title,omitempty"`
	Department  string        `json:"department,omitempty"`
	SourceURL   string        `json:"source_url,omitempty"`
	SourceTitle string        `json:"source_title,omitempty"`
	Round       int           `json:"round"`
}

// RunResult is the payload a discovery run produces.
type RunResult struct {
	Success        bool             `json:"success"`
	Emails         []string         `json:"emails"`
	EmailDetails   []AcceptedResult `json:"email_details"`
	TotalEmails    int              `json:"total_emails"`
	SearchRounds   int              `json:"search_rounds"`
	ExecutionTime  float64          `json:"execution_time"`
	Industry       string           `json:"industry"`
	TargetAchieved bool             `json:"target_achieved"`
}
