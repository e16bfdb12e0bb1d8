// Package strategy produces search phrases for discovery rounds. Early
// rounds favor short high-yield phrasing; later rounds broaden to roles
// and organizational axes.
package strategy

import (
	"context"
	"fmt"
)

// Strategy generates a batch of search phrases for a topic and round.
type Strategy interface {
	Generate(ctx context.Context, topic string, round int) ([]string, error)
}

var roundTemplates = [][]string{
	// Round 1: short, high-yield contact phrasing.
	{
		"%s email contact",
		"%s CEO email",
		"%s founder contact",
		"%s business email",
		"%s company contact",
	},
	// Round 2: short variants.
	{
		"%s team email",
		"%s sales contact",
		"%s support email",
		"%s info contact",
		"%s director email",
	},
	// Round 3: role axes.
	{
		"%s manager email",
		"%s consultant contact",
		"%s specialist email",
		"%s expert contact",
		"%s advisor email",
	},
}

var broadTemplates = []string{
	"%s startup email",
	"%s company email",
	"%s business contact",
	"%s executive email",
	"%s owner contact",
}

// Phrases returns the deterministic phrase batch for a topic and round.
// Rounds beyond the keyed templates reuse the broad set.
func Phrases(topic string, round int) []string {
	templates := broadTemplates
	if round >= 1 && round <= len(roundTemplates) {
		templates = roundTemplates[round-1]
	}

	out := make([]string, len(templates))
	for i, t := range templates {
		out[i] = fmt.Sprintf(t, topic)
	}
	return out
}

// Static is the deterministic template strategy. It never fails.
type Static struct{}

// NewStatic creates a Static strategy.
func NewStatic() *Static {
	return &Static{}
}

// Generate returns the round-keyed template phrases.
func (s *Static) Generate(_ context.Context, topic string, round int) ([]string, error) {
	return Phrases(topic, round), nil
}
