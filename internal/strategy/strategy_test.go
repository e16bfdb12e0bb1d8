package strategy

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPhrasesByRound(t *testing.T) {
	r1 := Phrases("fintech", 1)
	require.Len(t, r1, 5)
	assert.Equal(t, "fintech email contact", r1[0])
	assert.Equal(t, "fintech CEO email", r1[1])

	r2 := Phrases("fintech", 2)
	assert.Equal(t, "fintech team email", r2[0])

	r3 := Phrases("fintech", 3)
	assert.Equal(t, "fintech manager email", r3[0])

	// Rounds past the keyed templates reuse the broad set.
	r4 := Phrases("fintech", 4)
	r9 := Phrases("fintech", 9)
	assert.Equal(t, r4, r9)
	assert.Equal(t, "fintech startup email", r4[0])
}

func TestPhrasesDeterministic(t *testing.T) {
	assert.Equal(t, Phrases("solar energy", 2), Phrases("solar energy", 2))
}

func TestStaticGenerate(t *testing.T) {
	s := NewStatic()
	phrases, err := s.Generate(context.Background(), "biotech", 1)
	require.NoError(t, err)
	assert.Equal(t, Phrases("biotech", 1), phrases)
}

type stubCompleter struct {
	text string
	err  error
}

func (s *stubCompleter) complete(_ context.Context, _ string) (string, error) {
	return s.text, s.err
}

func TestLLMGenerate(t *testing.T) {
	l := &LLM{
		llm:        &stubCompleter{text: "fintech CFO email\n2. fintech compliance contact\n- \"fintech payments team email\"\n\n"},
		maxPhrases: 5,
	}

	phrases, err := l.Generate(context.Background(), "fintech", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"fintech CFO email",
		"fintech compliance contact",
		"fintech payments team email",
	}, phrases)
}

func TestLLMGenerateCapsPhrases(t *testing.T) {
	l := &LLM{
		llm:        &stubCompleter{text: "a\nb\nc\nd\ne\nf\ng"},
		maxPhrases: 3,
	}

	phrases, err := l.Generate(context.Background(), "x", 1)
	require.NoError(t, err)
	assert.Len(t, phrases, 3)
}

func TestLLMFallsBackOnError(t *testing.T) {
	l := &LLM{
		llm:        &stubCompleter{err: errors.New("api unavailable")},
		maxPhrases: 5,
	}

	phrases, err := l.Generate(context.Background(), "fintech", 1)
	require.NoError(t, err)
	assert.Equal(t, Phrases("fintech", 1), phrases)
}

func TestLLMFallsBackOnEmptyOutput(t *testing.T) {
	l := &LLM{
		llm:        &stubCompleter{text: "\n\n  \n"},
		maxPhrases: 5,
	}

	phrases, err := l.Generate(context.Background(), "fintech", 3)
	require.NoError(t, err)
	assert.Equal(t, Phrases("fintech", 3), phrases)
}
