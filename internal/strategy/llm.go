package strategy

import (
	"context"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// completer is the narrow LLM surface the strategy needs.
type completer interface {
	complete(ctx context.Context, prompt string) (string, error)
}

// LLM asks a model for round-appropriate search phrases and falls back
// to the static templates on any failure or empty output.
type LLM struct {
	llm        completer
	maxPhrases int
}

// NewLLM creates an LLM strategy backed by the Anthropic API.
func NewLLM(apiKey, model string, maxPhrases int) *LLM {
	if maxPhrases <= 0 {
		maxPhrases = 5
	}
	return &LLM{
		llm: &sdkCompleter{
			client: sdk.NewClient(option.WithAPIKey(apiKey)),
			model:  model,
		},
		maxPhrases: maxPhrases,
	}
}

const promptTemplate = `You generate web search phrases for finding business contact email addresses.

Topic: %s
Search round: %d

Round guidance: round 1 uses short, high-yield phrasing; rounds 2-3 vary by team and role; later rounds broaden to geography, departments, and company types.

Return exactly %d short search phrases, one per line, no numbering, no commentary.`

// Generate asks the model for phrases; any failure yields the static set.
func (l *LLM) Generate(ctx context.Context, topic string, round int) ([]string, error) {
	text, err := l.llm.complete(ctx, fmt.Sprintf(promptTemplate, topic, round, l.maxPhrases))
	if err != nil {
		zap.L().Warn("strategy: llm generation failed, using static templates",
			zap.String("topic", topic),
			zap.Int("round", round),
			zap.Error(err),
		)
		return Phrases(topic, round), nil
	}

	phrases := parsePhrases(text, l.maxPhrases)
	if len(phrases) == 0 {
		zap.L().Warn("strategy: llm returned no usable phrases, using static templates",
			zap.String("topic", topic),
			zap.Int("round", round),
		)
		return Phrases(topic, round), nil
	}

	return phrases, nil
}

// parsePhrases splits model output into clean phrases, tolerating
// numbering and bullets the prompt asked it not to produce.
func parsePhrases(text string, max int) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*•0123456789.) ")
		line = strings.Trim(line, `"`)
		if line == "" {
			continue
		}
		out = append(out, line)
		if len(out) >= max {
			break
		}
	}
	return out
}

type sdkCompleter struct {
	client sdk.Client
	model  string
}

func (c *sdkCompleter) complete(ctx context.Context, prompt string) (string, error) {
	msg, err := c.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(c.model),
		MaxTokens: 512,
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", eris.Wrap(err, "strategy: create message")
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		sb.WriteString(block.Text)
	}
	return sb.String(), nil
}
