// Package synonyms asks a language model for business synonyms of master items.
package synonyms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	loggerpkg "github.com/minhyannv/vocab-enricher/pkg/logger"
	"github.com/minhyannv/vocab-enricher/pkg/vocabulary"
)

// ErrMalformedResponse is returned when the model reply is not a JSON array of strings.
var ErrMalformedResponse = errors.New("model response is not a JSON array of strings")

// Completer sends a single prompt to a language model and returns its text reply.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// OpenAICompleter is a Completer backed by the OpenAI chat completions API.
type OpenAICompleter struct {
	client openai.Client
	model  string
}

// NewOpenAICompleter builds a completer for model.
func NewOpenAICompleter(apiKey, baseURL, model string) *OpenAICompleter {
	opts := []option.RequestOption{}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	return &OpenAICompleter{client: openai.NewClient(opts...), model: model}
}

// Complete implements Completer.
func (c *OpenAICompleter) Complete(ctx context.Context, prompt string) (string, error) {
	completion, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{openai.UserMessage(prompt)},
	})
	if err != nil {
		return "", err
	}
	if len(completion.Choices) == 0 {
		return "", errors.New("empty completion choices")
	}
	return completion.Choices[0].Message.Content, nil
}

// Generator turns item properties into a normalized list of terms.
type Generator struct {
	completer Completer
	template  Template
	logger    loggerpkg.Logger
	verbose   bool
}

// NewGenerator builds a Generator. A nil logger discards output.
func NewGenerator(completer Completer, tmpl Template, logger loggerpkg.Logger, verbose bool) *Generator {
	if logger == nil {
		logger = loggerpkg.NopLogger{}
	}
	if tmpl.MaxTerms <= 0 {
		tmpl.MaxTerms = DefaultMaxTerms
	}
	return &Generator{completer: completer, template: tmpl, logger: logger, verbose: verbose}
}

// Synonyms returns at most Template.MaxTerms terms for props.
func (g *Generator) Synonyms(ctx context.Context, props vocabulary.ItemProperties) ([]string, error) {
	if strings.TrimSpace(props.Title) == "" {
		return nil, errors.New("item has no title")
	}
	prompt := g.template.Render(props)
	loggerpkg.Debug(g.verbose, g.logger, "synonym prompt", map[string]any{"title": props.Title, "prompt": prompt})

	raw, err := g.completer.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("complete: %w", err)
	}
	loggerpkg.Debug(g.verbose, g.logger, "synonym response", map[string]any{"title": props.Title, "response": raw})

	terms, err := ParseTerms(raw)
	if err != nil {
		return nil, err
	}
	include := ""
	if g.template.IncludeTitle {
		include = strings.TrimSpace(props.Title)
	}
	return normalizeTerms(terms, include, g.template.MaxTerms), nil
}

// ParseTerms decodes a model reply that must be a JSON array of strings.
// A single surrounding markdown code fence is tolerated.
func ParseTerms(raw string) ([]string, error) {
	text := stripCodeFence(strings.TrimSpace(raw))
	if !strings.HasPrefix(text, "[") {
		return nil, fmt.Errorf("%w: %q", ErrMalformedResponse, truncate(raw, 80))
	}
	var terms []string
	if err := json.Unmarshal([]byte(text), &terms); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return terms, nil
}

func stripCodeFence(text string) string {
	if !strings.HasPrefix(text, "```") || !strings.HasSuffix(text, "```") || len(text) < 6 {
		return text
	}
	inner := strings.TrimSuffix(strings.TrimPrefix(text, "```"), "```")
	if nl := strings.Index(inner, "\n"); nl >= 0 && !strings.HasPrefix(strings.TrimSpace(inner[:nl]), "[") {
		inner = inner[nl+1:]
	}
	return strings.TrimSpace(inner)
}

// normalizeTerms trims, drops empties and case-insensitive duplicates, makes
// sure title is present when non-empty, and caps the list at limit.
func normalizeTerms(terms []string, title string, limit int) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(terms)+1)
	for _, term := range terms {
		term = strings.TrimSpace(term)
		key := strings.ToLower(term)
		if term == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, term)
	}
	if title != "" {
		idx := -1
		for i, term := range out {
			if strings.EqualFold(term, title) {
				idx = i
				break
			}
		}
		if idx < 0 || (limit > 0 && idx >= limit) {
			if idx >= 0 {
				out = append(out[:idx], out[idx+1:]...)
			}
			out = append([]string{title}, out...)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
