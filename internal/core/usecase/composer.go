package usecase

import (
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/source-knowledge/internal/core/domain"
)

const DefaultInstruction = "Using the contexts below, answer the query."

// PromptComposer renders the augmented prompt:
//
//	<instruction>
//
//	Contexts:
//	<doc 1 text>
//	<doc 2 text>
//
//	Query: <query>
//
// Compose is pure: the output depends only on the configuration and inputs.
type PromptComposer struct {
	instruction     string
	maxContextChars int
}

type ComposerOption func(*PromptComposer)

// WithInstruction replaces the instruction line.
func WithInstruction(instruction string) ComposerOption {
	return func(c *PromptComposer) {
		if s := strings.TrimSpace(instruction); s != "" {
			c.instruction = s
		}
	}
}

// WithMaxContextChars bounds the contexts block, counted in runes including
// separators. Zero or negative means unlimited.
func WithMaxContextChars(limit int) ComposerOption {
	return func(c *PromptComposer) {
		if limit < 0 {
			limit = 0
		}
		c.maxContextChars = limit
	}
}

func NewPromptComposer(opts ...ComposerOption) *PromptComposer {
	c := &PromptComposer{instruction: DefaultInstruction}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *PromptComposer) Compose(query string, results []domain.RetrievalResult) string {
	return c.ComposeWithSources(query, results).Text
}

func (c *PromptComposer) ComposeWithSources(query string, results []domain.RetrievalResult) domain.ComposedPrompt {
	used := c.applyBudget(results)

	texts := make([]string, 0, len(used))
	for _, r := range used {
		texts = append(texts, r.Document.Text)
	}

	var b strings.Builder
	b.WriteString(c.instruction)
	b.WriteString("\n\nContexts:\n")
	b.WriteString(strings.Join(texts, "\n"))
	b.WriteString("\n\nQuery: ")
	b.WriteString(query)

	return domain.ComposedPrompt{
		Text:    b.String(),
		Sources: used,
	}
}

// applyBudget keeps the longest prefix of results whose joined text fits the
// budget. The first document that would overflow ends the prefix.
func (c *PromptComposer) applyBudget(results []domain.RetrievalResult) []domain.RetrievalResult {
	used := make([]domain.RetrievalResult, 0, len(results))
	if c.maxContextChars <= 0 {
		return append(used, results...)
	}

	total := 0
	for i, r := range results {
		size := utf8.RuneCountInString(r.Document.Text)
		if i > 0 {
			size++
		}
		if total+size > c.maxContextChars {
			break
		}
		total += size
		used = append(used, r)
	}
	return used
}
