package usecase

import (
	"strings"
	"testing"

	"github.com/kirillkom/source-knowledge/internal/core/domain"
)

func TestComposeTemplate(t *testing.T) {
	c := NewPromptComposer()
	got := c.Compose("what?", []domain.RetrievalResult{result("a", "first", 1), result("b", "second", 0.5)})

	want := "Using the contexts below, answer the query.\n\nContexts:\nfirst\nsecond\n\nQuery: what?"
	if got != want {
		t.Fatalf("Compose() = %q, want %q", got, want)
	}
}

func TestComposeIsIdempotent(t *testing.T) {
	c := NewPromptComposer(WithInstruction("Answer briefly."))
	results := []domain.RetrievalResult{result("a", "first", 1)}

	if c.Compose("q", results) != c.Compose("q", results) {
		t.Fatalf("expected identical output for identical inputs")
	}
}

func TestComposeEmptyResults(t *testing.T) {
	got := NewPromptComposer().Compose("x", nil)

	if !strings.Contains(got, "Contexts:\n\n\nQuery: x") {
		t.Fatalf("expected empty contexts block, got %q", got)
	}
}

func TestComposeKeepsResultOrder(t *testing.T) {
	got := NewPromptComposer().Compose("q", []domain.RetrievalResult{result("a", "low", 0.1), result("b", "high", 0.9)})

	if strings.Index(got, "low") > strings.Index(got, "high") {
		t.Fatalf("expected input order to be kept, got %q", got)
	}
}

func TestComposeAppliesBudget(t *testing.T) {
	c := NewPromptComposer(WithMaxContextChars(8))
	composed := c.ComposeWithSources("q", []domain.RetrievalResult{
		result("a", "abcd", 1),
		result("b", "efgh", 0.8),
		result("c", "ij", 0.6),
	})

	if len(composed.Sources) != 1 || composed.Sources[0].Document.ID != "a" {
		t.Fatalf("expected only first source within budget, got %+v", composed.Sources)
	}
	if strings.Contains(composed.Text, "ij") {
		t.Fatalf("expected documents after the first overflow to be dropped, got %q", composed.Text)
	}
}

func TestComposeBudgetCountsRunes(t *testing.T) {
	c := NewPromptComposer(WithMaxContextChars(9))
	composed := c.ComposeWithSources("q", []domain.RetrievalResult{
		result("a", "длина", 1),
		result("b", "мир", 0.8),
	})

	if len(composed.Sources) != 2 {
		t.Fatalf("expected both sources to fit in 9 runes, got %d", len(composed.Sources))
	}
}
