package retrieval

import (
	"strings"
	"testing"
)

func TestHighlightWrapsMatchingTerm(t *testing.T) {
	content := "The quarterly report shows revenue grew significantly this quarter across all regions."
	got := Highlight(content, []string{"revenue"}, 6)
	if !strings.Contains(got, "<mark>revenue</mark>") {
		t.Fatalf("expected revenue to be marked, got %q", got)
	}
}

func TestHighlightReturnsOriginalWhenNoMatch(t *testing.T) {
	content := "Nothing relevant is mentioned here at all."
	got := Highlight(content, []string{"xyzzy"}, 6)
	if got != content {
		t.Fatalf("expected unchanged content on no match, got %q", got)
	}
}

func TestHighlightReturnsOriginalWhenNoTerms(t *testing.T) {
	content := "Some content"
	if got := Highlight(content, nil, 6); got != content {
		t.Fatalf("expected unchanged content with no query terms, got %q", got)
	}
}

func TestHighlightPicksDensestWindow(t *testing.T) {
	content := strings.Repeat("filler word here. ", 20) + "budget review budget review budget numbers." + strings.Repeat(" more filler text", 20)
	got := Highlight(content, []string{"budget", "review"}, 10)
	if strings.Count(got, "<mark>") < 2 {
		t.Fatalf("expected the densest window to be selected with multiple marks, got %q", got)
	}
}

func TestTokenizeWithOffsetsRoundTrip(t *testing.T) {
	content := "Hello, world! 123"
	tokens := tokenizeWithOffsets(content)
	if len(tokens) != 3 {
		t.Fatalf("expected 3 tokens, got %d: %+v", len(tokens), tokens)
	}
	for _, tok := range tokens {
		if content[tok.start:tok.end] != tok.word {
			t.Fatalf("offset mismatch for token %q", tok.word)
		}
	}
}
