package enhance

import (
	"context"
	"testing"

	"github.com/kenny-project/kenny/cache"
)

func TestEnhanceClassifiesCommand(t *testing.T) {
	e := New(nil, cache.New(10, 1, 0))
	out, err := e.Enhance(context.Background(), "create a reminder to call Alice tomorrow")
	if err != nil {
		t.Fatalf("enhance: %v", err)
	}
	if out.Intent != IntentCommand {
		t.Fatalf("expected command intent, got %s", out.Intent)
	}
}

func TestEnhanceClassifiesQuestion(t *testing.T) {
	e := New(nil, cache.New(10, 1, 0))
	out, err := e.Enhance(context.Background(), "what did Bob say about the Lisbon trip?")
	if err != nil {
		t.Fatalf("enhance: %v", err)
	}
	if out.Intent != IntentQuestion {
		t.Fatalf("expected question intent, got %s", out.Intent)
	}
}

func TestEnhanceClassifiesSearch(t *testing.T) {
	e := New(nil, cache.New(10, 1, 0))
	out, err := e.Enhance(context.Background(), "Lisbon trip itinerary")
	if err != nil {
		t.Fatalf("enhance: %v", err)
	}
	if out.Intent != IntentSearch {
		t.Fatalf("expected search intent, got %s", out.Intent)
	}
}

func TestEnhanceExtractsQuotedAndCapitalizedEntities(t *testing.T) {
	e := New(nil, cache.New(10, 1, 0))
	out, err := e.Enhance(context.Background(), `find messages from Alice Smith about "project kenny"`)
	if err != nil {
		t.Fatalf("enhance: %v", err)
	}
	found := map[string]bool{}
	for _, ent := range out.Entities {
		found[ent.Value] = true
	}
	if !found["Alice Smith"] {
		t.Errorf("expected capitalized run 'Alice Smith' among entities, got %v", out.Entities)
	}
	if !found["project kenny"] {
		t.Errorf("expected quoted phrase 'project kenny' among entities, got %v", out.Entities)
	}
}

func TestEnhanceClassifiesFilterByTimeKeyword(t *testing.T) {
	e := New(nil, cache.New(10, 1, 0))
	out, err := e.Enhance(context.Background(), "budget emails last week")
	if err != nil {
		t.Fatalf("enhance: %v", err)
	}
	if out.Intent != IntentFilter {
		t.Fatalf("expected filter intent, got %s", out.Intent)
	}
	if out.TimeFilter == nil || out.TimeFilter.Kind != TimeFilterKeyword || out.TimeFilter.Keyword != "last_week" {
		t.Fatalf("expected keyword time_filter last_week, got %+v", out.TimeFilter)
	}
}

func TestEnhanceDetectsRelativeTimeFilter(t *testing.T) {
	e := New(nil, cache.New(10, 1, 0))
	out, err := e.Enhance(context.Background(), "show notes from the last 3 days")
	if err != nil {
		t.Fatalf("enhance: %v", err)
	}
	if out.TimeFilter == nil || out.TimeFilter.Kind != TimeFilterRelative || out.TimeFilter.Unit != "day" || out.TimeFilter.Amount != 3 {
		t.Fatalf("expected relative time_filter 3 day, got %+v", out.TimeFilter)
	}
}

func TestEnhanceDetectsSourceHints(t *testing.T) {
	e := New(nil, cache.New(10, 1, 0))
	out, err := e.Enhance(context.Background(), "email about the meeting tomorrow")
	if err != nil {
		t.Fatalf("enhance: %v", err)
	}
	found := map[string]bool{}
	for _, h := range out.SourceHints {
		found[h] = true
	}
	if !found["mail"] || !found["calendar"] {
		t.Fatalf("expected mail and calendar source hints, got %v", out.SourceHints)
	}
}

func TestEnhanceSetsBasicNLPMethodAndPopulatesSearchTerms(t *testing.T) {
	e := New(nil, cache.New(10, 1, 0))
	out, err := e.Enhance(context.Background(), "Lisbon trip itinerary")
	if err != nil {
		t.Fatalf("enhance: %v", err)
	}
	if out.Method != MethodBasicNLP {
		t.Fatalf("expected basic_nlp method without an LLM provider, got %s", out.Method)
	}
	if out.Original != "Lisbon trip itinerary" || out.Enhanced != out.Original {
		t.Fatalf("expected NLP fallback to leave enhanced == original, got %+v", out)
	}
	if len(out.SearchTerms) == 0 {
		t.Fatalf("expected non-empty search terms, got %v", out.SearchTerms)
	}
}

func TestEnhanceCachesResult(t *testing.T) {
	c := cache.New(10, 1, 0)
	e := New(nil, c)
	ctx := context.Background()

	if _, err := e.Enhance(ctx, "what time is the meeting?"); err != nil {
		t.Fatalf("enhance: %v", err)
	}
	if c.Len() != 1 {
		t.Fatalf("expected one cache entry after enhance, got %d", c.Len())
	}
}

func TestVariationsWithoutLLMUsesSynonymTable(t *testing.T) {
	e := New(nil, cache.New(10, 1, 0))
	out := e.Variations(context.Background(), "reminder about the meeting", 3)
	if len(out) == 0 {
		t.Fatal("expected at least one synonym-based variation")
	}
}

func TestVariationsZeroReturnsNil(t *testing.T) {
	e := New(nil, cache.New(10, 1, 0))
	if out := e.Variations(context.Background(), "anything", 0); out != nil {
		t.Fatalf("expected nil for k=0, got %v", out)
	}
}
