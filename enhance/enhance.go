// Package enhance expands and classifies a raw user query before it
// reaches the retrieval engine: intent classification, entity
// extraction, and numbered query variants, with an LLM-backed path that
// degrades to a deterministic NLP fallback whenever the model is slow,
// unavailable, or returns something that doesn't parse.
package enhance

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/kenny-project/kenny/cache"
	"github.com/kenny-project/kenny/llm"
	"github.com/kenny-project/kenny/retrieval"
)

// Intent classifies what kind of thing a query is asking for.
type Intent string

const (
	IntentSearch   Intent = "search"
	IntentFilter   Intent = "filter"
	IntentQuestion Intent = "question"
	IntentCommand  Intent = "command"
)

// Method discriminates which path produced an Enhanced result.
type Method string

const (
	MethodLLM      Method = "llm"
	MethodBasicNLP Method = "basic_nlp"
)

// Enhanced is the result of enhancing one query: the original text, an
// expanded/rewritten form, its classified intent, typed entities, an
// optional time constraint, significant search terms, hints at which
// ingested source(s) it concerns, and which path (llm or basic_nlp)
// produced it.
type Enhanced struct {
	Original    string      `json:"original"`
	Enhanced    string      `json:"enhanced"`
	Intent      Intent      `json:"intent"`
	Entities    []Entity    `json:"entities"`
	TimeFilter  *TimeFilter `json:"time_filter,omitempty"`
	SearchTerms []string    `json:"search_terms"`
	SourceHints []string    `json:"source_hints"`
	Method      Method      `json:"method"`
}

// llmEnhanceTimeout bounds the strict-JSON LLM round trip; anything
// slower falls back to the NLP path rather than stalling the caller.
const llmEnhanceTimeout = 2 * time.Second

// Enhancer classifies and expands queries, caching results by a
// SHA-256 key over the raw query text.
type Enhancer struct {
	chat  llm.Provider
	cache cache.Cache
}

// New returns an Enhancer. chat may be nil, in which case every call
// uses the NLP fallback.
func New(chat llm.Provider, c cache.Cache) *Enhancer {
	if c == nil {
		c = cache.Noop()
	}
	return &Enhancer{chat: chat, cache: c}
}

// Enhance classifies intent and extracts entities from query, preferring
// an LLM round trip (strict JSON, 2s timeout) and falling back to
// deterministic NLP rules when the LLM is unavailable, too slow, or
// returns output that doesn't parse as the expected schema.
func (e *Enhancer) Enhance(ctx context.Context, query string) (Enhanced, error) {
	key := cacheKey("enhance", query)
	if cached, ok := e.cache.Get(key); ok {
		var out Enhanced
		if err := json.Unmarshal(cached, &out); err == nil {
			return out, nil
		}
	}

	out := e.enhanceViaLLM(ctx, query)
	if out == nil {
		result := e.enhanceViaNLP(query)
		out = &result
	}

	if encoded, err := json.Marshal(out); err == nil {
		e.cache.Set(key, encoded, 0)
	}
	return *out, nil
}

// llmEnhanceResponse is the strict JSON shape prompted for; Original and
// Method are filled in by the caller, never by the model.
type llmEnhanceResponse struct {
	Enhanced    string      `json:"enhanced"`
	Intent      Intent      `json:"intent"`
	Entities    []Entity    `json:"entities"`
	TimeFilter  *TimeFilter `json:"time_filter,omitempty"`
	SearchTerms []string    `json:"search_terms"`
	SourceHints []string    `json:"source_hints"`
}

func (e *Enhancer) enhanceViaLLM(ctx context.Context, query string) *Enhanced {
	if e.chat == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, llmEnhanceTimeout)
	defer cancel()

	resp, err := e.chat.Chat(ctx, llm.ChatRequest{
		Messages: []llm.Message{
			{Role: "system", Content: "Expand and classify the query. Respond with ONLY a JSON object matching this schema: " +
				`{"enhanced": "...", "intent": "search"|"filter"|"question"|"command", ` +
				`"entities": [{"type": "person"|"topic"|"location"|"organization", "value": "..."}], ` +
				`"time_filter": {"kind": "relative", "unit": "day"|"week"|"month", "amount": N} | {"kind": "keyword", "keyword": "today"|"yesterday"|"this_week"|"last_week"|"this_month"|"last_month"} | {"kind": "absolute_range", "start": "RFC3339", "end": "RFC3339"} | null, ` +
				`"search_terms": ["..."], "source_hints": ["mail"|"calendar"|"reminders"|"notes"|"files"|"messages"|"whatsapp"|"contacts"]}` +
				" No markdown fences, no explanation. Omit time_filter entirely if the query has no time constraint."},
			{Role: "user", Content: query},
		},
		Temperature: 0,
	})
	if err != nil {
		return nil
	}

	content := strings.TrimSpace(resp.Content)
	if idx := strings.Index(content, "{"); idx > 0 {
		content = content[idx:]
	}
	if idx := strings.LastIndex(content, "}"); idx >= 0 {
		content = content[:idx+1]
	}

	var parsed llmEnhanceResponse
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return nil
	}
	switch parsed.Intent {
	case IntentSearch, IntentFilter, IntentQuestion, IntentCommand:
	default:
		return nil
	}

	return &Enhanced{
		Original:    query,
		Enhanced:    parsed.Enhanced,
		Intent:      parsed.Intent,
		Entities:    parsed.Entities,
		TimeFilter:  parsed.TimeFilter,
		SearchTerms: parsed.SearchTerms,
		SourceHints: parsed.SourceHints,
		Method:      MethodLLM,
	}
}

// enhanceViaNLP classifies intent and extracts entities, a time filter,
// search terms, and source hints with deterministic rules grounded on
// retrieval's query-analysis helpers: isSynthesisQuery/
// extractSignificantTerms-style heuristics for intent and search terms,
// and capitalized-word/quoted-phrase extraction for entities. This path
// can't meaningfully rewrite the query, so Enhanced == Original.
func (e *Enhancer) enhanceViaNLP(query string) Enhanced {
	tf := detectTimeFilter(query)
	return Enhanced{
		Original:    query,
		Enhanced:    query,
		Intent:      classifyIntent(query, tf),
		Entities:    extractEntities(query),
		TimeFilter:  tf,
		SearchTerms: retrieval.ExtractSignificantTerms(query),
		SourceHints: detectSourceHints(query),
		Method:      MethodBasicNLP,
	}
}

// filterKeywords mark a query as narrowing an existing result set
// (intent "filter") rather than starting a fresh one (intent "search").
var filterKeywords = []string{"only ", "just the ", "filter ", "excluding ", "without ", "narrow"}

func classifyIntent(query string, tf *TimeFilter) Intent {
	trimmed := strings.TrimSpace(query)
	lower := strings.ToLower(trimmed)

	for _, verb := range []string{"create ", "add ", "remind me", "schedule ", "delete ", "move ", "send ", "set "} {
		if strings.HasPrefix(lower, verb) {
			return IntentCommand
		}
	}

	if strings.HasSuffix(trimmed, "?") {
		return IntentQuestion
	}
	for _, qw := range []string{"what", "who", "when", "where", "why", "how", "which", "is ", "are ", "do ", "does "} {
		if strings.HasPrefix(lower, qw) {
			return IntentQuestion
		}
	}

	for _, kw := range filterKeywords {
		if strings.Contains(lower, kw) {
			return IntentFilter
		}
	}
	// A bare time constraint with no command/question shape reads as
	// narrowing a set by time ("budget emails last week"), not an
	// open-ended search.
	if tf != nil {
		return IntentFilter
	}

	return IntentSearch
}

// extractEntities pulls out quoted phrases and capitalized word runs,
// classifying each via classifyEntity — the same domain-pattern-free
// extraction the teacher used before any LLM-based entity extraction,
// kept here since it needs no model call, now typed per entity instead
// of returned as bare strings.
func extractEntities(query string) []Entity {
	var entities []Entity
	seen := make(map[string]bool)

	for _, quoted := range quotedPhrases(query) {
		if !seen[quoted] {
			seen[quoted] = true
			entities = append(entities, Entity{Type: classifyEntity(quoted, query), Value: quoted})
		}
	}

	words := strings.Fields(query)
	var run []string
	flush := func() {
		if len(run) == 0 {
			return
		}
		phrase := strings.Join(run, " ")
		if !seen[phrase] {
			seen[phrase] = true
			entities = append(entities, Entity{Type: classifyEntity(phrase, query), Value: phrase})
		}
		run = nil
	}
	for _, w := range words {
		clean := strings.Trim(w, ".,!?;:\"'()")
		if clean != "" && isCapitalized(clean) {
			run = append(run, clean)
		} else {
			flush()
		}
	}
	flush()

	return entities
}

func isCapitalized(w string) bool {
	r := []rune(w)
	return len(r) > 0 && r[0] >= 'A' && r[0] <= 'Z'
}

func quotedPhrases(query string) []string {
	var out []string
	inQuote := false
	var cur strings.Builder
	for _, r := range query {
		if r == '"' {
			if inQuote {
				if cur.Len() > 0 {
					out = append(out, cur.String())
				}
				cur.Reset()
			}
			inQuote = !inQuote
			continue
		}
		if inQuote {
			cur.WriteRune(r)
		}
	}
	return out
}

// Variations generates up to k alternative phrasings of query, covering
// different angles of the same search — grounded on the numbered-
// newline-separated multi-query expansion prompt pattern, with a
// synonym-table fallback when the LLM is unavailable.
func (e *Enhancer) Variations(ctx context.Context, query string, k int) []string {
	if k <= 0 {
		return nil
	}

	key := cacheKey("variations", query, k)
	if cached, ok := e.cache.Get(key); ok {
		var out []string
		if err := json.Unmarshal(cached, &out); err == nil {
			return out
		}
	}

	out := e.variationsViaLLM(ctx, query, k)
	if out == nil {
		out = variationsViaSynonyms(query, k)
	}

	if encoded, err := json.Marshal(out); err == nil {
		e.cache.Set(key, encoded, 0)
	}
	return out
}

func (e *Enhancer) variationsViaLLM(ctx context.Context, query string, k int) []string {
	if e.chat == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, llmEnhanceTimeout)
	defer cancel()

	resp, err := e.chat.Chat(ctx, llm.ChatRequest{
		Messages: []llm.Message{
			{Role: "system", Content: "You are an expert at search-query expansion. Generate alternative phrasings of the query that cover different perspectives while preserving its intent. Provide the variants separated by newlines, nothing else."},
			{Role: "user", Content: query},
		},
		Temperature: 0.3,
	})
	if err != nil || strings.TrimSpace(resp.Content) == "" {
		return nil
	}

	lines := strings.Split(resp.Content, "\n")
	var variants []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		variants = append(variants, line)
		if len(variants) >= k {
			break
		}
	}
	if len(variants) == 0 {
		return nil
	}
	return variants
}

// synonyms is a small fallback table used when the LLM path is
// unavailable; it is deliberately narrow rather than attempting full
// synonym coverage, since it only needs to keep search recall
// reasonable, not replace the LLM path's quality.
var synonyms = map[string][]string{
	"meeting":  {"appointment", "call"},
	"email":    {"message", "mail"},
	"reminder": {"task", "to-do"},
	"note":     {"memo"},
	"contact":  {"person"},
	"file":     {"document", "attachment"},
	"event":    {"appointment"},
}

func variationsViaSynonyms(query string, k int) []string {
	terms := retrieval.ExtractSignificantTerms(query)
	var variants []string
	for _, term := range terms {
		repls, ok := synonyms[term]
		if !ok {
			continue
		}
		for _, repl := range repls {
			variants = append(variants, strings.Replace(query, term, repl, 1))
			if len(variants) >= k {
				return variants
			}
		}
	}
	return variants
}

func cacheKey(parts ...any) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(toKeyPart(p)))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func toKeyPart(p any) string {
	switch v := p.(type) {
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	default:
		return ""
	}
}
