package retrieval

import (
	"context"
	"strings"
	"unicode"

	"github.com/kenny-project/kenny/store"
)

// snippetWindowTokens is the approximate width, in whitespace-delimited
// tokens, of the highlighted snippet window returned alongside an FTS hit.
const snippetWindowTokens = 32

// ftsSearch runs a BM25-ranked lexical search, canonicalized to the
// title/content columns, and attaches a highlighted snippet to each hit.
func ftsSearch(ctx context.Context, s *store.Store, query string, limit int) ([]store.RetrievalResult, error) {
	ftsQuery := sanitizeFTSQuery(query)
	results, err := s.FTSSearch(ctx, ftsQuery, limit)
	if err != nil {
		return nil, err
	}

	terms := extractSignificantTerms(query)
	for i := range results {
		results[i].Content = Highlight(results[i].Content, terms, snippetWindowTokens)
	}
	return results, nil
}

// Highlight finds the window of approximately windowTokens words around
// the highest-concentration of queryTerms matches in content, and wraps
// each matching term in <mark>...</mark>. Returns the original content,
// untouched, if queryTerms is empty or content has no match at all.
func Highlight(content string, queryTerms []string, windowTokens int) string {
	if len(queryTerms) == 0 || content == "" {
		return content
	}

	terms := make(map[string]bool, len(queryTerms))
	for _, t := range queryTerms {
		terms[strings.ToLower(t)] = true
	}

	tokens := tokenizeWithOffsets(content)
	if len(tokens) == 0 {
		return content
	}

	bestStart, bestScore := 0, -1
	for start := 0; start < len(tokens); start++ {
		end := start + windowTokens
		if end > len(tokens) {
			end = len(tokens)
		}
		score := 0
		for _, tok := range tokens[start:end] {
			if terms[strings.ToLower(tok.word)] {
				score++
			}
		}
		if score > bestScore {
			bestScore = score
			bestStart = start
		}
		if end == len(tokens) {
			break
		}
	}

	if bestScore <= 0 {
		return content
	}

	end := bestStart + windowTokens
	if end > len(tokens) {
		end = len(tokens)
	}
	windowStart := tokens[bestStart].start
	windowEnd := tokens[end-1].end

	var b strings.Builder
	cursor := windowStart
	for _, tok := range tokens[bestStart:end] {
		b.WriteString(content[cursor:tok.start])
		if terms[strings.ToLower(tok.word)] {
			b.WriteString("<mark>")
			b.WriteString(content[tok.start:tok.end])
			b.WriteString("</mark>")
		} else {
			b.WriteString(content[tok.start:tok.end])
		}
		cursor = tok.end
	}
	b.WriteString(content[cursor:windowEnd])

	snippet := b.String()
	if windowStart > 0 {
		snippet = "…" + snippet
	}
	if windowEnd < len(content) {
		snippet = snippet + "…"
	}
	return snippet
}

type offsetToken struct {
	word       string
	start, end int
}

// tokenizeWithOffsets splits content on non-letter/non-digit boundaries,
// recording each token's byte offsets so the caller can reconstruct the
// original text (punctuation, whitespace) around the highlighted window.
func tokenizeWithOffsets(content string) []offsetToken {
	var tokens []offsetToken
	start := -1
	for i, r := range content {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if start == -1 {
				start = i
			}
			continue
		}
		if start != -1 {
			tokens = append(tokens, offsetToken{word: content[start:i], start: start, end: i})
			start = -1
		}
	}
	if start != -1 {
		tokens = append(tokens, offsetToken{word: content[start:], start: start, end: len(content)})
	}
	return tokens
}
