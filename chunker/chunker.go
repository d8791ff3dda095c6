// Package chunker splits normalized document content into the flat,
// contiguous chunks that retrieval and embedding operate over.
package chunker

import (
	"strings"

	"github.com/kenny-project/kenny/store"
)

// Config controls the chunking behaviour.
type Config struct {
	MaxChars int // Maximum characters per chunk of long-form content.
	Overlap  int // Character overlap between consecutive chunks.
}

// DefaultConfig returns the char-budget chunker defaults: a 512-character
// window with a 50-character overlap, chosen to keep chunks well within a
// local embedding model's context window while preserving enough trailing
// context across a split to not orphan a sentence.
func DefaultConfig() Config {
	return Config{MaxChars: 512, Overlap: 50}
}

// Chunker converts document content into store-ready chunks.
type Chunker struct {
	cfg Config
}

// New returns a Chunker with the given configuration. Zero-value fields
// fall back to DefaultConfig.
func New(cfg Config) *Chunker {
	if cfg.MaxChars == 0 {
		cfg.MaxChars = DefaultConfig().MaxChars
	}
	if cfg.Overlap == 0 {
		cfg.Overlap = DefaultConfig().Overlap
	}
	return &Chunker{cfg: cfg}
}

// atomicTypes are document types short enough that splitting would only
// fragment an already-small unit of meaning (a reminder title, a single
// message, a contact card). They are always emitted as one chunk.
var atomicTypes = map[store.DocumentType]bool{
	store.TypeReminder: true,
	store.TypeEvent:    true,
	store.TypeMessage:  true,
	store.TypeContact:  true,
}

// Chunk splits a document's content into flat, zero-based, contiguous
// chunks. Atomic document types are never split; everything else is
// split greedily on paragraph boundaries, falling back to sentence and
// then hard-width splits for paragraphs that alone exceed MaxChars.
// Returned chunks carry ChunkIndex and StartOffset/EndOffset, but no
// DocumentID or ID — callers assign those on insert. A single chunk's
// offsets span the trimmed text; chunks of a split document use
// splitLong's offsets, which are positions within the emitted chunk text,
// not offsets into text.
func (c *Chunker) Chunk(docType store.DocumentType, text string) []store.Chunk {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	if atomicTypes[docType] || len(text) <= c.cfg.MaxChars {
		return []store.Chunk{{ChunkIndex: 0, Text: text, StartOffset: 0, EndOffset: len(text)}}
	}

	var chunks []store.Chunk
	for _, frag := range c.splitLong(text) {
		chunks = append(chunks, store.Chunk{
			ChunkIndex:  len(chunks),
			Text:        frag.text,
			StartOffset: frag.start,
			EndOffset:   frag.end,
		})
	}
	return chunks
}

type fragment struct {
	text       string
	start, end int
}

// splitLong greedily packs paragraphs into windows of at most MaxChars,
// carrying Overlap characters of trailing context into the next window.
// A paragraph that alone exceeds MaxChars is further split by sentence,
// and a single run-on sentence beyond MaxChars is hard-split on width.
// Fragment StartOffset/EndOffset mark position within the sequence of
// emitted chunk text (monotonic, not a byte offset into the original
// document, since overlapping windows duplicate source bytes).
func (c *Chunker) splitLong(text string) []fragment {
	paragraphs := splitParagraphs(text)

	var fragments []fragment
	var current strings.Builder
	cursor := 0

	flush := func() {
		if current.Len() == 0 {
			return
		}
		body := strings.TrimSpace(current.String())
		if body != "" {
			fragments = append(fragments, fragment{text: body, start: cursor, end: cursor + len(body)})
			cursor += len(body)
		}
		current.Reset()
	}

	for _, para := range paragraphs {
		if len(para) > c.cfg.MaxChars {
			flush()
			for _, s := range c.splitSentenceWindows(para) {
				s.start = cursor
				s.end = cursor + len(s.text)
				cursor += len(s.text)
				fragments = append(fragments, s)
			}
			continue
		}

		if current.Len()+len(para) > c.cfg.MaxChars && current.Len() > 0 {
			overlap := extractOverlap(current.String(), c.cfg.Overlap)
			flush()
			if overlap != "" {
				current.WriteString(overlap)
				current.WriteString(" ")
			}
		}

		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
	}
	flush()

	return fragments
}

// splitSentenceWindows breaks an over-long paragraph into MaxChars-sized
// windows at sentence boundaries, falling back to a hard split for a
// single sentence that alone still exceeds MaxChars.
func (c *Chunker) splitSentenceWindows(para string) []fragment {
	sentences := splitSentences(para)
	var out []fragment
	var current strings.Builder

	flush := func() {
		body := strings.TrimSpace(current.String())
		if body != "" {
			out = append(out, fragment{text: body})
		}
		current.Reset()
	}

	for _, sent := range sentences {
		if len(sent) > c.cfg.MaxChars {
			flush()
			for start := 0; start < len(sent); start += c.cfg.MaxChars {
				end := start + c.cfg.MaxChars
				if end > len(sent) {
					end = len(sent)
				}
				out = append(out, fragment{text: strings.TrimSpace(sent[start:end])})
			}
			continue
		}

		if current.Len()+len(sent) > c.cfg.MaxChars && current.Len() > 0 {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(sent)
	}
	flush()
	return out
}

// splitParagraphs splits text on blank-line boundaries.
func splitParagraphs(text string) []string {
	raw := strings.Split(text, "\n\n")
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// splitSentences is a simple sentence tokenizer: it splits on
// period/question-mark/exclamation followed by whitespace or end of
// string, without attempting to handle abbreviations specially.
func splitSentences(text string) []string {
	var sentences []string
	var cur strings.Builder

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		cur.WriteRune(runes[i])
		if runes[i] == '.' || runes[i] == '?' || runes[i] == '!' {
			if i+1 >= len(runes) || runes[i+1] == ' ' || runes[i+1] == '\n' || runes[i+1] == '\t' {
				s := strings.TrimSpace(cur.String())
				if s != "" {
					sentences = append(sentences, s)
				}
				cur.Reset()
			}
		}
	}
	if cur.Len() > 0 {
		s := strings.TrimSpace(cur.String())
		if s != "" {
			sentences = append(sentences, s)
		}
	}
	return sentences
}

// extractOverlap returns the trailing portion of text whose length is at
// most maxChars, cut at the nearest preceding word boundary.
func extractOverlap(text string, maxChars int) string {
	if text == "" || maxChars <= 0 {
		return ""
	}
	if len(text) <= maxChars {
		return text
	}
	tail := text[len(text)-maxChars:]
	if idx := strings.Index(tail, " "); idx >= 0 {
		tail = tail[idx+1:]
	}
	return tail
}
