package chunker

import (
	"strings"
	"testing"

	"github.com/kenny-project/kenny/store"
)

func TestChunkAtomicTypeNeverSplit(t *testing.T) {
	c := New(Config{MaxChars: 10, Overlap: 2})
	long := strings.Repeat("word ", 50)
	chunks := c.Chunk(store.TypeMessage, long)
	if len(chunks) != 1 {
		t.Fatalf("expected atomic type to stay single chunk, got %d", len(chunks))
	}
}

func TestChunkShortTextSingleChunk(t *testing.T) {
	c := New(DefaultConfig())
	chunks := c.Chunk(store.TypeNote, "a short note")
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].ChunkIndex != 0 {
		t.Fatalf("expected chunk index 0, got %d", chunks[0].ChunkIndex)
	}
}

func TestChunkEmptyTextNoChunks(t *testing.T) {
	c := New(DefaultConfig())
	if chunks := c.Chunk(store.TypeNote, "   "); chunks != nil {
		t.Fatalf("expected nil chunks for blank text, got %v", chunks)
	}
}

func TestChunkLongProseSplitsOnParagraphs(t *testing.T) {
	c := New(Config{MaxChars: 50, Overlap: 10})
	var paras []string
	for i := 0; i < 5; i++ {
		paras = append(paras, strings.Repeat("x", 40))
	}
	text := strings.Join(paras, "\n\n")

	chunks := c.Chunk(store.TypeNote, text)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks for long text, got %d", len(chunks))
	}
	for i, ch := range chunks {
		if ch.ChunkIndex != i {
			t.Fatalf("expected contiguous zero-based chunk index, got index %d at position %d", ch.ChunkIndex, i)
		}
		if len(ch.Text) > 60 {
			t.Fatalf("chunk %d exceeds reasonable bound given overlap: %d chars", i, len(ch.Text))
		}
	}
}

func TestChunkOverlongParagraphSplitsBySentence(t *testing.T) {
	c := New(Config{MaxChars: 30, Overlap: 5})
	text := strings.Repeat("This is one sentence. ", 10)
	chunks := c.Chunk(store.TypeFile, text)
	if len(chunks) < 2 {
		t.Fatalf("expected sentence-level split for an overlong paragraph, got %d chunks", len(chunks))
	}
}

func TestSplitSentencesBasic(t *testing.T) {
	got := splitSentences("One. Two? Three!")
	if len(got) != 3 {
		t.Fatalf("expected 3 sentences, got %d: %v", len(got), got)
	}
}

func TestExtractOverlapCutsAtWordBoundary(t *testing.T) {
	got := extractOverlap("the quick brown fox jumps", 10)
	if strings.HasPrefix(got, " ") {
		t.Fatalf("expected overlap to not start with a stray space, got %q", got)
	}
	if len(got) > 10 {
		t.Fatalf("expected overlap within bound, got %q (%d chars)", got, len(got))
	}
}
