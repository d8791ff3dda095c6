// Package filesource implements an ingest.Source that walks a
// directory tree, extracting text content via parser.Registry — the
// teacher's PDF/DOCX/XLSX/PPTX parsers, adapted from "chunk source for
// a RAG ingest pipeline" to "Document content source for kenny".
package filesource

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io/fs"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/kenny-project/kenny/ingest"
	"github.com/kenny-project/kenny/parser"
	"github.com/kenny-project/kenny/store"
)

// Source walks Root, parsing every file whose extension the registry
// recognizes and skipping the rest — a directory with unrelated files
// isn't an error, just something with nothing to extract.
type Source struct {
	Root     string
	Registry *parser.Registry
}

// New returns a Source rooted at root, using parser.NewRegistry()'s
// default parser set unless a custom registry is supplied.
func New(root string, reg *parser.Registry) *Source {
	if reg == nil {
		reg = parser.NewRegistry()
	}
	return &Source{Root: root, Registry: reg}
}

func (s *Source) Name() string { return "files" }

// Ingest walks Root, emitting one RawRecord per parseable file whose
// modification time is at or after since (full sync ignores since
// entirely). Parse failures are skipped rather than aborting the walk —
// one corrupt document shouldn't block every other file underneath it.
func (s *Source) Ingest(ctx context.Context, fullSync bool, since *time.Time) (<-chan ingest.RawRecord, error) {
	out := make(chan ingest.RawRecord, 64)

	go func() {
		defer close(out)

		_ = filepath.WalkDir(s.Root, func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return nil
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			info, err := d.Info()
			if err != nil {
				return nil
			}
			if !fullSync && since != nil && info.ModTime().Before(*since) {
				return nil
			}

			ext := strings.TrimPrefix(filepath.Ext(path), ".")
			p, err := s.Registry.Get(ext)
			if err != nil {
				return nil
			}
			result, err := p.Parse(ctx, path)
			if err != nil || result == nil {
				return nil
			}

			content := joinSections(result.Sections)
			if content == "" {
				return nil
			}

			rec := ingest.RawRecord{
				Type:       store.TypeFile,
				Title:      filepath.Base(path),
				Content:    content,
				SourceID:   sourceIDFor(path),
				SourcePath: path,
				Stable:     []string{content},
				Satellite: ingest.FileSatellite{
					MimeType:   mimeTypeFor(ext),
					SizeBytes:  info.Size(),
					ModifiedAt: info.ModTime().Unix(),
				},
			}

			select {
			case out <- rec:
			case <-ctx.Done():
				return ctx.Err()
			}
			return nil
		})
	}()

	return out, nil
}

func joinSections(sections []parser.Section) string {
	var b strings.Builder
	for _, sec := range sections {
		writeSection(&b, sec)
	}
	return strings.TrimSpace(b.String())
}

func writeSection(b *strings.Builder, sec parser.Section) {
	if sec.Heading != "" {
		b.WriteString(sec.Heading)
		b.WriteString("\n")
	}
	if sec.Content != "" {
		b.WriteString(sec.Content)
		b.WriteString("\n\n")
	}
	for _, child := range sec.Children {
		writeSection(b, child)
	}
}

func mimeTypeFor(ext string) string {
	if t := mime.TypeByExtension("." + ext); t != "" {
		return t
	}
	return "application/octet-stream"
}

// sourceIDFor hashes the path itself (not content) so a file keeps its
// source_id even when edited; content changes show up through the
// document hash instead.
func sourceIDFor(path string) string {
	h := sha256.Sum256([]byte(path))
	return hex.EncodeToString(h[:])
}
