package filesource

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/kenny-project/kenny/store"
)

func drain(t *testing.T, src *Source, fullSync bool) []string {
	t.Helper()
	ch, err := src.Ingest(context.Background(), fullSync, nil)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	var ids []string
	for rec := range ch {
		if rec.Type != store.TypeFile {
			t.Fatalf("expected TypeFile, got %v", rec.Type)
		}
		ids = append(ids, rec.SourceID)
	}
	return ids
}

func TestIngestExtractsPlainTextFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("buy milk\nand eggs"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	src := New(dir, nil)
	ch, err := src.Ingest(context.Background(), true, nil)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	var recs []store.DocumentType
	var found bool
	for rec := range ch {
		recs = append(recs, rec.Type)
		if rec.Title == "notes.txt" {
			found = true
			if rec.Content == "" {
				t.Fatalf("expected non-empty content")
			}
		}
	}
	if !found {
		t.Fatalf("expected a record for notes.txt, got %d records", len(recs))
	}
}

func TestIngestSkipsUnrecognizedExtensions(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "binary.dat"), []byte{0x00, 0x01}, 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	src := New(dir, nil)
	ids := drain(t, src, true)
	if len(ids) != 0 {
		t.Fatalf("expected no records for an unrecognized extension, got %d", len(ids))
	}
}

func TestIngestSourceIDStableAcrossContentEdits(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "log.txt")
	if err := os.WriteFile(path, []byte("first version"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	src := New(dir, nil)
	first := drain(t, src, true)
	if len(first) != 1 {
		t.Fatalf("expected 1 record, got %d", len(first))
	}

	if err := os.WriteFile(path, []byte("second, different version"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	second := drain(t, src, true)
	if len(second) != 1 || second[0] != first[0] {
		t.Fatalf("expected the same source id across a content edit, got %v vs %v", first, second[0])
	}
}

func TestIngestExtractsXLSXWorksheet(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "budget.xlsx")

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	f.SetCellValue(sheet, "A1", "Item")
	f.SetCellValue(sheet, "B1", "Amount")
	f.SetCellValue(sheet, "A2", "Rent")
	f.SetCellValue(sheet, "B2", 1200)
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("SaveAs: %v", err)
	}

	src := New(dir, nil)
	ch, err := src.Ingest(context.Background(), true, nil)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	var found bool
	for rec := range ch {
		if rec.Title != "budget.xlsx" {
			continue
		}
		found = true
		if rec.Content == "" {
			t.Fatal("expected non-empty content extracted from the worksheet")
		}
		if !containsAll(rec.Content, "Rent", "1200") {
			t.Fatalf("expected worksheet cell values in extracted content, got %q", rec.Content)
		}
	}
	if !found {
		t.Fatal("expected a record for budget.xlsx")
	}
}

func containsAll(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if !strings.Contains(s, sub) {
			return false
		}
	}
	return true
}

func TestIngestSkipsEmptyFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "empty.txt"), []byte(""), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	src := New(dir, nil)
	ids := drain(t, src, true)
	if len(ids) != 0 {
		t.Fatalf("expected an empty file to be skipped, got %d records", len(ids))
	}
}
