//go:build cgo

package kenny

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestNewRegistersFilesSourceWhenFilesRootConfigured(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("buy milk and eggs"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg := DefaultConfig()
	cfg.DBPath = filepath.Join(t.TempDir(), "test.db")
	cfg.Chat.Provider = "mock"
	cfg.Embedding.Provider = "mock"
	cfg.Cache.Enabled = false
	cfg.FilesRoot = dir

	e, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer e.Close()

	stats, err := e.RunIngestSource(context.Background(), "files", true, nil)
	if err != nil {
		t.Fatalf("RunIngestSource: %v", err)
	}
	if stats.ItemsCreated == 0 {
		t.Fatalf("expected the files source to ingest notes.txt, got %+v", stats)
	}
}

func TestNewLeavesFilesSourceUnregisteredByDefault(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DBPath = filepath.Join(t.TempDir(), "test.db")
	cfg.Chat.Provider = "mock"
	cfg.Embedding.Provider = "mock"
	cfg.Cache.Enabled = false

	e, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer e.Close()

	if _, err := e.RunIngestSource(context.Background(), "files", true, nil); err == nil {
		t.Fatal("expected an error running an unregistered 'files' source")
	}
}
