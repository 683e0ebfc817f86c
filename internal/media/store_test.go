package media

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFileStore_SaveLoad(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "generated_images")
	s, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	path, err := s.Save(context.Background(), "client-1", []byte("png-bytes"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if want := filepath.Join(dir, "client-1_image.png"); path != want {
		t.Errorf("Expected path %s, got %s", want, path)
	}

	data, err := s.Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !bytes.Equal(data, []byte("png-bytes")) {
		t.Errorf("Unexpected content %q", data)
	}

	if _, err := s.Save(context.Background(), "client-1", []byte("v2")); err != nil {
		t.Fatalf("Save overwrite: %v", err)
	}
	data, _ = s.Load(context.Background(), path)
	if string(data) != "v2" {
		t.Errorf("Expected overwrite, got %q", data)
	}
}

func TestFileStore_Rejects(t *testing.T) {
	t.Parallel()

	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	if _, err := s.Save(context.Background(), "../escape", nil); !errors.Is(err, ErrInvalidClientID) {
		t.Errorf("Expected ErrInvalidClientID, got %v", err)
	}
	if _, err := s.Load(context.Background(), "/etc/hostname"); err == nil {
		t.Error("Expected error loading outside store")
	}
	if _, err := s.Load(context.Background(), s.PathFor("nobody")); err == nil {
		t.Error("Expected error for missing image")
	}
}

func TestSweep(t *testing.T) {
	t.Parallel()

	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	oldPath, _ := s.Save(context.Background(), "old", []byte("x"))
	newPath, _ := s.Save(context.Background(), "new", []byte("y"))
	other := filepath.Join(s.Dir(), "keep.txt")
	if err := os.WriteFile(other, []byte("z"), 0o600); err != nil {
		t.Fatal(err)
	}

	now := time.Now()
	past := now.Add(-2 * time.Hour)
	if err := os.Chtimes(oldPath, past, past); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(other, past, past); err != nil {
		t.Fatal(err)
	}

	if n := Sweep(s, time.Hour, now); n != 1 {
		t.Errorf("Expected 1 removed, got %d", n)
	}
	if _, err := os.Stat(oldPath); !os.IsNotExist(err) {
		t.Error("Expected stale image removed")
	}
	if _, err := os.Stat(newPath); err != nil {
		t.Error("Expected fresh image kept")
	}
	if _, err := os.Stat(other); err != nil {
		t.Error("Expected unrelated file kept")
	}
}
