package local

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLocalBackendRoundTrip(t *testing.T) {
	root := filepath.Join(t.TempDir(), "store")
	b, err := New(Config{RootPath: root, CreateDirs: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	if err := b.PutObject(ctx, "docs/sub/a.md", strings.NewReader("hello"), 5); err != nil {
		t.Fatalf("PutObject: %v", err)
	}
	rc, size, err := b.GetObject(ctx, "docs/sub/a.md")
	if err != nil {
		t.Fatalf("GetObject: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "hello" || size != 5 {
		t.Errorf("got %q (%d)", data, size)
	}

	// Overwrite replaces atomically.
	if err := b.PutObject(ctx, "docs/sub/a.md", strings.NewReader("bye"), 3); err != nil {
		t.Fatalf("PutObject overwrite: %v", err)
	}
	entries, _ := os.ReadDir(filepath.Join(root, "docs", "sub"))
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %v", entries)
	}

	if ok, _ := b.ObjectExists(ctx, "docs/sub/a.md"); !ok {
		t.Error("object should exist")
	}
	if ok, _ := b.ObjectExists(ctx, "docs"); ok {
		t.Error("directories are not objects")
	}

	if err := b.DeleteObject(ctx, "docs/sub/a.md"); err != nil {
		t.Fatalf("DeleteObject: %v", err)
	}
	if err := b.DeleteObject(ctx, "docs/sub/a.md"); err != nil {
		t.Errorf("deleting a missing object: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "docs")); !os.IsNotExist(err) {
		t.Errorf("empty parent directories should be pruned: %v", err)
	}
	if _, err := os.Stat(root); err != nil {
		t.Errorf("root must survive: %v", err)
	}

	if _, _, err := b.GetObject(ctx, "docs/sub/a.md"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("missing object err = %v", err)
	}
}

func TestLocalBackendRejectsEscapes(t *testing.T) {
	b, err := New(Config{RootPath: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"../x", "a/../../x", ""} {
		if err := b.PutObject(context.Background(), key, strings.NewReader("x"), 1); err == nil {
			t.Errorf("PutObject(%q) should fail", key)
		}
	}
}

func TestLocalBackendShortWrite(t *testing.T) {
	b, _ := New(Config{RootPath: t.TempDir()})
	if err := b.PutObject(context.Background(), "a.txt", strings.NewReader("ab"), 5); err == nil {
		t.Error("size mismatch should fail")
	}
	if ok, _ := b.ObjectExists(context.Background(), "a.txt"); ok {
		t.Error("failed write must not leave an object")
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("empty root should fail")
	}
	if _, err := New(Config{RootPath: filepath.Join(t.TempDir(), "missing")}); err == nil {
		t.Error("missing root without CreateDirs should fail")
	}
	f := filepath.Join(t.TempDir(), "file")
	os.WriteFile(f, []byte("x"), 0644)
	if _, err := New(Config{RootPath: f}); err == nil {
		t.Error("file root should fail")
	}
}
