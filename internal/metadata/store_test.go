package metadata

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("sqlite", filepath.Join(t.TempDir(), "meta.db"), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	s.now = func() time.Time { return time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC) }
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return s
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
	folders, files, err := s.Counts(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if folders != 1 || files != 0 {
		t.Errorf("counts = %d folders, %d files; want only the root", folders, files)
	}
	entry, err := s.List(context.Background(), "/")
	if err != nil {
		t.Fatalf("List root: %v", err)
	}
	if len(entry.Folders) != 0 || len(entry.Files) != 0 || entry.Folders == nil || entry.Files == nil {
		t.Errorf("empty root = %+v", entry)
	}
}

func TestFoldersAndFiles(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.CreateFolder(ctx, "/", "docs"); err != nil {
		t.Fatalf("CreateFolder: %v", err)
	}
	if _, err := s.CreateFolder(ctx, "/docs/", "sub"); err != nil {
		t.Fatalf("CreateFolder sub: %v", err)
	}
	e, created, err := s.PutFile(ctx, "/docs/", "guide.md", 2048)
	if err != nil || !created {
		t.Fatalf("PutFile = %v, created %v", err, created)
	}
	if e.Path != "/docs/guide.md" || e.Type != "markdown" {
		t.Errorf("entry = %+v", e)
	}
	if _, created, err = s.PutFile(ctx, "/docs/", "guide.md", 10); err != nil || created {
		t.Fatalf("PutFile update = %v, created %v", err, created)
	}
	s.PutFile(ctx, "/docs/", "a.txt", 1)

	entry, err := s.List(ctx, "/docs/")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if !reflect.DeepEqual(entry.Folders, []string{"sub"}) {
		t.Errorf("folders = %v", entry.Folders)
	}
	if len(entry.Files) != 2 || entry.Files[0].Name != "a.txt" || entry.Files[1].Name != "guide.md" {
		t.Fatalf("files = %+v", entry.Files)
	}
	g := entry.Files[1]
	if g.Size != "10 B" || g.LastModified != "2024-03-09" || g.HasContent() {
		t.Errorf("guide record = %+v", g)
	}

	if _, err := s.StatFile(ctx, "/docs/guide.md"); err != nil {
		t.Errorf("StatFile: %v", err)
	}
	if _, err := s.StatFile(ctx, "/docs/sub/"); !errors.Is(err, ErrNotFound) {
		t.Errorf("StatFile on folder = %v", err)
	}
}

func TestConflicts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.CreateFolder(ctx, "/", "docs")
	s.PutFile(ctx, "/", "readme.md", 5)

	tests := []struct {
		name string
		fn   func() error
		want error
	}{
		{"duplicate folder", func() error { _, err := s.CreateFolder(ctx, "/", "docs"); return err }, ErrExists},
		{"folder over file", func() error { _, err := s.CreateFolder(ctx, "/", "readme.md"); return err }, ErrExists},
		{"file over folder", func() error { _, _, err := s.PutFile(ctx, "/", "docs", 1); return err }, ErrExists},
		{"missing parent folder", func() error { _, err := s.CreateFolder(ctx, "/nope/", "x"); return err }, ErrNotFound},
		{"missing parent file", func() error { _, _, err := s.PutFile(ctx, "/nope/", "x.txt", 1); return err }, ErrNotFound},
		{"list missing", func() error { _, err := s.List(ctx, "/nope/"); return err }, ErrNotFound},
		{"list file", func() error { _, err := s.List(ctx, "/readme.md/"); return err }, ErrNotFound},
		{"delete missing file", func() error { _, err := s.Delete(ctx, "/nope.txt", false); return err }, ErrNotFound},
		{"delete root", func() error { _, err := s.Delete(ctx, "/", true); return err }, ErrRoot},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fn(); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDeleteFolderCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.CreateFolder(ctx, "/", "docs")
	s.CreateFolder(ctx, "/", "docs2")
	s.CreateFolder(ctx, "/docs/", "sub")
	s.PutFile(ctx, "/docs/", "a.txt", 1)
	s.PutFile(ctx, "/docs/sub/", "b.txt", 1)
	s.PutFile(ctx, "/docs2/", "keep.txt", 1)

	removed, err := s.Delete(ctx, "/docs", true)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	var paths []string
	for _, r := range removed {
		paths = append(paths, r.Path)
	}
	if !reflect.DeepEqual(paths, []string{"/docs/a.txt", "/docs/sub/b.txt"}) {
		t.Errorf("removed files = %v", paths)
	}

	root, _ := s.List(ctx, "/")
	if !reflect.DeepEqual(root.Folders, []string{"docs2"}) {
		t.Errorf("root folders = %v", root.Folders)
	}
	if _, err := s.List(ctx, "/docs/sub/"); !errors.Is(err, ErrNotFound) {
		t.Errorf("subtree should be gone: %v", err)
	}
	if e, _ := s.List(ctx, "/docs2/"); len(e.Files) != 1 {
		t.Errorf("sibling with shared prefix was touched: %+v", e)
	}

	folders, files, _ := s.Counts(ctx)
	if folders != 2 || files != 1 {
		t.Errorf("counts = %d, %d", folders, files)
	}
}

func TestDeleteFile(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.PutFile(ctx, "/", "a.txt", 1)
	removed, err := s.Delete(ctx, "/a.txt", false)
	if err != nil || len(removed) != 1 || removed[0].Name != "a.txt" {
		t.Fatalf("Delete = %v, %v", removed, err)
	}
	if _, err := s.StatFile(ctx, "/a.txt"); !errors.Is(err, ErrNotFound) {
		t.Errorf("file still present: %v", err)
	}
}

func TestRebind(t *testing.T) {
	q := `SELECT x FROM t WHERE a = ? AND b = ?`
	if got := (&Store{}).rebind(q); got != q {
		t.Errorf("sqlite rebind changed query: %s", got)
	}
	want := `SELECT x FROM t WHERE a = $1 AND b = $2`
	if got := (&Store{postgres: true}).rebind(q); got != want {
		t.Errorf("postgres rebind = %s", got)
	}
}

func TestOpenRejectsDriver(t *testing.T) {
	if _, err := Open("mysql", "x", nil); err == nil {
		t.Error("expected error for unsupported driver")
	}
}
