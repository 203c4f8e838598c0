package demo

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/fruitsalade/explorer/pkg/backend"
)

var fixedNow = func() time.Time { return time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC) }

func newTestAdapter(t *testing.T) *Adapter {
	t.Helper()
	return New(nil, WithClock(fixedNow))
}

func TestDefaultIsDeterministic(t *testing.T) {
	a, b := Default(), Default()
	if len(a) != len(b) {
		t.Fatalf("entry count differs: %d vs %d", len(a), len(b))
	}
	root := a["/"]
	if !root.HasFolder("docs") {
		t.Errorf("root folders = %v, want docs", root.Folders)
	}
	f, ok := root.File("readme.md")
	if !ok || f.Text() != "hello" || f.Type != "markdown" {
		t.Errorf("readme.md = %+v", f)
	}
	if _, ok := a["/docs/"]; !ok {
		t.Error("missing /docs/ entry")
	}
}

func TestLoadFallsBackAndLogs(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	snap := Load(context.Background(), filepath.Join(t.TempDir(), "missing.json"), zap.New(core))

	if _, ok := snap["/docs/"]; !ok {
		t.Error("fallback snapshot missing /docs/")
	}
	if logs.Len() != 1 {
		t.Fatalf("warn logs = %d, want 1", logs.Len())
	}
	if !strings.Contains(logs.All()[0].Message, "embedded default") {
		t.Errorf("log message = %q", logs.All()[0].Message)
	}
}

func TestLoadFileNormalizes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.json")
	doc := `{
		"": {"folders": ["a", "a", "b/"], "files": [{"name": "x.go"}]},
		"//a//": {"folders": [], "files": []}
	}`
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}

	snap, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	root := snap["/"]
	if len(root.Folders) != 2 {
		t.Errorf("folders = %v, want [a b]", root.Folders)
	}
	if _, ok := snap["/a/"]; !ok {
		t.Error("missing /a/")
	}
	if _, ok := snap["/b/"]; !ok {
		t.Error("listed folder b should get an entry")
	}
	f, _ := root.File("x.go")
	if f.Type != "go" || !f.HasContent() {
		t.Errorf("x.go = %+v", f)
	}
}

func TestLoadFileRequiresRoot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.json")
	os.WriteFile(path, []byte(`{"/docs/": {"folders": [], "files": []}}`), 0644)
	if _, err := LoadFile(path); err == nil {
		t.Error("expected error for snapshot without root")
	}
}

func TestLoadURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"/": {"folders": ["remote"], "files": []}}`))
	}))
	defer srv.Close()

	snap := Load(context.Background(), srv.URL, nil)
	if !snap["/"].HasFolder("remote") {
		t.Errorf("root = %+v", snap["/"])
	}
}

func TestListIncludesDescendants(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()

	snap, err := a.List(ctx, "/")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(snap) != 2 {
		t.Errorf("List(/) returned %d entries, want 2", len(snap))
	}

	snap, err = a.List(ctx, "docs")
	if err != nil {
		t.Fatalf("List(docs): %v", err)
	}
	if _, ok := snap["/"]; ok {
		t.Error("List(docs) should not include the root")
	}

	_, err = a.List(ctx, "/nope/")
	if !errors.Is(err, backend.ErrNotFound) {
		t.Errorf("List(/nope/) err = %v, want ErrNotFound", err)
	}
}

func TestListReturnsCopies(t *testing.T) {
	a := newTestAdapter(t)
	snap, _ := a.List(context.Background(), "/")
	root := snap["/"]
	root.Folders[0] = "mutated"

	again, _ := a.List(context.Background(), "/")
	if again["/"].Folders[0] != "docs" {
		t.Error("List leaked internal state")
	}
}

func TestSaveAndGetContent(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()

	rec, err := a.Save(ctx, "/", "readme.md", "hello world")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if rec.LastModified != "2025-03-04" {
		t.Errorf("LastModified = %q", rec.LastModified)
	}
	if rec.Type != "markdown" {
		t.Errorf("Type = %q", rec.Type)
	}

	got, err := a.GetContent(ctx, "/", "readme.md")
	if err != nil || got != "hello world" {
		t.Errorf("GetContent = %q, %v", got, err)
	}

	if _, err := a.Save(ctx, "/missing/", "a.txt", "x"); !errors.Is(err, backend.ErrNotFound) {
		t.Errorf("Save into missing dir err = %v", err)
	}
	if _, err := a.Save(ctx, "/", "docs", "x"); !errors.Is(err, backend.ErrExists) {
		t.Errorf("Save over folder err = %v", err)
	}
}

func TestDeleteFolderCascades(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()

	if err := a.CreateFolder(ctx, "/docs/", "nested"); err != nil {
		t.Fatalf("CreateFolder: %v", err)
	}
	if err := a.Delete(ctx, "/", "docs", true); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	snap := a.Snapshot()
	for _, p := range []string{"/docs/", "/docs/nested/"} {
		if _, ok := snap[p]; ok {
			t.Errorf("%s still present", p)
		}
	}
	if snap["/"].HasFolder("docs") {
		t.Error("root still lists docs")
	}
	if err := a.Delete(ctx, "/", "docs", true); !errors.Is(err, backend.ErrNotFound) {
		t.Errorf("second delete err = %v", err)
	}
}

func TestDeleteFile(t *testing.T) {
	a := newTestAdapter(t)
	if err := a.Delete(context.Background(), "/", "readme.md", false); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := a.Snapshot()["/"].File("readme.md"); ok {
		t.Error("readme.md still present")
	}
}

func TestCreateFolderRejects(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()

	tests := []struct {
		name string
		want error
	}{
		{"", backend.ErrInvalidName},
		{"a/b", backend.ErrInvalidName},
		{"docs", backend.ErrExists},
		{"readme.md", backend.ErrExists},
	}
	for _, tt := range tests {
		err := a.CreateFolder(ctx, "/", tt.name)
		if !errors.Is(err, tt.want) {
			t.Errorf("CreateFolder(%q) = %v, want %v", tt.name, err, tt.want)
		}
	}
}

func TestUploadProgressAndReplace(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()

	var steps []int
	rec, err := a.Upload(ctx, "/docs/", backend.File{Name: "notes.txt", Body: strings.NewReader("abc")},
		func(p int) { steps = append(steps, p) })
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	want := []int{0, 25, 50, 75, 100}
	if len(steps) != len(want) {
		t.Fatalf("steps = %v, want %v", steps, want)
	}
	for i := range want {
		if steps[i] != want[i] {
			t.Fatalf("steps = %v, want %v", steps, want)
		}
	}
	if rec.Size != "3 B" {
		t.Errorf("Size = %q", rec.Size)
	}

	// Same name replaces.
	_, err = a.Upload(ctx, "/docs/", backend.File{Name: "notes.txt", Body: strings.NewReader("abcdef")}, nil)
	if err != nil {
		t.Fatalf("second Upload: %v", err)
	}
	entry := a.Snapshot()["/docs/"]
	count := 0
	for _, f := range entry.Files {
		if f.Name == "notes.txt" {
			count++
			if f.Text() != "abcdef" {
				t.Errorf("content = %q", f.Text())
			}
		}
	}
	if count != 1 {
		t.Errorf("notes.txt appears %d times", count)
	}
}

func TestUploadCancelled(t *testing.T) {
	a := New(nil, WithStepDelay(time.Hour))
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := a.Upload(ctx, "/", backend.File{Name: "slow.txt", Body: strings.NewReader("x")}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if _, ok := a.Snapshot()["/"].File("slow.txt"); ok {
		t.Error("cancelled upload should not insert the file")
	}
}

func TestDownload(t *testing.T) {
	a := newTestAdapter(t)
	rc, err := a.Download(context.Background(), "/", "readme.md")
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	defer rc.Close()
	b, _ := io.ReadAll(rc)
	if string(b) != "hello" {
		t.Errorf("body = %q", b)
	}

	_, err = a.Download(context.Background(), "/", "nope")
	be, ok := backend.AsError(err)
	if !ok || be.Kind != backend.KindDownload {
		t.Errorf("err = %v", err)
	}
}
