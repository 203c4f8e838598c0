package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fruitsalade/explorer/internal/config"
	"github.com/fruitsalade/explorer/pkg/backend/demo"
	"github.com/fruitsalade/explorer/pkg/explorer"
	"github.com/fruitsalade/explorer/pkg/models"
)

// writeTestSnapshot stores a small tree and returns its path.
func writeTestSnapshot(t *testing.T) string {
	t.Helper()
	snap := models.Snapshot{
		"/": {
			Folders: []string{"docs"},
			Files: []models.FileRecord{
				models.FileRecord{Name: "readme.md", Type: "markdown", Size: "7 B", LastModified: "2024-01-01"}.WithContent("# Hello"),
				models.FileRecord{Name: "logo.png", Type: "image", Size: "4 B", LastModified: "2024-01-01"}.WithContent("PNGDATA"),
			},
		},
		"/docs/": {
			Folders: []string{"sub"},
			Files:   []models.FileRecord{models.FileRecord{Name: "guide.txt", Type: "text"}.WithContent("read me")},
		},
		"/docs/sub/": {
			Files: []models.FileRecord{models.FileRecord{Name: "deep.md", Type: "markdown"}.WithContent("deep")},
		},
	}
	path := filepath.Join(t.TempDir(), "snapshot.json")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := demo.Encode(f, snap); err != nil {
		t.Fatal(err)
	}
	return path
}

// runCLI runs the app with args after the global --snapshot flag.
func runCLI(t *testing.T, snapshot, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cfg := &config.ClientConfig{Mode: config.ModeDemo, Bucket: "test", LogLevel: "error"}
	app := newCLIApp(cfg, strings.NewReader(stdin), &out)
	argv := append([]string{"explorer", "--snapshot", snapshot}, args...)
	err := app.RunContext(context.Background(), argv)
	return out.String(), err
}

func TestLs(t *testing.T) {
	snap := writeTestSnapshot(t)

	out, err := runCLI(t, snap, "", "ls")
	if err != nil {
		t.Fatalf("ls: %v", err)
	}
	want := "docs/\nreadme.md\nlogo.png\n"
	if out != want {
		t.Errorf("ls output = %q, want %q", out, want)
	}

	out, err = runCLI(t, snap, "", "ls", "-l", "docs")
	if err != nil {
		t.Fatalf("ls -l docs: %v", err)
	}
	if !strings.Contains(out, "sub/") || !strings.Contains(out, "guide.txt") || !strings.Contains(out, "folder") {
		t.Errorf("ls -l output = %q", out)
	}

	if _, err := runCLI(t, snap, "", "ls", "nope"); err == nil {
		t.Error("ls of a missing folder should fail")
	}
}

func TestTree(t *testing.T) {
	snap := writeTestSnapshot(t)

	out, err := runCLI(t, snap, "", "tree")
	if err != nil {
		t.Fatalf("tree: %v", err)
	}
	for _, want := range []string{"test:/", "docs/", "sub/", "deep.md", "guide.txt", "readme.md"} {
		if !strings.Contains(out, want) {
			t.Errorf("tree output missing %q:\n%s", want, out)
		}
	}

	out, err = runCLI(t, snap, "", "tree", "--depth", "1")
	if err != nil {
		t.Fatalf("tree --depth 1: %v", err)
	}
	if strings.Contains(out, "guide.txt") {
		t.Errorf("depth-limited tree descended:\n%s", out)
	}
}

func TestCatAndPreview(t *testing.T) {
	snap := writeTestSnapshot(t)

	out, err := runCLI(t, snap, "", "cat", "docs/guide.txt")
	if err != nil || out != "read me" {
		t.Errorf("cat = %q, %v", out, err)
	}
	out, err = runCLI(t, snap, "", "--cwd", "/docs/sub", "cat", "../guide.txt")
	if err != nil || out != "read me" {
		t.Errorf("cat relative = %q, %v", out, err)
	}
	out, err = runCLI(t, snap, "", "cat", "/logo.png")
	if err != nil || out != "PNGDATA" {
		t.Errorf("cat of a binary file = %q, %v", out, err)
	}

	out, err = runCLI(t, snap, "", "preview", "readme.md")
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if !strings.Contains(out, "<h1>Hello</h1>") {
		t.Errorf("preview = %q", out)
	}
	if _, err := runCLI(t, snap, "", "preview", "logo.png"); err == nil {
		t.Error("preview of an image should fail")
	}
}

func TestFind(t *testing.T) {
	snap := writeTestSnapshot(t)

	out, err := runCLI(t, snap, "", "find", "rdm")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if strings.TrimSpace(out) != "readme.md" {
		t.Errorf("find rdm = %q", out)
	}

	out, _ = runCLI(t, snap, "", "find", "--in", "docs")
	if out != "sub/\nguide.txt\n" {
		t.Errorf("find without query = %q", out)
	}
}

func TestEditPersists(t *testing.T) {
	snap := writeTestSnapshot(t)

	out, err := runCLI(t, snap, "", "--persist", "edit", "--content", "bye", "readme.md")
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if !strings.HasPrefix(out, "saved /readme.md") {
		t.Errorf("edit output = %q", out)
	}

	out, err = runCLI(t, snap, "", "cat", "readme.md")
	if err != nil || out != "bye" {
		t.Errorf("cat after persisted edit = %q, %v", out, err)
	}

	if _, err := runCLI(t, snap, "new text", "edit", "logo.png"); err == nil {
		t.Error("editing an image should fail")
	}
}

func TestEditFromStdinWithoutPersist(t *testing.T) {
	snap := writeTestSnapshot(t)

	if _, err := runCLI(t, snap, "from stdin", "edit", "docs/guide.txt"); err != nil {
		t.Fatalf("edit: %v", err)
	}
	out, _ := runCLI(t, snap, "", "cat", "docs/guide.txt")
	if out != "read me" {
		t.Errorf("edit without --persist changed the snapshot: %q", out)
	}
}

func TestRm(t *testing.T) {
	snap := writeTestSnapshot(t)

	if _, err := runCLI(t, snap, "", "rm", "docs"); err == nil || !strings.Contains(err.Error(), "rm -r") {
		t.Errorf("rm of a folder without -r = %v", err)
	}

	out, err := runCLI(t, snap, "n\n", "--persist", "rm", "-r", "docs")
	if !errors.Is(err, explorer.ErrDeclined) {
		t.Fatalf("declined rm = %v", err)
	}
	if !strings.Contains(out, "Delete folder /docs/?") {
		t.Errorf("prompt = %q", out)
	}

	if _, err := runCLI(t, snap, "y\n", "--persist", "rm", "-r", "docs"); err != nil {
		t.Fatalf("confirmed rm: %v", err)
	}
	out, _ = runCLI(t, snap, "", "ls")
	if strings.Contains(out, "docs/") {
		t.Errorf("docs still listed: %q", out)
	}

	if _, err := runCLI(t, snap, "", "--yes", "--persist", "rm", "readme.md"); err != nil {
		t.Fatalf("rm --yes: %v", err)
	}
	if out, _ = runCLI(t, snap, "", "ls"); out != "logo.png\n" {
		t.Errorf("ls after rm = %q", out)
	}
}

func TestMkdirAndPut(t *testing.T) {
	snap := writeTestSnapshot(t)
	local := filepath.Join(t.TempDir(), "notes.md")
	if err := os.WriteFile(local, []byte("# Notes"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := runCLI(t, snap, "", "--persist", "mkdir", "docs/new"); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if _, err := runCLI(t, snap, "", "mkdir", "docs"); err == nil {
		t.Error("mkdir of an existing folder should fail")
	}

	out, err := runCLI(t, snap, "", "--persist", "put", "--to", "docs/new", local)
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if !strings.Contains(out, "notes.md: 100%") || !strings.Contains(out, "uploaded to /docs/new/") {
		t.Errorf("put output = %q", out)
	}

	out, err = runCLI(t, snap, "", "cat", "docs/new/notes.md")
	if err != nil || out != "# Notes" {
		t.Errorf("cat uploaded = %q, %v", out, err)
	}
}

func TestGet(t *testing.T) {
	snap := writeTestSnapshot(t)
	dest := filepath.Join(t.TempDir(), "guide-copy.txt")

	if _, err := runCLI(t, snap, "", "get", "-o", dest, "docs/guide.txt"); err != nil {
		t.Fatalf("get: %v", err)
	}
	data, err := os.ReadFile(dest)
	if err != nil || string(data) != "read me" {
		t.Errorf("downloaded = %q, %v", data, err)
	}

	out, err := runCLI(t, snap, "", "get", "-o", "-", "readme.md")
	if err != nil || out != "# Hello" {
		t.Errorf("get to stdout = %q, %v", out, err)
	}
}

func TestRemoteOnlyCommands(t *testing.T) {
	snap := writeTestSnapshot(t)
	for _, cmd := range []string{"login", "watch"} {
		if _, err := runCLI(t, snap, "", cmd); err == nil || !strings.Contains(err.Error(), "--mode remote") {
			t.Errorf("%s in demo mode = %v", cmd, err)
		}
	}
}

func TestRemoteModeNeedsURL(t *testing.T) {
	snap := writeTestSnapshot(t)
	if _, err := runCLI(t, snap, "", "--mode", "remote", "ls"); err == nil {
		t.Error("remote mode without --url should fail")
	}
}

func TestUsageErrors(t *testing.T) {
	snap := writeTestSnapshot(t)
	for _, cmd := range []string{"cat", "edit", "preview", "get", "put", "mkdir", "rm"} {
		if _, err := runCLI(t, snap, "", cmd); err == nil || !strings.Contains(err.Error(), "usage:") {
			t.Errorf("%s without args = %v", cmd, err)
		}
	}
}

func TestPersistRefusesUnreadableSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	broken := `{"/":{"folders":["projects"],"files":[]},"/projects/":{"folders":[],"files":[{"name":"plan.md","type":"markdown","content":"x"}]},}`
	if err := os.WriteFile(path, []byte(broken), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := runCLI(t, path, "", "--persist", "mkdir", "x"); err == nil {
		t.Fatal("persisting over an unreadable snapshot should fail")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != broken {
		t.Errorf("snapshot was rewritten:\n%s", data)
	}

	// Browsing still falls back to the embedded tree.
	if _, err := runCLI(t, path, "", "ls"); err != nil {
		t.Errorf("ls without --persist: %v", err)
	}

	missing := filepath.Join(t.TempDir(), "missing.json")
	if _, err := runCLI(t, missing, "", "--persist", "mkdir", "x"); err == nil {
		t.Error("persisting without a snapshot file should fail")
	}
	if _, err := os.Stat(missing); !os.IsNotExist(err) {
		t.Errorf("missing snapshot was created: %v", err)
	}
}

func TestLsSort(t *testing.T) {
	snap := writeTestSnapshot(t)

	out, err := runCLI(t, snap, "", "ls", "--sort", "name")
	if err != nil || out != "docs/\nlogo.png\nreadme.md\n" {
		t.Errorf("ls --sort name = %q, %v", out, err)
	}
	out, err = runCLI(t, snap, "", "ls", "--sort", "size")
	if err != nil || out != "docs/\nreadme.md\nlogo.png\n" {
		t.Errorf("ls --sort size = %q, %v", out, err)
	}
	if _, err := runCLI(t, snap, "", "ls", "--sort", "colour"); err == nil {
		t.Error("unknown sort key should fail")
	}
}
