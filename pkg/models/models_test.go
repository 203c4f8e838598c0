package models

import "testing"

func TestFileRecordContent(t *testing.T) {
	f := FileRecord{Name: "a.txt"}
	if f.HasContent() {
		t.Fatal("zero record should have no content")
	}
	if f.Text() != "" {
		t.Errorf("Text() = %q, want empty", f.Text())
	}

	g := f.WithContent("hello")
	if !g.HasContent() || g.Text() != "hello" {
		t.Errorf("WithContent: got %q", g.Text())
	}
	if f.HasContent() {
		t.Error("WithContent mutated the receiver")
	}
	if g.WithoutContent().HasContent() {
		t.Error("WithoutContent kept content")
	}
}

func TestEntryCloneIsDeep(t *testing.T) {
	e := NamespaceEntry{
		Folders: []string{"docs"},
		Files:   []FileRecord{FileRecord{Name: "a"}.WithContent("x")},
	}
	c := e.Clone()
	c.Folders[0] = "other"
	*c.Files[0].Content = "changed"

	if e.Folders[0] != "docs" {
		t.Errorf("folder aliased: %q", e.Folders[0])
	}
	if e.Files[0].Text() != "x" {
		t.Errorf("content aliased: %q", e.Files[0].Text())
	}
}

func TestEntryCloneNilSlices(t *testing.T) {
	c := NamespaceEntry{}.Clone()
	if c.Folders == nil || c.Files == nil {
		t.Error("Clone should produce non-nil slices")
	}
}

func TestEntryLookup(t *testing.T) {
	e := NamespaceEntry{
		Folders: []string{"docs", "img"},
		Files:   []FileRecord{{Name: "a.txt"}, {Name: "b.md"}},
	}
	if !e.HasFolder("img") || e.HasFolder("a.txt") {
		t.Error("HasFolder mismatch")
	}
	if i := e.FileIndex("b.md"); i != 1 {
		t.Errorf("FileIndex(b.md) = %d, want 1", i)
	}
	if _, ok := e.File("missing"); ok {
		t.Error("File(missing) should not be found")
	}
}

func TestTypeFor(t *testing.T) {
	tests := []struct {
		name, want string
	}{
		{"readme.md", "markdown"},
		{"CONFIG.YML", "yaml"},
		{"main.go", "go"},
		{"photo.JPG", "image"},
		{"noext", "file"},
		{"archive.tar.gz", "archive"},
	}
	for _, tt := range tests {
		if got := TypeFor(tt.name); got != tt.want {
			t.Errorf("TypeFor(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestDisplaySize(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "0 B"},
		{-5, "0 B"},
		{512, "512 B"},
		{2048, "2.0 KiB"},
	}
	for _, tt := range tests {
		if got := DisplaySize(tt.n); got != tt.want {
			t.Errorf("DisplaySize(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
	if got := ParseSize("2.0 KiB"); got != 2048 {
		t.Errorf("ParseSize(2.0 KiB) = %d", got)
	}
	if got := ParseSize("garbage"); got != 0 {
		t.Errorf("ParseSize(garbage) = %d", got)
	}
}
