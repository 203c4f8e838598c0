// Package models contains the data types shared by the Explorer library,
// the reference server and the command-line tools.
package models

import (
	"slices"
	"time"
)

// DateLayout is the display layout used for FileRecord.LastModified.
const DateLayout = "2006-01-02"

// FileRecord describes one file inside a NamespaceEntry.
// Content is nil until it has been fetched (remote mode).
type FileRecord struct {
	Name         string  `json:"name"`
	Type         string  `json:"type"`
	Size         string  `json:"size"`
	LastModified string  `json:"lastModified"`
	Content      *string `json:"content,omitempty"`
}

// HasContent reports whether the record carries its content.
func (f FileRecord) HasContent() bool {
	return f.Content != nil
}

// Text returns the content, or "" when it has not been fetched.
func (f FileRecord) Text() string {
	if f.Content == nil {
		return ""
	}
	return *f.Content
}

// WithContent returns a copy of f carrying content.
func (f FileRecord) WithContent(content string) FileRecord {
	f.Content = &content
	return f
}

// WithoutContent returns a copy of f with the content stripped.
func (f FileRecord) WithoutContent() FileRecord {
	f.Content = nil
	return f
}

// Clone returns a deep copy of f.
func (f FileRecord) Clone() FileRecord {
	if f.Content != nil {
		c := *f.Content
		f.Content = &c
	}
	return f
}

// NamespaceEntry is the set of folders and files located at one path.
type NamespaceEntry struct {
	Folders []string     `json:"folders"`
	Files   []FileRecord `json:"files"`
}

// Clone returns a deep copy of e. Nil slices become empty slices so the
// JSON form is always `[]`.
func (e NamespaceEntry) Clone() NamespaceEntry {
	out := NamespaceEntry{
		Folders: make([]string, len(e.Folders)),
		Files:   make([]FileRecord, len(e.Files)),
	}
	copy(out.Folders, e.Folders)
	for i, f := range e.Files {
		out.Files[i] = f.Clone()
	}
	return out
}

// HasFolder reports whether name is listed in Folders.
func (e NamespaceEntry) HasFolder(name string) bool {
	return slices.Contains(e.Folders, name)
}

// FileIndex returns the index of the file called name, or -1.
func (e NamespaceEntry) FileIndex(name string) int {
	for i, f := range e.Files {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// File returns the file called name.
func (e NamespaceEntry) File(name string) (FileRecord, bool) {
	if i := e.FileIndex(name); i >= 0 {
		return e.Files[i], true
	}
	return FileRecord{}, false
}

// Snapshot is a whole namespace keyed by normalized path. It is the
// on-disk demo seed format and the body of a list response.
type Snapshot map[string]NamespaceEntry

// Clone returns a deep copy of s.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for k, v := range s {
		out[k] = v.Clone()
	}
	return out
}

// Today formats t the way FileRecord.LastModified is displayed.
func Today(t time.Time) string {
	return t.Format(DateLayout)
}
