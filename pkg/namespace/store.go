// Package namespace holds the in-memory view of the known namespace,
// keyed by normalized path.
//
// Each path moves through unknown -> loading -> loaded. Loading is started
// with Begin, which issues a request token; a response is only applied if
// its token is still the latest one issued for that path, so a late answer
// for a superseded navigation can never overwrite newer state. Local
// mutations supersede in-flight loads that could carry the mutated path
// the same way.
package namespace

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/fruitsalade/explorer/pkg/models"
	"github.com/fruitsalade/explorer/pkg/pathkey"
)

// ErrStale is returned when a response arrives for a superseded request.
var ErrStale = errors.New("stale response")

// ErrInterrupted is returned for a load that a local mutation superseded
// while no newer load of the path is in flight. The caller should load
// the path again. It matches ErrStale.
var ErrInterrupted = fmt.Errorf("%w: interrupted by a local change", ErrStale)

// State is the load state of one path.
type State int

const (
	Unknown State = iota
	Loading
	Loaded
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	default:
		return "unknown"
	}
}

// Token identifies one in-flight load of a path.
type Token struct {
	Path string
	Seq  uint64
}

type node struct {
	entry   models.NamespaceEntry
	present bool
	state   State
	err     error
	seq     uint64
	cancel  context.CancelFunc

	interrupted uint64 // seq of the load a mutation superseded
}

// Store is the namespace store. It is safe for concurrent use.
type Store struct {
	mu    sync.RWMutex
	nodes map[string]*node
}

// New creates an empty store.
func New() *Store {
	return &Store{nodes: make(map[string]*node)}
}

func (s *Store) nodeLocked(p string) *node {
	n, ok := s.nodes[p]
	if !ok {
		n = &node{}
		s.nodes[p] = n
	}
	return n
}

// Begin starts a load of path and returns its token. Any earlier
// in-flight load of the same path is superseded.
func (s *Store) Begin(path string) Token {
	tok, _ := s.BeginContext(context.Background(), path)
	return tok
}

// BeginContext is Begin that also derives a context for the request. The
// context of a superseded load is cancelled.
func (s *Store) BeginContext(ctx context.Context, path string) (Token, context.Context) {
	p := pathkey.Normalize(path)
	ctx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.nodeLocked(p)
	if n.cancel != nil {
		n.cancel()
	}
	n.seq++
	n.state = Loading
	n.cancel = cancel
	return Token{Path: p, Seq: n.seq}, ctx
}

// Current reports whether tok is still the latest token for its path.
func (s *Store) Current(tok Token) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[tok.Path]
	return ok && n.seq == tok.Seq && n.state == Loading
}

// Commit applies a successful response. entries must contain tok.Path and
// may contain descendants; descendants that are themselves loading are
// left to their own request. Folders that disappeared from tok.Path are
// dropped together with their subtrees.
func (s *Store) Commit(tok Token, entries models.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nodes[tok.Path]
	if err := n.check(ok, tok); err != nil {
		return err
	}
	entry, ok := entries[tok.Path]
	if !ok {
		entry = models.NamespaceEntry{}
	}

	if n.present {
		for _, old := range n.entry.Folders {
			if !entry.HasFolder(old) {
				s.removeSubtreeLocked(pathkey.Join(tok.Path, old))
			}
		}
	}
	s.settleLocked(n, entry.Clone())

	for key, e := range entries {
		key = pathkey.Normalize(key)
		if key == tok.Path || !pathkey.IsUnder(key, tok.Path) {
			continue
		}
		child := s.nodeLocked(key)
		if child.state == Loading {
			continue
		}
		child.entry = e.Clone()
		child.present = true
		child.state = Loaded
		child.err = nil
	}
	return nil
}

// check reports why tok can no longer settle n, or nil if it still can.
func (n *node) check(ok bool, tok Token) error {
	switch {
	case !ok:
		return ErrStale
	case n.seq == tok.Seq && n.state == Loading:
		return nil
	case n.interrupted == tok.Seq && n.state != Loading:
		return ErrInterrupted
	}
	return ErrStale
}

// supersedeLocked cancels every in-flight load whose response could carry
// p, that is loads of p and of its ancestors. Their responses were read
// before the mutation and would otherwise overwrite it.
func (s *Store) supersedeLocked(p string) {
	for key, n := range s.nodes {
		if n.state != Loading || !pathkey.IsUnder(p, key) {
			continue
		}
		if n.cancel != nil {
			n.cancel()
			n.cancel = nil
		}
		n.interrupted = n.seq
		n.seq++
		if n.present {
			n.state = Loaded
		} else {
			n.state = Unknown
		}
	}
}

func (s *Store) settleLocked(n *node, entry models.NamespaceEntry) {
	n.entry = entry
	n.present = true
	n.state = Loaded
	n.err = nil
	if n.cancel != nil {
		n.cancel()
		n.cancel = nil
	}
}

// Fail records a failed load. The previous entry, if any, stays visible.
// A failure for a superseded token returns ErrStale and changes nothing.
func (s *Store) Fail(tok Token, err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nodes[tok.Path]
	if err := n.check(ok, tok); err != nil {
		return err
	}
	n.err = err
	if n.present {
		n.state = Loaded
	} else {
		n.state = Unknown
	}
	if n.cancel != nil {
		n.cancel()
		n.cancel = nil
	}
	return nil
}

// Get returns a copy of the entry at path.
func (s *Store) Get(path string) (models.NamespaceEntry, bool) {
	p := pathkey.Normalize(path)
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[p]
	if !ok || !n.present {
		return models.NamespaceEntry{}, false
	}
	return n.entry.Clone(), true
}

// File returns a copy of one file record.
func (s *Store) File(path, name string) (models.FileRecord, bool) {
	e, ok := s.Get(path)
	if !ok {
		return models.FileRecord{}, false
	}
	f, ok := e.File(name)
	return f.Clone(), ok
}

// State returns the load state of path.
func (s *Store) State(path string) State {
	p := pathkey.Normalize(path)
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n, ok := s.nodes[p]; ok {
		return n.state
	}
	return Unknown
}

// Err returns the error of the last failed load of path, cleared by the
// next successful one.
func (s *Store) Err(path string) error {
	p := pathkey.Normalize(path)
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n, ok := s.nodes[p]; ok {
		return n.err
	}
	return nil
}

// Invalidate cancels any in-flight load of path and marks it unknown so
// the next navigation fetches it again. The entry stays readable.
func (s *Store) Invalidate(path string) {
	p := pathkey.Normalize(path)
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[p]
	if !ok {
		return
	}
	if n.cancel != nil {
		n.cancel()
		n.cancel = nil
	}
	n.seq++
	n.state = Unknown
}

// PutFile inserts rec into the entry at path, replacing a file of the
// same name. It reports false if the entry is not present.
func (s *Store) PutFile(path string, rec models.FileRecord) bool {
	p := pathkey.Normalize(path)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.supersedeLocked(p)
	n, ok := s.nodes[p]
	if !ok || !n.present {
		return false
	}
	rec = rec.Clone()
	if i := n.entry.FileIndex(rec.Name); i >= 0 {
		n.entry.Files[i] = rec
	} else {
		n.entry.Files = append(n.entry.Files, rec)
	}
	return true
}

// UpdateFile applies fn to the named file in place.
func (s *Store) UpdateFile(path, name string, fn func(*models.FileRecord)) bool {
	p := pathkey.Normalize(path)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.supersedeLocked(p)
	n, ok := s.nodes[p]
	if !ok || !n.present {
		return false
	}
	i := n.entry.FileIndex(name)
	if i < 0 {
		return false
	}
	fn(&n.entry.Files[i])
	return true
}

// RemoveFile drops the named file from the entry at path.
func (s *Store) RemoveFile(path, name string) bool {
	p := pathkey.Normalize(path)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.supersedeLocked(p)
	n, ok := s.nodes[p]
	if !ok || !n.present {
		return false
	}
	i := n.entry.FileIndex(name)
	if i < 0 {
		return false
	}
	n.entry.Files = slices.Delete(n.entry.Files, i, i+1)
	return true
}

// AddFolder lists name in the entry at path and creates an empty, loaded
// entry for it. Adding an existing folder is a no-op.
func (s *Store) AddFolder(path, name string) bool {
	p := pathkey.Normalize(path)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.supersedeLocked(p)
	n, ok := s.nodes[p]
	if !ok || !n.present {
		return false
	}
	if !n.entry.HasFolder(name) {
		n.entry.Folders = append(n.entry.Folders, name)
	}
	child := s.nodeLocked(pathkey.Join(p, name))
	if !child.present {
		child.entry = models.NamespaceEntry{Folders: []string{}, Files: []models.FileRecord{}}
		child.present = true
		child.state = Loaded
	}
	return true
}

// RemoveFolder unlists name from the entry at path and drops the folder's
// entry and every descendant entry. In-flight loads below it are
// cancelled. It returns the removed paths.
func (s *Store) RemoveFolder(path, name string) []string {
	p := pathkey.Normalize(path)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.supersedeLocked(p)
	if n, ok := s.nodes[p]; ok && n.present {
		n.entry.Folders = slices.DeleteFunc(n.entry.Folders, func(f string) bool { return f == name })
	}
	return s.removeSubtreeLocked(pathkey.Join(p, name))
}

func (s *Store) removeSubtreeLocked(dir string) []string {
	var removed []string
	for key, n := range s.nodes {
		if !pathkey.IsUnder(key, dir) {
			continue
		}
		if n.cancel != nil {
			n.cancel()
		}
		delete(s.nodes, key)
		if n.present {
			removed = append(removed, key)
		}
	}
	slices.Sort(removed)
	return removed
}

// Paths returns the sorted paths that currently have an entry.
func (s *Store) Paths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.nodes))
	for key, n := range s.nodes {
		if n.present {
			out = append(out, key)
		}
	}
	slices.Sort(out)
	return out
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, n := range s.nodes {
		if n.present {
			count++
		}
	}
	return count
}

// Snapshot returns a copy of every present entry.
func (s *Store) Snapshot() models.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(models.Snapshot, len(s.nodes))
	for key, n := range s.nodes {
		if n.present {
			out[key] = n.entry.Clone()
		}
	}
	return out
}
