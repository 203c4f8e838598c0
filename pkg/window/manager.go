// Package window tracks open file-edit sessions: their stacking order,
// their on-screen rectangle and their local, unsaved copy of the file.
//
// A file is a singleton per path: opening it again focuses the existing
// session. The manager never touches the namespace store; a session's
// content flows back only through an explicit save.
package window

import (
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/fruitsalade/explorer/pkg/models"
	"github.com/fruitsalade/explorer/pkg/pathkey"
)

// ErrNoSession is returned for an unknown session id.
var ErrNoSession = errors.New("no such session")

// Session is one open editor window.
type Session struct {
	ID       string
	Path     string // directory the file was opened from
	File     models.FileRecord
	Z        int
	Rect     Rect
	OpenedAt time.Time

	saved string // content as last loaded or saved
	slot  int    // position in the current cascade run
}

// Dirty reports whether the local copy differs from the last saved content.
func (s Session) Dirty() bool {
	return s.File.Text() != s.saved
}

// Key returns the file path the session is bound to.
func (s Session) Key() string {
	return pathkey.FilePath(s.Path, s.File.Name)
}

func (s *Session) clone() Session {
	c := *s
	c.File = s.File.Clone()
	return c
}

// Manager is the window manager. It is safe for concurrent use and holds
// its own lock, so window interactions never wait on backend calls.
type Manager struct {
	mu       sync.Mutex
	sessions []*Session // open order
	topZ     int
	geo      Geometry
	viewport Viewport
	newID    func() string
	now      func() time.Time
	logger   *zap.Logger

	ready     chan struct{}
	readyOnce sync.Once
}

// Option configures a Manager.
type Option func(*Manager)

// WithGeometry overrides the layout constants.
func WithGeometry(g Geometry) Option {
	return func(m *Manager) { m.geo = g }
}

// WithViewport sets the initial viewport.
func WithViewport(vp Viewport) Option {
	return func(m *Manager) { m.viewport = vp }
}

// WithIDs overrides session id generation.
func WithIDs(fn func() string) Option {
	return func(m *Manager) { m.newID = fn }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// NewManager creates an empty window manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		geo:      DefaultGeometry(),
		viewport: DefaultViewport,
		newID:    func() string { return ulid.Make().String() },
		now:      time.Now,
		logger:   zap.NewNop(),
		ready:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) findLocked(id string) (int, *Session) {
	for i, s := range m.sessions {
		if s.ID == id {
			return i, s
		}
	}
	return -1, nil
}

func (m *Manager) findFileLocked(path, name string) *Session {
	for _, s := range m.sessions {
		if s.Path == path && s.File.Name == name {
			return s
		}
	}
	return nil
}

// Open opens file from path in a new window, or focuses the window that
// already holds it. created reports whether a new session was made.
func (m *Manager) Open(path string, file models.FileRecord) (sess Session, created bool) {
	p := pathkey.Normalize(path)

	m.mu.Lock()
	defer m.mu.Unlock()

	if s := m.findFileLocked(p, file.Name); s != nil {
		m.topZ++
		s.Z = m.topZ
		return s.clone(), false
	}

	var prev *Session
	if n := len(m.sessions); n > 0 {
		prev = m.sessions[n-1]
	}
	x, y, slot := m.geo.cascade(prev)
	m.topZ++
	s := &Session{
		ID:       m.newID(),
		Path:     p,
		File:     file.Clone(),
		Z:        m.topZ,
		Rect:     m.geo.Clamp(Rect{X: x, Y: y, Width: m.geo.DefaultWidth, Height: m.geo.DefaultHeight}, m.viewport),
		OpenedAt: m.now(),
		saved:    file.Text(),
		slot:     slot,
	}
	m.sessions = append(m.sessions, s)

	m.logger.Debug("Opened session",
		zap.String("id", s.ID),
		zap.String("file", s.Key()),
		zap.Int("z", s.Z))
	return s.clone(), true
}

// BringToFront gives the session the next top z-index. The relative order
// of the others is unchanged.
func (m *Manager) BringToFront(id string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, s := m.findLocked(id)
	if s == nil {
		return Session{}, ErrNoSession
	}
	m.topZ++
	s.Z = m.topZ
	return s.clone(), nil
}

// Move repositions a window, clamped to the viewport.
func (m *Manager) Move(id string, x, y int) (Session, error) {
	return m.reshape(id, func(r *Rect) { r.X, r.Y = x, y })
}

// Resize changes a window's size, clamped to the minimums and the viewport.
func (m *Manager) Resize(id string, width, height int) (Session, error) {
	return m.reshape(id, func(r *Rect) { r.Width, r.Height = width, height })
}

func (m *Manager) reshape(id string, fn func(*Rect)) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, s := m.findLocked(id)
	if s == nil {
		return Session{}, ErrNoSession
	}
	r := s.Rect
	fn(&r)
	s.Rect = m.geo.Clamp(r, m.viewport)
	return s.clone(), nil
}

// SetViewport records a new viewport size and re-clamps every window.
func (m *Manager) SetViewport(vp Viewport) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.viewport = vp
	for _, s := range m.sessions {
		s.Rect = m.geo.Clamp(s.Rect, vp)
	}
}

// Viewport returns the current viewport.
func (m *Manager) Viewport() Viewport {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.viewport
}

// UpdateContent replaces the session's local content.
func (m *Manager) UpdateContent(id, content string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, s := m.findLocked(id)
	if s == nil {
		return Session{}, ErrNoSession
	}
	s.File = s.File.WithContent(content)
	return s.clone(), nil
}

// MarkSaved records that content was persisted as rec. The local copy
// takes rec's metadata; edits made after content was sent stay dirty.
func (m *Manager) MarkSaved(id, content string, rec models.FileRecord) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, s := m.findLocked(id)
	if s == nil {
		return Session{}, ErrNoSession
	}
	s.saved = content
	s.File.LastModified = rec.LastModified
	if rec.Size != "" {
		s.File.Size = rec.Size
	}
	if rec.Type != "" {
		s.File.Type = rec.Type
	}
	return s.clone(), nil
}

// Close removes a session. Unsaved content is discarded; callers that
// want a confirmation check Dirty first.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, s := m.findLocked(id)
	if s == nil {
		return ErrNoSession
	}
	m.sessions = slices.Delete(m.sessions, i, i+1)
	m.logger.Debug("Closed session", zap.String("id", id), zap.Bool("dirty", s.Dirty()))
	return nil
}

// CloseFile closes the session bound to the file name in path, if any.
func (m *Manager) CloseFile(path, name string) (string, bool) {
	p := pathkey.Normalize(path)
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, s := range m.sessions {
		if s.Path == p && s.File.Name == name {
			m.sessions = slices.Delete(m.sessions, i, i+1)
			return s.ID, true
		}
	}
	return "", false
}

// CloseUnder closes every session opened from dir or below it and
// returns their ids.
func (m *Manager) CloseUnder(dir string) []string {
	d := pathkey.Normalize(dir)
	m.mu.Lock()
	defer m.mu.Unlock()
	var closed []string
	m.sessions = slices.DeleteFunc(m.sessions, func(s *Session) bool {
		if pathkey.IsUnder(s.Path, d) {
			closed = append(closed, s.ID)
			return true
		}
		return false
	})
	return closed
}

// Get returns a copy of a session.
func (m *Manager) Get(id string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, s := m.findLocked(id)
	if s == nil {
		return Session{}, ErrNoSession
	}
	return s.clone(), nil
}

// Find returns the session holding the file name in path.
func (m *Manager) Find(path, name string) (Session, bool) {
	p := pathkey.Normalize(path)
	m.mu.Lock()
	defer m.mu.Unlock()
	if s := m.findFileLocked(p, name); s != nil {
		return s.clone(), true
	}
	return Session{}, false
}

// Sessions returns all sessions in the order they were opened.
func (m *Manager) Sessions() []Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Session, len(m.sessions))
	for i, s := range m.sessions {
		out[i] = s.clone()
	}
	return out
}

// Stack returns all sessions bottom to top, the order a host draws them.
func (m *Manager) Stack() []Session {
	out := m.Sessions()
	slices.SortFunc(out, func(a, b Session) int { return a.Z - b.Z })
	return out
}

// Top returns the frontmost session.
func (m *Manager) Top() (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var top *Session
	for _, s := range m.sessions {
		if top == nil || s.Z > top.Z {
			top = s
		}
	}
	if top == nil {
		return Session{}, false
	}
	return top.clone(), true
}

// Dirty reports whether a session has unsaved edits.
func (m *Manager) Dirty(id string) (bool, error) {
	s, err := m.Get(id)
	if err != nil {
		return false, err
	}
	return s.Dirty(), nil
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
