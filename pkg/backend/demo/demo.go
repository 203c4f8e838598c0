// Package demo implements the in-memory demo tree adapter. The whole
// namespace lives in a snapshot seeded once at construction; operations
// complete immediately but go through the same context-aware contract as
// the remote adapter.
package demo

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fruitsalade/explorer/pkg/backend"
	"github.com/fruitsalade/explorer/pkg/models"
	"github.com/fruitsalade/explorer/pkg/pathkey"
)

// ProgressSteps are the simulated upload progress values.
var ProgressSteps = []int{0, 25, 50, 75, 100}

// Adapter is the demo tree backend.
type Adapter struct {
	mu        sync.RWMutex
	tree      models.Snapshot
	logger    *zap.Logger
	now       func() time.Time
	stepDelay time.Duration
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *Adapter) { a.logger = l }
}

// WithClock overrides the time source used for lastModified.
func WithClock(now func() time.Time) Option {
	return func(a *Adapter) { a.now = now }
}

// WithStepDelay pauses between simulated upload progress steps.
func WithStepDelay(d time.Duration) Option {
	return func(a *Adapter) { a.stepDelay = d }
}

// New creates a demo adapter over a private copy of seed. A nil seed
// selects the embedded default.
func New(seed models.Snapshot, opts ...Option) *Adapter {
	if seed == nil {
		seed = Default()
	}
	a := &Adapter{
		tree:   seed.Clone(),
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

var _ backend.Adapter = (*Adapter)(nil)

// Mode implements backend.Adapter.
func (a *Adapter) Mode() string { return backend.ModeDemo }

// List returns the entry at path together with all its descendants.
func (a *Adapter) List(ctx context.Context, path string) (models.Snapshot, error) {
	p := pathkey.Normalize(path)
	if err := ctx.Err(); err != nil {
		return nil, backend.Fail(backend.KindList, p, err)
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	if _, ok := a.tree[p]; !ok {
		return nil, backend.Fail(backend.KindList, p, backend.ErrNotFound)
	}
	out := make(models.Snapshot)
	for key, entry := range a.tree {
		if pathkey.IsUnder(key, p) {
			out[key] = entry.Clone()
		}
	}
	return out, nil
}

// GetContent implements backend.Adapter.
func (a *Adapter) GetContent(ctx context.Context, path, name string) (string, error) {
	p := pathkey.Normalize(path)
	fp := pathkey.FilePath(p, name)
	if err := ctx.Err(); err != nil {
		return "", backend.Fail(backend.KindContent, fp, err)
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	f, ok := a.tree[p].File(name)
	if !ok {
		return "", backend.Fail(backend.KindContent, fp, backend.ErrNotFound)
	}
	return f.Text(), nil
}

// Save replaces the file's content, creating the file if it is absent.
func (a *Adapter) Save(ctx context.Context, path, name, content string) (models.FileRecord, error) {
	p := pathkey.Normalize(path)
	fp := pathkey.FilePath(p, name)
	if err := ctx.Err(); err != nil {
		return models.FileRecord{}, backend.Fail(backend.KindSave, fp, err)
	}
	if err := backend.ValidateName(name); err != nil {
		return models.FileRecord{}, backend.Fail(backend.KindSave, fp, err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	rec, err := a.putLocked(p, name, content)
	if err != nil {
		return models.FileRecord{}, backend.Fail(backend.KindSave, fp, err)
	}
	a.logger.Debug("Saved demo file", zap.String("path", fp), zap.Int("bytes", len(content)))
	return rec, nil
}

// Delete implements backend.Adapter.
func (a *Adapter) Delete(ctx context.Context, path, name string, isFolder bool) error {
	p := pathkey.Normalize(path)
	if err := ctx.Err(); err != nil {
		return backend.Fail(backend.KindDelete, p+name, err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	entry, ok := a.tree[p]
	if !ok {
		return backend.Fail(backend.KindDelete, p, backend.ErrNotFound)
	}

	if !isFolder {
		i := entry.FileIndex(name)
		if i < 0 {
			return backend.Fail(backend.KindDelete, pathkey.FilePath(p, name), backend.ErrNotFound)
		}
		entry.Files = append(entry.Files[:i:i], entry.Files[i+1:]...)
		a.tree[p] = entry
		return nil
	}

	dir := pathkey.Join(p, name)
	if !entry.HasFolder(name) {
		return backend.Fail(backend.KindDelete, dir, backend.ErrNotFound)
	}
	folders := make([]string, 0, len(entry.Folders))
	for _, f := range entry.Folders {
		if f != name {
			folders = append(folders, f)
		}
	}
	entry.Folders = folders
	a.tree[p] = entry

	removed := 0
	for key := range a.tree {
		if pathkey.IsUnder(key, dir) {
			delete(a.tree, key)
			removed++
		}
	}
	a.logger.Debug("Deleted demo folder", zap.String("path", dir), zap.Int("entries", removed))
	return nil
}

// Upload reads f into memory and inserts or replaces it by name.
// Progress is simulated in fixed steps.
func (a *Adapter) Upload(ctx context.Context, path string, f backend.File, progress backend.ProgressFunc) (models.FileRecord, error) {
	p := pathkey.Normalize(path)
	fp := pathkey.FilePath(p, f.Name)
	fail := func(err error) (models.FileRecord, error) {
		return models.FileRecord{}, backend.Fail(backend.KindUpload, fp, err)
	}

	if err := backend.ValidateName(f.Name); err != nil {
		return fail(err)
	}

	var body []byte
	if f.Body != nil {
		var err error
		if body, err = io.ReadAll(f.Body); err != nil {
			return fail(fmt.Errorf("read %s: %w", f.Name, err))
		}
	}

	for _, step := range ProgressSteps[:len(ProgressSteps)-1] {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}
		progress.Report(step)
		if a.stepDelay > 0 {
			select {
			case <-ctx.Done():
				return fail(ctx.Err())
			case <-time.After(a.stepDelay):
			}
		}
	}

	a.mu.Lock()
	rec, err := a.putLocked(p, f.Name, string(body))
	a.mu.Unlock()
	if err != nil {
		return fail(err)
	}

	progress.Report(100)
	return rec, nil
}

// Download implements backend.Adapter.
func (a *Adapter) Download(ctx context.Context, path, name string) (io.ReadCloser, error) {
	content, err := a.GetContent(ctx, path, name)
	if err != nil {
		if be, ok := backend.AsError(err); ok {
			be.Kind = backend.KindDownload
		}
		return nil, err
	}
	return io.NopCloser(bytes.NewReader([]byte(content))), nil
}

// CreateFolder implements backend.Adapter.
func (a *Adapter) CreateFolder(ctx context.Context, path, name string) error {
	p := pathkey.Normalize(path)
	dir := pathkey.Join(p, name)
	if err := ctx.Err(); err != nil {
		return backend.Fail(backend.KindCreate, dir, err)
	}
	if err := backend.ValidateName(name); err != nil {
		return backend.Fail(backend.KindCreate, dir, err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	entry, ok := a.tree[p]
	if !ok {
		return backend.Fail(backend.KindCreate, p, backend.ErrNotFound)
	}
	if entry.HasFolder(name) || entry.FileIndex(name) >= 0 {
		return backend.Fail(backend.KindCreate, dir, backend.ErrExists)
	}
	entry.Folders = append(entry.Folders, name)
	a.tree[p] = entry
	a.tree[dir] = models.NamespaceEntry{Folders: []string{}, Files: []models.FileRecord{}}
	return nil
}

// Snapshot returns a copy of the whole tree.
func (a *Adapter) Snapshot() models.Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.tree.Clone()
}

func (a *Adapter) putLocked(dir, name, content string) (models.FileRecord, error) {
	entry, ok := a.tree[dir]
	if !ok {
		return models.FileRecord{}, backend.ErrNotFound
	}
	if entry.HasFolder(name) {
		return models.FileRecord{}, fmt.Errorf("%w: %q is a folder", backend.ErrExists, name)
	}

	rec := models.FileRecord{
		Name:         name,
		Type:         models.TypeFor(name),
		Size:         models.DisplaySize(int64(len(content))),
		LastModified: models.Today(a.now()),
	}.WithContent(content)

	if i := entry.FileIndex(name); i >= 0 {
		if t := entry.Files[i].Type; t != "" {
			rec.Type = t
		}
		entry.Files[i] = rec
	} else {
		entry.Files = append(entry.Files, rec)
	}
	a.tree[dir] = entry
	return rec.Clone(), nil
}
