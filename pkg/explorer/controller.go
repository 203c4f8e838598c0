// Package explorer is the controller of the object-storage browser. It
// turns user intents (navigate, open, edit, save, close, delete, upload,
// create folder) into adapter calls and keeps the namespace store, the
// window manager and the upload queue consistent with each other.
//
// Every adapter failure is caught here and converted into visible state:
// a banner, or an error on an upload task. The error is also returned so
// non-interactive callers can act on it.
package explorer

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fruitsalade/explorer/pkg/backend"
	"github.com/fruitsalade/explorer/pkg/models"
	"github.com/fruitsalade/explorer/pkg/namespace"
	"github.com/fruitsalade/explorer/pkg/pathkey"
	"github.com/fruitsalade/explorer/pkg/retry"
	"github.com/fruitsalade/explorer/pkg/upload"
	"github.com/fruitsalade/explorer/pkg/window"
)

var (
	ErrDeclined       = errors.New("declined")
	ErrNotEditable    = errors.New("file is not editable")
	ErrUnsavedChanges = errors.New("unsaved changes")
)

// Banner is the inline error shown above the listing.
type Banner struct {
	Kind    backend.Kind
	Path    string
	Message string
	Err     error
}

// Controller is the Explorer controller.
type Controller struct {
	bucket  string
	adapter backend.Adapter
	store   *namespace.Store
	windows *window.Manager
	uploads *upload.Queue
	confirm Confirmer
	logger  *zap.Logger

	retry        retry.Config
	readyTimeout time.Duration
	uploadOpts   []upload.Option

	mu     sync.Mutex
	cwd    string
	banner *Banner
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithConfirmer sets the confirmation surface for destructive actions.
func WithConfirmer(cf Confirmer) Option {
	return func(c *Controller) { c.confirm = cf }
}

// WithRetry applies a retry policy to list and content fetches. Mutations
// are never retried.
func WithRetry(cfg retry.Config) Option {
	return func(c *Controller) { c.retry = cfg }
}

// WithWindowManager supplies the window manager, e.g. one already bound to
// a host.
func WithWindowManager(m *window.Manager) Option {
	return func(c *Controller) { c.windows = m }
}

// WithReadyTimeout makes Open wait up to d for the window host to report
// readiness. Zero disables the wait.
func WithReadyTimeout(d time.Duration) Option {
	return func(c *Controller) { c.readyTimeout = d }
}

// WithUploadOptions passes options to the upload queue.
func WithUploadOptions(opts ...upload.Option) Option {
	return func(c *Controller) { c.uploadOpts = append(c.uploadOpts, opts...) }
}

// New creates a controller browsing bucket through adapter. The adapter
// choice (demo or remote) is the only mode switch.
func New(bucket string, adapter backend.Adapter, opts ...Option) *Controller {
	c := &Controller{
		bucket:  bucket,
		adapter: adapter,
		store:   namespace.New(),
		confirm: NeverConfirm,
		logger:  zap.NewNop(),
		retry:   retry.Off(),
		cwd:     pathkey.Root,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.windows == nil {
		c.windows = window.NewManager(window.WithLogger(c.logger))
	}
	c.uploads = upload.NewQueue(adapter, append([]upload.Option{upload.WithLogger(c.logger)}, c.uploadOpts...)...)
	return c
}

// Store returns the namespace store. Callers must treat it as read-only.
func (c *Controller) Store() *namespace.Store { return c.store }

// Windows returns the window manager; move, resize and focus go to it
// directly.
func (c *Controller) Windows() *window.Manager { return c.windows }

// Uploads returns the upload queue.
func (c *Controller) Uploads() *upload.Queue { return c.uploads }

// Bucket returns the bucket being browsed.
func (c *Controller) Bucket() string { return c.bucket }

// Mode returns the adapter mode.
func (c *Controller) Mode() string { return c.adapter.Mode() }

// Path returns the current path.
func (c *Controller) Path() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cwd
}

// Mount loads the root of the namespace.
func (c *Controller) Mount(ctx context.Context) error {
	c.logger.Info("Mounting explorer",
		zap.String("bucket", c.bucket),
		zap.String("mode", c.adapter.Mode()))
	c.setPath(pathkey.Root)
	return c.load(ctx, pathkey.Root)
}

func (c *Controller) setPath(p string) (prev string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev, c.cwd = c.cwd, p
	return prev
}

// Navigate makes path current and fetches it if it has not been loaded.
// An already loaded path is not fetched again; use Refresh for that.
// Leaving a path whose load is still in flight cancels that load.
func (c *Controller) Navigate(ctx context.Context, path string) error {
	p := pathkey.Normalize(path)
	prev := c.setPath(p)
	if prev != p && c.store.State(prev) == namespace.Loading {
		c.store.Invalidate(prev)
	}

	switch c.store.State(p) {
	case namespace.Loaded, namespace.Loading:
		return nil
	}
	return c.load(ctx, p)
}

// Up navigates to the parent of the current path.
func (c *Controller) Up(ctx context.Context) error {
	return c.Navigate(ctx, pathkey.Parent(c.Path()))
}

// Refresh reloads the current path, superseding any in-flight load.
func (c *Controller) Refresh(ctx context.Context) error {
	c.ClearBanner()
	return c.load(ctx, c.Path())
}

// Breadcrumbs returns the crumb trail of the current path.
func (c *Controller) Breadcrumbs() []pathkey.Crumb {
	return pathkey.Crumbs(c.Path())
}

// maxReloads bounds how often load starts over after local changes
// interrupted it.
const maxReloads = 3

// load fetches p under a fresh request token. A response for a
// superseded token is dropped silently and load returns nil. A load
// interrupted by a local mutation is issued again, since its response was
// read before the change.
func (c *Controller) load(ctx context.Context, p string) error {
	for attempt := 1; ; attempt++ {
		err := c.loadOnce(ctx, p)
		if !errors.Is(err, namespace.ErrInterrupted) {
			return err
		}
		if attempt >= maxReloads || ctx.Err() != nil {
			c.logger.Debug("Gave up reloading after local changes", zap.String("path", p))
			return nil
		}
		c.logger.Debug("Reloading after local change", zap.String("path", p))
	}
}

func (c *Controller) loadOnce(ctx context.Context, p string) error {
	tok, rctx := c.store.BeginContext(ctx, p)
	entries, err := retry.DoWithResult(rctx, c.retry, func() (models.Snapshot, error) {
		return c.adapter.List(rctx, p)
	})

	if err != nil {
		if ferr := c.store.Fail(tok, err); ferr != nil {
			c.logger.Debug("Dropped superseded list failure", zap.String("path", p))
			return droppedOrInterrupted(ferr)
		}
		if isCancel(err) {
			return err
		}
		c.fail(backend.KindList, p, "Could not load "+p, err)
		return err
	}

	if cerr := c.store.Commit(tok, entries); cerr != nil {
		c.logger.Debug("Dropped superseded list response", zap.String("path", p))
		return droppedOrInterrupted(cerr)
	}
	return nil
}

func droppedOrInterrupted(err error) error {
	if errors.Is(err, namespace.ErrInterrupted) {
		return err
	}
	return nil
}

// Banner returns the current banner, if any.
func (c *Controller) Banner() (Banner, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.banner == nil {
		return Banner{}, false
	}
	return *c.banner, true
}

// ClearBanner hides the banner.
func (c *Controller) ClearBanner() {
	c.mu.Lock()
	c.banner = nil
	c.mu.Unlock()
}

func (c *Controller) fail(kind backend.Kind, path, msg string, err error) {
	c.logger.Warn(msg, zap.String("path", path), zap.Error(err))
	c.mu.Lock()
	c.banner = &Banner{Kind: kind, Path: path, Message: msg + ": " + err.Error(), Err: err}
	c.mu.Unlock()
}

func isCancel(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, namespace.ErrStale)
}

// View is a consistent snapshot for rendering.
type View struct {
	Bucket   string
	Mode     string
	Path     string
	Crumbs   []pathkey.Crumb
	Entry    models.NamespaceEntry
	Loaded   bool
	State    namespace.State
	Sessions []window.Session // bottom to top
	Uploads  []upload.Task
	Banner   *Banner
}

// View returns the current render state.
func (c *Controller) View() View {
	p := c.Path()
	entry, ok := c.store.Get(p)
	v := View{
		Bucket:   c.bucket,
		Mode:     c.adapter.Mode(),
		Path:     p,
		Crumbs:   pathkey.Crumbs(p),
		Entry:    entry,
		Loaded:   ok,
		State:    c.store.State(p),
		Sessions: c.windows.Stack(),
		Uploads:  c.uploads.Tasks(),
	}
	if b, ok := c.Banner(); ok {
		v.Banner = &b
	}
	return v
}
