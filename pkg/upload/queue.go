// Package upload runs batches of file uploads one at a time and tracks
// per-file progress.
//
// Files are processed strictly in order: file N+1 starts only after file
// N has completed or failed. A failure is recorded on its task and the
// batch moves on.
package upload

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/fruitsalade/explorer/pkg/backend"
	"github.com/fruitsalade/explorer/pkg/models"
	"github.com/fruitsalade/explorer/pkg/pathkey"
)

// AutoDismissDelay is how long a settled batch stays visible.
const AutoDismissDelay = 3 * time.Second

// ErrBusy is returned when Run is called while a batch is in progress.
var ErrBusy = errors.New("upload batch already running")

// Status is the state of one upload task.
type Status string

const (
	Queued    Status = "queued"
	Uploading Status = "uploading"
	Completed Status = "completed"
	Failed    Status = "error"
)

// Terminal reports whether s is completed or error.
func (s Status) Terminal() bool {
	return s == Completed || s == Failed
}

// Task is the progress record of one file.
type Task struct {
	ID       string
	FileName string
	Progress int
	Status   Status
	Message  string             // set only when Status is error
	Record   *models.FileRecord // set when completed
}

// Observer receives a copy of all tasks after every change.
type Observer func([]Task)

// Queue is a sequential upload queue over one adapter.
type Queue struct {
	adapter  backend.Adapter
	logger   *zap.Logger
	observer Observer
	now      func() time.Time
	delay    time.Duration

	mu        sync.Mutex
	tasks     []Task
	dest      string
	running   bool
	settledAt time.Time
}

// Option configures a Queue.
type Option func(*Queue)

// WithObserver registers a change observer. It is called synchronously
// from the goroutine running the batch.
func WithObserver(fn Observer) Option {
	return func(q *Queue) { q.observer = fn }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(q *Queue) { q.logger = l }
}

// WithDismissDelay overrides AutoDismissDelay.
func WithDismissDelay(d time.Duration) Option {
	return func(q *Queue) { q.delay = d }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// NewQueue creates an upload queue.
func NewQueue(adapter backend.Adapter, opts ...Option) *Queue {
	q := &Queue{
		adapter: adapter,
		logger:  zap.NewNop(),
		now:     time.Now,
		delay:   AutoDismissDelay,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Run uploads files into dest one after another and returns the settled
// tasks. If ctx is cancelled, the current and all remaining tasks end in
// error with the message "cancelled".
func (q *Queue) Run(ctx context.Context, dest string, files []backend.File) ([]Task, error) {
	dest = pathkey.Normalize(dest)

	q.mu.Lock()
	if q.running {
		q.mu.Unlock()
		return nil, ErrBusy
	}
	q.running = true
	q.dest = dest
	q.settledAt = time.Time{}
	q.tasks = make([]Task, len(files))
	for i, f := range files {
		q.tasks[i] = Task{ID: ulid.Make().String(), FileName: f.Name, Status: Queued}
	}
	q.mu.Unlock()
	q.notify()

	for i, f := range files {
		if ctx.Err() != nil {
			q.finish(i, nil, ctx.Err())
			continue
		}

		q.update(i, func(t *Task) {
			t.Status = Uploading
			t.Progress = 0
		})

		rec, err := q.adapter.Upload(ctx, dest, f, func(pct int) {
			q.update(i, func(t *Task) {
				// 100 is set on completion only.
				if pct > t.Progress && pct < 100 {
					t.Progress = pct
				}
			})
		})
		q.finish(i, &rec, err)

		if err != nil {
			q.logger.Warn("Upload failed",
				zap.String("file", f.Name),
				zap.String("dest", dest),
				zap.Error(err))
		} else {
			q.logger.Info("Uploaded file",
				zap.String("file", f.Name),
				zap.String("dest", dest))
		}
	}

	q.mu.Lock()
	q.running = false
	q.settledAt = q.now()
	out := q.copyLocked()
	q.mu.Unlock()
	q.notify()
	return out, nil
}

func (q *Queue) finish(i int, rec *models.FileRecord, err error) {
	q.update(i, func(t *Task) {
		if err != nil {
			t.Status = Failed
			t.Message = message(err)
			return
		}
		t.Status = Completed
		t.Progress = 100
		r := rec.WithoutContent()
		t.Record = &r
	})
}

func message(err error) string {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "cancelled"
	}
	return err.Error()
}

func (q *Queue) update(i int, fn func(*Task)) {
	q.mu.Lock()
	fn(&q.tasks[i])
	q.mu.Unlock()
	q.notify()
}

func (q *Queue) notify() {
	if q.observer == nil {
		return
	}
	q.observer(q.Tasks())
}

func (q *Queue) copyLocked() []Task {
	out := make([]Task, len(q.tasks))
	copy(out, q.tasks)
	return out
}

// Tasks returns a copy of the current batch.
func (q *Queue) Tasks() []Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.copyLocked()
}

// Dest returns the destination of the current batch.
func (q *Queue) Dest() string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dest
}

// Settled reports whether a non-empty batch has finished.
func (q *Queue) Settled() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return !q.running && !q.settledAt.IsZero()
}

// Counts returns the number of completed and failed tasks.
func (q *Queue) Counts() (completed, failed int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, t := range q.tasks {
		switch t.Status {
		case Completed:
			completed++
		case Failed:
			failed++
		}
	}
	return completed, failed
}

// DismissAt returns when the settled batch should be hidden.
func (q *Queue) DismissAt() (time.Time, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running || q.settledAt.IsZero() {
		return time.Time{}, false
	}
	return q.settledAt.Add(q.delay), true
}

// Dismiss clears a settled batch. It is a no-op while a batch runs.
func (q *Queue) Dismiss() {
	q.mu.Lock()
	if q.running {
		q.mu.Unlock()
		return
	}
	q.tasks = nil
	q.settledAt = time.Time{}
	q.mu.Unlock()
	q.notify()
}
