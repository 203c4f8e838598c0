package storage

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"time"

	"github.com/fruitsalade/explorer/internal/metrics"
)

type instrumented struct {
	Backend
}

// Instrument records duration and outcome of every operation of b.
func Instrument(b Backend) Backend {
	if _, ok := b.(instrumented); ok {
		return b
	}
	return instrumented{b}
}

func (i instrumented) record(op string, start time.Time, err error) {
	// A missing object is an answer, not a backend failure.
	ok := err == nil || errors.Is(err, fs.ErrNotExist)
	metrics.RecordStorageOperation(i.Type(), op, time.Since(start), ok)
}

func (i instrumented) GetObject(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	start := time.Now()
	rc, n, err := i.Backend.GetObject(ctx, key)
	i.record("get", start, err)
	return rc, n, err
}

func (i instrumented) PutObject(ctx context.Context, key string, body io.Reader, size int64) error {
	start := time.Now()
	err := i.Backend.PutObject(ctx, key, body, size)
	i.record("put", start, err)
	return err
}

func (i instrumented) DeleteObject(ctx context.Context, key string) error {
	start := time.Now()
	err := i.Backend.DeleteObject(ctx, key)
	i.record("delete", start, err)
	return err
}

func (i instrumented) ObjectExists(ctx context.Context, key string) (bool, error) {
	start := time.Now()
	ok, err := i.Backend.ObjectExists(ctx, key)
	i.record("head", start, err)
	return ok, err
}
