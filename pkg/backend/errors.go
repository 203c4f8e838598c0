package backend

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrExists      = errors.New("already exists")
	ErrInvalidName = errors.New("invalid name")
)

// Kind names the adapter operation that failed.
type Kind string

const (
	KindList     Kind = "list"
	KindContent  Kind = "content"
	KindSave     Kind = "save"
	KindDelete   Kind = "delete"
	KindUpload   Kind = "upload"
	KindDownload Kind = "download"
	KindCreate   Kind = "create"
	KindLoad     Kind = "load"
)

// Error is the typed failure returned by every adapter operation.
type Error struct {
	Kind      Kind
	Path      string
	Status    int // HTTP status, 0 when not remote or no response
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", e.Kind, e.Path)
	if e.Status != 0 {
		fmt.Fprintf(&b, ": status %d", e.Status)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Temporary reports whether repeating the operation may succeed.
func (e *Error) Temporary() bool { return e.Retryable }

// Fail builds an *Error for a local (non-HTTP) failure.
func Fail(kind Kind, path string, err error) *Error {
	return &Error{Kind: kind, Path: path, Err: err}
}

// FromStatus builds an *Error from an HTTP status code. 404 and 409 wrap
// ErrNotFound and ErrExists; 5xx and 429 are retryable.
func FromStatus(kind Kind, path string, status int, msg string) *Error {
	var cause error
	switch status {
	case http.StatusNotFound:
		cause = ErrNotFound
	case http.StatusConflict:
		cause = ErrExists
	case http.StatusBadRequest:
		cause = ErrInvalidName
	}
	if msg != "" {
		if cause != nil {
			cause = fmt.Errorf("%w: %s", cause, msg)
		} else {
			cause = errors.New(msg)
		}
	}
	return &Error{
		Kind:      kind,
		Path:      path,
		Status:    status,
		Retryable: status >= 500 || status == http.StatusTooManyRequests,
		Err:       cause,
	}
}

// AsError extracts an *Error from err.
func AsError(err error) (*Error, bool) {
	var be *Error
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}
