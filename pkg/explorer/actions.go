package explorer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/fruitsalade/explorer/pkg/backend"
	"github.com/fruitsalade/explorer/pkg/models"
	"github.com/fruitsalade/explorer/pkg/pathkey"
	"github.com/fruitsalade/explorer/pkg/retry"
	"github.com/fruitsalade/explorer/pkg/upload"
	"github.com/fruitsalade/explorer/pkg/window"
)

// ResultKind says what a click or open led to.
type ResultKind int

const (
	ResultFolder   ResultKind = iota // navigated into a folder
	ResultSession                    // file opened in an editor window
	ResultDownload                   // file is not editable; offer a download
)

// Result is the outcome of Click or Open.
type Result struct {
	Kind    ResultKind
	Path    string            // folder navigated to, or directory of the file
	File    models.FileRecord // for ResultDownload
	Session window.Session    // for ResultSession
	Created bool              // a new session was made
}

// Click handles a click on a child of the current path: folders are
// entered, files are opened.
func (c *Controller) Click(ctx context.Context, name string) (Result, error) {
	cwd := c.Path()
	if entry, ok := c.store.Get(cwd); ok && entry.HasFolder(name) {
		p := pathkey.Join(cwd, name)
		return Result{Kind: ResultFolder, Path: p}, c.Navigate(ctx, p)
	}
	return c.Open(ctx, name)
}

// Open opens a file of the current path. Editable files get a window,
// fetching content first if it is not known yet; an already open file is
// brought to front instead. Other files yield a download intent.
func (c *Controller) Open(ctx context.Context, name string) (Result, error) {
	cwd := c.Path()
	rec, ok := c.store.File(cwd, name)
	if !ok {
		err := backend.Fail(backend.KindContent, pathkey.FilePath(cwd, name), backend.ErrNotFound)
		c.fail(backend.KindContent, err.Path, "Could not open "+name, err)
		return Result{}, err
	}
	if !IsEditable(rec) {
		return Result{Kind: ResultDownload, Path: cwd, File: rec.WithoutContent()}, nil
	}

	if c.readyTimeout > 0 {
		if err := c.windows.WaitReady(ctx, c.readyTimeout); err != nil {
			c.fail(backend.KindContent, pathkey.FilePath(cwd, name), "Editor unavailable", err)
			return Result{}, err
		}
	}

	if sess, ok := c.windows.Find(cwd, name); ok {
		sess, err := c.windows.BringToFront(sess.ID)
		return Result{Kind: ResultSession, Path: cwd, Session: sess}, err
	}

	if !rec.HasContent() {
		content, err := retry.DoWithResult(ctx, c.retry, func() (string, error) {
			return c.adapter.GetContent(ctx, cwd, name)
		})
		if err != nil {
			if !isCancel(err) {
				c.fail(backend.KindContent, pathkey.FilePath(cwd, name), "Could not open "+name, err)
			}
			return Result{}, err
		}
		rec = rec.WithContent(content)
		c.store.UpdateFile(cwd, name, func(f *models.FileRecord) { *f = f.WithContent(content) })
	}

	sess, created := c.windows.Open(cwd, rec)
	return Result{Kind: ResultSession, Path: cwd, Session: sess, Created: created}, nil
}

// Download opens the raw content of a file of the current path.
func (c *Controller) Download(ctx context.Context, name string) (io.ReadCloser, models.FileRecord, error) {
	cwd := c.Path()
	rec, _ := c.store.File(cwd, name)
	rc, err := c.adapter.Download(ctx, cwd, name)
	if err != nil {
		if !isCancel(err) {
			c.fail(backend.KindDownload, pathkey.FilePath(cwd, name), "Could not download "+name, err)
		}
		return nil, rec, err
	}
	return rc, rec.WithoutContent(), nil
}

// Edit replaces a session's local content. The namespace store is not
// touched until Save.
func (c *Controller) Edit(id, content string) (window.Session, error) {
	return c.windows.UpdateContent(id, content)
}

// Save writes a session's content through the adapter, then updates the
// store's record and the session's own metadata from the result. On
// failure the session keeps its unsaved content.
func (c *Controller) Save(ctx context.Context, id string) (window.Session, error) {
	sess, err := c.windows.Get(id)
	if err != nil {
		return window.Session{}, err
	}
	content := sess.File.Text()
	key := sess.Key()

	rec, err := c.adapter.Save(ctx, sess.Path, sess.File.Name, content)
	if err != nil {
		c.fail(backend.KindSave, key, "Could not save "+sess.File.Name, err)
		return sess, err
	}

	stored := rec.WithContent(content)
	if !c.store.UpdateFile(sess.Path, sess.File.Name, func(f *models.FileRecord) {
		f.LastModified = stored.LastModified
		if stored.Size != "" {
			f.Size = stored.Size
		}
		*f = f.WithContent(content)
	}) {
		c.store.PutFile(sess.Path, stored)
	}

	sess, err = c.windows.MarkSaved(id, content, rec)
	if err != nil {
		// Closed while the save was in flight; the content is persisted.
		return window.Session{}, nil
	}
	c.logger.Info("Saved file", zap.String("path", key))
	return sess, nil
}

// Close closes a session. A session with unsaved edits is only closed if
// the confirmer accepts; otherwise ErrUnsavedChanges is returned and the
// window stays open.
func (c *Controller) Close(ctx context.Context, id string) error {
	sess, err := c.windows.Get(id)
	if err != nil {
		return err
	}
	if sess.Dirty() {
		ok, err := c.confirm.Confirm(ctx, Prompt{
			Action:  "close",
			Target:  sess.Key(),
			Message: fmt.Sprintf("Discard unsaved changes to %s?", sess.File.Name),
		})
		if err != nil {
			return err
		}
		if !ok {
			return ErrUnsavedChanges
		}
	}
	return c.windows.Close(id)
}

// Delete removes a file or folder of the current path after
// confirmation. Deleting a folder drops its whole subtree from the store
// and closes every session opened below it.
func (c *Controller) Delete(ctx context.Context, name string, isFolder bool) error {
	cwd := c.Path()
	target := pathkey.FilePath(cwd, name)
	what := "file"
	if isFolder {
		target = pathkey.Join(cwd, name)
		what = "folder"
	}

	ok, err := c.confirm.Confirm(ctx, Prompt{
		Action:  "delete",
		Target:  target,
		Message: fmt.Sprintf("Delete %s %s?", what, target),
	})
	if err != nil {
		return err
	}
	if !ok {
		return ErrDeclined
	}

	if err := c.adapter.Delete(ctx, cwd, name, isFolder); err != nil {
		c.fail(backend.KindDelete, target, "Could not delete "+name, err)
		return err
	}

	if isFolder {
		removed := c.store.RemoveFolder(cwd, name)
		closed := c.windows.CloseUnder(target)
		c.logger.Info("Deleted folder",
			zap.String("path", target),
			zap.Int("entries", len(removed)),
			zap.Int("sessions_closed", len(closed)))
		return nil
	}

	c.store.RemoveFile(cwd, name)
	c.windows.CloseFile(cwd, name)
	c.logger.Info("Deleted file", zap.String("path", target))
	return nil
}

// CreateFolder creates a folder in the current path. The name must be
// non-empty and must not clash with a folder or file already listed.
func (c *Controller) CreateFolder(ctx context.Context, name string) error {
	cwd := c.Path()
	name = strings.TrimSpace(name)
	target := pathkey.Join(cwd, name)

	if err := backend.ValidateName(name); err != nil {
		err = backend.Fail(backend.KindCreate, target, err)
		c.fail(backend.KindCreate, target, "Invalid folder name", err)
		return err
	}
	if entry, ok := c.store.Get(cwd); ok && (entry.HasFolder(name) || entry.FileIndex(name) >= 0) {
		err := backend.Fail(backend.KindCreate, target, backend.ErrExists)
		c.fail(backend.KindCreate, target, "A folder or file named "+name+" already exists", err)
		return err
	}

	if err := c.adapter.CreateFolder(ctx, cwd, name); err != nil {
		c.fail(backend.KindCreate, target, "Could not create "+name, err)
		return err
	}
	c.store.AddFolder(cwd, name)
	return nil
}

// Upload uploads files into the current path one at a time. Per-file
// failures are reported on the returned tasks, not as an error. After a
// batch with at least one success the destination is listed again.
func (c *Controller) Upload(ctx context.Context, files []backend.File) ([]upload.Task, error) {
	dest := c.Path()
	tasks, err := c.uploads.Run(ctx, dest, files)
	if err != nil {
		c.fail(backend.KindUpload, dest, "Upload not started", err)
		return nil, err
	}

	succeeded := 0
	for _, t := range tasks {
		if t.Status == upload.Completed && t.Record != nil {
			succeeded++
			c.store.PutFile(dest, *t.Record)
		}
	}
	if succeeded == 0 {
		return tasks, nil
	}
	if err := c.load(ctx, dest); err != nil && !errors.Is(err, context.Canceled) {
		return tasks, err
	}
	return tasks, nil
}
