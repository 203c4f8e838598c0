package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/charlievieth/fastwalk"
	"go.uber.org/zap"

	"github.com/fruitsalade/explorer/internal/logging"
	"github.com/fruitsalade/explorer/internal/metadata"
	"github.com/fruitsalade/explorer/internal/storage"
	"github.com/fruitsalade/explorer/pkg/models"
	"github.com/fruitsalade/explorer/pkg/pathkey"
)

// seedEntry is one local file or directory mapped into the namespace.
type seedEntry struct {
	virtualPath string // slash path, no trailing slash
	localPath   string
	isDir       bool
	size        int64
	modTime     time.Time
}

// collect walks root and returns its entries sorted by virtual path, so
// every directory precedes its contents. Dot files are skipped unless
// hidden is set; anything that is not a regular file or directory is
// skipped too.
func collect(root string, hidden bool) ([]seedEntry, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	var (
		mu      sync.Mutex
		entries []seedEntry
	)
	conf := &fastwalk.Config{Follow: false}
	err = fastwalk.Walk(conf, root, func(fullPath string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if fullPath == root {
			return nil
		}
		if !hidden && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return fastwalk.SkipDir
			}
			return nil
		}

		info, err := fastwalk.StatDirEntry(fullPath, d)
		if err != nil {
			return err
		}
		if !info.IsDir() && !info.Mode().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, fullPath)
		if err != nil {
			return err
		}
		e := seedEntry{
			virtualPath: "/" + filepath.ToSlash(rel),
			localPath:   fullPath,
			isDir:       info.IsDir(),
			size:        info.Size(),
			modTime:     info.ModTime(),
		}
		mu.Lock()
		entries = append(entries, e)
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].virtualPath < entries[j].virtualPath
	})
	return entries, nil
}

// buildSnapshot turns entries into a demo snapshot. Files larger than
// maxContent bytes, or that are not valid UTF-8, are listed with empty
// content and their real size.
func buildSnapshot(entries []seedEntry, maxContent int64) (models.Snapshot, error) {
	snap := models.Snapshot{
		pathkey.Root: {Folders: []string{}, Files: []models.FileRecord{}},
	}

	for _, e := range entries {
		dir, name := pathkey.Split(e.virtualPath)
		parent, ok := snap[dir]
		if !ok {
			return nil, fmt.Errorf("%s: parent %s not seen", e.virtualPath, dir)
		}

		if e.isDir {
			parent.Folders = append(parent.Folders, name)
			snap[dir] = parent
			snap[pathkey.Join(dir, name)] = models.NamespaceEntry{Folders: []string{}, Files: []models.FileRecord{}}
			continue
		}

		content := ""
		if e.size <= maxContent {
			data, err := os.ReadFile(e.localPath)
			if err != nil {
				return nil, fmt.Errorf("read %s: %w", e.localPath, err)
			}
			if utf8.Valid(data) {
				content = string(data)
			}
		}
		rec := models.FileRecord{
			Name:         name,
			Type:         models.TypeFor(name),
			Size:         models.DisplaySize(e.size),
			LastModified: models.Today(e.modTime),
		}.WithContent(content)
		parent.Files = append(parent.Files, rec)
		snap[dir] = parent
	}
	return snap, nil
}

// seedStore uploads entries into object storage and records them in the
// metadata store. Existing folders are reused and existing files are
// overwritten, so seeding twice is harmless.
func seedStore(ctx context.Context, meta *metadata.Store, store storage.Backend, entries []seedEntry) (folders, files int, err error) {
	for _, e := range entries {
		dir, name := pathkey.Split(e.virtualPath)

		if e.isDir {
			if _, err := meta.CreateFolder(ctx, dir, name); err != nil && !errors.Is(err, metadata.ErrExists) {
				return folders, files, fmt.Errorf("create folder %s: %w", e.virtualPath, err)
			}
			folders++
			logging.Debug("  DIR", zap.String("path", e.virtualPath))
			continue
		}

		if err := seedFile(ctx, meta, store, e, dir, name); err != nil {
			return folders, files, err
		}
		files++
		logging.Debug("  FILE", zap.String("path", e.virtualPath), zap.Int64("size", e.size))
	}
	return folders, files, nil
}

func seedFile(ctx context.Context, meta *metadata.Store, store storage.Backend, e seedEntry, dir, name string) error {
	f, err := os.Open(e.localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", e.localPath, err)
	}
	defer f.Close()

	if err := store.PutObject(ctx, storage.Key(e.virtualPath), f, e.size); err != nil {
		return fmt.Errorf("upload %s: %w", e.virtualPath, err)
	}
	if _, _, err := meta.PutFile(ctx, dir, name, e.size); err != nil {
		return fmt.Errorf("record %s: %w", e.virtualPath, err)
	}
	return nil
}
