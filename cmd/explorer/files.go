package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fruitsalade/explorer/pkg/backend/demo"
)

// writeFileAtomic writes r to path via a temp file in the same directory
// and a rename, so readers never see a partial file.
func writeFileAtomic(path string, r io.Reader) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".explorer-*.tmp")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	n, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return n, fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return n, fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return n, fmt.Errorf("rename temp file: %w", err)
	}
	return n, nil
}

// writeSnapshot saves the demo tree to path.
func writeSnapshot(path string, a *demo.Adapter) error {
	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(demo.Encode(pw, a.Snapshot()))
	}()
	_, err := writeFileAtomic(path, pr)
	pr.Close()
	return err
}
