package demo

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fruitsalade/explorer/pkg/models"
	"github.com/fruitsalade/explorer/pkg/pathkey"
)

//go:embed default.json
var defaultSnapshot []byte

// maxSnapshotSize bounds a remotely fetched seed document.
const maxSnapshotSize = 32 << 20

// Default returns the embedded fallback snapshot. It is identical on
// every call.
func Default() models.Snapshot {
	s, err := Decode(bytes.NewReader(defaultSnapshot))
	if err != nil {
		panic(fmt.Sprintf("demo: embedded snapshot: %v", err))
	}
	return s
}

// Load reads a snapshot from source, a file path or an http(s) URL. Any
// failure is logged at WARN and the embedded default is returned instead,
// so Load never fails. An empty source selects the default without a
// warning.
func Load(ctx context.Context, source string, logger *zap.Logger) models.Snapshot {
	if logger == nil {
		logger = zap.NewNop()
	}
	if source == "" {
		logger.Info("Using embedded demo snapshot")
		return Default()
	}

	var (
		snap models.Snapshot
		err  error
	)
	if isURL(source) {
		snap, err = LoadURL(ctx, source)
	} else {
		snap, err = LoadFile(source)
	}
	if err != nil {
		logger.Warn("Demo snapshot unavailable, using embedded default",
			zap.String("source", source),
			zap.Error(err))
		return Default()
	}

	logger.Info("Loaded demo snapshot",
		zap.String("source", source),
		zap.Int("entries", len(snap)))
	return snap
}

// LoadFile reads and validates a snapshot file.
func LoadFile(path string) (models.Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// LoadURL fetches and validates a snapshot over HTTP.
func LoadURL(ctx context.Context, url string) (models.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch snapshot: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch snapshot: status %d", resp.StatusCode)
	}
	return Decode(io.LimitReader(resp.Body, maxSnapshotSize))
}

// Decode parses a snapshot document and normalizes it: keys become
// normalized paths, nil lists become empty, every listed folder gets an
// entry, and files without content get an empty one.
func Decode(r io.Reader) (models.Snapshot, error) {
	var raw models.Snapshot
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return normalize(raw)
}

// Encode writes s as an indented snapshot document.
func Encode(w io.Writer, s models.Snapshot) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

func normalize(raw models.Snapshot) (models.Snapshot, error) {
	out := make(models.Snapshot, len(raw))
	for key, entry := range raw {
		p := pathkey.Normalize(key)
		if _, dup := out[p]; dup {
			return nil, fmt.Errorf("decode snapshot: duplicate entry for %s", p)
		}
		clean := models.NamespaceEntry{
			Folders: make([]string, 0, len(entry.Folders)),
			Files:   make([]models.FileRecord, 0, len(entry.Files)),
		}
		seen := make(map[string]bool, len(entry.Folders))
		for _, name := range entry.Folders {
			name = strings.Trim(name, "/")
			if name == "" || seen[name] {
				continue
			}
			seen[name] = true
			clean.Folders = append(clean.Folders, name)
		}
		for _, f := range entry.Files {
			if f.Name == "" || clean.FileIndex(f.Name) >= 0 {
				continue
			}
			if f.Type == "" {
				f.Type = models.TypeFor(f.Name)
			}
			if !f.HasContent() {
				f = f.WithContent("")
			}
			clean.Files = append(clean.Files, f)
		}
		out[p] = clean
	}

	if _, ok := out[pathkey.Root]; !ok {
		return nil, fmt.Errorf("decode snapshot: missing root entry")
	}

	// Listed folders must have an entry.
	var missing []string
	for p, entry := range out {
		for _, name := range entry.Folders {
			if child := pathkey.Join(p, name); !hasKey(out, child) {
				missing = append(missing, child)
			}
		}
	}
	for _, p := range missing {
		out[p] = models.NamespaceEntry{Folders: []string{}, Files: []models.FileRecord{}}
	}
	return out, nil
}

func hasKey(s models.Snapshot, p string) bool {
	_, ok := s[p]
	return ok
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
