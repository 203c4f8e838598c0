// seed-tool populates a namespace from a local directory.
//
// With -out it writes a snapshot document for demo mode. Otherwise it
// seeds the reference server's metadata store and object storage, using
// the same environment configuration as the server, and can run once as
// an init container.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/fruitsalade/explorer/internal/config"
	"github.com/fruitsalade/explorer/internal/logging"
	"github.com/fruitsalade/explorer/internal/metadata"
	"github.com/fruitsalade/explorer/internal/storage"
	"github.com/fruitsalade/explorer/pkg/backend/demo"
	"github.com/fruitsalade/explorer/pkg/retry"
)

func main() {
	dataDir := flag.String("data", "/testdata", "Directory with seed files")
	out := flag.String("out", "", "Write a demo snapshot to this file (- for stdout) instead of seeding the server store")
	maxContent := flag.Int64("max-content", 1<<20, "Largest file, in bytes, whose content goes into a snapshot")
	hidden := flag.Bool("hidden", false, "Include dot files and directories")
	verbose := flag.Bool("v", false, "Log every seeded entry")
	flag.Parse()

	// Initialize logging
	if err := logging.Init(logging.Config{Level: "info", Format: "console", OutputPath: "stderr"}); err != nil {
		panic("logging init: " + err.Error())
	}
	defer logging.Sync()
	if *verbose {
		logging.SetLevel("debug")
	}

	logging.Info("Explorer seed-tool starting...", zap.String("dir", *dataDir))

	entries, err := collect(*dataDir, *hidden)
	if err != nil {
		logging.Fatal("walk failed", zap.Error(err))
	}

	if *out != "" {
		if err := writeSnapshot(*out, entries, *maxContent); err != nil {
			logging.Fatal("snapshot failed", zap.Error(err))
		}
		logging.Info("snapshot written", zap.String("out", *out), zap.Int("entries", len(entries)))
		return
	}

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("config error", zap.Error(err))
	}

	ctx := context.Background()

	metaStore, err := metadata.Open(cfg.DatabaseDriver, cfg.DatabaseURL, logging.L())
	if err != nil {
		logging.Fatal("database open failed", zap.Error(err))
	}
	defer metaStore.Close()

	// The database may still be starting when run next to it.
	attempt := 0
	err = retry.Do(ctx, migrateRetry, func() error {
		attempt++
		if err := metaStore.Migrate(ctx); err != nil {
			logging.Info("waiting for database",
				zap.Int("attempt", attempt),
				zap.Error(err))
			return retry.Retryable(err)
		}
		return nil
	})
	if err != nil {
		logging.Fatal("migration failed", zap.Error(err))
	}

	store, err := storage.NewBackendFromConfig(ctx, cfg, logging.L())
	if err != nil {
		logging.Fatal("storage init failed", zap.Error(err))
	}
	defer store.Close()

	logging.Info("seeding files...", zap.String("storage", store.Type()))
	folders, files, err := seedStore(ctx, metaStore, store, entries)
	if err != nil {
		logging.Fatal("seeding failed", zap.Error(err))
	}
	logging.S().Infof("seeding complete: %d folders, %d files from %s", folders, files, *dataDir)
}

var migrateRetry = retry.Config{
	MaxAttempts: 15,
	InitialWait: 2 * time.Second,
	MaxWait:     2 * time.Second,
	Multiplier:  1,
}

func writeSnapshot(path string, entries []seedEntry, maxContent int64) error {
	snap, err := buildSnapshot(entries, maxContent)
	if err != nil {
		return err
	}
	if path == "-" {
		return demo.Encode(os.Stdout, snap)
	}

	f, err := os.CreateTemp(filepath.Dir(path), ".snapshot-*.tmp")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if err := demo.Encode(f, snap); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
