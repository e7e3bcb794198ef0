// Command casefile-web indexes the evidence sources and serves the query API.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/scrypster/casefile/internal/config"
	"github.com/scrypster/casefile/internal/index"
	"github.com/scrypster/casefile/internal/legal"
	"github.com/scrypster/casefile/internal/notify"
	"github.com/scrypster/casefile/internal/server"
	"github.com/scrypster/casefile/internal/storage"
	"github.com/scrypster/casefile/internal/storage/postgres"
	"github.com/scrypster/casefile/internal/storage/sqlite"
)

func main() {
	profilePath := flag.String("profile", "", "Path to the YAML case profile (overrides CASEFILE_PROFILE)")
	flag.Parse()

	log := logrus.WithField("component", "main")

	cfg, err := config.LoadConfig()
	if err != nil {
		log.WithError(err).Fatal("failed to load config")
	}
	if *profilePath != "" {
		cfg.Sources.ProfilePath = *profilePath
	}

	profile, err := config.LoadProfile(cfg.Sources.ProfilePath)
	if err != nil {
		log.WithError(err).Fatal("failed to load case profile")
	}

	store, err := openStore(cfg)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize storage")
	}
	defer store.Close()

	// Legal corpus is optional; the index runs without it.
	var legalSrc index.LegalSource
	if cfg.Sources.LegalDir != "" {
		scanner, err := legal.NewScanner(cfg.Sources.LegalDir, profile.Legal)
		if err != nil {
			log.WithError(err).Warn("legal corpus unavailable, continuing without it")
		} else {
			legalSrc = scanner
		}
	}

	ix, err := index.New(cfg.Sources, profile, store, legalSrc)
	if err != nil {
		log.WithError(err).Fatal("failed to assemble indexer")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	start := time.Now()
	if err := ix.FullIndex(ctx); err != nil {
		log.WithError(err).Fatal("initial index failed")
	}
	log.WithField("elapsed", time.Since(start).Round(time.Millisecond)).Info("initial index complete")

	events := notify.NewHub()

	// Source watchers trigger incremental refreshes and broadcast each result.
	var watchers []*notify.Watcher
	if cfg.Watcher.Enabled {
		refresh := func(ctx context.Context) error {
			res, err := ix.Refresh(ctx, false)
			if err != nil {
				return err
			}
			events.Publish(notify.Event{
				Type:           notify.EventRefreshComplete,
				ChangedFiles:   res.ChangedFiles,
				ElapsedSeconds: res.ElapsedSeconds,
			})
			return nil
		}
		for _, dir := range []string{cfg.Sources.CellebriteDir, cfg.Sources.AxiomDir} {
			w := notify.NewWatcher(dir, cfg.Watcher.PollInterval, refresh)
			if err := w.Start(); err != nil {
				log.WithError(err).WithField("dir", dir).Warn("failed to watch source tree")
				continue
			}
			watchers = append(watchers, w)
		}
	}

	addr, _, err := server.Start(ctx, cfg, ix, events)
	if err != nil {
		log.WithError(err).Fatal("failed to start server")
	}
	log.WithField("addr", addr).Info("casefile web running")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info("shutting down gracefully")
	for _, w := range watchers {
		w.Stop()
	}
	cancel()
	time.Sleep(1 * time.Second)
}

// openStore opens the configured record store.
func openStore(cfg *config.Config) (storage.RecordStore, error) {
	switch cfg.Storage.StorageEngine {
	case "postgres":
		return postgres.New(cfg.Storage.PostgresDSN)
	default:
		if err := os.MkdirAll(cfg.Storage.DataPath, 0o755); err != nil {
			return nil, err
		}
		return sqlite.New(filepath.Join(cfg.Storage.DataPath, "casefile.db"))
	}
}
