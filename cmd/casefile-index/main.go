// Command casefile-index runs one full indexing pass and exits. It is meant
// for cron jobs and for rebuilding the store after a profile change.
package main

import (
	"context"
	"flag"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/scrypster/casefile/internal/config"
	"github.com/scrypster/casefile/internal/index"
	"github.com/scrypster/casefile/internal/legal"
	"github.com/scrypster/casefile/internal/storage"
	"github.com/scrypster/casefile/internal/storage/postgres"
	"github.com/scrypster/casefile/internal/storage/sqlite"
)

func main() {
	profilePath := flag.String("profile", "", "Path to the YAML case profile (overrides CASEFILE_PROFILE)")
	timeout := flag.Duration("timeout", 30*time.Minute, "Abort the pass after this long")
	flag.Parse()

	log := logrus.WithField("component", "index")

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

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	res, err := ix.Refresh(ctx, true)
	if err != nil {
		log.WithError(err).Fatal("index pass failed")
	}
	log.WithFields(logrus.Fields{
		"changed_files": res.ChangedFiles,
		"elapsed_sec":   res.ElapsedSeconds,
	}).Info("index pass complete")
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
