// Package config provides configuration management for Casefile.
// It loads settings from environment variables with the CASEFILE_ prefix
// and provides sensible defaults for all configuration options.
//
// The curated case knowledge (device maps, participants, keyword tiers,
// critical dates) lives in a separate YAML case profile; see profile.go.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration settings for the Casefile application.
type Config struct {
	Server   ServerConfig
	Storage  StorageConfig
	Sources  SourcesConfig
	Watcher  WatcherConfig
	Security SecurityConfig
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port int    // Server port (default: 8888)
	Host string // Server host (default: 127.0.0.1)
}

// StorageConfig contains database and storage configuration.
type StorageConfig struct {
	StorageEngine string // Storage engine type: sqlite, postgres (default: sqlite)
	DataPath      string // Path to data directory for the sqlite database (default: ./data)
	PostgresDSN   string // PostgreSQL connection string (used when StorageEngine is postgres)
}

// SourcesConfig locates the evidence source trees and the case profile.
type SourcesConfig struct {
	CellebriteDir string // Directory of line-oriented markdown exports (default: ./evidence/cellebrite-parsed)
	AxiomDir      string // Directory of bulk per-category JSON dumps (default: ./evidence/axiom)
	LegalDir      string // Base directory of legal case file text (default: ./legal)
	ProfilePath   string // Path to the YAML case profile; empty uses the embedded default
}

// WatcherConfig controls background re-indexing.
type WatcherConfig struct {
	Enabled      bool          // Watch source trees for changes (default: true)
	PollInterval time.Duration // Fallback poll interval (default: 30s)
}

// SecurityConfig contains security and authentication settings.
type SecurityConfig struct {
	SecurityMode string // Security mode: development, production (default: development)
	APIToken     string // API authentication token (required in production mode)
}

// LoadConfig loads configuration from environment variables with sensible
// defaults. All environment variables use the CASEFILE_ prefix.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: getEnvInt("CASEFILE_PORT", 8888),
			Host: getEnv("CASEFILE_HOST", "127.0.0.1"),
		},
		Storage: StorageConfig{
			StorageEngine: getEnv("CASEFILE_STORAGE_ENGINE", "sqlite"),
			DataPath:      getEnv("CASEFILE_DATA_PATH", "./data"),
			PostgresDSN:   getEnv("CASEFILE_POSTGRES_DSN", ""),
		},
		Sources: SourcesConfig{
			CellebriteDir: getEnv("CASEFILE_CELLEBRITE_DIR", "./evidence/cellebrite-parsed"),
			AxiomDir:      getEnv("CASEFILE_AXIOM_DIR", "./evidence/axiom"),
			LegalDir:      getEnv("CASEFILE_LEGAL_DIR", "./legal"),
			ProfilePath:   getEnv("CASEFILE_PROFILE", ""),
		},
		Watcher: WatcherConfig{
			Enabled:      getEnvBool("CASEFILE_WATCH", true),
			PollInterval: getEnvDuration("CASEFILE_POLL_INTERVAL", 30*time.Second),
		},
		Security: SecurityConfig{
			SecurityMode: getEnv("CASEFILE_SECURITY_MODE", "development"),
			APIToken:     getEnv("CASEFILE_API_TOKEN", ""),
		},
	}
	return cfg, nil
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default value.
// If the environment variable exists but cannot be parsed as an integer,
// it returns the default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a default value.
// It recognizes "true", "1", "yes" as true and "false", "0", "no" as false (case-insensitive).
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch value {
		case "true", "1", "yes", "True", "TRUE", "Yes", "YES":
			return true
		case "false", "0", "no", "False", "FALSE", "No", "NO":
			return false
		}
	}
	return defaultValue
}

// getEnvDuration retrieves a duration environment variable (e.g. "30s", "5m")
// or returns a default value.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
