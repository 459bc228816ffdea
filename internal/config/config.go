// Package config loads runtime configuration from the environment.
// Variables use the MEDVAULT_ prefix; flags on the CLI override them.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds everything the CLI needs to assemble the vault.
type Config struct {
	// StoreDir is the file-backed secure store location. Empty picks a
	// per-user default under the OS config directory.
	StoreDir string `envconfig:"STORE_DIR"`
	// DatabaseDSN switches the secure store to Postgres when set.
	DatabaseDSN string `envconfig:"DATABASE_DSN"`
	// EnrichURL is the hosted analysis endpoint. Empty disables it.
	EnrichURL     string        `envconfig:"ENRICH_URL"`
	EnrichTimeout time.Duration `envconfig:"ENRICH_TIMEOUT" default:"5s"`
	// SessionKey signs session tokens. Empty derives a weak key from the
	// hostname; set it for anything beyond local experimentation.
	SessionKey string        `envconfig:"SESSION_KEY"`
	SessionTTL time.Duration `envconfig:"SESSION_TTL" default:"15m"`
	// LegacyCipher keeps the original XOR blob format readable and
	// writable. New installs use the AEAD codec.
	LegacyCipher bool `envconfig:"LEGACY_CIPHER"`
}

// Load reads configuration from MEDVAULT_* environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("medvault", &cfg); err != nil {
		return nil, err
	}
	if cfg.StoreDir == "" {
		cfg.StoreDir = defaultStoreDir()
	}
	return &cfg, nil
}

func defaultStoreDir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		base = "."
	}
	return filepath.Join(base, "medvault")
}
