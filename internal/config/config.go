// Package config holds the tool's runtime configuration: flag defaults
// and their environment overrides. AWS credentials themselves come from
// the SDK's usual chain (env, shared config, instance role) and are not
// handled here.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/coldvault/vaultup/internal/chunk"
	"github.com/coldvault/vaultup/internal/uploader"
)

// Environment variable names recognized by the tool. VAULTUP_REGION wins
// over AWS_REGION so the tool can target a different region than other
// AWS tooling in the same shell.
const (
	EnvRegion      = "VAULTUP_REGION"
	EnvPartSizeMB  = "VAULTUP_PART_SIZE_MB"
	EnvConcurrency = "VAULTUP_THREADS"
)

// DefaultPartSizeMB matches the service sweet spot for mid-sized
// archives: 8 MB parts keep the part count low without large buffers.
const DefaultPartSizeMB = 8

// Config is the resolved runtime configuration.
type Config struct {
	Region      string
	PartSizeMB  int
	Concurrency int
}

// Load resolves the configuration from defaults and environment
// variables. Flags override these values after parsing.
func Load() (*Config, error) {
	cfg := &Config{
		Region:      os.Getenv(EnvRegion),
		PartSizeMB:  DefaultPartSizeMB,
		Concurrency: uploader.DefaultConcurrency(),
	}
	if cfg.Region == "" {
		cfg.Region = os.Getenv("AWS_REGION")
	}

	if v := os.Getenv(EnvPartSizeMB); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", EnvPartSizeMB, v, err)
		}
		cfg.PartSizeMB = n
	}
	if v := os.Getenv(EnvConcurrency); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid %s %q: must be a positive integer", EnvConcurrency, v)
		}
		cfg.Concurrency = n
	}

	return cfg, nil
}

// Validate checks values that must hold before any network call.
func (c *Config) Validate() error {
	if c.PartSizeMB < chunk.MinPartSizeMB || c.PartSizeMB > chunk.MaxPartSizeMB {
		return fmt.Errorf("part size %d MB out of range [%d, %d]",
			c.PartSizeMB, chunk.MinPartSizeMB, chunk.MaxPartSizeMB)
	}
	return nil
}
