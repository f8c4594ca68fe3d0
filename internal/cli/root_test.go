package cli

import (
	"testing"

	"github.com/coldvault/vaultup/internal/config"
)

func TestPersistentPreRunValidatesConfig(t *testing.T) {
	t.Setenv(config.EnvPartSizeMB, "9999")

	cmd := NewRootCmd()
	if err := cmd.PersistentPreRunE(cmd, nil); err == nil {
		t.Error("startup accepted an out-of-range part size from the environment")
	}

	t.Setenv(config.EnvPartSizeMB, "64")
	if err := cmd.PersistentPreRunE(cmd, nil); err != nil {
		t.Errorf("startup rejected a valid part size: %v", err)
	}
	if cfg.PartSizeMB != 64 {
		t.Errorf("PartSizeMB = %d, want 64", cfg.PartSizeMB)
	}
}
