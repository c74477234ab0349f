package config

import (
	"fmt"
	"math/bits"
	"strings"

	"github.com/rbright/parley/internal/flavor"
	"github.com/rbright/parley/internal/wsconn"
)

// maxBlockSize caps one capture block at roughly four seconds of audio.
const maxBlockSize = 65536

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if strings.TrimSpace(cfg.Server.URL) == "" {
		return nil, fmt.Errorf("server.url must not be empty")
	}
	if _, err := wsconn.NormalizeURL(cfg.Server.URL); err != nil {
		return nil, fmt.Errorf("server.url: %w", err)
	}
	if cfg.Server.HandshakeTimeoutMS < 0 {
		return nil, fmt.Errorf("server.handshake_timeout_ms must be >= 0")
	}
	if cfg.Server.ConfigureTimeoutMS < 0 {
		return nil, fmt.Errorf("server.configure_timeout_ms must be >= 0")
	}
	if cfg.Server.ConfigureTimeoutMS == 0 {
		warnings = append(warnings, Warning{Message: "server.configure_timeout_ms=0 waits for the ready frame without limit"})
	}

	name := strings.TrimSpace(cfg.Session.Flavor)
	if name == "" {
		return nil, fmt.Errorf("session.flavor must not be empty")
	}
	if !flavor.Known(name) {
		return nil, fmt.Errorf("session.flavor must be one of: %s", strings.Join(flavor.Names(), ", "))
	}

	if cfg.Audio.BlockSize <= 0 {
		return nil, fmt.Errorf("audio.block_size must be > 0")
	}
	if cfg.Audio.BlockSize > maxBlockSize {
		return nil, fmt.Errorf("audio.block_size must be <= %d", maxBlockSize)
	}
	if bits.OnesCount(uint(cfg.Audio.BlockSize)) != 1 {
		warnings = append(warnings, Warning{Message: fmt.Sprintf("audio.block_size=%d is not a power of two", cfg.Audio.BlockSize)})
	}

	return warnings, nil
}
