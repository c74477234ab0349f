package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// Environment overrides, applied after the file.
const (
	EnvServerURL = "PARLEY_SERVER_URL"
	EnvFlavor    = "PARLEY_FLAVOR"
)

// Loaded is the resolved configuration with its source path and any
// non-fatal warnings.
type Loaded struct {
	Path     string
	Config   Config
	Warnings []Warning
	Exists   bool
}

// Load reads the config file at explicitPath (or the default location),
// applies environment overrides, and validates the result. A missing file
// yields defaults and a warning.
func Load(explicitPath string) (Loaded, error) {
	path, err := ResolvePath(explicitPath)
	if err != nil {
		return Loaded{}, err
	}

	loaded := Loaded{Path: path, Config: Default()}
	content, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		loaded.Warnings = append(loaded.Warnings, Warning{
			Message: fmt.Sprintf("config file %q not found; using defaults", path),
		})
	case err != nil:
		return Loaded{}, fmt.Errorf("read config %q: %w", path, err)
	default:
		cfg, warnings, err := Parse(string(content), loaded.Config)
		if err != nil {
			return Loaded{}, fmt.Errorf("parse config %q: %w", path, err)
		}
		loaded.Config = cfg
		loaded.Warnings = append(loaded.Warnings, warnings...)
		loaded.Exists = true
	}

	if !applyEnv(&loaded.Config) {
		return loaded, nil
	}
	warnings, err := Validate(loaded.Config)
	if err != nil {
		return Loaded{}, fmt.Errorf("environment override: %w", err)
	}
	loaded.Warnings = mergeWarnings(loaded.Warnings, warnings)
	return loaded, nil
}

// applyEnv reports whether any override was set.
func applyEnv(cfg *Config) bool {
	changed := false
	if url := strings.TrimSpace(os.Getenv(EnvServerURL)); url != "" {
		cfg.Server.URL = url
		changed = true
	}
	if flavor := strings.ToLower(strings.TrimSpace(os.Getenv(EnvFlavor))); flavor != "" {
		cfg.Session.Flavor = flavor
		changed = true
	}
	return changed
}

func mergeWarnings(existing []Warning, extra []Warning) []Warning {
	seen := make(map[string]struct{}, len(existing))
	for _, w := range existing {
		seen[w.Message] = struct{}{}
	}
	for _, w := range extra {
		if _, ok := seen[w.Message]; ok {
			continue
		}
		seen[w.Message] = struct{}{}
		existing = append(existing, w)
	}
	return existing
}
