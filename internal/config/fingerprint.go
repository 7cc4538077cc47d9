package config

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/zeebo/blake3"
)

// ComputeBlake3Hash computes the BLAKE3 hash of a file.
func ComputeBlake3Hash(filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	hash := blake3.Sum256(data)
	return hex.EncodeToString(hash[:]), nil
}

// Fingerprint computes a combined BLAKE3 hash over the given files, in
// order. Missing files contribute a fixed marker instead of failing, so the
// fingerprint still changes when an optional file (the command override
// table) appears or disappears. Used to log the effective configuration
// identity at startup and to detect no-op reloads.
func Fingerprint(paths ...string) string {
	h := blake3.New()
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			h.Write([]byte("absent:" + p + "\x00"))
			continue
		}
		sum := blake3.Sum256(data)
		h.Write(sum[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// ConfigInputs lists the files that define the dispatch behavior of a
// loaded config: the catalog and both command tables. The config file
// itself is passed separately by callers that have its path.
func ConfigInputs(cfg *Config) []string {
	paths := []string{cfg.Catalog.Path, cfg.Commands.BasePath}
	if cfg.Commands.OverridePath != "" {
		paths = append(paths, cfg.Commands.OverridePath)
	}
	return paths
}
