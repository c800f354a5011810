package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"
)

// ChecksumManifest records the expected hash of the config file. It lives in
// a .checksums file next to the config and is written by 'config lock'.
type ChecksumManifest struct {
	Version     int               `yaml:"version"`
	GeneratedAt string            `yaml:"generated_at"`
	Hashes      map[string]string `yaml:"hashes"`
}

// ComputeHash computes the BLAKE3 hash of a file, hex-encoded.
func ComputeHash(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	hash := blake3.Sum256(data)
	return hex.EncodeToString(hash[:]), nil
}

func checksumPath(configPath string) string {
	return filepath.Join(filepath.Dir(configPath), ".checksums")
}

// Lock hashes the config file and writes the checksum manifest beside it.
// Returns the manifest path.
func Lock(configPath string) (string, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	hash, err := ComputeHash(absPath)
	if err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", absPath, err)
	}

	manifest := ChecksumManifest{
		Version:     1,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Hashes:      map[string]string{filepath.Base(absPath): hash},
	}

	data, err := yaml.Marshal(manifest)
	if err != nil {
		return "", fmt.Errorf("failed to marshal checksums: %w", err)
	}

	path := checksumPath(absPath)
	// Restrictive permissions: the manifest is the integrity anchor.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return "", fmt.Errorf("failed to write checksums: %w", err)
	}
	return path, nil
}

// VerifyIntegrity checks the config file against its checksum manifest.
// A missing manifest is not an error: integrity checking is opt-in via
// 'config lock', so the caller gets ok=false and no error.
func VerifyIntegrity(configPath string) (bool, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return false, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	data, err := os.ReadFile(checksumPath(absPath))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read checksums: %w", err)
	}

	var manifest ChecksumManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return false, fmt.Errorf("failed to parse checksums: %w", err)
	}
	if manifest.Version != 1 {
		return false, fmt.Errorf("unsupported checksums version: %d", manifest.Version)
	}

	expected, ok := manifest.Hashes[filepath.Base(absPath)]
	if !ok {
		return false, fmt.Errorf("config file %s has no hash in checksums (run 'larknotify config lock')", filepath.Base(absPath))
	}

	actual, err := ComputeHash(absPath)
	if err != nil {
		return false, fmt.Errorf("failed to compute hash: %w", err)
	}
	if actual != expected {
		return false, fmt.Errorf("hash mismatch for %s: expected %s, got %s\n"+
			"If you edited this file intentionally, run: larknotify config lock",
			filepath.Base(absPath), expected, actual)
	}

	return true, nil
}
