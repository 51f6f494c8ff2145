// Package manifest writes the integrity manifest of a run's output folder.
package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fgeck/sevenzip-backup/internal/models"
	"github.com/rs/zerolog"
)

const (
	// FileName is the manifest written into the output folder.
	FileName = "sha256.txt"
	// EncryptedMarker is written when the archives are password protected.
	EncryptedMarker = "Archives_are_encrypted.txt"

	bufferSize = 128 * 1024
)

// Writer computes digests of run artifacts.
type Writer struct {
	logger zerolog.Logger
}

// New creates a manifest writer.
func New(logger zerolog.Logger) *Writer {
	return &Writer{logger: logger}
}

// skipped reports whether name is a log or text file, which includes the
// manifest and the marker.
func skipped(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".log" || ext == ".txt"
}

// Write hashes every regular file directly inside dir and writes the
// manifest as "<filename> <sha256-hex>" lines.
func (w *Writer) Write(dir string) (*models.RunManifest, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}

	manifest := &models.RunManifest{Path: filepath.Join(dir, FileName)}
	buf := make([]byte, bufferSize)
	for _, e := range entries {
		if !e.Type().IsRegular() || skipped(e.Name()) {
			continue
		}
		sum, err := digest(filepath.Join(dir, e.Name()), buf)
		if err != nil {
			return nil, err
		}
		w.logger.Debug().Str("file", e.Name()).Str("sha256", sum).Msg("hashed artifact")
		manifest.Entries = append(manifest.Entries, models.ManifestEntry{Filename: e.Name(), SHA256: sum})
	}

	var b strings.Builder
	for _, entry := range manifest.Entries {
		fmt.Fprintf(&b, "%s %s\n", entry.Filename, entry.SHA256)
	}
	if err := os.WriteFile(manifest.Path, []byte(b.String()), 0o600); err != nil {
		return nil, fmt.Errorf("writing manifest: %w", err)
	}

	w.logger.Info().Int("files", len(manifest.Entries)).Str("manifest", manifest.Path).Msg("SHA-256 hashes saved")
	return manifest, nil
}

// WriteEncryptedMarker notes in dir that its archives are encrypted.
func (w *Writer) WriteEncryptedMarker(dir string) error {
	path := filepath.Join(dir, EncryptedMarker)
	if err := os.WriteFile(path, []byte("7z archives in this folder are encrypted.\n"), 0o600); err != nil {
		return fmt.Errorf("writing encrypted marker: %w", err)
	}
	return nil
}

func digest(path string, buf []byte) (string, error) {
	f, err := os.Open(path) //nolint:gosec // artifact in the output folder
	if err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
