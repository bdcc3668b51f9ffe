// Package export saves transaction export payloads fetched during a smoke run.
package export

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// File describes a saved export.
type File struct {
	Path     string
	Size     int
	Checksum string // hex SHA-256 of the content
}

// FileName returns the file name for an export of the given transaction type and format.
func FileName(txnType, format string) string {
	ext := format
	if format == "excel" {
		ext = "xlsx"
	}
	return fmt.Sprintf("transactions_export_%s_%s.%s", txnType, format, ext)
}

// Checksum returns the hex SHA-256 of content.
func Checksum(content []byte) string {
	hash := sha256.Sum256(content)
	return hex.EncodeToString(hash[:])
}

// Save writes content to dir/name, creating dir when missing.
func Save(dir, name string, content []byte) (File, error) {
	if dir == "" {
		return File{}, fmt.Errorf("dir required")
	}
	if name == "" || filepath.Base(name) != name {
		return File{}, fmt.Errorf("invalid export file name %q", name)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return File{}, fmt.Errorf("failed to create export directory: %w", err)
	}

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, content, 0644); err != nil {
		return File{}, fmt.Errorf("failed to write export: %w", err)
	}

	return File{
		Path:     path,
		Size:     len(content),
		Checksum: Checksum(content),
	}, nil
}
