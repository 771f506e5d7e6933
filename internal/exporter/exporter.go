// Package exporter writes finalized weekly pivot tables to their
// destinations: an xlsx workbook, a CSV file, or the terminal.
package exporter

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"w2wcli/internal/aggregate"
	"w2wcli/internal/errors"
)

// Sink accepts a finalized table and persists or displays it.
type Sink interface {
	Write(ctx context.Context, table *aggregate.OutputTable) error
}

// DeriveOutputPath returns the default output path next to the input file:
// "<stem>-pivot.<ext>".
func DeriveOutputPath(inputPath, ext string) string {
	base := filepath.Base(inputPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(filepath.Dir(inputPath), stem+"-pivot."+ext)
}

// NormalizeExtension forces the expected extension onto a user-supplied
// output path.
func NormalizeExtension(path, ext string) string {
	want := "." + ext
	if strings.EqualFold(filepath.Ext(path), want) {
		return path
	}
	return strings.TrimSuffix(path, filepath.Ext(path)) + want
}

// ensureWritable enforces overwrite protection and creates the parent
// directory.
func ensureWritable(path string, overwrite bool) error {
	if _, err := os.Stat(path); err == nil && !overwrite {
		return errors.NewStorageError("refusing to overwrite existing file (use -overwrite)", nil).
			WithContext("path", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.NewStorageError("failed to create output directory", err).
			WithContext("path", filepath.Dir(path))
	}
	return nil
}
