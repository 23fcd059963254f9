package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// OutputManager places export files under a base directory
type OutputManager struct {
	BaseOutputDir string
}

// NewOutputManager creates a new output manager
func NewOutputManager(baseOutputDir string) *OutputManager {
	if baseOutputDir == "" {
		baseOutputDir = "exports"
	}
	return &OutputManager{
		BaseOutputDir: baseOutputDir,
	}
}

// ExportFilePath returns a timestamped path for an export in format,
// creating the base directory if needed.
func (om *OutputManager) ExportFilePath(prefix, format string, now time.Time) (string, error) {
	if err := om.EnsureOutputDirExists(); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	if prefix == "" {
		prefix = "records"
	}

	// Clean the prefix to remove any path separators
	name := fmt.Sprintf("%s_%s.%s", filepath.Base(prefix), now.UTC().Format("20060102T150405Z"), strings.ToLower(format))
	return filepath.Join(om.BaseOutputDir, name), nil
}

// FormatFromPath determines the export format based on extension
func FormatFromPath(fileName string) string {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".csv":
		return "csv"
	case ".json":
		return "json"
	default:
		return ""
	}
}

// GetFileSize returns the size of a file in bytes
func GetFileSize(filePath string) (int64, error) {
	fileInfo, err := os.Stat(filePath)
	if err != nil {
		return 0, err
	}
	return fileInfo.Size(), nil
}

// EnsureOutputDirExists ensures the base output directory exists
func (om *OutputManager) EnsureOutputDirExists() error {
	return os.MkdirAll(om.BaseOutputDir, 0755)
}
