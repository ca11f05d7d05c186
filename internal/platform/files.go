package platform

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// File permissions
const (
	DefaultDirPermissions = 0755
)

// Filename limits
const (
	MaxFilenameLength = 200
)

// Characters not allowed in filenames across supported platforms
var forbiddenFilenameChars = []string{"/", "\\", ":", "*", "?", "\"", "<", ">", "|"}

// Extensions of in-progress download artifacts
var partialExtensions = []string{".part", ".ytdl"}

// EnsureDir creates the directory if it does not exist
func EnsureDir(dirPath string) error {
	if dirPath == "" {
		return fmt.Errorf("directory path is empty")
	}
	if info, err := os.Stat(dirPath); err == nil {
		if !info.IsDir() {
			return fmt.Errorf("path exists and is not a directory: %s", dirPath)
		}
		return nil
	}
	return os.MkdirAll(dirPath, DefaultDirPermissions)
}

// DefaultDownloadDir returns the standard Downloads directory for the user
func DefaultDownloadDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, "Downloads"), nil
}

// SanitizeFilename strips characters that are invalid on common filesystems
// and truncates overly long names while keeping the extension.
func SanitizeFilename(name string) string {
	for _, ch := range forbiddenFilenameChars {
		name = strings.ReplaceAll(name, ch, "_")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "untitled"
	}

	if len(name) > MaxFilenameLength {
		ext := filepath.Ext(name)
		if len(ext) > 10 {
			ext = ""
		}
		base := name[:MaxFilenameLength-len(ext)]
		name = base + ext
	}
	return name
}

// IsPartialFile reports whether the filename belongs to an unfinished
// download. Downloaders leave .part and .ytdl artifacts behind while a
// transfer is in flight.
func IsPartialFile(name string) bool {
	for _, ext := range partialExtensions {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

// FindDownloadedFile searches dir for a finished file matching base. The
// downloader may rewrite the name it was given (restricted characters,
// spaces turned into underscores), so the match is fuzzy: names are
// compared case-insensitively with spaces and underscores collapsed.
// Partial files are never returned. When several entries match, the most
// recently modified one wins.
func FindDownloadedFile(dir, base string) (string, bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}

	want := normalizeFilename(base)
	if want == "" {
		return "", false
	}

	var bestPath string
	var bestMod time.Time
	for _, entry := range entries {
		if entry.IsDir() || IsPartialFile(entry.Name()) {
			continue
		}
		name := entry.Name()
		got := normalizeFilename(strings.TrimSuffix(name, filepath.Ext(name)))
		if got == "" {
			continue
		}
		if !strings.Contains(got, want) && !strings.Contains(want, got) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if bestPath == "" || info.ModTime().After(bestMod) {
			bestPath = filepath.Join(dir, name)
			bestMod = info.ModTime()
		}
	}
	return bestPath, bestPath != ""
}

func normalizeFilename(name string) string {
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, " ", "_")
	return strings.Trim(name, "_")
}
