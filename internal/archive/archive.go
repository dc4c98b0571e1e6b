package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ArchiveCache moves the page cache directory to an archive with timestamp.
// The next run fetches every page again into a fresh cache.
func ArchiveCache(cacheDir string) (string, error) {
	return archiveDir(cacheDir, time.Now())
}

func archiveDir(dir string, now time.Time) (string, error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return "", fmt.Errorf("cache directory does not exist: %s", dir)
	}
	if err != nil {
		return "", fmt.Errorf("failed to stat cache directory: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("cache path is not a directory: %s", dir)
	}

	archiveRoot := filepath.Join(filepath.Dir(dir), "archive")
	if err := os.MkdirAll(archiveRoot, 0755); err != nil {
		return "", fmt.Errorf("failed to create archive directory: %w", err)
	}

	base := filepath.Base(dir)
	archivePath := filepath.Join(archiveRoot, fmt.Sprintf("%s-%s", base, now.Format("20060102-150405")))

	// Two archives within the same second
	if _, err := os.Stat(archivePath); err == nil {
		archivePath = filepath.Join(archiveRoot, fmt.Sprintf("%s-%s", base, now.Format("20060102-150405.000000")))
	}

	if err := os.Rename(dir, archivePath); err != nil {
		return "", fmt.Errorf("failed to archive cache directory: %w", err)
	}

	return archivePath, nil
}
