package dictionary

import (
	"fmt"
	"os"
	"path/filepath"

	"codeberg.org/snonux/danskrecall/internal"
)

// FileCache stores one rendered lookup page per word
type FileCache struct {
	rootDir string
}

func NewFileCache(cacheDirectory string) *FileCache {
	return &FileCache{
		rootDir: cacheDirectory,
	}
}

// filePath expects a word already passed through internal.CleanWord
func (c *FileCache) filePath(word string) string {
	return filepath.Join(c.rootDir, word+".html")
}

// Get returns the cached page for word. The boolean is false on a cache miss.
func (c *FileCache) Get(word string) ([]byte, bool, error) {
	contents, err := os.ReadFile(c.filePath(word))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("os.ReadFile > %w", err)
	}
	return contents, true, nil
}

// Put stores contents for word, replacing any previous entry
func (c *FileCache) Put(word string, contents []byte) error {
	if err := internal.WriteFileAtomic(c.filePath(word), contents); err != nil {
		return fmt.Errorf("internal.WriteFileAtomic > %w", err)
	}
	return nil
}
