package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// VocabHeader is the header row of a valid vocabulary input file
const VocabHeader = "Word;Example Sentence (Danish);Meaning;Example Translation (English);Forms\n"

// FakeMP3 is a minimal payload that passes audio validation
var FakeMP3 = []byte("ID3\x04\x00\x00\x00\x00\x00\x00fake mp3 payload")

// CreateTestFile creates a test file with content
func CreateTestFile(t *testing.T, path string, content []byte) {
	t.Helper()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("Failed to create directory for test file: %v", err)
	}

	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("Failed to create test file %s: %v", path, err)
	}
}

// WriteVocabFile writes rows below the standard header into a new input
// file and returns its path
func WriteVocabFile(t *testing.T, rows string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "danish_vocab_input.csv")
	CreateTestFile(t, path, []byte(VocabHeader+rows))
	return path
}

// ReadFiles returns the contents of the named files in dir
func ReadFiles(t *testing.T, dir string, names ...string) map[string][]byte {
	t.Helper()

	contents := make(map[string][]byte, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("Failed to read file %s: %v", name, err)
		}
		contents[name] = data
	}
	return contents
}
