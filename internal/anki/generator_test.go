package anki

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/snonux/danskrecall/internal/batch"
)

func TestDefaultGeneratorOptions(t *testing.T) {
	opts := DefaultGeneratorOptions()
	assert.Equal(t, filepath.Join("data", "output"), opts.OutputDir)
	assert.Equal(t, "anki_cards_structured.csv", opts.StructuredFile)
	assert.Equal(t, "anki_cards_ready.csv", opts.ReadyFile)
}

func TestNewGenerator(t *testing.T) {
	gen := NewGenerator(nil)
	require.NotNil(t, gen.options)

	gen = NewGenerator(&GeneratorOptions{OutputDir: "out"})
	assert.Equal(t, filepath.Join("out", StructuredFilename), gen.StructuredPath())
	assert.Equal(t, filepath.Join("out", ReadyFilename), gen.ReadyPath())
}

func TestGenerateCSV(t *testing.T) {
	outputDir := filepath.Join(t.TempDir(), "output")
	mediaDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(mediaDir, "hus.mp3"), []byte("ID3"), 0644))

	gen := NewGenerator(&GeneratorOptions{OutputDir: outputDir, MediaDir: mediaDir})
	gen.AddRecord(Enrich(husRecord, "hus.mp3"))
	gen.AddRecord(Enrich(batch.VocabRecord{
		Word:                      "xyzzyqq",
		ExampleSentenceDanish:     "Ukendt.",
		Meaning:                   "unknown",
		ExampleTranslationEnglish: "Unknown.",
	}, ""))

	require.NoError(t, gen.GenerateCSV())

	structured, err := os.ReadFile(gen.StructuredPath())
	require.NoError(t, err)
	assert.Equal(t,
		"Word;Audio;Danish Sentence;Meaning;English Translation;Forms\n"+
			"hus;[sound:hus.mp3];Huset er stort.;house;The house is big.;huset, huse, husene\n"+
			"xyzzyqq;;Ukendt.;unknown;Unknown.;\n",
		string(structured))

	ready, err := os.ReadFile(gen.ReadyPath())
	require.NoError(t, err)
	assert.Equal(t,
		"Front;Back\n"+
			"<b>hus</b><br>[sound:hus.mp3]<br>Huset er stort.;\"house<br><span style='color:gray;'>The house is big.</span><br><i><b>Forms:</b> huset, huse, husene</i>\"\n"+
			"<b>xyzzyqq</b><br>Ukendt.;\"unknown<br><span style='color:gray;'>Unknown.</span><br><i><b>Forms:</b> </i>\"\n",
		string(ready))

	total, withAudio := gen.Stats()
	assert.Equal(t, 2, total)
	assert.Equal(t, 1, withAudio)
}

func TestGenerateCSVHeaderOnly(t *testing.T) {
	outputDir := t.TempDir()
	gen := NewGenerator(&GeneratorOptions{OutputDir: outputDir})
	require.NoError(t, gen.GenerateCSV())

	structured, err := os.ReadFile(gen.StructuredPath())
	require.NoError(t, err)
	assert.Equal(t, "Word;Audio;Danish Sentence;Meaning;English Translation;Forms\n", string(structured))

	ready, err := os.ReadFile(gen.ReadyPath())
	require.NoError(t, err)
	assert.Equal(t, "Front;Back\n", string(ready))
}

func TestGenerateCSVBlanksMissingAudio(t *testing.T) {
	gen := NewGenerator(&GeneratorOptions{OutputDir: t.TempDir(), MediaDir: t.TempDir()})
	gen.AddRecord(Enrich(husRecord, "hus.mp3"))
	require.NoError(t, gen.GenerateCSV())

	structured, err := os.ReadFile(gen.StructuredPath())
	require.NoError(t, err)
	assert.Contains(t, string(structured), "hus;;Huset er stort.")
	assert.NotContains(t, string(structured), "[sound:")

	total, withAudio := gen.Stats()
	assert.Equal(t, 1, total)
	assert.Zero(t, withAudio)
}

func TestGenerateCSVOverwrites(t *testing.T) {
	outputDir := t.TempDir()
	path := filepath.Join(outputDir, StructuredFilename)
	require.NoError(t, os.WriteFile(path, []byte("stale content that is longer than the new file\n"), 0644))

	gen := NewGenerator(&GeneratorOptions{OutputDir: outputDir})
	require.NoError(t, gen.GenerateCSV())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Word;Audio;Danish Sentence;Meaning;English Translation;Forms\n", string(data))

	entries, err := os.ReadDir(outputDir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "no temporary files may be left behind")
}

func TestGenerateCSVWriteError(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, nil, 0644))

	gen := NewGenerator(&GeneratorOptions{OutputDir: blocker})
	err := gen.GenerateCSV()
	require.Error(t, err)

	var writeErr *WriteError
	require.True(t, errors.As(err, &writeErr))
	assert.Equal(t, filepath.Join(blocker, StructuredFilename), writeErr.Path)
}
