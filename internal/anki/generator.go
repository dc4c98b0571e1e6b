package anki

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"codeberg.org/snonux/danskrecall/internal"
	"codeberg.org/snonux/danskrecall/internal/batch"
)

const (
	StructuredFilename = "anki_cards_structured.csv"
	ReadyFilename      = "anki_cards_ready.csv"
)

// StructuredHeader is the header of the structured output file
var StructuredHeader = []string{
	batch.ColumnWord,
	"Audio",
	"Danish Sentence",
	batch.ColumnMeaning,
	"English Translation",
	batch.ColumnForms,
}

// ReadyHeader is the header of the import-ready output file
var ReadyHeader = []string{"Front", "Back"}

// WriteError is returned when an output file cannot be written. It is fatal for the run.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("failed to write %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// GeneratorOptions configures the Anki export
type GeneratorOptions struct {
	OutputDir      string // Directory receiving the CSV files
	MediaDir       string // Anki collection.media folder holding the audio
	StructuredFile string // File name of the structured CSV
	ReadyFile      string // File name of the import-ready CSV
}

// DefaultGeneratorOptions returns sensible defaults
func DefaultGeneratorOptions() *GeneratorOptions {
	return &GeneratorOptions{
		OutputDir:      filepath.Join("data", "output"),
		StructuredFile: StructuredFilename,
		ReadyFile:      ReadyFilename,
	}
}

// Generator creates Anki-compatible import files
type Generator struct {
	options *GeneratorOptions
	records []EnrichedRecord
}

// NewGenerator creates a new Anki generator
func NewGenerator(options *GeneratorOptions) *Generator {
	if options == nil {
		options = DefaultGeneratorOptions()
	}
	if options.StructuredFile == "" {
		options.StructuredFile = StructuredFilename
	}
	if options.ReadyFile == "" {
		options.ReadyFile = ReadyFilename
	}
	return &Generator{
		options: options,
		records: make([]EnrichedRecord, 0),
	}
}

// AddRecord appends a record, preserving input order
func (g *Generator) AddRecord(record EnrichedRecord) {
	g.records = append(g.records, record)
}

// Records returns the records added so far
func (g *Generator) Records() []EnrichedRecord {
	return g.records
}

// StructuredPath returns the full path of the structured CSV
func (g *Generator) StructuredPath() string {
	return filepath.Join(g.options.OutputDir, g.options.StructuredFile)
}

// ReadyPath returns the full path of the import-ready CSV
func (g *Generator) ReadyPath() string {
	return filepath.Join(g.options.OutputDir, g.options.ReadyFile)
}

// GenerateCSV writes the structured and the ready file. Existing files are
// replaced atomically.
func (g *Generator) GenerateCSV() error {
	records := g.verifiedRecords()

	structured := make([][]string, 0, len(records))
	ready := make([][]string, 0, len(records))
	for _, r := range records {
		structured = append(structured, []string{
			r.Word,
			r.AudioField(),
			r.ExampleSentenceDanish,
			r.Meaning,
			r.ExampleTranslationEnglish,
			r.Forms,
		})
		ready = append(ready, []string{r.Front(), r.Back()})
	}

	if err := writeCSV(g.StructuredPath(), StructuredHeader, structured); err != nil {
		return err
	}
	return writeCSV(g.ReadyPath(), ReadyHeader, ready)
}

// verifiedRecords blanks audio references whose file is missing from the
// media directory, so every emitted reference resolves
func (g *Generator) verifiedRecords() []EnrichedRecord {
	if g.options.MediaDir == "" {
		return g.records
	}

	records := make([]EnrichedRecord, len(g.records))
	for i, r := range g.records {
		if r.AudioFilename != "" && !internal.FileExists(filepath.Join(g.options.MediaDir, r.AudioFilename)) {
			slog.Default().Warn("Audio file missing from media directory, leaving audio empty",
				"word", r.Word, "file", r.AudioFilename)
			r.AudioFilename = ""
		}
		records[i] = r
	}
	return records
}

func writeCSV(path string, header []string, rows [][]string) error {
	err := internal.WriteAtomic(path, func(w io.Writer) error {
		writer := csv.NewWriter(w)
		writer.Comma = batch.Separator

		if err := writer.Write(header); err != nil {
			return fmt.Errorf("failed to write headers: %w", err)
		}
		if err := writer.WriteAll(rows); err != nil {
			return fmt.Errorf("failed to write rows: %w", err)
		}
		return nil
	})
	if err != nil {
		return &WriteError{Path: path, Err: err}
	}
	return nil
}

// GenerateAPKG creates an .apkg package from the current records
func (g *Generator) GenerateAPKG(outputPath, deckName string) error {
	apkgGen := NewAPKGGenerator(deckName, g.options.MediaDir)
	for _, record := range g.verifiedRecords() {
		apkgGen.AddRecord(record)
	}

	if err := apkgGen.GenerateAPKG(outputPath); err != nil {
		return &WriteError{Path: outputPath, Err: err}
	}
	return nil
}

// Stats returns statistics about the records as they are written, so
// references to missing media do not count as audio
func (g *Generator) Stats() (total, withAudio int) {
	records := g.verifiedRecords()
	total = len(records)
	for _, r := range records {
		if r.AudioFilename != "" {
			withAudio++
		}
	}
	return
}
