package batch

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Column names of the vocabulary input file
const (
	ColumnWord        = "Word"
	ColumnSentence    = "Example Sentence (Danish)"
	ColumnMeaning     = "Meaning"
	ColumnTranslation = "Example Translation (English)"
	ColumnForms       = "Forms"
)

// RequiredColumns lists the header cells every input file must carry
var RequiredColumns = []string{
	ColumnWord,
	ColumnSentence,
	ColumnMeaning,
	ColumnTranslation,
	ColumnForms,
}

// Separator is the field delimiter of the input file
const Separator = ';'

// VocabRecord is a single vocabulary row of the input file
type VocabRecord struct {
	Line                      int // 1-based line number in the input file
	Word                      string
	ExampleSentenceDanish     string
	Meaning                   string
	ExampleTranslationEnglish string
	Forms                     string
}

// SkippedRow is a data row that was not turned into a VocabRecord
type SkippedRow struct {
	Line   int    `yaml:"line"`
	Reason string `yaml:"reason"`
}

// MalformedInputError reports an input file that violates the column contract
type MalformedInputError struct {
	Path   string
	Reason string
	Err    error
}

func (e *MalformedInputError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed input %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("malformed input %s: %s", e.Path, e.Reason)
}

func (e *MalformedInputError) Unwrap() error {
	return e.Err
}

// ReadVocabFile reads a semicolon separated vocabulary file.
// Rows without a word are returned as skipped rows, blank lines are ignored.
func ReadVocabFile(filename string) ([]VocabRecord, []SkippedRow, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open vocabulary file: %w", err)
	}
	defer file.Close()

	records, skipped, err := ReadVocab(file)
	if err != nil {
		var malformed *MalformedInputError
		if errors.As(err, &malformed) {
			malformed.Path = filename
		}
		return nil, nil, err
	}
	return records, skipped, nil
}

// ReadVocab parses vocabulary rows from r
func ReadVocab(r io.Reader) ([]VocabRecord, []SkippedRow, error) {
	reader := csv.NewReader(r)
	reader.Comma = Separator
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil, &MalformedInputError{Reason: "missing header row"}
	}
	if err != nil {
		return nil, nil, &MalformedInputError{Reason: "unreadable header row", Err: err}
	}

	columns, err := indexColumns(header)
	if err != nil {
		return nil, nil, err
	}

	var records []VocabRecord
	var skipped []SkippedRow

	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, &MalformedInputError{Reason: "unreadable row", Err: err}
		}

		line, _ := reader.FieldPos(0)
		if isBlankRow(row) {
			continue
		}

		record := VocabRecord{
			Line:                      line,
			Word:                      field(row, columns[ColumnWord]),
			ExampleSentenceDanish:     field(row, columns[ColumnSentence]),
			Meaning:                   field(row, columns[ColumnMeaning]),
			ExampleTranslationEnglish: field(row, columns[ColumnTranslation]),
			Forms:                     field(row, columns[ColumnForms]),
		}

		if record.Word == "" {
			skipped = append(skipped, SkippedRow{Line: line, Reason: "empty word"})
			continue
		}

		records = append(records, record)
	}

	return records, skipped, nil
}

// indexColumns maps the required column names to their header positions
func indexColumns(header []string) (map[string]int, error) {
	positions := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(strings.ReplaceAll(name, "\ufeff", ""))
		if _, seen := positions[name]; !seen {
			positions[name] = i
		}
	}

	var missing []string
	columns := make(map[string]int, len(RequiredColumns))
	for _, name := range RequiredColumns {
		i, ok := positions[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		columns[name] = i
	}

	if len(missing) > 0 {
		return nil, &MalformedInputError{
			Reason: fmt.Sprintf("missing required columns: %s", strings.Join(missing, ", ")),
		}
	}
	return columns, nil
}

// field returns the trimmed cell at index i, or "" for short rows
func field(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
