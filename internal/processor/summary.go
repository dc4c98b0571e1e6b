package processor

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"codeberg.org/snonux/danskrecall/internal"
	"codeberg.org/snonux/danskrecall/internal/batch"
)

// ReportFilename is written next to the CSV files after every run
const ReportFilename = "report.yaml"

// Stage names the pipeline step a word failed in
type Stage string

const (
	StageFetch    Stage = "fetch"
	StageLocate   Stage = "locate"
	StageDownload Stage = "download"
	StageFallback Stage = "fallback"
)

// WordError records a per-word failure. The row is still emitted.
type WordError struct {
	Row    int    `yaml:"row"`
	Word   string `yaml:"word"`
	Stage  Stage  `yaml:"stage"`
	Reason string `yaml:"reason"`
}

// Summary describes the outcome of a run
type Summary struct {
	RowsRead      int                `yaml:"rows_read"`
	Succeeded     int                `yaml:"succeeded"`
	Partial       int                `yaml:"partial"`
	Skipped       int                `yaml:"skipped"`
	FallbackAudio int                `yaml:"fallback_audio"`
	SkippedRows   []batch.SkippedRow `yaml:"skipped_rows,omitempty"`
	Errors        []WordError        `yaml:"errors,omitempty"`

	StructuredFile string `yaml:"structured_file"`
	ReadyFile      string `yaml:"ready_file"`
	APKGFile       string `yaml:"apkg_file,omitempty"`

	// Varies between otherwise identical runs, so it stays out of the report
	NetworkCalls int `yaml:"-"`
}

// WriteReport stores the summary as YAML
func (s *Summary) WriteReport(path string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	if err := internal.WriteFileAtomic(path, data); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// Print writes the human readable summary
func (s *Summary) Print(w io.Writer) {
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	fmt.Fprintf(w, "\n=== Summary ===\n")
	fmt.Fprintf(w, "Rows read: %d\n", s.RowsRead)
	fmt.Fprintf(w, "With audio: %s\n", green(s.Succeeded))
	if s.FallbackAudio > 0 {
		fmt.Fprintf(w, "  of which synthesized: %d\n", s.FallbackAudio)
	}
	fmt.Fprintf(w, "Without audio: %s\n", yellow(s.Partial))
	fmt.Fprintf(w, "Skipped (empty word): %s\n", yellow(s.Skipped))
	fmt.Fprintf(w, "Network requests: %d\n", s.NetworkCalls)

	if len(s.Errors) > 0 {
		fmt.Fprintf(w, "\nErrors:\n")
		for _, e := range s.Errors {
			fmt.Fprintf(w, "  %s row %d %q [%s]: %s\n", red("✗"), e.Row, e.Word, e.Stage, e.Reason)
		}
	}

	fmt.Fprintf(w, "\nStructured: %s\n", s.StructuredFile)
	fmt.Fprintf(w, "Ready:      %s\n", s.ReadyFile)
	if s.APKGFile != "" {
		fmt.Fprintf(w, "Package:    %s\n", s.APKGFile)
	}
	fmt.Fprintf(w, "===============\n")
}
