package processor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/fatih/color"

	"codeberg.org/snonux/danskrecall/internal"
	"codeberg.org/snonux/danskrecall/internal/anki"
	"codeberg.org/snonux/danskrecall/internal/audio"
	"codeberg.org/snonux/danskrecall/internal/batch"
	"codeberg.org/snonux/danskrecall/internal/cli"
	"codeberg.org/snonux/danskrecall/internal/dictionary"
)

// PageRenderer is a dictionary renderer that holds resources until closed
type PageRenderer interface {
	dictionary.Renderer
	io.Closer
}

// audioOutcome is remembered per distinct word so repeated rows reuse it
type audioOutcome struct {
	filename string
	fallback bool
	errs     []WordError
}

// Processor handles the main word processing logic
type Processor struct {
	flags      *cli.Flags
	renderer   PageRenderer
	fetcher    *dictionary.Fetcher
	downloader *audio.Downloader
	tts        audio.Provider
	ttsCalls   int
	out        io.Writer
}

// NewProcessor creates a processor with the renderer selected by flags
func NewProcessor(flags *cli.Flags) (*Processor, error) {
	var renderer PageRenderer
	switch flags.Renderer {
	case cli.RendererChrome:
		renderer = dictionary.NewChromeRenderer(flags.Timeout, flags.SettleDelay)
	default:
		renderer = dictionary.NewHTTPRenderer(flags.Timeout)
	}
	return NewProcessorWithRenderer(flags, renderer)
}

// NewProcessorWithRenderer creates a processor around an existing renderer.
// The processor takes ownership and closes it in Close.
func NewProcessorWithRenderer(flags *cli.Flags, renderer PageRenderer) (*Processor, error) {
	p := &Processor{
		flags:      flags,
		renderer:   renderer,
		fetcher:    dictionary.NewFetcher(renderer, flags.FetchConfig()),
		downloader: audio.NewDownloader(flags.DownloadOptions()),
		out:        color.Output,
	}

	if flags.TTSFallback {
		provider, err := audio.NewProvider(flags.ProviderConfig())
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("pronunciation fallback: %w", err)
		}
		p.tts = provider
	}

	return p, nil
}

// SetOutput redirects the progress output
func (p *Processor) SetOutput(w io.Writer) {
	p.out = w
}

// Close releases the renderer and the HTTP clients
func (p *Processor) Close() error {
	return errors.Join(p.renderer.Close(), p.downloader.Close())
}

// NetworkCalls returns the number of requests issued so far
func (p *Processor) NetworkCalls() int {
	return p.fetcher.NetworkCalls() + p.downloader.NetworkCalls() + p.ttsCalls
}

// Run processes the input file and writes the output files. Per-word
// failures end up in the summary; only input, output and cancellation
// errors are returned.
func (p *Processor) Run(ctx context.Context) (*Summary, error) {
	records, skipped, err := batch.ReadVocabFile(p.flags.InputFile)
	if err != nil {
		return nil, err
	}

	generator := anki.NewGenerator(&anki.GeneratorOptions{
		OutputDir: p.flags.OutputDir,
		MediaDir:  p.flags.MediaDir,
	})

	summary := &Summary{
		RowsRead:       len(records) + len(skipped),
		Skipped:        len(skipped),
		SkippedRows:    skipped,
		StructuredFile: generator.StructuredPath(),
		ReadyFile:      generator.ReadyPath(),
	}

	yellow := color.New(color.FgYellow).SprintFunc()
	for _, row := range skipped {
		fmt.Fprintf(p.out, "%s line %d: %s\n", yellow("Skipping"), row.Line, row.Reason)
	}

	outcomes := make(map[string]*audioOutcome)
	for i, record := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		fmt.Fprintf(p.out, "\nProcessing %d/%d: %s\n", i+1, len(records), record.Word)

		key := internal.CleanWord(record.Word)
		outcome, seen := outcomes[key]
		if !seen {
			outcome = p.resolveAudio(ctx, record)
			outcomes[key] = outcome
		} else {
			fmt.Fprintf(p.out, "  Reusing result for repeated word\n")
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		for _, e := range outcome.errs {
			e.Row = record.Line
			e.Word = record.Word
			summary.Errors = append(summary.Errors, e)
		}

		filename, missing := p.verifyAudio(record, outcome)
		if missing != nil {
			summary.Errors = append(summary.Errors, *missing)
		}

		generator.AddRecord(anki.Enrich(record, filename))
		switch {
		case filename == "":
			summary.Partial++
		case outcome.fallback:
			summary.Succeeded++
			summary.FallbackAudio++
		default:
			summary.Succeeded++
		}
	}

	if err := generator.GenerateCSV(); err != nil {
		return nil, err
	}

	if p.flags.APKG {
		apkgPath := filepath.Join(p.flags.OutputDir, apkgFilename(p.flags.DeckName))
		if err := generator.GenerateAPKG(apkgPath, p.flags.DeckName); err != nil {
			return nil, err
		}
		summary.APKGFile = apkgPath
	}

	summary.NetworkCalls = p.NetworkCalls()
	if err := summary.WriteReport(filepath.Join(p.flags.OutputDir, ReportFilename)); err != nil {
		return nil, &anki.WriteError{Path: filepath.Join(p.flags.OutputDir, ReportFilename), Err: err}
	}

	summary.Print(p.out)
	return summary, nil
}

// verifyAudio returns the outcome's filename when the file is present in
// the media directory. A vanished file leaves the row without audio and is
// reported, so the summary agrees with the written files.
func (p *Processor) verifyAudio(record batch.VocabRecord, outcome *audioOutcome) (string, *WordError) {
	if outcome.filename == "" || internal.FileExists(filepath.Join(p.flags.MediaDir, outcome.filename)) {
		return outcome.filename, nil
	}

	stage := StageDownload
	if outcome.fallback {
		stage = StageFallback
	}
	return "", &WordError{
		Row:    record.Line,
		Word:   record.Word,
		Stage:  stage,
		Reason: fmt.Sprintf("%s is missing from the media directory", outcome.filename),
	}
}

// resolveAudio runs fetch, locate and download for a single word. It never
// fails, errors are collected in the outcome.
func (p *Processor) resolveAudio(ctx context.Context, record batch.VocabRecord) *audioOutcome {
	outcome := &audioOutcome{}
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	filename, err := p.dictionaryAudio(ctx, record.Word)
	if err == nil {
		fmt.Fprintf(p.out, "  %s %s\n", green("Audio:"), filename)
		outcome.filename = filename
		return outcome
	}

	wordErr := classify(record, err)
	outcome.errs = append(outcome.errs, wordErr)
	fmt.Fprintf(p.out, "  %s %s\n", red("Failed:"), wordErr.Reason)
	slog.Default().Debug("Word failed", "word", record.Word, "stage", wordErr.Stage, "error", err)

	var notFound *dictionary.AudioNotFoundError
	if p.tts == nil || !errors.As(err, &notFound) || ctx.Err() != nil {
		return outcome
	}

	filename, err = p.fallbackAudio(ctx, record.Word)
	if err != nil {
		outcome.errs = append(outcome.errs, WordError{
			Row:    record.Line,
			Word:   record.Word,
			Stage:  StageFallback,
			Reason: err.Error(),
		})
		fmt.Fprintf(p.out, "  %s %v\n", red("Fallback failed:"), err)
		return outcome
	}

	fmt.Fprintf(p.out, "  %s %s\n", green("Synthesized audio:"), filename)
	outcome.filename = filename
	outcome.fallback = true
	return outcome
}

func (p *Processor) dictionaryAudio(ctx context.Context, word string) (string, error) {
	html, err := p.fetcher.FetchPage(ctx, word)
	if err != nil {
		return "", err
	}

	pageURL := p.fetcher.LookupURL(internal.CleanWord(word))
	audioURL, err := dictionary.LocateAudio(html, word, pageURL)
	if err != nil {
		return "", err
	}

	return p.downloader.DownloadAudio(ctx, audioURL, word, p.flags.MediaDir)
}

// fallbackAudio synthesizes the word unless a previous run already did
func (p *Processor) fallbackAudio(ctx context.Context, word string) (string, error) {
	filename := audio.AudioFilename(word, "")
	if filename == "" {
		return "", internal.ErrNoLetters
	}

	outputFile := filepath.Join(p.flags.MediaDir, filename)
	if internal.FileExists(outputFile) {
		return filename, nil
	}

	p.ttsCalls++
	if err := p.tts.GenerateAudio(ctx, word, outputFile); err != nil {
		return "", err
	}
	return filename, nil
}

// classify maps a pipeline error to the stage it came from
// classify maps err to its pipeline stage. The reason leaves out the word,
// which the WordError carries itself.
func classify(record batch.VocabRecord, err error) WordError {
	wordErr := WordError{Row: record.Line, Word: record.Word, Reason: err.Error()}

	var fetchErr *dictionary.FetchError
	var notFound *dictionary.AudioNotFoundError
	var downloadErr *audio.DownloadError
	switch {
	case errors.As(err, &fetchErr):
		wordErr.Stage = StageFetch
		wordErr.Reason = fetchErr.Err.Error()
	case errors.As(err, &notFound):
		wordErr.Stage = StageLocate
		wordErr.Reason = notFound.Reason
	case errors.As(err, &downloadErr):
		wordErr.Stage = StageDownload
		wordErr.Reason = downloadErr.Err.Error()
	default:
		wordErr.Stage = StageFetch
	}
	return wordErr
}

func apkgFilename(deckName string) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, strings.TrimSpace(deckName))
	if name == "" {
		name = "danskrecall"
	}
	return name + ".apkg"
}
