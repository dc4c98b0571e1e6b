package processor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"gopkg.in/yaml.v3"

	"codeberg.org/snonux/danskrecall/internal/anki"
	"codeberg.org/snonux/danskrecall/internal/audio"
	"codeberg.org/snonux/danskrecall/internal/batch"
	"codeberg.org/snonux/danskrecall/internal/cli"
	"codeberg.org/snonux/danskrecall/internal/dictionary"
	mock_dictionary "codeberg.org/snonux/danskrecall/internal/mocks/dictionary"
	"codeberg.org/snonux/danskrecall/internal/testutil"
)

func testFlags(t *testing.T, lookupURL, input string) *cli.Flags {
	t.Helper()
	dir := t.TempDir()

	flags := cli.NewFlags()
	flags.InputFile = input
	flags.OutputDir = filepath.Join(dir, "output")
	flags.MediaDir = filepath.Join(dir, "collection.media")
	flags.CacheDir = filepath.Join(dir, "cache", "html_pages")
	flags.BaseURL = lookupURL
	flags.Timeout = 2 * time.Second
	flags.Retries = 0
	flags.RetryDelay = time.Millisecond
	flags.BreakerThreshold = 0
	return flags
}

func run(t *testing.T, flags *cli.Flags) (*Summary, error) {
	t.Helper()
	p, err := NewProcessor(flags)
	require.NoError(t, err)
	defer p.Close()
	p.SetOutput(io.Discard)
	return p.Run(context.Background())
}

func TestRun(t *testing.T) {
	server := testutil.NewFakeOrdnet(t)
	input := testutil.WriteVocabFile(t, "hus;Huset er stort.;house;The house is big.;huset, huse, husene\n"+
		"xyzzyqq;;;;\n"+
		";Tom.;empty;Empty.;\n"+
		"fejl;Det er en fejl.;error;It is an error.;fejlen\n"+
		"Hus;Et hus.;house;A house.;\n"+
		"123;Et tal.;number;A number.;\n"+
		"456;Et andet tal.;number;Another number.;\n")
	flags := testFlags(t, server.LookupURL(), input)

	summary, err := run(t, flags)
	require.NoError(t, err)

	assert.Equal(t, 7, summary.RowsRead)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 4, summary.Partial)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, []batch.SkippedRow{{Line: 4, Reason: "empty word"}}, summary.SkippedRows)

	require.Len(t, summary.Errors, 4)
	assert.Equal(t, 3, summary.Errors[0].Row)
	assert.Equal(t, "xyzzyqq", summary.Errors[0].Word)
	assert.Equal(t, StageLocate, summary.Errors[0].Stage)
	assert.Equal(t, 5, summary.Errors[1].Row)
	assert.Equal(t, StageFetch, summary.Errors[1].Stage)
	assert.Contains(t, summary.Errors[1].Reason, "500")

	// Words sharing a lookup key keep their own spelling in the report
	assert.Equal(t, WordError{Row: 7, Word: "123", Stage: StageFetch, Reason: "word contains no letters"}, summary.Errors[2])
	assert.Equal(t, WordError{Row: 8, Word: "456", Stage: StageFetch, Reason: "word contains no letters"}, summary.Errors[3])

	// Repeated words are looked up once
	assert.Equal(t, int32(3), server.Pages.Load())
	assert.Equal(t, int32(1), server.Audio.Load())
	assert.Equal(t, 4, summary.NetworkCalls)

	data, err := os.ReadFile(filepath.Join(flags.MediaDir, "hus.mp3"))
	require.NoError(t, err)
	assert.Equal(t, testutil.FakeMP3, data)

	structured, err := os.ReadFile(summary.StructuredFile)
	require.NoError(t, err)
	assert.Equal(t, "Word;Audio;Danish Sentence;Meaning;English Translation;Forms\n"+
		"hus;[sound:hus.mp3];Huset er stort.;house;The house is big.;huset, huse, husene\n"+
		"xyzzyqq;;;;;\n"+
		"fejl;;Det er en fejl.;error;It is an error.;fejlen\n"+
		"Hus;[sound:hus.mp3];Et hus.;house;A house.;\n"+
		"123;;Et tal.;number;A number.;\n"+
		"456;;Et andet tal.;number;Another number.;\n",
		string(structured))

	ready, err := os.ReadFile(summary.ReadyFile)
	require.NoError(t, err)
	assert.Contains(t, string(ready), "<b>hus</b><br>[sound:hus.mp3]<br>Huset er stort.;")
	assert.Contains(t, string(ready), "<b>xyzzyqq</b><br>;")

	reportData, err := os.ReadFile(filepath.Join(flags.OutputDir, ReportFilename))
	require.NoError(t, err)
	var report Summary
	require.NoError(t, yaml.Unmarshal(reportData, &report))
	assert.Equal(t, summary.Succeeded, report.Succeeded)
	assert.Equal(t, summary.Errors, report.Errors)
	assert.Zero(t, report.NetworkCalls)
}

func TestRunIsIdempotent(t *testing.T) {
	server := testutil.NewFakeOrdnet(t)
	input := testutil.WriteVocabFile(t, "hus;Huset er stort.;house;The house is big.;huset, huse, husene\n"+
		"xyzzyqq;Ingen.;none;None.;\n")
	flags := testFlags(t, server.LookupURL(), input)

	first, err := run(t, flags)
	require.NoError(t, err)
	assert.Equal(t, 3, first.NetworkCalls)

	readOutputs := func() map[string][]byte {
		return testutil.ReadFiles(t, flags.OutputDir, anki.StructuredFilename, anki.ReadyFilename, ReportFilename)
	}
	before := readOutputs()
	requestsBefore := server.Requests()

	second, err := run(t, flags)
	require.NoError(t, err)
	assert.Equal(t, 0, second.NetworkCalls)
	assert.Equal(t, requestsBefore, server.Requests())
	assert.Equal(t, before, readOutputs())
}

func TestRunHeaderOnly(t *testing.T) {
	server := testutil.NewFakeOrdnet(t)
	flags := testFlags(t, server.LookupURL(), testutil.WriteVocabFile(t, ""))

	summary, err := run(t, flags)
	require.NoError(t, err)
	assert.Zero(t, summary.RowsRead)

	structured, err := os.ReadFile(summary.StructuredFile)
	require.NoError(t, err)
	assert.Equal(t, "Word;Audio;Danish Sentence;Meaning;English Translation;Forms\n", string(structured))

	ready, err := os.ReadFile(summary.ReadyFile)
	require.NoError(t, err)
	assert.Equal(t, "Front;Back\n", string(ready))
}

func TestRunDownloadFailure(t *testing.T) {
	server := testutil.NewFakeOrdnet(t)
	flags := testFlags(t, server.LookupURL(), testutil.WriteVocabFile(t, "hygge;Vi hygger os.;coziness;We are cosy.;hyggen\n"))

	summary, err := run(t, flags)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Partial)
	require.Len(t, summary.Errors, 1)
	assert.Equal(t, StageDownload, summary.Errors[0].Stage)
	assert.NoFileExists(t, filepath.Join(flags.MediaDir, "hygge.mp3"))
}

func TestRunFatalErrors(t *testing.T) {
	server := testutil.NewFakeOrdnet(t)

	t.Run("malformed input", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.csv")
		require.NoError(t, os.WriteFile(path, []byte("Word;Meaning\nhus;house\n"), 0644))
		flags := testFlags(t, server.LookupURL(), path)

		_, err := run(t, flags)
		var malformed *batch.MalformedInputError
		require.True(t, errors.As(err, &malformed))
		assert.NoDirExists(t, flags.OutputDir)
	})

	t.Run("unwritable output", func(t *testing.T) {
		flags := testFlags(t, server.LookupURL(), testutil.WriteVocabFile(t, "xyzzyqq;;;;\n"))
		blocker := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(blocker, nil, 0644))
		flags.OutputDir = blocker

		_, err := run(t, flags)
		var writeErr *anki.WriteError
		require.True(t, errors.As(err, &writeErr))
	})

	t.Run("cancelled", func(t *testing.T) {
		flags := testFlags(t, server.LookupURL(), testutil.WriteVocabFile(t, "hus;;;;\n"))
		p, err := NewProcessor(flags)
		require.NoError(t, err)
		defer p.Close()
		p.SetOutput(io.Discard)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err = p.Run(ctx)
		assert.ErrorIs(t, err, context.Canceled)
		assert.NoDirExists(t, flags.OutputDir)
	})
}

func TestRunTTSFallback(t *testing.T) {
	server := testutil.NewFakeOrdnet(t)
	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.Set("tts.openai_base_url", server.URL+"/v1")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	flags := testFlags(t, server.LookupURL(), testutil.WriteVocabFile(t, "xyzzyqq;;;;\n"))
	flags.TTSFallback = true

	summary, err := run(t, flags)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, summary.FallbackAudio)
	require.Len(t, summary.Errors, 1)
	assert.Equal(t, StageLocate, summary.Errors[0].Stage)
	assert.Equal(t, int32(1), server.Speeches.Load())
	assert.FileExists(t, filepath.Join(flags.MediaDir, "xyzzyqq.mp3"))

	// The synthesized file is reused on the next run
	_, err = run(t, flags)
	require.NoError(t, err)
	assert.Equal(t, int32(1), server.Speeches.Load())
}

func TestRunTTSFallbackWithoutKey(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Setenv("OPENAI_API_KEY", "")

	flags := testFlags(t, "http://127.0.0.1:1/ddo/ordbog?query=", testutil.WriteVocabFile(t, "hus;;;;\n"))
	flags.TTSFallback = true

	_, err := NewProcessor(flags)
	assert.ErrorContains(t, err, "OpenAI API key is required")
}

func TestRunAPKG(t *testing.T) {
	server := testutil.NewFakeOrdnet(t)
	flags := testFlags(t, server.LookupURL(), testutil.WriteVocabFile(t, "hus;Huset er stort.;house;The house is big.;huse\n"))
	flags.APKG = true
	flags.DeckName = "Dansk: A2"

	summary, err := run(t, flags)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(flags.OutputDir, "Dansk_ A2.apkg"), summary.APKGFile)
	assert.FileExists(t, summary.APKGFile)
}

type closingRenderer struct {
	dictionary.Renderer
}

func (closingRenderer) Close() error { return nil }

func TestRunCircuitBreakerStopsLookups(t *testing.T) {
	ctrl := gomock.NewController(t)
	renderer := mock_dictionary.NewMockRenderer(ctrl)
	renderer.EXPECT().
		Render(gomock.Any(), gomock.Any()).
		Return("", errors.New("connection refused")).
		Times(2)

	flags := testFlags(t, "http://ordnet.invalid/ddo/ordbog?query=", testutil.WriteVocabFile(t, "en;;;;\nto;;;;\ntre;;;;\nfire;;;;\n"))
	flags.BreakerThreshold = 2

	p, err := NewProcessorWithRenderer(flags, closingRenderer{renderer})
	require.NoError(t, err)
	defer p.Close()
	p.SetOutput(io.Discard)

	summary, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, summary.Partial)
	require.Len(t, summary.Errors, 4)
	for _, e := range summary.Errors {
		assert.Equal(t, StageFetch, e.Stage)
	}
	assert.Contains(t, summary.Errors[3].Reason, "circuit breaker is open")
}

func TestClassify(t *testing.T) {
	record := batch.VocabRecord{Line: 7, Word: "hus"}

	tests := []struct {
		err        error
		wantStage  Stage
		wantReason string
	}{
		{err: &dictionary.FetchError{Word: "hus", Err: errors.New("timeout")}, wantStage: StageFetch, wantReason: "timeout"},
		{err: &dictionary.AudioNotFoundError{Word: "hus", Reason: "none"}, wantStage: StageLocate, wantReason: "none"},
		{err: fmt.Errorf("wrapped: %w", &dictionary.AudioNotFoundError{Word: "hus", Reason: "no link"}), wantStage: StageLocate, wantReason: "no link"},
		{err: &audio.DownloadError{Word: "hus", URL: "http://x/a.mp3", Err: errors.New("reset")}, wantStage: StageDownload, wantReason: "reset"},
		{err: errors.New("boom"), wantStage: StageFetch, wantReason: "boom"},
	}

	for _, tt := range tests {
		got := classify(record, tt.err)
		assert.Equal(t, tt.wantStage, got.Stage)
		assert.Equal(t, 7, got.Row)
		assert.Equal(t, "hus", got.Word)
		assert.Equal(t, tt.wantReason, got.Reason)
	}
}

func TestApkgFilename(t *testing.T) {
	assert.Equal(t, "Danish Vocabulary.apkg", apkgFilename("Danish Vocabulary"))
	assert.Equal(t, "a_b_c.apkg", apkgFilename("a/b:c"))
	assert.Equal(t, "danskrecall.apkg", apkgFilename("  "))
}

func TestVerifyAudio(t *testing.T) {
	mediaDir := t.TempDir()
	testutil.CreateTestFile(t, filepath.Join(mediaDir, "hus.mp3"), testutil.FakeMP3)
	p := &Processor{flags: &cli.Flags{MediaDir: mediaDir}}
	record := batch.VocabRecord{Line: 2, Word: "Hus"}

	filename, missing := p.verifyAudio(record, &audioOutcome{filename: "hus.mp3"})
	assert.Equal(t, "hus.mp3", filename)
	assert.Nil(t, missing)

	filename, missing = p.verifyAudio(record, &audioOutcome{})
	assert.Empty(t, filename)
	assert.Nil(t, missing)

	filename, missing = p.verifyAudio(record, &audioOutcome{filename: "bil.mp3", fallback: true})
	assert.Empty(t, filename)
	require.NotNil(t, missing)
	assert.Equal(t, WordError{
		Row:    2,
		Word:   "Hus",
		Stage:  StageFallback,
		Reason: "bil.mp3 is missing from the media directory",
	}, *missing)
}
