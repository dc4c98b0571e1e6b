package audio

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"time"

	"resty.dev/v3"

	"codeberg.org/snonux/danskrecall/internal"
	"codeberg.org/snonux/danskrecall/internal/webclient"
)

// DefaultMaxSizeBytes caps a single download. Pronunciation clips are a few KiB.
const DefaultMaxSizeBytes = 10 << 20

// sniffLen is the number of leading bytes inspected before a body is stored
const sniffLen = 512

// DownloadError is returned when an audio file could not be stored
type DownloadError struct {
	Word string
	URL  string
	Err  error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("failed to download audio for %q from %s: %v", e.Word, e.URL, e.Err)
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}

// DownloadOptions configures the Downloader
type DownloadOptions struct {
	Timeout      time.Duration
	Retry        webclient.RetryPolicy
	MaxSizeBytes int64
}

// DefaultDownloadOptions returns sensible defaults
func DefaultDownloadOptions() *DownloadOptions {
	return &DownloadOptions{
		Timeout:      webclient.DefaultTimeout,
		Retry:        webclient.DefaultRetryPolicy(),
		MaxSizeBytes: DefaultMaxSizeBytes,
	}
}

// Downloader stores pronunciation recordings in the Anki media directory
type Downloader struct {
	client       *resty.Client
	options      *DownloadOptions
	networkCalls int
}

// NewDownloader creates a downloader
func NewDownloader(options *DownloadOptions) *Downloader {
	if options == nil {
		options = DefaultDownloadOptions()
	}
	return &Downloader{
		client:  webclient.New(options.Timeout),
		options: options,
	}
}

// Close releases the underlying HTTP client
func (d *Downloader) Close() error {
	return d.client.Close()
}

// NetworkCalls returns the number of HTTP requests issued so far
func (d *Downloader) NetworkCalls() int {
	return d.networkCalls
}

// AudioFilename derives the media filename for word. The extension follows
// the source URL when it names a known audio format.
func AudioFilename(word, audioURL string) string {
	clean := internal.CleanWord(word)
	if clean == "" {
		return ""
	}
	return clean + audioExtension(audioURL)
}

func audioExtension(audioURL string) string {
	parsed, err := url.Parse(audioURL)
	if err != nil {
		return ".mp3"
	}
	switch ext := strings.ToLower(path.Ext(parsed.Path)); ext {
	case ".mp3", ".wav", ".ogg", ".m4a", ".flac":
		return ext
	default:
		return ".mp3"
	}
}

// DownloadAudio fetches audioURL into mediaDir and returns the stored
// filename. An existing file is reused without any request.
func (d *Downloader) DownloadAudio(ctx context.Context, audioURL, word, mediaDir string) (string, error) {
	filename := AudioFilename(word, audioURL)
	if filename == "" {
		return "", &DownloadError{Word: word, URL: audioURL, Err: internal.ErrNoLetters}
	}

	outputPath := filepath.Join(mediaDir, filename)
	if internal.FileExists(outputPath) {
		slog.Default().Debug("Audio already present", "word", word, "path", outputPath)
		return filename, nil
	}

	var size int64
	err := d.options.Retry.Do(ctx, func() error {
		d.networkCalls++
		return webclient.GetStream(ctx, d.client, audioURL, func(body io.Reader) error {
			return internal.WriteAtomic(outputPath, func(w io.Writer) error {
				var err error
				size, err = copyAudio(w, body, d.options.MaxSizeBytes)
				return err
			})
		})
	})
	if err != nil {
		return "", &DownloadError{Word: word, URL: audioURL, Err: err}
	}

	slog.Default().Debug("Audio stored", "word", word, "path", outputPath, "bytes", size)
	return filename, nil
}

// copyAudio validates the head of body and copies at most maxSize bytes of
// it to w. Reading stops as soon as the limit is crossed.
func copyAudio(w io.Writer, body io.Reader, maxSize int64) (int64, error) {
	reader := bufio.NewReaderSize(body, sniffLen)
	head, err := reader.Peek(sniffLen)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return 0, err
	}
	if err := ValidateAudioData(head); err != nil {
		return 0, webclient.Permanent(err)
	}

	src := io.Reader(reader)
	if maxSize > 0 {
		src = io.LimitReader(reader, maxSize+1)
	}
	n, err := io.Copy(w, src)
	if err != nil {
		return n, err
	}
	if maxSize > 0 && n > maxSize {
		return n, webclient.Permanent(fmt.Errorf("audio exceeds the size limit of %d bytes", maxSize))
	}
	return n, nil
}
