package audio

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/snonux/danskrecall/internal"
	"codeberg.org/snonux/danskrecall/internal/webclient"
)

var fakeMP3 = []byte("ID3\x04\x00\x00\x00\x00\x00\x00fake mp3 payload")

func testOptions() *DownloadOptions {
	return &DownloadOptions{
		Timeout:      2 * time.Second,
		Retry:        webclient.RetryPolicy{Retries: 1, Delay: time.Millisecond},
		MaxSizeBytes: DefaultMaxSizeBytes,
	}
}

func TestAudioFilename(t *testing.T) {
	tests := []struct {
		word string
		url  string
		want string
	}{
		{word: "hus", url: "https://static.ordnet.dk/mp3/11019/11019540_1.mp3", want: "hus.mp3"},
		{word: "Ærø", url: "https://example.com/a.MP3", want: "ærø.mp3"},
		{word: "hus", url: "https://example.com/a.wav", want: "hus.wav"},
		{word: "hus", url: "https://example.com/play?id=1", want: "hus.mp3"},
		{word: "et hus", url: "https://example.com/a.ogg?x=1", want: "ethus.ogg"},
		{word: "123", url: "https://example.com/a.mp3", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.word+" "+tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, AudioFilename(tt.word, tt.url))
		})
	}
}

func TestDownloadAudio(t *testing.T) {
	t.Run("stores file and returns filename", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "audio/mpeg")
			_, _ = w.Write(fakeMP3)
		}))
		defer server.Close()

		mediaDir := filepath.Join(t.TempDir(), "collection.media")
		d := NewDownloader(testOptions())
		defer d.Close()

		filename, err := d.DownloadAudio(context.Background(), server.URL+"/11019540_1.mp3", "hus", mediaDir)
		require.NoError(t, err)
		assert.Equal(t, "hus.mp3", filename)

		data, err := os.ReadFile(filepath.Join(mediaDir, "hus.mp3"))
		require.NoError(t, err)
		assert.Equal(t, fakeMP3, data)
		assert.Equal(t, 1, d.NetworkCalls())
	})

	t.Run("existing file skips request", func(t *testing.T) {
		requests := 0
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requests++
			_, _ = w.Write(fakeMP3)
		}))
		defer server.Close()

		mediaDir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(mediaDir, "hus.mp3"), []byte("old"), 0644))

		d := NewDownloader(testOptions())
		defer d.Close()

		filename, err := d.DownloadAudio(context.Background(), server.URL+"/x.mp3", "hus", mediaDir)
		require.NoError(t, err)
		assert.Equal(t, "hus.mp3", filename)
		assert.Equal(t, 0, requests)
		assert.Equal(t, 0, d.NetworkCalls())

		data, err := os.ReadFile(filepath.Join(mediaDir, "hus.mp3"))
		require.NoError(t, err)
		assert.Equal(t, "old", string(data))
	})

	t.Run("not found is not retried", func(t *testing.T) {
		requests := 0
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requests++
			http.NotFound(w, r)
		}))
		defer server.Close()

		mediaDir := t.TempDir()
		d := NewDownloader(testOptions())
		defer d.Close()

		_, err := d.DownloadAudio(context.Background(), server.URL+"/missing.mp3", "hus", mediaDir)
		require.Error(t, err)

		var downloadErr *DownloadError
		require.True(t, errors.As(err, &downloadErr))
		assert.Equal(t, "hus", downloadErr.Word)

		var statusErr *webclient.StatusError
		require.True(t, errors.As(err, &statusErr))
		assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
		assert.Equal(t, 1, requests)
		assert.NoFileExists(t, filepath.Join(mediaDir, "hus.mp3"))
	})

	t.Run("server error is retried", func(t *testing.T) {
		requests := 0
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requests++
			if requests == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			_, _ = w.Write(fakeMP3)
		}))
		defer server.Close()

		d := NewDownloader(testOptions())
		defer d.Close()

		filename, err := d.DownloadAudio(context.Background(), server.URL+"/a.mp3", "hus", t.TempDir())
		require.NoError(t, err)
		assert.Equal(t, "hus.mp3", filename)
		assert.Equal(t, 2, requests)
		assert.Equal(t, 2, d.NetworkCalls())
	})

	t.Run("html body is rejected", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("<html><body>Siden findes ikke</body></html>"))
		}))
		defer server.Close()

		mediaDir := t.TempDir()
		d := NewDownloader(testOptions())
		defer d.Close()

		_, err := d.DownloadAudio(context.Background(), server.URL+"/a.mp3", "hus", mediaDir)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "received markup instead of audio")
		assert.Equal(t, 1, d.NetworkCalls())
		assert.NoFileExists(t, filepath.Join(mediaDir, "hus.mp3"))
	})

	t.Run("oversized body is rejected", func(t *testing.T) {
		requests := 0
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requests++
			_, _ = w.Write(fakeMP3)
		}))
		defer server.Close()

		mediaDir := t.TempDir()
		options := testOptions()
		options.MaxSizeBytes = 4
		d := NewDownloader(options)
		defer d.Close()

		_, err := d.DownloadAudio(context.Background(), server.URL+"/a.mp3", "hus", mediaDir)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "size limit of 4 bytes")
		assert.Equal(t, 1, requests)
		assert.NoFileExists(t, filepath.Join(mediaDir, "hus.mp3"))
	})

	t.Run("endless body stops at the limit", func(t *testing.T) {
		var written atomic.Int64
		done := make(chan struct{})
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer close(done)
			w.Header().Set("Content-Type", "audio/mpeg")
			chunk := make([]byte, 32<<10)
			copy(chunk, fakeMP3)
			for i := 0; i < 8192; i++ {
				n, err := w.Write(chunk)
				written.Add(int64(n))
				if err != nil {
					return
				}
				w.(http.Flusher).Flush()
			}
		}))
		defer server.Close()

		mediaDir := t.TempDir()
		options := testOptions()
		options.MaxSizeBytes = 64 << 10
		d := NewDownloader(options)
		defer d.Close()

		_, err := d.DownloadAudio(context.Background(), server.URL+"/a.mp3", "hus", mediaDir)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "size limit of 65536 bytes")
		assert.Equal(t, 1, d.NetworkCalls())
		assert.NoFileExists(t, filepath.Join(mediaDir, "hus.mp3"))

		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("server kept streaming after the client gave up")
		}
		// 8192 chunks would be 256 MiB
		assert.Less(t, written.Load(), int64(64<<20))
	})

	t.Run("word without letters", func(t *testing.T) {
		d := NewDownloader(testOptions())
		defer d.Close()

		_, err := d.DownloadAudio(context.Background(), "http://127.0.0.1:1/a.mp3", "42", t.TempDir())
		assert.ErrorIs(t, err, internal.ErrNoLetters)
		assert.Equal(t, 0, d.NetworkCalls())
	})
}
