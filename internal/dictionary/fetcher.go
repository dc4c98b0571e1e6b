package dictionary

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"codeberg.org/snonux/danskrecall/internal"
	"codeberg.org/snonux/danskrecall/internal/webclient"
)

// DefaultBaseURL is the DDO lookup endpoint, the word is appended as query
const DefaultBaseURL = "https://ordnet.dk/ddo/ordbog?query="

// Config configures a Fetcher
type Config struct {
	BaseURL      string
	CacheDir     string
	RefreshCache bool // ignore cached pages and overwrite them
	Retry        webclient.RetryPolicy

	// BreakerThreshold is the number of consecutive network failures after
	// which further lookups fail fast. Zero disables the breaker.
	BreakerThreshold uint32
	BreakerTimeout   time.Duration
}

// DefaultConfig returns the fetcher defaults
func DefaultConfig() Config {
	return Config{
		BaseURL:          DefaultBaseURL,
		CacheDir:         "cache/html_pages",
		Retry:            webclient.DefaultRetryPolicy(),
		BreakerThreshold: 5,
		BreakerTimeout:   30 * time.Second,
	}
}

// Fetcher looks up dictionary pages through the page cache
type Fetcher struct {
	renderer     Renderer
	cache        *FileCache
	config       Config
	breaker      *gobreaker.CircuitBreaker
	networkCalls int
}

// NewFetcher creates a page fetcher backed by renderer
func NewFetcher(renderer Renderer, config Config) *Fetcher {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}

	f := &Fetcher{
		renderer: renderer,
		cache:    NewFileCache(config.CacheDir),
		config:   config,
	}

	if config.BreakerThreshold > 0 {
		threshold := config.BreakerThreshold
		f.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "dictionary",
			MaxRequests: 1,
			Timeout:     config.BreakerTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				slog.Default().Warn("Dictionary circuit breaker changed state",
					"from", from.String(),
					"to", to.String())
			},
		})
	}

	return f
}

// LookupURL returns the page URL for an already cleaned word
func (f *Fetcher) LookupURL(cleanWord string) string {
	return f.config.BaseURL + url.QueryEscape(cleanWord)
}

// NetworkCalls returns how many render attempts hit the network so far
func (f *Fetcher) NetworkCalls() int {
	return f.networkCalls
}

// FetchPage returns the lookup page for word, from the cache when present
func (f *Fetcher) FetchPage(ctx context.Context, word string) (string, error) {
	clean := internal.CleanWord(word)
	if clean == "" {
		return "", &FetchError{Word: word, Err: internal.ErrNoLetters}
	}

	if !f.config.RefreshCache {
		contents, ok, err := f.cache.Get(clean)
		if err != nil {
			return "", &FetchError{Word: word, Err: fmt.Errorf("cache.Get > %w", err)}
		}
		if ok {
			slog.Default().Debug("Page cache hit", "word", clean)
			return string(contents), nil
		}
	}

	pageURL := f.LookupURL(clean)
	html, err := f.render(ctx, pageURL)
	if err != nil {
		return "", &FetchError{Word: word, URL: pageURL, Err: err}
	}

	if err := f.cache.Put(clean, []byte(html)); err != nil {
		// The page is still usable for this run
		slog.Default().Warn("Failed to cache page", "word", clean, "error", err)
	}
	return html, nil
}

// render fetches pageURL with retries, guarded by the circuit breaker
func (f *Fetcher) render(ctx context.Context, pageURL string) (string, error) {
	fetch := func() (interface{}, error) {
		var html string
		err := f.config.Retry.Do(ctx, func() error {
			f.networkCalls++
			var err error
			html, err = f.renderer.Render(ctx, pageURL)
			return err
		})
		return html, err
	}

	if f.breaker == nil {
		html, err := fetch()
		if err != nil {
			return "", err
		}
		return html.(string), nil
	}

	html, err := f.breaker.Execute(fetch)
	if err != nil {
		return "", err
	}
	return html.(string), nil
}
