// Package webclient holds the HTTP client shared by the dictionary page
// fetcher and the audio downloader, together with their retry policy.
package webclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/avast/retry-go"
	"resty.dev/v3"
)

// DefaultTimeout is the per-request timeout used when none is configured
const DefaultTimeout = 20 * time.Second

// userAgent mimics a desktop browser, ordnet.dk serves reduced markup otherwise
const userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"

// StatusError is returned for responses outside the 2xx range
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code %d from %s", e.StatusCode, e.URL)
}

// PermanentError marks a failure that another attempt cannot fix, such as a
// response body that is not what the caller asked for
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent wraps err so that RetryPolicy.Do gives up immediately
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// New creates a resty client with browser-like headers and a fixed timeout
func New(timeout time.Duration) *resty.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	client := resty.New()
	client.SetTimeout(timeout)
	client.SetHeader("User-Agent", userAgent)
	client.SetHeader("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,audio/mpeg;q=0.8,*/*;q=0.7")
	client.SetHeader("Accept-Language", "da-DK,da;q=0.9,en;q=0.8")
	return client
}

// Get fetches url and returns the response body
func Get(ctx context.Context, client *resty.Client, url string) ([]byte, error) {
	res, err := client.R().
		SetContext(ctx).
		Get(url)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", url, err)
	}
	if res.StatusCode() < http.StatusOK || res.StatusCode() >= http.StatusMultipleChoices {
		return nil, &StatusError{URL: url, StatusCode: res.StatusCode()}
	}
	return res.Bytes(), nil
}

// GetStream fetches url and hands the unbuffered response body to consume.
// The body is closed once consume returns.
func GetStream(ctx context.Context, client *resty.Client, url string, consume func(body io.Reader) error) error {
	res, err := client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(url)
	if err != nil {
		return fmt.Errorf("GET %s: %w", url, err)
	}
	defer res.Body.Close()

	if res.StatusCode() < http.StatusOK || res.StatusCode() >= http.StatusMultipleChoices {
		return &StatusError{URL: url, StatusCode: res.StatusCode()}
	}
	return consume(res.Body)
}

// RetryPolicy retries failed requests a bounded number of times with a fixed delay
type RetryPolicy struct {
	Retries uint
	Delay   time.Duration
}

// DefaultRetryPolicy returns the policy used when nothing is configured
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Retries: 2,
		Delay:   2 * time.Second,
	}
}

// Do runs fn until it succeeds, fails with a non-retryable error or the
// attempts are used up. The last error is returned unchanged.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	return retry.Do(
		func() error {
			err := fn()
			if err != nil && !IsRetryable(err) {
				return retry.Unrecoverable(err)
			}
			return err
		},
		retry.Context(ctx),
		retry.Attempts(p.Retries+1),
		retry.Delay(p.Delay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			slog.Default().Debug("Retrying request", "attempt", n+1, "error", err)
		}),
	)
}

// IsRetryable reports whether a request error is worth another attempt.
// Client errors (4xx except 429), permanent errors and cancellation are final.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var permanent *PermanentError
	if errors.As(err, &permanent) {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusTooManyRequests || statusErr.StatusCode >= http.StatusInternalServerError
	}
	return true
}
