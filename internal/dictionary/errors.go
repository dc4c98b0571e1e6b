package dictionary

import (
	"fmt"
)

// FetchError reports a failed page lookup for a single word
type FetchError struct {
	Word string
	URL  string
	Err  error
}

func (e *FetchError) Error() string {
	if e.URL == "" {
		return fmt.Sprintf("failed to fetch page for %q: %v", e.Word, e.Err)
	}
	return fmt.Sprintf("failed to fetch page for %q from %s: %v", e.Word, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// AudioNotFoundError reports a page without a usable pronunciation link
type AudioNotFoundError struct {
	Word   string
	Reason string
}

func (e *AudioNotFoundError) Error() string {
	return fmt.Sprintf("no pronunciation audio for %q: %s", e.Word, e.Reason)
}
