package dictionary

import (
	"context"
	"time"

	"resty.dev/v3"

	"codeberg.org/snonux/danskrecall/internal/webclient"
)

//go:generate mockgen -source=renderer.go -destination=../mocks/dictionary/mock_renderer.go -package=mock_dictionary

// Renderer turns a lookup URL into page markup
type Renderer interface {
	Render(ctx context.Context, url string) (string, error)
}

// HTTPRenderer fetches pages with a plain HTTP GET. The DDO lookup pages are
// server rendered, so this is enough unless the site changes.
type HTTPRenderer struct {
	client *resty.Client
}

// NewHTTPRenderer creates a renderer with the given per-request timeout
func NewHTTPRenderer(timeout time.Duration) *HTTPRenderer {
	return &HTTPRenderer{
		client: webclient.New(timeout),
	}
}

func (r *HTTPRenderer) Render(ctx context.Context, url string) (string, error) {
	body, err := webclient.Get(ctx, r.client, url)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (r *HTTPRenderer) Close() error {
	return r.client.Close()
}
