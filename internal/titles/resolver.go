// Package titles resolves a human-readable title for a download whose request
// did not carry one, by fetching the page and reading its metadata.
package titles

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
)

const fetchTimeout = 5 * time.Second

// Resolver fetches page titles over HTTP.
type Resolver struct {
	client *http.Client
	logger zerolog.Logger
}

// NewResolver creates a resolver with a bounded-timeout HTTP client.
func NewResolver(logger zerolog.Logger) *Resolver {
	return &Resolver{
		client: &http.Client{Timeout: fetchTimeout},
		logger: logger.With().Str("component", "titles").Logger(),
	}
}

// Resolve returns the page's og:title, falling back to the <title> element.
// Errors are expected here; callers fall back to a default title.
func (r *Resolver) Resolve(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "fasttube/1.0")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", err
	}

	if og, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok {
		if title := strings.TrimSpace(og); title != "" {
			return title, nil
		}
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		return "", fmt.Errorf("no title found")
	}
	return title, nil
}
