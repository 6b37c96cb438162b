// Package shownotes fetches the Apple Podcasts episode page for a
// submission's creator-supplied notes, seeding source_context per spec.md
// §4.5 step 3. A failure here is never fatal to a submission — the caller
// simply proceeds with source_context left unset.
package shownotes

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"scribe/internal/retry"
)

// errTransient marks a fetch failure as eligible for retry: a 5xx response
// or a network timeout, per spec.md §7.
var errTransient = errors.New("transient show notes fetch error")

const (
	maxPageBytes  = 2 << 20
	requestBudget = 15 * time.Second
	retryAttempts = 3
	backoffBase   = 5 * time.Second
)

// Fetcher retrieves and extracts Apple Podcasts show notes over HTTP.
type Fetcher struct {
	client *http.Client
}

// New builds a Fetcher with a bounded per-request HTTP client.
func New() *Fetcher {
	return &Fetcher{client: &http.Client{Timeout: requestBudget}}
}

// Fetch retries up to retryAttempts times on transient failure before
// giving up, per spec.md §7's "3 times on 5xx/timeout" policy.
func (f *Fetcher) Fetch(ctx context.Context, episodeURL string) (string, error) {
	delays := retry.Schedule(backoffBase, retryAttempts)

	var notes string
	err := retry.Do(ctx, delays, func(err error) bool { return errors.Is(err, errTransient) }, func() error {
		text, ferr := f.fetchOnce(ctx, episodeURL)
		if ferr != nil {
			return ferr
		}
		notes = text
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("fetch show notes: %w", err)
	}
	return notes, nil
}

func (f *Fetcher) fetchOnce(ctx context.Context, episodeURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, episodeURL, nil)
	if err != nil {
		return "", err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return "", fmt.Errorf("%w: %v", errTransient, err)
		}
		return "", fmt.Errorf("request show notes page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return "", fmt.Errorf("%w: show notes page status %d", errTransient, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("show notes page status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", fmt.Errorf("%w: read show notes page: %v", errTransient, err)
	}

	desc := extractDescription(string(body))
	if desc == "" {
		return "", fmt.Errorf("no show notes found on page")
	}
	return desc, nil
}

// extractDescription walks the parsed page for the first og:description or
// description meta tag, the field Apple Podcasts populates with the
// episode's show notes summary.
func extractDescription(body string) string {
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return ""
	}

	var found string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if found != "" {
			return
		}
		if n.Type == html.ElementNode && n.DataAtom == atom.Meta {
			var name, content string
			for _, attr := range n.Attr {
				switch attr.Key {
				case "property", "name":
					name = attr.Val
				case "content":
					content = attr.Val
				}
			}
			if name == "og:description" || name == "description" {
				found = content
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return strings.TrimSpace(found)
}
