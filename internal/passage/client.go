// Package passage fetches Bible passage text from the ESV API, with a
// cache in front of it.
package passage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/hazyhaar/scribby/internal/study"
)

var (
	ErrNoAPIKey = errors.New("ESV API key not configured")
	ErrNotFound = errors.New("no passage found")
)

// Cache stores passage texts by normalized reference.
type Cache interface {
	GetPassage(ctx context.Context, reference string) (string, bool, error)
	PutPassage(ctx context.Context, reference, text string) error
}

// Config configures a Client.
type Config struct {
	APIKey          string
	BaseURL         string
	IncludeHeadings bool
	Timeout         time.Duration
}

// Client looks passages up in the cache, then in the ESV API.
type Client struct {
	cfg    Config
	hc     *http.Client
	cache  Cache
	logger *slog.Logger
}

// New creates a client. cache may be nil.
func New(cfg Config, cache Cache, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.esv.org/v3/passage/text/"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		hc:     &http.Client{Timeout: cfg.Timeout},
		cache:  cache,
		logger: logger.With("component", "passage"),
	}
}

// Fetch returns the passage text for reference.
func (c *Client) Fetch(ctx context.Context, reference string) (string, error) {
	ref := study.NormalizeReference(reference)
	if ref == "" {
		return "", fmt.Errorf("%w: empty reference", ErrNotFound)
	}

	if c.cache != nil {
		text, ok, err := c.cache.GetPassage(ctx, ref)
		switch {
		case err != nil:
			c.logger.Warn("passage cache read failed", "reference", ref, "error", err)
		case ok:
			return text, nil
		}
	}

	if c.cfg.APIKey == "" {
		return "", ErrNoAPIKey
	}
	text, err := c.fetchRemote(ctx, ref)
	if err != nil {
		return "", err
	}

	if c.cache != nil {
		if err := c.cache.PutPassage(ctx, ref, text); err != nil {
			c.logger.Warn("passage cache write failed", "reference", ref, "error", err)
		}
	}
	return text, nil
}

func (c *Client) fetchRemote(ctx context.Context, ref string) (string, error) {
	headings := strconv.FormatBool(c.cfg.IncludeHeadings)
	q := url.Values{}
	q.Set("q", ref)
	q.Set("include-headings", headings)
	q.Set("include-footnotes", "false")
	q.Set("include-verse-numbers", "true")
	q.Set("include-short-copyright", "true")
	q.Set("include-passage-references", headings)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("building ESV request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+c.cfg.APIKey)

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("connecting to ESV API: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading ESV response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetching passage: HTTP %d", resp.StatusCode)
	}

	text := strings.TrimSpace(gjson.GetBytes(body, "passages.0").String())
	if text == "" {
		return "", fmt.Errorf("%w for: %s", ErrNotFound, ref)
	}
	c.logger.Debug("passage fetched", "reference", ref, "latency", time.Since(start))
	return text, nil
}
