// Package fetch extracts indexable text from web pages.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/domain"
)

const (
	// DefaultTimeout bounds one page fetch end to end.
	DefaultTimeout = 30 * time.Second
	// DefaultMaxBodyBytes caps how much of a page is read.
	DefaultMaxBodyBytes = 10 << 20
	defaultUserAgent    = "ragdex/1.0"
)

// Extractor fetches a page and pulls its paragraph text.
type Extractor struct {
	client    *http.Client
	maxBody   int64
	userAgent string
	logger    *zap.Logger
}

// Config holds the page fetch settings. Zero values pick the defaults.
type Config struct {
	Timeout      time.Duration
	MaxBodyBytes int64
	UserAgent    string
	Logger       *zap.Logger
}

// NewExtractor creates a paragraph text extractor.
func NewExtractor(cfg *Config) *Extractor {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Extractor{
		client:    &http.Client{Timeout: timeout},
		maxBody:   maxBody,
		userAgent: ua,
		logger:    logger,
	}
}

// ExtractText GETs the page and returns the text of its <p> elements,
// trimmed and joined with newlines.
func (e *Extractor) ExtractText(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w: %w", domain.ErrInvalidParameter, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q: %w", u.Scheme, domain.ErrInvalidParameter)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", e.userAgent)

	start := time.Now()

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w: %w", u.Host, domain.ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s: status %d: %w", u.Host, resp.StatusCode, domain.ErrFetchFailed)
	}

	// One extra byte past the cap distinguishes at-limit from over-limit.
	body, err := io.ReadAll(io.LimitReader(resp.Body, e.maxBody+1))
	if err != nil {
		return "", fmt.Errorf("read body: %w: %w", domain.ErrFetchFailed, err)
	}
	if int64(len(body)) > e.maxBody {
		return "", fmt.Errorf("page exceeds %d bytes: %w", e.maxBody, domain.ErrFetchFailed)
	}

	text, err := paragraphText(strings.NewReader(string(body)))
	if err != nil {
		return "", fmt.Errorf("parse %s: %w: %w", u.Host, domain.ErrFetchFailed, err)
	}
	if text == "" {
		return "", fmt.Errorf("page %s yielded no paragraph text: %w", u.Host, domain.ErrFetchFailed)
	}

	e.logger.Debug("Page fetched",
		zap.String("host", u.Host),
		zap.Duration("duration", time.Since(start)),
		zap.Int("bytes", len(body)),
		zap.Int("text_runes", len([]rune(text))),
	)

	return text, nil
}

// paragraphText collects the trimmed text of every <p> element in document order.
func paragraphText(r io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", err
	}

	var paragraphs []string
	doc.Find("p").Each(func(_ int, s *goquery.Selection) {
		if t := strings.TrimSpace(s.Text()); t != "" {
			paragraphs = append(paragraphs, t)
		}
	})

	return strings.TrimSpace(strings.Join(paragraphs, "\n")), nil
}
