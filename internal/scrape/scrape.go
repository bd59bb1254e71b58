// Package scrape fetches requirement source URLs and extracts readable text.
package scrape

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/forge/internal/logging"
	"github.com/fyrsmithlabs/forge/internal/pipeline"
)

const (
	defaultConcurrency  = 4
	defaultPerHostRate  = 2
	defaultMaxBodyBytes = 2 << 20
	defaultUserAgent    = "forge/1.0 (+https://github.com/fyrsmithlabs/forge)"
)

// ErrBodyTooLarge is returned for responses larger than the configured cap.
var ErrBodyTooLarge = errors.New("response body too large")

// HTTPScraper fetches every source URL of a requirement. Failing sources are
// skipped with a warning; missing context never fails a run.
type HTTPScraper struct {
	client       *http.Client
	logger       *logging.Logger
	concurrency  int
	perHostRate  rate.Limit
	maxBodyBytes int64
	userAgent    string
	publicOnly   bool

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// Option configures an HTTPScraper.
type Option func(*HTTPScraper)

func WithHTTPClient(c *http.Client) Option {
	return func(s *HTTPScraper) {
		if c != nil {
			s.client = c
		}
	}
}

func WithLogger(l *logging.Logger) Option {
	return func(s *HTTPScraper) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithConcurrency bounds simultaneous fetches.
func WithConcurrency(n int) Option {
	return func(s *HTTPScraper) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithPerHostRate limits requests per second to any single host.
func WithPerHostRate(perSecond float64) Option {
	return func(s *HTTPScraper) {
		if perSecond > 0 {
			s.perHostRate = rate.Limit(perSecond)
		}
	}
}

func WithMaxBodyBytes(n int64) Option {
	return func(s *HTTPScraper) {
		if n > 0 {
			s.maxBodyBytes = n
		}
	}
}

func WithUserAgent(ua string) Option {
	return func(s *HTTPScraper) {
		if ua != "" {
			s.userAgent = ua
		}
	}
}

// WithTimeout sets the per-request timeout of the default client.
func WithTimeout(d time.Duration) Option {
	return func(s *HTTPScraper) {
		if d > 0 {
			s.client = &http.Client{Timeout: d}
		}
	}
}

// WithPublicOnly restricts fetches to public addresses. Use it when sources
// come from untrusted callers.
func WithPublicOnly() Option {
	return func(s *HTTPScraper) {
		s.publicOnly = true
	}
}

func New(opts ...Option) *HTTPScraper {
	s := &HTTPScraper{
		client:       &http.Client{Timeout: 15 * time.Second},
		logger:       logging.NewNop(),
		concurrency:  defaultConcurrency,
		perHostRate:  defaultPerHostRate,
		maxBodyBytes: defaultMaxBodyBytes,
		userAgent:    defaultUserAgent,
		limiters:     make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.publicOnly {
		s.client = publicOnlyClient(s.client)
	}
	return s
}

// Scrape fetches spec.Sources and returns documents in source order. Only
// cancellation of ctx is an error.
func (s *HTTPScraper) Scrape(ctx context.Context, spec pipeline.RequirementSpec) ([]pipeline.Document, error) {
	sources := dedupe(spec.Sources)
	if len(sources) == 0 {
		return nil, nil
	}

	results := make([]*pipeline.Document, len(sources))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i, src := range sources {
		g.Go(func() error {
			doc, err := s.fetch(gctx, src)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				s.logger.Warn(ctx, "skipping source",
					zap.String("url", src),
					zap.Error(err),
				)
				return nil
			}
			results[i] = doc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	docs := make([]pipeline.Document, 0, len(results))
	for _, d := range results {
		if d != nil {
			docs = append(docs, *d)
		}
	}
	s.logger.Debug(ctx, "sources scraped",
		zap.Int("requested", len(sources)),
		zap.Int("fetched", len(docs)),
	)
	return docs, nil
}

func (s *HTTPScraper) fetch(ctx context.Context, src string) (*pipeline.Document, error) {
	u, err := url.Parse(src)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if s.publicOnly {
		if err := checkHost(u.Hostname()); err != nil {
			return nil, err
		}
	}

	if err := s.limiter(u.Host).Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "text/html,text/plain;q=0.9,*/*;q=0.5")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("http status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if int64(len(body)) > s.maxBodyBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrBodyTooLarge, s.maxBodyBytes)
	}

	title, text, err := extract(resp.Header.Get("Content-Type"), body)
	if err != nil {
		return nil, err
	}
	if text == "" {
		return nil, errors.New("no readable text")
	}

	return &pipeline.Document{
		URL:       src,
		Title:     title,
		Text:      text,
		FetchedAt: time.Now().UTC(),
	}, nil
}

func (s *HTTPScraper) limiter(host string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.limiters[host]
	if !ok {
		l = rate.NewLimiter(s.perHostRate, 1)
		s.limiters[host] = l
	}
	return l
}

func extract(contentType string, body []byte) (title, text string, err error) {
	mediaType, _, _ := mime.ParseMediaType(contentType)
	switch {
	case mediaType == "" || mediaType == "text/html" || mediaType == "application/xhtml+xml":
		return extractHTML(body)
	case strings.HasPrefix(mediaType, "text/"), mediaType == "application/json":
		return "", strings.TrimSpace(string(body)), nil
	default:
		return "", "", fmt.Errorf("unsupported content type %q", mediaType)
	}
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
