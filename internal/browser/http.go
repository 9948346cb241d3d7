package browser

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
)

type HTTPOptions struct {
	AllowedDomains []string
	UserAgent      string
	AcceptLanguage string
	Timeout        time.Duration
}

func DefaultHTTPOptions() HTTPOptions {
	return HTTPOptions{
		AllowedDomains: []string{"www.amazon.com", "amazon.com"},
		UserAgent:      DefaultOptions().UserAgent,
		AcceptLanguage: "en-US,en;q=0.9",
		Timeout:        30 * time.Second,
	}
}

// DomainsFor returns the hosts a fetcher for baseURL may visit: the host
// itself and its www or bare counterpart.
func DomainsFor(baseURL string) ([]string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url %q: %w", baseURL, err)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return nil, fmt.Errorf("invalid base url %q: no host", baseURL)
	}

	domains := []string{host}
	switch {
	case strings.HasPrefix(host, "www."):
		domains = append(domains, strings.TrimPrefix(host, "www."))
	case net.ParseIP(host) == nil && strings.Contains(host, "."):
		domains = append(domains, "www."+host)
	}
	return domains, nil
}

// HTTPFetcher loads pages with a plain HTTP client. Pages are not rendered,
// which is enough for server-side rendered search and detail pages.
type HTTPFetcher struct {
	collector *colly.Collector
	opts      HTTPOptions
	logger    *slog.Logger
}

func NewHTTPFetcher(opts HTTPOptions, logger *slog.Logger) *HTTPFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}

	c := colly.NewCollector(
		colly.UserAgent(opts.UserAgent),
		colly.AllowURLRevisit(),
	)
	if len(opts.AllowedDomains) > 0 {
		c.AllowedDomains = opts.AllowedDomains
	}
	c.SetRequestTimeout(opts.Timeout)

	return &HTTPFetcher{
		collector: c,
		opts:      opts,
		logger:    logger.With("component", "http_fetcher"),
	}
}

// FetchHTML performs one GET. Callbacks are registered on a clone so
// concurrent fetches do not share state.
func (f *HTTPFetcher) FetchHTML(ctx context.Context, url string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	c := f.collector.Clone()

	var body []byte
	c.OnRequest(func(r *colly.Request) {
		if f.opts.AcceptLanguage != "" {
			r.Headers.Set("Accept-Language", f.opts.AcceptLanguage)
		}
		if ctx.Err() != nil {
			r.Abort()
		}
	})
	c.OnResponse(func(r *colly.Response) {
		body = r.Body
	})

	start := time.Now()
	if err := c.Visit(url); err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if body == nil {
		return "", fmt.Errorf("failed to fetch %s: empty response", url)
	}

	f.logger.Debug("page fetched", "url", url, "bytes", len(body), "elapsed", time.Since(start))
	return string(body), nil
}

func (f *HTTPFetcher) Options() HTTPOptions {
	return f.opts
}

func (f *HTTPFetcher) Close() error {
	return nil
}
