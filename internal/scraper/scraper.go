package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/maltedev/amazon-catalog-parser/internal/assembler"
	"github.com/maltedev/amazon-catalog-parser/internal/coerce"
	"github.com/maltedev/amazon-catalog-parser/internal/models"
	"github.com/maltedev/amazon-catalog-parser/internal/parser"
	"github.com/maltedev/amazon-catalog-parser/internal/ratelimit"
)

var (
	ErrEmptyQuery  = errors.New("search query is empty")
	ErrInvalidASIN = errors.New("invalid ASIN")
)

// PageFetcher loads the HTML of one page.
type PageFetcher interface {
	FetchHTML(ctx context.Context, url string) (string, error)
}

// feedbackLimiter is implemented by limiters that adapt to fetch outcomes.
type feedbackLimiter interface {
	RecordSuccess()
	RecordError()
}

type Options struct {
	BaseURL  string
	MaxPages int
	// Backend names the extraction backend in the run metadata.
	Backend string
}

func DefaultOptions() Options {
	return Options{
		BaseURL:  parser.DefaultBaseURL,
		MaxPages: 2,
		Backend:  "rule_based",
	}
}

// Service runs searches and detail lookups and hands every raw item to
// the assembler.
type Service struct {
	fetcher   PageFetcher
	parser    parser.Parser
	assembler *assembler.Assembler
	limiter   ratelimit.RateLimiter
	opts      Options
	logger    *slog.Logger
}

func NewService(fetcher PageFetcher, p parser.Parser, a *assembler.Assembler, limiter ratelimit.RateLimiter, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if limiter == nil {
		limiter = ratelimit.Unlimited()
	}
	defaults := DefaultOptions()
	if opts.BaseURL == "" {
		opts.BaseURL = defaults.BaseURL
	}
	if opts.MaxPages < 1 {
		opts.MaxPages = defaults.MaxPages
	}
	if opts.Backend == "" {
		opts.Backend = defaults.Backend
	}

	return &Service{
		fetcher:   fetcher,
		parser:    p,
		assembler: a,
		limiter:   limiter,
		opts:      opts,
		logger:    logger.With("component", "scraper"),
	}
}

func (s *Service) Options() Options {
	return s.opts
}

// SearchProducts walks the result pages of query. It stops at the first
// page without items. A failed page ends the run unsuccessfully but the
// items collected so far are still assembled.
func (s *Service) SearchProducts(ctx context.Context, query string, maxPages int) models.Envelope {
	start := time.Now()
	query = strings.TrimSpace(query)
	if maxPages < 1 {
		maxPages = s.opts.MaxPages
	}

	run := assembler.RunContext{
		Query:     query,
		SearchURL: parser.CleanURL(parser.SearchURL(s.opts.BaseURL, query, 1)),
		Backend:   s.opts.Backend,
		StartedAt: start,
	}
	if query == "" {
		run.BackendErr = ErrEmptyQuery
		return s.finish(nil, run, start)
	}

	var items []models.RawItem
	for page := 1; page <= maxPages; page++ {
		pageItems, err := s.searchPage(ctx, query, page)
		if err != nil {
			s.logger.Warn("search page failed", "query", query, "page", page, "error", err)
			run.BackendErr = fmt.Errorf("page %d: %w", page, err)
			break
		}
		run.Pages = page
		s.logger.Debug("search page parsed", "query", query, "page", page, "items", len(pageItems))
		if len(pageItems) == 0 {
			break
		}
		items = append(items, pageItems...)
	}

	return s.finish(items, run, start)
}

func (s *Service) searchPage(ctx context.Context, query string, page int) ([]models.RawItem, error) {
	html, err := s.fetch(ctx, parser.SearchURL(s.opts.BaseURL, query, page))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch search page: %w", err)
	}

	items, err := s.parser.ParseSearchResults(html)
	if err != nil {
		return nil, fmt.Errorf("failed to parse search page: %w", err)
	}
	return items, nil
}

// ProductDetails fetches the detail page of one ASIN.
func (s *Service) ProductDetails(ctx context.Context, asin string) models.Envelope {
	start := time.Now()
	run := assembler.RunContext{
		Backend:   s.opts.Backend,
		StartedAt: start,
	}

	normalized, err := coerce.ASIN(models.Text(asin))
	if err != nil {
		run.BackendErr = fmt.Errorf("%w: %q", ErrInvalidASIN, asin)
		return s.finish(nil, run, start)
	}
	run.Query = normalized
	run.SearchURL = parser.ProductURL(s.opts.BaseURL, normalized)

	item, err := s.productPage(ctx, normalized, run.SearchURL)
	if err != nil {
		s.logger.Warn("product page failed", "asin", normalized, "error", err)
		run.BackendErr = err
		return s.finish(nil, run, start)
	}
	run.Pages = 1

	return s.finish([]models.RawItem{item}, run, start)
}

func (s *Service) productPage(ctx context.Context, asin, url string) (models.RawItem, error) {
	html, err := s.fetch(ctx, url)
	if err != nil {
		return models.RawItem{}, fmt.Errorf("failed to fetch product page: %w", err)
	}

	item, err := s.parser.ParseProductPage(html, asin)
	if err != nil {
		return models.RawItem{}, fmt.Errorf("failed to parse product page: %w", err)
	}
	return item, nil
}

func (s *Service) fetch(ctx context.Context, url string) (string, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return "", err
	}

	html, err := s.fetcher.FetchHTML(ctx, url)
	if fl, ok := s.limiter.(feedbackLimiter); ok {
		if err != nil && ctx.Err() == nil {
			fl.RecordError()
		} else if err == nil {
			fl.RecordSuccess()
		}
	}
	return html, err
}

// AssembleRaw assembles items produced by any external backend.
func (s *Service) AssembleRaw(items []models.RawItem, query string, costUSD *float64) models.Envelope {
	return s.assembler.Assemble(items, assembler.RunContext{
		Query:   strings.TrimSpace(query),
		CostUSD: costUSD,
		Backend: "external",
	})
}

func (s *Service) finish(items []models.RawItem, run assembler.RunContext, start time.Time) models.Envelope {
	env := s.assembler.Assemble(items, run)
	env.Metadata.Elapsed = time.Since(start)
	return env
}
