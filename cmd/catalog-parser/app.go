package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/maltedev/amazon-catalog-parser/internal/assembler"
	"github.com/maltedev/amazon-catalog-parser/internal/browser"
	"github.com/maltedev/amazon-catalog-parser/internal/config"
	"github.com/maltedev/amazon-catalog-parser/internal/database"
	"github.com/maltedev/amazon-catalog-parser/internal/events"
	"github.com/maltedev/amazon-catalog-parser/internal/models"
	"github.com/maltedev/amazon-catalog-parser/internal/parser"
	"github.com/maltedev/amazon-catalog-parser/internal/ratelimit"
	"github.com/maltedev/amazon-catalog-parser/internal/scraper"
	"github.com/maltedev/amazon-catalog-parser/internal/storage"
	"github.com/redis/go-redis/v9"
)

type fetcher interface {
	scraper.PageFetcher
	Close() error
}

// app holds the services one invocation needs. Optional backends stay nil
// when they are not configured.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	service   *scraper.Service
	fetcher   fetcher
	archive   *storage.ResultStore
	db        *database.DB
	products  *database.ProductRepository
	publisher *events.Publisher
	relay     *database.Relay
}

// newApp wires the services. withFetcher is false for modes that never
// load a page, so no browser is started for them.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, withFetcher bool) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	opts, err := cfg.AssemblerOptions()
	if err != nil {
		return nil, err
	}

	if withFetcher {
		if a.fetcher, err = newFetcher(cfg, logger); err != nil {
			return nil, err
		}
	}

	var limiter ratelimit.RateLimiter
	if cfg.Scraper.Adaptive {
		limiter = ratelimit.NewAdaptive(cfg.Scraper.RateLimitMin, cfg.Scraper.RateLimitMax)
	} else {
		limiter = ratelimit.New(cfg.Scraper.RateLimitMin, cfg.Scraper.RateLimitMax)
	}

	var pageFetcher scraper.PageFetcher
	if a.fetcher != nil {
		pageFetcher = a.fetcher
	}
	a.service = scraper.NewService(
		pageFetcher,
		parser.NewAmazonParser(cfg.Scraper.BaseURL),
		assembler.New(opts, logger),
		limiter,
		scraper.Options{BaseURL: cfg.Scraper.BaseURL, MaxPages: cfg.Scraper.MaxPages},
		logger,
	)

	if cfg.Storage.ResultsPath != "" {
		if a.archive, err = storage.Open(cfg.Storage.ResultsPath); err != nil {
			a.Close()
			return nil, err
		}
	}

	if cfg.DatabaseEnabled() {
		if err := a.connectDatabase(ctx); err != nil {
			a.Close()
			return nil, err
		}
	}

	return a, nil
}

func newFetcher(cfg *config.Config, logger *slog.Logger) (fetcher, error) {
	if cfg.Scraper.Backend == config.BackendBrowser {
		opts := browser.DefaultOptions()
		opts.Headless = cfg.Browser.Headless
		opts.Timeout = cfg.Browser.Timeout
		opts.MaxRetries = cfg.Browser.MaxRetries
		opts.UserAgent = cfg.Scraper.UserAgent
		opts.ViewportWidth = cfg.Browser.ViewportWidth
		opts.ViewportHeight = cfg.Browser.ViewportHeight
		opts.AcceptLanguage = cfg.Browser.AcceptLanguage
		opts.TimezoneID = cfg.Browser.TimezoneID
		opts.Locale = cfg.Browser.Locale
		opts.WaitSelector = parser.PageReadySelector

		b, err := browser.New(opts, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize browser: %w", err)
		}
		return b, nil
	}

	domains, err := browser.DomainsFor(cfg.Scraper.BaseURL)
	if err != nil {
		return nil, err
	}
	opts := browser.DefaultHTTPOptions()
	opts.AllowedDomains = domains
	opts.UserAgent = cfg.Scraper.UserAgent
	opts.AcceptLanguage = cfg.Browser.AcceptLanguage
	opts.Timeout = cfg.Browser.Timeout
	return browser.NewHTTPFetcher(opts, logger), nil
}

func (a *app) connectDatabase(ctx context.Context) error {
	db, err := database.New(ctx, a.cfg.DatabaseConfig())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	a.db = db

	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	a.products = database.NewProductRepository(db)
	a.publisher = events.NewPublisher(db, a.cfg.Redis.Stream, a.logger)

	if a.cfg.RedisEnabled() {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     a.cfg.Redis.Addr,
			Password: a.cfg.Redis.Password,
			DB:       a.cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			redisClient.Close()
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		a.relay = database.NewRelay(database.NewOutboxRepository(db), redisClient, a.logger, database.RelayConfig{
			PollInterval: a.cfg.Redis.PollInterval,
			BatchSize:    a.cfg.Redis.BatchSize,
		})
	}
	return nil
}

// record archives and publishes env. Both are best effort.
func (a *app) record(ctx context.Context, env models.Envelope) {
	if a.archive != nil {
		if _, err := a.archive.Save(ctx, env); err != nil {
			a.logger.Error("failed to archive result", "error", err)
		}
	}
	if a.publisher != nil {
		res, err := a.publisher.PublishEnvelope(ctx, env)
		if err != nil {
			a.logger.Error("failed to publish result", "error", err)
			return
		}
		a.logger.Info("result published", "run_id", res.RunID, "products", res.Products, "new_products", res.NewProducts, "events", res.Events)
	}
}

func (a *app) Close() error {
	var errs []error
	if a.relay != nil {
		errs = append(errs, a.relay.Close())
	}
	if a.db != nil {
		a.db.Close()
	}
	if a.archive != nil {
		errs = append(errs, a.archive.Close())
	}
	if a.fetcher != nil {
		errs = append(errs, a.fetcher.Close())
	}
	return errors.Join(errs...)
}
