package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maltedev/amazon-catalog-parser/internal/api"
	"github.com/maltedev/amazon-catalog-parser/internal/config"
	"github.com/maltedev/amazon-catalog-parser/internal/logging"
	"github.com/maltedev/amazon-catalog-parser/internal/models"
	"github.com/shopspring/decimal"
)

type flags struct {
	mode   string
	query  string
	pages  int
	asin   string
	input  string
	pretty bool
}

func main() {
	var f flags
	flag.StringVar(&f.mode, "mode", "search", "Run mode: search, details, assemble or serve")
	flag.StringVar(&f.query, "query", "laptop", "Search query")
	flag.IntVar(&f.pages, "pages", 0, "Result pages to walk (default from config)")
	flag.StringVar(&f.asin, "asin", "", "ASIN for details mode")
	flag.StringVar(&f.input, "input", "-", "Raw items JSON for assemble mode, - for stdin")
	flag.BoolVar(&f.pretty, "pretty", false, "Indent the envelope JSON")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, f, logger); err != nil {
		logger.Error("catalog parser failed", "mode", f.mode, "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, f flags, logger *slog.Logger) error {
	switch f.mode {
	case "search", "details", "assemble", "serve":
	default:
		return fmt.Errorf("unknown mode %q", f.mode)
	}
	if f.mode == "details" && f.asin == "" {
		return errors.New("details mode requires -asin")
	}

	var input assembleInput
	if f.mode == "assemble" {
		var err error
		if input, err = readInput(f.input, os.Stdin); err != nil {
			return err
		}
	}

	a, err := newApp(ctx, cfg, logger, f.mode != "assemble")
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("failed to close resources", "error", err)
		}
	}()

	var env models.Envelope
	switch f.mode {
	case "serve":
		return serve(ctx, a)
	case "search":
		env = a.service.SearchProducts(ctx, f.query, f.pages)
	case "details":
		env = a.service.ProductDetails(ctx, f.asin)
	case "assemble":
		query := input.Query
		if query == "" {
			query = f.query
		}
		env = a.service.AssembleRaw(input.Items, query, input.CostUSD)
	}

	a.record(context.WithoutCancel(ctx), env)

	if err := writeEnvelope(os.Stdout, env, f.pretty); err != nil {
		return err
	}
	fmt.Fprintln(os.Stderr, summary(env))
	return nil
}

// assembleInput accepts either a bare JSON array of raw items or an object
// with query, items and cost_usd.
type assembleInput struct {
	Query   string           `json:"query"`
	Items   []models.RawItem `json:"items"`
	CostUSD *float64         `json:"cost_usd,omitempty"`
}

func readInput(path string, stdin io.Reader) (assembleInput, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return assembleInput{}, fmt.Errorf("failed to read input: %w", err)
	}
	return decodeInput(data)
}

func decodeInput(data []byte) (assembleInput, error) {
	data = bytes.TrimSpace(data)
	var in assembleInput
	if len(data) > 0 && data[0] == '[' {
		if err := json.Unmarshal(data, &in.Items); err != nil {
			return assembleInput{}, fmt.Errorf("failed to decode raw items: %w", err)
		}
		return in, nil
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return assembleInput{}, fmt.Errorf("failed to decode input: %w", err)
	}
	if in.Items == nil {
		return assembleInput{}, errors.New("input has no items")
	}
	return in, nil
}

func writeEnvelope(w io.Writer, env models.Envelope, pretty bool) error {
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(env); err != nil {
		return fmt.Errorf("failed to write envelope: %w", err)
	}
	return nil
}

func summary(env models.Envelope) string {
	cost := "n/a"
	if env.Metadata.CostUSD != nil {
		cost = "$" + decimal.NewFromFloat(*env.Metadata.CostUSD).StringFixed(4)
	}
	status := "ok"
	if !env.Success {
		status = "failed"
		if env.Error != "" {
			status += ": " + env.Error
		}
	}
	return fmt.Sprintf("%s | products: %d | errors: %d | cost: %s | time: %.2fs",
		status, env.TotalResults(), len(env.Errors), cost, env.Metadata.Elapsed.Seconds())
}

func serve(ctx context.Context, a *app) error {
	deps := api.Deps{Catalog: a.service}
	if a.archive != nil {
		deps.Archive = a.archive
	}
	if a.products != nil {
		deps.Products = a.products
	}
	if a.publisher != nil {
		deps.Publisher = a.publisher
	}
	if a.relay != nil {
		deps.Outbox = a.relay

		go func() {
			if err := a.relay.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Error("relay stopped with error", "error", err)
			}
		}()
	}

	handlers := api.NewHandlers(deps, a.logger)
	router := api.NewRouter(handlers, api.RouterConfig{
		AllowedOrigins: a.cfg.Server.AllowedOrigins,
		RequestTimeout: a.cfg.Server.RequestTimeout,
	})

	server := &http.Server{
		Addr:         net.JoinHostPort(a.cfg.Server.Host, a.cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("starting server", "addr", server.Addr, "backend", a.cfg.Scraper.Backend)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	a.logger.Info("server stopped")
	return nil
}
