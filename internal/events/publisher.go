package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/maltedev/amazon-catalog-parser/internal/database"
	"github.com/maltedev/amazon-catalog-parser/internal/models"
)

type EventType string

const (
	EventTypeProductAssembled       EventType = "PRODUCT_ASSEMBLED"
	EventTypeExtractionRunCompleted EventType = "EXTRACTION_RUN_COMPLETED"
)

const (
	aggregateProduct = "product"
	aggregateRun     = "extraction_run"
)

type ProductAssembledPayload struct {
	EventID      string               `json:"event_id"`
	EventType    string               `json:"event_type"`
	Timestamp    time.Time            `json:"timestamp"`
	ASIN         string               `json:"asin"`
	Title        string               `json:"title"`
	Brand        string               `json:"brand,omitempty"`
	Category     string               `json:"category,omitempty"`
	URL          string               `json:"url"`
	Price        *models.Price        `json:"price,omitempty"`
	Rating       *float64             `json:"rating,omitempty"`
	ReviewCount  *int                 `json:"review_count,omitempty"`
	Availability models.Availability  `json:"availability"`
	PrimaryImage string               `json:"primary_image,omitempty"`
	Warnings     []models.WarningCode `json:"warnings,omitempty"`
	Query        string               `json:"query,omitempty"`
	// New is true when the ASIN was not stored before this run.
	New    bool   `json:"new"`
	Source string `json:"source"`
}

type RunCompletedPayload struct {
	EventID        string    `json:"event_id"`
	EventType      string    `json:"event_type"`
	Timestamp      time.Time `json:"timestamp"`
	RunID          string    `json:"run_id"`
	Query          string    `json:"query,omitempty"`
	SearchURL      string    `json:"search_url,omitempty"`
	Success        bool      `json:"success"`
	TotalResults   int       `json:"total_results"`
	ErrorCount     int       `json:"error_count"`
	WarnedItems    int       `json:"warned_items"`
	NewProducts    int       `json:"new_products"`
	PagesProcessed int       `json:"pages_processed"`
	ProcessingTime float64   `json:"processing_time"`
	CostUSD        *float64  `json:"cost_usd,omitempty"`
	Error          string    `json:"error,omitempty"`
	Source         string    `json:"source"`
}

// Transactor runs a function in one database transaction.
type Transactor interface {
	Transaction(ctx context.Context, fn func(pgx.Tx) error) error
}

type ProductStore interface {
	UpsertWithTx(ctx context.Context, tx pgx.Tx, p models.Product, warnings []models.Warning, query string) (bool, error)
}

type OutboxWriter interface {
	InsertWithTx(ctx context.Context, tx pgx.Tx, event *database.OutboxEvent) error
}

// Publisher writes assembled products and their events through the
// transactional outbox.
type Publisher struct {
	db       Transactor
	products ProductStore
	outbox   OutboxWriter
	stream   string
	logger   *slog.Logger
	now      func() time.Time
}

func NewPublisher(db *database.DB, stream string, logger *slog.Logger) *Publisher {
	return newPublisher(db, database.NewProductRepository(db), database.NewOutboxRepository(db), stream, logger)
}

func newPublisher(db Transactor, products ProductStore, outbox OutboxWriter, stream string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	if stream == "" {
		stream = database.DefaultTargetStream
	}
	return &Publisher{
		db:       db,
		products: products,
		outbox:   outbox,
		stream:   stream,
		logger:   logger.With("component", "event_publisher"),
		now:      time.Now,
	}
}

// PublishResult describes what one PublishEnvelope call wrote.
type PublishResult struct {
	RunID       string
	Products    int
	NewProducts int
	Events      int
}

// PublishEnvelope stores every product of env and queues one
// PRODUCT_ASSEMBLED event per product plus one EXTRACTION_RUN_COMPLETED
// event, all in a single transaction.
func (p *Publisher) PublishEnvelope(ctx context.Context, env models.Envelope) (PublishResult, error) {
	now := p.now().UTC()
	result := PublishResult{RunID: uuid.NewString()}
	query := env.Metadata.Query
	source := env.Metadata.Backend

	err := p.db.Transaction(ctx, func(tx pgx.Tx) error {
		result.NewProducts = 0
		result.Events = 0

		productWarnings := warningsByProduct(env)
		for i, product := range env.Products {
			warnings := productWarnings[i]
			isNew, err := p.products.UpsertWithTx(ctx, tx, product, warnings, query)
			if err != nil {
				return err
			}
			if isNew {
				result.NewProducts++
			}

			payload := productPayload(product, warnings, query, source, isNew, now)
			if err := p.insert(ctx, tx, aggregateProduct, product.ASIN, EventTypeProductAssembled, payload); err != nil {
				return err
			}
			result.Events++
		}

		payload := runPayload(env, result.RunID, result.NewProducts, now)
		if err := p.insert(ctx, tx, aggregateRun, result.RunID, EventTypeExtractionRunCompleted, payload); err != nil {
			return err
		}
		result.Events++
		return nil
	})
	if err != nil {
		return PublishResult{}, fmt.Errorf("failed to publish envelope: %w", err)
	}

	result.Products = len(env.Products)
	p.logger.Info("envelope published to outbox",
		"run_id", result.RunID,
		"query", query,
		"products", result.Products,
		"new_products", result.NewProducts,
		"events", result.Events)

	return result, nil
}

func (p *Publisher) insert(ctx context.Context, tx pgx.Tx, aggregateType, aggregateID string, eventType EventType, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", eventType, err)
	}

	event := &database.OutboxEvent{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     string(eventType),
		Payload:       data,
		TargetStream:  p.stream,
	}
	if err := p.outbox.InsertWithTx(ctx, tx, event); err != nil {
		return fmt.Errorf("failed to insert outbox event: %w", err)
	}
	return nil
}

// warningsByProduct aligns the per-item warnings with env.Products. Items
// that failed are absent from Products, so input indices are recovered by
// skipping the error indices. Envelopes whose counts do not line up fall
// back to matching by ASIN.
func warningsByProduct(env models.Envelope) [][]models.Warning {
	out := make([][]models.Warning, len(env.Products))

	failed := make(map[int]bool, len(env.Errors))
	for _, e := range env.Errors {
		failed[e.Index] = true
	}
	var indices []int
	for i := range env.Metadata.ItemsReceived {
		if !failed[i] {
			indices = append(indices, i)
		}
	}

	if len(indices) == len(env.Products) {
		for i, idx := range indices {
			out[i] = env.WarningsFor(idx)
		}
		return out
	}

	byASIN := make(map[string][]models.Warning, len(env.Warnings))
	for _, w := range env.Warnings {
		byASIN[w.ASIN] = w.Warnings
	}
	for i, p := range env.Products {
		out[i] = byASIN[p.ASIN]
	}
	return out
}

func productPayload(product models.Product, warnings []models.Warning, query, source string, isNew bool, now time.Time) ProductAssembledPayload {
	payload := ProductAssembledPayload{
		EventID:      uuid.NewString(),
		EventType:    string(EventTypeProductAssembled),
		Timestamp:    now,
		ASIN:         product.ASIN,
		Title:        product.Title,
		Brand:        product.Brand,
		Category:     product.Category,
		URL:          product.URL,
		Availability: product.Availability,
		Query:        query,
		New:          isNew,
		Source:       sourceName(source),
	}
	if product.Price != nil {
		price := product.Price.Clone()
		payload.Price = &price
	}
	if product.Rating != nil {
		payload.Rating = product.Rating.Rating
		payload.ReviewCount = product.Rating.ReviewCount
	}
	if img, ok := product.PrimaryImage(); ok {
		payload.PrimaryImage = img.URL
	}
	for _, w := range warnings {
		payload.Warnings = append(payload.Warnings, w.Code)
	}
	return payload
}

func runPayload(env models.Envelope, runID string, newProducts int, now time.Time) RunCompletedPayload {
	return RunCompletedPayload{
		EventID:        uuid.NewString(),
		EventType:      string(EventTypeExtractionRunCompleted),
		Timestamp:      now,
		RunID:          runID,
		Query:          env.Metadata.Query,
		SearchURL:      env.Metadata.SearchURL,
		Success:        env.Success,
		TotalResults:   env.TotalResults(),
		ErrorCount:     len(env.Errors),
		WarnedItems:    len(env.Warnings),
		NewProducts:    newProducts,
		PagesProcessed: env.Metadata.PagesProcessed,
		ProcessingTime: env.Metadata.Elapsed.Seconds(),
		CostUSD:        env.Metadata.CostUSD,
		Error:          env.Error,
		Source:         sourceName(env.Metadata.Backend),
	}
}

func sourceName(backend string) string {
	if backend == "" {
		return "catalog-parser"
	}
	return backend
}
