// Package assembler turns raw scraped items into validated product records
// and aggregates one extraction run into a result envelope.
//
// An Assembler holds only immutable options; it performs no I/O and is safe
// for concurrent use.
//
// rating_text never overrides a usable rating value. Only when the value is
// absent or unparseable is the score read from the text, and the record then
// carries a rating_from_text warning.
package assembler

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maltedev/amazon-catalog-parser/internal/coerce"
	"github.com/maltedev/amazon-catalog-parser/internal/models"
	"github.com/maltedev/amazon-catalog-parser/internal/validate"
)

type Assembler struct {
	opts   Options
	logger *slog.Logger
}

func New(opts Options, logger *slog.Logger) *Assembler {
	if opts.DefaultCurrency == "" {
		opts.DefaultCurrency = DefaultCurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{
		opts:   opts,
		logger: logger.With("component", "assembler"),
	}
}

func (a *Assembler) Options() Options {
	return a.opts
}

// RunContext describes the extraction run that produced the raw items.
type RunContext struct {
	Query     string
	SearchURL string
	Pages     int
	Elapsed   time.Duration
	CostUSD   *float64
	Backend   string
	// BackendErr is a catastrophic failure of the backend. Items obtained
	// before it are still assembled but the run is not successful.
	BackendErr error
	StartedAt  time.Time
}

// Assemble builds one envelope from items. Products and errors keep the
// input order; every error carries the index of the item it came from.
func (a *Assembler) Assemble(items []models.RawItem, run RunContext) models.Envelope {
	start := time.Now()

	env := models.Envelope{
		Products: make([]models.Product, 0, len(items)),
		Errors:   make([]models.ExtractionError, 0),
	}

	for i, raw := range items {
		rec, xerr := a.AssembleItem(i, raw)
		if xerr != nil {
			a.logger.Debug("item rejected", "index", i, "kind", xerr.Kind, "detail", xerr.Detail)
			env.Errors = append(env.Errors, *xerr)
			continue
		}
		env.Products = append(env.Products, rec.Product)
		if len(rec.Warnings) > 0 {
			env.Warnings = append(env.Warnings, models.ItemWarnings{
				Index:    i,
				ASIN:     rec.Product.ASIN,
				Warnings: rec.Warnings,
			})
		}
	}

	elapsed := run.Elapsed
	if elapsed == 0 {
		elapsed = time.Since(start)
	}
	startedAt := run.StartedAt
	if startedAt.IsZero() {
		startedAt = start
	}

	env.Metadata = models.RunMetadata{
		Query:          run.Query,
		SearchURL:      run.SearchURL,
		PagesProcessed: run.Pages,
		ItemsReceived:  len(items),
		Elapsed:        elapsed,
		Backend:        run.Backend,
		StartedAt:      startedAt.UTC(),
	}
	if run.CostUSD != nil {
		env.Metadata.CostUSD = models.Float(*run.CostUSD)
	}

	if run.BackendErr != nil {
		env.Error = run.BackendErr.Error()
	}
	env.Success = len(env.Products) > 0 && run.BackendErr == nil

	a.logger.Debug("run assembled",
		"query", run.Query,
		"items", len(items),
		"products", len(env.Products),
		"errors", len(env.Errors),
		"success", env.Success)

	return env
}

// AssembleItem assembles the raw item at input position index. On failure
// the record is zero and the error describes why.
func (a *Assembler) AssembleItem(index int, raw models.RawItem) (models.Record, *models.ExtractionError) {
	fail := func(asin string, kind models.ErrorKind, format string, args ...any) (models.Record, *models.ExtractionError) {
		return models.Record{}, &models.ExtractionError{
			Index:  index,
			ASIN:   asin,
			Kind:   kind,
			Detail: fmt.Sprintf(format, args...),
		}
	}

	asin, err := coerce.ASIN(raw.ASIN)
	if err != nil {
		if errors.Is(err, coerce.ErrMissing) {
			return fail("", models.ErrorMissingASIN, "asin is required")
		}
		return fail("", models.ErrorValidationFailed, "asin: %v", err)
	}

	url, err := coerce.Text(raw.URL)
	if err != nil {
		return fail(asin, models.ErrorMissingASIN, "url is required")
	}

	title, err := coerce.Text(raw.Title)
	if err != nil {
		if errors.Is(err, coerce.ErrMissing) {
			return fail(asin, models.ErrorIncomplete, "title is required")
		}
		return fail(asin, models.ErrorIncomplete, "title: %v", err)
	}

	b := &itemBuilder{opts: a.opts}
	product := models.Product{
		ASIN:  asin,
		Title: title,
		URL:   url,
	}

	price, err := b.price(raw.Price)
	if f := b.resolve(FieldPrice, err); f != nil {
		return fail(asin, f.kind, "%s", f.detail)
	}
	product.Price = price

	rating, err := b.rating(raw.Rating)
	if f := b.resolve(FieldRating, err); f != nil {
		return fail(asin, f.kind, "%s", f.detail)
	}
	product.Rating = rating

	status, text, err := b.availability(raw.Availability)
	if f := b.resolve(FieldAvailability, err); f != nil {
		return fail(asin, f.kind, "%s", f.detail)
	}
	product.Availability = status
	product.AvailabilityText = text

	images, err := b.images(raw.Images)
	if f := b.resolve(FieldImages, err); f != nil {
		return fail(asin, f.kind, "%s", f.detail)
	}
	product.Images = images

	product.Brand, err = coerce.Text(raw.Brand)
	if f := b.resolve(FieldBrand, err); f != nil {
		return fail(asin, f.kind, "%s", f.detail)
	}
	product.Category, err = coerce.Text(raw.Category)
	if f := b.resolve(FieldCategory, err); f != nil {
		return fail(asin, f.kind, "%s", f.detail)
	}
	product.Seller, err = coerce.Text(raw.Seller)
	b.resolve("seller", err)
	product.Description, err = coerce.Text(raw.Description)
	b.resolve("description", err)

	product.Features = b.features(raw.Features)
	product.Specifications = b.specifications(raw.Specifications)
	product.PrimeEligible = b.flag("prime_eligible", raw.Prime)
	product.FreeShipping = b.flag("free_shipping", raw.FreeShipping)

	if product.Price != nil {
		corrected, ws := validate.Discount(*product.Price, a.opts.DiscountTolerance)
		product.Price = &corrected
		b.warn(ws...)
	}

	return models.Record{
		Index:    index,
		Product:  product,
		Warnings: b.warnings,
	}, nil
}
