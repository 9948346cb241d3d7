package assembler

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/maltedev/amazon-catalog-parser/internal/coerce"
	"github.com/maltedev/amazon-catalog-parser/internal/models"
	"github.com/maltedev/amazon-catalog-parser/internal/validate"
)

// itemBuilder accumulates the warnings for one item. It lives for a single
// AssembleItem call.
type itemBuilder struct {
	opts     Options
	warnings []models.Warning
}

type failure struct {
	kind   models.ErrorKind
	detail string
}

var parseWarningCodes = map[coerce.Kind]models.WarningCode{
	coerce.KindInvalidPrice:    models.WarnInvalidPrice,
	coerce.KindInvalidCurrency: models.WarnInvalidCurrency,
	coerce.KindInvalidPercent:  models.WarnInvalidPercent,
	coerce.KindInvalidRating:   models.WarnInvalidRating,
	coerce.KindInvalidCount:    models.WarnInvalidCount,
	coerce.KindInvalidFlag:     models.WarnInvalidFlag,
	coerce.KindInvalidText:     models.WarnInvalidText,
}

func (b *itemBuilder) warn(ws ...models.Warning) {
	b.warnings = append(b.warnings, ws...)
}

// resolve decides what a field error means for the record. Required fields
// fail the record; anything else is dropped, with a warning unless it was
// simply absent.
func (b *itemBuilder) resolve(field string, err error) *failure {
	if err == nil {
		return nil
	}
	missing := errors.Is(err, coerce.ErrMissing)

	if b.opts.Required(field) {
		var ve *validate.ValidationError
		switch {
		case missing:
			return &failure{kind: models.ErrorIncomplete, detail: field + " is required"}
		case errors.As(err, &ve):
			return &failure{kind: models.ErrorValidationFailed, detail: ve.Error()}
		default:
			return &failure{kind: models.ErrorIncomplete, detail: fmt.Sprintf("%s: %v", field, err)}
		}
	}

	if !missing {
		b.warn(warningFor(field, err))
	}
	return nil
}

func warningFor(field string, err error) models.Warning {
	var ve *validate.ValidationError
	if errors.As(err, &ve) {
		return models.Warning{Code: ve.Code, Field: ve.Field, Message: ve.Detail + ", field dropped"}
	}

	code := models.WarnInvalidText
	if pe, ok := coerce.AsParseError(err); ok {
		if c, known := parseWarningCodes[pe.Kind]; known {
			code = c
		}
	}
	return models.NewWarning(code, field, "%v, field dropped", err)
}

func (b *itemBuilder) price(raw *models.RawPrice) (*models.Price, error) {
	if raw == nil {
		return nil, coerce.ErrMissing
	}

	var (
		p         models.Price
		amountErr error
		pending   []models.Warning
	)

	amount := func(field string, v models.RawValue) *float64 {
		d, err := coerce.Amount(v)
		if err == nil {
			return models.Float(d.InexactFloat64())
		}
		if !errors.Is(err, coerce.ErrMissing) {
			if amountErr == nil {
				amountErr = err
			}
			pending = append(pending, warningFor(field, err))
		}
		return nil
	}
	p.Current = amount("price.current", raw.Current)
	p.Original = amount("price.original", raw.Original)

	if p.IsEmpty() {
		if amountErr != nil {
			return nil, amountErr
		}
		return nil, coerce.ErrMissing
	}
	b.warn(pending...)

	code, err := coerce.Currency(raw.Currency)
	if err != nil {
		if !errors.Is(err, coerce.ErrMissing) {
			b.warn(warningFor("price.currency", err))
		}
		code = detectCurrency(raw)
	}
	p.Currency = code

	pct, ws, err := coerce.Percent(raw.Discount)
	switch {
	case err == nil:
		p.DiscountPercent = models.Int(pct)
		for _, w := range ws {
			w.Field = "price.discount_percent"
			b.warn(w)
		}
	case !errors.Is(err, coerce.ErrMissing):
		b.warn(warningFor("price.discount_percent", err))
	}

	validated, ws, err := validate.Price(p, b.opts.DefaultCurrency)
	if err != nil {
		return nil, err
	}
	b.warn(ws...)
	return &validated, nil
}

// detectCurrency falls back to the currency written in the amount strings.
func detectCurrency(raw *models.RawPrice) string {
	if code, ok := coerce.CurrencyFromText(raw.Current); ok {
		return code
	}
	if code, ok := coerce.CurrencyFromText(raw.Original); ok {
		return code
	}
	return ""
}

// rating falls back to the score in rating_text only when the value is unusable.
func (b *itemBuilder) rating(raw *models.RawRating) (*models.Rating, error) {
	if raw == nil {
		return nil, coerce.ErrMissing
	}

	var (
		r        models.Rating
		firstErr error
		pending  []models.Warning
	)
	note := func(field string, err error) {
		if errors.Is(err, coerce.ErrMissing) {
			return
		}
		if firstErr == nil {
			firstErr = err
		}
		pending = append(pending, warningFor(field, err))
	}

	text, err := coerce.Text(raw.Text)
	if err == nil {
		r.RatingText = models.String(text)
	} else {
		note("rating.rating_text", err)
	}

	score, err := coerce.Rating(raw.Value)
	if err == nil {
		r.Rating = models.Float(score)
	} else {
		note("rating.rating", err)
		if r.RatingText != nil {
			if derived, terr := coerce.Rating(models.Text(text)); terr == nil {
				r.Rating = models.Float(derived)
				pending = append(pending, models.NewWarning(models.WarnRatingFromText, "rating.rating",
					"rating %v taken from %q", derived, text))
			}
		}
	}

	count, err := coerce.Count(raw.Count)
	if err == nil {
		r.ReviewCount = models.Int(count)
	} else {
		note("rating.review_count", err)
	}

	if r.IsEmpty() {
		if firstErr != nil {
			return nil, firstErr
		}
		return nil, coerce.ErrMissing
	}
	b.warn(pending...)

	validated, ws, err := validate.Rating(r)
	if err != nil {
		return nil, err
	}
	b.warn(ws...)
	return &validated, nil
}

func (b *itemBuilder) availability(v models.RawValue) (models.Availability, string, error) {
	status, recognized, err := coerce.Availability(v)
	if err != nil {
		return "", "", err
	}
	text, _ := coerce.Text(v)
	if !recognized {
		b.warn(models.NewWarning(models.WarnAvailabilityUnrecognized, "availability",
			"unrecognized availability %q", text))
	}
	return status, text, nil
}

// images never returns nil; an empty result reports ErrMissing so a required
// images field fails the record.
func (b *itemBuilder) images(raw []models.RawImage) ([]models.Image, error) {
	imgs := make([]models.Image, 0, len(raw))
	for i, ri := range raw {
		var img models.Image
		if url, err := coerce.Text(ri.URL); err == nil {
			img.URL = url
		}
		if alt, err := coerce.Text(ri.AltText); err == nil {
			img.AltText = alt
		}
		primary, err := coerce.Flag(ri.IsPrimary)
		switch {
		case err == nil:
			img.IsPrimary = primary
		case !errors.Is(err, coerce.ErrMissing):
			b.warn(warningFor(fmt.Sprintf("images[%d].is_primary", i), err))
		}
		imgs = append(imgs, img)
	}

	out, ws := validate.Images(imgs)
	b.warn(ws...)
	if len(out) == 0 {
		return out, coerce.ErrMissing
	}
	return out, nil
}

func (b *itemBuilder) flag(field string, v models.RawValue) bool {
	f, err := coerce.Flag(v)
	if err != nil {
		if !errors.Is(err, coerce.ErrMissing) {
			b.warn(warningFor(field, err))
		}
		return false
	}
	return f
}

func (b *itemBuilder) features(raw []models.RawValue) []string {
	var out []string
	for i, v := range raw {
		s, err := coerce.Text(v)
		if err != nil {
			if !errors.Is(err, coerce.ErrMissing) {
				b.warn(warningFor(fmt.Sprintf("features[%d]", i), err))
			}
			continue
		}
		out = append(out, s)
	}
	return out
}

func (b *itemBuilder) specifications(raw map[string]models.RawValue) map[string]string {
	if len(raw) == 0 {
		return nil
	}
	out := make(map[string]string, len(raw))
	for _, k := range slices.Sorted(maps.Keys(raw)) {
		v := raw[k]
		key := strings.Join(strings.Fields(k), " ")
		if key == "" {
			continue
		}
		s, err := coerce.Text(v)
		if err != nil {
			if !errors.Is(err, coerce.ErrMissing) {
				b.warn(warningFor("specifications."+key, err))
			}
			continue
		}
		out[key] = s
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
