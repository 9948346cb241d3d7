// Package validate enforces the invariants of the product sub-entities.
// Validators never mutate their input; a corrected copy is returned along with
// the warnings describing each correction.
package validate

import (
	"fmt"

	"github.com/maltedev/amazon-catalog-parser/internal/models"
	"github.com/shopspring/decimal"
)

// ValidationError reports an invariant that cannot be corrected automatically.
type ValidationError struct {
	Field  string
	Code   models.WarningCode
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Field, e.Code, e.Detail)
}

// Price checks amounts and currency. A negative amount is fatal. When the
// original price is below the current one the original is dropped; the current
// price is never raised to match.
func Price(p models.Price, defaultCurrency string) (models.Price, []models.Warning, error) {
	out := p.Clone()
	var warnings []models.Warning

	if out.Current != nil && *out.Current < 0 {
		return models.Price{}, nil, &ValidationError{
			Field:  "price.current",
			Code:   models.WarnNegativePrice,
			Detail: fmt.Sprintf("current price %v is negative", *out.Current),
		}
	}
	if out.Original != nil && *out.Original < 0 {
		return models.Price{}, nil, &ValidationError{
			Field:  "price.original",
			Code:   models.WarnNegativePrice,
			Detail: fmt.Sprintf("original price %v is negative", *out.Original),
		}
	}

	if out.Currency == "" {
		out.Currency = defaultCurrency
	}

	if out.Current != nil && out.Original != nil && *out.Original < *out.Current {
		warnings = append(warnings, models.NewWarning(models.WarnPriceInversion, "price.original",
			"original price %v below current price %v, dropped", *out.Original, *out.Current))
		out.Original = nil
	}

	if out.DiscountPercent != nil {
		d := *out.DiscountPercent
		if d < 0 || d > 100 {
			clamped := min(max(d, 0), 100)
			warnings = append(warnings, models.NewWarning(models.WarnRangeClamped, "price.discount_percent",
				"discount %d clamped to %d", d, clamped))
			out.DiscountPercent = models.Int(clamped)
		}
	}

	return out, warnings, nil
}

// Discount fills in or corrects discount_percent when both prices are known
// and original > 0. A raw value within tolerance of the computed one is kept.
func Discount(p models.Price, tolerance int) (models.Price, []models.Warning) {
	out := p.Clone()
	expected, ok := ExpectedDiscount(out)
	if !ok {
		return out, nil
	}
	tolerance = max(tolerance, 0)

	if out.DiscountPercent == nil {
		out.DiscountPercent = models.Int(expected)
		return out, []models.Warning{models.NewWarning(models.WarnDiscountComputed, "price.discount_percent",
			"discount computed as %d%%", expected)}
	}

	raw := *out.DiscountPercent
	diff := raw - expected
	if diff < 0 {
		diff = -diff
	}
	if diff > tolerance {
		out.DiscountPercent = models.Int(expected)
		return out, []models.Warning{models.NewWarning(models.WarnDiscountInconsistent, "price.discount_percent",
			"reported discount %d%% replaced by computed %d%%", raw, expected)}
	}
	return out, nil
}

// ExpectedDiscount returns round(100*(original-current)/original), rounding
// half away from zero. ok is false when the prices do not allow it.
func ExpectedDiscount(p models.Price) (int, bool) {
	if p.Current == nil || p.Original == nil {
		return 0, false
	}
	current := decimal.NewFromFloat(*p.Current)
	original := decimal.NewFromFloat(*p.Original)
	if !original.IsPositive() || current.IsNegative() || current.GreaterThan(original) {
		return 0, false
	}

	pct := original.Sub(current).Mul(decimal.NewFromInt(100)).Div(original).Round(0)
	return int(pct.IntPart()), true
}

// Rating clamps the score into [0,5]. A negative review count is fatal.
func Rating(r models.Rating) (models.Rating, []models.Warning, error) {
	out := r.Clone()
	var warnings []models.Warning

	if out.ReviewCount != nil && *out.ReviewCount < 0 {
		return models.Rating{}, nil, &ValidationError{
			Field:  "rating.review_count",
			Code:   models.WarnInvalidCount,
			Detail: fmt.Sprintf("review count %d is negative", *out.ReviewCount),
		}
	}

	if out.Rating != nil {
		v := *out.Rating
		if v < 0 || v > 5 {
			clamped := min(max(v, 0), 5)
			warnings = append(warnings, models.NewWarning(models.WarnRatingOutOfRange, "rating.rating",
				"rating %v clamped to %v", v, clamped))
			out.Rating = models.Float(clamped)
		}
	}

	return out, warnings, nil
}
