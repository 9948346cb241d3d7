package assembler

import (
	"fmt"
	"slices"
	"strings"
)

// Fields that can be made mandatory. asin, url and title are always required.
const (
	FieldPrice        = "price"
	FieldRating       = "rating"
	FieldAvailability = "availability"
	FieldImages       = "images"
	FieldBrand        = "brand"
	FieldCategory     = "category"
)

var knownFields = []string{FieldPrice, FieldRating, FieldAvailability, FieldImages, FieldBrand, FieldCategory}

const (
	DefaultDiscountTolerance = 1
	DefaultCurrency          = "USD"
)

// Options configure normalization. They are read once at startup and never
// change while an Assembler uses them.
type Options struct {
	required          map[string]bool
	DiscountTolerance int
	DefaultCurrency   string
}

// DefaultOptions makes no optional field mandatory.
func DefaultOptions() Options {
	return Options{
		required:          map[string]bool{},
		DiscountTolerance: DefaultDiscountTolerance,
		DefaultCurrency:   DefaultCurrency,
	}
}

// NewOptions validates the required field names and copies them.
func NewOptions(requiredFields []string, discountTolerance int, defaultCurrency string) (Options, error) {
	opts := DefaultOptions()

	for _, f := range requiredFields {
		f = strings.ToLower(strings.TrimSpace(f))
		if f == "" {
			continue
		}
		if !slices.Contains(knownFields, f) {
			return Options{}, fmt.Errorf("unknown required field %q (known: %s)", f, strings.Join(knownFields, ", "))
		}
		opts.required[f] = true
	}

	if discountTolerance < 0 {
		return Options{}, fmt.Errorf("discount tolerance must be non-negative, got %d", discountTolerance)
	}
	opts.DiscountTolerance = discountTolerance

	if defaultCurrency != "" {
		code := strings.ToUpper(strings.TrimSpace(defaultCurrency))
		if len(code) != 3 {
			return Options{}, fmt.Errorf("default currency must be a 3 letter ISO code, got %q", defaultCurrency)
		}
		opts.DefaultCurrency = code
	}

	return opts, nil
}

// Required reports whether field must be present for a record to assemble.
func (o Options) Required(field string) bool {
	return o.required[field]
}

// RequiredFields lists the mandatory optional fields in a stable order.
func (o Options) RequiredFields() []string {
	var out []string
	for _, f := range knownFields {
		if o.required[f] {
			out = append(out, f)
		}
	}
	return out
}
