// Package coerce turns raw scraped scalars into typed values. It is the only
// place in the module where permissive parsing happens.
package coerce

import (
	"errors"
	"fmt"
)

// ErrMissing is returned when the raw value is absent or blank. It is
// distinct from a parse failure so callers never mistake "not scraped" for
// bad data.
var ErrMissing = errors.New("value missing")

type Kind string

const (
	KindInvalidPrice    Kind = "invalid_price"
	KindInvalidCurrency Kind = "invalid_currency"
	KindInvalidPercent  Kind = "invalid_percent"
	KindInvalidRating   Kind = "invalid_rating"
	KindInvalidCount    Kind = "invalid_count"
	KindInvalidFlag     Kind = "invalid_flag"
	KindInvalidText     Kind = "invalid_text"
	KindInvalidASIN     Kind = "invalid_asin"
)

// ParseError reports a raw value that could not be coerced.
type ParseError struct {
	Kind  Kind
	Input string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: cannot parse %q", e.Kind, e.Input)
}

func parseError(kind Kind, input string) *ParseError {
	return &ParseError{Kind: kind, Input: input}
}

// AsParseError unwraps err into a *ParseError when it is one.
func AsParseError(err error) (*ParseError, bool) {
	var pe *ParseError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
