package coerce

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/maltedev/amazon-catalog-parser/internal/models"
)

var (
	leadingDecimal = regexp.MustCompile(`(\d+(?:[.,]\d+)?)`)
	asinPattern    = regexp.MustCompile(`^[A-Z0-9]{10}$`)
	digitsOnly     = regexp.MustCompile(`^\d+$`)
)

// Text trims and collapses whitespace. Blank input is ErrMissing.
func Text(v models.RawValue) (string, error) {
	switch v.Kind() {
	case models.RawAbsent:
		return "", ErrMissing
	case models.RawString:
		s, _ := v.Str()
		s = strings.Join(strings.Fields(s), " ")
		if s == "" {
			return "", ErrMissing
		}
		return s, nil
	case models.RawNumber, models.RawBool:
		return v.String(), nil
	default:
		return "", parseError(KindInvalidText, v.String())
	}
}

// Rating extracts the leading decimal from star rating text such as
// "4.5 out of 5 stars" or "4,5 von 5 Sternen". It does not clamp.
func Rating(v models.RawValue) (float64, error) {
	switch v.Kind() {
	case models.RawAbsent:
		return 0, ErrMissing
	case models.RawNumber:
		f, _ := v.Num()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, parseError(KindInvalidRating, v.String())
		}
		return f, nil
	case models.RawString:
		s, _ := v.Str()
		if strings.TrimSpace(s) == "" {
			return 0, ErrMissing
		}
		match := leadingDecimal.FindString(s)
		if match == "" {
			return 0, parseError(KindInvalidRating, s)
		}
		f, err := strconv.ParseFloat(strings.Replace(match, ",", ".", 1), 64)
		if err != nil {
			return 0, parseError(KindInvalidRating, s)
		}
		return f, nil
	default:
		return 0, parseError(KindInvalidRating, v.String())
	}
}

// Count parses a non-negative integer count such as "1,247" or "(1.247)".
// Anything left after removing separators is an invalid_count error.
func Count(v models.RawValue) (int, error) {
	switch v.Kind() {
	case models.RawAbsent:
		return 0, ErrMissing
	case models.RawNumber:
		f, _ := v.Num()
		if f < 0 || f != math.Trunc(f) || f >= math.MaxInt {
			return 0, parseError(KindInvalidCount, v.String())
		}
		return int(f), nil
	case models.RawString:
		s, _ := v.Str()
		s = strings.TrimSpace(s)
		if s == "" {
			return 0, ErrMissing
		}
		s = strings.TrimSuffix(strings.TrimPrefix(s, "("), ")")
		cleaned := strings.Map(func(r rune) rune {
			if r == ',' || r == '.' || unicode.IsSpace(r) {
				return -1
			}
			return r
		}, s)
		if !digitsOnly.MatchString(cleaned) {
			return 0, parseError(KindInvalidCount, v.String())
		}
		n, err := strconv.Atoi(cleaned)
		if err != nil {
			return 0, parseError(KindInvalidCount, v.String())
		}
		return n, nil
	default:
		return 0, parseError(KindInvalidCount, v.String())
	}
}

// Flag parses booleans given as JSON bools, 0/1 or yes/no style text.
func Flag(v models.RawValue) (bool, error) {
	switch v.Kind() {
	case models.RawAbsent:
		return false, ErrMissing
	case models.RawBool:
		b, _ := v.BoolValue()
		return b, nil
	case models.RawNumber:
		f, _ := v.Num()
		switch f {
		case 0:
			return false, nil
		case 1:
			return true, nil
		}
	case models.RawString:
		s, _ := v.Str()
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "":
			return false, ErrMissing
		case "true", "yes", "y", "1", "prime":
			return true, nil
		case "false", "no", "n", "0":
			return false, nil
		}
	}
	return false, parseError(KindInvalidFlag, v.String())
}

var (
	outOfStockPhrases = []string{
		"out of stock", "currently unavailable", "unavailable", "not available",
		"sold out", "no longer available", "nicht verfügbar", "derzeit nicht",
	}
	inStockPhrases = []string{
		"in stock", "left in stock", "available", "auf lager", "usually ships",
		"ships within", "in den einkaufswagen",
	}
)

// Availability maps free-text stock status onto the closed set. The bool is
// false when the text was present but not recognized, in which case the
// status is unknown.
func Availability(v models.RawValue) (models.Availability, bool, error) {
	s, err := Text(v)
	if err != nil {
		return "", false, err
	}

	lower := strings.ToLower(s)
	switch lower {
	case string(models.AvailabilityInStock), string(models.AvailabilityOutOfStock), string(models.AvailabilityUnknown):
		return models.Availability(lower), true, nil
	}

	// out-of-stock first: "unavailable" contains "available"
	for _, phrase := range outOfStockPhrases {
		if strings.Contains(lower, phrase) {
			return models.AvailabilityOutOfStock, true, nil
		}
	}
	for _, phrase := range inStockPhrases {
		if strings.Contains(lower, phrase) {
			return models.AvailabilityInStock, true, nil
		}
	}
	return models.AvailabilityUnknown, false, nil
}

// ASIN upper-cases the identifier and checks the 10 character alphanumeric
// form.
func ASIN(v models.RawValue) (string, error) {
	s, err := Text(v)
	if err != nil {
		return "", err
	}
	asin := strings.ToUpper(s)
	if !asinPattern.MatchString(asin) {
		return "", parseError(KindInvalidASIN, s)
	}
	return asin, nil
}
