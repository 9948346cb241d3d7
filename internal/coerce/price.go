package coerce

import (
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/maltedev/amazon-catalog-parser/internal/models"
	"github.com/shopspring/decimal"
)

var (
	amountPattern   = regexp.MustCompile(`^-?\d+(\.\d+)?$`)
	isoCodePrefix   = regexp.MustCompile(`^([A-Za-z]{3})\s*`)
	isoCodeSuffix   = regexp.MustCompile(`\s*([A-Za-z]{3})$`)
	currencySymbols = map[string]string{
		"US$": "USD",
		"CA$": "CAD",
		"A$":  "AUD",
		"R$":  "BRL",
		"$":   "USD",
		"€":   "EUR",
		"£":   "GBP",
		"¥":   "JPY",
		"₹":   "INR",
		"₩":   "KRW",
		"zł":  "PLN",
	}
	// longest symbols first so "US$" wins over "$"
	symbolOrder = []string{"US$", "CA$", "A$", "R$", "zł", "$", "€", "£", "¥", "₹", "₩"}

	knownCurrencies = map[string]bool{
		"USD": true, "EUR": true, "GBP": true, "JPY": true, "CAD": true, "AUD": true,
		"INR": true, "CNY": true, "MXN": true, "BRL": true, "CHF": true, "SEK": true,
		"PLN": true, "TRY": true, "AED": true, "SAR": true, "SGD": true, "KRW": true,
	}
)

// Amount parses a currency amount. Symbols, ISO codes and thousands
// separators are stripped; both 1,299.00 and 1.299,00 are understood. Any
// other residue is an invalid_price error.
func Amount(v models.RawValue) (decimal.Decimal, error) {
	switch v.Kind() {
	case models.RawAbsent:
		return decimal.Zero, ErrMissing
	case models.RawNumber:
		f, _ := v.Num()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return decimal.Zero, parseError(KindInvalidPrice, v.String())
		}
		return decimal.NewFromFloat(f), nil
	case models.RawString:
		s, _ := v.Str()
		return parseAmount(s)
	default:
		return decimal.Zero, parseError(KindInvalidPrice, v.String())
	}
}

func parseAmount(input string) (decimal.Decimal, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return decimal.Zero, ErrMissing
	}

	negative := false
	if strings.HasPrefix(s, "-") {
		negative = true
		s = strings.TrimSpace(s[1:])
	}

	for _, sym := range symbolOrder {
		s = strings.ReplaceAll(s, sym, "")
	}
	if m := isoCodePrefix.FindStringSubmatch(s); m != nil && knownCurrencies[strings.ToUpper(m[1])] {
		s = s[len(m[0]):]
	}
	if m := isoCodeSuffix.FindStringSubmatch(s); m != nil && knownCurrencies[strings.ToUpper(m[1])] {
		s = s[:len(s)-len(m[0])]
	}
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	if strings.HasPrefix(s, "-") && !negative {
		negative = true
		s = s[1:]
	}

	s = normalizeSeparators(s)
	if !amountPattern.MatchString(s) {
		return decimal.Zero, parseError(KindInvalidPrice, input)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, parseError(KindInvalidPrice, input)
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// normalizeSeparators rewrites a number so "." is the only decimal separator
// and thousands separators are gone. With both separators present the last
// one is the decimal mark; a lone comma followed by one or two digits is a
// decimal comma.
func normalizeSeparators(s string) string {
	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")

	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			return strings.Replace(s, ",", ".", 1)
		}
		return strings.ReplaceAll(s, ",", "")
	case lastComma >= 0:
		decimals := len(s) - lastComma - 1
		if strings.Count(s, ",") == 1 && decimals > 0 && decimals <= 2 {
			return strings.Replace(s, ",", ".", 1)
		}
		return strings.ReplaceAll(s, ",", "")
	case lastDot >= 0 && strings.Count(s, ".") > 1:
		return strings.ReplaceAll(s, ".", "")
	}
	return s
}

// Currency normalizes a currency symbol or ISO code to an upper-case ISO
// 4217 code.
func Currency(v models.RawValue) (string, error) {
	s, err := Text(v)
	if err != nil {
		if errors.Is(err, ErrMissing) {
			return "", ErrMissing
		}
		return "", parseError(KindInvalidCurrency, v.String())
	}

	if code, ok := currencySymbols[s]; ok {
		return code, nil
	}
	upper := strings.ToUpper(s)
	if len(upper) == 3 && isASCIILetters(upper) {
		return upper, nil
	}
	return "", parseError(KindInvalidCurrency, s)
}

// CurrencyFromText detects the currency a price string is written in, e.g.
// "$799.99" or "29,99 EUR".
func CurrencyFromText(v models.RawValue) (string, bool) {
	s, ok := v.Str()
	if !ok {
		return "", false
	}
	s = strings.TrimSpace(s)

	for _, sym := range symbolOrder {
		if strings.Contains(s, sym) {
			return currencySymbols[sym], true
		}
	}
	if m := isoCodePrefix.FindStringSubmatch(s); m != nil && knownCurrencies[strings.ToUpper(m[1])] {
		return strings.ToUpper(m[1]), true
	}
	if m := isoCodeSuffix.FindStringSubmatch(s); m != nil && knownCurrencies[strings.ToUpper(m[1])] {
		return strings.ToUpper(m[1]), true
	}
	return "", false
}

// Percent parses "11%" or 11 into an integer percentage. Values outside
// [0,100] are clamped and reported with a range_clamped warning instead of
// failing.
func Percent(v models.RawValue) (int, []models.Warning, error) {
	var f float64
	switch v.Kind() {
	case models.RawAbsent:
		return 0, nil, ErrMissing
	case models.RawNumber:
		f, _ = v.Num()
	case models.RawString:
		s, _ := v.Str()
		s = strings.TrimSpace(s)
		if s == "" {
			return 0, nil, ErrMissing
		}
		s = strings.TrimSpace(strings.TrimSuffix(s, "%"))
		s = strings.Replace(s, ",", ".", 1)
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, nil, parseError(KindInvalidPercent, v.String())
		}
		f = parsed
	default:
		return 0, nil, parseError(KindInvalidPercent, v.String())
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, nil, parseError(KindInvalidPercent, v.String())
	}

	// compare as float; int(f) overflows for large inputs
	rounded := math.Round(f)
	if rounded < 0 || rounded > 100 {
		clamped := int(min(max(rounded, 0), 100))
		w := models.NewWarning(models.WarnRangeClamped, "discount_percent",
			"percentage %g clamped to %d", rounded, clamped)
		return clamped, []models.Warning{w}, nil
	}
	return int(rounded), nil, nil
}

func isASCIILetters(s string) bool {
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
