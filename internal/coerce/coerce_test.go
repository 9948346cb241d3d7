package coerce

import (
	"testing"

	"github.com/maltedev/amazon-catalog-parser/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAmount(t *testing.T) {
	tests := []struct {
		name     string
		input    models.RawValue
		expected string
		kind     Kind
		missing  bool
	}{
		{name: "US price with symbol", input: models.Text("$799.99"), expected: "799.99"},
		{name: "US thousands separator", input: models.Text("$1,299.00"), expected: "1299"},
		{name: "German format", input: models.Text("1.299,00 €"), expected: "1299"},
		{name: "Euro prefix with space", input: models.Text("€ 45,50"), expected: "45.5"},
		{name: "ISO code prefix", input: models.Text("USD 19.99"), expected: "19.99"},
		{name: "ISO code suffix", input: models.Text("29,99 EUR"), expected: "29.99"},
		{name: "non-breaking space", input: models.Text("1 299,50 €"), expected: "1299.5"},
		{name: "plain number", input: models.Number(899.99), expected: "899.99"},
		{name: "negative amount", input: models.Text("-$5.00"), expected: "-5"},
		{name: "absent", input: models.RawValue{}, missing: true},
		{name: "blank string", input: models.Text("   "), missing: true},
		{name: "non-numeric residue", input: models.Text("$12.99 - $15.99"), kind: KindInvalidPrice},
		{name: "text only", input: models.Text("See price in cart"), kind: KindInvalidPrice},
		{name: "bool", input: models.Bool(true), kind: KindInvalidPrice},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Amount(tt.input)
			switch {
			case tt.missing:
				assert.ErrorIs(t, err, ErrMissing)
			case tt.kind != "":
				pe, ok := AsParseError(err)
				require.True(t, ok, "expected ParseError, got %v", err)
				assert.Equal(t, tt.kind, pe.Kind)
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.expected, got.String())
			}
		})
	}
}

func TestCurrency(t *testing.T) {
	tests := []struct {
		input    models.RawValue
		expected string
		wantErr  bool
	}{
		{models.Text("usd"), "USD", false},
		{models.Text("EUR"), "EUR", false},
		{models.Text("$"), "USD", false},
		{models.Text("€"), "EUR", false},
		{models.Text("£"), "GBP", false},
		{models.Text("dollars"), "", true},
		{models.Number(840), "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input.String(), func(t *testing.T) {
			got, err := Currency(tt.input)
			if tt.wantErr {
				pe, ok := AsParseError(err)
				require.True(t, ok)
				assert.Equal(t, KindInvalidCurrency, pe.Kind)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}

	_, err := Currency(models.RawValue{})
	assert.ErrorIs(t, err, ErrMissing)
}

func TestCurrencyFromText(t *testing.T) {
	code, ok := CurrencyFromText(models.Text("$799.99"))
	assert.True(t, ok)
	assert.Equal(t, "USD", code)

	code, ok = CurrencyFromText(models.Text("19,99 €"))
	assert.True(t, ok)
	assert.Equal(t, "EUR", code)

	code, ok = CurrencyFromText(models.Text("GBP 10.00"))
	assert.True(t, ok)
	assert.Equal(t, "GBP", code)

	_, ok = CurrencyFromText(models.Text("799.99"))
	assert.False(t, ok)

	_, ok = CurrencyFromText(models.Number(799.99))
	assert.False(t, ok)
}

func TestPercent(t *testing.T) {
	tests := []struct {
		name     string
		input    models.RawValue
		expected int
		clamped  bool
	}{
		{"percent string", models.Text("11%"), 11, false},
		{"number", models.Number(11), 11, false},
		{"fractional rounds", models.Text("11.6 %"), 12, false},
		{"decimal comma", models.Text("7,4%"), 7, false},
		{"above range", models.Number(150), 100, true},
		{"below range", models.Text("-11%"), 0, true},
		{"huge number", models.Number(1e20), 100, true},
		{"huge string", models.Text("1e300%"), 100, true},
		{"huge negative", models.Number(-1e20), 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, warnings, err := Percent(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
			if tt.clamped {
				require.Len(t, warnings, 1)
				assert.Equal(t, models.WarnRangeClamped, warnings[0].Code)
			} else {
				assert.Empty(t, warnings)
			}
		})
	}

	_, _, err := Percent(models.Text("eleven"))
	pe, ok := AsParseError(err)
	require.True(t, ok)
	assert.Equal(t, KindInvalidPercent, pe.Kind)

	_, _, err = Percent(models.RawValue{})
	assert.ErrorIs(t, err, ErrMissing)
}

func TestRating(t *testing.T) {
	tests := []struct {
		input    models.RawValue
		expected float64
	}{
		{models.Text("4.5 out of 5 stars"), 4.5},
		{models.Text("4,5 von 5 Sternen"), 4.5},
		{models.Text("3 out of 5"), 3.0},
		{models.Number(4.7), 4.7},
		{models.Number(7.2), 7.2},
	}

	for _, tt := range tests {
		t.Run(tt.input.String(), func(t *testing.T) {
			got, err := Rating(tt.input)
			require.NoError(t, err)
			assert.InDelta(t, tt.expected, got, 0.0001)
		})
	}

	_, err := Rating(models.Text("no reviews yet"))
	pe, ok := AsParseError(err)
	require.True(t, ok)
	assert.Equal(t, KindInvalidRating, pe.Kind)
}

func TestCount(t *testing.T) {
	tests := []struct {
		input    models.RawValue
		expected int
		wantErr  bool
	}{
		{models.Text("1,247"), 1247, false},
		{models.Text("1.234"), 1234, false},
		{models.Text("(567)"), 567, false},
		{models.Text("12 345"), 12345, false},
		{models.Number(89), 89, false},
		{models.Number(3e9), 3000000000, false},
		{models.Number(1e19), 0, true},
		{models.Text("1,247 ratings"), 0, true},
		{models.Number(-3), 0, true},
		{models.Number(2.5), 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input.String(), func(t *testing.T) {
			got, err := Count(tt.input)
			if tt.wantErr {
				pe, ok := AsParseError(err)
				require.True(t, ok)
				assert.Equal(t, KindInvalidCount, pe.Kind)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestFlag(t *testing.T) {
	for _, in := range []models.RawValue{models.Bool(true), models.Text("yes"), models.Text("TRUE"), models.Number(1)} {
		got, err := Flag(in)
		require.NoError(t, err)
		assert.True(t, got, in.String())
	}
	for _, in := range []models.RawValue{models.Bool(false), models.Text("no"), models.Number(0)} {
		got, err := Flag(in)
		require.NoError(t, err)
		assert.False(t, got, in.String())
	}

	_, err := Flag(models.Text("maybe"))
	pe, ok := AsParseError(err)
	require.True(t, ok)
	assert.Equal(t, KindInvalidFlag, pe.Kind)
}

func TestAvailability(t *testing.T) {
	tests := []struct {
		input      string
		expected   models.Availability
		recognized bool
	}{
		{"In Stock", models.AvailabilityInStock, true},
		{"Only 3 left in stock - order soon.", models.AvailabilityInStock, true},
		{"Currently unavailable.", models.AvailabilityOutOfStock, true},
		{"Temporarily out of stock.", models.AvailabilityOutOfStock, true},
		{"out_of_stock", models.AvailabilityOutOfStock, true},
		{"Auf Lager", models.AvailabilityInStock, true},
		{"Arrives before Christmas", models.AvailabilityUnknown, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, recognized, err := Availability(models.Text(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
			assert.Equal(t, tt.recognized, recognized)
		})
	}
}

func TestASIN(t *testing.T) {
	got, err := ASIN(models.Text(" b0dtw26pxy "))
	require.NoError(t, err)
	assert.Equal(t, "B0DTW26PXY", got)

	_, err = ASIN(models.Text("B0-SHORT"))
	pe, ok := AsParseError(err)
	require.True(t, ok)
	assert.Equal(t, KindInvalidASIN, pe.Kind)

	_, err = ASIN(models.Text(""))
	assert.ErrorIs(t, err, ErrMissing)
}

func TestText(t *testing.T) {
	got, err := Text(models.Text("  Apple   MacBook\n Air "))
	require.NoError(t, err)
	assert.Equal(t, "Apple MacBook Air", got)
}
