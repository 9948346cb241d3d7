package models

import (
	"encoding/json"
	"fmt"
	"time"
)

type WarningCode string

const (
	WarnInvalidPrice             WarningCode = "invalid_price"
	WarnInvalidCurrency          WarningCode = "invalid_currency"
	WarnInvalidRating            WarningCode = "invalid_rating"
	WarnInvalidCount             WarningCode = "invalid_count"
	WarnInvalidPercent           WarningCode = "invalid_percent"
	WarnInvalidFlag              WarningCode = "invalid_flag"
	WarnInvalidText              WarningCode = "invalid_text"
	WarnRangeClamped             WarningCode = "range_clamped"
	WarnPriceInversion           WarningCode = "price_inversion"
	WarnNegativePrice            WarningCode = "negative_price"
	WarnRatingOutOfRange         WarningCode = "rating_out_of_range"
	WarnRatingFromText           WarningCode = "rating_from_text"
	WarnDiscountInconsistent     WarningCode = "discount_inconsistent"
	WarnDiscountComputed         WarningCode = "discount_computed"
	WarnDuplicateImage           WarningCode = "duplicate_image"
	WarnImageMissingURL          WarningCode = "image_missing_url"
	WarnPrimaryImageReassigned   WarningCode = "primary_image_reassigned"
	WarnAvailabilityUnrecognized WarningCode = "availability_unrecognized"
)

// Warning is a non-fatal annotation recorded when a correction was applied
// or a field had to be dropped.
type Warning struct {
	Code    WarningCode `json:"code"`
	Field   string      `json:"field"`
	Message string      `json:"message"`
}

func NewWarning(code WarningCode, field, format string, args ...any) Warning {
	return Warning{Code: code, Field: field, Message: fmt.Sprintf(format, args...)}
}

type ErrorKind string

const (
	ErrorMissingASIN      ErrorKind = "missing_asin"
	ErrorIncomplete       ErrorKind = "incomplete"
	ErrorValidationFailed ErrorKind = "validation_failed"
)

// ExtractionError is the record-level failure of one raw item. It is
// reported in the envelope, never returned across the assembler boundary.
type ExtractionError struct {
	Index  int       `json:"index"`
	ASIN   string    `json:"asin,omitempty"`
	Kind   ErrorKind `json:"kind"`
	Detail string    `json:"detail"`
}

func (e *ExtractionError) Error() string {
	if e.ASIN != "" {
		return fmt.Sprintf("item %d (%s): %s: %s", e.Index, e.ASIN, e.Kind, e.Detail)
	}
	return fmt.Sprintf("item %d: %s: %s", e.Index, e.Kind, e.Detail)
}

// Record is one assembled product together with its audit trail.
type Record struct {
	Index    int       `json:"index"`
	Product  Product   `json:"product"`
	Warnings []Warning `json:"warnings,omitempty"`
}

type ItemWarnings struct {
	Index    int       `json:"index"`
	ASIN     string    `json:"asin"`
	Warnings []Warning `json:"warnings"`
}

type RunMetadata struct {
	Query          string        `json:"query,omitempty"`
	SearchURL      string        `json:"search_url,omitempty"`
	PagesProcessed int           `json:"pages_processed"`
	ItemsReceived  int           `json:"items_received"`
	Elapsed        time.Duration `json:"-"`
	CostUSD        *float64      `json:"cost_usd,omitempty"`
	Backend        string        `json:"backend,omitempty"`
	StartedAt      time.Time     `json:"started_at"`
}

type runMetadataJSON struct {
	Query          string    `json:"query,omitempty"`
	SearchURL      string    `json:"search_url,omitempty"`
	PagesProcessed int       `json:"pages_processed"`
	ItemsReceived  int       `json:"items_received"`
	ProcessingTime float64   `json:"processing_time"`
	CostUSD        *float64  `json:"cost_usd,omitempty"`
	Backend        string    `json:"backend,omitempty"`
	StartedAt      time.Time `json:"started_at"`
}

// MarshalJSON writes the elapsed duration as processing_time in seconds.
func (m RunMetadata) MarshalJSON() ([]byte, error) {
	return json.Marshal(runMetadataJSON{
		Query:          m.Query,
		SearchURL:      m.SearchURL,
		PagesProcessed: m.PagesProcessed,
		ItemsReceived:  m.ItemsReceived,
		ProcessingTime: m.Elapsed.Seconds(),
		CostUSD:        m.CostUSD,
		Backend:        m.Backend,
		StartedAt:      m.StartedAt,
	})
}

func (m *RunMetadata) UnmarshalJSON(data []byte) error {
	var aux runMetadataJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*m = RunMetadata{
		Query:          aux.Query,
		SearchURL:      aux.SearchURL,
		PagesProcessed: aux.PagesProcessed,
		ItemsReceived:  aux.ItemsReceived,
		Elapsed:        time.Duration(aux.ProcessingTime * float64(time.Second)),
		CostUSD:        aux.CostUSD,
		Backend:        aux.Backend,
		StartedAt:      aux.StartedAt,
	}
	return nil
}

// Envelope is the result of one extraction run. Partial success (some
// products, some errors) is a normal outcome.
type Envelope struct {
	Success  bool              `json:"success"`
	Products []Product         `json:"products"`
	Errors   []ExtractionError `json:"errors"`
	Warnings []ItemWarnings    `json:"warnings,omitempty"`
	Error    string            `json:"error,omitempty"`
	Metadata RunMetadata       `json:"metadata"`
}

func (e Envelope) TotalResults() int {
	return len(e.Products)
}

// WarningsFor returns the warnings recorded for the item at input index i.
func (e Envelope) WarningsFor(i int) []Warning {
	for _, w := range e.Warnings {
		if w.Index == i {
			return w.Warnings
		}
	}
	return nil
}
