package models

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// RawKind describes the shape a raw scalar arrived in.
type RawKind int

const (
	RawAbsent RawKind = iota
	RawString
	RawNumber
	RawBool
	// RawOther holds a JSON object or array where a scalar was expected.
	RawOther
)

// RawValue is a scraped scalar of unknown shape. The zero value is absent.
// Decoding never fails on unexpected shapes; they surface later as parse
// errors in the coercion layer.
type RawValue struct {
	kind RawKind
	str  string
	num  float64
	b    bool
}

func Text(s string) RawValue { return RawValue{kind: RawString, str: s} }

func Number(f float64) RawValue { return RawValue{kind: RawNumber, num: f} }

func Bool(b bool) RawValue { return RawValue{kind: RawBool, b: b} }

func (v RawValue) Kind() RawKind { return v.kind }

func (v RawValue) IsAbsent() bool { return v.kind == RawAbsent }

// IsZero lets `omitzero` drop absent values when encoding.
func (v RawValue) IsZero() bool { return v.kind == RawAbsent }

func (v RawValue) Str() (string, bool) {
	return v.str, v.kind == RawString || v.kind == RawOther
}

func (v RawValue) Num() (float64, bool) {
	return v.num, v.kind == RawNumber
}

func (v RawValue) BoolValue() (bool, bool) {
	return v.b, v.kind == RawBool
}

// String renders the value for error messages.
func (v RawValue) String() string {
	switch v.kind {
	case RawString, RawOther:
		return v.str
	case RawNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case RawBool:
		return strconv.FormatBool(v.b)
	default:
		return ""
	}
}

func (v RawValue) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case RawString:
		return json.Marshal(v.str)
	case RawNumber:
		return json.Marshal(v.num)
	case RawBool:
		return json.Marshal(v.b)
	case RawOther:
		if json.Valid([]byte(v.str)) {
			return []byte(v.str), nil
		}
		return json.Marshal(v.str)
	default:
		return []byte("null"), nil
	}
}

func (v *RawValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*v = RawValue{}
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = Text(s)
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*v = Bool(b)
	case '{', '[':
		*v = RawValue{kind: RawOther, str: string(data)}
	default:
		f, err := strconv.ParseFloat(string(data), 64)
		if err != nil {
			*v = RawValue{kind: RawOther, str: string(data)}
			return nil
		}
		*v = Number(f)
	}
	return nil
}

// RawItem is the field map one listing produces in an extraction backend.
// Every field is optional.
type RawItem struct {
	ASIN           RawValue            `json:"asin,omitzero"`
	Title          RawValue            `json:"title,omitzero"`
	URL            RawValue            `json:"url,omitzero"`
	Price          *RawPrice           `json:"price,omitempty"`
	Rating         *RawRating          `json:"rating,omitempty"`
	Availability   RawValue            `json:"availability,omitzero"`
	Images         []RawImage          `json:"images,omitempty"`
	Prime          RawValue            `json:"prime_eligible,omitzero"`
	FreeShipping   RawValue            `json:"free_shipping,omitzero"`
	Brand          RawValue            `json:"brand,omitzero"`
	Category       RawValue            `json:"category,omitzero"`
	Seller         RawValue            `json:"seller,omitzero"`
	Description    RawValue            `json:"description,omitzero"`
	Features       []RawValue          `json:"features,omitempty"`
	Specifications map[string]RawValue `json:"specifications,omitempty"`
}

type RawPrice struct {
	Current  RawValue `json:"current,omitzero"`
	Original RawValue `json:"original,omitzero"`
	Currency RawValue `json:"currency,omitzero"`
	Discount RawValue `json:"discount_percent,omitzero"`
}

type RawRating struct {
	Value RawValue `json:"rating,omitzero"`
	Count RawValue `json:"review_count,omitzero"`
	Text  RawValue `json:"rating_text,omitzero"`
}

type RawImage struct {
	URL       RawValue `json:"url,omitzero"`
	AltText   RawValue `json:"alt_text,omitzero"`
	IsPrimary RawValue `json:"is_primary,omitzero"`
}

// UnmarshalJSON also accepts a bare URL string in place of an image object.
func (img *RawImage) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var url RawValue
		if err := url.UnmarshalJSON(data); err != nil {
			return err
		}
		*img = RawImage{URL: url}
		return nil
	}

	type plain RawImage
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*img = RawImage(p)
	return nil
}
