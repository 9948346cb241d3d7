package models

import (
	"maps"
	"slices"
)

type Availability string

const (
	AvailabilityInStock    Availability = "in_stock"
	AvailabilityOutOfStock Availability = "out_of_stock"
	AvailabilityUnknown    Availability = "unknown"
)

type Product struct {
	ASIN             string            `json:"asin"`
	Title            string            `json:"title"`
	Price            *Price            `json:"price,omitempty"`
	Rating           *Rating           `json:"rating,omitempty"`
	Availability     Availability      `json:"availability,omitempty"`
	AvailabilityText string            `json:"availability_text,omitempty"`
	Images           []Image           `json:"images"`
	Features         []string          `json:"features,omitempty"`
	Description      string            `json:"description,omitempty"`
	Specifications   map[string]string `json:"specifications,omitempty"`
	URL              string            `json:"url"`
	Category         string            `json:"category,omitempty"`
	Brand            string            `json:"brand,omitempty"`
	Seller           string            `json:"seller,omitempty"`
	PrimeEligible    bool              `json:"prime_eligible"`
	FreeShipping     bool              `json:"free_shipping"`
}

type Price struct {
	Current         *float64 `json:"current,omitempty"`
	Original        *float64 `json:"original,omitempty"`
	Currency        string   `json:"currency"`
	DiscountPercent *int     `json:"discount_percent,omitempty"`
}

type Rating struct {
	Rating      *float64 `json:"rating,omitempty"`
	ReviewCount *int     `json:"review_count,omitempty"`
	RatingText  *string  `json:"rating_text,omitempty"`
}

type Image struct {
	URL       string `json:"url"`
	AltText   string `json:"alt_text,omitempty"`
	IsPrimary bool   `json:"is_primary"`
}

// Clone returns a deep copy. Assembled products are never mutated in place;
// corrections are applied to a clone.
func (p Product) Clone() Product {
	out := p
	if p.Price != nil {
		price := p.Price.Clone()
		out.Price = &price
	}
	if p.Rating != nil {
		rating := p.Rating.Clone()
		out.Rating = &rating
	}
	out.Images = slices.Clone(p.Images)
	out.Features = slices.Clone(p.Features)
	out.Specifications = maps.Clone(p.Specifications)
	return out
}

// PrimaryImage returns the image flagged as primary, if any.
func (p Product) PrimaryImage() (Image, bool) {
	for _, img := range p.Images {
		if img.IsPrimary {
			return img, true
		}
	}
	return Image{}, false
}

func (p Price) Clone() Price {
	out := Price{Currency: p.Currency}
	if p.Current != nil {
		out.Current = Float(*p.Current)
	}
	if p.Original != nil {
		out.Original = Float(*p.Original)
	}
	if p.DiscountPercent != nil {
		out.DiscountPercent = Int(*p.DiscountPercent)
	}
	return out
}

// IsEmpty reports whether neither amount is known.
func (p Price) IsEmpty() bool {
	return p.Current == nil && p.Original == nil
}

func (r Rating) Clone() Rating {
	var out Rating
	if r.Rating != nil {
		out.Rating = Float(*r.Rating)
	}
	if r.ReviewCount != nil {
		out.ReviewCount = Int(*r.ReviewCount)
	}
	if r.RatingText != nil {
		out.RatingText = String(*r.RatingText)
	}
	return out
}

func (r Rating) IsEmpty() bool {
	return r.Rating == nil && r.ReviewCount == nil && r.RatingText == nil
}

func Float(v float64) *float64 { return &v }

func Int(v int) *int { return &v }

func String(v string) *string { return &v }
