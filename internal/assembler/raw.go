package assembler

import "github.com/maltedev/amazon-catalog-parser/internal/models"

// RawFromProduct returns the raw field map equivalent to an assembled
// product. Assembling it again yields the same product.
func RawFromProduct(p models.Product) models.RawItem {
	raw := models.RawItem{
		ASIN:         models.Text(p.ASIN),
		Title:        models.Text(p.Title),
		URL:          models.Text(p.URL),
		Prime:        models.Bool(p.PrimeEligible),
		FreeShipping: models.Bool(p.FreeShipping),
		Brand:        optionalText(p.Brand),
		Category:     optionalText(p.Category),
		Seller:       optionalText(p.Seller),
		Description:  optionalText(p.Description),
	}

	if p.Price != nil {
		raw.Price = &models.RawPrice{
			Current:  optionalNumber(p.Price.Current),
			Original: optionalNumber(p.Price.Original),
			Currency: optionalText(p.Price.Currency),
		}
		if p.Price.DiscountPercent != nil {
			raw.Price.Discount = models.Number(float64(*p.Price.DiscountPercent))
		}
	}

	if p.Rating != nil {
		raw.Rating = &models.RawRating{
			Value: optionalNumber(p.Rating.Rating),
		}
		if p.Rating.ReviewCount != nil {
			raw.Rating.Count = models.Number(float64(*p.Rating.ReviewCount))
		}
		if p.Rating.RatingText != nil {
			raw.Rating.Text = models.Text(*p.Rating.RatingText)
		}
	}

	switch {
	case p.AvailabilityText != "":
		raw.Availability = models.Text(p.AvailabilityText)
	case p.Availability != "":
		raw.Availability = models.Text(string(p.Availability))
	}

	for _, img := range p.Images {
		raw.Images = append(raw.Images, models.RawImage{
			URL:       models.Text(img.URL),
			AltText:   optionalText(img.AltText),
			IsPrimary: models.Bool(img.IsPrimary),
		})
	}

	for _, f := range p.Features {
		raw.Features = append(raw.Features, models.Text(f))
	}
	if len(p.Specifications) > 0 {
		raw.Specifications = make(map[string]models.RawValue, len(p.Specifications))
		for k, v := range p.Specifications {
			raw.Specifications[k] = models.Text(v)
		}
	}

	return raw
}

func optionalText(s string) models.RawValue {
	if s == "" {
		return models.RawValue{}
	}
	return models.Text(s)
}

func optionalNumber(f *float64) models.RawValue {
	if f == nil {
		return models.RawValue{}
	}
	return models.Number(*f)
}
