package parser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/amazon-catalog-parser/internal/models"
)

type AmazonParser struct {
	baseURL      string
	countPattern *regexp.Regexp
	asinPattern  *regexp.Regexp
}

func NewAmazonParser(baseURL string) *AmazonParser {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &AmazonParser{
		baseURL:      strings.TrimRight(baseURL, "/"),
		countPattern: regexp.MustCompile(`\d[\d,.\s]*`),
		asinPattern:  regexp.MustCompile(`^[A-Z0-9]{10}$`),
	}
}

const searchResultSelector = `div[data-component-type="s-search-result"]`

// PageReadySelector matches once a search or detail page has rendered.
const PageReadySelector = searchResultSelector + ", #productTitle"

var (
	searchTitleSelectors = []string{
		"h2 a span",
		".s-line-clamp-2 span",
		"h2 span",
		".a-link-normal .a-text-normal span",
		".a-size-medium.a-color-base.a-text-normal",
		".a-size-base-plus.a-color-base.a-text-normal",
	}
	searchPriceSelectors = []string{
		".a-price:not(.a-text-price) .a-offscreen",
		".a-price .a-offscreen",
		".puis-price-instructions-style .a-price .a-offscreen",
		".a-price-range .a-offscreen",
	}
	searchListPriceSelectors = []string{
		".a-price.a-text-price .a-offscreen",
	}
	searchRatingSelectors = []string{
		".a-icon-star-mini .a-icon-alt",
		".a-icon-star .a-icon-alt",
		".a-popover-trigger .a-icon-alt",
		".a-icon-alt",
		".a-star-mini .a-icon-alt",
	}
	searchImageSelectors = []string{
		".s-image",
		".s-product-image-container img",
		".s-image-container img",
	}
	searchReviewCountSelectors = []string{
		".s-link-style .a-size-base",
		".a-size-base.s-link-style",
		".a-size-base.s-underline-text",
		".a-link-normal .a-size-base",
	}
	searchAvailabilitySelectors = []string{
		".a-size-base.a-color-price",
		".a-size-base.a-color-secondary",
		".a-color-secondary",
	}
	primeSelectors = []string{
		".a-icon-prime",
		".s-prime",
		"[data-prime]",
	}
)

// ParseSearchResults extracts one raw item per search result container.
// Containers without a data-asin attribute (ads, widgets) are skipped.
func (p *AmazonParser) ParseSearchResults(html string) ([]models.RawItem, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	if isBlocked(doc) {
		return nil, ErrBlocked
	}

	items := []models.RawItem{}
	doc.Find(searchResultSelector).Each(func(i int, s *goquery.Selection) {
		asin := strings.TrimSpace(s.AttrOr("data-asin", ""))
		if asin == "" {
			return
		}
		items = append(items, p.parseSearchResult(s, asin))
	})

	return items, nil
}

func (p *AmazonParser) parseSearchResult(s *goquery.Selection, asin string) models.RawItem {
	item := models.RawItem{
		ASIN:  models.Text(asin),
		URL:   models.Text(ProductURL(p.baseURL, asin)),
		Prime: models.Bool(hasAny(s, primeSelectors)),
	}

	if title := firstText(s, searchTitleSelectors); title != "" {
		item.Title = models.Text(title)
	}

	price := models.RawPrice{}
	if current := firstText(s, searchPriceSelectors); current != "" {
		price.Current = models.Text(current)
	} else if split := splitPrice(s); split != "" {
		price.Current = models.Text(split)
	}
	if original := firstText(s, searchListPriceSelectors); original != "" && !price.Current.IsAbsent() {
		if cur, _ := price.Current.Str(); cur != original {
			price.Original = models.Text(original)
		}
	}
	if !price.Current.IsAbsent() || !price.Original.IsAbsent() {
		item.Price = &price
	}

	rating := models.RawRating{}
	if text := p.ratingText(s, searchRatingSelectors); text != "" {
		rating.Text = models.Text(text)
	}
	if count := p.reviewCount(s, searchReviewCountSelectors); count != "" {
		rating.Count = models.Text(count)
	}
	if !rating.Text.IsAbsent() || !rating.Count.IsAbsent() {
		item.Rating = &rating
	}

	for _, sel := range searchImageSelectors {
		img := s.Find(sel).First()
		if src := strings.TrimSpace(img.AttrOr("src", "")); src != "" {
			item.Images = []models.RawImage{{
				URL:       models.Text(src),
				AltText:   optional(img.AttrOr("alt", "")),
				IsPrimary: models.Bool(true),
			}}
			break
		}
	}

	for _, sel := range searchAvailabilitySelectors {
		text := cleanText(s.Find(sel).First().Text())
		if text != "" && len(text) < 50 {
			item.Availability = models.Text(text)
			break
		}
	}

	return item
}

// splitPrice joins the whole and fraction spans Amazon renders when the
// offscreen price is missing. The whole part carries its decimal mark.
func splitPrice(s *goquery.Selection) string {
	whole := strings.TrimSpace(s.Find(".a-price-whole").First().Text())
	if whole == "" {
		return ""
	}
	fraction := strings.TrimSpace(s.Find(".a-price-fraction").First().Text())
	if fraction == "" {
		return strings.TrimRight(whole, ".,")
	}
	if !strings.HasSuffix(whole, ".") && !strings.HasSuffix(whole, ",") {
		whole += "."
	}
	symbol := strings.TrimSpace(s.Find(".a-price-symbol").First().Text())
	return symbol + whole + fraction
}

var (
	detailPriceSelectors = []string{
		"#corePriceDisplay_desktop_feature_div .priceToPay .a-offscreen",
		"#corePriceDisplay_desktop_feature_div .a-price .a-offscreen",
		"#corePrice_feature_div .a-price .a-offscreen",
		"#apex_desktop .a-price .a-offscreen",
		"#priceblock_dealprice",
		"#priceblock_ourprice",
		".a-price .a-offscreen",
	}
	detailListPriceSelectors = []string{
		"#corePriceDisplay_desktop_feature_div .basisPrice .a-offscreen",
		"#corePriceDisplay_desktop_feature_div .a-price.a-text-price .a-offscreen",
		"#corePrice_desktop .a-text-price .a-offscreen",
		"#listPrice",
	}
	detailRatingSelectors = []string{
		"#acrPopover .a-icon-alt",
		"#averageCustomerReviews .a-icon-alt",
		"span.a-icon-alt",
	}
	detailBrandPrefixes = []string{"Brand: ", "Marke: ", "Visit the ", "Besuchen Sie den "}
	detailBrandSuffixes = []string{" Store", "-Store"}
)

// ParseProductPage extracts a raw item from a product detail page. An empty
// asin is taken from the page itself.
func (p *AmazonParser) ParseProductPage(html string, asin string) (models.RawItem, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return models.RawItem{}, fmt.Errorf("failed to parse HTML: %w", err)
	}
	if isBlocked(doc) {
		return models.RawItem{}, ErrBlocked
	}
	if doc.Find("#productTitle").Length() == 0 {
		return models.RawItem{}, ErrNotProductPage
	}

	if asin == "" {
		asin = p.pageASIN(doc)
	}

	item := models.RawItem{
		Title:       optional(doc.Find("#productTitle").Text()),
		Brand:       optional(p.extractBrand(doc)),
		Category:    optional(p.extractCategory(doc)),
		Seller:      optional(firstText(doc.Selection, []string{"#sellerProfileTriggerId", "#merchant-info a", "#merchantInfoFeature_feature_div .offer-display-feature-text-message"})),
		Description: optional(doc.Find("#productDescription").Text()),
		Prime:       models.Bool(hasAny(doc.Selection, []string{"#primeBadge", "#prime-badge", ".a-icon-prime"})),
	}
	if asin != "" {
		item.ASIN = models.Text(asin)
		item.URL = models.Text(ProductURL(p.baseURL, asin))
	}

	price := models.RawPrice{}
	if current := firstText(doc.Selection, detailPriceSelectors); current != "" {
		price.Current = models.Text(current)
	}
	if original := firstText(doc.Selection, detailListPriceSelectors); original != "" {
		price.Original = models.Text(original)
	}
	if savings := cleanText(doc.Find(".savingsPercentage").First().Text()); savings != "" {
		// savings badges read "-11%"
		price.Discount = models.Text(strings.TrimPrefix(savings, "-"))
	}
	if !price.Current.IsAbsent() || !price.Original.IsAbsent() {
		item.Price = &price
	}

	rating := models.RawRating{}
	if text := p.ratingText(doc.Selection, detailRatingSelectors); text != "" {
		rating.Text = models.Text(text)
	} else if title := strings.TrimSpace(doc.Find("#acrPopover").AttrOr("title", "")); title != "" {
		rating.Text = models.Text(title)
	}
	if count := p.reviewCount(doc.Selection, []string{"#acrCustomerReviewText"}); count != "" {
		rating.Count = models.Text(count)
	}
	if !rating.Text.IsAbsent() || !rating.Count.IsAbsent() {
		item.Rating = &rating
	}

	if availability := cleanText(doc.Find("#availability").First().Text()); availability != "" {
		item.Availability = models.Text(availability)
	}

	item.Images = p.extractImages(doc)
	item.Features = p.extractFeatures(doc)
	item.Specifications = p.extractSpecifications(doc)

	delivery := strings.ToUpper(cleanText(doc.Find("#mir-layout-DELIVERY_BLOCK, #deliveryBlockMessage").First().Text()))
	if delivery != "" {
		item.FreeShipping = models.Bool(strings.Contains(delivery, "FREE"))
	}

	return item, nil
}

func (p *AmazonParser) pageASIN(doc *goquery.Document) string {
	for _, v := range []string{
		doc.Find("input#ASIN").AttrOr("value", ""),
		doc.Find("[data-asin]").First().AttrOr("data-asin", ""),
	} {
		v = strings.ToUpper(strings.TrimSpace(v))
		if p.asinPattern.MatchString(v) {
			return v
		}
	}
	return ""
}

func (p *AmazonParser) extractBrand(doc *goquery.Document) string {
	brand := cleanText(doc.Find("#bylineInfo").Text())
	for _, prefix := range detailBrandPrefixes {
		brand = strings.TrimPrefix(brand, prefix)
	}
	for _, suffix := range detailBrandSuffixes {
		brand = strings.TrimSuffix(brand, suffix)
	}
	return strings.TrimSpace(brand)
}

func (p *AmazonParser) extractCategory(doc *goquery.Document) string {
	return cleanText(doc.Find("#wayfinding-breadcrumbs_feature_div .a-list-item").Last().Text())
}

func (p *AmazonParser) extractImages(doc *goquery.Document) []models.RawImage {
	var images []models.RawImage
	seen := map[string]bool{}

	landing := doc.Find("#landingImage")
	primary := strings.TrimSpace(landing.AttrOr("data-old-hires", ""))
	if primary == "" {
		primary = strings.TrimSpace(landing.AttrOr("src", ""))
	}
	if primary != "" {
		images = append(images, models.RawImage{
			URL:       models.Text(primary),
			AltText:   optional(landing.AttrOr("alt", "")),
			IsPrimary: models.Bool(true),
		})
		seen[primary] = true
	}

	doc.Find("#altImages ul li img").Each(func(i int, s *goquery.Selection) {
		src := strings.TrimSpace(s.AttrOr("src", ""))
		if src == "" || strings.HasSuffix(src, ".gif") {
			return
		}
		full := strings.Replace(src, "_AC_US40_", "_AC_SL1500_", 1)
		if seen[full] {
			return
		}
		seen[full] = true
		images = append(images, models.RawImage{URL: models.Text(full)})
	})

	return images
}

func (p *AmazonParser) extractFeatures(doc *goquery.Document) []models.RawValue {
	var features []models.RawValue
	doc.Find("#feature-bullets ul li span.a-list-item").Each(func(i int, s *goquery.Selection) {
		if text := cleanText(s.Text()); text != "" {
			features = append(features, models.Text(text))
		}
	})
	return features
}

func (p *AmazonParser) extractSpecifications(doc *goquery.Document) map[string]models.RawValue {
	specs := map[string]models.RawValue{}

	doc.Find("#productDetails_techSpec_section_1 tr, #productDetails_detailBullets_sections1 tr").Each(func(i int, s *goquery.Selection) {
		key := cleanText(s.Find("th").First().Text())
		value := cleanText(s.Find("td").First().Text())
		if key != "" && value != "" {
			specs[key] = models.Text(value)
		}
	})
	doc.Find("#productOverview_feature_div tr").Each(func(i int, s *goquery.Selection) {
		cells := s.Find("td")
		if cells.Length() < 2 {
			return
		}
		key := cleanText(cells.Eq(0).Text())
		value := cleanText(cells.Eq(1).Text())
		if key != "" && value != "" {
			if _, dup := specs[key]; !dup {
				specs[key] = models.Text(value)
			}
		}
	})

	if len(specs) == 0 {
		return nil
	}
	return specs
}

// ratingText reads star text such as "4.5 out of 5 stars" from the icon
// text or its aria-label.
func (p *AmazonParser) ratingText(s *goquery.Selection, selectors []string) string {
	for _, sel := range selectors {
		el := s.Find(sel).First()
		if el.Length() == 0 {
			continue
		}
		if text := cleanText(el.Text()); text != "" {
			return text
		}
		if label := cleanText(el.AttrOr("aria-label", "")); label != "" {
			return label
		}
	}
	return ""
}

// reviewCount returns the digits of the first count-like text, e.g.
// "1,247" from "1,247 ratings".
func (p *AmazonParser) reviewCount(s *goquery.Selection, selectors []string) string {
	for _, sel := range selectors {
		text := cleanText(s.Find(sel).First().Text())
		if text == "" {
			continue
		}
		if m := p.countPattern.FindString(text); m != "" {
			return strings.TrimRight(strings.TrimSpace(m), ".,")
		}
	}
	return ""
}

func isBlocked(doc *goquery.Document) bool {
	if doc.Find(`#captchacharacters, form[action*="Captcha"], form[action*="validateCaptcha"]`).Length() > 0 {
		return true
	}
	return strings.Contains(strings.ToLower(doc.Find("title").Text()), "robot check")
}

func firstText(s *goquery.Selection, selectors []string) string {
	for _, sel := range selectors {
		if text := cleanText(s.Find(sel).First().Text()); text != "" {
			return text
		}
	}
	return ""
}

func hasAny(s *goquery.Selection, selectors []string) bool {
	for _, sel := range selectors {
		if s.Find(sel).Length() > 0 {
			return true
		}
	}
	return false
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func optional(s string) models.RawValue {
	s = cleanText(s)
	if s == "" {
		return models.RawValue{}
	}
	return models.Text(s)
}
