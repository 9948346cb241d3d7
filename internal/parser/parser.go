package parser

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/maltedev/amazon-catalog-parser/internal/models"
)

const DefaultBaseURL = "https://www.amazon.com"

var (
	ErrBlocked        = errors.New("blocked by Amazon anti-bot page")
	ErrNotProductPage = errors.New("page is not a product detail page")
)

// Parser extracts raw field maps from Amazon HTML. It never coerces values;
// that is left to the assembler.
type Parser interface {
	ParseSearchResults(html string) ([]models.RawItem, error)
	ParseProductPage(html string, asin string) (models.RawItem, error)
}

// query parameters that select a result set; everything else is tracking
var essentialParams = []string{"k", "i", "bbn", "rh", "node", "page"}

// CleanURL strips tracking parameters from an Amazon URL. Other URLs, and
// strings that do not parse, are returned unchanged.
func CleanURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || !strings.Contains(strings.ToLower(u.Host), "amazon.") {
		return raw
	}

	q := u.Query()
	var parts []string
	for _, key := range essentialParams {
		if v, ok := q[key]; ok && len(v) > 0 {
			parts = append(parts, key+"="+url.QueryEscape(v[0]))
		}
	}

	clean := fmt.Sprintf("%s://%s%s", u.Scheme, u.Host, u.Path)
	if len(parts) > 0 {
		clean += "?" + strings.Join(parts, "&")
	}
	return clean
}

// SearchURL builds the search results URL for one page.
func SearchURL(baseURL, query string, page int) string {
	base := strings.TrimRight(baseURL, "/")
	if page < 1 {
		page = 1
	}
	return fmt.Sprintf("%s/s?k=%s&page=%d", base, url.QueryEscape(query), page)
}

// ProductURL is the canonical detail page URL of an ASIN.
func ProductURL(baseURL, asin string) string {
	return fmt.Sprintf("%s/dp/%s", strings.TrimRight(baseURL, "/"), asin)
}
