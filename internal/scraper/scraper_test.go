package scraper

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/maltedev/amazon-catalog-parser/internal/assembler"
	"github.com/maltedev/amazon-catalog-parser/internal/models"
	"github.com/maltedev/amazon-catalog-parser/internal/parser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockFetcher struct {
	mock.Mock
}

func (m *MockFetcher) FetchHTML(ctx context.Context, url string) (string, error) {
	args := m.Called(ctx, url)
	return args.String(0), args.Error(1)
}

const testBase = "https://www.amazon.com"

func resultHTML(items ...string) string {
	html := "<html><head><title>Amazon.com</title></head><body>"
	for _, it := range items {
		html += it
	}
	return html + "</body></html>"
}

func result(asin, title, price string) string {
	return fmt.Sprintf(`<div data-component-type="s-search-result" data-asin="%s">
		<h2><a href="/dp/%s"><span>%s</span></a></h2>
		<span class="a-price"><span class="a-offscreen">%s</span></span>
	</div>`, asin, asin, title, price)
}

func newTestService(f PageFetcher) *Service {
	return NewService(f, parser.NewAmazonParser(testBase), assembler.New(assembler.DefaultOptions(), nil), nil, Options{BaseURL: testBase}, nil)
}

func TestNewService_Defaults(t *testing.T) {
	s := NewService(&MockFetcher{}, parser.NewAmazonParser(""), assembler.New(assembler.DefaultOptions(), nil), nil, Options{}, nil)

	assert.Equal(t, DefaultOptions(), s.Options())
}

func TestSearchProducts_StopsAtEmptyPage(t *testing.T) {
	f := &MockFetcher{}
	f.On("FetchHTML", mock.Anything, parser.SearchURL(testBase, "laptop", 1)).
		Return(resultHTML(result("B0DTW26PXY", "MacBook Air", "$799.99"), result("B08N5WRWNW", "IdeaPad", "$499.00")), nil).Once()
	f.On("FetchHTML", mock.Anything, parser.SearchURL(testBase, "laptop", 2)).
		Return(resultHTML(result("B09XYZ1234", "", "$10.00")), nil).Once()
	f.On("FetchHTML", mock.Anything, parser.SearchURL(testBase, "laptop", 3)).
		Return(resultHTML(), nil).Once()

	env := newTestService(f).SearchProducts(context.Background(), "  laptop ", 5)

	f.AssertExpectations(t)
	assert.True(t, env.Success)
	assert.Empty(t, env.Error)
	require.Len(t, env.Products, 2)
	assert.Equal(t, "B0DTW26PXY", env.Products[0].ASIN)
	assert.Equal(t, "B08N5WRWNW", env.Products[1].ASIN)

	// indices are global across pages
	require.Len(t, env.Errors, 1)
	assert.Equal(t, 2, env.Errors[0].Index)
	assert.Equal(t, models.ErrorIncomplete, env.Errors[0].Kind)

	assert.Equal(t, "laptop", env.Metadata.Query)
	assert.Equal(t, "https://www.amazon.com/s?k=laptop&page=1", env.Metadata.SearchURL)
	assert.Equal(t, 3, env.Metadata.PagesProcessed)
	assert.Equal(t, 3, env.Metadata.ItemsReceived)
	assert.Equal(t, "rule_based", env.Metadata.Backend)
	assert.Positive(t, env.Metadata.Elapsed)
}

func TestSearchProducts_DefaultPages(t *testing.T) {
	f := &MockFetcher{}
	for page := 1; page <= 2; page++ {
		f.On("FetchHTML", mock.Anything, parser.SearchURL(testBase, "usb hub", page)).
			Return(resultHTML(result(fmt.Sprintf("B00000000%d", page), "Hub", "$20.00")), nil).Once()
	}

	env := newTestService(f).SearchProducts(context.Background(), "usb hub", 0)

	f.AssertExpectations(t)
	assert.True(t, env.Success)
	assert.Len(t, env.Products, 2)
	assert.Equal(t, 2, env.Metadata.PagesProcessed)
}

func TestSearchProducts_LaterPageFails(t *testing.T) {
	f := &MockFetcher{}
	f.On("FetchHTML", mock.Anything, parser.SearchURL(testBase, "laptop", 1)).
		Return(resultHTML(result("B0DTW26PXY", "MacBook Air", "$799.99")), nil).Once()
	f.On("FetchHTML", mock.Anything, parser.SearchURL(testBase, "laptop", 2)).
		Return("", errors.New("connection reset")).Once()

	env := newTestService(f).SearchProducts(context.Background(), "laptop", 3)

	f.AssertExpectations(t)
	assert.False(t, env.Success)
	assert.Contains(t, env.Error, "page 2")
	assert.Contains(t, env.Error, "connection reset")
	require.Len(t, env.Products, 1, "items fetched before the failure are kept")
	assert.Equal(t, 1, env.Metadata.PagesProcessed)
}

func TestSearchProducts_Blocked(t *testing.T) {
	f := &MockFetcher{}
	f.On("FetchHTML", mock.Anything, mock.Anything).
		Return(`<html><head><title>Robot Check</title></head><body></body></html>`, nil).Once()

	env := newTestService(f).SearchProducts(context.Background(), "laptop", 2)

	assert.False(t, env.Success)
	assert.Contains(t, env.Error, parser.ErrBlocked.Error())
	assert.Empty(t, env.Products)
	assert.NotNil(t, env.Products)
}

func TestSearchProducts_EmptyQuery(t *testing.T) {
	f := &MockFetcher{}

	env := newTestService(f).SearchProducts(context.Background(), "   ", 2)

	f.AssertNotCalled(t, "FetchHTML", mock.Anything, mock.Anything)
	assert.False(t, env.Success)
	assert.Equal(t, ErrEmptyQuery.Error(), env.Error)
}

func TestSearchProducts_Canceled(t *testing.T) {
	f := &MockFetcher{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	env := newTestService(f).SearchProducts(ctx, "laptop", 2)

	f.AssertNotCalled(t, "FetchHTML", mock.Anything, mock.Anything)
	assert.False(t, env.Success)
	assert.Contains(t, env.Error, context.Canceled.Error())
}

func TestProductDetails(t *testing.T) {
	page := `<html><head><title>Amazon.com</title></head><body>
		<span id="productTitle">Apple 2025 MacBook Air</span>
		<span class="a-price priceToPay"><span class="a-offscreen">$799.99</span></span>
		<div id="availability"><span>In Stock</span></div>
	</body></html>`

	f := &MockFetcher{}
	f.On("FetchHTML", mock.Anything, "https://www.amazon.com/dp/B0DTW26PXY").Return(page, nil).Once()

	env := newTestService(f).ProductDetails(context.Background(), " b0dtw26pxy ")

	f.AssertExpectations(t)
	require.True(t, env.Success, env.Error)
	require.Len(t, env.Products, 1)
	p := env.Products[0]
	assert.Equal(t, "B0DTW26PXY", p.ASIN)
	assert.Equal(t, "Apple 2025 MacBook Air", p.Title)
	assert.Equal(t, models.AvailabilityInStock, p.Availability)
	require.NotNil(t, p.Price)
	assert.Equal(t, 799.99, *p.Price.Current)
	assert.Equal(t, 1, env.Metadata.PagesProcessed)
	assert.Equal(t, "B0DTW26PXY", env.Metadata.Query)
}

func TestProductDetails_Errors(t *testing.T) {
	f := &MockFetcher{}
	f.On("FetchHTML", mock.Anything, "https://www.amazon.com/dp/B000000404").
		Return("<html><body><h1>Page Not Found</h1></body></html>", nil).Once()

	s := newTestService(f)

	env := s.ProductDetails(context.Background(), "not-an-asin")
	assert.False(t, env.Success)
	assert.Contains(t, env.Error, ErrInvalidASIN.Error())

	env = s.ProductDetails(context.Background(), "B000000404")
	assert.False(t, env.Success)
	assert.Contains(t, env.Error, parser.ErrNotProductPage.Error())
	assert.Empty(t, env.Products)
}

func TestAssembleRaw(t *testing.T) {
	s := newTestService(&MockFetcher{})

	items := []models.RawItem{
		{ASIN: models.Text("B0DTW26PXY"), Title: models.Text("MacBook Air"), URL: models.Text("https://www.amazon.com/dp/B0DTW26PXY")},
		{Title: models.Text("no asin")},
	}
	env := s.AssembleRaw(items, " laptop ", models.Float(0.0042))

	assert.True(t, env.Success)
	assert.Len(t, env.Products, 1)
	require.Len(t, env.Errors, 1)
	assert.Equal(t, models.ErrorMissingASIN, env.Errors[0].Kind)
	assert.Equal(t, "laptop", env.Metadata.Query)
	assert.Equal(t, "external", env.Metadata.Backend)
	require.NotNil(t, env.Metadata.CostUSD)
	assert.Equal(t, 0.0042, *env.Metadata.CostUSD)
}

type recordingLimiter struct {
	successes int
	failures  int
}

func (l *recordingLimiter) Wait(ctx context.Context) error { return ctx.Err() }
func (l *recordingLimiter) SetDelay(_, _ time.Duration) {}
func (l *recordingLimiter) RecordSuccess() { l.successes++ }
func (l *recordingLimiter) RecordError() { l.failures++ }

func TestSearchProducts_ReportsToAdaptiveLimiter(t *testing.T) {
	f := &MockFetcher{}
	f.On("FetchHTML", mock.Anything, parser.SearchURL(testBase, "laptop", 1)).
		Return(resultHTML(result("B0DTW26PXY", "MacBook Air", "$799.99")), nil).Once()
	f.On("FetchHTML", mock.Anything, parser.SearchURL(testBase, "laptop", 2)).
		Return("", errors.New("connection reset")).Once()

	limiter := &recordingLimiter{}
	s := NewService(f, parser.NewAmazonParser(testBase), assembler.New(assembler.DefaultOptions(), nil), limiter, Options{BaseURL: testBase}, nil)

	env := s.SearchProducts(context.Background(), "laptop", 2)

	assert.False(t, env.Success)
	assert.Len(t, env.Products, 1)
	assert.Equal(t, 1, limiter.successes)
	assert.Equal(t, 1, limiter.failures)
	f.AssertExpectations(t)
}
