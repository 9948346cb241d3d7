package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/maltedev/amazon-catalog-parser/internal/assembler"
	"github.com/maltedev/amazon-catalog-parser/internal/database"
	"github.com/maltedev/amazon-catalog-parser/internal/events"
	"github.com/maltedev/amazon-catalog-parser/internal/models"
	"github.com/maltedev/amazon-catalog-parser/internal/parser"
	"github.com/maltedev/amazon-catalog-parser/internal/scraper"
	"github.com/maltedev/amazon-catalog-parser/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockCatalog struct {
	mock.Mock
}

func (m *MockCatalog) SearchProducts(ctx context.Context, query string, maxPages int) models.Envelope {
	return m.Called(query, maxPages).Get(0).(models.Envelope)
}

func (m *MockCatalog) ProductDetails(ctx context.Context, asin string) models.Envelope {
	return m.Called(asin).Get(0).(models.Envelope)
}

func (m *MockCatalog) AssembleRaw(items []models.RawItem, query string, costUSD *float64) models.Envelope {
	return m.Called(items, query, costUSD).Get(0).(models.Envelope)
}

type MockProducts struct {
	mock.Mock
}

func (m *MockProducts) Get(ctx context.Context, asin string) (*database.StoredProduct, error) {
	args := m.Called(asin)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*database.StoredProduct), args.Error(1)
}

type fakeArchive struct {
	saved   []models.Envelope
	list    []storage.Summary
	listErr error
}

func (f *fakeArchive) Save(ctx context.Context, env models.Envelope) (int64, error) {
	f.saved = append(f.saved, env)
	return int64(len(f.saved)), nil
}

func (f *fakeArchive) List(ctx context.Context, limit int) ([]storage.Summary, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.list[:min(limit, len(f.list))], nil
}

type fakePublisher struct {
	published []models.Envelope
	err       error
}

func (f *fakePublisher) PublishEnvelope(ctx context.Context, env models.Envelope) (events.PublishResult, error) {
	if f.err != nil {
		return events.PublishResult{}, f.err
	}
	f.published = append(f.published, env)
	return events.PublishResult{Products: len(env.Products)}, nil
}

type fakeOutbox struct {
	stats database.RelayStats
	err   error
}

func (f fakeOutbox) Stats(ctx context.Context) (database.RelayStats, error) {
	return f.stats, f.err
}

func serve(t *testing.T, deps Deps, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	router := NewRouter(NewHandlers(deps, nil), RouterConfig{})
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func realCatalog() *scraper.Service {
	return scraper.NewService(nil, parser.NewAmazonParser(""), assembler.New(assembler.DefaultOptions(), nil), nil, scraper.Options{}, nil)
}

func TestAssemble(t *testing.T) {
	archive := &fakeArchive{}
	publisher := &fakePublisher{}
	deps := Deps{Catalog: realCatalog(), Archive: archive, Publisher: publisher}

	body := `{
		"query": "laptop",
		"cost_usd": 0.0042,
		"items": [
			{
				"asin": "B0DTW26PXY",
				"title": "Apple 2025 MacBook Air",
				"url": "https://www.amazon.com/dp/B0DTW26PXY",
				"price": {"current": "$799.99", "original": 899.99},
				"rating": {"rating": "4.5 out of 5 stars", "review_count": "1,247"},
				"availability": "In Stock",
				"images": ["https://m.media-amazon.com/a.jpg"]
			},
			{"title": "missing asin"}
		]
	}`

	rec := serve(t, deps, http.MethodPost, "/api/v1/assemble", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var env models.Envelope
	decodeBody(t, rec, &env)
	assert.True(t, env.Success)
	require.Len(t, env.Products, 1)
	p := env.Products[0]
	assert.Equal(t, 11, *p.Price.DiscountPercent)
	assert.Equal(t, "USD", p.Price.Currency)
	assert.Equal(t, 1247, *p.Rating.ReviewCount)
	assert.Equal(t, models.AvailabilityInStock, p.Availability)
	require.Len(t, p.Images, 1)
	assert.True(t, p.Images[0].IsPrimary)

	require.Len(t, env.Errors, 1)
	assert.Equal(t, 1, env.Errors[0].Index)
	assert.Equal(t, models.ErrorMissingASIN, env.Errors[0].Kind)
	assert.Equal(t, 0.0042, *env.Metadata.CostUSD)

	assert.Len(t, archive.saved, 1)
	assert.Len(t, publisher.published, 1)
}

func TestAssemble_BadRequests(t *testing.T) {
	deps := Deps{Catalog: realCatalog()}

	tests := []struct {
		name string
		body string
		want string
	}{
		{"not json", `{"items": [`, "invalid request body"},
		{"no items", `{"query": "laptop"}`, "items is required"},
		{"negative cost", `{"items": [], "cost_usd": -1}`, "cost_usd must not be negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(t, deps, http.MethodPost, "/api/v1/assemble", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var resp map[string]string
			decodeBody(t, rec, &resp)
			assert.Equal(t, tt.want, resp["error"])
		})
	}
}

func TestAssemble_EmptyItems(t *testing.T) {
	rec := serve(t, Deps{Catalog: realCatalog()}, http.MethodPost, "/api/v1/assemble", `{"items": []}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var env map[string]any
	decodeBody(t, rec, &env)
	assert.Equal(t, false, env["success"])
	assert.Equal(t, []any{}, env["products"])
	assert.Equal(t, []any{}, env["errors"])
}

func TestSearch(t *testing.T) {
	catalog := new(MockCatalog)
	publisher := &fakePublisher{err: errors.New("outbox down")}
	want := models.Envelope{
		Success:  true,
		Products: []models.Product{{ASIN: "B0DTW26PXY", Title: "MacBook Air", URL: "https://www.amazon.com/dp/B0DTW26PXY", Images: []models.Image{}}},
		Errors:   []models.ExtractionError{},
		Metadata: models.RunMetadata{Query: "laptop", PagesProcessed: 2},
	}
	catalog.On("SearchProducts", "laptop", 2).Return(want).Once()

	rec := serve(t, Deps{Catalog: catalog, Publisher: publisher}, http.MethodPost, "/api/v1/search", `{"query": "laptop", "max_pages": 2}`)
	require.Equal(t, http.StatusOK, rec.Code)
	catalog.AssertExpectations(t)

	var env models.Envelope
	decodeBody(t, rec, &env)
	assert.Equal(t, want.Products, env.Products)
	assert.Equal(t, 2, env.Metadata.PagesProcessed)

	for _, body := range []string{`{"query": "  "}`, `{"query": "laptop", "max_pages": 21}`, `{"query": "laptop", "max_pages": -1}`} {
		rec := serve(t, Deps{Catalog: catalog}, http.MethodPost, "/api/v1/search", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestGetProduct(t *testing.T) {
	products := new(MockProducts)
	stored := &database.StoredProduct{
		Product:   models.Product{ASIN: "B0DTW26PXY", Title: "MacBook Air", URL: "https://www.amazon.com/dp/B0DTW26PXY", Images: []models.Image{}},
		SeenCount: 3,
	}
	products.On("Get", "B0DTW26PXY").Return(stored, nil)
	products.On("Get", "B000000000").Return(nil, database.ErrNotFound)
	products.On("Get", "B000000500").Return(nil, errors.New("pool closed"))
	deps := Deps{Catalog: new(MockCatalog), Products: products}

	rec := serve(t, deps, http.MethodGet, "/api/v1/products/b0dtw26pxy", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got database.StoredProduct
	decodeBody(t, rec, &got)
	assert.Equal(t, "MacBook Air", got.Product.Title)
	assert.Equal(t, 3, got.SeenCount)

	rec = serve(t, deps, http.MethodGet, "/api/v1/products/B000000000", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error": "product not found"}`, rec.Body.String())

	rec = serve(t, deps, http.MethodGet, "/api/v1/products/B000000500", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = serve(t, Deps{Catalog: new(MockCatalog)}, http.MethodGet, "/api/v1/products/B0DTW26PXY", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestFetchProduct(t *testing.T) {
	catalog := new(MockCatalog)
	catalog.On("ProductDetails", "B0DTW26PXY").Return(models.Envelope{
		Success:  false,
		Products: []models.Product{},
		Errors:   []models.ExtractionError{},
		Error:    "failed to fetch product page: timeout",
	}).Once()
	archive := &fakeArchive{}

	rec := serve(t, Deps{Catalog: catalog, Archive: archive}, http.MethodGet, "/api/v1/products/B0DTW26PXY/live", "")
	require.Equal(t, http.StatusOK, rec.Code)
	catalog.AssertExpectations(t)

	var env models.Envelope
	decodeBody(t, rec, &env)
	assert.False(t, env.Success)
	assert.Equal(t, "failed to fetch product page: timeout", env.Error)
	assert.Len(t, archive.saved, 1)
}

func TestListResults(t *testing.T) {
	archive := &fakeArchive{list: []storage.Summary{
		{ID: 2, Query: "usb hub"},
		{ID: 1, Query: "laptop", Success: true, TotalResults: 12},
	}}
	deps := Deps{Catalog: new(MockCatalog), Archive: archive}

	rec := serve(t, deps, http.MethodGet, "/api/v1/results?limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Results []storage.Summary `json:"results"`
	}
	decodeBody(t, rec, &resp)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "usb hub", resp.Results[0].Query)

	rec = serve(t, deps, http.MethodGet, "/api/v1/results?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	archive.listErr = errors.New("disk full")
	rec = serve(t, deps, http.MethodGet, "/api/v1/results", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = serve(t, Deps{Catalog: new(MockCatalog)}, http.MethodGet, "/api/v1/results", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name   string
		outbox OutboxStats
		code   int
		status string
	}{
		{"no database", nil, http.StatusOK, "ok"},
		{"healthy", fakeOutbox{stats: database.RelayStats{Pending: 3}}, http.StatusOK, "ok"},
		{"backlog", fakeOutbox{stats: database.RelayStats{Pending: 5000}}, http.StatusOK, "warning"},
		{"dead letters", fakeOutbox{stats: database.RelayStats{DeadLetter: 101}}, http.StatusServiceUnavailable, "error"},
		{"unreachable", fakeOutbox{err: errors.New("connection refused")}, http.StatusServiceUnavailable, "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(t, Deps{Catalog: new(MockCatalog), Outbox: tt.outbox}, http.MethodGet, "/health", "")
			assert.Equal(t, tt.code, rec.Code)

			var resp map[string]any
			decodeBody(t, rec, &resp)
			assert.Equal(t, tt.status, resp["status"])
		})
	}
}
