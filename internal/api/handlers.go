package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/maltedev/amazon-catalog-parser/internal/database"
	"github.com/maltedev/amazon-catalog-parser/internal/events"
	"github.com/maltedev/amazon-catalog-parser/internal/models"
	"github.com/maltedev/amazon-catalog-parser/internal/storage"
)

const (
	maxBodyBytes = 10 << 20
	maxPagesCap  = 20
)

type CatalogService interface {
	SearchProducts(ctx context.Context, query string, maxPages int) models.Envelope
	ProductDetails(ctx context.Context, asin string) models.Envelope
	AssembleRaw(items []models.RawItem, query string, costUSD *float64) models.Envelope
}

type ProductReader interface {
	Get(ctx context.Context, asin string) (*database.StoredProduct, error)
}

type ResultArchive interface {
	Save(ctx context.Context, env models.Envelope) (int64, error)
	List(ctx context.Context, limit int) ([]storage.Summary, error)
}

type EnvelopePublisher interface {
	PublishEnvelope(ctx context.Context, env models.Envelope) (events.PublishResult, error)
}

type OutboxStats interface {
	Stats(ctx context.Context) (database.RelayStats, error)
}

// Deps wires the handlers. Only Catalog is required; the rest are left nil
// when the backing service is not configured.
type Deps struct {
	Catalog   CatalogService
	Products  ProductReader
	Archive   ResultArchive
	Publisher EnvelopePublisher
	Outbox    OutboxStats
}

type Handlers struct {
	deps   Deps
	logger *slog.Logger
}

func NewHandlers(deps Deps, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		deps:   deps,
		logger: logger.With("component", "api"),
	}
}

type AssembleRequest struct {
	Query   string           `json:"query"`
	Items   []models.RawItem `json:"items"`
	CostUSD *float64         `json:"cost_usd,omitempty"`
}

// Assemble normalizes raw items produced by an external extraction backend.
func (h *Handlers) Assemble(w http.ResponseWriter, r *http.Request) {
	var req AssembleRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Items == nil {
		h.respondError(w, http.StatusBadRequest, "items is required")
		return
	}
	if req.CostUSD != nil && *req.CostUSD < 0 {
		h.respondError(w, http.StatusBadRequest, "cost_usd must not be negative")
		return
	}

	env := h.deps.Catalog.AssembleRaw(req.Items, req.Query, req.CostUSD)
	h.record(r.Context(), env)
	h.respondJSON(w, http.StatusOK, env)
}

type SearchRequest struct {
	Query    string `json:"query"`
	MaxPages int    `json:"max_pages"`
}

func (h *Handlers) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if !h.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		h.respondError(w, http.StatusBadRequest, "query is required")
		return
	}
	if req.MaxPages < 0 || req.MaxPages > maxPagesCap {
		h.respondError(w, http.StatusBadRequest, "max_pages must be between 0 and "+strconv.Itoa(maxPagesCap))
		return
	}

	env := h.deps.Catalog.SearchProducts(r.Context(), req.Query, req.MaxPages)
	h.record(r.Context(), env)
	h.respondJSON(w, http.StatusOK, env)
}

// GetProduct returns the stored state of one ASIN.
func (h *Handlers) GetProduct(w http.ResponseWriter, r *http.Request) {
	if h.deps.Products == nil {
		h.respondError(w, http.StatusServiceUnavailable, "product store is not configured")
		return
	}

	asin := strings.ToUpper(chi.URLParam(r, "asin"))
	product, err := h.deps.Products.Get(r.Context(), asin)
	if errors.Is(err, database.ErrNotFound) {
		h.respondError(w, http.StatusNotFound, "product not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to load product", "asin", asin, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to load product")
		return
	}

	h.respondJSON(w, http.StatusOK, product)
}

// FetchProduct loads the live detail page of one ASIN.
func (h *Handlers) FetchProduct(w http.ResponseWriter, r *http.Request) {
	env := h.deps.Catalog.ProductDetails(r.Context(), chi.URLParam(r, "asin"))
	h.record(r.Context(), env)
	h.respondJSON(w, http.StatusOK, env)
}

func (h *Handlers) ListResults(w http.ResponseWriter, r *http.Request) {
	if h.deps.Archive == nil {
		h.respondError(w, http.StatusServiceUnavailable, "result archive is not configured")
		return
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			h.respondError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	results, err := h.deps.Archive.List(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list results", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to list results")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	health := map[string]any{"status": "ok"}
	status := http.StatusOK

	if h.deps.Outbox != nil {
		stats, err := h.deps.Outbox.Stats(r.Context())
		switch {
		case err != nil:
			h.logger.Error("failed to read outbox stats", "error", err)
			health["status"] = "error"
			health["message"] = "outbox unavailable"
			status = http.StatusServiceUnavailable
		case stats.DeadLetter > 100:
			health["status"] = "error"
			health["message"] = "High number of dead letter events"
			status = http.StatusServiceUnavailable
		case stats.Pending > 1000:
			health["status"] = "warning"
			health["message"] = "High number of pending outbox events"
		}
		if err == nil {
			health["outbox"] = stats
		}
	}

	h.respondJSON(w, status, health)
}

// record archives and publishes env. Failures are logged; the caller still
// gets the envelope.
func (h *Handlers) record(ctx context.Context, env models.Envelope) {
	if h.deps.Archive != nil {
		if _, err := h.deps.Archive.Save(ctx, env); err != nil {
			h.logger.Error("failed to archive result", "query", env.Metadata.Query, "error", err)
		}
	}
	if h.deps.Publisher != nil {
		if _, err := h.deps.Publisher.PublishEnvelope(ctx, env); err != nil {
			h.logger.Error("failed to publish result", "query", env.Metadata.Query, "error", err)
		}
	}
}

func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.logger.Debug("invalid request body", "error", err, "request_id", middleware.GetReqID(r.Context()))
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
