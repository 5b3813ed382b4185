package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/baker-beach/market-index/internal/domain"
	"github.com/baker-beach/market-index/internal/service"
	apperrors "github.com/baker-beach/market-index/pkg/errors"
	"github.com/baker-beach/market-index/pkg/httputil"
	"github.com/baker-beach/market-index/pkg/logger"
)

// MaxBatchSize bounds the products accepted by one batch request.
const MaxBatchSize = 1000

// Indexer is the index service surface exposed over HTTP.
type Indexer interface {
	Build(ctx context.Context, p *domain.Product) ([]domain.Document, error)
	IndexProducts(ctx context.Context, products []domain.Product) service.BatchSummary
	IndexByCode(ctx context.Context, code string) (service.IndexResult, error)
	DeleteProduct(ctx context.Context, code, status string) error
	Documents(ctx context.Context, code, status string) ([]domain.Document, error)
	Reindex(ctx context.Context) (service.BatchSummary, error)
	Reindexing() bool
}

// IndexHandler handles HTTP requests for index endpoints.
type IndexHandler struct {
	service Indexer
	logger  *slog.Logger
}

// NewIndexHandler creates a new index HTTP handler.
func NewIndexHandler(svc Indexer, logger *slog.Logger) *IndexHandler {
	return &IndexHandler{service: svc, logger: logger}
}

// --- Request/response DTOs ---

// IndexProductsRequest is the JSON request body for batch indexing.
type IndexProductsRequest struct {
	Products []domain.Product `json:"products" validate:"required,min=1,max=1000,dive"`
}

// PreviewResponse lists the documents a product would be indexed with.
type PreviewResponse struct {
	Code      string            `json:"code"`
	Documents []domain.Document `json:"documents"`
}

// --- Handlers ---

// Preview handles POST /api/v1/index/preview
func (h *IndexHandler) Preview(w http.ResponseWriter, r *http.Request) {
	var p domain.Product
	if err := httputil.DecodeJSON(r, &p); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	docs, err := h.service.Build(r.Context(), &p)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, PreviewResponse{Code: p.Code, Documents: docs})
}

// IndexProducts handles POST /api/v1/index/products
func (h *IndexHandler) IndexProducts(w http.ResponseWriter, r *http.Request) {
	var req IndexProductsRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	sum := h.service.IndexProducts(r.Context(), req.Products)

	status := http.StatusOK
	if sum.Failed > 0 && sum.Failed == sum.Total {
		status = http.StatusUnprocessableEntity
	}
	httputil.WriteData(w, status, sum)
}

// IndexByCode handles POST /api/v1/index/products/{code}
func (h *IndexHandler) IndexByCode(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.IndexByCode(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, res)
}

// DeleteProduct handles DELETE /api/v1/index/products/{code}
func (h *IndexHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	status := strings.TrimSpace(r.URL.Query().Get("status"))

	if err := h.service.DeleteProduct(r.Context(), code, status); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Documents handles GET /api/v1/index/products/{code}?status= and returns
// what the index currently holds for the product.
func (h *IndexHandler) Documents(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	status := strings.TrimSpace(r.URL.Query().Get("status"))

	docs, err := h.service.Documents(r.Context(), code, status)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, PreviewResponse{Code: code, Documents: docs})
}

// Reindex handles POST /api/v1/index/reindex. The run continues in the
// background unless wait=true is given, in which case the summary is
// returned once the catalog has been walked.
func (h *IndexHandler) Reindex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("wait") == "true" {
		sum, err := h.service.Reindex(r.Context())
		if err != nil {
			httputil.WriteError(w, r, err, h.logger)
			return
		}
		httputil.WriteData(w, http.StatusOK, sum)
		return
	}

	if h.service.Reindexing() {
		httputil.WriteError(w, r, apperrors.Conflict("reindex already running"), h.logger)
		return
	}

	ctx := context.WithoutCancel(r.Context())
	log := logger.FromContext(ctx)
	go func() {
		if _, err := h.service.Reindex(ctx); err != nil {
			log.ErrorContext(ctx, "background reindex failed", slog.String("error", err.Error()))
		}
	}()

	httputil.WriteData(w, http.StatusAccepted, map[string]string{"status": "reindex started"})
}
