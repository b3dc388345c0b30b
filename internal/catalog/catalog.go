// Package catalog serves the static product catalog shown on the site.
package catalog

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/wolfman30/leasing-leads-api/pkg/logging"
)

//go:embed products.json
var embeddedProducts []byte

// ErrInvalidCatalog is returned when the catalog document is not valid JSON.
var ErrInvalidCatalog = errors.New("catalog: document is not valid JSON")

// Provider returns the catalog document.
type Provider interface {
	Products(ctx context.Context) (json.RawMessage, error)
}

// StaticProvider holds a catalog loaded once at startup.
type StaticProvider struct {
	doc json.RawMessage
}

// NewStaticProvider validates and wraps doc.
func NewStaticProvider(doc []byte) (*StaticProvider, error) {
	if !json.Valid(doc) {
		return nil, ErrInvalidCatalog
	}
	return &StaticProvider{doc: json.RawMessage(doc)}, nil
}

// Load reads the catalog from path, or the embedded default when path is empty.
func Load(path string) (*StaticProvider, error) {
	if path == "" {
		return NewStaticProvider(embeddedProducts)
	}
	doc, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	return NewStaticProvider(doc)
}

func (p *StaticProvider) Products(context.Context) (json.RawMessage, error) {
	return p.doc, nil
}

// Handler serves GET /api/products.
type Handler struct {
	provider Provider
	logger   *logging.Logger
}

func NewHandler(provider Provider, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{provider: provider, logger: logger}
}

// ListProducts writes the full catalog.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	doc, err := h.provider.Products(r.Context())
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err != nil {
		h.logger.Error("failed to load catalog", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": false,
			"message": "Внутренняя ошибка сервера",
		})
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc)
}
