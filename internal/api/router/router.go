package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/leasing-leads-api/internal/catalog"
	httpmiddleware "github.com/wolfman30/leasing-leads-api/internal/http/middleware"
	"github.com/wolfman30/leasing-leads-api/internal/leads"
	"github.com/wolfman30/leasing-leads-api/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger         *logging.Logger
	LeadsHandler   *leads.Handler
	CatalogHandler *catalog.Handler
	MetricsHandler http.Handler
	CORSOrigin     string
}

// New creates a new Chi router with all routes configured.
// Client addresses are resolved by the lead handlers from the trusted proxy
// count, so RealIP is not installed.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if cfg.CORSOrigin != "" {
		r.Use(httpmiddleware.CORS(cfg.CORSOrigin))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", healthCheck)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/api", func(api chi.Router) {
		if cfg.CatalogHandler != nil {
			api.Get("/products", cfg.CatalogHandler.ListProducts)
		}
		if cfg.LeadsHandler != nil {
			api.Post("/submit-model", cfg.LeadsHandler.SubmitModel)
			api.Post("/submit-SpecialLease", cfg.LeadsHandler.SubmitSpecialLease)
			// Older site builds still post here.
			api.Post("/submit-SpeacialLease", cfg.LeadsHandler.SubmitSpecialLease)
			api.Post("/submit-contacts", cfg.LeadsHandler.SubmitContacts)
		}
	})

	return r
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
