package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"rampdash/pkg/rampdash"
)

// NewRouter builds the HTTP API router.
func NewRouter(core *rampdash.Core, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(recoveryLoggingMiddleware(logger))
	r.Use(requestLoggingMiddleware(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	h := &handler{core: core, logger: logger}

	r.Get("/api/health", h.health)
	r.Get("/api/business", h.getBusiness)

	// Transactions
	r.Get("/api/transactions", h.listTransactions)
	r.Get("/api/transactions/pages/{page}", h.getTransactionPage)
	r.Get("/api/transactions/{id}", h.getTransaction)

	// Manual category overrides
	r.Put("/api/transactions/{id}/category", h.setCategoryOverride)
	r.Delete("/api/transactions/{id}/category", h.clearCategoryOverride)
	r.Get("/api/overrides", h.listOverrides)

	// Categorization
	r.Post("/api/categorize", h.categorize)
	r.Get("/api/categorize", h.categorizeStatus)

	return r
}

type handler struct {
	core   *rampdash.Core
	logger *slog.Logger
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Success: false, Error: message})
}
