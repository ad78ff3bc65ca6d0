package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/minibank/middleware/internal/audit"
	"github.com/minibank/middleware/internal/bank"
	"github.com/minibank/middleware/internal/breaker"
	"github.com/minibank/middleware/internal/config"
	"github.com/minibank/middleware/internal/database"
	"github.com/minibank/middleware/internal/serviceclient"
)

// Version is the reported gateway version, overridden at build time.
var Version = "dev"

// Auditor records transactions and reports aggregate statistics.
type Auditor interface {
	Record(entry audit.Entry)
	Stats(hours int) (*database.TransactionStats, error)
}

// StatusStore exposes the database state the health endpoint reports.
type StatusStore interface {
	Ping() error
	ListBankStatuses() ([]*database.ExternalBankStatus, error)
}

// Handlers holds all HTTP handlers and their dependencies
type Handlers struct {
	cfg     *config.Config
	store   StatusStore
	router  *bank.Router
	core    *bank.CoreClient
	service *serviceclient.Client
	auditor Auditor
	breaker *breaker.Manager
}

// New creates the handler set.
func New(cfg *config.Config, store StatusStore, router *bank.Router, core *bank.CoreClient,
	service *serviceclient.Client, auditor Auditor, breaker *breaker.Manager) *Handlers {
	return &Handlers{
		cfg:     cfg,
		store:   store,
		router:  router,
		core:    core,
		service: service,
		auditor: auditor,
		breaker: breaker,
	}
}

// Root reports basic API information
func (h *Handlers) Root(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, http.StatusOK, map[string]any{
		"name":    "MiniBank Middleware",
		"version": Version,
		"status":  "running",
		"health":  "/health",
	})
}

// jsonResponse writes a JSON body with the given status
func (h *Handlers) jsonResponse(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

// jsonError sends a JSON error response
func (h *Handlers) jsonError(w http.ResponseWriter, message string, status int) {
	h.jsonResponse(w, status, map[string]string{"error": message})
}
