package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/minibank/middleware/internal/bank"
	"github.com/minibank/middleware/internal/breaker"
)

// Health reports the gateway's own health: database connectivity, circuit
// breaker states, and the configured partner bank registry.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	dbConnected := true
	if err := h.store.Ping(); err != nil {
		dbConnected = false
		log.Warn().Err(err).Msg("Health check: database unreachable")
	}

	circuits := map[string]breaker.State{
		bank.CoreBankCircuit: h.breaker.State(bank.CoreBankCircuit),
	}
	banks := make(map[string]any)
	for code, b := range h.cfg.ExternalBanks() {
		circuits[bank.ExternalBankCircuit(code)] = h.breaker.State(bank.ExternalBankCircuit(code))
		banks[code] = map[string]any{
			"url":     b.URL,
			"enabled": b.Enabled,
		}
	}

	probes := make(map[string]any)
	if rows, err := h.store.ListBankStatuses(); err != nil {
		log.Warn().Err(err).Msg("Health check: failed to read bank statuses")
	} else {
		for _, row := range rows {
			probes[row.BankCode] = map[string]any{
				"status":        row.Status,
				"failure_count": row.FailureCount,
				"last_check":    row.LastCheck,
				"last_error":    row.LastError,
			}
		}
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if !dbConnected {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	h.jsonResponse(w, httpStatus, map[string]any{
		"status":           status,
		"version":          Version,
		"database":         dbConnected,
		"core_url":         h.cfg.CoreURL,
		"circuit_breakers": circuits,
		"external_banks":   banks,
		"bank_health":      probes,
	})
}

// Stats reports aggregate transaction statistics for the last 24 hours.
func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.auditor.Stats(24)
	if err != nil {
		log.Error().Err(err).Msg("Failed to compute transaction stats")
		h.jsonError(w, "Failed to compute statistics", http.StatusInternalServerError)
		return
	}
	h.jsonResponse(w, http.StatusOK, map[string]any{
		"period_hours": 24,
		"stats":        stats,
	})
}

// ResetCircuit force-closes one circuit breaker by service name.
func (h *Handlers) ResetCircuit(w http.ResponseWriter, r *http.Request) {
	service := strings.TrimSpace(chi.URLParam(r, "service"))
	if service == "" {
		h.jsonError(w, "Service name is required", http.StatusBadRequest)
		return
	}

	known := map[string]bool{bank.CoreBankCircuit: true}
	for code := range h.cfg.ExternalBanks() {
		known[bank.ExternalBankCircuit(code)] = true
	}
	if !known[service] {
		h.jsonError(w, "Unknown service: "+service, http.StatusNotFound)
		return
	}

	h.breaker.Reset(service)
	log.Info().Str("service", service).Msg("Circuit breaker reset")
	h.jsonResponse(w, http.StatusOK, map[string]any{
		"status":  "success",
		"service": service,
		"state":   h.breaker.State(service),
	})
}
