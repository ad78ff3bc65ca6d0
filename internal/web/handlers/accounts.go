package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/minibank/middleware/internal/audit"
	"github.com/minibank/middleware/internal/bank"
	"github.com/minibank/middleware/internal/database"
)

// SyncAccount forwards a customer profile to the core bank so an account is
// created there for an existing service-layer customer.
func (h *Handlers) SyncAccount(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var record bank.CustomerRecord
	if err := json.NewDecoder(r.Body).Decode(&record); err != nil {
		h.jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if record.FullName == "" || record.NIK == "" {
		h.jsonError(w, "full_name and NIK are required", http.StatusBadRequest)
		return
	}

	entry := audit.Entry{
		Type:         database.TransactionTypeAccount,
		SourceSystem: "client",
		TargetSystem: "core_bank",
		Endpoint:     r.URL.Path,
		Request:      map[string]any{"full_name": record.FullName, "customer_id": record.CustomerID},
	}

	result, err := h.core.CreateAccount(r.Context(), record)
	entry.DurationMs = int(time.Since(start).Milliseconds())
	if err != nil {
		status, msg := mapRouteError(err)
		entry.StatusCode = status
		entry.Error = err.Error()
		h.auditor.Record(entry)

		log.Warn().Err(err).Str("full_name", record.FullName).Msg("Account sync failed")
		h.jsonError(w, msg, status)
		return
	}

	entry.StatusCode = http.StatusOK
	entry.Response = result
	h.auditor.Record(entry)

	h.jsonResponse(w, http.StatusOK, map[string]any{
		"status": "success",
		"data":   result,
	})
}

// AccountBalance proxies a balance inquiry to the service layer using the
// gateway's service credentials.
func (h *Handlers) AccountBalance(w http.ResponseWriter, r *http.Request) {
	accountNumber := r.URL.Query().Get("account_number")

	result, err := h.service.Balance(r.Context(), accountNumber)
	if err != nil {
		status, msg := mapRouteError(err)
		log.Warn().Err(err).Msg("Balance inquiry failed")
		h.jsonError(w, msg, status)
		return
	}
	h.jsonResponse(w, http.StatusOK, result)
}

// AccountDetail proxies a customer detail lookup to the service layer.
func (h *Handlers) AccountDetail(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.CustomerDetail(r.Context())
	if err != nil {
		status, msg := mapRouteError(err)
		log.Warn().Err(err).Msg("Customer detail lookup failed")
		h.jsonError(w, msg, status)
		return
	}
	h.jsonResponse(w, http.StatusOK, result)
}
