package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/minibank/middleware/internal/audit"
	"github.com/minibank/middleware/internal/auth"
	"github.com/minibank/middleware/internal/bank"
	"github.com/minibank/middleware/internal/breaker"
	"github.com/minibank/middleware/internal/config"
	"github.com/minibank/middleware/internal/database"
)

// ExecuteTransaction accepts a transfer, resolves the destination bank from
// the target account prefix, and forwards it through the circuit breaker.
func (h *Handlers) ExecuteTransaction(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var txn bank.Transaction
	if err := json.NewDecoder(r.Body).Decode(&txn); err != nil {
		h.jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if msg := validateTransaction(&txn); msg != "" {
		h.jsonError(w, msg, http.StatusBadRequest)
		return
	}

	if txn.TransactionID == "" {
		txn.TransactionID = fmt.Sprintf("TRX%d", time.Now().UnixMilli())
	}
	if txn.Timestamp == "" {
		txn.Timestamp = time.Now().Format(time.RFC3339)
	}
	if txn.Currency == "" {
		txn.Currency = config.DefaultCurrency
	}

	routing := h.router.DetermineRouting(txn.TargetAccount)
	if routing.Type == bank.RouteUnknown {
		h.jsonError(w, "No destination bank recognized for target account", http.StatusBadRequest)
		return
	}
	entry := audit.Entry{
		Type:         transactionTypeFor(routing.Type),
		SourceSystem: "client",
		TargetSystem: targetSystemFor(routing),
		Endpoint:     r.URL.Path,
		Request:      txn,
	}

	result, err := h.router.Route(r.Context(), txn)
	entry.DurationMs = int(time.Since(start).Milliseconds())
	if err != nil {
		status, msg := mapRouteError(err)
		entry.StatusCode = status
		entry.Error = err.Error()
		h.auditor.Record(entry)

		log.Warn().Err(err).
			Str("transaction_id", txn.TransactionID).
			Str("route", string(routing.Type)).
			Msg("Transaction failed")
		h.jsonError(w, msg, status)
		return
	}

	entry.StatusCode = http.StatusOK
	entry.Response = result
	h.auditor.Record(entry)

	h.jsonResponse(w, http.StatusOK, map[string]any{
		"status":           "success",
		"transaction_id":   txn.TransactionID,
		"transaction_type": routing.Type,
		"bank_code":        routing.BankCode,
		"data":             result,
	})
}

// ExecuteExternalTransaction is a deprecated alias kept for clients that
// still call the split external endpoint. Routing is prefix-based either way.
func (h *Handlers) ExecuteExternalTransaction(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Deprecation", "true")
	w.Header().Set("Link", `</api/v1/transactions/execute>; rel="successor-version"`)
	h.ExecuteTransaction(w, r)
}

// ReceiveTransaction handles an inbound interbank transfer from a partner
// bank, authenticated with the partner's API key, and forwards it to the
// core bank.
func (h *Handlers) ReceiveTransaction(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	apiKey := auth.ExtractAPIKey(r)
	senderCode := h.identifySender(apiKey)
	if senderCode == "" {
		h.jsonError(w, "Invalid or missing API key", http.StatusUnauthorized)
		return
	}

	var transfer bank.InterbankTransfer
	if err := json.NewDecoder(r.Body).Decode(&transfer); err != nil {
		h.jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if transfer.ReceiverAccount == "" || transfer.Amount <= 0 {
		h.jsonError(w, "receiver_account and a positive amount are required", http.StatusBadRequest)
		return
	}
	if !config.IsInternalAccount(transfer.ReceiverAccount) {
		h.jsonError(w, "Receiver account is not held by this bank", http.StatusUnprocessableEntity)
		return
	}
	if transfer.SenderBank == "" {
		transfer.SenderBank = senderCode
	}

	incoming := bank.TransformFromExternal(transfer)
	entry := audit.Entry{
		Type:         database.TransactionTypeIncoming,
		SourceSystem: senderCode,
		TargetSystem: "core_bank",
		Endpoint:     r.URL.Path,
		Request:      transfer,
	}

	result, err := h.core.ForwardIncoming(r.Context(), incoming)
	entry.DurationMs = int(time.Since(start).Milliseconds())
	if err != nil {
		status, msg := mapRouteError(err)
		entry.StatusCode = status
		entry.Error = err.Error()
		h.auditor.Record(entry)

		log.Warn().Err(err).Str("sender_bank", senderCode).Msg("Incoming transfer failed")
		h.jsonError(w, msg, status)
		return
	}

	entry.StatusCode = http.StatusOK
	entry.Response = result
	h.auditor.Record(entry)

	h.jsonResponse(w, http.StatusOK, map[string]any{
		"status":      "success",
		"sender_bank": senderCode,
		"data":        result,
	})
}

// MutationHistory proxies an account mutation history inquiry to the core
// bank.
func (h *Handlers) MutationHistory(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req struct {
		AccountNumber string `json:"account_number"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.AccountNumber) < 10 || len(req.AccountNumber) > 30 {
		h.jsonError(w, "account_number must be 10 to 30 characters", http.StatusBadRequest)
		return
	}

	entry := audit.Entry{
		Type:         database.TransactionTypeInquiry,
		SourceSystem: "client",
		TargetSystem: "core_bank",
		Endpoint:     r.URL.Path,
		Request:      req,
	}

	result, err := h.core.MutationHistory(r.Context(), req.AccountNumber)
	entry.DurationMs = int(time.Since(start).Milliseconds())
	if err != nil {
		status, msg := mapRouteError(err)
		entry.StatusCode = status
		entry.Error = err.Error()
		h.auditor.Record(entry)
		h.jsonError(w, msg, status)
		return
	}

	entry.StatusCode = http.StatusOK
	h.auditor.Record(entry)
	h.jsonResponse(w, http.StatusOK, result)
}

// identifySender matches an interbank API key against the configured partner
// banks. Returns the bank code, or "" when no enabled bank matches.
func (h *Handlers) identifySender(apiKey string) string {
	if apiKey == "" {
		return ""
	}
	for code, b := range h.cfg.ExternalBanks() {
		if b.Enabled && b.APIKey != "" && auth.TokensEqual(apiKey, b.APIKey) {
			return code
		}
	}
	return ""
}

func validateTransaction(txn *bank.Transaction) string {
	if len(txn.SourceAccount) < 10 || len(txn.SourceAccount) > 30 {
		return "source_account must be 10 to 30 characters"
	}
	if len(txn.TargetAccount) < 10 || len(txn.TargetAccount) > 30 {
		return "target_account must be 10 to 30 characters"
	}
	if txn.SourceAccount == txn.TargetAccount {
		return "source and target accounts must differ"
	}
	if txn.Amount < config.MinTransactionAmount {
		return fmt.Sprintf("amount must be at least %d", config.MinTransactionAmount)
	}
	if txn.Amount > config.MaxTransactionAmount {
		return fmt.Sprintf("amount must not exceed %d", config.MaxTransactionAmount)
	}
	return ""
}

// mapRouteError converts upstream failures to gateway status codes: breaker
// open means the destination is refusing traffic (503), timeouts surface as
// 504, connection failures as 502, and upstream HTTP errors pass through.
func mapRouteError(err error) (int, string) {
	switch {
	case errors.Is(err, breaker.ErrOpen):
		return http.StatusServiceUnavailable, "Destination bank temporarily unavailable"
	case bank.IsTimeout(err):
		return http.StatusGatewayTimeout, "Destination bank timed out"
	case bank.IsConnectionError(err):
		return http.StatusBadGateway, "Could not reach destination bank"
	}
	if status := bank.UpstreamStatus(err); status != 0 {
		return status, "Destination bank rejected the transaction"
	}
	return http.StatusInternalServerError, "Transaction processing failed"
}

func transactionTypeFor(route bank.RouteType) database.TransactionType {
	switch route {
	case bank.RouteInternal:
		return database.TransactionTypeInternal
	case bank.RouteExternal:
		return database.TransactionTypeExternal
	default:
		return database.TransactionTypeUnknown
	}
}

func targetSystemFor(routing bank.Routing) string {
	if routing.Type == bank.RouteInternal {
		return "core_bank"
	}
	if routing.BankCode != "" {
		return routing.BankCode
	}
	return "unknown"
}
