package bank

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/minibank/middleware/internal/breaker"
	"github.com/minibank/middleware/internal/config"
)

// RouteType classifies where a transaction is headed
type RouteType string

const (
	RouteInternal RouteType = "internal"
	RouteExternal RouteType = "external"
	RouteUnknown  RouteType = "unknown"
)

// CoreBankCircuit is the breaker circuit name for the internal core bank.
const CoreBankCircuit = "core_bank"

// ExternalBankCircuit returns the breaker circuit name for a partner bank.
func ExternalBankCircuit(bankCode string) string {
	return "external_bank_" + bankCode
}

// Routing is the destination decision for one transaction
type Routing struct {
	Type     RouteType
	BankCode string
	URL      string
	Timeout  time.Duration
	apiKey   string
}

// Router decides where transactions go and forwards them there, protected by
// the circuit breaker.
type Router struct {
	cfg     *config.Config
	breaker *breaker.Manager
	client  *http.Client
}

// NewRouter creates a transaction router.
func NewRouter(cfg *config.Config, breaker *breaker.Manager) *Router {
	return &Router{
		cfg:     cfg,
		breaker: breaker,
		client:  &http.Client{},
	}
}

// DetermineRouting resolves the destination for a target account number:
// internal accounts go to the core bank, recognized prefixes to the matching
// enabled partner bank, everything else is unknown.
func (r *Router) DetermineRouting(targetAccount string) Routing {
	if config.IsInternalAccount(targetAccount) {
		return Routing{
			Type:     RouteInternal,
			BankCode: config.InternalBankCode,
			URL:      r.cfg.CoreURL,
			Timeout:  r.cfg.Timeout,
		}
	}

	if code := config.IdentifyExternalBank(targetAccount); code != "" {
		if bank, ok := r.cfg.ExternalBank(code); ok && bank.Enabled {
			return Routing{
				Type:     RouteExternal,
				BankCode: code,
				URL:      bank.URL,
				Timeout:  bank.Timeout,
				apiKey:   bank.APIKey,
			}
		}
	}

	return Routing{Type: RouteUnknown}
}

// Route forwards a transaction to its destination and returns the upstream
// response body.
func (r *Router) Route(ctx context.Context, txn Transaction) (json.RawMessage, error) {
	routing := r.DetermineRouting(txn.TargetAccount)

	log.Info().
		Str("route", string(routing.Type)).
		Str("bank_code", routing.BankCode).
		Str("transaction_id", txn.TransactionID).
		Msg("Routing transaction")

	switch routing.Type {
	case RouteInternal:
		return r.routeInternal(ctx, txn, routing)
	case RouteExternal:
		return r.routeExternal(ctx, txn, routing)
	default:
		return nil, fmt.Errorf("no bank recognized for account %s", txn.TargetAccount)
	}
}

func (r *Router) routeInternal(ctx context.Context, txn Transaction, routing Routing) (json.RawMessage, error) {
	endpoint := routing.URL + "/api/v1/transactions/internal"

	var result json.RawMessage
	err := r.breaker.Call(ctx, CoreBankCircuit, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, routing.Timeout)
		defer cancel()

		var err error
		result, err = sendJSON(ctx, r.client, http.MethodPost, endpoint, nil, txn)
		return err
	})
	return result, err
}

func (r *Router) routeExternal(ctx context.Context, txn Transaction, routing Routing) (json.RawMessage, error) {
	endpoint := routing.URL + "/api/v1/transactions/receive"
	transfer := TransformForExternal(txn)
	headers := map[string]string{"X-API-Key": routing.apiKey}

	var result json.RawMessage
	err := r.breaker.Call(ctx, ExternalBankCircuit(routing.BankCode), func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, routing.Timeout)
		defer cancel()

		var err error
		result, err = sendJSON(ctx, r.client, http.MethodPost, endpoint, headers, transfer)
		return err
	})
	return result, err
}

// TransformForExternal converts an internal transaction to the interbank
// wire format.
func TransformForExternal(txn Transaction) InterbankTransfer {
	currency := txn.Currency
	if currency == "" {
		currency = config.DefaultCurrency
	}
	return InterbankTransfer{
		SenderBank:      config.InternalBankCode,
		SenderAccount:   txn.SourceAccount,
		ReceiverAccount: txn.TargetAccount,
		Amount:          txn.Amount,
		Currency:        currency,
		Description:     txn.Description,
		ReferenceID:     txn.TransactionID,
		Timestamp:       txn.Timestamp,
	}
}

// TransformFromExternal converts an inbound interbank transfer to the core
// bank's inbound format.
func TransformFromExternal(transfer InterbankTransfer) IncomingTransfer {
	senderBank := transfer.SenderBank
	if senderBank == "" {
		senderBank = "External Bank"
	}

	description := fmt.Sprintf("Transfer from %s", senderBank)
	if transfer.Description != "" {
		description = fmt.Sprintf("%s: %s", description, transfer.Description)
	}

	currency := transfer.Currency
	if currency == "" {
		currency = config.DefaultCurrency
	}

	return IncomingTransfer{
		SourceAccount:     transfer.SenderAccount,
		TargetAccount:     transfer.ReceiverAccount,
		Amount:            transfer.Amount,
		Currency:          currency,
		Description:       description,
		ExternalReference: transfer.ReferenceID,
		SenderBank:        transfer.SenderBank,
	}
}
