package bank

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"
)

// CoreClient talks to the internal core bank.
type CoreClient struct {
	baseURL string
	timeout time.Duration
	client  *http.Client
}

// NewCoreClient creates a core bank client.
func NewCoreClient(baseURL string, timeout time.Duration) *CoreClient {
	return &CoreClient{
		baseURL: baseURL,
		timeout: timeout,
		client:  &http.Client{},
	}
}

// ForwardIncoming delivers an inbound interbank transfer to the core bank.
func (c *CoreClient) ForwardIncoming(ctx context.Context, transfer IncomingTransfer) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	return sendJSON(ctx, c.client, http.MethodPost, c.baseURL+"/api/v1/transactions/incoming", nil, transfer)
}

// MutationHistory fetches the mutation history for an account.
func (c *CoreClient) MutationHistory(ctx context.Context, accountNumber string) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := c.baseURL + "/api/v1/history/mutations?account_number=" + url.QueryEscape(accountNumber)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	return doRequest(c.client, req)
}

// CreateAccount forwards a customer record for account creation.
func (c *CoreClient) CreateAccount(ctx context.Context, record CustomerRecord) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	return sendJSON(ctx, c.client, http.MethodPost, c.baseURL+"/api/v1/accounts/create", nil, record)
}
