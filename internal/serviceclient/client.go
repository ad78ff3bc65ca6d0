// Package serviceclient talks to the customer-facing service layer, which
// authenticates via Authorization-Username / Authorization-Password headers.
package serviceclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/minibank/middleware/internal/auth"
	"github.com/minibank/middleware/internal/config"
	"github.com/minibank/middleware/internal/database"
)

// serviceName is the credential row used when env credentials are absent.
const serviceName = "main_service"

// Client calls the service layer.
type Client struct {
	baseURL  string
	username string
	password string
	timeout  time.Duration
	client   *http.Client
}

// New creates a service-layer client. Credentials come from the environment
// when set; otherwise the stored service_credentials row is decrypted with
// the gateway secret.
func New(cfg *config.Config, db *database.DB) (*Client, error) {
	c := &Client{
		baseURL:  cfg.ServiceURL,
		username: cfg.ServiceAuthUsername,
		password: cfg.ServiceAuthPassword,
		timeout:  cfg.Timeout,
		client:   &http.Client{},
	}

	if c.username != "" && c.password != "" {
		return c, nil
	}
	if db == nil {
		return c, nil
	}

	cred, err := db.GetServiceCredential(serviceName)
	if err != nil {
		return nil, fmt.Errorf("failed to load service credential: %w", err)
	}
	if cred == nil {
		log.Warn().Msg("No service-layer credentials configured; authenticated service calls will fail")
		return c, nil
	}

	password, err := auth.DecryptCredential(cfg.SecretKey, cred.PasswordEncrypted)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt service credential: %w", err)
	}

	c.username = cred.Username
	c.password = password
	log.Debug().Str("service", serviceName).Msg("Loaded service-layer credentials from database")
	return c, nil
}

func (c *Client) authHeaders() map[string]string {
	return map[string]string{
		"Authorization-Username": c.username,
		"Authorization-Password": c.password,
	}
}

// Balance fetches the account balance. An empty accountNumber asks for the
// balance of the authenticated customer.
func (c *Client) Balance(ctx context.Context, accountNumber string) (json.RawMessage, error) {
	endpoint := c.baseURL + "/api/v1/accounts/balance"
	if accountNumber != "" {
		endpoint += "?account_number=" + url.QueryEscape(accountNumber)
	}
	return c.get(ctx, endpoint, c.authHeaders())
}

// CustomerDetail fetches the authenticated customer's profile.
func (c *Client) CustomerDetail(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, c.baseURL+"/api/v1/accounts/detail", c.authHeaders())
}

// Login authenticates a user against the service layer.
func (c *Client) Login(ctx context.Context, username, password string) (json.RawMessage, error) {
	headers := map[string]string{
		"Authorization-Username": username,
		"Authorization-Password": password,
	}
	return c.post(ctx, c.baseURL+"/api/v1/auth/login", headers, nil)
}

// Register creates a new user on the service layer.
func (c *Client) Register(ctx context.Context, userData map[string]any) (json.RawMessage, error) {
	return c.post(ctx, c.baseURL+"/api/v1/auth/register", nil, userData)
}

func (c *Client) get(ctx context.Context, endpoint string, headers map[string]string) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	return c.do(req)
}

func (c *Client) post(ctx context.Context, endpoint string, headers map[string]string, payload any) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal payload: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	return c.do(req)
}

func (c *Client) do(req *http.Request) (json.RawMessage, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("service returned status %d", resp.StatusCode)
	}

	return json.RawMessage(data), nil
}
