package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/minibank/middleware/internal/audit"
	"github.com/minibank/middleware/internal/bank"
	"github.com/minibank/middleware/internal/breaker"
	"github.com/minibank/middleware/internal/config"
	"github.com/minibank/middleware/internal/database"
	"github.com/minibank/middleware/internal/serviceclient"
)

var errDown = errors.New("connection refused")

type fakeStore struct {
	pingErr error
	rows    []*database.ExternalBankStatus
}

func (s *fakeStore) Ping() error { return s.pingErr }

func (s *fakeStore) ListBankStatuses() ([]*database.ExternalBankStatus, error) {
	return s.rows, nil
}

type fakeAuditor struct {
	entries []audit.Entry
	stats   *database.TransactionStats
}

func (a *fakeAuditor) Record(entry audit.Entry) { a.entries = append(a.entries, entry) }

func (a *fakeAuditor) Stats(hours int) (*database.TransactionStats, error) {
	if a.stats == nil {
		return &database.TransactionStats{}, nil
	}
	return a.stats, nil
}

type testEnv struct {
	handlers *Handlers
	auditor  *fakeAuditor
	store    *fakeStore
	breaker  *breaker.Manager
}

func newTestEnv(t *testing.T, coreURL, bankAURL, serviceURL string) *testEnv {
	t.Helper()
	t.Setenv("SECRET_KEY", "test-secret")
	t.Setenv("DB_HOST", "localhost")
	t.Setenv("DB_USER", "middleware")
	t.Setenv("DB_PASSWORD", "password")
	t.Setenv("CORE_URL", coreURL)
	t.Setenv("SERVICE_URL", serviceURL)
	t.Setenv("SERVICE_AUTH_USERNAME", "gateway")
	t.Setenv("SERVICE_AUTH_PASSWORD", "gateway-pass")
	t.Setenv("MINIBANK_A_URL", bankAURL)
	t.Setenv("MINIBANK_A_API_KEY", "key-a")
	t.Setenv("MINIBANK_B_ENABLED", "false")
	t.Setenv("CIRCUIT_BREAKER_THRESHOLD", "2")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	br := breaker.New(cfg.BreakerThreshold, cfg.BreakerTimeout)
	svc, err := serviceclient.New(cfg, nil)
	if err != nil {
		t.Fatalf("failed to build service client: %v", err)
	}

	auditor := &fakeAuditor{}
	store := &fakeStore{}
	h := New(cfg, store, bank.NewRouter(cfg, br),
		bank.NewCoreClient(cfg.CoreURL, cfg.Timeout), svc, auditor, br)
	return &testEnv{handlers: h, auditor: auditor, store: store, breaker: br}
}

func postJSON(t *testing.T, handler http.HandlerFunc, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest("POST", path, strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler(w, r)
	return w
}

func TestExecuteTransactionInternal(t *testing.T) {
	core := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/transactions/internal" {
			t.Errorf("unexpected core path %s", r.URL.Path)
		}
		var txn bank.Transaction
		if err := json.NewDecoder(r.Body).Decode(&txn); err != nil {
			t.Fatalf("failed to decode forwarded transaction: %v", err)
		}
		if !strings.HasPrefix(txn.TransactionID, "TRX") {
			t.Errorf("expected generated TRX id, got %q", txn.TransactionID)
		}
		if txn.Currency != config.DefaultCurrency {
			t.Errorf("expected default currency, got %q", txn.Currency)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"completed"}`))
	}))
	defer core.Close()

	env := newTestEnv(t, core.URL, "http://localhost:1", "http://localhost:1")
	w := postJSON(t, env.handlers.ExecuteTransaction, "/api/v1/transactions/execute",
		`{"source_account":"1012345678","target_account":"1018765432","amount":50000}`)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["transaction_type"] != "internal" {
		t.Errorf("expected internal route, got %v", resp["transaction_type"])
	}

	if len(env.auditor.entries) != 1 {
		t.Fatalf("expected 1 audit entry, got %d", len(env.auditor.entries))
	}
	entry := env.auditor.entries[0]
	if entry.Type != database.TransactionTypeInternal || entry.StatusCode != http.StatusOK {
		t.Errorf("unexpected audit entry: %+v", entry)
	}
}

func TestExecuteTransactionValidation(t *testing.T) {
	env := newTestEnv(t, "http://localhost:1", "http://localhost:1", "http://localhost:1")

	cases := []struct {
		name string
		body string
	}{
		{"amount below minimum", `{"source_account":"1012345678","target_account":"1018765432","amount":500}`},
		{"amount above maximum", `{"source_account":"1012345678","target_account":"1018765432","amount":200000000}`},
		{"short target account", `{"source_account":"1012345678","target_account":"101","amount":50000}`},
		{"same accounts", `{"source_account":"1012345678","target_account":"1012345678","amount":50000}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := postJSON(t, env.handlers.ExecuteTransaction, "/api/v1/transactions/execute", tc.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", w.Code)
			}
		})
	}
	if len(env.auditor.entries) != 0 {
		t.Errorf("rejected requests must not be audited, got %d entries", len(env.auditor.entries))
	}
}

func TestExecuteTransactionUnknownPrefix(t *testing.T) {
	env := newTestEnv(t, "http://localhost:1", "http://localhost:1", "http://localhost:1")
	w := postJSON(t, env.handlers.ExecuteTransaction, "/api/v1/transactions/execute",
		`{"source_account":"1012345678","target_account":"7778765432","amount":50000}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unrecognized prefix, got %d", w.Code)
	}
}

func TestExecuteTransactionBreakerOpen(t *testing.T) {
	core := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer core.Close()

	env := newTestEnv(t, core.URL, "http://localhost:1", "http://localhost:1")
	body := `{"source_account":"1012345678","target_account":"1018765432","amount":50000}`

	// threshold is 2 in the test env
	for i := 0; i < 2; i++ {
		w := postJSON(t, env.handlers.ExecuteTransaction, "/api/v1/transactions/execute", body)
		if w.Code != http.StatusInternalServerError {
			t.Fatalf("expected upstream 500 passthrough, got %d", w.Code)
		}
	}

	w := postJSON(t, env.handlers.ExecuteTransaction, "/api/v1/transactions/execute", body)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 once breaker opened, got %d", w.Code)
	}
	if env.breaker.State(bank.CoreBankCircuit) != breaker.StateOpen {
		t.Errorf("expected core circuit open, got %s", env.breaker.State(bank.CoreBankCircuit))
	}
}

func TestExecuteTransactionUnreachableCore(t *testing.T) {
	env := newTestEnv(t, "http://localhost:1", "http://localhost:1", "http://localhost:1")
	w := postJSON(t, env.handlers.ExecuteTransaction, "/api/v1/transactions/execute",
		`{"source_account":"1012345678","target_account":"1018765432","amount":50000}`)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 for unreachable core, got %d", w.Code)
	}
}

func TestExecuteExternalAliasSetsDeprecationHeader(t *testing.T) {
	bankA := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"accepted"}`))
	}))
	defer bankA.Close()

	env := newTestEnv(t, "http://localhost:1", bankA.URL, "http://localhost:1")
	w := postJSON(t, env.handlers.ExecuteExternalTransaction, "/api/v1/transactions/external/execute",
		`{"source_account":"1012345678","target_account":"5678123456","amount":50000}`)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if w.Header().Get("Deprecation") != "true" {
		t.Errorf("expected Deprecation header on alias endpoint")
	}
}

func TestReceiveTransactionRequiresAPIKey(t *testing.T) {
	env := newTestEnv(t, "http://localhost:1", "http://localhost:1", "http://localhost:1")
	body := `{"sender_account":"5678123456","receiver_account":"1012345678","amount":50000,"currency":"IDR"}`

	w := postJSON(t, env.handlers.ReceiveTransaction, "/api/v1/transactions/receive", body)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without API key, got %d", w.Code)
	}

	r := httptest.NewRequest("POST", "/api/v1/transactions/receive", strings.NewReader(body))
	r.Header.Set("X-API-Key", "wrong-key")
	w = httptest.NewRecorder()
	env.handlers.ReceiveTransaction(w, r)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with unknown API key, got %d", w.Code)
	}
}

func TestReceiveTransactionForwardsToCore(t *testing.T) {
	core := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/transactions/incoming" {
			t.Errorf("unexpected core path %s", r.URL.Path)
		}
		var incoming bank.IncomingTransfer
		if err := json.NewDecoder(r.Body).Decode(&incoming); err != nil {
			t.Fatalf("failed to decode incoming transfer: %v", err)
		}
		if incoming.SenderBank != "MINIBANK_A" {
			t.Errorf("expected sender bank from API key, got %q", incoming.SenderBank)
		}
		w.Write([]byte(`{"status":"credited"}`))
	}))
	defer core.Close()

	env := newTestEnv(t, core.URL, "http://localhost:1", "http://localhost:1")
	r := httptest.NewRequest("POST", "/api/v1/transactions/receive",
		strings.NewReader(`{"sender_account":"5678123456","receiver_account":"1012345678","amount":50000,"currency":"IDR"}`))
	r.Header.Set("X-API-Key", "key-a")
	w := httptest.NewRecorder()
	env.handlers.ReceiveTransaction(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if len(env.auditor.entries) != 1 || env.auditor.entries[0].Type != database.TransactionTypeIncoming {
		t.Errorf("expected one incoming_external audit entry, got %+v", env.auditor.entries)
	}
}

func TestReceiveTransactionRejectsForeignReceiver(t *testing.T) {
	env := newTestEnv(t, "http://localhost:1", "http://localhost:1", "http://localhost:1")
	r := httptest.NewRequest("POST", "/api/v1/transactions/receive",
		strings.NewReader(`{"sender_account":"5678123456","receiver_account":"9012345678","amount":50000,"currency":"IDR"}`))
	r.Header.Set("X-API-Key", "key-a")
	w := httptest.NewRecorder()
	env.handlers.ReceiveTransaction(w, r)

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for receiver held elsewhere, got %d", w.Code)
	}
}

func TestMutationHistory(t *testing.T) {
	core := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("account_number"); got != "1012345678" {
			t.Errorf("unexpected account_number %q", got)
		}
		w.Write([]byte(`{"mutations":[]}`))
	}))
	defer core.Close()

	env := newTestEnv(t, core.URL, "http://localhost:1", "http://localhost:1")
	w := postJSON(t, env.handlers.MutationHistory, "/api/v1/history/mutations",
		`{"account_number":"1012345678"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "mutations") {
		t.Errorf("expected core response passthrough, got %s", w.Body.String())
	}
	if len(env.auditor.entries) != 1 || env.auditor.entries[0].Type != database.TransactionTypeInquiry {
		t.Errorf("expected one inquiry audit entry, got %+v", env.auditor.entries)
	}
}

func TestSyncAccount(t *testing.T) {
	core := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/accounts/create" {
			t.Errorf("unexpected core path %s", r.URL.Path)
		}
		w.Write([]byte(`{"account_number":"1010000001"}`))
	}))
	defer core.Close()

	env := newTestEnv(t, core.URL, "http://localhost:1", "http://localhost:1")
	w := postJSON(t, env.handlers.SyncAccount, "/core/accounts/sync",
		`{"full_name":"Budi Santoso","id_portofolio":"PF001","birth_date":"1990-01-01","address":"Jakarta","NIK":"3171234567890001","phone_number":"+628123456789","email":"budi@example.com","PIN":123456}`)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if len(env.auditor.entries) != 1 || env.auditor.entries[0].Type != database.TransactionTypeAccount {
		t.Errorf("expected one account_sync audit entry, got %+v", env.auditor.entries)
	}
}

func TestAccountBalanceUsesServiceCredentials(t *testing.T) {
	service := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization-Username") != "gateway" {
			t.Errorf("missing service auth username header")
		}
		w.Write([]byte(`{"balance":1000000}`))
	}))
	defer service.Close()

	env := newTestEnv(t, "http://localhost:1", "http://localhost:1", service.URL)
	r := httptest.NewRequest("GET", "/core/accounts/balance?account_number=1012345678", nil)
	w := httptest.NewRecorder()
	env.handlers.AccountBalance(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHealthDegradedWhenDatabaseDown(t *testing.T) {
	env := newTestEnv(t, "http://localhost:1", "http://localhost:1", "http://localhost:1")
	env.store.pingErr = errDown

	w := httptest.NewRecorder()
	env.handlers.Health(w, httptest.NewRequest("GET", "/health", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"status":"degraded"`) {
		t.Errorf("expected degraded status, got %s", w.Body.String())
	}
}

func TestHealthReportsCircuits(t *testing.T) {
	env := newTestEnv(t, "http://localhost:1", "http://localhost:1", "http://localhost:1")

	w := httptest.NewRecorder()
	env.handlers.Health(w, httptest.NewRequest("GET", "/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp struct {
		CircuitBreakers map[string]string `json:"circuit_breakers"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.CircuitBreakers[bank.CoreBankCircuit] != "closed" {
		t.Errorf("expected closed core circuit, got %v", resp.CircuitBreakers)
	}
	if _, ok := resp.CircuitBreakers["external_bank_MINIBANK_A"]; !ok {
		t.Errorf("expected MINIBANK_A circuit listed, got %v", resp.CircuitBreakers)
	}
}

func TestResetCircuit(t *testing.T) {
	env := newTestEnv(t, "http://localhost:1", "http://localhost:1", "http://localhost:1")

	router := chi.NewRouter()
	router.Post("/api/v1/circuit-breaker/reset/{service}", env.handlers.ResetCircuit)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("POST", "/api/v1/circuit-breaker/reset/core_bank", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("POST", "/api/v1/circuit-breaker/reset/nonsense", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown service, got %d", w.Code)
	}
}

func TestStats(t *testing.T) {
	env := newTestEnv(t, "http://localhost:1", "http://localhost:1", "http://localhost:1")
	env.auditor.stats = &database.TransactionStats{TotalTransactions: 7, SuccessCount: 6, SuccessRate: 85.7}

	w := httptest.NewRecorder()
	env.handlers.Stats(w, httptest.NewRequest("GET", "/api/v1/stats", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"total_transactions":7`) {
		t.Errorf("expected stats in response, got %s", w.Body.String())
	}
}
