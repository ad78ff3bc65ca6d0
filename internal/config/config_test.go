package config

import (
	"strings"
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("SECRET_KEY", "test-secret")
	t.Setenv("DB_HOST", "localhost")
	t.Setenv("DB_USER", "middleware")
	t.Setenv("DB_PASSWORD", "password")
	t.Setenv("CORE_URL", "http://localhost:8002")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.DBPort != 3306 {
		t.Errorf("expected default DB port 3306, got %d", cfg.DBPort)
	}
	if cfg.DBName != "middleware" {
		t.Errorf("expected default DB name middleware, got %s", cfg.DBName)
	}
	if cfg.RateLimit != 100 {
		t.Errorf("expected default rate limit 100, got %d", cfg.RateLimit)
	}
	if cfg.BreakerThreshold != 5 {
		t.Errorf("expected default breaker threshold 5, got %d", cfg.BreakerThreshold)
	}
	if cfg.Port != 8001 {
		t.Errorf("expected default port 8001, got %d", cfg.Port)
	}
}

func TestLoadBareSecondDurations(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("TIMEOUT", "30")
	t.Setenv("CIRCUIT_BREAKER_TIMEOUT", "60")
	t.Setenv("MINIBANK_A_TIMEOUT", "15")
	t.Setenv("MINIBANK_B_TIMEOUT", "45s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Timeout != 30*time.Second {
		t.Errorf("expected TIMEOUT=30 to mean 30s, got %s", cfg.Timeout)
	}
	if cfg.BreakerTimeout != 60*time.Second {
		t.Errorf("expected CIRCUIT_BREAKER_TIMEOUT=60 to mean 60s, got %s", cfg.BreakerTimeout)
	}
	if cfg.MinibankATimeout != 15*time.Second {
		t.Errorf("expected MINIBANK_A_TIMEOUT=15 to mean 15s, got %s", cfg.MinibankATimeout)
	}
	if cfg.MinibankBTimeout != 45*time.Second {
		t.Errorf("expected duration strings to keep working, got %s", cfg.MinibankBTimeout)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SECRET_KEY", "")
	t.Setenv("CORE_URL", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for missing required variables")
	}
	if !strings.Contains(err.Error(), "SECRET_KEY") || !strings.Contains(err.Error(), "CORE_URL") {
		t.Fatalf("expected error to name missing variables, got: %v", err)
	}
}

func TestExternalBanks(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("MINIBANK_A_API_KEY", "key-a")
	t.Setenv("MINIBANK_B_ENABLED", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	bankA, ok := cfg.ExternalBank("MINIBANK_A")
	if !ok {
		t.Fatal("expected MINIBANK_A to be configured")
	}
	if bankA.APIKey != "key-a" {
		t.Errorf("expected MINIBANK_A api key key-a, got %s", bankA.APIKey)
	}
	if !bankA.Enabled {
		t.Error("expected MINIBANK_A to be enabled by default")
	}

	bankB, ok := cfg.ExternalBank("MINIBANK_B")
	if !ok {
		t.Fatal("expected MINIBANK_B to be configured")
	}
	if bankB.Enabled {
		t.Error("expected MINIBANK_B to be disabled")
	}

	if _, ok := cfg.ExternalBank("MINIBANK_C"); ok {
		t.Error("expected unknown bank code to not resolve")
	}
}

func TestIsInternalAccount(t *testing.T) {
	if !IsInternalAccount("1010000000123") {
		t.Error("expected 101 prefix to be internal")
	}
	if IsInternalAccount("5678000000123") {
		t.Error("expected 5678 prefix to not be internal")
	}
}

func TestIdentifyExternalBank(t *testing.T) {
	tests := []struct {
		account string
		want    string
	}{
		{"5678000000123", "MINIBANK_A"},
		{"9012000000456", "MINIBANK_B"},
		{"1010000000123", ""},
		{"9999000000789", ""},
	}

	for _, tt := range tests {
		if got := IdentifyExternalBank(tt.account); got != tt.want {
			t.Errorf("IdentifyExternalBank(%s) = %q, want %q", tt.account, got, tt.want)
		}
	}
}
