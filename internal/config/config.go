package config

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	// InternalBankCode identifies this institution in interbank payloads.
	InternalBankCode = "MINIBANK"
	// InternalAccountPrefix marks account numbers held by the internal core bank.
	InternalAccountPrefix = "101"

	// DefaultCurrency is applied when a transaction omits the currency field.
	DefaultCurrency = "IDR"

	// MinTransactionAmount and MaxTransactionAmount bound a single transfer (IDR).
	MinTransactionAmount = 10_000
	MaxTransactionAmount = 100_000_000
)

// ExternalBank describes one partner bank reachable over the interbank API.
type ExternalBank struct {
	Code    string
	URL     string
	APIKey  string
	Enabled bool
	Timeout time.Duration
}

// Config holds all runtime configuration, loaded from environment variables.
// The deployment contract is a .env file exported into the process environment.
type Config struct {
	SecretKey string `env:"SECRET_KEY"`

	DBHost     string `env:"DB_HOST"`
	DBPort     int    `env:"DB_PORT" envDefault:"3306"`
	DBUser     string `env:"DB_USER"`
	DBPassword string `env:"DB_PASSWORD"`
	DBName     string `env:"DB_NAME" envDefault:"middleware"`

	CoreURL string `env:"CORE_URL"`

	ServiceURL          string `env:"SERVICE_URL" envDefault:"http://localhost:8000"`
	ServiceAuthUsername string `env:"SERVICE_AUTH_USERNAME"`
	ServiceAuthPassword string `env:"SERVICE_AUTH_PASSWORD"`

	RateLimit int           `env:"RATE_LIMIT" envDefault:"100"`
	Timeout   time.Duration `env:"TIMEOUT" envDefault:"30s"`

	BreakerThreshold int           `env:"CIRCUIT_BREAKER_THRESHOLD" envDefault:"5"`
	BreakerTimeout   time.Duration `env:"CIRCUIT_BREAKER_TIMEOUT" envDefault:"60s"`

	MinibankAURL     string        `env:"MINIBANK_A_URL" envDefault:"http://localhost:8003"`
	MinibankAAPIKey  string        `env:"MINIBANK_A_API_KEY"`
	MinibankAEnabled bool          `env:"MINIBANK_A_ENABLED" envDefault:"true"`
	MinibankATimeout time.Duration `env:"MINIBANK_A_TIMEOUT" envDefault:"15s"`

	MinibankBURL     string        `env:"MINIBANK_B_URL" envDefault:"http://localhost:8004"`
	MinibankBAPIKey  string        `env:"MINIBANK_B_API_KEY"`
	MinibankBEnabled bool          `env:"MINIBANK_B_ENABLED" envDefault:"true"`
	MinibankBTimeout time.Duration `env:"MINIBANK_B_TIMEOUT" envDefault:"15s"`

	Host     string `env:"HOST" envDefault:"localhost"`
	Port     int    `env:"PORT" envDefault:"8001"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load parses configuration from the environment and validates required
// values. Duration variables accept bare seconds ("30") as well as Go
// duration strings ("30s"); existing .env files use the bare form.
func Load() (*Config, error) {
	cfg := &Config{}
	opts := env.Options{FuncMap: map[reflect.Type]env.ParserFunc{
		reflect.TypeOf(time.Duration(0)): parseSecondsOrDuration,
	}}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseSecondsOrDuration(v string) (any, error) {
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(v)
}

func (c *Config) validate() error {
	var missing []string
	if c.SecretKey == "" {
		missing = append(missing, "SECRET_KEY")
	}
	if c.DBHost == "" {
		missing = append(missing, "DB_HOST")
	}
	if c.DBUser == "" {
		missing = append(missing, "DB_USER")
	}
	if c.DBPassword == "" {
		missing = append(missing, "DB_PASSWORD")
	}
	if c.CoreURL == "" {
		missing = append(missing, "CORE_URL")
	}
	if len(missing) > 0 {
		return fmt.Errorf("required environment variables not set: %s", strings.Join(missing, ", "))
	}
	return nil
}

// ExternalBanks returns the configured partner bank registry keyed by bank code.
func (c *Config) ExternalBanks() map[string]ExternalBank {
	return map[string]ExternalBank{
		"MINIBANK_A": {
			Code:    "MINIBANK_A",
			URL:     c.MinibankAURL,
			APIKey:  c.MinibankAAPIKey,
			Enabled: c.MinibankAEnabled,
			Timeout: c.MinibankATimeout,
		},
		"MINIBANK_B": {
			Code:    "MINIBANK_B",
			URL:     c.MinibankBURL,
			APIKey:  c.MinibankBAPIKey,
			Enabled: c.MinibankBEnabled,
			Timeout: c.MinibankBTimeout,
		},
	}
}

// ExternalBank looks up a partner bank by code.
func (c *Config) ExternalBank(code string) (ExternalBank, bool) {
	bank, ok := c.ExternalBanks()[code]
	return bank, ok
}

// IsInternalAccount reports whether an account number belongs to the internal core bank.
func IsInternalAccount(accountNumber string) bool {
	return strings.HasPrefix(accountNumber, InternalAccountPrefix)
}

// IdentifyExternalBank maps an account number prefix to a partner bank code.
// Returns an empty string when the prefix is not recognized.
func IdentifyExternalBank(accountNumber string) string {
	switch {
	case strings.HasPrefix(accountNumber, "5678"):
		return "MINIBANK_A"
	case strings.HasPrefix(accountNumber, "9012"):
		return "MINIBANK_B"
	default:
		return ""
	}
}
