// Package healthcheck periodically probes partner bank health endpoints and
// records the results for the monitoring API.
package healthcheck

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/minibank/middleware/internal/config"
	"github.com/minibank/middleware/internal/database"
)

// defaultSchedule probes every minute.
const defaultSchedule = "* * * * *"

// Poller runs scheduled health probes against enabled partner banks.
type Poller struct {
	cfg    *config.Config
	db     *database.DB
	cron   *cron.Cron
	client *http.Client

	mu      sync.Mutex
	running bool
}

// New creates a health poller.
func New(cfg *config.Config, db *database.DB) *Poller {
	return &Poller{
		cfg:    cfg,
		db:     db,
		cron:   cron.New(),
		client: &http.Client{},
	}
}

// Start schedules the probes. Returns false when no enabled banks exist.
func (p *Poller) Start() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return true, nil
	}

	enabled := 0
	for _, bank := range p.cfg.ExternalBanks() {
		if bank.Enabled {
			enabled++
		}
	}
	if enabled == 0 {
		return false, nil
	}

	if _, err := p.cron.AddFunc(defaultSchedule, p.probeAll); err != nil {
		return false, fmt.Errorf("failed to schedule health probes: %w", err)
	}

	p.cron.Start()
	p.running = true
	log.Info().Int("banks", enabled).Msg("Bank health poller started")
	return true, nil
}

// Stop halts scheduling and waits for a running probe to finish.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()

	<-p.cron.Stop().Done()
	log.Info().Msg("Bank health poller stopped")
}

func (p *Poller) probeAll() {
	for _, bank := range p.cfg.ExternalBanks() {
		if !bank.Enabled {
			continue
		}
		p.probe(bank)
	}
}

// probe checks one bank's health endpoint and records the outcome.
func (p *Poller) probe(bank config.ExternalBank) {
	ctx, cancel := context.WithTimeout(context.Background(), bank.Timeout)
	defer cancel()

	status, probeErr := p.check(ctx, bank)

	if err := p.db.UpsertBankStatus(bank.Code, bank.Code, status, probeErr); err != nil {
		log.Error().Err(err).Str("bank_code", bank.Code).Msg("Failed to record bank health")
		return
	}

	if status == database.BankStatusDown {
		log.Warn().Str("bank_code", bank.Code).Str("error", probeErr).Msg("Partner bank unreachable")
	} else {
		log.Debug().Str("bank_code", bank.Code).Msg("Partner bank healthy")
	}
}

func (p *Poller) check(ctx context.Context, bank config.ExternalBank) (database.BankStatus, string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, bank.URL+"/health", nil)
	if err != nil {
		return database.BankStatusDown, err.Error()
	}
	req.Header.Set("X-API-Key", bank.APIKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return database.BankStatusDown, err.Error()
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return database.BankStatusDown, fmt.Sprintf("health endpoint returned status %d", resp.StatusCode)
	}
	return database.BankStatusActive, ""
}
