package database

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

// Migrate runs all database migrations
func (db *DB) Migrate() error {
	log.Info().Msg("Running database migrations")

	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INT PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var currentVersion int
	err = db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get current migration version: %w", err)
	}

	log.Debug().Int("current_version", currentVersion).Msg("Current schema version")

	for _, migration := range migrations {
		if migration.Version > currentVersion {
			log.Info().Int("version", migration.Version).Str("name", migration.Name).Msg("Applying migration")

			if err := db.Transaction(func(tx *sql.Tx) error {
				// MySQL DDL commits implicitly, so a failed migration may leave
				// earlier statements applied. Statements are ordered so a rerun
				// after a fix is safe.
				statements := splitSQLStatements(migration.SQL)
				for i, stmt := range statements {
					if _, err := tx.Exec(stmt); err != nil {
						return fmt.Errorf("migration %d statement %d failed: %w", migration.Version, i+1, err)
					}
				}

				if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", migration.Version); err != nil {
					return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
				}

				return nil
			}); err != nil {
				return err
			}
		}
	}

	log.Info().Msg("Database migrations complete")
	return nil
}

type migration struct {
	Version int
	Name    string
	SQL     string
}

// splitSQLStatements splits a SQL string into individual statements.
// It handles comments and only returns non-empty statements.
func splitSQLStatements(sql string) []string {
	var statements []string
	var current strings.Builder

	lines := strings.Split(sql, "\n")
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		current.WriteString(line)
		current.WriteString("\n")

		if strings.HasSuffix(trimmed, ";") {
			stmt := strings.TrimSpace(current.String())
			if stmt != "" && stmt != ";" {
				statements = append(statements, stmt)
			}
			current.Reset()
		}
	}

	if remaining := strings.TrimSpace(current.String()); remaining != "" {
		statements = append(statements, remaining)
	}

	return statements
}

var migrations = []migration{
	{
		Version: 1,
		Name:    "initial_schema",
		SQL: `
			-- Audit trail for every transaction passing through the gateway
			CREATE TABLE transaction_logs (
				log_id BIGINT AUTO_INCREMENT PRIMARY KEY,
				transaction_type VARCHAR(50) NOT NULL,
				source_system VARCHAR(100) NOT NULL,
				target_system VARCHAR(100) NOT NULL,
				endpoint VARCHAR(255),
				request_payload TEXT,
				response_payload TEXT,
				status_code INT,
				duration_ms INT,
				error_message TEXT,
				created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
				INDEX idx_transaction_type (transaction_type),
				INDEX idx_created_at (created_at),
				INDEX idx_target_system (target_system)
			);

			-- Partner bank reachability, maintained by the health poller
			CREATE TABLE external_bank_status (
				status_id INT AUTO_INCREMENT PRIMARY KEY,
				bank_code VARCHAR(50) NOT NULL UNIQUE,
				bank_name VARCHAR(100),
				status VARCHAR(20) NOT NULL DEFAULT 'active',
				last_check TIMESTAMP NULL,
				failure_count INT NOT NULL DEFAULT 0,
				last_error TEXT,
				created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
				INDEX idx_bank_code (bank_code)
			);

			-- Service-layer credentials, stored reversibly encrypted because
			-- they are replayed on outbound requests
			CREATE TABLE service_credentials (
				credential_id INT AUTO_INCREMENT PRIMARY KEY,
				service_name VARCHAR(100) NOT NULL UNIQUE,
				username VARCHAR(100) NOT NULL,
				password_encrypted VARCHAR(255) NOT NULL,
				is_active BOOLEAN NOT NULL DEFAULT TRUE,
				description TEXT,
				created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
			);
		`,
	},
}
