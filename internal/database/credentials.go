package database

import (
	"database/sql"
	"fmt"
	"time"
)

// ServiceCredential stores login material for an upstream service. The
// password is AES-GCM encrypted, not hashed: the gateway replays it on
// outbound requests.
type ServiceCredential struct {
	ID                int64
	ServiceName       string
	Username          string
	PasswordEncrypted string
	IsActive          bool
	Description       string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// GetServiceCredential retrieves the active credential for a service.
// Returns nil when no active credential is stored.
func (db *DB) GetServiceCredential(serviceName string) (*ServiceCredential, error) {
	cred := &ServiceCredential{}
	var description sql.NullString

	err := db.QueryRow(`
		SELECT credential_id, service_name, username, password_encrypted, is_active, description, created_at, updated_at
		FROM service_credentials
		WHERE service_name = ? AND is_active = TRUE
	`, serviceName).Scan(&cred.ID, &cred.ServiceName, &cred.Username, &cred.PasswordEncrypted,
		&cred.IsActive, &description, &cred.CreatedAt, &cred.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get service credential: %w", err)
	}

	cred.Description = nullStringValue(description)
	return cred, nil
}

// UpsertServiceCredential stores or replaces the credential for a service
func (db *DB) UpsertServiceCredential(serviceName, username, passwordEncrypted, description string) error {
	_, err := db.Exec(`
		INSERT INTO service_credentials (service_name, username, password_encrypted, is_active, description)
		VALUES (?, ?, ?, TRUE, ?)
		ON DUPLICATE KEY UPDATE
			username = VALUES(username),
			password_encrypted = VALUES(password_encrypted),
			is_active = TRUE,
			description = VALUES(description)
	`, serviceName, username, passwordEncrypted, nullableError(description))
	if err != nil {
		return fmt.Errorf("failed to upsert service credential: %w", err)
	}
	return nil
}

// DeactivateServiceCredential disables a stored credential without deleting it
func (db *DB) DeactivateServiceCredential(serviceName string) (bool, error) {
	result, err := db.Exec(`
		UPDATE service_credentials SET is_active = FALSE WHERE service_name = ?
	`, serviceName)
	if err != nil {
		return false, fmt.Errorf("failed to deactivate service credential: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return affected > 0, nil
}
