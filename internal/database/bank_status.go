package database

import (
	"database/sql"
	"fmt"
	"time"
)

// BankStatus is the recorded reachability state of a partner bank
type BankStatus string

const (
	BankStatusActive      BankStatus = "active"
	BankStatusDown        BankStatus = "down"
	BankStatusMaintenance BankStatus = "maintenance"
)

// ExternalBankStatus is the stored health record for one partner bank
type ExternalBankStatus struct {
	ID           int64      `json:"id"`
	BankCode     string     `json:"bank_code"`
	BankName     string     `json:"bank_name,omitempty"`
	Status       BankStatus `json:"status"`
	LastCheck    *time.Time `json:"last_check,omitempty"`
	FailureCount int        `json:"failure_count"`
	LastError    string     `json:"last_error,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// GetBankStatus retrieves the health record for a bank by code. Returns nil
// when the bank has never been checked.
func (db *DB) GetBankStatus(bankCode string) (*ExternalBankStatus, error) {
	status := &ExternalBankStatus{}
	var bankName, lastError sql.NullString
	var lastCheck sql.NullTime

	err := db.QueryRow(`
		SELECT status_id, bank_code, bank_name, status, last_check, failure_count, last_error, created_at, updated_at
		FROM external_bank_status WHERE bank_code = ?
	`, bankCode).Scan(&status.ID, &status.BankCode, &bankName, &status.Status,
		&lastCheck, &status.FailureCount, &lastError, &status.CreatedAt, &status.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bank status: %w", err)
	}

	status.BankName = nullStringValue(bankName)
	status.LastError = nullStringValue(lastError)
	status.LastCheck = nullTimeToPtr(lastCheck)

	return status, nil
}

// ListBankStatuses returns health records for all known partner banks
func (db *DB) ListBankStatuses() ([]*ExternalBankStatus, error) {
	rows, err := db.Query(`
		SELECT status_id, bank_code, bank_name, status, last_check, failure_count, last_error, created_at, updated_at
		FROM external_bank_status ORDER BY bank_code
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list bank statuses: %w", err)
	}
	defer rows.Close()

	var statuses []*ExternalBankStatus
	for rows.Next() {
		status := &ExternalBankStatus{}
		var bankName, lastError sql.NullString
		var lastCheck sql.NullTime

		if err := rows.Scan(&status.ID, &status.BankCode, &bankName, &status.Status,
			&lastCheck, &status.FailureCount, &lastError, &status.CreatedAt, &status.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan bank status: %w", err)
		}

		status.BankName = nullStringValue(bankName)
		status.LastError = nullStringValue(lastError)
		status.LastCheck = nullTimeToPtr(lastCheck)
		statuses = append(statuses, status)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bank statuses: %w", err)
	}

	return statuses, nil
}

// UpsertBankStatus records the outcome of a health probe. A down result
// increments the failure count and keeps the error; recovery resets both.
func (db *DB) UpsertBankStatus(bankCode, bankName string, status BankStatus, probeErr string) error {
	now := time.Now()

	if status == BankStatusDown {
		_, err := db.Exec(`
			INSERT INTO external_bank_status (bank_code, bank_name, status, last_check, failure_count, last_error)
			VALUES (?, ?, ?, ?, 1, ?)
			ON DUPLICATE KEY UPDATE
				status = VALUES(status),
				last_check = VALUES(last_check),
				failure_count = failure_count + 1,
				last_error = VALUES(last_error)
		`, bankCode, bankName, status, now, nullableError(probeErr))
		if err != nil {
			return fmt.Errorf("failed to record bank failure: %w", err)
		}
		return nil
	}

	_, err := db.Exec(`
		INSERT INTO external_bank_status (bank_code, bank_name, status, last_check, failure_count, last_error)
		VALUES (?, ?, ?, ?, 0, NULL)
		ON DUPLICATE KEY UPDATE
			status = VALUES(status),
			last_check = VALUES(last_check),
			failure_count = 0,
			last_error = NULL
	`, bankCode, bankName, status, now)
	if err != nil {
		return fmt.Errorf("failed to record bank status: %w", err)
	}
	return nil
}

// ResetBankStatus manually clears failure tracking for a bank
func (db *DB) ResetBankStatus(bankCode string) (bool, error) {
	result, err := db.Exec(`
		UPDATE external_bank_status
		SET status = ?, failure_count = 0, last_error = NULL
		WHERE bank_code = ?
	`, BankStatusActive, bankCode)
	if err != nil {
		return false, fmt.Errorf("failed to reset bank status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return affected > 0, nil
}
