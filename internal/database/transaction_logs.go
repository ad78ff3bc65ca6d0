package database

import (
	"database/sql"
	"fmt"
	"time"
)

// TransactionType classifies an audit trail entry
type TransactionType string

const (
	TransactionTypeInternal TransactionType = "internal"
	TransactionTypeExternal TransactionType = "external"
	TransactionTypeIncoming TransactionType = "incoming_external"
	TransactionTypeInquiry  TransactionType = "inquiry"
	TransactionTypeAccount  TransactionType = "account_sync"
	TransactionTypeUnknown  TransactionType = "unknown"
)

// TransactionLog is one audit trail row for a request that passed through the gateway
type TransactionLog struct {
	ID              int64           `json:"id"`
	TransactionType TransactionType `json:"transaction_type"`
	SourceSystem    string          `json:"source_system"`
	TargetSystem    string          `json:"target_system"`
	Endpoint        string          `json:"endpoint,omitempty"`
	RequestPayload  *string         `json:"request_payload,omitempty"`
	ResponsePayload *string         `json:"response_payload,omitempty"`
	StatusCode      int             `json:"status_code"`
	DurationMs      int             `json:"duration_ms"`
	ErrorMessage    string          `json:"error_message,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// TransactionStats summarizes audit trail activity over a window
type TransactionStats struct {
	TotalTransactions int     `json:"total_transactions"`
	InternalCount     int     `json:"internal_count"`
	ExternalCount     int     `json:"external_count"`
	SuccessCount      int     `json:"success_count"`
	SuccessRate       float64 `json:"success_rate"`
	AvgDurationMs     float64 `json:"avg_duration_ms"`
}

// CreateTransactionLog inserts a new audit trail row
func (db *DB) CreateTransactionLog(entry *TransactionLog) error {
	result, err := db.Exec(`
		INSERT INTO transaction_logs
			(transaction_type, source_system, target_system, endpoint,
			 request_payload, response_payload, status_code, duration_ms, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.TransactionType, entry.SourceSystem, entry.TargetSystem, entry.Endpoint,
		entry.RequestPayload, entry.ResponsePayload, entry.StatusCode, entry.DurationMs,
		nullableError(entry.ErrorMessage))
	if err != nil {
		return fmt.Errorf("failed to create transaction log: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	entry.ID = id
	entry.CreatedAt = time.Now()

	return nil
}

// GetRecentTransactionLogs returns the most recent audit rows
func (db *DB) GetRecentTransactionLogs(limit int) ([]*TransactionLog, error) {
	rows, err := db.Query(`
		SELECT log_id, transaction_type, source_system, target_system, endpoint,
		       request_payload, response_payload, status_code, duration_ms, error_message, created_at
		FROM transaction_logs
		ORDER BY created_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transaction logs: %w", err)
	}
	defer rows.Close()

	return scanTransactionLogs(rows)
}

// GetTransactionLogsByType returns audit rows of one type within the last N hours
func (db *DB) GetTransactionLogsByType(txnType TransactionType, hours int) ([]*TransactionLog, error) {
	rows, err := db.Query(`
		SELECT log_id, transaction_type, source_system, target_system, endpoint,
		       request_payload, response_payload, status_code, duration_ms, error_message, created_at
		FROM transaction_logs
		WHERE transaction_type = ? AND created_at >= NOW() - INTERVAL ? HOUR
		ORDER BY created_at DESC
	`, txnType, hours)
	if err != nil {
		return nil, fmt.Errorf("failed to list transaction logs by type: %w", err)
	}
	defer rows.Close()

	return scanTransactionLogs(rows)
}

// GetTransactionStats returns aggregate audit statistics for the last N hours
func (db *DB) GetTransactionStats(hours int) (*TransactionStats, error) {
	stats := &TransactionStats{}
	var avgDuration sql.NullFloat64

	err := db.QueryRow(`
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN transaction_type = 'internal' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN transaction_type = 'external' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status_code = 200 THEN 1 ELSE 0 END), 0),
			AVG(duration_ms)
		FROM transaction_logs
		WHERE created_at >= NOW() - INTERVAL ? HOUR
	`, hours).Scan(&stats.TotalTransactions, &stats.InternalCount, &stats.ExternalCount,
		&stats.SuccessCount, &avgDuration)
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction stats: %w", err)
	}

	if stats.TotalTransactions > 0 {
		stats.SuccessRate = float64(stats.SuccessCount) / float64(stats.TotalTransactions) * 100
	}
	if avgDuration.Valid {
		stats.AvgDurationMs = avgDuration.Float64
	}

	return stats, nil
}

func scanTransactionLogs(rows *sql.Rows) ([]*TransactionLog, error) {
	var logs []*TransactionLog
	for rows.Next() {
		entry := &TransactionLog{}
		var endpoint, reqPayload, respPayload, errMsg sql.NullString
		var statusCode, durationMs sql.NullInt64

		if err := rows.Scan(&entry.ID, &entry.TransactionType, &entry.SourceSystem,
			&entry.TargetSystem, &endpoint, &reqPayload, &respPayload,
			&statusCode, &durationMs, &errMsg, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction log: %w", err)
		}

		entry.Endpoint = nullStringValue(endpoint)
		entry.ErrorMessage = nullStringValue(errMsg)
		if reqPayload.Valid {
			entry.RequestPayload = &reqPayload.String
		}
		if respPayload.Valid {
			entry.ResponsePayload = &respPayload.String
		}
		entry.StatusCode = int(statusCode.Int64)
		entry.DurationMs = int(durationMs.Int64)

		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transaction logs: %w", err)
	}
	return logs, nil
}

// nullableError maps an empty error message to SQL NULL
func nullableError(msg string) any {
	if msg == "" {
		return nil
	}
	return msg
}
