// Package audit records every transaction that passes through the gateway.
package audit

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/minibank/middleware/internal/database"
)

// Recorder writes audit trail entries. Write failures are logged and
// swallowed: an audit problem must never fail the customer's transaction.
type Recorder struct {
	db *database.DB
}

// NewRecorder creates an audit recorder.
func NewRecorder(db *database.DB) *Recorder {
	return &Recorder{db: db}
}

// Entry describes one gateway transaction for the audit trail.
type Entry struct {
	Type         database.TransactionType
	SourceSystem string
	TargetSystem string
	Endpoint     string
	Request      any
	Response     any
	StatusCode   int
	DurationMs   int
	Error        string
}

// Record persists an audit entry.
func (r *Recorder) Record(entry Entry) {
	row := &database.TransactionLog{
		TransactionType: entry.Type,
		SourceSystem:    entry.SourceSystem,
		TargetSystem:    entry.TargetSystem,
		Endpoint:        entry.Endpoint,
		StatusCode:      entry.StatusCode,
		DurationMs:      entry.DurationMs,
		ErrorMessage:    entry.Error,
	}

	var err error
	if row.RequestPayload, err = marshalPayload(entry.Request); err != nil {
		log.Error().Err(err).Msg("Failed to marshal audit request payload")
	}
	if row.ResponsePayload, err = marshalPayload(entry.Response); err != nil {
		log.Error().Err(err).Msg("Failed to marshal audit response payload")
	}

	if err := r.db.CreateTransactionLog(row); err != nil {
		log.Error().Err(err).
			Str("type", string(entry.Type)).
			Str("target", entry.TargetSystem).
			Msg("Failed to write audit trail entry")
		return
	}

	log.Debug().
		Str("type", string(entry.Type)).
		Str("source", entry.SourceSystem).
		Str("target", entry.TargetSystem).
		Int("status", entry.StatusCode).
		Msg("Transaction audited")
}

// Stats returns aggregate statistics for the last N hours.
func (r *Recorder) Stats(hours int) (*database.TransactionStats, error) {
	return r.db.GetTransactionStats(hours)
}

func marshalPayload(v any) (*string, error) {
	if v == nil {
		return nil, nil
	}

	switch p := v.(type) {
	case json.RawMessage:
		if len(p) == 0 {
			return nil, nil
		}
		s := string(p)
		return &s, nil
	case string:
		if p == "" {
			return nil, nil
		}
		return &p, nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	s := string(data)
	return &s, nil
}
