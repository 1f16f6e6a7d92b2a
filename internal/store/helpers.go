package store

import (
	"database/sql"
	"fmt"

	"github.com/BTreeMap/PlatformAI/internal/models"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// scanReceipts drains rows into receipts. Column order matches receiptColumns.
func scanReceipts(rows *sql.Rows) ([]models.Receipt, error) {
	receipts := []models.Receipt{}
	for rows.Next() {
		var r models.Receipt
		var mode, attempt sql.NullString
		var channel, outcome string
		if err := rows.Scan(&r.ID, &channel, &outcome, &mode, &attempt, &r.LatencyMS, &r.Time); err != nil {
			return nil, fmt.Errorf("failed to scan receipt row: %w", err)
		}
		r.Channel = models.Channel(channel)
		r.Outcome = models.Outcome(outcome)
		r.Mode = models.Mode(mode.String)
		r.Attempt = attempt.String
		receipts = append(receipts, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate receipt rows: %w", err)
	}
	return receipts, nil
}

const receiptColumns = `id, channel, outcome, mode, attempt, latency_ms, time`
