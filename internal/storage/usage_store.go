package storage

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// ToolCallRecord represents a single tool invocation
type ToolCallRecord struct {
	CallID     string
	ToolName   string
	Success    bool
	DurationMs int64
	Detail     string
	RecordedAt time.Time
}

// ToolCallAggregate represents aggregated usage for a tool
type ToolCallAggregate struct {
	ToolName     string  `json:"tool_name"`
	CallCount    int64   `json:"call_count"`
	FailureCount int64   `json:"failure_count"`
	TotalMs      int64   `json:"total_ms"`
	AvgMs        float64 `json:"avg_ms"`
}

// FailureRate returns the fraction of calls that failed
func (a *ToolCallAggregate) FailureRate() float64 {
	if a.CallCount == 0 {
		return 0
	}
	return float64(a.FailureCount) / float64(a.CallCount)
}

// AvgLatencyMs returns the average latency in milliseconds
func (a *ToolCallAggregate) AvgLatencyMs() float64 {
	if a.CallCount == 0 {
		return 0
	}
	return float64(a.TotalMs) / float64(a.CallCount)
}

// RecordToolCall persists one tool invocation to SQLite
func (db *DB) RecordToolCall(toolName string, success bool, durationMs int64, detail string) error {
	_, err := db.Exec(`
		INSERT INTO tool_calls (
			call_id, tool_name, success, duration_ms, detail, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?)
	`, uuid.NewString(), toolName, success, durationMs, detail, time.Now().UTC().Format(time.RFC3339))
	return err
}

// ToolCallAggregates returns aggregated usage for all tools within the time window
func (db *DB) ToolCallAggregates(since time.Time) (map[string]*ToolCallAggregate, error) {
	rows, err := db.Query(`
		SELECT
			tool_name,
			COUNT(*) as call_count,
			SUM(CASE WHEN success = 0 THEN 1 ELSE 0 END) as failure_count,
			SUM(duration_ms) as total_ms
		FROM tool_calls
		WHERE recorded_at >= ?
		GROUP BY tool_name
		ORDER BY call_count DESC
	`, since.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]*ToolCallAggregate)
	for rows.Next() {
		var agg ToolCallAggregate
		if err := rows.Scan(
			&agg.ToolName,
			&agg.CallCount,
			&agg.FailureCount,
			&agg.TotalMs,
		); err != nil {
			return nil, err
		}
		agg.AvgMs = agg.AvgLatencyMs()
		result[agg.ToolName] = &agg
	}

	return result, rows.Err()
}

// RecentToolCalls returns recent invocations, optionally filtered by tool
func (db *DB) RecentToolCalls(limit int, toolFilter string) ([]ToolCallRecord, error) {
	var rows *sql.Rows
	var err error

	if toolFilter != "" {
		rows, err = db.Query(`
			SELECT call_id, tool_name, success, duration_ms, detail, recorded_at
			FROM tool_calls
			WHERE tool_name = ?
			ORDER BY recorded_at DESC, call_id
			LIMIT ?
		`, toolFilter, limit)
	} else {
		rows, err = db.Query(`
			SELECT call_id, tool_name, success, duration_ms, detail, recorded_at
			FROM tool_calls
			ORDER BY recorded_at DESC, call_id
			LIMIT ?
		`, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []ToolCallRecord
	for rows.Next() {
		var r ToolCallRecord
		var detail sql.NullString
		var recordedAt string
		if err := rows.Scan(
			&r.CallID, &r.ToolName, &r.Success, &r.DurationMs, &detail, &recordedAt,
		); err != nil {
			return nil, err
		}
		r.Detail = detail.String
		r.RecordedAt, _ = time.Parse(time.RFC3339, recordedAt)
		records = append(records, r)
	}

	return records, rows.Err()
}

// CleanupOldCalls removes usage records older than the retention period
func (db *DB) CleanupOldCalls(retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention).UTC().Format(time.RFC3339)
	result, err := db.Exec(`
		DELETE FROM tool_calls WHERE recorded_at < ?
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// ToolCallStats returns summary statistics for the usage log
func (db *DB) ToolCallStats() (totalRecords int64, oldestRecord, newestRecord *time.Time, err error) {
	var oldestStr, newestStr sql.NullString
	err = db.QueryRow(`
		SELECT
			COUNT(*),
			MIN(recorded_at),
			MAX(recorded_at)
		FROM tool_calls
	`).Scan(&totalRecords, &oldestStr, &newestStr)
	if err == sql.ErrNoRows {
		return 0, nil, nil, nil
	}
	if err != nil {
		return 0, nil, nil, err
	}

	if oldestStr.Valid {
		if t, parseErr := time.Parse(time.RFC3339, oldestStr.String); parseErr == nil {
			oldestRecord = &t
		}
	}
	if newestStr.Valid {
		if t, parseErr := time.Parse(time.RFC3339, newestStr.String); parseErr == nil {
			newestRecord = &t
		}
	}
	return
}
