package db

import (
	"context"
	"errors"
	"time"

	"github.com/HanTheDev/scan-gateway/internal/models"
	"github.com/jackc/pgx/v5"
)

// LoadDocument returns the raw JSON body stored under name, or nil when no
// row exists yet.
func (db *DB) LoadDocument(ctx context.Context, name string) ([]byte, error) {
	query := `SELECT body FROM gateway_documents WHERE name = $1`

	var body []byte
	err := db.Pool.QueryRow(ctx, query, name).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return body, nil
}

// SaveDocument replaces the body stored under name in a single statement.
func (db *DB) SaveDocument(ctx context.Context, name string, body []byte) error {
	query := `
        INSERT INTO gateway_documents (name, body, updated_at)
        VALUES ($1, $2, NOW())
        ON CONFLICT (name) DO UPDATE
        SET body = EXCLUDED.body, updated_at = NOW()
    `

	_, err := db.Pool.Exec(ctx, query, name, body)
	return err
}

func (db *DB) LogScan(ctx context.Context, log *models.ScanLog) error {
	query := `
        INSERT INTO scan_logs (request_id, account_id, outcome, decision, risk, failure_kind, status_code, response_time_ms, request_size, timestamp)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
    `

	ts := log.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	_, err := db.Pool.Exec(ctx, query,
		log.RequestID,
		log.AccountID,
		log.Outcome,
		log.Decision,
		log.Risk,
		log.FailureKind,
		log.StatusCode,
		log.ResponseTimeMs,
		log.RequestSize,
		ts,
	)

	return err
}

// GetScanStats aggregates scan_logs by outcome. Empty from/to leave that side
// of the range open; both are YYYY-MM-DD dates.
func (db *DB) GetScanStats(ctx context.Context, from, to string) ([]models.ScanStats, error) {
	query := `
        SELECT outcome, COUNT(*), COALESCE(AVG(response_time_ms), 0)::BIGINT
        FROM scan_logs
        WHERE ($1::text = '' OR timestamp >= NULLIF($1::text, '')::date)
          AND ($2::text = '' OR timestamp < NULLIF($2::text, '')::date + INTERVAL '1 day')
        GROUP BY outcome
        ORDER BY outcome
    `

	rows, err := db.Pool.Query(ctx, query, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []models.ScanStats
	for rows.Next() {
		var s models.ScanStats
		if err := rows.Scan(&s.Outcome, &s.Count, &s.AvgTimeMs); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}
