package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// ErrNotConfigured indicates the storage pool was not initialised.
var ErrNotConfigured = errors.New("storage: pool not configured")

// AlertRecord captures one dispatched alert for auditing.
type AlertRecord struct {
	ID           int64
	EventID      string
	Symbol       string
	Exchange     string
	Direction    string
	VariationPct decimal.Decimal
	ShortScore   decimal.Decimal
	ObservedAt   time.Time
	CreatedAt    time.Time
}

const (
	insertAlertSQL = `INSERT INTO alerts (
        event_id,
        symbol,
        exchange,
        direction,
        variation_pct,
        short_score,
        observed_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7
    )
    RETURNING id, created_at;`

	listRecentAlertsSQL = `SELECT
        id,
        event_id,
        symbol,
        exchange,
        direction,
        variation_pct,
        short_score,
        observed_at,
        created_at
    FROM alerts
    ORDER BY created_at DESC
    LIMIT $1;`
)

// AlertStore defines operations on the alert audit log.
type AlertStore interface {
	InsertAlert(ctx context.Context, record AlertRecord) (AlertRecord, error)
	ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error)
}

// Store wraps a pgx pool with the audit log queries.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore constructs a Store over an initialised pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InsertAlert persists a dispatched alert.
func (s *Store) InsertAlert(ctx context.Context, record AlertRecord) (AlertRecord, error) {
	if s.pool == nil {
		return AlertRecord{}, ErrNotConfigured
	}

	row := s.pool.QueryRow(ctx, insertAlertSQL,
		record.EventID,
		record.Symbol,
		record.Exchange,
		record.Direction,
		record.VariationPct,
		record.ShortScore,
		record.ObservedAt,
	)
	if err := row.Scan(&record.ID, &record.CreatedAt); err != nil {
		return AlertRecord{}, err
	}
	return record, nil
}

// ListRecentAlerts returns the newest audit rows.
func (s *Store) ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	if s.pool == nil {
		return nil, ErrNotConfigured
	}

	rows, err := s.pool.Query(ctx, listRecentAlertsSQL, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []AlertRecord
	for rows.Next() {
		var record AlertRecord
		if err := rows.Scan(
			&record.ID,
			&record.EventID,
			&record.Symbol,
			&record.Exchange,
			&record.Direction,
			&record.VariationPct,
			&record.ShortScore,
			&record.ObservedAt,
			&record.CreatedAt,
		); err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

var _ AlertStore = (*Store)(nil)
