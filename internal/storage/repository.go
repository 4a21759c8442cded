package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	upsertDailyPointsSQL = `INSERT INTO daily_points (
        address,
        day,
        tx_count,
        gas_used,
        usd_outflow,
        balance_usd,
        points,
        tier_label
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8
    )
    ON CONFLICT (address, day) DO UPDATE
    SET
        tx_count    = EXCLUDED.tx_count,
        gas_used    = EXCLUDED.gas_used,
        usd_outflow = EXCLUDED.usd_outflow,
        balance_usd = EXCLUDED.balance_usd,
        points      = EXCLUDED.points,
        tier_label  = EXCLUDED.tier_label;`

	dailyPointsColumns = `address,
        day,
        tx_count,
        gas_used::text,
        usd_outflow::text,
        balance_usd::text,
        points,
        tier_label,
        created_at`

	listDailyPointsBetweenSQL = `SELECT ` + dailyPointsColumns + `
    FROM daily_points
    WHERE address = $1
      AND day >= $2
      AND day < $3
    ORDER BY day;`

	listRecentDailyPointsSQL = `SELECT ` + dailyPointsColumns + `
    FROM daily_points
    WHERE address = $1
    ORDER BY day DESC
    LIMIT $2;`

	latestDailyPointsBeforeSQL = `SELECT ` + dailyPointsColumns + `
    FROM daily_points
    WHERE address = $1
      AND day < $2
    ORDER BY day DESC
    LIMIT 1;`

	insertAlertSQL = `INSERT INTO alerts (
        address,
        day,
        kind,
        window_points,
        threshold,
        detail,
        channels
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7
    )
    ON CONFLICT (address, day, kind) DO NOTHING
    RETURNING id, address, day, kind, window_points, threshold, detail, channels, created_at;`

	listRecentAlertsSQL = `SELECT
        id,
        address,
        day,
        kind,
        window_points,
        threshold,
        detail,
        channels,
        created_at
    FROM alerts
    ORDER BY created_at DESC
    LIMIT $1;`

	deleteAlertsBeforeSQL = `DELETE FROM alerts WHERE created_at < $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// DailyPointsStore defines operations for per-day aggregate persistence.
type DailyPointsStore interface {
	UpsertDailyPoints(ctx context.Context, row DailyPoints) error
	ListDailyPointsBetween(ctx context.Context, address string, from, to time.Time) ([]DailyPoints, error)
	ListRecentDailyPoints(ctx context.Context, address string, limit int) ([]DailyPoints, error)
	LatestDailyPointsBefore(ctx context.Context, address string, day time.Time) (DailyPoints, bool, error)
}

// AlertStore defines operations for alert auditing.
type AlertStore interface {
	// InsertAlert reports inserted=false when the (address, day, kind) alert already exists.
	InsertAlert(ctx context.Context, alert AlertRecord) (rec AlertRecord, inserted bool, err error)
	ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error)
	DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to daily points and alerts.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// Closing the session releases the lock anyway if this fails.
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// UpsertDailyPoints persists or replaces the aggregate for (address, day).
func (s *Store) UpsertDailyPoints(ctx context.Context, row DailyPoints) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	_, execErr := pool.Exec(ctx, upsertDailyPointsSQL,
		NormalizeAddress(row.Address),
		row.Day,
		row.TxCount,
		row.GasUsed.String(),
		row.USDOutflow.String(),
		row.BalanceUSD.String(),
		row.Points,
		row.TierLabel,
	)
	if execErr != nil {
		return fmt.Errorf("upsert daily points: %w", execErr)
	}
	return nil
}

// ListDailyPointsBetween returns rows with from <= day < to, oldest first.
func (s *Store) ListDailyPointsBetween(ctx context.Context, address string, from, to time.Time) ([]DailyPoints, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listDailyPointsBetweenSQL, NormalizeAddress(address), from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list daily points: %w", queryErr)
	}
	defer rows.Close()

	return collectDailyPoints(rows, 0)
}

// ListRecentDailyPoints returns the newest rows first.
func (s *Store) ListRecentDailyPoints(ctx context.Context, address string, limit int) ([]DailyPoints, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentDailyPointsSQL, NormalizeAddress(address), limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent daily points: %w", queryErr)
	}
	defer rows.Close()

	return collectDailyPoints(rows, limit)
}

// LatestDailyPointsBefore returns the newest row strictly before day.
func (s *Store) LatestDailyPointsBefore(ctx context.Context, address string, day time.Time) (DailyPoints, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return DailyPoints{}, false, err
	}

	rows, queryErr := pool.Query(ctx, latestDailyPointsBeforeSQL, NormalizeAddress(address), day)
	if queryErr != nil {
		return DailyPoints{}, false, fmt.Errorf("latest daily points: %w", queryErr)
	}
	defer rows.Close()

	out, err := collectDailyPoints(rows, 1)
	if err != nil {
		return DailyPoints{}, false, err
	}
	if len(out) == 0 {
		return DailyPoints{}, false, nil
	}
	return out[0], true, nil
}

// InsertAlert persists an alert emission once per (address, day, kind).
func (s *Store) InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return AlertRecord{}, false, err
	}

	channels := alert.Channels
	if channels == nil {
		channels = []string{}
	}

	row := pool.QueryRow(ctx, insertAlertSQL,
		NormalizeAddress(alert.Address),
		alert.Day,
		alert.Kind,
		alert.WindowPoints,
		alert.Threshold,
		alert.Detail,
		channels,
	)

	var rec AlertRecord
	if scanErr := row.Scan(
		&rec.ID,
		&rec.Address,
		&rec.Day,
		&rec.Kind,
		&rec.WindowPoints,
		&rec.Threshold,
		&rec.Detail,
		&rec.Channels,
		&rec.CreatedAt,
	); scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return AlertRecord{}, false, nil
		}
		return AlertRecord{}, false, fmt.Errorf("insert alert: %w", scanErr)
	}
	return rec, true, nil
}

// ListRecentAlerts lists most recent alerts.
func (s *Store) ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentAlertsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent alerts: %w", queryErr)
	}
	defer rows.Close()

	alerts := make([]AlertRecord, 0, limit)
	for rows.Next() {
		var rec AlertRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.Address,
			&rec.Day,
			&rec.Kind,
			&rec.WindowPoints,
			&rec.Threshold,
			&rec.Detail,
			&rec.Channels,
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		alerts = append(alerts, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

// DeleteAlertsBefore deletes historical alerts.
func (s *Store) DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteAlertsBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete alerts before: %w", execErr)
	}
	return nil
}

// NormalizeAddress lower-cases a hex address so lookups ignore checksum casing.
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

func collectDailyPoints(rows pgx.Rows, capacity int) ([]DailyPoints, error) {
	out := make([]DailyPoints, 0, capacity)
	for rows.Next() {
		row, err := scanDailyPoints(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func scanDailyPoints(rows pgx.Rows) (DailyPoints, error) {
	var (
		row        DailyPoints
		gasStr     string
		outflowStr string
		balanceStr string
	)

	if err := rows.Scan(
		&row.Address,
		&row.Day,
		&row.TxCount,
		&gasStr,
		&outflowStr,
		&balanceStr,
		&row.Points,
		&row.TierLabel,
		&row.CreatedAt,
	); err != nil {
		return DailyPoints{}, err
	}

	var err error
	if row.GasUsed, err = decimal.NewFromString(gasStr); err != nil {
		return DailyPoints{}, fmt.Errorf("parse gas used: %w", err)
	}
	if row.USDOutflow, err = decimal.NewFromString(outflowStr); err != nil {
		return DailyPoints{}, fmt.Errorf("parse usd outflow: %w", err)
	}
	if row.BalanceUSD, err = decimal.NewFromString(balanceStr); err != nil {
		return DailyPoints{}, fmt.Errorf("parse balance usd: %w", err)
	}
	row.Day = row.Day.UTC()
	return row, nil
}

var (
	_ DailyPointsStore = (*Store)(nil)
	_ AlertStore       = (*Store)(nil)
	_ AdvisoryLocker   = (*Store)(nil)
)
