package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"coinwatch/internal/errs"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	insertWatchSQL = `INSERT INTO watches (
        owner,
        symbol,
        asset_ref,
        direction,
        target,
        active,
        created_at
    ) VALUES (
        $1,$2,$3,$4,$5,TRUE,$6
    )
    RETURNING id;`

	selectWatchColumns = `SELECT
        id,
        owner,
        symbol,
        asset_ref,
        direction,
        target::text,
        active,
        created_at,
        triggered_at,
        triggered_price::text
    FROM watches`

	listWatchesForOwnerSQL = selectWatchColumns + `
    WHERE owner = $1
    ORDER BY id DESC;`

	listActiveWatchesSQL = selectWatchColumns + `
    WHERE active;`

	deactivateWatchSQL = `UPDATE watches
    SET active = FALSE
    WHERE id = $1 AND active;`

	claimTriggerSQL = `UPDATE watches
    SET active = FALSE, triggered_at = $2, triggered_price = $3
    WHERE id = $1 AND active;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// PostgresStore keeps watches in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wires a pgx pool into a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Close releases the underlying pool resources.
func (s *PostgresStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *PostgresStore) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
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
		// a failed unlock is released with the session when the connection closes
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func (s *PostgresStore) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// CreateWatch inserts an active watch and returns its id.
func (s *PostgresStore) CreateWatch(ctx context.Context, w NewWatch) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, errs.Storage("create watch", err)
	}

	var id int64
	if scanErr := pool.QueryRow(ctx, insertWatchSQL,
		w.Owner,
		w.Symbol,
		w.AssetRef,
		string(w.Direction),
		w.Target.String(),
		w.createdAt(),
	).Scan(&id); scanErr != nil {
		return 0, errs.Storage("create watch", scanErr)
	}
	return id, nil
}

// ListWatchesForOwner lists the owner's watches, newest first.
func (s *PostgresStore) ListWatchesForOwner(ctx context.Context, owner string) ([]Watch, error) {
	return s.queryWatches(ctx, "list watches for owner", listWatchesForOwnerSQL, owner)
}

// ListActiveWatches lists every active watch.
func (s *PostgresStore) ListActiveWatches(ctx context.Context) ([]Watch, error) {
	return s.queryWatches(ctx, "list active watches", listActiveWatchesSQL)
}

// DeactivateWatch marks a watch inactive.
func (s *PostgresStore) DeactivateWatch(ctx context.Context, id int64) error {
	pool, err := s.getPool()
	if err != nil {
		return errs.Storage("deactivate watch", err)
	}
	if _, execErr := pool.Exec(ctx, deactivateWatchSQL, id); execErr != nil {
		return errs.Storage("deactivate watch", execErr)
	}
	return nil
}

// ClaimTrigger deactivates the watch if it is still active.
func (s *PostgresStore) ClaimTrigger(ctx context.Context, id int64, price decimal.Decimal, at time.Time) (bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return false, errs.Storage("claim trigger", err)
	}
	cmdTag, execErr := pool.Exec(ctx, claimTriggerSQL, id, at.UTC(), price.String())
	if execErr != nil {
		return false, errs.Storage("claim trigger", execErr)
	}
	return cmdTag.RowsAffected() == 1, nil
}

func (s *PostgresStore) queryWatches(ctx context.Context, op, query string, args ...any) ([]Watch, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, errs.Storage(op, err)
	}

	rows, queryErr := pool.Query(ctx, query, args...)
	if queryErr != nil {
		return nil, errs.Storage(op, queryErr)
	}
	defer rows.Close()

	watches := make([]Watch, 0)
	for rows.Next() {
		w, scanErr := scanWatch(rows)
		if scanErr != nil {
			return nil, errs.Storage(op, scanErr)
		}
		watches = append(watches, w)
	}
	if rows.Err() != nil {
		return nil, errs.Storage(op, rows.Err())
	}
	return watches, nil
}

func scanWatch(rows pgx.Rows) (Watch, error) {
	var (
		w            Watch
		direction    string
		targetStr    string
		triggeredAt  sql.NullTime
		triggeredStr sql.NullString
	)

	if err := rows.Scan(
		&w.ID,
		&w.Owner,
		&w.Symbol,
		&w.AssetRef,
		&direction,
		&targetStr,
		&w.Active,
		&w.CreatedAt,
		&triggeredAt,
		&triggeredStr,
	); err != nil {
		return Watch{}, err
	}

	target, err := decimal.NewFromString(targetStr)
	if err != nil {
		return Watch{}, fmt.Errorf("parse target: %w", err)
	}
	w.Target = target
	w.Direction = Direction(direction)

	if triggeredAt.Valid {
		at := triggeredAt.Time
		w.TriggeredAt = &at
	}
	if triggeredStr.Valid {
		price, err := decimal.NewFromString(triggeredStr.String)
		if err != nil {
			return Watch{}, fmt.Errorf("parse triggered price: %w", err)
		}
		w.TriggeredPrice = decimal.NewNullDecimal(price)
	}

	return w, nil
}

var (
	_ WatchStore     = (*PostgresStore)(nil)
	_ AdvisoryLocker = (*PostgresStore)(nil)
)
