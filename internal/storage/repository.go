package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	createSchemaSQL = `CREATE TABLE IF NOT EXISTS rate_snapshots (
        id          BIGSERIAL PRIMARY KEY,
        run_id      UUID NOT NULL,
        rates       JSONB NOT NULL,
        strategy    TEXT NOT NULL DEFAULT '',
        source_url  TEXT NOT NULL DEFAULT '',
        notified_at TIMESTAMPTZ NOT NULL DEFAULT now()
    );`

	insertSnapshotSQL = `INSERT INTO rate_snapshots (
        run_id,
        rates,
        strategy,
        source_url,
        notified_at
    ) VALUES (
        $1,$2,$3,$4,$5
    );`

	latestSnapshotSQL = `SELECT
        run_id::text,
        rates,
        strategy,
        source_url,
        notified_at
    FROM rate_snapshots
    ORDER BY id DESC
    LIMIT 1;`

	listRecentSnapshotsSQL = `SELECT
        run_id::text,
        rates,
        strategy,
        source_url,
        notified_at
    FROM rate_snapshots
    ORDER BY id DESC
    LIMIT $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// SnapshotStore persists the last notified snapshot.
type SnapshotStore interface {
	Load(ctx context.Context) (*Record, error)
	Save(ctx context.Context, rec Record) error
}

// HistoryStore lists previously notified snapshots, newest first.
type HistoryStore interface {
	ListRecent(ctx context.Context, limit int) ([]Record, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store keeps every notified snapshot in PostgreSQL; the newest row is the persisted rate.
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

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// EnsureSchema creates the snapshot table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, createSchemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
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
		// session locks also drop when the connection closes
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

// Load returns the most recently notified snapshot, or nil when none exists.
func (s *Store) Load(ctx context.Context) (*Record, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rec, err := scanRecord(pool.QueryRow(ctx, latestSnapshotSQL))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("load latest snapshot: %w", err)
	}
	return &rec, nil
}

// Save appends rec as the newest snapshot.
func (s *Store) Save(ctx context.Context, rec Record) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	payload, err := json.Marshal(rec.Rates)
	if err != nil {
		return fmt.Errorf("encode rates: %w", err)
	}

	runID := uuid.New()
	if rec.RunID != "" {
		if runID, err = uuid.Parse(rec.RunID); err != nil {
			return fmt.Errorf("parse run id: %w", err)
		}
	}

	notifiedAt := rec.NotifiedAt
	if notifiedAt.IsZero() {
		notifiedAt = time.Now().UTC()
	}

	if _, err := pool.Exec(ctx, insertSnapshotSQL,
		runID,
		payload,
		rec.Strategy,
		rec.SourceURL,
		notifiedAt,
	); err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

// ListRecent lists the most recent snapshots ordered newest first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]Record, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentSnapshotsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent snapshots: %w", queryErr)
	}
	defer rows.Close()

	records := make([]Record, 0, limit)
	for rows.Next() {
		rec, scanErr := scanRecord(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

func scanRecord(row pgx.Row) (Record, error) {
	var (
		rec     Record
		payload []byte
	)
	if err := row.Scan(&rec.RunID, &payload, &rec.Strategy, &rec.SourceURL, &rec.NotifiedAt); err != nil {
		return Record{}, err
	}
	if err := json.Unmarshal(payload, &rec.Rates); err != nil {
		return Record{}, fmt.Errorf("decode rates: %w", err)
	}
	return rec, nil
}

var (
	_ SnapshotStore  = (*Store)(nil)
	_ HistoryStore   = (*Store)(nil)
	_ AdvisoryLocker = (*Store)(nil)
)
