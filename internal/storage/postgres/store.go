package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"contractWatch/internal/model"
)

// targetsLockKey serialises target mutations across processes sharing the database.
const targetsLockKey int64 = 0x7761746368

const schemaSQL = `
CREATE TABLE IF NOT EXISTS tracking_targets (
	address        TEXT PRIMARY KEY,
	abi_path       TEXT NOT NULL,
	tracked_events JSONB NOT NULL,
	actions        JSONB NOT NULL,
	client_id      TEXT NOT NULL DEFAULT '',
	extra_info     JSONB NOT NULL DEFAULT '{}'::jsonb,
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS recent_event_snapshots (
	name       TEXT PRIMARY KEY,
	entries    JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`

// Store provides Postgres persistence for targets and recent-event snapshots.
type Store struct {
	pool         *pgxpool.Pool
	snapshotName string
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool, snapshotName: "recent_events"}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the tables when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// LoadTargets returns every stored target.
func (s *Store) LoadTargets(ctx context.Context) (model.TargetSet, error) {
	return loadTargets(ctx, s.pool)
}

// UpdateTargets applies fn inside a transaction holding an advisory lock and
// rewrites the whole collection.
func (s *Store) UpdateTargets(ctx context.Context, fn func(model.TargetSet) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, targetsLockKey); err != nil {
		return fmt.Errorf("lock targets: %w", err)
	}

	targets, err := loadTargets(ctx, tx)
	if err != nil {
		return err
	}
	if err := fn(targets); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `DELETE FROM tracking_targets`); err != nil {
		return fmt.Errorf("clear targets: %w", err)
	}

	batch := &pgx.Batch{}
	for addr, rec := range targets {
		events, err := json.Marshal(rec.TrackedEvents)
		if err != nil {
			return fmt.Errorf("marshal events: %w", err)
		}
		actions, err := json.Marshal(rec.Actions)
		if err != nil {
			return fmt.Errorf("marshal actions: %w", err)
		}
		extra := rec.ExtraInfo
		if extra == nil {
			extra = map[string]any{}
		}
		extraJSON, err := json.Marshal(extra)
		if err != nil {
			return fmt.Errorf("marshal extra info: %w", err)
		}
		batch.Queue(`
			INSERT INTO tracking_targets (address, abi_path, tracked_events, actions, client_id, extra_info, updated_at)
			VALUES ($1, $2, $3::jsonb, $4::jsonb, $5, $6::jsonb, now())
		`, addr, rec.AbiPath, string(events), string(actions), rec.ClientID, string(extraJSON))
	}

	br := tx.SendBatch(ctx, batch)
	for range targets {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("insert target: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("insert targets: %w", err)
	}

	return tx.Commit(ctx)
}

// LoadRecentEvents returns the persisted snapshot, or nil when none exists.
func (s *Store) LoadRecentEvents(ctx context.Context) ([]string, error) {
	var raw []byte
	row := s.pool.QueryRow(ctx, `SELECT entries FROM recent_event_snapshots WHERE name=$1`, s.snapshotName)
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	var entries []string
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}
	return entries, nil
}

// SaveRecentEvents upserts the snapshot.
func (s *Store) SaveRecentEvents(ctx context.Context, entries []string) error {
	if entries == nil {
		entries = []string{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO recent_event_snapshots (name, entries, updated_at)
		VALUES ($1, $2::jsonb, now())
		ON CONFLICT (name) DO UPDATE
		SET entries = EXCLUDED.entries, updated_at = now()
	`, s.snapshotName, string(data))
	return err
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadTargets(ctx context.Context, q querier) (model.TargetSet, error) {
	rows, err := q.Query(ctx, `
		SELECT address, abi_path, tracked_events, actions, client_id, extra_info
		FROM tracking_targets
	`)
	if err != nil {
		return nil, fmt.Errorf("query targets: %w", err)
	}
	defer rows.Close()

	targets := make(model.TargetSet)
	for rows.Next() {
		var (
			addr                    string
			rec                     model.TargetRecord
			events, actions, extras []byte
		)
		if err := rows.Scan(&addr, &rec.AbiPath, &events, &actions, &rec.ClientID, &extras); err != nil {
			return nil, fmt.Errorf("scan target: %w", err)
		}
		if err := json.Unmarshal(events, &rec.TrackedEvents); err != nil {
			return nil, fmt.Errorf("parse events for %s: %w", addr, err)
		}
		if err := json.Unmarshal(actions, &rec.Actions); err != nil {
			return nil, fmt.Errorf("parse actions for %s: %w", addr, err)
		}
		if err := json.Unmarshal(extras, &rec.ExtraInfo); err != nil {
			return nil, fmt.Errorf("parse extra info for %s: %w", addr, err)
		}
		if len(rec.ExtraInfo) == 0 {
			rec.ExtraInfo = nil
		}
		targets[addr] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return targets.Normalize()
}
