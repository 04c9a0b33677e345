package journal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TickRow is one persisted tick summary.
type TickRow struct {
	Tick         uint64
	At           time.Time
	Duration     time.Duration
	Drained      int
	Applied      int
	Rejected     int
	Entities     int
	QueueDepth   int
	QueueRefused uint64
}

// OutcomeRow is one persisted action outcome.
type OutcomeRow struct {
	Tick        uint64
	Seq         uint64
	Requester   uint64
	MapID       uint32
	Kind        string
	SpellID     uint32
	TargetID    uint64
	Result      string
	Reason      string
	SubmittedAt time.Time
}

// Store persists journal batches.
type Store interface {
	SaveBatch(ctx context.Context, ticks []TickRow, outcomes []OutcomeRow) error
}

// PGStore is the PostgreSQL journal store.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore connects to PostgreSQL and returns a store handle.
func NewPGStore(ctx context.Context, dsn string) (*PGStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return &PGStore{pool: pool}, nil
}

// NewPGStoreFromPool wraps an existing pool.
func NewPGStoreFromPool(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// Close closes the connection pool.
func (s *PGStore) Close() {
	s.pool.Close()
}

// Pool returns the underlying pgx pool (for goose migrations).
func (s *PGStore) Pool() *pgxpool.Pool {
	return s.pool
}

// SaveBatch writes tick summaries and outcomes in one transaction. Tick rows
// are upserted so a retried batch does not fail on its own earlier write.
func (s *PGStore) SaveBatch(ctx context.Context, ticks []TickRow, outcomes []OutcomeRow) error {
	if len(ticks) == 0 && len(outcomes) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			slog.Warn("journal rollback", "error", err)
		}
	}()

	if len(ticks) > 0 {
		batch := &pgx.Batch{}
		for _, t := range ticks {
			batch.Queue(`
				INSERT INTO ticks (tick, at, duration_us, drained, applied, rejected, entities, queue_depth, queue_refused)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
				ON CONFLICT (tick) DO UPDATE SET
					at = EXCLUDED.at, duration_us = EXCLUDED.duration_us,
					drained = EXCLUDED.drained, applied = EXCLUDED.applied,
					rejected = EXCLUDED.rejected, entities = EXCLUDED.entities,
					queue_depth = EXCLUDED.queue_depth, queue_refused = EXCLUDED.queue_refused`,
				int64(t.Tick), t.At, t.Duration.Microseconds(), t.Drained, t.Applied, t.Rejected,
				t.Entities, t.QueueDepth, int64(t.QueueRefused))
		}
		br := tx.SendBatch(ctx, batch)
		for range ticks {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				return fmt.Errorf("inserting tick: %w", err)
			}
		}
		if err := br.Close(); err != nil {
			return fmt.Errorf("closing tick batch: %w", err)
		}
	}

	if len(outcomes) > 0 {
		rows := make([][]any, 0, len(outcomes))
		for _, o := range outcomes {
			rows = append(rows, []any{
				int64(o.Tick), int64(o.Seq), int64(o.Requester), int32(o.MapID), o.Kind,
				int32(o.SpellID), int64(o.TargetID), o.Result, o.Reason, o.SubmittedAt,
			})
		}
		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"action_outcomes"},
			[]string{"tick", "seq", "requester", "map_id", "kind", "spell_id", "target_id", "result", "reason", "submitted_at"},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			return fmt.Errorf("inserting %d outcomes: %w", len(outcomes), err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing journal batch: %w", err)
	}
	return nil
}

// CountByResult returns persisted outcome counts grouped by result name.
func (s *PGStore) CountByResult(ctx context.Context) (map[string]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT result, COUNT(*) FROM action_outcomes GROUP BY result`)
	if err != nil {
		return nil, fmt.Errorf("querying outcome counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var result string
		var n int64
		if err := rows.Scan(&result, &n); err != nil {
			return nil, fmt.Errorf("scanning outcome count: %w", err)
		}
		counts[result] = int(n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating outcome counts: %w", err)
	}
	return counts, nil
}

// RequesterHistory returns the latest outcomes of requester, newest first.
func (s *PGStore) RequesterHistory(ctx context.Context, requester uint64, limit int) ([]OutcomeRow, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT tick, seq, requester, map_id, kind, spell_id, target_id, result, reason, submitted_at
		FROM action_outcomes
		WHERE requester = $1
		ORDER BY tick DESC, seq DESC
		LIMIT $2`, int64(requester), limit)
	if err != nil {
		return nil, fmt.Errorf("querying history of %d: %w", requester, err)
	}
	defer rows.Close()

	var out []OutcomeRow
	for rows.Next() {
		var (
			tick, seq, req, target int64
			mapID, spellID         int32
			o                      OutcomeRow
		)
		if err := rows.Scan(&tick, &seq, &req, &mapID, &o.Kind, &spellID, &target, &o.Result, &o.Reason, &o.SubmittedAt); err != nil {
			return nil, fmt.Errorf("scanning outcome row: %w", err)
		}
		o.Tick, o.Seq, o.Requester, o.TargetID = uint64(tick), uint64(seq), uint64(req), uint64(target)
		o.MapID, o.SpellID = uint32(mapID), uint32(spellID)
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating outcome rows: %w", err)
	}
	return out, nil
}
