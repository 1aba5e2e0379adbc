package sequence

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// PostgresStore keeps sequences in the sequences table. It serves both the
// in-process Store contract and the row-locking Allocator.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const sequenceColumns = `name, prefix, next_value, increment_by, min_value, max_value, cycle, format`

func (p *PostgresStore) Load(ctx context.Context, name string) (Sequence, bool, error) {
	seq, err := scanSequence(p.pool.QueryRow(ctx, `SELECT `+sequenceColumns+` FROM sequences WHERE name=$1`, name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Sequence{}, false, nil
		}
		return Sequence{}, false, err
	}
	return seq, true, nil
}

func (p *PostgresStore) Save(ctx context.Context, seq Sequence) error {
	_, err := p.pool.Exec(ctx, `INSERT INTO sequences (`+sequenceColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (name) DO UPDATE SET next_value=EXCLUDED.next_value, updated_at=NOW()`,
		seq.Name, seq.Prefix, seq.NextValue, seq.IncrementBy, seq.MinValue, seq.MaxValue, seq.Cycle, seq.Format)
	return err
}

// Allocate locks the sequence row, advances it and commits. Numbers handed
// out are never reused even when the caller's own transaction rolls back.
func (p *PostgresStore) Allocate(ctx context.Context, defaults Sequence) (int64, Sequence, error) {
	var (
		value int64
		seq   Sequence
	)
	err := db.WithTx(ctx, p.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `INSERT INTO sequences (`+sequenceColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) ON CONFLICT (name) DO NOTHING`,
			defaults.Name, defaults.Prefix, defaults.NextValue, defaults.IncrementBy, defaults.MinValue,
			defaults.MaxValue, defaults.Cycle, defaults.Format); err != nil {
			return err
		}
		var err error
		seq, err = scanSequence(tx.QueryRow(ctx, `SELECT `+sequenceColumns+` FROM sequences WHERE name=$1 FOR UPDATE`, defaults.Name))
		if err != nil {
			return err
		}
		value, err = seq.Advance()
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `UPDATE sequences SET next_value=$2, updated_at=NOW() WHERE name=$1`, seq.Name, seq.NextValue)
		return err
	})
	if err != nil {
		return 0, Sequence{}, err
	}
	return value, seq, nil
}

func scanSequence(row pgx.Row) (Sequence, error) {
	var s Sequence
	err := row.Scan(&s.Name, &s.Prefix, &s.NextValue, &s.IncrementBy, &s.MinValue, &s.MaxValue, &s.Cycle, &s.Format)
	return s, err
}
