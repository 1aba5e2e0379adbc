package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository reads audit_logs through pool.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

const windowSQL = `SELECT id, occurred_at, actor_id, action, entity, entity_id, meta
FROM audit_logs
WHERE ($1::timestamptz IS NULL OR occurred_at >= $1)
  AND ($2::timestamptz IS NULL OR occurred_at < $2)
  AND ($3::bigint IS NULL OR actor_id = $3)
  AND ($4::text IS NULL OR entity = $4)
  AND ($5::text IS NULL OR entity_id = $5)
  AND ($6::text IS NULL OR action = $6)
ORDER BY occurred_at DESC, id DESC
OFFSET $7 LIMIT $8`

func (r *pgRepository) Window(ctx context.Context, p WindowParams) ([]TimelineRow, error) {
	rows, err := r.pool.Query(ctx, windowSQL,
		optionalTime(p.From), optionalTime(p.To), optionalID(p.ActorID),
		optionalText(p.Entity), optionalText(p.EntityID), optionalText(p.Action),
		p.Offset, p.Limit)
	if err != nil {
		return nil, fmt.Errorf("audit: query timeline: %w", err)
	}
	defer rows.Close()

	var out []TimelineRow
	for rows.Next() {
		var (
			row  TimelineRow
			meta []byte
		)
		if err := rows.Scan(&row.ID, &row.At, &row.ActorID, &row.Action, &row.Entity, &row.EntityID, &meta); err != nil {
			return nil, fmt.Errorf("audit: scan timeline: %w", err)
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &row.Meta); err != nil {
				return nil, fmt.Errorf("audit: decode meta of %d: %w", row.ID, err)
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func optionalTime(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}

func optionalID(id int64) pgtype.Int8 {
	if id <= 0 {
		return pgtype.Int8{}
	}
	return pgtype.Int8{Int64: id, Valid: true}
}

func optionalText(value string) pgtype.Text {
	if value == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: value, Valid: true}
}
