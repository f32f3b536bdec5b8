package repository

import (
	"context"
	"encoding/json"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"

	"pledgeball_sync/internal/store"
)

// EventMetaRepository is the Postgres-backed multi-value store. One row per
// value; insertion order is id order. jsonb equality gives the structural
// value matching that Remove depends on.
type EventMetaRepository struct {
	db *pgxpool.Pool
	sb sq.StatementBuilderType
}

var _ store.MetaStore = (*EventMetaRepository)(nil)

func NewEventMetaRepository(db *pgxpool.Pool) *EventMetaRepository {
	return &EventMetaRepository{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// Append adds a value under (event_id, key). Existing values are never
// overwritten; the same value may be stored more than once.
func (r *EventMetaRepository) Append(ctx context.Context, eventID int64, key string, value json.RawMessage) error {
	if eventID <= 0 {
		return fmt.Errorf("invalid event id")
	}
	if key == "" {
		return fmt.Errorf("meta key is empty")
	}
	if !json.Valid(value) {
		return fmt.Errorf("value is not valid json")
	}

	q := r.sb.
		Insert("event_meta").
		Columns("event_id", "meta_key", "meta_value").
		Values(eventID, key, value)

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build meta insert: %w", err)
	}

	if _, err := r.db.Exec(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("insert event meta: %w", err)
	}
	return nil
}

// ReadAll returns every value under (event_id, key) in insertion order. The
// result is empty, not an error, when nothing is stored.
func (r *EventMetaRepository) ReadAll(ctx context.Context, eventID int64, key string) ([]json.RawMessage, error) {
	if eventID <= 0 {
		return nil, fmt.Errorf("invalid event id")
	}
	if key == "" {
		return nil, fmt.Errorf("meta key is empty")
	}

	q := r.sb.
		Select("meta_value").
		From("event_meta").
		Where(sq.Eq{"event_id": eventID, "meta_key": key}).
		OrderBy("id ASC")

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build meta select: %w", err)
	}

	rows, err := r.db.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("query event meta: %w", err)
	}
	defer rows.Close()

	values := make([]json.RawMessage, 0)
	for rows.Next() {
		var v []byte
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan event meta row: %w", err)
		}
		values = append(values, json.RawMessage(v))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event meta rows: %w", err)
	}

	return values, nil
}

// Remove deletes the oldest row under (event_id, key) whose value is
// structurally equal to the given one. No-op when nothing matches.
func (r *EventMetaRepository) Remove(ctx context.Context, eventID int64, key string, value json.RawMessage) error {
	if eventID <= 0 {
		return fmt.Errorf("invalid event id")
	}
	if key == "" {
		return fmt.Errorf("meta key is empty")
	}
	if !json.Valid(value) {
		return fmt.Errorf("value is not valid json")
	}

	// jsonb = jsonb compares structurally, so field order in the stored
	// document does not matter.
	sqlStr := `
DELETE FROM event_meta
WHERE id = (
	SELECT id FROM event_meta
	WHERE event_id = $1 AND meta_key = $2 AND meta_value = $3::jsonb
	ORDER BY id ASC
	LIMIT 1
)`

	if _, err := r.db.Exec(ctx, sqlStr, eventID, key, value); err != nil {
		return fmt.Errorf("delete event meta: %w", err)
	}
	return nil
}

// DeleteAll removes every value under (event_id, key).
func (r *EventMetaRepository) DeleteAll(ctx context.Context, eventID int64, key string) error {
	if eventID <= 0 {
		return fmt.Errorf("invalid event id")
	}
	if key == "" {
		return fmt.Errorf("meta key is empty")
	}

	q := r.sb.
		Delete("event_meta").
		Where(sq.Eq{"event_id": eventID, "meta_key": key})

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build meta delete: %w", err)
	}

	if _, err := r.db.Exec(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("delete all event meta: %w", err)
	}
	return nil
}

// EventIDs returns the distinct event ids holding at least one value for key,
// ascending.
func (r *EventMetaRepository) EventIDs(ctx context.Context, key string) ([]int64, error) {
	if key == "" {
		return nil, fmt.Errorf("meta key is empty")
	}

	q := r.sb.
		Select("DISTINCT event_id").
		From("event_meta").
		Where(sq.Eq{"meta_key": key}).
		OrderBy("event_id ASC")

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build meta event ids: %w", err)
	}

	rows, err := r.db.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("query meta event ids: %w", err)
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan meta event id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate meta event ids: %w", err)
	}

	return ids, nil
}

// CountAll returns the total number of values stored under key.
func (r *EventMetaRepository) CountAll(ctx context.Context, key string) (int64, error) {
	if key == "" {
		return 0, fmt.Errorf("meta key is empty")
	}

	q := r.sb.
		Select("COUNT(*)").
		From("event_meta").
		Where(sq.Eq{"meta_key": key})

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build meta count: %w", err)
	}

	var n int64
	if err := r.db.QueryRow(ctx, sqlStr, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count event meta: %w", err)
	}
	return n, nil
}
