package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/dukerupert/hearth/internal/model"
)

// Schema maps one household-scoped record kind onto its table.
type Schema[T any] struct {
	Table string
	// Columns are the kind's own columns in bind and scan order. id,
	// household_id, created_at and updated_at are implied.
	Columns []string
	// SearchColumn is matched by Search. Empty disables search.
	SearchColumn string

	Meta   func(*T) *model.Meta
	Values func(*T) ([]any, error)
	// Scan returns destinations for Columns and an optional func run after
	// the row is scanned, for decoding packed columns.
	Scan func(*T) (dest []any, finish func() error)
}

// Repository is the data access for one record kind. Every query is
// filtered by household, so a record id from another household behaves as
// if it did not exist.
type Repository[T any] struct {
	db     *sql.DB
	schema Schema[T]
	now    func() time.Time
}

func NewRepository[T any](db *sql.DB, schema Schema[T]) *Repository[T] {
	return &Repository[T]{db: db, schema: schema, now: now}
}

func (r *Repository[T]) cols() string {
	return "id, household_id, " + strings.Join(r.schema.Columns, ", ") + ", created_at, updated_at"
}

func (r *Repository[T]) scan(row scanner) (*T, error) {
	var rec T
	m := r.schema.Meta(&rec)
	dest, finish := r.schema.Scan(&rec)

	all := make([]any, 0, len(dest)+4)
	all = append(all, &m.ID, &m.HouseholdID)
	all = append(all, dest...)
	all = append(all, &m.CreatedAt, &m.UpdatedAt)
	if err := row.Scan(all...); err != nil {
		return nil, err
	}
	if finish != nil {
		if err := finish(); err != nil {
			return nil, err
		}
	}
	return &rec, nil
}

// Create stamps rec with a new id, householdID and timestamps and inserts it.
func (r *Repository[T]) Create(ctx context.Context, householdID string, rec *T) (*T, error) {
	m := r.schema.Meta(rec)
	ts := r.now()
	m.ID = newID()
	m.HouseholdID = householdID
	m.CreatedAt = ts
	m.UpdatedAt = ts

	vals, err := r.schema.Values(rec)
	if err != nil {
		return nil, fmt.Errorf("bind %s: %w", r.schema.Table, err)
	}
	args := make([]any, 0, len(vals)+4)
	args = append(args, m.ID, m.HouseholdID)
	args = append(args, vals...)
	args = append(args, ts, ts)

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(args)), ", ")
	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`, r.schema.Table, r.cols(), placeholders)
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("insert %s: %w", r.schema.Table, err)
	}
	return r.Get(ctx, householdID, m.ID)
}

// Get returns nil, nil when id does not exist in the household.
func (r *Repository[T]) Get(ctx context.Context, householdID, id string) (*T, error) {
	return r.get(ctx, r.db, householdID, id)
}

func (r *Repository[T]) get(ctx context.Context, q execer, householdID, id string) (*T, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = ? AND household_id = ?`, r.cols(), r.schema.Table)
	rec, err := r.scan(q.QueryRowContext(ctx, query, id, householdID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", r.schema.Table, err)
	}
	return rec, nil
}

// List returns the household's records, oldest first.
func (r *Repository[T]) List(ctx context.Context, householdID string) ([]T, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE household_id = ? ORDER BY created_at ASC, rowid ASC`, r.cols(), r.schema.Table)
	return r.list(ctx, query, householdID)
}

// Search returns records whose search column contains q, ignoring ASCII case.
// A kind without a search column matches nothing.
func (r *Repository[T]) Search(ctx context.Context, householdID, q string) ([]T, error) {
	if r.schema.SearchColumn == "" || strings.TrimSpace(q) == "" {
		return []T{}, nil
	}
	query := fmt.Sprintf(
		`SELECT %s FROM %s WHERE household_id = ? AND %s LIKE ? ESCAPE '\' ORDER BY created_at ASC, rowid ASC`,
		r.cols(), r.schema.Table, r.schema.SearchColumn,
	)
	return r.list(ctx, query, householdID, "%"+escapeLike(strings.TrimSpace(q))+"%")
}

func (r *Repository[T]) list(ctx context.Context, query string, args ...any) ([]T, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", r.schema.Table, err)
	}
	defer rows.Close()

	recs := []T{}
	for rows.Next() {
		rec, err := r.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", r.schema.Table, err)
		}
		recs = append(recs, *rec)
	}
	return recs, rows.Err()
}

// Update overwrites the kind's columns of the matching record. It returns
// nil, nil when id does not exist in the household.
func (r *Repository[T]) Update(ctx context.Context, householdID, id string, rec *T) (*T, error) {
	ok, err := r.update(ctx, r.db, householdID, id, rec)
	if err != nil || !ok {
		return nil, err
	}
	return r.Get(ctx, householdID, id)
}

func (r *Repository[T]) update(ctx context.Context, q execer, householdID, id string, rec *T) (bool, error) {
	vals, err := r.schema.Values(rec)
	if err != nil {
		return false, fmt.Errorf("bind %s: %w", r.schema.Table, err)
	}
	sets := make([]string, 0, len(r.schema.Columns)+1)
	for _, c := range r.schema.Columns {
		sets = append(sets, c+" = ?")
	}
	sets = append(sets, "updated_at = ?")

	args := append(vals, r.now(), id, householdID)
	query := fmt.Sprintf(`UPDATE %s SET %s WHERE id = ? AND household_id = ?`, r.schema.Table, strings.Join(sets, ", "))
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("update %s: %w", r.schema.Table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// Modify loads a record, applies fn and writes it back in one transaction.
// It returns nil, nil when id does not exist in the household.
func (r *Repository[T]) Modify(ctx context.Context, householdID, id string, fn func(*T) error) (*T, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	rec, err := r.get(ctx, tx, householdID, id)
	if err != nil || rec == nil {
		return nil, err
	}
	if err := fn(rec); err != nil {
		return nil, err
	}
	if _, err := r.update(ctx, tx, householdID, id, rec); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return r.Get(ctx, householdID, id)
}

// Delete removes the matching record and reports whether one existed.
func (r *Repository[T]) Delete(ctx context.Context, householdID, id string) (bool, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = ? AND household_id = ?`, r.schema.Table)
	res, err := r.db.ExecContext(ctx, query, id, householdID)
	if err != nil {
		return false, fmt.Errorf("delete %s: %w", r.schema.Table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}
