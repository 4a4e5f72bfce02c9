package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/dukerupert/hearth/internal/model"
)

type HouseholdStore struct {
	db *sql.DB
}

func NewHouseholdStore(db *sql.DB) *HouseholdStore {
	return &HouseholdStore{db: db}
}

func scanHousehold(row scanner) (*model.Household, error) {
	var h model.Household
	err := row.Scan(&h.ID, &h.Name, &h.PasswordHash, &h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &h, nil
}

const householdCols = `id, name, password_hash, created_at, updated_at`

func insertHousehold(ctx context.Context, q execer, name, passwordHash string) (*model.Household, error) {
	ts := now()
	h := &model.Household{
		ID:           newID(),
		Name:         strings.TrimSpace(name),
		PasswordHash: passwordHash,
		CreatedAt:    ts,
		UpdatedAt:    ts,
	}
	_, err := q.ExecContext(ctx,
		`INSERT INTO households (`+householdCols+`) VALUES (?, ?, ?, ?, ?)`,
		h.ID, h.Name, h.PasswordHash, ts, ts,
	)
	if err != nil {
		return nil, fmt.Errorf("insert household: %w", err)
	}
	return h, nil
}

func (s *HouseholdStore) Create(ctx context.Context, name, passwordHash string) (*model.Household, error) {
	h, err := insertHousehold(ctx, s.db, name, passwordHash)
	if err != nil {
		return nil, err
	}
	return s.GetByID(ctx, h.ID)
}

// CreateWithAdmin creates a household and its first user, who becomes its
// admin, in a single transaction. Neither row is kept if either insert fails.
func (s *HouseholdStore) CreateWithAdmin(ctx context.Context, name, passwordHash string, admin *model.User) (*model.Household, *model.User, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	h, err := insertHousehold(ctx, tx, name, passwordHash)
	if err != nil {
		return nil, nil, err
	}

	admin.HouseholdID = h.ID
	admin.Role = model.RoleAdmin
	if err := insertUser(ctx, tx, admin); err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit: %w", err)
	}
	return h, admin, nil
}

func (s *HouseholdStore) GetByID(ctx context.Context, id string) (*model.Household, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+householdCols+` FROM households WHERE id = ?`, id)
	h, err := scanHousehold(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get household: %w", err)
	}
	return h, nil
}

// ListByName returns every household with the given display name, oldest
// first. Names are not unique.
func (s *HouseholdStore) ListByName(ctx context.Context, name string) ([]model.Household, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+householdCols+` FROM households WHERE name = ? ORDER BY created_at ASC, rowid ASC`,
		strings.TrimSpace(name),
	)
	if err != nil {
		return nil, fmt.Errorf("list households by name: %w", err)
	}
	defer rows.Close()

	var households []model.Household
	for rows.Next() {
		h, err := scanHousehold(rows)
		if err != nil {
			return nil, fmt.Errorf("scan household: %w", err)
		}
		households = append(households, *h)
	}
	return households, rows.Err()
}
