package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/dukerupert/hearth/internal/model"
)

type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

func scanUser(row scanner) (*model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.HouseholdID, &u.Name, &u.Username, &u.PasswordHash, &u.Role, &u.Avatar, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

const userCols = `id, household_id, name, username, password_hash, role, avatar, created_at, updated_at`

// NormalizeUsername is the stored form of a username.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// Create inserts u, assigning its id and timestamps. A username already used
// by any household returns ErrUsernameTaken.
func (s *UserStore) Create(ctx context.Context, u *model.User) (*model.User, error) {
	if err := insertUser(ctx, s.db, u); err != nil {
		return nil, err
	}
	return s.GetByID(ctx, u.ID)
}

func insertUser(ctx context.Context, q execer, u *model.User) error {
	ts := now()
	u.ID = newID()
	u.Username = NormalizeUsername(u.Username)
	u.CreatedAt = ts
	u.UpdatedAt = ts
	if u.Role == "" {
		u.Role = model.RoleMember
	}
	if u.Avatar == "" {
		u.Avatar = model.DefaultAvatar
	}

	_, err := q.ExecContext(ctx,
		`INSERT INTO users (`+userCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.HouseholdID, u.Name, u.Username, u.PasswordHash, u.Role, u.Avatar, ts, ts,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrUsernameTaken
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *UserStore) GetByID(ctx context.Context, id string) (*model.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *UserStore) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE username = ?`, NormalizeUsername(username))
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by username: %w", err)
	}
	return u, nil
}

func (s *UserStore) ListByHousehold(ctx context.Context, householdID string) ([]model.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+userCols+` FROM users WHERE household_id = ? ORDER BY created_at ASC, rowid ASC`,
		householdID,
	)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := []model.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// InHousehold reports whether userID is a user of the household.
func (s *UserStore) InHousehold(ctx context.Context, householdID, userID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE id = ? AND household_id = ?`,
		userID, householdID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	return n > 0, nil
}
