package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/dukerupert/hearth/internal/model"
)

const (
	InvitationTTL  = 24 * time.Hour
	codeBytes      = 3
	codeMaxAttempt = 5
)

type InvitationStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewInvitationStore(db *sql.DB) *InvitationStore {
	return &InvitationStore{db: db, now: now}
}

func scanInvitation(row scanner) (*model.Invitation, error) {
	var inv model.Invitation
	err := row.Scan(&inv.Code, &inv.HouseholdID, &inv.InviterID, &inv.Status, &inv.CreatedAt, &inv.ExpiresAt)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

const invitationCols = `code, household_id, inviter_id, status, created_at, expires_at`

func generateCode() (string, error) {
	b := make([]byte, codeBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return strings.ToUpper(hex.EncodeToString(b)), nil
}

// Create issues a pending invitation to the household that expires after
// InvitationTTL.
func (s *InvitationStore) Create(ctx context.Context, householdID, inviterID string) (*model.Invitation, error) {
	ts := s.now()
	for attempt := 0; attempt < codeMaxAttempt; attempt++ {
		code, err := generateCode()
		if err != nil {
			return nil, err
		}
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO invitations (`+invitationCols+`) VALUES (?, ?, ?, ?, ?, ?)`,
			code, householdID, inviterID, model.InvitationPending, ts, ts.Add(InvitationTTL),
		)
		if err == nil {
			return s.Get(ctx, code)
		}
		if !isUniqueViolation(err) {
			return nil, fmt.Errorf("insert invitation: %w", err)
		}
	}
	return nil, fmt.Errorf("insert invitation: no free code after %d attempts", codeMaxAttempt)
}

func (s *InvitationStore) Get(ctx context.Context, code string) (*model.Invitation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+invitationCols+` FROM invitations WHERE code = ?`,
		strings.ToUpper(strings.TrimSpace(code)),
	)
	inv, err := scanInvitation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get invitation: %w", err)
	}
	return inv, nil
}

// Redeem validates code for joining. A pending code stays pending, so it
// can be used any number of times until it expires. The first redemption
// attempt after expiry marks the invitation expired.
func (s *InvitationStore) Redeem(ctx context.Context, code string) (*model.Invitation, error) {
	inv, err := s.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, ErrInvitationNotFound
	}

	switch inv.Status {
	case model.InvitationExpired:
		return nil, ErrInvitationExpired
	case model.InvitationPending:
	default:
		return nil, ErrInvitationNotFound
	}

	if !s.now().Before(inv.ExpiresAt) {
		if _, err := s.db.ExecContext(ctx,
			`UPDATE invitations SET status = ? WHERE code = ?`,
			model.InvitationExpired, inv.Code,
		); err != nil {
			return nil, fmt.Errorf("expire invitation: %w", err)
		}
		return nil, ErrInvitationExpired
	}
	return inv, nil
}
