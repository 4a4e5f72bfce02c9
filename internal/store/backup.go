package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/hearth/internal/model"
)

type BackupStore struct {
	db *sql.DB
}

func NewBackupStore(db *sql.DB) *BackupStore {
	return &BackupStore{db: db}
}

const backupCols = `id, household_id, object_key, size_bytes, created_by, created_at`

func scanBackup(row scanner) (*model.Backup, error) {
	var b model.Backup
	err := row.Scan(&b.ID, &b.HouseholdID, &b.ObjectKey, &b.SizeBytes, &b.CreatedBy, &b.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *BackupStore) Create(ctx context.Context, householdID, objectKey string, size int64, createdBy string) (*model.Backup, error) {
	b := &model.Backup{
		ID:          newID(),
		HouseholdID: householdID,
		ObjectKey:   objectKey,
		SizeBytes:   size,
		CreatedBy:   createdBy,
		CreatedAt:   now(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO backups (`+backupCols+`) VALUES (?, ?, ?, ?, ?, ?)`,
		b.ID, b.HouseholdID, b.ObjectKey, b.SizeBytes, b.CreatedBy, b.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert backup: %w", err)
	}
	return b, nil
}

// ListByHousehold returns the household's backups, newest first.
func (s *BackupStore) ListByHousehold(ctx context.Context, householdID string) ([]model.Backup, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+backupCols+` FROM backups WHERE household_id = ? ORDER BY created_at DESC, rowid DESC`,
		householdID,
	)
	if err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}
	defer rows.Close()

	backups := []model.Backup{}
	for rows.Next() {
		b, err := scanBackup(rows)
		if err != nil {
			return nil, fmt.Errorf("scan backup: %w", err)
		}
		backups = append(backups, *b)
	}
	return backups, rows.Err()
}
