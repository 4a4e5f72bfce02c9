package backup

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dukerupert/hearth/internal/model"
)

// FormatVersion is bumped when the Export shape changes incompatibly.
const FormatVersion = 1

// Export is the plaintext document inside an encrypted backup.
type Export struct {
	Version     int            `json:"version"`
	HouseholdID string         `json:"householdId"`
	ExportedAt  time.Time      `json:"exportedAt"`
	Snapshot    model.Snapshot `json:"snapshot"`
}

// Seal marshals the snapshot and encrypts it with passphrase.
func Seal(householdID string, snap model.Snapshot, passphrase string, at time.Time) ([]byte, error) {
	plain, err := json.Marshal(Export{
		Version:     FormatVersion,
		HouseholdID: householdID,
		ExportedAt:  at.UTC(),
		Snapshot:    snap,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal export: %w", err)
	}
	return Encrypt(plain, passphrase)
}

// Open decrypts and decodes an export produced by Seal.
func Open(data []byte, passphrase string) (*Export, error) {
	plain, err := Decrypt(data, passphrase)
	if err != nil {
		return nil, err
	}
	var exp Export
	if err := json.Unmarshal(plain, &exp); err != nil {
		return nil, fmt.Errorf("decode export: %w", err)
	}
	if exp.Version != FormatVersion {
		return nil, fmt.Errorf("unsupported export version %d", exp.Version)
	}
	return &exp, nil
}

// ObjectKey is where a household's backup taken at t lives in blob storage.
func ObjectKey(householdID string, t time.Time) string {
	return fmt.Sprintf("backups/%s/hearth-%s.enc", householdID, t.UTC().Format("20060102-150405"))
}
