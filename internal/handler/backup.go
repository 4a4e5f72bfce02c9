package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/hearth/internal/auth"
	"github.com/dukerupert/hearth/internal/backup"
	"github.com/dukerupert/hearth/internal/blob"
	"github.com/dukerupert/hearth/internal/store"
)

type BackupHandler struct {
	snapshots *Snapshots
	backups   *store.BackupStore
	blobs     blob.Store
	now       func() time.Time
	logger    *slog.Logger
}

func NewBackupHandler(snapshots *Snapshots, backups *store.BackupStore, blobs blob.Store, logger *slog.Logger) *BackupHandler {
	return &BackupHandler{snapshots: snapshots, backups: backups, blobs: blobs, now: time.Now, logger: logger}
}

type passphraseRequest struct {
	Passphrase string `json:"passphrase"`
}

// seal builds and encrypts the caller's household export.
func (h *BackupHandler) seal(w http.ResponseWriter, r *http.Request) ([]byte, time.Time, error) {
	var req passphraseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return nil, time.Time{}, err
	}

	householdID := auth.HouseholdID(r.Context())
	snap, err := h.snapshots.Build(r.Context(), householdID)
	if err != nil {
		return nil, time.Time{}, err
	}

	at := h.now().UTC()
	data, err := backup.Seal(householdID, snap, req.Passphrase, at)
	if errors.Is(err, backup.ErrShortPassphrase) {
		return nil, at, invalid("%s", err.Error())
	}
	return data, at, err
}

// Export streams an encrypted export back to the caller.
func (h *BackupHandler) Export(w http.ResponseWriter, r *http.Request) {
	data, at, err := h.seal(w, r)
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="hearth-%s.enc"`, at.Format("20060102-150405")))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// Create stores an encrypted export in blob storage and records it.
func (h *BackupHandler) Create(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())

	data, at, err := h.seal(w, r)
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}

	key := backup.ObjectKey(ac.HouseholdID, at)
	if err := h.blobs.Put(r.Context(), key, data, "application/octet-stream"); err != nil {
		fail(w, r, h.logger, err)
		return
	}
	rec, err := h.backups.Create(r.Context(), ac.HouseholdID, key, int64(len(data)), ac.UserID)
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}

	h.logger.Info("backup stored", "household_id", ac.HouseholdID, "key", key, "bytes", len(data))
	writeJSON(w, http.StatusCreated, rec)
}

func (h *BackupHandler) List(w http.ResponseWriter, r *http.Request) {
	backups, err := h.backups.ListByHousehold(r.Context(), auth.HouseholdID(r.Context()))
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, backups)
}
