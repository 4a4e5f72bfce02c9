package handler

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dukerupert/hearth/internal/auth"
	"github.com/dukerupert/hearth/internal/blob"
	"github.com/dukerupert/hearth/internal/model"
	"github.com/dukerupert/hearth/internal/store"
	"github.com/dukerupert/hearth/internal/websocket"
)

// MaxAttachmentBytes bounds an uploaded document file.
const MaxAttachmentBytes = 10 << 20

type AttachmentHandler struct {
	docs   *store.Repository[model.Document]
	blobs  blob.Store
	hub    Broadcaster
	logger *slog.Logger
}

func NewAttachmentHandler(docs *store.Repository[model.Document], blobs blob.Store, hub Broadcaster, logger *slog.Logger) *AttachmentHandler {
	return &AttachmentHandler{docs: docs, blobs: blobs, hub: hub, logger: logger}
}

func attachmentKey(householdID, documentID string) string {
	return fmt.Sprintf("households/%s/documents/%s", householdID, documentID)
}

// Upload stores the raw request body as the document's file, replacing any
// earlier one.
func (h *AttachmentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	householdID := auth.HouseholdID(r.Context())
	id := r.PathValue("id")

	doc, err := h.docs.Get(r.Context(), householdID, id)
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	if doc == nil {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxAttachmentBytes))
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("file must be at most %d MiB", MaxAttachmentBytes>>20))
			return
		}
		fail(w, r, h.logger, fmt.Errorf("read upload: %w", err))
		return
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, "file is empty")
		return
	}

	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	key := attachmentKey(householdID, id)
	if err := h.blobs.Put(r.Context(), key, data, contentType); err != nil {
		fail(w, r, h.logger, err)
		return
	}

	updated, err := h.docs.Modify(r.Context(), householdID, id, func(d *model.Document) error {
		d.FileKey = key
		return nil
	})
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	if updated == nil {
		// Deleted while uploading.
		if err := h.blobs.Delete(r.Context(), key); err != nil {
			h.logger.Warn("remove orphaned attachment", "document_id", id, "key", key, "error", err)
		}
		writeError(w, http.StatusNotFound, "document not found")
		return
	}

	h.logger.Info("attachment stored", "document_id", id, "bytes", len(data))
	if h.hub != nil {
		h.hub.Broadcast(householdID, websocket.NewMessage("document", "updated", id))
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *AttachmentHandler) Download(w http.ResponseWriter, r *http.Request) {
	householdID := auth.HouseholdID(r.Context())

	doc, err := h.docs.Get(r.Context(), householdID, r.PathValue("id"))
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	if doc == nil {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}
	if doc.FileKey == "" {
		writeError(w, http.StatusNotFound, "document has no file")
		return
	}

	body, info, err := h.blobs.Get(r.Context(), doc.FileKey)
	if errors.Is(err, blob.ErrNotFound) {
		writeError(w, http.StatusNotFound, "document has no file")
		return
	}
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	defer body.Close()

	if info.ContentType != "" {
		w.Header().Set("Content-Type", info.ContentType)
	}
	// Local files are seekable, which gives range support and sniffing.
	if rs, ok := body.(io.ReadSeeker); ok {
		http.ServeContent(w, r, "", time.Time{}, rs)
		return
	}
	if info.ContentType == "" {
		w.Header().Set("Content-Type", "application/octet-stream")
	}
	if info.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	}
	if _, err := io.Copy(w, body); err != nil {
		h.logger.Warn("stream attachment", "document_id", doc.ID, "error", err)
	}
}
