package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/hearth/internal/auth"
	"github.com/dukerupert/hearth/internal/model"
	"github.com/dukerupert/hearth/internal/store"
	"github.com/dukerupert/hearth/internal/websocket"
)

// OwnerChecker reports whether a user belongs to a household.
type OwnerChecker interface {
	InHousehold(ctx context.Context, householdID, userID string) (bool, error)
}

// Kind describes one household record type to RecordHandler.
type Kind[T any] struct {
	// Label starts the delete message, as in "Bill removed".
	Label string
	// Entity names the record in change notifications.
	Entity string

	Meta func(*T) *model.Meta
	// Owner points at the record's owner field. Nil for kinds nobody owns.
	Owner func(*T) *string
	// Prepare validates a submitted record and fills defaults. existing is
	// the stored record on update and nil on create. On update rec already
	// holds existing's values for every key the client left out, except
	// fields hidden from JSON.
	Prepare func(rec, existing *T) error
	// AfterDelete runs once a record has been removed.
	AfterDelete func(ctx context.Context, rec *T)
}

// RecordHandler serves list, create, get, update and delete for one kind,
// always within the caller's household.
type RecordHandler[T any] struct {
	repo   *store.Repository[T]
	kind   Kind[T]
	owners OwnerChecker
	hub    Broadcaster
	logger *slog.Logger
}

func NewRecordHandler[T any](repo *store.Repository[T], kind Kind[T], owners OwnerChecker, hub Broadcaster, logger *slog.Logger) *RecordHandler[T] {
	return &RecordHandler[T]{repo: repo, kind: kind, owners: owners, hub: hub, logger: logger}
}

func (h *RecordHandler[T]) broadcast(householdID, action, id string) {
	if h.hub != nil {
		h.hub.Broadcast(householdID, websocket.NewMessage(h.kind.Entity, action, id))
	}
}

func (h *RecordHandler[T]) notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, strings.ToLower(h.kind.Label)+" not found")
}

// resolveOwner defaults an empty owner to fallback and rejects owners that
// are neither the family sentinel nor a user of the household.
func (h *RecordHandler[T]) resolveOwner(ctx context.Context, householdID string, rec *T, fallback string) error {
	if h.kind.Owner == nil {
		return nil
	}
	owner := h.kind.Owner(rec)
	*owner = strings.TrimSpace(*owner)
	if *owner == "" {
		*owner = fallback
	}
	if *owner == model.FamilyOwner {
		return nil
	}
	ok, err := h.owners.InHousehold(ctx, householdID, *owner)
	if err != nil {
		return err
	}
	if !ok {
		return invalid("userId %q is not a member of this household", *owner)
	}
	return nil
}

func (h *RecordHandler[T]) List(w http.ResponseWriter, r *http.Request) {
	recs, err := h.repo.List(r.Context(), auth.HouseholdID(r.Context()))
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (h *RecordHandler[T]) Create(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())

	var rec T
	if err := decodeJSON(w, r, &rec); err != nil {
		fail(w, r, h.logger, err)
		return
	}
	*h.kind.Meta(&rec) = model.Meta{}

	if err := h.resolveOwner(r.Context(), ac.HouseholdID, &rec, ac.UserID); err != nil {
		fail(w, r, h.logger, err)
		return
	}
	if err := h.kind.Prepare(&rec, nil); err != nil {
		fail(w, r, h.logger, err)
		return
	}

	created, err := h.repo.Create(r.Context(), ac.HouseholdID, &rec)
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}

	id := h.kind.Meta(created).ID
	h.broadcast(ac.HouseholdID, "created", id)
	writeJSON(w, http.StatusCreated, created)
}

func (h *RecordHandler[T]) Get(w http.ResponseWriter, r *http.Request) {
	rec, err := h.repo.Get(r.Context(), auth.HouseholdID(r.Context()), r.PathValue("id"))
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	if rec == nil {
		h.notFound(w)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *RecordHandler[T]) Update(w http.ResponseWriter, r *http.Request) {
	householdID := auth.HouseholdID(r.Context())
	id := r.PathValue("id")

	existing, err := h.repo.Get(r.Context(), householdID, id)
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	if existing == nil {
		h.notFound(w)
		return
	}

	// Submitted keys overwrite the stored values; the rest are kept.
	rec, err := cloneRecord(existing)
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	if err := decodeJSON(w, r, &rec); err != nil {
		fail(w, r, h.logger, err)
		return
	}
	*h.kind.Meta(&rec) = *h.kind.Meta(existing)

	fallback := ""
	if h.kind.Owner != nil {
		fallback = *h.kind.Owner(existing)
	}
	if err := h.resolveOwner(r.Context(), householdID, &rec, fallback); err != nil {
		fail(w, r, h.logger, err)
		return
	}
	if err := h.kind.Prepare(&rec, existing); err != nil {
		fail(w, r, h.logger, err)
		return
	}

	updated, err := h.repo.Update(r.Context(), householdID, id, &rec)
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	if updated == nil {
		h.notFound(w)
		return
	}

	h.broadcast(householdID, "updated", id)
	writeJSON(w, http.StatusOK, updated)
}

// cloneRecord deep-copies v through its JSON form, so decoding into the copy
// cannot write into slices v still holds.
func cloneRecord[T any](v *T) (T, error) {
	var out T
	data, err := json.Marshal(v)
	if err != nil {
		return out, fmt.Errorf("clone record: %w", err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("clone record: %w", err)
	}
	return out, nil
}

// Delete always answers 200, whether or not the record existed.
func (h *RecordHandler[T]) Delete(w http.ResponseWriter, r *http.Request) {
	householdID := auth.HouseholdID(r.Context())
	id := r.PathValue("id")

	var existing *T
	if h.kind.AfterDelete != nil {
		var err error
		if existing, err = h.repo.Get(r.Context(), householdID, id); err != nil {
			fail(w, r, h.logger, err)
			return
		}
	}

	removed, err := h.repo.Delete(r.Context(), householdID, id)
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	if removed {
		if existing != nil {
			h.kind.AfterDelete(r.Context(), existing)
		}
		h.broadcast(householdID, "deleted", id)
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": h.kind.Label + " removed"})
}

// Register mounts the five routes under base, e.g. "/api/bills", passing
// each through wrap.
func (h *RecordHandler[T]) Register(mux *http.ServeMux, base string, wrap func(http.HandlerFunc) http.Handler) {
	mux.Handle("GET "+base, wrap(h.List))
	mux.Handle("POST "+base, wrap(h.Create))
	mux.Handle("GET "+base+"/{id}", wrap(h.Get))
	mux.Handle("PUT "+base+"/{id}", wrap(h.Update))
	mux.Handle("DELETE "+base+"/{id}", wrap(h.Delete))
}
