package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukerupert/hearth/internal/auth"
	"github.com/dukerupert/hearth/internal/briefing"
	"github.com/dukerupert/hearth/internal/model"
	"github.com/dukerupert/hearth/internal/store"
)

// Snapshots assembles the full view of a household.
type Snapshots struct {
	households *store.HouseholdStore
	users      *store.UserStore
	records    *store.Records
}

func NewSnapshots(households *store.HouseholdStore, users *store.UserStore, records *store.Records) *Snapshots {
	return &Snapshots{households: households, users: users, records: records}
}

func (s *Snapshots) Build(ctx context.Context, householdID string) (model.Snapshot, error) {
	snap := model.Snapshot{HouseholdName: model.DefaultHouseholdName}

	hh, err := s.households.GetByID(ctx, householdID)
	if err != nil {
		return snap, err
	}
	if hh != nil {
		snap.HouseholdName = hh.Name
	}

	users, err := s.users.ListByHousehold(ctx, householdID)
	if err != nil {
		return snap, err
	}
	snap.Users = make([]model.Member, 0, len(users)+1)
	for _, u := range users {
		snap.Users = append(snap.Users, model.Member{ID: u.ID, Name: u.Name, Avatar: u.Avatar})
	}
	snap.Users = append(snap.Users, model.FamilyMember)

	if snap.Docs, err = s.records.Documents.List(ctx, householdID); err != nil {
		return snap, err
	}
	if snap.Assets, err = s.records.Assets.List(ctx, householdID); err != nil {
		return snap, err
	}
	if snap.Bills, err = s.records.Bills.List(ctx, householdID); err != nil {
		return snap, err
	}
	if snap.Health, err = s.records.Health.List(ctx, householdID); err != nil {
		return snap, err
	}
	if snap.Vehicles, err = s.records.Vehicles.List(ctx, householdID); err != nil {
		return snap, err
	}
	if snap.Properties, err = s.records.Properties.List(ctx, householdID); err != nil {
		return snap, err
	}
	if snap.Subscriptions, err = s.records.Subscriptions.List(ctx, householdID); err != nil {
		return snap, err
	}
	if snap.Emergency.Contacts, err = s.records.Contacts.List(ctx, householdID); err != nil {
		return snap, err
	}
	snap.Emergency.Insurance = insuranceNumber(snap.Docs)
	return snap, nil
}

// insuranceNumber is the number of the first document whose type mentions
// insurance.
func insuranceNumber(docs []model.Document) string {
	for _, d := range docs {
		if strings.Contains(strings.ToLower(d.Type), "insurance") {
			return d.Number
		}
	}
	return model.NoInsurance
}

type DataHandler struct {
	snapshots *Snapshots
	now       func() time.Time
	logger    *slog.Logger
}

func NewDataHandler(snapshots *Snapshots, logger *slog.Logger) *DataHandler {
	return &DataHandler{snapshots: snapshots, now: time.Now, logger: logger}
}

// Data returns the caller's household snapshot.
func (h *DataHandler) Data(w http.ResponseWriter, r *http.Request) {
	snap, err := h.snapshots.Build(r.Context(), auth.HouseholdID(r.Context()))
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// Alerts returns the household's urgent items as of today.
func (h *DataHandler) Alerts(w http.ResponseWriter, r *http.Request) {
	snap, err := h.snapshots.Build(r.Context(), auth.HouseholdID(r.Context()))
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, briefing.Compute(snap, h.now()))
}
