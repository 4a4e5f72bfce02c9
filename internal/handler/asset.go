package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/hearth/internal/auth"
	"github.com/dukerupert/hearth/internal/model"
	"github.com/dukerupert/hearth/internal/store"
	"github.com/dukerupert/hearth/internal/websocket"
)

type ServiceHandler struct {
	assets *store.Repository[model.Asset]
	hub    Broadcaster
	logger *slog.Logger
}

func NewServiceHandler(assets *store.Repository[model.Asset], hub Broadcaster, logger *slog.Logger) *ServiceHandler {
	return &ServiceHandler{assets: assets, hub: hub, logger: logger}
}

// Append adds one entry to an asset's service history.
func (h *ServiceHandler) Append(w http.ResponseWriter, r *http.Request) {
	householdID := auth.HouseholdID(r.Context())
	id := r.PathValue("id")

	var entry model.ServiceEntry
	if err := decodeJSON(w, r, &entry); err != nil {
		fail(w, r, h.logger, err)
		return
	}
	entry.Note = strings.TrimSpace(entry.Note)
	if err := requiredDate("date", entry.Date); err != nil {
		fail(w, r, h.logger, err)
		return
	}

	asset, err := h.assets.Modify(r.Context(), householdID, id, func(a *model.Asset) error {
		a.ServiceHistory = append(a.ServiceHistory, entry)
		return nil
	})
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	if asset == nil {
		writeError(w, http.StatusNotFound, "asset not found")
		return
	}

	if h.hub != nil {
		h.hub.Broadcast(householdID, websocket.NewMessage("asset", "updated", id))
	}
	writeJSON(w, http.StatusOK, asset)
}
