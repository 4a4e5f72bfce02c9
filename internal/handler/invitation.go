package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"

	"github.com/dukerupert/hearth/internal/auth"
	"github.com/dukerupert/hearth/internal/model"
	"github.com/dukerupert/hearth/internal/store"
)

// InviteMailer delivers invitation codes by e-mail.
type InviteMailer interface {
	Configured() bool
	SendInvitation(ctx context.Context, toEmail, code, householdName, inviterName string) error
}

type InvitationHandler struct {
	invitations *store.InvitationStore
	users       *store.UserStore
	households  *store.HouseholdStore
	mailer      InviteMailer
	logger      *slog.Logger
}

func NewInvitationHandler(invitations *store.InvitationStore, users *store.UserStore, households *store.HouseholdStore, mailer InviteMailer, logger *slog.Logger) *InvitationHandler {
	return &InvitationHandler{
		invitations: invitations,
		users:       users,
		households:  households,
		mailer:      mailer,
		logger:      logger,
	}
}

type invitationRequest struct {
	Email string `json:"email"`
}

type invitationResponse struct {
	model.Invitation
	EmailSent bool `json:"emailSent"`
}

// Create issues an invitation code for the caller's household. The body is
// optional; an email in it gets the code mailed when mail is configured.
func (h *InvitationHandler) Create(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())

	var req invitationRequest
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		fail(w, r, h.logger, err)
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email != "" {
		if _, err := mail.ParseAddress(req.Email); err != nil {
			fail(w, r, h.logger, invalid("email is not a valid address"))
			return
		}
	}

	inv, err := h.invitations.Create(r.Context(), ac.HouseholdID, ac.UserID)
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}

	resp := invitationResponse{Invitation: *inv}
	if req.Email != "" && h.mailer != nil && h.mailer.Configured() {
		resp.EmailSent = h.send(r.Context(), inv, req.Email)
	}

	h.logger.Info("invitation created", "household_id", ac.HouseholdID, "inviter_id", ac.UserID, "emailed", resp.EmailSent)
	writeJSON(w, http.StatusCreated, resp)
}

func (h *InvitationHandler) send(ctx context.Context, inv *model.Invitation, to string) bool {
	householdName := model.DefaultHouseholdName
	if hh, err := h.households.GetByID(ctx, inv.HouseholdID); err == nil && hh != nil {
		householdName = hh.Name
	}
	inviterName := "A household member"
	if u, err := h.users.GetByID(ctx, inv.InviterID); err == nil && u != nil {
		inviterName = u.Name
	}

	if err := h.mailer.SendInvitation(ctx, to, inv.Code, householdName, inviterName); err != nil {
		h.logger.Warn("send invitation email", "code", inv.Code, "error", err)
		return false
	}
	return true
}
