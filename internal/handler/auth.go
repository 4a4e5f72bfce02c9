package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukerupert/hearth/internal/auth"
	"github.com/dukerupert/hearth/internal/model"
	"github.com/dukerupert/hearth/internal/store"
)

const (
	msgBadLogin = "invalid username or password"
	msgBadJoin  = "invalid household name or house password"
)

type AuthHandler struct {
	users       *store.UserStore
	households  *store.HouseholdStore
	invitations *store.InvitationStore
	tokens      *auth.TokenIssuer
	logger      *slog.Logger
}

func NewAuthHandler(users *store.UserStore, households *store.HouseholdStore, invitations *store.InvitationStore, tokens *auth.TokenIssuer, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		users:       users,
		households:  households,
		invitations: invitations,
		tokens:      tokens,
		logger:      logger,
	}
}

// authResponse is returned by every route that signs a user in.
type authResponse struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Username      string     `json:"username"`
	Role          string     `json:"role"`
	Avatar        string     `json:"avatar"`
	HouseholdID   string     `json:"householdId"`
	HouseholdName string     `json:"householdName"`
	Token         string     `json:"token,omitempty"`
	ExpiresAt     *time.Time `json:"expiresAt,omitempty"`
}

// userFields are the new-user fields shared by the join routes.
type userFields struct {
	Name     string `json:"name"`
	Username string `json:"username"`
	Password string `json:"password"`
	Avatar   string `json:"avatar"`
}

func (f *userFields) validate(nameField string) error {
	f.Name = strings.TrimSpace(f.Name)
	f.Username = strings.TrimSpace(f.Username)
	f.Avatar = strings.TrimSpace(f.Avatar)
	if err := required(nameField, f.Name); err != nil {
		return err
	}
	if err := required("username", f.Username); err != nil {
		return err
	}
	if strings.ContainsAny(f.Username, " \t\r\n") {
		return invalid("username must not contain spaces")
	}
	return required("password", f.Password)
}

func hashField(field, secret string) (string, error) {
	hash, err := auth.HashSecret(secret)
	if errors.Is(err, auth.ErrSecretTooLong) {
		return "", invalid("%s must be at most %d bytes", field, auth.MaxSecretLen)
	}
	return hash, err
}

func (f userFields) user(householdID, passwordHash string) *model.User {
	return &model.User{
		HouseholdID:  householdID,
		Name:         f.Name,
		Username:     f.Username,
		PasswordHash: passwordHash,
		Role:         model.RoleMember,
		Avatar:       f.Avatar,
	}
}

func (h *AuthHandler) respond(ctx context.Context, w http.ResponseWriter, status int, u *model.User, withToken bool) error {
	name := model.DefaultHouseholdName
	hh, err := h.households.GetByID(ctx, u.HouseholdID)
	if err != nil {
		return err
	}
	if hh != nil {
		name = hh.Name
	}

	resp := authResponse{
		ID:            u.ID,
		Name:          u.Name,
		Username:      u.Username,
		Role:          u.Role,
		Avatar:        u.Avatar,
		HouseholdID:   u.HouseholdID,
		HouseholdName: name,
	}
	if withToken {
		token, expires, err := h.tokens.Issue(u.ID)
		if err != nil {
			return err
		}
		resp.Token = token
		resp.ExpiresAt = &expires
	}
	writeJSON(w, status, resp)
	return nil
}

func (h *AuthHandler) createUser(ctx context.Context, u *model.User) (*model.User, error) {
	created, err := h.users.Create(ctx, u)
	if errors.Is(err, store.ErrUsernameTaken) {
		return nil, invalid("%s", err.Error())
	}
	return created, err
}

type registerRequest struct {
	HouseholdName string `json:"householdName"`
	HousePassword string `json:"housePassword"`
	AdminName     string `json:"adminName"`
	Username      string `json:"username"`
	Password      string `json:"password"`
	Avatar        string `json:"avatar"`
}

// RegisterHousehold creates a household and its admin user.
func (h *AuthHandler) RegisterHousehold(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		fail(w, r, h.logger, err)
		return
	}

	req.HouseholdName = strings.TrimSpace(req.HouseholdName)
	if err := required("householdName", req.HouseholdName); err != nil {
		fail(w, r, h.logger, err)
		return
	}
	if err := required("housePassword", req.HousePassword); err != nil {
		fail(w, r, h.logger, err)
		return
	}
	fields := userFields{Name: req.AdminName, Username: req.Username, Password: req.Password, Avatar: req.Avatar}
	if err := fields.validate("adminName"); err != nil {
		fail(w, r, h.logger, err)
		return
	}

	houseHash, err := hashField("housePassword", req.HousePassword)
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	userHash, err := hashField("password", fields.Password)
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}

	_, admin, err := h.households.CreateWithAdmin(r.Context(), req.HouseholdName, houseHash, fields.user("", userHash))
	if errors.Is(err, store.ErrUsernameTaken) {
		err = invalid("%s", err.Error())
	}
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}

	h.logger.Info("household registered", "household_id", admin.HouseholdID, "user_id", admin.ID)
	if err := h.respond(r.Context(), w, http.StatusCreated, admin, true); err != nil {
		fail(w, r, h.logger, err)
	}
}

type joinRequest struct {
	HouseholdName string `json:"householdName"`
	HousePassword string `json:"housePassword"`
	userFields
}

// JoinHousehold adds a member to the first household with the given name
// whose shared password matches.
func (h *AuthHandler) JoinHousehold(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := decodeJSON(w, r, &req); err != nil {
		fail(w, r, h.logger, err)
		return
	}
	if err := required("householdName", req.HouseholdName); err != nil {
		fail(w, r, h.logger, err)
		return
	}
	if err := req.userFields.validate("name"); err != nil {
		fail(w, r, h.logger, err)
		return
	}

	candidates, err := h.households.ListByName(r.Context(), req.HouseholdName)
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	var household *model.Household
	for i := range candidates {
		if auth.CheckSecret(candidates[i].PasswordHash, req.HousePassword) {
			household = &candidates[i]
			break
		}
	}
	if household == nil {
		writeError(w, http.StatusUnauthorized, msgBadJoin)
		return
	}

	hash, err := hashField("password", req.Password)
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	user, err := h.createUser(r.Context(), req.user(household.ID, hash))
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}

	h.logger.Info("member joined", "household_id", household.ID, "user_id", user.ID, "via", "password")
	if err := h.respond(r.Context(), w, http.StatusCreated, user, true); err != nil {
		fail(w, r, h.logger, err)
	}
}

type inviteJoinRequest struct {
	Code string `json:"code"`
	userFields
}

// JoinInvite adds a member to the household of a pending invitation code.
func (h *AuthHandler) JoinInvite(w http.ResponseWriter, r *http.Request) {
	var req inviteJoinRequest
	if err := decodeJSON(w, r, &req); err != nil {
		fail(w, r, h.logger, err)
		return
	}
	if err := required("code", req.Code); err != nil {
		fail(w, r, h.logger, err)
		return
	}
	if err := req.userFields.validate("name"); err != nil {
		fail(w, r, h.logger, err)
		return
	}

	inv, err := h.invitations.Redeem(r.Context(), req.Code)
	if errors.Is(err, store.ErrInvitationNotFound) || errors.Is(err, store.ErrInvitationExpired) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}

	hash, err := hashField("password", req.Password)
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	user, err := h.createUser(r.Context(), req.user(inv.HouseholdID, hash))
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}

	h.logger.Info("member joined", "household_id", inv.HouseholdID, "user_id", user.ID, "via", "invitation")
	if err := h.respond(r.Context(), w, http.StatusCreated, user, true); err != nil {
		fail(w, r, h.logger, err)
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		fail(w, r, h.logger, err)
		return
	}

	user, err := h.users.GetByUsername(r.Context(), req.Username)
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	if user == nil || !auth.CheckSecret(user.PasswordHash, req.Password) {
		writeError(w, http.StatusUnauthorized, msgBadLogin)
		return
	}

	if err := h.respond(r.Context(), w, http.StatusOK, user, true); err != nil {
		fail(w, r, h.logger, err)
	}
}

// Me returns the signed-in user without issuing a new token.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.GetByID(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	if user == nil {
		writeError(w, http.StatusUnauthorized, "invalid or missing token")
		return
	}
	if err := h.respond(r.Context(), w, http.StatusOK, user, false); err != nil {
		fail(w, r, h.logger, err)
	}
}
