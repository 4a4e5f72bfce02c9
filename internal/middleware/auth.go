package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/dukerupert/hearth/internal/auth"
	"github.com/dukerupert/hearth/internal/store"
)

var ErrUnauthenticated = errors.New("authentication required")

// Authenticator turns a bearer token into the caller's AuthContext.
type Authenticator struct {
	tokens *auth.TokenIssuer
	users  *store.UserStore
}

func NewAuthenticator(tokens *auth.TokenIssuer, users *store.UserStore) *Authenticator {
	return &Authenticator{tokens: tokens, users: users}
}

// Authenticate verifies token and loads its user. Every failure, including a
// user that no longer exists, is ErrUnauthenticated or a wrapped token error.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (auth.AuthContext, error) {
	if token == "" {
		return auth.AuthContext{}, ErrUnauthenticated
	}
	claims, err := a.tokens.Verify(token)
	if err != nil {
		return auth.AuthContext{}, err
	}
	user, err := a.users.GetByID(ctx, claims.UserID())
	if err != nil {
		return auth.AuthContext{}, err
	}
	if user == nil {
		return auth.AuthContext{}, ErrUnauthenticated
	}
	return auth.AuthContext{
		UserID:      user.ID,
		HouseholdID: user.HouseholdID,
		Role:        user.Role,
	}, nil
}

// BearerToken returns the token of an "Authorization: Bearer <token>" header.
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// RequireAuth validates the bearer token and populates AuthContext.
func RequireAuth(a *Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ac, err := a.Authenticate(r.Context(), BearerToken(r))
			if err != nil {
				msg := "invalid or missing token"
				if errors.Is(err, auth.ErrExpiredToken) {
					msg = "token expired"
				}
				writeMessage(w, http.StatusUnauthorized, msg)
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithAuth(r.Context(), ac)))
		})
	}
}

// RequireAdmin checks that the authenticated user has the admin role.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !auth.IsAdmin(r.Context()) {
			writeMessage(w, http.StatusForbidden, "admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"message": msg})
}
