package websocket

import (
	"context"
	"log/slog"
	"net/http"
	"slices"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/hearth/internal/auth"
)

// Authenticator resolves a bearer token to its caller.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (auth.AuthContext, error)
}

// HandleWebSocket upgrades requests carrying a valid ?token= and runs them as
// clients of the caller's household. origins are Accept origin patterns; "*"
// allows any origin.
func HandleWebSocket(hub *Hub, authn Authenticator, origins []string, logger *slog.Logger) http.HandlerFunc {
	opts := &ws.AcceptOptions{OriginPatterns: origins}
	if slices.Contains(origins, "*") {
		opts = &ws.AcceptOptions{InsecureSkipVerify: true}
	}

	return func(w http.ResponseWriter, r *http.Request) {
		ac, err := authn.Authenticate(r.Context(), r.URL.Query().Get("token"))
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"message":"authentication required"}`))
			return
		}

		conn, err := ws.Accept(w, r, opts)
		if err != nil {
			logger.Warn("websocket accept failed", "error", err)
			return
		}
		defer conn.CloseNow()

		logger.Debug("websocket connected", "household_id", ac.HouseholdID, "user_id", ac.UserID)
		NewClient(hub, conn, ac.HouseholdID).Run(r.Context())
	}
}
