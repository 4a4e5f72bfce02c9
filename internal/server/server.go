package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/hearth/internal/auth"
	"github.com/dukerupert/hearth/internal/blob"
	"github.com/dukerupert/hearth/internal/briefing"
	"github.com/dukerupert/hearth/internal/handler"
	"github.com/dukerupert/hearth/internal/middleware"
	"github.com/dukerupert/hearth/internal/model"
	"github.com/dukerupert/hearth/internal/store"
	ws "github.com/dukerupert/hearth/internal/websocket"
)

const (
	defaultAuthRateLimit = 10
	authRateWindow       = time.Minute
)

// Options are the collaborators Server does not build itself.
type Options struct {
	Tokens      *auth.TokenIssuer
	Blobs       blob.Store
	Mailer      handler.InviteMailer
	CORSOrigins []string
	Logger      *slog.Logger

	// AuthRateLimit caps requests per client IP to each sign-in route per minute.
	// Zero means 10.
	AuthRateLimit int

	// TrustProxy takes the client IP from X-Forwarded-For or X-Real-IP.
	// Set it only when the server is reachable solely through a reverse proxy.
	TrustProxy bool
}

type Server struct {
	db          *sql.DB
	hub         *ws.Hub
	authn       *middleware.Authenticator
	rateLimiter *middleware.RateLimiter
	metrics     *middleware.Metrics
	scheduler   *briefing.Scheduler
	corsOrigins []string
	authLimit   int
	trustProxy  bool

	authH       *handler.AuthHandler
	dataH       *handler.DataHandler
	searchH     *handler.SearchHandler
	invitationH *handler.InvitationHandler
	serviceH    *handler.ServiceHandler
	attachmentH *handler.AttachmentHandler
	backupH     *handler.BackupHandler

	documentH     *handler.RecordHandler[model.Document]
	assetH        *handler.RecordHandler[model.Asset]
	billH         *handler.RecordHandler[model.Bill]
	healthH       *handler.RecordHandler[model.Health]
	vehicleH      *handler.RecordHandler[model.Vehicle]
	propertyH     *handler.RecordHandler[model.Property]
	subscriptionH *handler.RecordHandler[model.Subscription]
	contactH      *handler.RecordHandler[model.EmergencyContact]

	logger *slog.Logger
}

func New(db *sql.DB, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	hub := ws.NewHub(logger.With("component", "websocket"))

	userStore := store.NewUserStore(db)
	householdStore := store.NewHouseholdStore(db)
	invitationStore := store.NewInvitationStore(db)
	backupStore := store.NewBackupStore(db)
	records := store.NewRecords(db)
	snapshots := handler.NewSnapshots(householdStore, userStore, records)

	recordLogger := logger.With("component", "records")

	authLimit := opts.AuthRateLimit
	if authLimit <= 0 {
		authLimit = defaultAuthRateLimit
	}

	return &Server{
		db:          db,
		hub:         hub,
		authn:       middleware.NewAuthenticator(opts.Tokens, userStore),
		rateLimiter: middleware.NewRateLimiter(),
		metrics:     middleware.NewMetrics(),
		scheduler:   briefing.NewScheduler(hub, snapshots, 0, logger.With("component", "alerts")),
		corsOrigins: opts.CORSOrigins,
		authLimit:   authLimit,
		trustProxy:  opts.TrustProxy,

		authH:       handler.NewAuthHandler(userStore, householdStore, invitationStore, opts.Tokens, logger.With("component", "auth")),
		dataH:       handler.NewDataHandler(snapshots, logger.With("component", "data")),
		searchH:     handler.NewSearchHandler(records, logger.With("component", "search")),
		invitationH: handler.NewInvitationHandler(invitationStore, userStore, householdStore, opts.Mailer, logger.With("component", "invitation")),
		serviceH:    handler.NewServiceHandler(records.Assets, hub, recordLogger),
		attachmentH: handler.NewAttachmentHandler(records.Documents, opts.Blobs, hub, logger.With("component", "attachment")),
		backupH:     handler.NewBackupHandler(snapshots, backupStore, opts.Blobs, logger.With("component", "backup")),

		documentH:     handler.NewRecordHandler(records.Documents, handler.DocumentKind(opts.Blobs, recordLogger), userStore, hub, recordLogger),
		assetH:        handler.NewRecordHandler(records.Assets, handler.AssetKind(), userStore, hub, recordLogger),
		billH:         handler.NewRecordHandler(records.Bills, handler.BillKind(), userStore, hub, recordLogger),
		healthH:       handler.NewRecordHandler(records.Health, handler.HealthKind(), userStore, hub, recordLogger),
		vehicleH:      handler.NewRecordHandler(records.Vehicles, handler.VehicleKind(), userStore, hub, recordLogger),
		propertyH:     handler.NewRecordHandler(records.Properties, handler.PropertyKind(), userStore, hub, recordLogger),
		subscriptionH: handler.NewRecordHandler(records.Subscriptions, handler.SubscriptionKind(), userStore, hub, recordLogger),
		contactH:      handler.NewRecordHandler(records.Contacts, handler.EmergencyContactKind(), userStore, hub, recordLogger),

		logger: logger,
	}
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// Scheduler returns the alert scheduler; the caller starts and stops it.
func (s *Server) Scheduler() *briefing.Scheduler {
	return s.scheduler
}

// Hub returns the change notification hub.
func (s *Server) Hub() *ws.Hub {
	return s.hub
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	// Public routes
	mux.HandleFunc("GET /health", s.healthHandler)
	mux.Handle("GET /metrics", s.metrics.Handler())
	mux.HandleFunc("POST /api/auth/register-household", s.rateLimited(s.authH.RegisterHousehold))
	mux.HandleFunc("POST /api/auth/join-household", s.rateLimited(s.authH.JoinHousehold))
	mux.HandleFunc("POST /api/auth/login", s.rateLimited(s.authH.Login))
	mux.HandleFunc("POST /api/join-invite", s.rateLimited(s.authH.JoinInvite))
	mux.Handle("GET /api/ws", ws.HandleWebSocket(s.hub, s.authn, s.corsOrigins, s.logger.With("component", "websocket")))

	s.registerProtectedRoutes(mux)

	mux.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"message": "not found"})
	})

	var h http.Handler = mux
	h = s.metrics.Middleware(h)
	h = middleware.RequestLogger(s.logger.With("component", "http"))(h)
	h = middleware.CORS(s.corsOrigins)(h)
	if s.trustProxy {
		h = middleware.TrustProxy(h)
	}
	return h
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	requireAuth := middleware.RequireAuth(s.authn)
	protected := func(h http.HandlerFunc) http.Handler {
		return requireAuth(h)
	}
	admin := func(h http.HandlerFunc) http.Handler {
		return requireAuth(middleware.RequireAdmin(h))
	}

	mux.Handle("GET /api/auth/me", protected(s.authH.Me))
	mux.Handle("GET /api/data", protected(s.dataH.Data))
	mux.Handle("GET /api/alerts", protected(s.dataH.Alerts))
	mux.Handle("GET /api/search", protected(s.searchH.Search))
	mux.Handle("POST /api/invitations", protected(s.invitationH.Create))

	s.documentH.Register(mux, "/api/documents", protected)
	s.assetH.Register(mux, "/api/assets", protected)
	s.billH.Register(mux, "/api/bills", protected)
	s.healthH.Register(mux, "/api/health", protected)
	s.vehicleH.Register(mux, "/api/vehicles", protected)
	s.propertyH.Register(mux, "/api/properties", protected)
	s.subscriptionH.Register(mux, "/api/subscriptions", protected)
	s.contactH.Register(mux, "/api/emergency-contacts", protected)

	mux.Handle("POST /api/assets/{id}/service", protected(s.serviceH.Append))
	mux.Handle("PUT /api/documents/{id}/file", protected(s.attachmentH.Upload))
	mux.Handle("GET /api/documents/{id}/file", protected(s.attachmentH.Download))

	// Admin only
	mux.Handle("POST /api/export", admin(s.backupH.Export))
	mux.Handle("GET /api/backups", admin(s.backupH.List))
	mux.Handle("POST /api/backups", admin(s.backupH.Create))
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	if err := s.db.PingContext(r.Context()); err != nil {
		s.logger.Error("health check", "error", err)
		status, code = "unavailable", http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"status": status})
}

func (s *Server) rateLimited(h http.HandlerFunc) http.HandlerFunc {
	limit := middleware.Limit{Requests: s.authLimit, Window: authRateWindow}
	return middleware.RateLimit(s.rateLimiter, middleware.ClientRoute, limit)(h).ServeHTTP
}
