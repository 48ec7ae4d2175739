package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/MrEthical07/deviceauth"
	"github.com/MrEthical07/deviceauth/middleware"
)

// Manager is the engine surface the HTTP layer needs. *deviceauth.Engine
// satisfies it.
type Manager interface {
	middleware.AccessValidator
	Login(ctx context.Context, login, password string, client deviceauth.Client) (deviceauth.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string, client deviceauth.Client) (deviceauth.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
	ListSessions(ctx context.Context, refreshToken string) ([]deviceauth.SessionView, error)
	RevokeAllOtherDevices(ctx context.Context, refreshToken string) (int, error)
	RevokeDevice(ctx context.Context, refreshToken, target string) (deviceauth.RevokeOutcome, error)
	Ping(ctx context.Context) (time.Duration, error)
	RefreshTTL() time.Duration
}

type Options struct {
	// CookieName defaults to "refreshToken".
	CookieName string
	// CookieMaxAge defaults to the engine's refresh lifetime.
	CookieMaxAge time.Duration
	// InsecureCookie drops the Secure attribute for plain-HTTP development.
	InsecureCookie bool
	// TrustProxy takes the client address from X-Forwarded-For.
	TrustProxy bool
	// AllowedOrigins enables CORS with credentials for the listed origins.
	AllowedOrigins []string
	// Metrics is mounted at /metrics when non-nil.
	Metrics http.Handler
	Logger  *slog.Logger
}

type server struct {
	manager Manager
	opts    Options
	log     *slog.Logger
}

// NewRouter builds the HTTP handler for m.
func NewRouter(m Manager, opts Options) http.Handler {
	if opts.CookieName == "" {
		opts.CookieName = "refreshToken"
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &server{manager: m, opts: opts, log: logger.With("component", "httpapi")}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.ClientInfo(opts.TrustProxy))
	r.Use(s.requestLogger)
	if len(opts.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   opts.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           60 * 15,
		}))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.Route("/auth", func(rr chi.Router) {
		rr.Post("/login", s.login)
		rr.Post("/refresh-token", s.refresh)
		rr.Post("/logout", s.logout)
		rr.With(middleware.RequireAccess(m)).Get("/me", s.me)
	})

	r.Route("/security/devices", func(rr chi.Router) {
		rr.Get("/", s.listDevices)
		rr.Delete("/", s.revokeOthers)
		rr.Delete("/{deviceId}", s.revokeDevice)
	})

	return r
}

func (s *server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		level := slog.LevelDebug
		if ww.Status() >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		s.log.LogAttrs(r.Context(), level, "request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("duration", time.Since(start)),
			slog.String("request_id", chimw.GetReqID(r.Context())),
		)
	})
}
