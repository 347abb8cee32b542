package httpapi

import (
	"log/slog"
	"net"
	"net/http"
	"time"

	goIdentity "github.com/MrEthical07/goIdentity"
	guard "github.com/MrEthical07/goIdentity/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Options configures NewRouter. Engine is required.
type Options struct {
	Engine *goIdentity.Engine
	Logger *slog.Logger
	// AllowedOrigins enables credentialed CORS for a separately hosted
	// front-end. Empty means same-origin only.
	AllowedOrigins []string
	// Metrics is mounted at GET /metrics when set.
	Metrics http.Handler
	// App serves every path the router does not own, behind the guard.
	App        http.Handler
	Middleware []func(http.Handler) http.Handler
	// TrustProxyHeaders takes the client address from X-Forwarded-For or
	// X-Real-IP. Enable it only behind a proxy that overwrites them; the
	// address keys the per-IP login throttle.
	TrustProxyHeaders bool
}

// DefaultCORSOptions returns the credentialed JSON policy for origins.
func DefaultCORSOptions(origins []string) cors.Options {
	return cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}
}

// NewRouter mounts the identity endpoints and, when given, the
// application behind the route guard.
func NewRouter(opts Options) chi.Router {
	logger := opts.Logger
	if logger == nil {
		logger = opts.Engine.Logger()
	}
	h := &handlers{engine: opts.Engine, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if opts.TrustProxyHeaders {
		r.Use(middleware.RealIP)
	}
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	if len(opts.AllowedOrigins) > 0 {
		r.Use(cors.Handler(DefaultCORSOptions(opts.AllowedOrigins)))
	}
	for _, mw := range opts.Middleware {
		if mw != nil {
			r.Use(mw)
		}
	}

	r.Get("/healthz", h.health)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(clientIP)
		r.Use(guard.Guard(opts.Engine, guard.NewPolicy(opts.Engine.Config())))

		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", h.register)
			r.Post("/login", h.login)
			r.Post("/logout", h.logout)
			r.Get("/session", h.session)
			r.Post("/request-reset", h.requestReset)
			r.Post("/reset", h.reset)
			r.Get("/oauth/{provider}", h.oauthBegin)
			r.Get("/oauth/{provider}/callback", h.oauthCallback)
		})

		if opts.App != nil {
			r.NotFound(opts.App.ServeHTTP)
		}
	})

	return r
}

// clientIP hands the caller address to the engine for throttling and audit.
func clientIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		if host, _, err := net.SplitHostPort(ip); err == nil {
			ip = host
		}
		next.ServeHTTP(w, r.WithContext(goIdentity.WithClientIP(r.Context(), ip)))
	})
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.LogAttrs(r.Context(), slog.LevelInfo, "http request",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.Int("status", ww.Status()),
					slog.Int("bytes", ww.BytesWritten()),
					slog.Duration("duration", time.Since(start)),
					slog.String("request_id", middleware.GetReqID(r.Context())),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
