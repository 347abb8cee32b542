package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/MrEthical07/goIdentity/config"
	"github.com/MrEthical07/goIdentity/httpapi"
	otelexport "github.com/MrEthical07/goIdentity/metrics/export/otel"
	promexport "github.com/MrEthical07/goIdentity/metrics/export/prometheus"
	"github.com/MrEthical07/goIdentity/store/memory"
	"github.com/MrEthical07/goIdentity/store/postgres"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
)

const meterName = "github.com/MrEthical07/goIdentity"

var (
	serveAddr string
	serveDev  bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the identity HTTP server",
	Long: `Starts the HTTP server with the /auth endpoints, /healthz and /metrics.
With --dev an in-process Redis and the in-memory user store are used.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if serveAddr != "" {
			settings.Addr = serveAddr
		}
		logger := settings.Logger()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		srv, err := newServer(ctx, settings, serveDev, logger)
		if err != nil {
			return err
		}
		defer srv.Close()
		return srv.Run(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (env: "+config.Prefix+"ADDR)")
	serveCmd.Flags().BoolVar(&serveDev, "dev", false, "use in-process Redis and the in-memory user store")
}

// server owns the engine and every backend it was wired to.
type server struct {
	addr    string
	logger  *slog.Logger
	engine  *goIdentity.Engine
	handler http.Handler
	closers []func()
}

func newServer(ctx context.Context, s config.Settings, dev bool, logger *slog.Logger) (*server, error) {
	if dev && s.Production() {
		return nil, errors.New("--dev cannot be used with " + config.Prefix + "ENV=production")
	}
	if !dev && s.Production() && s.DatabaseURL == "" {
		return nil, errors.New(config.Prefix + "DATABASE_URL is required in production")
	}
	if dev && s.SigningKey == "" {
		key, err := generateKey()
		if err != nil {
			return nil, err
		}
		s.SigningKey = key
		logger.Warn("using an ephemeral signing key; sessions will not survive a restart")
	}

	cfg, err := s.EngineConfig()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	srv := &server{addr: s.Addr, logger: logger}
	ready := false
	defer func() {
		if !ready {
			srv.Close()
		}
	}()

	redisAddr := s.RedisAddr
	if dev {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, fmt.Errorf("failed to start in-process redis: %w", err)
		}
		srv.closers = append(srv.closers, mr.Close)
		redisAddr = mr.Addr()
		logger.Info("started in-process redis", slog.String("addr", redisAddr))
	}
	rdb := redis.NewClient(&redis.Options{Addr: redisAddr, Password: s.RedisPassword})
	srv.closers = append(srv.closers, func() { _ = rdb.Close() })

	var store goIdentity.CredentialStore
	if s.DatabaseURL != "" && !dev {
		pg, err := openPostgres(ctx, s)
		if err != nil {
			return nil, err
		}
		srv.closers = append(srv.closers, func() { _ = pg.Close() })
		store = pg
	} else {
		store = memory.New()
		logger.Warn("using the in-memory user store; accounts will not survive a restart")
	}

	b := goIdentity.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithCredentialStore(store).
		WithLogger(logger).
		WithMetricsEnabled(s.MetricsEnabled)
	for _, c := range s.OAuthClients() {
		b.WithOAuthClient(c)
	}
	engine, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build engine: %w", err)
	}
	srv.engine = engine
	srv.closers = append(srv.closers, engine.Close)
	logger.Info("oauth providers registered", slog.Any("providers", engine.Providers()))

	var metrics http.Handler
	if s.MetricsEnabled {
		oexp, err := otelexport.NewExporter(otel.GetMeterProvider().Meter(meterName), engine)
		if err != nil {
			return nil, fmt.Errorf("failed to register otel metrics: %w", err)
		}
		srv.closers = append(srv.closers, func() { _ = oexp.Close() })
		metrics = promexport.NewExporter(engine).Handler()
	}
	if s.TrustProxy {
		logger.Info("trusting proxy headers for client addresses")
	}

	srv.handler = httpapi.NewRouter(httpapi.Options{
		Engine:            engine,
		Logger:            logger,
		AllowedOrigins:    s.AllowedOrigins,
		Metrics:           metrics,
		TrustProxyHeaders: s.TrustProxy,
	})
	ready = true
	return srv, nil
}

func openPostgres(ctx context.Context, s config.Settings) (*postgres.Store, error) {
	key, err := s.SealKey()
	if err != nil {
		return nil, err
	}
	var sealer *postgres.Sealer
	if key != nil {
		if sealer, err = postgres.NewSealer(key); err != nil {
			return nil, err
		}
	}
	pg, err := postgres.Open(ctx, s.DatabaseURL, sealer)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return pg, nil
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *server) Run(ctx context.Context) error {
	httpSrv := &http.Server{
		Addr:              s.addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", slog.String("addr", s.addr))
		serverErrors <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			_ = httpSrv.Close()
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped")
		return nil
	}
}

// Close releases backends in reverse order of acquisition.
func (s *server) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}
