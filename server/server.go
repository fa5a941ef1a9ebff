package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	goerrors "github.com/goliatone/go-errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/uptrace/bun"

	auth "github.com/goliatone/go-authcore"
	"github.com/goliatone/go-authcore/activitymap"
	"github.com/goliatone/go-authcore/config"
	"github.com/goliatone/go-authcore/repository"
)

// Server is the authd HTTP process: the auth routes, health and metrics
type Server struct {
	cfg      config.Config
	logger   *slog.Logger
	authLog  auth.Logger
	app      *fiber.App
	auther   *auth.Auther
	registry *prometheus.Registry
	db       *bun.DB
	notifier auth.ResetNotifier

	wg sync.WaitGroup
}

// Option configures a Server
type Option func(*Server)

// WithNotifier replaces the logging notifier. Retries still apply.
func WithNotifier(n auth.ResetNotifier) Option {
	return func(s *Server) {
		s.notifier = n
	}
}

// WithRegistry sets the registry behind /metrics
func WithRegistry(reg *prometheus.Registry) Option {
	return func(s *Server) {
		if reg != nil {
			s.registry = reg
		}
	}
}

// New wires stores, token service, authenticator and routes from cfg.
// SQL stores are migrated first when database.auto_migrate is set.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger, opts ...Option) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:     cfg,
		logger:  logger,
		authLog: auth.NewSlogLogger(logger),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
		s.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	credentials, resets, unit, err := s.openStores(ctx)
	if err != nil {
		return nil, err
	}

	tokens, err := auth.NewTokenServiceFromConfig(cfg, auth.WithTokenLogger(s.authLog))
	if err != nil {
		s.closeDB()
		return nil, fmt.Errorf("token service: %w", err)
	}

	validator, err := auth.NewRotatingValidator(tokens, cfg.GetPreviousSigningKeys())
	if err != nil {
		s.closeDB()
		return nil, fmt.Errorf("token validator: %w", err)
	}

	notifier := s.notifier
	if notifier == nil {
		notifier = auth.LogNotifier{BaseURL: cfg.GetResetLinkBaseURL(), Logger: s.authLog}
	}
	if cfg.Notifier.MaxRetries > 0 {
		notifier = auth.NewRetryingNotifier(notifier, cfg.Notifier.MaxRetries, cfg.Notifier.Backoff, s.authLog)
	}

	s.auther = auth.NewAuthenticator(credentials, resets, tokens, cfg).
		WithLogger(s.authLog).
		WithHasher(auth.NewBcryptHasher(cfg.Password.BcryptCost)).
		WithTokenValidator(validator).
		WithResetTokenManager(auth.NewResetTokenManager(resets, cfg.GetResetTTL(), auth.WithResetLogger(s.authLog))).
		WithNotifier(notifier).
		WithResetUnit(unit).
		WithActivitySink(auth.MultiActivitySink{
			activitymap.NewSlogSink(logger),
			auth.NewMetricsSink(s.registry),
		})

	s.app = s.buildApp(validator)

	return s, nil
}

// openStores returns the stores for the configured driver. The reset unit
// is nil for the memory store, which releases consumed tokens instead.
func (s *Server) openStores(ctx context.Context) (auth.CredentialStore, auth.ResetTokenStore, auth.ResetUnit, error) {
	if s.cfg.Database.Driver == config.DriverMemory {
		store := auth.NewMemoryStore()
		return store, store, nil, nil
	}

	db, err := repository.Open(s.cfg.Database.Driver, s.cfg.Database.DSN)
	if err != nil {
		return nil, nil, nil, err
	}
	s.db = db

	if s.cfg.Database.AutoMigrate {
		applied, err := repository.Migrate(ctx, db)
		if err != nil {
			s.closeDB()
			return nil, nil, nil, err
		}
		if len(applied) > 0 {
			s.logger.Info("migrations applied", slog.Any("migrations", applied))
		}
	}

	m := repository.NewManager(db)
	m.MustValidate()

	return m.Accounts(), m.PasswordResets(), m, nil
}

func (s *Server) buildApp(validator auth.TokenValidator) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "authd",
		DisableStartupMessage: true,
		ErrorHandler:          s.errorHandler,
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(requestLogger(s.logger))

	app.Get("/healthz", s.health).Name("healthz")
	app.Get("/metrics", adaptor.HTTPHandler(
		promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry}),
	)).Name("metrics")

	routeAuth := auth.NewHTTPAuthenticator(validator, s.cfg).WithLogger(s.authLog)

	opts := []auth.AuthControllerOption{
		auth.WithSessionService(s.auther),
		auth.WithRouteAuthenticator(routeAuth),
		auth.WithControllerLogger(s.authLog),
	}
	if s.cfg.HTTP.RateLimit > 0 {
		opts = append(opts, auth.WithRateLimiter(limiter.New(limiter.Config{
			Max:        s.cfg.HTTP.RateLimit,
			Expiration: s.cfg.HTTP.RateLimitWindow,
			// one budget per client and route
			KeyGenerator: func(c *fiber.Ctx) string {
				return c.IP() + " " + c.Route().Path
			},
			LimitReached: func(c *fiber.Ctx) error {
				return auth.WriteError(c, auth.ErrRateLimited, s.authLog)
			},
		})))
	}

	auth.RegisterAuthRoutes(app.Group(s.cfg.HTTP.Prefix), opts...)

	return app
}

type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database,omitempty"`
}

func (s *Server) health(c *fiber.Ctx) error {
	if s.db == nil {
		return c.JSON(healthResponse{Status: "ok"})
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), s.cfg.GetStoreTimeout())
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		s.logger.Warn("health check failed", slog.String("err", err.Error()))
		return c.Status(fiber.StatusServiceUnavailable).JSON(healthResponse{Status: "degraded", Database: "unreachable"})
	}
	return c.JSON(healthResponse{Status: "ok", Database: "ok"})
}

// errorHandler covers errors that escape handlers, mostly fiber's own 404
// and 405 responses, and renders them with the auth error body.
func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		category := goerrors.CategoryBadInput
		if fe.Code >= fiber.StatusInternalServerError {
			category = goerrors.CategoryInternal
		}
		err = goerrors.New(fe.Message, category).WithCode(fe.Code)
	}
	return auth.WriteError(c, err, s.authLog)
}

// App exposes the fiber app, mostly for app.Test
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) Auther() *auth.Auther {
	return s.auther
}

func (s *Server) Registry() *prometheus.Registry {
	return s.registry
}

// Start runs the reset token purger until ctx is done
func (s *Server) Start(ctx context.Context) {
	interval := s.cfg.Reset.PurgeInterval
	if interval <= 0 {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.auther.ResetTokens().RunPurger(ctx, interval)
	}()
}

// Run serves on cfg.HTTP.Addr until ctx is done, then shuts down within
// http.shutdown_timeout.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.HTTP.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.HTTP.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run over an existing listener
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.Start(ctx)

	serveErr := make(chan error, 1)
	go func() {
		s.logger.Info("http_listen_start", slog.String("addr", ln.Addr().String()))
		serveErr <- s.app.Listener(ln)
	}()

	var err error
	select {
	case <-ctx.Done():
		s.logger.Info("shutdown_requested")
	case err = <-serveErr:
		if err != nil {
			s.logger.Error("http_serve_failed", slog.String("err", err.Error()))
		}
	}

	cancel()
	if shutdownErr := s.Shutdown(); shutdownErr != nil && err == nil {
		err = shutdownErr
	}
	return err
}

// Shutdown stops the HTTP server, waits for the purger and closes the database
func (s *Server) Shutdown() error {
	timeout := s.cfg.HTTP.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	err := s.app.ShutdownWithTimeout(timeout)
	s.wg.Wait()
	s.closeDB()

	s.logger.Info("service_stopped")
	return err
}

func (s *Server) closeDB() {
	if s.db == nil {
		return
	}
	if err := s.db.Close(); err != nil {
		s.logger.Warn("database close failed", slog.String("err", err.Error()))
	}
	s.db = nil
}
