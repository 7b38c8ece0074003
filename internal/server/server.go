// Package server sets up the HTTP server, router, and all route definitions.
//
// This is the composition root: every dependency is built in New and
// handed down, so no other package constructs its own collaborators.
//
//	config → backend (sqlite | supabase) → services → handlers → routes
//	       → flow store (memory | redis)  ↗
//	       → catalog (shopify + LRU)      ↗
package server

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

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/robfig/cron/v3"

	"github.com/sakif/snuffspec/internal/access"
	"github.com/sakif/snuffspec/internal/apperror"
	"github.com/sakif/snuffspec/internal/auth"
	"github.com/sakif/snuffspec/internal/catalog"
	"github.com/sakif/snuffspec/internal/config"
	"github.com/sakif/snuffspec/internal/gateway"
	"github.com/sakif/snuffspec/internal/gateway/supabase"
	"github.com/sakif/snuffspec/internal/handler"
	"github.com/sakif/snuffspec/internal/metrics"
	"github.com/sakif/snuffspec/internal/middleware"
	"github.com/sakif/snuffspec/internal/otp"
	"github.com/sakif/snuffspec/internal/repository"
	sqliteRepo "github.com/sakif/snuffspec/internal/repository/sqlite"
	"github.com/sakif/snuffspec/internal/service"
)

// flowCacheSize bounds the in-memory flow store.
const flowCacheSize = 4096

// backend is everything the credential gateway provides. Both the local
// SQLite gateway and the Supabase client satisfy it.
type backend interface {
	gateway.Authenticator
	gateway.IdentityAdmin
	repository.ProfileRepository
	repository.SpecificationRepository
}

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The server owns the database (local mode), the Redis client (when
// configured) and the purge scheduler. Close releases them in reverse
// order of creation; Start calls it on the way out.
type Server struct {
	router  *chi.Mux
	config  *config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	cron    *cron.Cron

	closers []func() error
}

// New builds the server from cfg. It fails on missing required
// configuration; missing commerce keys only disable the catalog.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if missing := cfg.Missing(); len(missing) > 0 {
		return nil, apperror.Configuration(missing...)
	}

	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		logger:  logger,
		metrics: metrics.New(),
	}

	be, err := s.openBackend()
	if err != nil {
		s.Close()
		return nil, err
	}

	flows, err := s.openFlowStore()
	if err != nil {
		s.Close()
		return nil, err
	}

	tokens, err := auth.NewTokenService(cfg.SessionSecret, cfg.SessionTTL)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("creating token service: %w", err)
	}
	sessions := auth.NewCookieSessions(tokens, cfg.CookieSecure)

	if missing := cfg.ShopifyMissing(); len(missing) > 0 {
		logger.Warn("commerce credentials missing, catalog pages will fail",
			slog.Any("missing", missing),
		)
	}
	products := catalog.NewReader(catalog.NewShopify(catalog.ShopifyConfig{
		StoreURL:    cfg.Shopify.StoreURL,
		AccessToken: cfg.Shopify.AccessToken,
	}), cfg.CatalogCacheTTL, s.metrics)

	s.setupRoutes(be, flows, sessions, products)
	return s, nil
}

// openBackend connects the gateway selected by GATEWAY_MODE.
func (s *Server) openBackend() (backend, error) {
	switch s.config.GatewayMode {
	case config.GatewaySupabase:
		client, err := supabase.New(supabase.Config{
			URL:            s.config.Supabase.URL,
			AnonKey:        s.config.Supabase.AnonKey,
			ServiceRoleKey: s.config.Supabase.ServiceRoleKey,
		})
		if err != nil {
			return nil, fmt.Errorf("creating supabase client: %w", err)
		}
		return client, nil

	default:
		db, err := sqliteRepo.New(s.config.DBPath, sqliteRepo.WithLogger(s.logger))
		if err != nil {
			return nil, fmt.Errorf("opening database: %w", err)
		}
		s.closers = append(s.closers, db.Close)

		s.cron = cron.New()
		if _, err := db.SchedulePurge(s.cron); err != nil {
			return nil, err
		}
		return db, nil
	}
}

// openFlowStore picks Redis when REDIS_URL is set, memory otherwise.
func (s *Server) openFlowStore() (otp.FlowStore, error) {
	if s.config.RedisURL == "" {
		return otp.NewMemoryStore(flowCacheSize, otp.FlowTTL), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := otp.DialRedis(ctx, s.config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("connecting flow store: %w", err)
	}
	s.closers = append(s.closers, client.Close)
	return otp.NewRedisStore(client, otp.FlowTTL), nil
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
// GET    /healthz, /metrics                       → infrastructure, not gated
// GET    /auth/signin                             → sign-in state
// POST   /auth/signin/{code,verify,resend,back}   → sign-in steps
// GET    /auth/callback                           → emailed link
// POST   /auth/signout
// GET    /me
// GET    /                                        → catalog (?q= search)
// GET    /specification/{productID}               → product + records
// POST   /specification/{productID}               → save record
// GET    /specification/mine, /specification/all
// PATCH  /specification/records/{id}
// DELETE /specification/records/{id}
// GET    /admin/users, POST /admin/users
// PUT    /admin/users/{id}/role
// DELETE /admin/users/{id}
// GET    /setup, POST /setup/create-admin
// GET    /debug/config
//
// MIDDLEWARE ORDER MATTERS:
// 1. RequestID, RealIP, Recoverer (chi)
// 2. Logger, Metrics (ours)
// 3. CORS, when origins are configured, so preflights skip the gate
// 4. Gate: resolves the caller and redirects what they may not see
func (s *Server) setupRoutes(be backend, flows otp.FlowStore, sessions *auth.CookieSessions, products catalog.Source) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(middleware.Metrics(s.metrics))

	if len(s.config.CORSOrigins) > 0 {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.config.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	s.router.Handle("/metrics", s.metrics.Handler())

	// === Services ===
	signinService := service.NewSignInService(be, flows, be, s.metrics, s.logger)
	specService := service.NewSpecificationService(be, s.logger)
	adminService := service.NewAdminService(be, be, s.logger)

	// === Handlers ===
	signinHandler := handler.NewSignInHandler(signinService, sessions, be, s.config.CookieSecure, s.logger)
	catalogHandler := handler.NewCatalogHandler(products, specService, s.logger)
	specHandler := handler.NewSpecificationHandler(specService, products, s.logger)
	adminHandler := handler.NewAdminHandler(adminService, s.logger)
	setupHandler := handler.NewSetupHandler(adminService, s.logger)

	gate := access.NewGate(sessions, be, s.metrics, s.logger)

	s.router.Group(func(r chi.Router) {
		r.Use(gate.Handler)

		r.Route("/auth", func(r chi.Router) {
			r.Get("/signin", signinHandler.HandleStart)
			r.Post("/signin/code", signinHandler.HandleCode)
			r.Post("/signin/verify", signinHandler.HandleVerify)
			r.Post("/signin/resend", signinHandler.HandleResend)
			r.Post("/signin/back", signinHandler.HandleBack)
			r.Get("/callback", signinHandler.HandleCallback)
			r.Post("/signout", signinHandler.HandleSignOut)
		})
		r.Get("/me", signinHandler.HandleMe)

		r.Get("/", catalogHandler.HandleList)

		r.Route("/specification", func(r chi.Router) {
			r.Get("/mine", specHandler.HandleMine)
			r.Get("/all", specHandler.HandleAll)
			r.Patch("/records/{id}", specHandler.HandleUpdate)
			r.Delete("/records/{id}", specHandler.HandleDelete)
			r.Get("/{productID}", catalogHandler.HandleProduct)
			r.Post("/{productID}", specHandler.HandleSave)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Get("/users", adminHandler.HandleList)
			r.Post("/users", adminHandler.HandleCreate)
			r.Put("/users/{id}/role", adminHandler.HandleUpdateRole)
			r.Delete("/users/{id}", adminHandler.HandleDelete)
		})

		r.Get("/setup", setupHandler.HandleStatus)
		r.Post("/setup/create-admin", setupHandler.HandleCreateAdmin)

		r.Get("/debug/config", handler.HandleDebugConfig(s.config, s.config.GatewayMode))
	})
}

// Handler exposes the router, for tests and for embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close stops the scheduler and releases resources, newest first.
func (s *Server) Close() error {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// Start starts the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
// 1. Stop accepting new HTTP connections
// 2. Wait for in-flight requests to finish (30s timeout)
// 3. Stop the purge scheduler, close Redis and the database
func (s *Server) Start() error {
	defer func() {
		if err := s.Close(); err != nil {
			s.logger.Error("releasing resources", slog.String("error", err.Error()))
		}
	}()

	if s.cron != nil {
		s.cron.Start()
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("gateway", s.config.GatewayMode),
			slog.Any("configured", s.config.PresentKeys()),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
