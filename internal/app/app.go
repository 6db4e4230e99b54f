package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/foxzi/phishdrill/internal/ai"
	"github.com/foxzi/phishdrill/internal/api"
	"github.com/foxzi/phishdrill/internal/config"
	"github.com/foxzi/phishdrill/internal/mailer"
	"github.com/foxzi/phishdrill/internal/metrics"
	"github.com/foxzi/phishdrill/internal/models"
	"github.com/foxzi/phishdrill/internal/ratelimit"
	"github.com/foxzi/phishdrill/internal/store"
	phishtls "github.com/foxzi/phishdrill/internal/tls"
)

// App is the main application
type App struct {
	config        *config.Config
	store         store.Store
	apiServer     *api.Server
	metricsServer *metrics.Server
	acmeManager   *phishtls.ACMEManager
	acmeServer    *http.Server
	logger        *slog.Logger
}

// New creates a new application
func New(ctx context.Context, cfg *config.Config, version string) (*App, error) {
	logger := NewLogger(cfg.Logging, os.Stdout)

	st, err := OpenStore(cfg.Database)
	if err != nil {
		return nil, err
	}
	logger.Info("store opened", "driver", cfg.Database.Driver, "path", cfg.Database.Path)

	if cfg.Server.Seed {
		seeded, err := store.Seed(ctx, st)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("failed to seed store: %w", err)
		}
		if seeded {
			logger.Info("demo data inserted")
		}
	}

	adapter, err := NewAIAdapter(ctx, cfg.AI, logger)
	if err != nil {
		st.Close()
		return nil, err
	}

	mail, err := mailer.New(cfg.Mailer, logger)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to create mailer: %w", err)
	}
	if mail.Enabled() {
		logger.Info("mail delivery enabled", "relay", cfg.Mailer.Addr, "security", cfg.Mailer.Security)
	}

	tlsConfig, acmeManager, err := phishtls.ServerConfig(cfg.API.TLS)
	if err != nil {
		st.Close()
		return nil, err
	}

	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		m := metrics.New()
		if err := m.RegisterCollector(metrics.NewCollector(NewInventory(st))); err != nil {
			st.Close()
			return nil, fmt.Errorf("failed to register metrics collector: %w", err)
		}
		metrics.SetGlobal(m)
		metricsServer = metrics.NewServer(m, cfg.Metrics.ListenAddr, cfg.Metrics.Path, cfg.Metrics.AllowedIPs, logger)
		logger.Info("metrics enabled", "addr", cfg.Metrics.ListenAddr, "path", cfg.Metrics.Path)
	}

	apiServer := api.NewServer(st, adapter, mail, &cfg.API, api.Info{
		Service:    cfg.Server.Name,
		Version:    version,
		LandingURL: cfg.Mailer.LandingURL,
	}, logger)

	if tlsConfig != nil {
		apiServer.SetTLSConfig(tlsConfig)
		if acmeManager != nil {
			logger.Info("ACME (Let's Encrypt) enabled", "domains", acmeManager.Domains())
		}
	}

	if limiter := NewRateLimiter(cfg.RateLimit); limiter != nil {
		apiServer.SetRateLimiter(limiter)
		logger.Info("AI rate limiting enabled")
	}

	return &App{
		config:        cfg,
		store:         st,
		apiServer:     apiServer,
		metricsServer: metricsServer,
		acmeManager:   acmeManager,
		logger:        logger,
	}, nil
}

// Run starts all components and waits for shutdown
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("starting phishdrill",
		"api_addr", a.config.API.ListenAddr,
		"store", a.config.Database.Driver,
		"ai_provider", a.config.AI.Provider,
		"mailer", a.config.Mailer.Enabled,
		"tls", a.config.API.TLS.Enabled(),
	)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 3)

	// Start ACME HTTP challenge server before the HTTPS listener needs certificates
	if a.acmeManager != nil {
		a.acmeServer = &http.Server{
			Addr:              a.config.API.TLS.ACME.HTTPAddr,
			Handler:           a.acmeManager.ChallengeHandler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			a.logger.Info("starting ACME HTTP challenge server", "addr", a.acmeServer.Addr)
			if err := a.acmeServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Warn("ACME HTTP server error", "error", err)
			}
		}()
	}

	go func() {
		if err := a.apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()

	if a.metricsServer != nil {
		go func() {
			if err := a.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case runErr = <-errCh:
		a.logger.Error("server error", "error", runErr)
		cancel()
	}

	if err := a.Shutdown(context.Background()); err != nil {
		return err
	}
	return runErr
}

// Shutdown gracefully shuts down all components
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := a.apiServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("api server shutdown error", "error", err)
	}

	if a.metricsServer != nil {
		if err := a.metricsServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("metrics server shutdown error", "error", err)
		}
	}

	if a.acmeServer != nil {
		if err := a.acmeServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("acme server shutdown error", "error", err)
		}
	}

	if err := a.store.Close(); err != nil {
		a.logger.Error("store close error", "error", err)
		return fmt.Errorf("failed to close store: %w", err)
	}

	a.logger.Info("shutdown complete")
	return nil
}

// OpenStore opens the store selected by the database driver
func OpenStore(cfg config.DatabaseConfig) (store.Store, error) {
	switch cfg.Driver {
	case config.DriverSQLite, "":
		st, err := store.NewSQLStore(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		return st, nil
	case config.DriverBolt:
		st, err := store.NewBoltStore(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open bolt store: %w", err)
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown database driver: %s", cfg.Driver)
	}
}

// NewAIAdapter builds the adapter for the configured provider. Provider
// "none" yields an adapter that is not ready.
func NewAIAdapter(ctx context.Context, cfg config.AIConfig, logger *slog.Logger) (*ai.Adapter, error) {
	completer, err := ai.NewCompleter(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create AI provider: %w", err)
	}
	adapter := ai.NewAdapter(completer, cfg.Timeout, logger)
	if adapter.Ready() {
		logger.Info("AI provider configured", "provider", adapter.Provider(), "models", cfg.Models)
	} else {
		logger.Warn("no AI provider configured, generation is disabled and analysis returns defaults")
	}
	return adapter, nil
}

// NewRateLimiter builds the AI quota limiter. It returns nil when rate
// limiting is disabled.
func NewRateLimiter(cfg config.RateLimitConfig) *ratelimit.Limiter {
	if !cfg.Enabled {
		return nil
	}

	rlConfig := ratelimit.Config{}
	if cfg.Global != nil {
		rlConfig.Global = &ratelimit.LimitConfig{
			RequestsPerHour: cfg.Global.RequestsPerHour,
			RequestsPerDay:  cfg.Global.RequestsPerDay,
		}
	}
	if cfg.PerClient != nil {
		rlConfig.PerClient = &ratelimit.LimitConfig{
			RequestsPerHour: cfg.PerClient.RequestsPerHour,
			RequestsPerDay:  cfg.PerClient.RequestsPerDay,
		}
	}

	return ratelimit.NewLimiter(rlConfig)
}

// NewLogger creates a logger based on configuration
func NewLogger(cfg config.LoggingConfig, w io.Writer) *slog.Logger {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

// storeInventory counts records for the metrics collector
type storeInventory struct {
	store store.Store
}

// NewInventory adapts a store to metrics.InventoryProvider
func NewInventory(st store.Store) metrics.InventoryProvider {
	return &storeInventory{store: st}
}

// Inventory implements metrics.InventoryProvider
func (i *storeInventory) Inventory(ctx context.Context) (*metrics.Inventory, error) {
	templates, err := i.store.ListTemplates(ctx)
	if err != nil {
		return nil, err
	}
	targets, err := i.store.ListTargets(ctx)
	if err != nil {
		return nil, err
	}
	campaigns, err := i.store.ListCampaigns(ctx)
	if err != nil {
		return nil, err
	}

	inv := &metrics.Inventory{
		Templates: len(templates),
		Targets:   len(targets),
		Campaigns: len(campaigns),
	}
	for _, c := range campaigns {
		if c.Status == models.CampaignActive {
			inv.ActiveCampaigns++
		}
	}
	return inv, nil
}
