package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/clashkit/cocgw"
	"github.com/clashkit/cocgw/internal/accountstore"
	"github.com/clashkit/cocgw/internal/admin"
	"github.com/clashkit/cocgw/internal/logging"
	"github.com/clashkit/cocgw/internal/version"
	"github.com/clashkit/cocgw/keyring"
	"github.com/clashkit/cocgw/portal"
)

func main() {
	logging.Setup(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
	if err := run(); err != nil {
		logging.Logger.Error("gateway stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	log := logging.Logger

	cfg, err := loadConfig(os.Getenv("COCGW_CONFIG"))
	if err != nil {
		return err
	}

	accounts, err := accountstore.Open(os.Getenv("ACCOUNTS_DB_DRIVER"), os.Getenv("ACCOUNTS_DB_DSN"))
	if err != nil {
		return fmt.Errorf("open account store: %w", err)
	}
	defer func() { _ = accounts.Close() }()

	pc := portal.New(
		portal.WithBaseURL(cfg.Portal.BaseURL),
		portal.WithIPResolverURL(cfg.Portal.IPResolverURL),
		portal.WithHTTPClient(&http.Client{Timeout: cfg.Portal.Timeout()}),
	)
	keys, err := keyring.New(pc, cfg.ManagerOptions()...)
	if err != nil {
		return err
	}
	registered := registerAccounts(keys, cfg, accounts)
	log.Info("accounts registered", "count", registered)

	upstreamRaw := cfg.API.BaseURL
	if upstreamRaw == "" {
		upstreamRaw = cocgw.DefaultBaseURL
	}
	upstream, err := url.Parse(upstreamRaw)
	if err != nil {
		return fmt.Errorf("invalid api base url: %w", err)
	}

	tokens := admin.TokensFromEnv()
	if tokens.Len() == 0 {
		log.Warn("ADMIN_TOKEN not set; admin API rejects every request")
	}

	var corsOrigins []string
	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		corsOrigins = strings.Split(origins, ",")
	}

	r := newRouter(routerDeps{
		keys:        keys,
		accounts:    accounts,
		tokens:      tokens,
		upstream:    upstream,
		transport:   cocgw.NewTransport(keys, nil),
		corsOrigins: corsOrigins,
	})

	addr := ":8080"
	if p := os.Getenv("PORT"); p != "" {
		addr = ":" + p
	}
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.API.Timeout() + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown on SIGINT / SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ref := &refresher{
		keys:     keys,
		accounts: accounts,
		interval: cfg.Refresh.Interval(),
		timeout:  cfg.Portal.Timeout() * 4,
	}
	if report := ref.refreshOnce(ctx); report != nil && report.Usable() == 0 {
		log.Warn("no usable keys after initial refresh; requests will fail until a refresh succeeds")
	}
	go ref.run(ctx)

	go func() {
		<-ctx.Done()
		log.Info("shutting down gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("shutdown error", "error", err)
		}
	}()

	log.Info("cocgw listening",
		"version", version.Short(),
		"addr", addr,
		"upstream", upstream.String(),
		"usable_keys", keys.Usable(),
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	log.Info("server stopped")
	return nil
}

// loadConfig reads and validates path. An empty path yields the defaults with
// no accounts; accounts can then come from the store or the admin API.
func loadConfig(path string) (*cocgw.Config, error) {
	if path == "" {
		logging.Logger.Info("COCGW_CONFIG not set; starting without configured accounts")
		return &cocgw.Config{}, nil
	}
	cfg, err := cocgw.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cocgw.ValidateConfig(*cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// registerAccounts registers the configured accounts, then the stored ones.
// A stored account that duplicates a configured one is skipped.
func registerAccounts(keys *keyring.Manager, cfg *cocgw.Config, store accountstore.Store) int {
	n := 0
	for _, a := range cfg.Accounts {
		if err := keys.Register(a.Credential()); err != nil {
			logging.Logger.Warn("skipping configured account", "account", a.Email, "error", err)
			continue
		}
		n++
	}
	for _, a := range store.List() {
		if err := keys.Register(a.Credential()); err != nil {
			logging.Logger.Warn("skipping stored account", "account", a.Email, "error", err)
			continue
		}
		n++
	}
	return n
}
