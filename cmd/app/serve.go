package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"fxhedz/configs"
	"fxhedz/internal/adapter"
	"fxhedz/internal/adapter/google"
	"fxhedz/internal/adapter/telegram"
	"fxhedz/internal/authority"
	"fxhedz/internal/database"
	delivery "fxhedz/internal/delivery/http"
	"fxhedz/internal/domain"
	"fxhedz/internal/infra"
	"fxhedz/internal/metrics"
	"fxhedz/internal/middleware"
	"fxhedz/internal/repository"
	"fxhedz/internal/service"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the access gateway",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadServerConfig(opts)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, log)
		},
	}
}

type authoritySetup struct {
	authority domain.Authority
	local     *authority.Local // nil in remote mode
	db        *pgxpool.Pool    // nil unless postgres mode
}

func serve(ctx context.Context, cfg *configs.Config, log *zap.Logger) error {
	notifier := telegram.NewNotificationService(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
	bridge := adapter.NewGASBridge(cfg.Authority.URL, cfg.Signals.URL, cfg.Authority.Secret, cfg.Authority.Timeout, log)

	setup, err := buildAuthority(ctx, cfg, bridge, notifier, log)
	if err != nil {
		return err
	}
	if setup.db != nil {
		defer setup.db.Close()
	}

	verifier, err := google.NewVerifier(ctx, cfg.Auth.GoogleClientID)
	if err != nil {
		return err
	}

	keys, err := middleware.DeriveKeys(cfg.Auth.Secret)
	if err != nil {
		return err
	}
	issuer := middleware.NewTokenIssuer(keys.AccessToken, cfg.Auth.AccessTTL)
	sessions := middleware.NewSessionManager(keys, cfg.Auth.CookieSecure || cfg.IsProduction())
	authenticator := middleware.NewAuthenticator(issuer, sessions)

	registry := metrics.NewRegistry()
	accessService := service.NewAccessService(setup.authority, registry, log)
	tokenService := service.NewTokenService(verifier, setup.authority, issuer, cfg.Auth.RefreshTTL, registry, log)
	signalService := service.NewSignalService(bridge, service.PreviewConfig{
		Pair:    cfg.Signals.PreviewPair,
		TTL:     cfg.Signals.PreviewTTL,
		Candles: cfg.Signals.PreviewCandles,
	}, registry, log)

	var oauthHandler *delivery.OAuthHandler
	if cfg.Auth.GoogleClientID != "" && cfg.Auth.GoogleClientSecret != "" && cfg.Server.PublicURL != "" {
		oauthConfig := delivery.NewGoogleOAuthConfig(cfg.Auth.GoogleClientID, cfg.Auth.GoogleClientSecret, cfg.Server.PublicURL)
		oauthHandler = delivery.NewOAuthHandler(oauthConfig, verifier, accessService, sessions, log)
	} else {
		log.Info("web sign-in disabled; google client credentials or public url not set")
	}

	var origins []string
	if cfg.Server.PublicURL != "" {
		origins = []string{strings.TrimSuffix(cfg.Server.PublicURL, "/")}
	}

	api := delivery.NewServer(&delivery.RouterConfig{
		AuthHandler:         delivery.NewAuthHandler(tokenService, sessions, log),
		OAuthHandler:        oauthHandler,
		SubscriptionHandler: delivery.NewSubscriptionHandler(accessService),
		SignalHandler:       delivery.NewSignalHandler(accessService, signalService, cfg.Signals.StreamInterval, cfg.Signals.StreamRecheck, log),
		Authenticator:       authenticator,
		Metrics:             registry,
		Logger:              log,
		AllowOrigins:        origins,
	})

	checks := map[string]delivery.HealthCheck{"signals": bridge.HealthCheck}
	if setup.db != nil {
		checks["database"] = setup.db.Ping
	}
	opsConfig := &delivery.OpsConfig{Checks: checks, Version: version}
	if cfg.Metrics.Enabled {
		opsConfig.Metrics = registry
		opsConfig.MetricsPath = cfg.Metrics.Path
	}

	jobs := infra.NewScheduler(log, 30*time.Second)
	if setup.local != nil {
		if err := jobs.AddJob("purge_refresh_tokens", "0 0 * * * *", func(ctx context.Context) error {
			removed, err := setup.local.PurgeExpiredTokens(ctx)
			if err == nil && removed > 0 {
				log.Info("expired refresh tokens purged", zap.Int("removed", removed))
			}
			return err
		}); err != nil {
			return err
		}
	}
	if cfg.Signals.PreviewTTL > 0 {
		if err := jobs.AddJob("warm_preview", fmt.Sprintf("@every %s", cfg.Signals.PreviewTTL), func(ctx context.Context) error {
			_, err := signalService.WarmPreview(ctx)
			return err
		}); err != nil {
			return err
		}
	}
	jobs.Start()
	defer jobs.Stop()

	servers := []*http.Server{{
		Addr:        fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:     api,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}}
	if cfg.Server.OpsPort > 0 {
		servers = append(servers, &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Server.OpsPort),
			Handler:      delivery.NewOpsRouter(opsConfig),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		})
	}

	errCh := make(chan error, len(servers))
	for _, srv := range servers {
		go func(srv *http.Server) {
			log.Info("listening", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("server %s: %w", srv.Addr, err)
			}
		}(srv)
	}

	log.Info("gateway started",
		zap.String("env", cfg.Server.Env),
		zap.String("authority", cfg.Authority.Mode),
		zap.String("version", version),
	)

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case runErr = <-errCh:
		log.Error("server failed", zap.Error(runErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("forced shutdown", zap.String("addr", srv.Addr), zap.Error(err))
		}
	}

	log.Info("gateway stopped")
	return runErr
}

func buildAuthority(ctx context.Context, cfg *configs.Config, bridge *adapter.GASBridge, notifier *telegram.NotificationService, log *zap.Logger) (*authoritySetup, error) {
	policy := authority.Policy{MaxDevices: cfg.Policy.MaxDevices, TrialDays: cfg.Policy.TrialDays}

	switch cfg.Authority.Mode {
	case configs.AuthorityPostgres:
		db, err := infra.NewDatabase(ctx, cfg.Database.URL, log)
		if err != nil {
			return nil, err
		}
		if err := database.RunMigrations(ctx, db, log); err != nil {
			db.Close()
			return nil, err
		}
		local := authority.NewLocal(repository.NewAuthorityRepository(db), policy, notifier, log)
		return &authoritySetup{authority: local, local: local, db: db}, nil
	case configs.AuthorityMemory:
		log.Warn("using in-memory authority; bindings are lost on restart")
		local := authority.NewLocal(authority.NewMemoryStore(), policy, notifier, log)
		return &authoritySetup{authority: local, local: local}, nil
	default:
		return &authoritySetup{authority: bridge}, nil
	}
}
