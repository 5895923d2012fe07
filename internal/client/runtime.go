package client

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"

	"go.uber.org/zap"

	"fxhedz/internal/logger"
)

// Runtime wires the device identity, session, verifier and gated fetcher together
type Runtime struct {
	Identity  *Identity
	Session   *Session
	Client    *Client
	Verifier  *Verifier
	Fetcher   *Fetcher
	Scheduler *Scheduler

	logger *zap.Logger
}

// NewRuntime builds a client runtime; bridge is nil for standalone clients
func NewRuntime(cfg Config, storage Storage, env Environment, bridge HostBridge, log *zap.Logger) (*Runtime, error) {
	cfg.applyDefaults()

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	gw, err := NewGateway(cfg.BaseURL, &http.Client{Timeout: cfg.RequestTimeout, Jar: jar})
	if err != nil {
		return nil, err
	}

	identity := NewIdentity(storage, jar, gw.BaseURL(), cfg.Platform, cfg.TelegramChatID, env, log)
	session := NewSession(storage, gw, identity, bridge, log)
	api := NewClient(gw, session, identity, log)
	scheduler := NewScheduler(log)
	verifier := NewVerifier(api, identity, session, scheduler, cfg.VerifyInterval, log)
	fetcher := NewFetcher(api, scheduler, cfg.Instruments, cfg.SnapshotInterval, cfg.DetailInterval, log)

	verifier.OnChange(fetcher.SetAccess)

	return &Runtime{
		Identity:  identity,
		Session:   session,
		Client:    api,
		Verifier:  verifier,
		Fetcher:   fetcher,
		Scheduler: scheduler,
		logger:    log.Named("runtime"),
	}, nil
}

// Start ensures device identity and starts verification and fetching
func (r *Runtime) Start(ctx context.Context) {
	deviceID := r.Identity.EnsureDeviceID()
	r.Identity.ComputeFingerprint()

	r.Fetcher.Start(ctx)
	r.Verifier.Start(ctx)

	r.logger.Info("client started",
		zap.Bool("authenticated", r.Session.Info().Authenticated),
		zap.String("device_id", logger.ShortID(deviceID)),
	)
}

// Stop cancels every polling loop and waits for in-flight runs
func (r *Runtime) Stop() {
	r.Scheduler.StopAll()
}
