package client

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"fxhedz/internal/domain"
)

const verifyTask = "verify"

// Verifier owns the access state. It polls only while a session exists.
type Verifier struct {
	client    *Client
	identity  *Identity
	session   *Session
	scheduler *Scheduler
	interval  time.Duration
	logger    *zap.Logger

	mu        sync.Mutex
	ctx       context.Context
	status    domain.AccessStatus
	listeners []func(domain.AccessStatus)
}

// NewVerifier creates a verifier in the UNKNOWN state
func NewVerifier(client *Client, identity *Identity, session *Session, scheduler *Scheduler, interval time.Duration, log *zap.Logger) *Verifier {
	return &Verifier{
		client:    client,
		identity:  identity,
		session:   session,
		scheduler: scheduler,
		interval:  interval,
		logger:    log.Named("verifier"),
		status:    domain.AccessStatus{State: domain.AccessUnknown},
	}
}

// OnChange registers a listener called whenever the access status changes
func (v *Verifier) OnChange(fn func(domain.AccessStatus)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.listeners = append(v.listeners, fn)
}

// Status returns the current access status
func (v *Verifier) Status() domain.AccessStatus {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.status
}

// Start begins verification and re-runs it on every session change
func (v *Verifier) Start(ctx context.Context) {
	v.mu.Lock()
	v.ctx = ctx
	v.mu.Unlock()

	v.session.OnChange(func(SessionInfo) { v.reschedule() })
	v.reschedule()
}

func (v *Verifier) reschedule() {
	v.mu.Lock()
	if v.ctx == nil {
		v.mu.Unlock()
		return
	}

	// any in-flight check belongs to the previous session
	v.scheduler.Stop(verifyTask)

	var next domain.AccessStatus
	switch {
	case !v.session.Info().Authenticated:
		next = domain.AccessStatus{State: domain.AccessAnonymous}
	case v.identity.DeviceID() == "":
		next = domain.ResolveAccessState("", nil, nil)
	default:
		next = domain.AccessStatus{State: domain.AccessUnknown}
		v.scheduler.Start(v.ctx, verifyTask, v.interval, v.tick)
	}

	listeners := v.setLocked(next)
	v.mu.Unlock()

	v.emit(listeners, next)
}

func (v *Verifier) tick(ctx context.Context) {
	status := v.Check(ctx)

	v.mu.Lock()
	if ctx.Err() != nil {
		v.mu.Unlock()
		return
	}
	listeners := v.setLocked(status)
	v.mu.Unlock()

	v.emit(listeners, status)
}

// Check performs one access check; it never fails, failures resolve closed
func (v *Verifier) Check(ctx context.Context) domain.AccessStatus {
	if !v.session.Info().Authenticated {
		return domain.AccessStatus{State: domain.AccessAnonymous}
	}

	deviceID := v.identity.DeviceID()
	if deviceID == "" {
		return domain.ResolveAccessState("", nil, nil)
	}

	var resp domain.AccessResponse
	err := v.client.GetJSON(ctx, "/api/subscription", nil, &resp)
	if err != nil {
		v.logger.Warn("access check failed", zap.Error(err))
	}

	// the check may have signed the session out
	if !v.session.Info().Authenticated {
		return domain.AccessStatus{State: domain.AccessAnonymous}
	}
	return domain.ResolveAccessState(deviceID, &resp, err)
}

// setLocked stores next and returns the listeners to notify, or nil when nothing changed
func (v *Verifier) setLocked(next domain.AccessStatus) []func(domain.AccessStatus) {
	if domain.CanonicalEqual(v.status, next) {
		return nil
	}
	v.logger.Info("access state changed",
		zap.String("from", v.status.State.String()),
		zap.String("state", next.State.String()),
		zap.String("reason", next.Reason),
	)
	v.status = next
	return append([]func(domain.AccessStatus){}, v.listeners...)
}

func (v *Verifier) emit(listeners []func(domain.AccessStatus), status domain.AccessStatus) {
	for _, fn := range listeners {
		fn(status)
	}
}

// CanResetDevices reports whether the device-limit reset action applies
func (v *Verifier) CanResetDevices() bool {
	status := v.Status()
	return status.State == domain.AccessBlocked && status.Reason == domain.ReasonDeviceLimitExceeded
}

// ResetDevices revokes all device bindings of the account and signs out entirely
func (v *Verifier) ResetDevices(ctx context.Context) (int, error) {
	return v.client.ResetDevices(ctx)
}
