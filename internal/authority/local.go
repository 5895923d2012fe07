// Package authority implements the subscription authority in-process, over a
// pluggable store, for deployments that do not use the external script.
package authority

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"fxhedz/internal/domain"
	"fxhedz/internal/logger"
)

const defaultRefreshLifetime = 14 * 24 * time.Hour

// Policy holds the account rules enforced by the local authority
type Policy struct {
	MaxDevices int
	TrialDays  int
}

// Local is the in-process domain.Authority
type Local struct {
	store    domain.AuthorityStore
	policy   Policy
	notifier domain.SecurityNotifier
	logger   *zap.Logger
	now      func() time.Time
}

// NewLocal creates a local authority; notifier may be nil
func NewLocal(store domain.AuthorityStore, policy Policy, notifier domain.SecurityNotifier, log *zap.Logger) *Local {
	if policy.MaxDevices < 1 {
		policy.MaxDevices = domain.MaxDevicesPerAccount
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Local{
		store:    store,
		policy:   policy,
		notifier: notifier,
		logger:   log.Named("authority"),
		now:      time.Now,
	}
}

// CheckAccess resolves access for a device and/or email
func (a *Local) CheckAccess(ctx context.Context, q domain.AccessQuery) (*domain.AccessResponse, error) {
	email := strings.ToLower(strings.TrimSpace(q.Email))

	if q.DeviceID != "" {
		blocked, err := a.store.IsDeviceBlocked(ctx, q.DeviceID)
		if err != nil {
			return nil, fmt.Errorf("failed to check device block: %w", err)
		}
		if blocked {
			return &domain.AccessResponse{Blocked: true, Reason: domain.ReasonDeviceBlocked}, nil
		}

		binding, err := a.store.GetBindingByDevice(ctx, q.DeviceID)
		if err != nil {
			return nil, fmt.Errorf("failed to get device binding: %w", err)
		}

		switch {
		case binding != nil:
			email = binding.Email
		case email != "":
			// unbound device asking on behalf of an account
			full, err := a.accountFull(ctx, email, q.DeviceID)
			if err != nil {
				return nil, err
			}
			if full {
				return &domain.AccessResponse{Blocked: true, Reason: domain.ReasonDeviceLimitExceeded}, nil
			}
		default:
			return &domain.AccessResponse{}, nil
		}
	}

	if email == "" {
		return &domain.AccessResponse{}, nil
	}

	return a.subscriptionResponse(ctx, email)
}

// RegisterDevice binds a device to an account, starting a trial for new accounts
func (a *Local) RegisterDevice(ctx context.Context, reg domain.DeviceRegistration) (*domain.AccessResponse, error) {
	email := strings.ToLower(strings.TrimSpace(reg.Email))
	if email == "" || reg.DeviceID == "" {
		return nil, domain.ErrMissingFields
	}

	blocked, err := a.store.IsDeviceBlocked(ctx, reg.DeviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to check device block: %w", err)
	}
	if blocked {
		return &domain.AccessResponse{Blocked: true, Reason: domain.ReasonDeviceBlocked}, nil
	}

	now := a.now()
	platform := reg.Platform
	if platform == "" {
		platform = domain.PlatformWeb
	}
	binding := &domain.DeviceBinding{
		Email:       email,
		DeviceID:    reg.DeviceID,
		Fingerprint: reg.Fingerprint,
		Platform:    platform,
		CreatedAt:   now,
		LastSeenAt:  now,
	}
	if platform == domain.PlatformTelegram {
		binding.TelegramChatID = reg.TelegramChatID
	}

	bound, err := a.store.BindDevice(ctx, binding, a.policy.MaxDevices)
	if err != nil {
		return nil, fmt.Errorf("failed to save device binding: %w", err)
	}
	if !bound {
		a.logger.Warn("device limit exceeded",
			zap.String("email", email),
			zap.String("device_id", logger.ShortID(reg.DeviceID)),
			zap.Int("max_devices", a.policy.MaxDevices),
		)
		if a.notifier != nil {
			if err := a.notifier.DeviceLimitExceeded(email, reg.DeviceID, reg.Platform); err != nil {
				a.logger.Warn("failed to notify device limit", zap.Error(err))
			}
		}
		return &domain.AccessResponse{Blocked: true, Reason: domain.ReasonDeviceLimitExceeded}, nil
	}

	if err := a.ensureSubscription(ctx, email, now); err != nil {
		return nil, err
	}

	if reg.RefreshTokenHash != "" {
		expires := now.Add(defaultRefreshLifetime)
		if reg.RefreshExpires != nil {
			expires = *reg.RefreshExpires
		}
		record := &domain.RefreshTokenRecord{
			Email:     email,
			DeviceID:  reg.DeviceID,
			TokenHash: reg.RefreshTokenHash,
			ExpiresAt: expires,
			CreatedAt: now,
		}
		if err := a.store.SaveRefreshToken(ctx, record); err != nil {
			return nil, fmt.Errorf("failed to save refresh token: %w", err)
		}
	}

	return a.subscriptionResponse(ctx, email)
}

// ValidateRefresh checks that a refresh token hash is live and belongs to (email, device)
func (a *Local) ValidateRefresh(ctx context.Context, email, deviceID, refreshHash string) (bool, error) {
	if refreshHash == "" {
		return false, nil
	}

	record, err := a.store.GetRefreshToken(ctx, refreshHash)
	if err != nil {
		return false, fmt.Errorf("failed to get refresh token: %w", err)
	}
	if record == nil || record.IsRevoked() || record.IsExpired(a.now()) {
		return false, nil
	}
	if record.Email != strings.ToLower(email) || record.DeviceID != deviceID {
		return false, nil
	}

	binding, err := a.store.GetBindingByDevice(ctx, deviceID)
	if err != nil {
		return false, fmt.Errorf("failed to get device binding: %w", err)
	}

	return binding != nil && binding.Email == record.Email, nil
}

// ResetDevices removes every binding of an account and revokes its refresh tokens
func (a *Local) ResetDevices(ctx context.Context, email string) (int, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return 0, domain.ErrMissingFields
	}

	removed, err := a.store.DeleteBindings(ctx, email)
	if err != nil {
		return 0, fmt.Errorf("failed to delete bindings: %w", err)
	}
	if err := a.store.RevokeRefreshTokens(ctx, email, a.now()); err != nil {
		return 0, fmt.Errorf("failed to revoke refresh tokens: %w", err)
	}

	a.logger.Info("devices reset", zap.String("email", email), zap.Int("removed", removed))
	if a.notifier != nil {
		if err := a.notifier.DevicesReset(email, removed); err != nil {
			a.logger.Warn("failed to notify device reset", zap.Error(err))
		}
	}

	return removed, nil
}

// BlockDevice blocks a device explicitly; it stays blocked across resets
func (a *Local) BlockDevice(ctx context.Context, deviceID, reason string) error {
	if deviceID == "" {
		return domain.ErrMissingFields
	}
	return a.store.BlockDevice(ctx, deviceID, reason)
}

// PurgeExpiredTokens deletes refresh tokens past their expiry
func (a *Local) PurgeExpiredTokens(ctx context.Context) (int, error) {
	return a.store.PurgeExpiredRefreshTokens(ctx, a.now())
}

// accountFull reports whether binding deviceID would exceed the device limit
func (a *Local) accountFull(ctx context.Context, email, deviceID string) (bool, error) {
	bindings, err := a.store.ListBindings(ctx, email)
	if err != nil {
		return false, fmt.Errorf("failed to list bindings: %w", err)
	}
	for _, b := range bindings {
		if b.DeviceID == deviceID {
			return false, nil
		}
	}
	return len(bindings) >= a.policy.MaxDevices, nil
}

func (a *Local) ensureSubscription(ctx context.Context, email string, now time.Time) error {
	sub, err := a.store.GetSubscription(ctx, email)
	if err != nil {
		return fmt.Errorf("failed to get subscription: %w", err)
	}
	if sub != nil {
		return nil
	}

	trial := &domain.Subscription{
		Email:     email,
		Plan:      domain.PlanFree,
		ExpiresAt: now.AddDate(0, 0, a.policy.TrialDays),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := a.store.SaveSubscription(ctx, trial); err != nil {
		return fmt.Errorf("failed to create trial subscription: %w", err)
	}

	a.logger.Info("trial started", zap.String("email", email), zap.Time("expires_at", trial.ExpiresAt))
	return nil
}

func (a *Local) subscriptionResponse(ctx context.Context, email string) (*domain.AccessResponse, error) {
	sub, err := a.store.GetSubscription(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	if sub == nil {
		return &domain.AccessResponse{}, nil
	}

	plan := sub.Plan
	expiry := domain.FlexibleTime{Time: sub.ExpiresAt.UTC()}
	return &domain.AccessResponse{
		Active: sub.IsActive(a.now()),
		Plan:   &plan,
		Expiry: &expiry,
	}, nil
}
