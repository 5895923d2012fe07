package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"fxhedz/internal/domain"
	"fxhedz/internal/logger"
	"fxhedz/internal/metrics"
)

// AccessService resolves access states against the authority
type AccessService struct {
	authority domain.Authority
	metrics   *metrics.Registry
	logger    *zap.Logger
}

// NewAccessService creates a new AccessService; metrics may be nil
func NewAccessService(authority domain.Authority, m *metrics.Registry, log *zap.Logger) *AccessService {
	return &AccessService{
		authority: authority,
		metrics:   m,
		logger:    log.Named("access"),
	}
}

// Check resolves the access state of a device; it never fails, failures resolve closed
func (s *AccessService) Check(ctx context.Context, q domain.AccessQuery) domain.AccessStatus {
	var (
		resp *domain.AccessResponse
		err  error
	)
	if strings.TrimSpace(q.DeviceID) != "" {
		resp, err = s.authority.CheckAccess(ctx, q)
		if err != nil {
			s.logger.Warn("access check failed",
				zap.String("device_id", logger.ShortID(q.DeviceID)),
				zap.Error(err),
			)
		}
	}

	status := domain.ResolveAccessState(q.DeviceID, resp, err)
	if s.metrics != nil {
		s.metrics.RecordAccessCheck(status.State.String())
	}
	return status
}

// RequireActive returns nil only when the device, and the signed-in email if any, are active
func (s *AccessService) RequireActive(ctx context.Context, deviceID, fingerprint, email string) error {
	if strings.TrimSpace(deviceID) == "" {
		return domain.ErrNoDevice
	}

	status := s.Check(ctx, domain.AccessQuery{DeviceID: deviceID, Fingerprint: fingerprint})
	if err := statusError(status); err != nil {
		return err
	}

	if email == "" {
		return nil
	}

	resp, err := s.authority.CheckAccess(ctx, domain.AccessQuery{Email: email})
	if err != nil {
		s.logger.Warn("email access check failed", zap.String("email", email), zap.Error(err))
		return domain.WrapError(domain.ErrSubscriptionInactive, err)
	}
	if resp.Blocked {
		return domain.ErrDeviceBlocked
	}
	if !resp.Active {
		return domain.ErrSubscriptionInactive
	}

	return nil
}

func statusError(status domain.AccessStatus) error {
	switch status.State {
	case domain.AccessActive:
		return nil
	case domain.AccessBlocked:
		if status.Reason == domain.ReasonDeviceLimitExceeded {
			return domain.ErrDeviceLimitExceeded
		}
		return domain.ErrDeviceBlocked
	case domain.AccessAnonymous:
		return domain.ErrNoDevice
	default:
		return domain.ErrSubscriptionInactive
	}
}

// RegisterWebDevice syncs a web sign-in to the authority; failures are logged and never block login
func (s *AccessService) RegisterWebDevice(ctx context.Context, reg domain.DeviceRegistration) {
	if reg.DeviceID == "" {
		s.logger.Debug("web sign-in without device cookie", zap.String("email", reg.Email))
		return
	}
	if reg.Platform != domain.PlatformTelegram {
		reg.TelegramChatID = ""
	}

	resp, err := s.authority.RegisterDevice(ctx, reg)
	if err != nil {
		s.logger.Warn("web sign-in sync failed", zap.String("email", reg.Email), zap.Error(err))
		return
	}
	if resp.Blocked {
		s.logger.Info("web sign-in device refused",
			zap.String("email", reg.Email),
			zap.String("device_id", logger.ShortID(reg.DeviceID)),
			zap.String("reason", resp.Reason),
		)
	}
}
