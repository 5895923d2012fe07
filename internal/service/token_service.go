package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"fxhedz/internal/domain"
	"fxhedz/internal/logger"
	"fxhedz/internal/metrics"
)

// AccessTokenIssuer signs access tokens bound to (email, device)
type AccessTokenIssuer interface {
	Generate(email, deviceID string) (string, error)
}

// ExchangeRequest is a native sign-in
type ExchangeRequest struct {
	IDToken        string
	DeviceID       string
	Fingerprint    string
	Platform       domain.Platform
	TelegramChatID string
}

// TokenService issues and renews native client tokens
type TokenService struct {
	verifier   domain.IdentityVerifier
	authority  domain.Authority
	issuer     AccessTokenIssuer
	refreshTTL time.Duration
	metrics    *metrics.Registry
	logger     *zap.Logger
	now        func() time.Time
}

// NewTokenService creates a new TokenService
func NewTokenService(
	verifier domain.IdentityVerifier,
	authority domain.Authority,
	issuer AccessTokenIssuer,
	refreshTTL time.Duration,
	m *metrics.Registry,
	log *zap.Logger,
) *TokenService {
	return &TokenService{
		verifier:   verifier,
		authority:  authority,
		issuer:     issuer,
		refreshTTL: refreshTTL,
		metrics:    m,
		logger:     log.Named("tokens"),
		now:        time.Now,
	}
}

// HashRefreshToken returns the hex SHA-256 under which a refresh token is stored
func HashRefreshToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func newRefreshToken() (string, error) {
	b := make([]byte, 64)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate refresh token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Exchange verifies a provider identity token, registers the device and issues a token pair
func (s *TokenService) Exchange(ctx context.Context, req ExchangeRequest) (*domain.TokenPair, error) {
	if req.IDToken == "" || strings.TrimSpace(req.DeviceID) == "" {
		return nil, domain.ErrMissingFields
	}

	email, err := s.verifier.Verify(ctx, req.IDToken)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidIdentityToken) {
			return nil, err
		}
		return nil, domain.WrapError(domain.ErrInvalidIdentityToken, err)
	}

	refreshToken, err := newRefreshToken()
	if err != nil {
		return nil, err
	}
	expires := s.now().Add(s.refreshTTL)

	platform := req.Platform
	if platform == "" {
		platform = domain.PlatformAndroid
	}
	fingerprint := req.Fingerprint
	if fingerprint == "" {
		fingerprint = req.DeviceID
	}

	resp, err := s.authority.RegisterDevice(ctx, domain.DeviceRegistration{
		Email:            email,
		DeviceID:         req.DeviceID,
		Fingerprint:      fingerprint,
		Platform:         platform,
		TelegramChatID:   req.TelegramChatID,
		RefreshTokenHash: HashRefreshToken(refreshToken),
		RefreshExpires:   &expires,
	})
	if err != nil {
		return nil, domain.WrapError(domain.ErrAuthorityUnavailable, err)
	}

	if resp.Blocked {
		s.logger.Info("native sign-in refused",
			zap.String("email", email),
			zap.String("device_id", logger.ShortID(req.DeviceID)),
			zap.String("reason", resp.Reason),
		)
		if resp.DeviceLimitExceeded() {
			return nil, domain.ErrDeviceLimitExceeded
		}
		return nil, domain.ErrDeviceBlocked
	}
	if !resp.Active {
		return nil, domain.ErrSubscriptionInactive
	}

	accessToken, err := s.issuer.Generate(email, req.DeviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordTokenIssued("access")
		s.metrics.RecordTokenIssued("refresh")
	}

	return &domain.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		Email:        email,
	}, nil
}

// Refresh issues a new access token for a valid refresh token
func (s *TokenService) Refresh(ctx context.Context, refreshToken, deviceID, email string) (string, error) {
	if refreshToken == "" || deviceID == "" || email == "" {
		return "", domain.ErrMissingFields
	}
	email = strings.ToLower(email)

	valid, err := s.authority.ValidateRefresh(ctx, email, deviceID, HashRefreshToken(refreshToken))
	if err != nil {
		s.recordRefresh("error")
		return "", domain.WrapError(domain.ErrInvalidRefreshToken, err)
	}
	if !valid {
		s.recordRefresh("invalid")
		return "", domain.ErrInvalidRefreshToken
	}

	accessToken, err := s.issuer.Generate(email, deviceID)
	if err != nil {
		s.recordRefresh("error")
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}

	s.recordRefresh("ok")
	if s.metrics != nil {
		s.metrics.RecordTokenIssued("access")
	}
	return accessToken, nil
}

// ResetDevices revokes all device bindings of an account
func (s *TokenService) ResetDevices(ctx context.Context, email string) (int, error) {
	if email == "" {
		return 0, domain.ErrUnauthorized
	}

	removed, err := s.authority.ResetDevices(ctx, email)
	if err != nil {
		return 0, domain.WrapError(domain.ErrAuthorityUnavailable, err)
	}

	if s.metrics != nil {
		s.metrics.RecordDeviceReset()
	}
	s.logger.Info("devices reset", zap.String("email", email), zap.Int("removed", removed))
	return removed, nil
}

func (s *TokenService) recordRefresh(result string) {
	if s.metrics != nil {
		s.metrics.RecordRefresh(result)
	}
}
