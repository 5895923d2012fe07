package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"fxhedz/internal/delivery/http/dto"
	"fxhedz/internal/domain"
	"fxhedz/internal/middleware"
	"fxhedz/internal/service"
)

// AuthHandler handles native token exchange, refresh and device reset
type AuthHandler struct {
	tokens   *service.TokenService
	sessions *middleware.SessionManager
	logger   *zap.Logger
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(tokens *service.TokenService, sessions *middleware.SessionManager, log *zap.Logger) *AuthHandler {
	return &AuthHandler{
		tokens:   tokens,
		sessions: sessions,
		logger:   log.Named("auth_handler"),
	}
}

// NativeAuth exchanges a provider identity token for a token pair
// POST /api/native-auth
func (h *AuthHandler) NativeAuth(c echo.Context) error {
	var req dto.NativeAuthRequest
	if err := c.Bind(&req); err != nil {
		return BadRequestResponse(c, "Invalid request payload")
	}

	if req.IDToken == "" || req.DeviceID == "" {
		return ErrorResponse(c, statusForError(domain.ErrMissingFields), "Missing fields", errorCode(domain.ErrMissingFields))
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 20*time.Second)
	defer cancel()

	platform := domain.PlatformAndroid
	if req.Platform != "" {
		platform = domain.ParsePlatform(req.Platform)
	}

	pair, err := h.tokens.Exchange(ctx, service.ExchangeRequest{
		IDToken:        req.IDToken,
		DeviceID:       req.DeviceID,
		Fingerprint:    req.Fingerprint,
		Platform:       platform,
		TelegramChatID: req.TelegramChatID,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrDeviceLimitExceeded), errors.Is(err, domain.ErrDeviceBlocked):
			return DomainErrorResponse(c, "Device blocked or limit exceeded", err)
		case errors.Is(err, domain.ErrSubscriptionInactive):
			return DomainErrorResponse(c, "Subscription inactive", err)
		case errors.Is(err, domain.ErrInvalidIdentityToken):
			return DomainErrorResponse(c, "Invalid Google token", err)
		default:
			h.logger.Warn("native auth failed", zap.Error(err))
			return DomainErrorResponse(c, "Auth failed", err)
		}
	}

	return c.JSON(http.StatusOK, pair)
}

// Refresh issues a new access token from a refresh token
// POST /api/refresh
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req dto.RefreshRequest
	if err := c.Bind(&req); err != nil {
		return BadRequestResponse(c, "Invalid request payload")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 15*time.Second)
	defer cancel()

	accessToken, err := h.tokens.Refresh(ctx, req.RefreshToken, req.DeviceID, req.Email)
	if err != nil {
		if errors.Is(err, domain.ErrMissingFields) {
			return DomainErrorResponse(c, "Missing fields", err)
		}
		h.logger.Debug("refresh rejected", zap.String("email", req.Email), zap.Error(err))
		// Every refresh failure requires re-authentication
		return UnauthorizedResponse(c, "Invalid refresh token")
	}

	return c.JSON(http.StatusOK, dto.RefreshResponse{AccessToken: accessToken})
}

// ResetDevices revokes all device bindings of the authenticated account and ends its web session
// POST /api/reset-devices
func (h *AuthHandler) ResetDevices(c echo.Context) error {
	email, err := middleware.GetEmail(c)
	if err != nil {
		return UnauthorizedResponse(c, "unauthorized")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 15*time.Second)
	defer cancel()

	removed, err := h.tokens.ResetDevices(ctx, email)
	if err != nil {
		h.logger.Error("device reset failed", zap.String("email", email), zap.Error(err))
		return DomainErrorResponse(c, "Device reset failed", err)
	}

	if h.sessions != nil && middleware.GetAuthMethod(c) == middleware.AuthMethodSession {
		if err := h.sessions.Clear(c.Response(), c.Request()); err != nil {
			h.logger.Warn("failed to clear session after reset", zap.Error(err))
		}
	}

	return c.JSON(http.StatusOK, dto.ResetDevicesResponse{Success: true, Removed: removed})
}
