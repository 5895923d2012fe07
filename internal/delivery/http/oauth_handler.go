package http

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"fxhedz/internal/delivery/http/dto"
	"fxhedz/internal/domain"
	"fxhedz/internal/middleware"
	"fxhedz/internal/service"
)

// NewGoogleOAuthConfig builds the web login client; the callback lives under publicURL
func NewGoogleOAuthConfig(clientID, clientSecret, publicURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  strings.TrimRight(publicURL, "/") + "/api/auth/callback",
		Scopes:       []string{"openid", "email", "profile"},
		Endpoint:     google.Endpoint,
	}
}

// OAuthHandler handles the browser OAuth login flow
type OAuthHandler struct {
	oauth    *oauth2.Config
	verifier domain.IdentityVerifier
	access   *service.AccessService
	sessions *middleware.SessionManager
	logger   *zap.Logger
}

// NewOAuthHandler creates a new OAuthHandler
func NewOAuthHandler(
	oauth *oauth2.Config,
	verifier domain.IdentityVerifier,
	access *service.AccessService,
	sessions *middleware.SessionManager,
	log *zap.Logger,
) *OAuthHandler {
	return &OAuthHandler{
		oauth:    oauth,
		verifier: verifier,
		access:   access,
		sessions: sessions,
		logger:   log.Named("oauth_handler"),
	}
}

// SignIn redirects to the provider consent page
// GET /api/auth/signin
func (h *OAuthHandler) SignIn(c echo.Context) error {
	state := uuid.NewString()
	if err := h.sessions.SetState(c.Response(), c.Request(), state); err != nil {
		return InternalServerErrorResponse(c, "Failed to start sign-in", nil)
	}

	return c.Redirect(http.StatusFound, h.oauth.AuthCodeURL(state, oauth2.AccessTypeOnline))
}

// Callback completes the provider login, opens the web session and syncs the device
// GET /api/auth/callback
func (h *OAuthHandler) Callback(c echo.Context) error {
	if providerErr := c.QueryParam("error"); providerErr != "" {
		return c.Redirect(http.StatusFound, "/?error="+url.QueryEscape(providerErr))
	}

	state := c.QueryParam("state")
	if state == "" || state != h.sessions.State(c.Request()) {
		return BadRequestResponse(c, "Invalid OAuth state")
	}

	code := c.QueryParam("code")
	if code == "" {
		return BadRequestResponse(c, "Missing authorization code")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 20*time.Second)
	defer cancel()

	token, err := h.oauth.Exchange(ctx, code)
	if err != nil {
		h.logger.Warn("code exchange failed", zap.Error(err))
		return UnauthorizedResponse(c, "Sign-in failed")
	}

	idToken, _ := token.Extra("id_token").(string)
	email, err := h.verifier.Verify(ctx, idToken)
	if err != nil {
		h.logger.Warn("id token rejected", zap.Error(err))
		return UnauthorizedResponse(c, "Sign-in failed")
	}

	if err := h.sessions.SetEmail(c.Response(), c.Request(), email); err != nil {
		return InternalServerErrorResponse(c, "Failed to save session", nil)
	}

	platform := domain.ParsePlatform(middleware.CookieValue(c, middleware.PlatformCookie))
	h.access.RegisterWebDevice(ctx, domain.DeviceRegistration{
		Email:          email,
		DeviceID:       middleware.RequestDeviceID(c),
		Fingerprint:    middleware.CookieValue(c, middleware.FingerprintCookie),
		Platform:       platform,
		TelegramChatID: middleware.CookieValue(c, middleware.TelegramCookie),
	})

	h.logger.Info("web sign-in", zap.String("email", email), zap.String("platform", string(platform)))
	return c.Redirect(http.StatusFound, "/")
}

// SignOut ends the web session
// POST /api/auth/signout
func (h *OAuthHandler) SignOut(c echo.Context) error {
	if err := h.sessions.Clear(c.Response(), c.Request()); err != nil {
		return InternalServerErrorResponse(c, "Failed to clear session", nil)
	}
	return SuccessMessageResponse(c, "Signed out", nil)
}

// Session reports the authenticated caller, if any
// GET /api/auth/session
func (h *OAuthHandler) Session(c echo.Context) error {
	email, err := middleware.GetEmail(c)
	if err != nil {
		return c.JSON(http.StatusOK, dto.SessionResponse{})
	}
	return c.JSON(http.StatusOK, dto.SessionResponse{
		Authenticated: true,
		Email:         email,
		Method:        middleware.GetAuthMethod(c),
	})
}
