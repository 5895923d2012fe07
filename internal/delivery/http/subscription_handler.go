package http

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"fxhedz/internal/delivery/http/dto"
	"fxhedz/internal/domain"
	"fxhedz/internal/middleware"
	"fxhedz/internal/service"
)

// SubscriptionHandler reports the access state of the calling device
type SubscriptionHandler struct {
	access *service.AccessService
}

// NewSubscriptionHandler creates a new SubscriptionHandler
func NewSubscriptionHandler(access *service.AccessService) *SubscriptionHandler {
	return &SubscriptionHandler{access: access}
}

// GetSubscription resolves the device's access state; failures resolve closed, never as errors
// GET /api/subscription
func (h *SubscriptionHandler) GetSubscription(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 15*time.Second)
	defer cancel()

	email, _ := middleware.GetEmail(c)
	status := h.access.Check(ctx, domain.AccessQuery{
		DeviceID:    middleware.GetDeviceID(c),
		Fingerprint: middleware.RequestFingerprint(c),
		Email:       email,
	})

	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return c.JSON(http.StatusOK, dto.NewSubscriptionResponse(status))
}
