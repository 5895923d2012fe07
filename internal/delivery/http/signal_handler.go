package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"fxhedz/internal/domain"
	"fxhedz/internal/logger"
	"fxhedz/internal/middleware"
	"fxhedz/internal/service"
)

// SignalHandler serves gated signals, the signal stream and the public preview
type SignalHandler struct {
	access         *service.AccessService
	signals        *service.SignalService
	streamInterval time.Duration
	recheckEvery   time.Duration
	logger         *zap.Logger
}

// NewSignalHandler creates a new SignalHandler; open streams re-verify access every recheckEvery
func NewSignalHandler(access *service.AccessService, signals *service.SignalService, streamInterval, recheckEvery time.Duration, log *zap.Logger) *SignalHandler {
	if streamInterval <= 0 {
		streamInterval = 2500 * time.Millisecond
	}
	if recheckEvery <= 0 {
		recheckEvery = time.Minute
	}
	return &SignalHandler{
		access:         access,
		signals:        signals,
		streamInterval: streamInterval,
		recheckEvery:   recheckEvery,
		logger:         log.Named("signal_handler"),
	}
}

// GetSignals proxies the gated signal payload, or streams it when stream=1
// GET /api/signals
func (h *SignalHandler) GetSignals(c echo.Context) error {
	q := domain.SignalQuery{
		DeviceID:    middleware.GetDeviceID(c),
		Fingerprint: middleware.RequestFingerprint(c),
		Pair:        strings.ToUpper(strings.TrimSpace(c.QueryParam("pair"))),
	}

	// bearer tokens are already bound to an active device; only web sessions get the account check
	var email string
	if middleware.GetAuthMethod(c) == middleware.AuthMethodSession {
		email, _ = middleware.GetEmail(c)
	}

	if err := h.requireActive(c.Request().Context(), q, email); err != nil {
		return h.denied(c, q, err)
	}

	if c.QueryParam("stream") == "1" {
		return h.stream(c, q, email)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 20*time.Second)
	defer cancel()

	body, err := h.signals.Fetch(ctx, q)
	if err != nil {
		h.logger.Warn("signal fetch failed", zap.String("pair", q.Pair), zap.Error(err))
		return InternalServerErrorResponse(c, "Signal fetch failed", nil)
	}

	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return c.JSONBlob(http.StatusOK, body)
}

func (h *SignalHandler) requireActive(ctx context.Context, q domain.SignalQuery, email string) error {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	return h.access.RequireActive(ctx, q.DeviceID, q.Fingerprint, email)
}

func (h *SignalHandler) denied(c echo.Context, q domain.SignalQuery, err error) error {
	h.logger.Debug("signal access denied",
		zap.String("device_id", logger.ShortID(q.DeviceID)),
		zap.Error(err),
	)

	switch {
	case errors.Is(err, domain.ErrNoDevice):
		return DomainErrorResponse(c, "No device", err)
	case errors.Is(err, domain.ErrDeviceLimitExceeded):
		return DomainErrorResponse(c, "Device limit exceeded", err)
	case errors.Is(err, domain.ErrDeviceBlocked):
		return DomainErrorResponse(c, "Device blocked", err)
	default:
		return ErrorResponse(c, http.StatusForbidden, "Subscription required", errorCode(domain.ErrSubscriptionInactive))
	}
}

// stream writes Server-Sent Events until the client disconnects or access is lost
func (h *SignalHandler) stream(c echo.Context, q domain.SignalQuery, email string) error {
	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set(echo.HeaderCacheControl, "no-cache")
	res.Header().Set(echo.HeaderConnection, "keep-alive")
	res.Header().Set("X-Accel-Buffering", "no")
	res.WriteHeader(http.StatusOK)
	res.Flush()

	h.logger.Debug("stream opened", zap.String("device_id", logger.ShortID(q.DeviceID)), zap.String("pair", q.Pair))

	opts := service.StreamOptions{
		Interval:     h.streamInterval,
		RecheckEvery: h.recheckEvery,
		Recheck: func(ctx context.Context) error {
			return h.requireActive(ctx, q, email)
		},
	}
	err := h.signals.Stream(c.Request().Context(), q, opts, func(payload []byte) error {
		if _, err := fmt.Fprintf(res, "data: %s\n\n", payload); err != nil {
			return err
		}
		res.Flush()
		return nil
	})
	if err != nil {
		var coded *domain.Error
		if errors.As(err, &coded) {
			// tell the client why the stream ended
			fmt.Fprintf(res, "event: denied\ndata: {\"error\":%q}\n\n", coded.Code)
			res.Flush()
		}
		h.logger.Debug("stream closed",
			zap.String("device_id", logger.ShortID(q.DeviceID)),
			zap.Error(err),
		)
	}

	// The response is committed, so write errors are not reported back to echo
	return nil
}

// PublicPreview returns the ungated teaser
// GET /api/public-preview
func (h *SignalHandler) PublicPreview(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 15*time.Second)
	defer cancel()

	preview, err := h.signals.Preview(ctx)
	if err != nil {
		h.logger.Warn("preview unavailable", zap.Error(err))
		return InternalServerErrorResponse(c, "Preview unavailable", nil)
	}

	c.Response().Header().Set(echo.HeaderCacheControl, "public, max-age=10")
	return c.JSON(http.StatusOK, preview)
}
