package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"
)

// Cookies and headers carrying the device context
const (
	DeviceCookie      = "fx_device"
	FingerprintCookie = "fx_fp"
	PlatformCookie    = "fx_platform"
	TelegramCookie    = "fx_tg_id"
	DeviceHeader      = "X-Device-ID"
)

// RequestDeviceID reads the device id from the fx_device cookie, falling back to X-Device-ID
func RequestDeviceID(c echo.Context) string {
	if cookie, err := c.Cookie(DeviceCookie); err == nil {
		if id := strings.TrimSpace(cookie.Value); id != "" {
			return id
		}
	}
	return strings.TrimSpace(c.Request().Header.Get(DeviceHeader))
}

// RequestFingerprint reads the fingerprint from the query string, falling back to the fx_fp cookie
func RequestFingerprint(c echo.Context) string {
	if fp := c.QueryParam("fingerprint"); fp != "" {
		return fp
	}
	if cookie, err := c.Cookie(FingerprintCookie); err == nil {
		return cookie.Value
	}
	return ""
}

// CookieValue returns a cookie's value or an empty string
func CookieValue(c echo.Context, name string) string {
	if cookie, err := c.Cookie(name); err == nil {
		return cookie.Value
	}
	return ""
}

// GetDeviceID returns the authenticated device id, or the request device id when unauthenticated
func GetDeviceID(c echo.Context) string {
	if id, ok := c.Get(ctxDeviceID).(string); ok && id != "" {
		return id
	}
	return RequestDeviceID(c)
}
