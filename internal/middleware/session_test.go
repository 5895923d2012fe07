package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withCookies(rec *httptest.ResponseRecorder) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, ck := range rec.Result().Cookies() {
		req.AddCookie(ck)
	}
	return req
}

func TestSessionManager_Lifecycle(t *testing.T) {
	m := NewSessionManager(testKeys(t), true)

	rec := httptest.NewRecorder()
	require.NoError(t, m.SetState(rec, httptest.NewRequest(http.MethodGet, "/", nil), "state-123"))
	assert.Equal(t, "state-123", m.State(withCookies(rec)))

	cookie := rec.Result().Cookies()[0]
	assert.Equal(t, sessionName, cookie.Name)
	assert.True(t, cookie.HttpOnly)
	assert.True(t, cookie.Secure)

	rec2 := httptest.NewRecorder()
	require.NoError(t, m.SetEmail(rec2, withCookies(rec), "a@b.c"))
	req := withCookies(rec2)
	assert.Equal(t, "a@b.c", m.Email(req))
	assert.Empty(t, m.State(req))

	rec3 := httptest.NewRecorder()
	require.NoError(t, m.Clear(rec3, req))
	cleared := rec3.Result().Cookies()
	require.NotEmpty(t, cleared)
	assert.True(t, cleared[0].MaxAge < 0)
}

func TestSessionManager_TamperedCookie(t *testing.T) {
	m := NewSessionManager(testKeys(t), false)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: sessionName, Value: "forged"})
	assert.Empty(t, m.Email(req))
}

func TestRequestDeviceID(t *testing.T) {
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/?fingerprint=abc", nil)
	req.Header.Set(DeviceHeader, "from-header")
	c := e.NewContext(req, httptest.NewRecorder())
	assert.Equal(t, "from-header", RequestDeviceID(c))
	assert.Equal(t, "abc", RequestFingerprint(c))

	req.AddCookie(&http.Cookie{Name: DeviceCookie, Value: "from-cookie"})
	req.AddCookie(&http.Cookie{Name: FingerprintCookie, Value: "fp-cookie"})
	c = e.NewContext(req, httptest.NewRecorder())
	assert.Equal(t, "from-cookie", RequestDeviceID(c))

	bare := httptest.NewRequest(http.MethodGet, "/", nil)
	bare.AddCookie(&http.Cookie{Name: FingerprintCookie, Value: "fp-cookie"})
	c = e.NewContext(bare, httptest.NewRecorder())
	assert.Empty(t, RequestDeviceID(c))
	assert.Equal(t, "fp-cookie", RequestFingerprint(c))
}
