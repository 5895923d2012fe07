package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fxhedz/internal/domain"
)

func testKeys(t *testing.T) *Keys {
	t.Helper()
	keys, err := DeriveKeys("test-secret-with-enough-entropy")
	require.NoError(t, err)
	return keys
}

func TestDeriveKeys(t *testing.T) {
	a := testKeys(t)
	b := testKeys(t)
	assert.Equal(t, a.AccessToken, b.AccessToken)
	assert.Len(t, a.AccessToken, 32)
	assert.Len(t, a.SessionAuth, 64)
	assert.Len(t, a.SessionCipher, 32)
	assert.NotEqual(t, a.AccessToken, a.SessionCipher)

	other, err := DeriveKeys("another-secret-entirely")
	require.NoError(t, err)
	assert.NotEqual(t, a.AccessToken, other.AccessToken)

	_, err = DeriveKeys("")
	assert.Error(t, err)
}

func TestTokenIssuer_RoundTrip(t *testing.T) {
	issuer := NewTokenIssuer(testKeys(t).AccessToken, 15*time.Minute)

	token, err := issuer.Generate("user@example.com", "dev-1")
	require.NoError(t, err)

	claims, err := issuer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", claims.Email)
	assert.Equal(t, "dev-1", claims.DeviceID)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), claims.ExpiresAt.Time, 5*time.Second)
}

func TestTokenIssuer_Rejects(t *testing.T) {
	keys := testKeys(t)
	issuer := NewTokenIssuer(keys.AccessToken, time.Minute)

	// expired
	issuer.now = func() time.Time { return time.Now().Add(-time.Hour) }
	stale, err := issuer.Generate("a@b.c", "dev")
	require.NoError(t, err)
	issuer.now = time.Now
	_, err = issuer.Parse(stale)
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))

	// wrong key
	foreign, err := NewTokenIssuer([]byte("some-other-signing-key-000000000"), time.Minute).Generate("a@b.c", "dev")
	require.NoError(t, err)
	_, err = issuer.Parse(foreign)
	assert.Error(t, err)

	_, err = issuer.Parse("garbage")
	assert.Error(t, err)
}

func runAuth(t *testing.T, mw echo.MiddlewareFunc, req *http.Request) (*httptest.ResponseRecorder, echo.Context, error) {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	err := mw(func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })(c)
	return rec, c, err
}

func statusOf(err error) int {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return 0
}

func TestAuthenticator_Bearer(t *testing.T) {
	keys := testKeys(t)
	issuer := NewTokenIssuer(keys.AccessToken, time.Minute)
	auth := NewAuthenticator(issuer, NewSessionManager(keys, false))

	token, err := issuer.Generate("user@example.com", "dev-1")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set(DeviceHeader, "dev-1")
	_, c, err := runAuth(t, auth.Required, req)
	require.NoError(t, err)

	email, err := GetEmail(c)
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", email)
	assert.Equal(t, "dev-1", GetDeviceID(c))
	assert.Equal(t, AuthMethodToken, GetAuthMethod(c))
}

func TestAuthenticator_DeviceMismatch(t *testing.T) {
	keys := testKeys(t)
	issuer := NewTokenIssuer(keys.AccessToken, time.Minute)
	auth := NewAuthenticator(issuer, nil)

	token, err := issuer.Generate("user@example.com", "dev-1")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.AddCookie(&http.Cookie{Name: DeviceCookie, Value: "dev-2"})
	_, _, err = runAuth(t, auth.Optional, req)
	assert.Equal(t, http.StatusUnauthorized, statusOf(err))
}

func TestAuthenticator_MissingAndInvalid(t *testing.T) {
	keys := testKeys(t)
	auth := NewAuthenticator(NewTokenIssuer(keys.AccessToken, time.Minute), NewSessionManager(keys, false))

	// Required without credentials
	_, _, err := runAuth(t, auth.Required, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, statusOf(err))

	// Optional without credentials passes through
	rec, c, err := runAuth(t, auth.Optional, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	_, err = GetEmail(c)
	assert.Error(t, err)

	// Optional with a bad token is still rejected
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer nope")
	_, _, err = runAuth(t, auth.Optional, req)
	assert.Equal(t, http.StatusUnauthorized, statusOf(err))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Token abc")
	_, _, err = runAuth(t, auth.Required, req)
	assert.Equal(t, http.StatusUnauthorized, statusOf(err))
}

func TestAuthenticator_SessionCookie(t *testing.T) {
	keys := testKeys(t)
	sessions := NewSessionManager(keys, false)
	auth := NewAuthenticator(NewTokenIssuer(keys.AccessToken, time.Minute), sessions)

	// sign in to obtain the cookie
	rec := httptest.NewRecorder()
	require.NoError(t, sessions.SetEmail(rec, httptest.NewRequest(http.MethodGet, "/", nil), "web@example.com"))
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	req.AddCookie(&http.Cookie{Name: DeviceCookie, Value: "browser-1"})

	_, c, err := runAuth(t, auth.Required, req)
	require.NoError(t, err)
	email, err := GetEmail(c)
	require.NoError(t, err)
	assert.Equal(t, "web@example.com", email)
	assert.Equal(t, AuthMethodSession, GetAuthMethod(c))
	assert.Equal(t, "browser-1", GetDeviceID(c))
}
