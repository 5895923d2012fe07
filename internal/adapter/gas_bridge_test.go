package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fxhedz/internal/domain"
)

func newTestBridge(t *testing.T, handler http.HandlerFunc) *GASBridge {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewGASBridge(srv.URL+"/auth", srv.URL+"/signals", "s3cret", 2*time.Second, zap.NewNop())
}

func TestGASBridge_CheckAccess(t *testing.T) {
	bridge := newTestBridge(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/auth", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "s3cret", q.Get("secret"))
		assert.Equal(t, "dev-1", q.Get("device_id"))
		assert.Equal(t, "fp+1", q.Get("fingerprint"))
		_, _ = w.Write([]byte(`{"active":true,"blocked":false,"plan":"pro","expiry":"2030-01-01T00:00:00Z"}`))
	})

	resp, err := bridge.CheckAccess(context.Background(), domain.AccessQuery{DeviceID: "dev-1", Fingerprint: "fp+1"})
	require.NoError(t, err)
	assert.True(t, resp.Active)
	require.NotNil(t, resp.Plan)
	assert.Equal(t, "pro", *resp.Plan)
	require.NotNil(t, resp.Expiry)
	assert.Equal(t, 2030, resp.Expiry.Year())
}

func TestGASBridge_CheckAccess_Unavailable(t *testing.T) {
	bridge := newTestBridge(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	})

	_, err := bridge.CheckAccess(context.Background(), domain.AccessQuery{DeviceID: "dev-1"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrAuthorityUnavailable))
}

func TestGASBridge_RegisterDevice(t *testing.T) {
	bridge := newTestBridge(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "user@example.com", body["email"])
		assert.Equal(t, "dev-2", body["device_id"])
		assert.Equal(t, "android", body["platform"])
		assert.Equal(t, "abc", body["refresh_token_hash"])
		assert.NotContains(t, body, "telegram_chat_id")

		_, _ = w.Write([]byte(`{"active":false,"blocked":true,"reason":"device_limit_exceeded"}`))
	})

	resp, err := bridge.RegisterDevice(context.Background(), domain.DeviceRegistration{
		Email:            "User@Example.com",
		DeviceID:         "dev-2",
		Fingerprint:      "dev-2",
		Platform:         domain.PlatformAndroid,
		RefreshTokenHash: "abc",
	})
	require.NoError(t, err)
	assert.True(t, resp.DeviceLimitExceeded())
}

func TestGASBridge_ValidateRefresh(t *testing.T) {
	bridge := newTestBridge(t, func(w http.ResponseWriter, r *http.Request) {
		var body refreshValidateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.True(t, body.RefreshValidate)
		valid := body.RefreshTokenHash == "good"
		_ = json.NewEncoder(w).Encode(map[string]bool{"valid": valid})
	})

	ok, err := bridge.ValidateRefresh(context.Background(), "a@b.c", "dev-1", "good")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = bridge.ValidateRefresh(context.Background(), "a@b.c", "dev-1", "bad")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGASBridge_ResetDevices(t *testing.T) {
	bridge := newTestBridge(t, func(w http.ResponseWriter, r *http.Request) {
		var body resetDevicesRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.True(t, body.ResetDevices)
		if body.Email == "gone@example.com" {
			_, _ = w.Write([]byte(`{"success":false,"error":"unknown_email"}`))
			return
		}
		_, _ = w.Write([]byte(`{"success":true,"removed":2}`))
	})

	removed, err := bridge.ResetDevices(context.Background(), "user@example.com")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	_, err = bridge.ResetDevices(context.Background(), "gone@example.com")
	assert.True(t, errors.Is(err, domain.ErrAuthorityUnavailable))
}

func TestGASBridge_FetchSignals(t *testing.T) {
	bridge := newTestBridge(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/signals", r.URL.Path)
		if r.URL.Query().Get("pair") == "XAUUSD" {
			_, _ = w.Write([]byte(`{"direction":"BUY"}`))
			return
		}
		if r.URL.Query().Get("pair") == "BROKEN" {
			_, _ = w.Write([]byte(`<html>`))
			return
		}
		_, _ = w.Write([]byte(`{"XAUUSD":{"direction":"BUY"}}`))
	})

	body, err := bridge.FetchSignals(context.Background(), domain.SignalQuery{DeviceID: "dev-1"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"XAUUSD":{"direction":"BUY"}}`, string(body))

	body, err = bridge.FetchSignals(context.Background(), domain.SignalQuery{DeviceID: "dev-1", Pair: "xauusd"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"direction":"BUY"}`, string(body))

	_, err = bridge.FetchSignals(context.Background(), domain.SignalQuery{Pair: "BROKEN"})
	assert.True(t, errors.Is(err, domain.ErrSignalFetchFailed))
}
