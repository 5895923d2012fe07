package domain

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestResolveAccessState_MissingDevice(t *testing.T) {
	responses := []*AccessResponse{
		nil,
		{Active: true},
		{Active: true, Blocked: true},
		{Active: false, Blocked: false},
	}

	for _, deviceID := range []string{"", "   ", "\t\n"} {
		for _, resp := range responses {
			status := ResolveAccessState(deviceID, resp, nil)
			assert.Equal(t, AccessAnonymous, status.State, "device %q must resolve to ANONYMOUS", deviceID)
		}
	}
}

func TestResolveAccessState_BlockedTakesPrecedence(t *testing.T) {
	for _, active := range []bool{true, false} {
		status := ResolveAccessState("dev-1", &AccessResponse{Active: active, Blocked: true, Reason: ReasonDeviceLimitExceeded}, nil)
		assert.Equal(t, AccessBlocked, status.State)
		assert.Equal(t, ReasonDeviceLimitExceeded, status.Reason)
	}
}

func TestResolveAccessState_ActiveAndExpired(t *testing.T) {
	status := ResolveAccessState("dev-1", &AccessResponse{Active: true, Plan: strPtr(PlanPro)}, nil)
	assert.Equal(t, AccessActive, status.State)
	assert.Equal(t, PlanPro, status.Plan)

	var resp AccessResponse
	require.NoError(t, json.Unmarshal([]byte(`{"active":false,"blocked":false,"plan":"free","expiry":"2024-01-01"}`), &resp))

	status = ResolveAccessState("dev-1", &resp, nil)
	assert.Equal(t, AccessExpired, status.State)
	assert.Equal(t, PlanFree, status.Plan)
	require.NotNil(t, status.Expiry)
	assert.Equal(t, "2024-01-01", status.Expiry.Format("2006-01-02"))
}

func TestResolveAccessState_FailsClosed(t *testing.T) {
	status := ResolveAccessState("dev-1", nil, errors.New("connection refused"))
	assert.Equal(t, AccessExpired, status.State)
	assert.Equal(t, ReasonVerificationFailed, status.Reason)

	status = ResolveAccessState("dev-1", &AccessResponse{Active: true}, errors.New("decode failed"))
	assert.NotEqual(t, AccessActive, status.State)
}

func TestAccessState_JSON(t *testing.T) {
	b, err := json.Marshal(AccessBlocked)
	require.NoError(t, err)
	assert.Equal(t, `"BLOCKED"`, string(b))

	var s AccessState
	require.NoError(t, json.Unmarshal([]byte(`"expired"`), &s))
	assert.Equal(t, AccessExpired, s)

	require.NoError(t, json.Unmarshal([]byte(`"whatever"`), &s))
	assert.Equal(t, AccessUnknown, s)
}

func TestAccessResponse_DeviceLimitExceeded(t *testing.T) {
	assert.True(t, (&AccessResponse{Blocked: true, Reason: ReasonDeviceLimitExceeded}).DeviceLimitExceeded())
	assert.False(t, (&AccessResponse{Blocked: true, Reason: ReasonDeviceBlocked}).DeviceLimitExceeded())
	assert.False(t, (*AccessResponse)(nil).DeviceLimitExceeded())
}

func TestError_IsMatchesByCode(t *testing.T) {
	err := WrapError(ErrInvalidRefreshToken, errors.New("expired"))
	assert.True(t, errors.Is(err, ErrInvalidRefreshToken))
	assert.False(t, errors.Is(err, ErrUnauthorized))
	assert.Contains(t, err.Error(), "INVALID_REFRESH_TOKEN")
}
