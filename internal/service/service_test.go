package service

import (
	"context"
	"errors"
	"sync"

	"fxhedz/internal/domain"
)

type stubVerifier struct {
	email string
	err   error
}

func (v stubVerifier) Verify(_ context.Context, idToken string) (string, error) {
	if v.err != nil {
		return "", v.err
	}
	if idToken == "" {
		return "", domain.ErrMissingFields
	}
	return v.email, nil
}

type stubIssuer struct{}

func (stubIssuer) Generate(email, deviceID string) (string, error) {
	return "access:" + email + ":" + deviceID, nil
}

// stubAuthority answers every call from fixed values
type stubAuthority struct {
	mu       sync.Mutex
	resp     *domain.AccessResponse
	byEmail  *domain.AccessResponse
	err      error
	valid    bool
	removed  int
	calls    int
	lastReg  domain.DeviceRegistration
}

func (a *stubAuthority) CheckAccess(_ context.Context, q domain.AccessQuery) (*domain.AccessResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	if a.err != nil {
		return nil, a.err
	}
	if q.DeviceID == "" && a.byEmail != nil {
		return a.byEmail, nil
	}
	return a.resp, nil
}

func (a *stubAuthority) RegisterDevice(_ context.Context, reg domain.DeviceRegistration) (*domain.AccessResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	a.lastReg = reg
	if a.err != nil {
		return nil, a.err
	}
	return a.resp, nil
}

func (a *stubAuthority) ValidateRefresh(context.Context, string, string, string) (bool, error) {
	if a.err != nil {
		return false, a.err
	}
	return a.valid, nil
}

func (a *stubAuthority) ResetDevices(context.Context, string) (int, error) {
	if a.err != nil {
		return 0, a.err
	}
	return a.removed, nil
}

var errUpstream = errors.New("upstream down")
