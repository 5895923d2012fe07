package domain

import "context"

// Authority is the external subscription authority every access decision defers to
type Authority interface {
	// CheckAccess answers whether a device (and optionally an email) may see gated content
	CheckAccess(ctx context.Context, q AccessQuery) (*AccessResponse, error)

	// RegisterDevice binds a device to an account and returns the resulting access
	RegisterDevice(ctx context.Context, reg DeviceRegistration) (*AccessResponse, error)

	// ValidateRefresh checks a refresh token hash for (email, device)
	ValidateRefresh(ctx context.Context, email, deviceID, refreshHash string) (bool, error)

	// ResetDevices revokes all device bindings of an account and reports how many were removed
	ResetDevices(ctx context.Context, email string) (int, error)
}

// SignalQuery identifies the caller and optional instrument of a signal fetch
type SignalQuery struct {
	DeviceID    string
	Fingerprint string
	Pair        string
}

// SignalSource returns raw signal payloads from the external authority
type SignalSource interface {
	// FetchSignals returns the global snapshot payload, or a single pair's detail payload when q.Pair is set
	FetchSignals(ctx context.Context, q SignalQuery) ([]byte, error)
}

// IdentityVerifier validates provider identity tokens and returns the verified email
type IdentityVerifier interface {
	Verify(ctx context.Context, idToken string) (string, error)
}

// SecurityNotifier reports account security events to operators
type SecurityNotifier interface {
	DeviceLimitExceeded(email, deviceID string, platform Platform) error
	DevicesReset(email string, removed int) error
}
