package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// AccessState is the single source of truth for whether gated content may be shown
type AccessState int

const (
	AccessUnknown AccessState = iota
	AccessAnonymous
	AccessActive
	AccessExpired
	AccessBlocked
)

var accessStateNames = map[AccessState]string{
	AccessUnknown:   "UNKNOWN",
	AccessAnonymous: "ANONYMOUS",
	AccessActive:    "ACTIVE",
	AccessExpired:   "EXPIRED",
	AccessBlocked:   "BLOCKED",
}

func (s AccessState) String() string {
	if name, ok := accessStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("AccessState(%d)", int(s))
}

// MarshalJSON encodes the state by name
func (s AccessState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a state name; unknown names decode to UNKNOWN
func (s *AccessState) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	*s = ParseAccessState(name)
	return nil
}

// ParseAccessState maps a state name to its value
func ParseAccessState(name string) AccessState {
	for state, n := range accessStateNames {
		if strings.EqualFold(n, name) {
			return state
		}
	}
	return AccessUnknown
}

// Reasons reported alongside non-active states
const (
	ReasonDeviceLimitExceeded = "device_limit_exceeded"
	ReasonDeviceBlocked       = "device_blocked"
	ReasonVerificationFailed  = "verification_failed"
	ReasonNoDevice            = "no_device"
)

// MaxDevicesPerAccount is the concurrent device policy observed on the authority
const MaxDevicesPerAccount = 2

// AccessQuery identifies the caller for an access check
type AccessQuery struct {
	DeviceID    string
	Fingerprint string
	Email       string
}

// AccessResponse is the authority's answer to an access check
type AccessResponse struct {
	Active  bool          `json:"active"`
	Blocked bool          `json:"blocked"`
	Plan    *string       `json:"plan"`
	Expiry  *FlexibleTime `json:"expiry"`
	Reason  string        `json:"reason,omitempty"`
}

// DeviceLimitExceeded reports whether the block was caused by the device policy
func (r *AccessResponse) DeviceLimitExceeded() bool {
	return r != nil && r.Blocked && r.Reason == ReasonDeviceLimitExceeded
}

// AccessStatus is an AccessState plus the metadata needed to render it
type AccessStatus struct {
	State  AccessState `json:"state"`
	Plan   string      `json:"plan,omitempty"`
	Expiry *time.Time  `json:"expiry,omitempty"`
	Reason string      `json:"reason,omitempty"`
}

// ResolveAccessState maps an authority response into exactly one AccessState.
// Blocked takes precedence over active, and any failure resolves to EXPIRED.
func ResolveAccessState(deviceID string, resp *AccessResponse, err error) AccessStatus {
	if strings.TrimSpace(deviceID) == "" {
		return AccessStatus{State: AccessAnonymous, Reason: ReasonNoDevice}
	}
	if err != nil || resp == nil {
		return AccessStatus{State: AccessExpired, Reason: ReasonVerificationFailed}
	}

	status := AccessStatus{Reason: resp.Reason}
	if resp.Plan != nil {
		status.Plan = *resp.Plan
	}
	if resp.Expiry != nil && !resp.Expiry.IsZero() {
		t := resp.Expiry.Time
		status.Expiry = &t
	}

	switch {
	case resp.Blocked:
		status.State = AccessBlocked
	case resp.Active:
		status.State = AccessActive
	default:
		status.State = AccessExpired
	}
	return status
}
