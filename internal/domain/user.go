package domain

import (
	"time"
)

// Platform identifies the shell a device runs in
type Platform string

// Platform constants
const (
	PlatformWeb      Platform = "web"
	PlatformAndroid  Platform = "android"
	PlatformTelegram Platform = "telegram"
)

// ParsePlatform falls back to web for unknown values
func ParsePlatform(s string) Platform {
	switch Platform(s) {
	case PlatformAndroid:
		return PlatformAndroid
	case PlatformTelegram:
		return PlatformTelegram
	default:
		return PlatformWeb
	}
}

// Plan constants
const (
	PlanFree = "free"
	PlanPro  = "pro"
)

// Subscription is the account-level entitlement
type Subscription struct {
	Email     string    `json:"email"`
	Plan      string    `json:"plan"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsActive reports whether the subscription is valid at the given instant
func (s *Subscription) IsActive(now time.Time) bool {
	return s != nil && now.Before(s.ExpiresAt)
}

// DeviceBinding ties one device installation to an account
type DeviceBinding struct {
	Email          string    `json:"email"`
	DeviceID       string    `json:"device_id"`
	Fingerprint    string    `json:"fingerprint"`
	Platform       Platform  `json:"platform"`
	TelegramChatID string    `json:"telegram_chat_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	LastSeenAt     time.Time `json:"last_seen_at"`
}

// RefreshTokenRecord is a stored refresh token; only the hash is ever persisted
type RefreshTokenRecord struct {
	Email     string     `json:"email"`
	DeviceID  string     `json:"device_id"`
	TokenHash string     `json:"-"`
	ExpiresAt time.Time  `json:"expires_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// IsExpired checks if the refresh token has expired
func (t *RefreshTokenRecord) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// IsRevoked checks if the refresh token has been revoked
func (t *RefreshTokenRecord) IsRevoked() bool {
	return t.RevokedAt != nil
}

// DeviceRegistration is sent to the authority when an account signs in from a device
type DeviceRegistration struct {
	Email            string     `json:"email"`
	DeviceID         string     `json:"device_id"`
	Fingerprint      string     `json:"fingerprint"`
	Platform         Platform   `json:"platform"`
	TelegramChatID   string     `json:"telegram_chat_id,omitempty"`
	RefreshTokenHash string     `json:"refresh_token_hash,omitempty"`
	RefreshExpires   *time.Time `json:"refresh_expires,omitempty"`
}

// TokenPair is issued to native clients
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	Email        string `json:"email"`
}
