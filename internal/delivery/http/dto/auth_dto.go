package dto

// NativeAuthRequest exchanges a provider identity token for a token pair
type NativeAuthRequest struct {
	IDToken        string `json:"idToken"`
	DeviceID       string `json:"deviceId"`
	Fingerprint    string `json:"fingerprint,omitempty"`
	Platform       string `json:"platform,omitempty"`
	TelegramChatID string `json:"telegramChatId,omitempty"`
}

// RefreshRequest renews an access token
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
	DeviceID     string `json:"deviceId"`
	Email        string `json:"email"`
}

// RefreshResponse carries the renewed access token
type RefreshResponse struct {
	AccessToken string `json:"accessToken"`
}

// ResetDevicesResponse reports a device reset
type ResetDevicesResponse struct {
	Success bool `json:"success"`
	Removed int  `json:"removed"`
}

// SessionResponse describes the current web session
type SessionResponse struct {
	Authenticated bool   `json:"authenticated"`
	Email         string `json:"email,omitempty"`
	Method        string `json:"method,omitempty"`
}
