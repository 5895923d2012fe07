package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"fxhedz/internal/domain"
	"fxhedz/internal/logger"
)

// GASBridge talks to the external subscription authority and signal script.
// It implements domain.Authority and domain.SignalSource.
type GASBridge struct {
	authURL    string
	signalURL  string
	secret     string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewGASBridge creates a new authority bridge
func NewGASBridge(authURL, signalURL, secret string, timeout time.Duration, log *zap.Logger) *GASBridge {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &GASBridge{
		authURL:   strings.TrimRight(authURL, "?"),
		signalURL: strings.TrimRight(signalURL, "?"),
		secret:    secret,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: log.Named("gas_bridge"),
	}
}

type refreshValidateRequest struct {
	RefreshValidate  bool   `json:"refresh_validate"`
	Email            string `json:"email"`
	DeviceID         string `json:"device_id"`
	RefreshTokenHash string `json:"refresh_token_hash"`
}

type resetDevicesRequest struct {
	Email        string `json:"email"`
	ResetDevices bool   `json:"reset_devices"`
}

type resetDevicesResponse struct {
	Success bool   `json:"success"`
	Removed int    `json:"removed"`
	Error   string `json:"error,omitempty"`
}

// CheckAccess asks the authority whether a device (or email) may see gated content
func (b *GASBridge) CheckAccess(ctx context.Context, q domain.AccessQuery) (*domain.AccessResponse, error) {
	params := url.Values{}
	if q.DeviceID != "" {
		params.Set("device_id", q.DeviceID)
		params.Set("fingerprint", q.Fingerprint)
	}
	if q.Email != "" {
		params.Set("email", strings.ToLower(q.Email))
	}

	var resp domain.AccessResponse
	if err := b.getJSON(ctx, b.authURL, params, &resp); err != nil {
		return nil, domain.WrapError(domain.ErrAuthorityUnavailable, err)
	}

	return &resp, nil
}

// RegisterDevice binds a device (and optionally a refresh token hash) to an account
func (b *GASBridge) RegisterDevice(ctx context.Context, reg domain.DeviceRegistration) (*domain.AccessResponse, error) {
	reg.Email = strings.ToLower(reg.Email)

	var resp domain.AccessResponse
	if err := b.postJSON(ctx, reg, &resp); err != nil {
		return nil, domain.WrapError(domain.ErrAuthorityUnavailable, err)
	}

	if resp.Blocked {
		b.logger.Warn("device registration refused",
			zap.String("email", reg.Email),
			zap.String("device_id", logger.ShortID(reg.DeviceID)),
			zap.String("reason", resp.Reason),
		)
	}

	return &resp, nil
}

// ValidateRefresh asks the authority whether a refresh token hash is valid for (email, device)
func (b *GASBridge) ValidateRefresh(ctx context.Context, email, deviceID, refreshHash string) (bool, error) {
	reqBody := refreshValidateRequest{
		RefreshValidate:  true,
		Email:            strings.ToLower(email),
		DeviceID:         deviceID,
		RefreshTokenHash: refreshHash,
	}

	var resp struct {
		Valid bool `json:"valid"`
	}
	if err := b.postJSON(ctx, reqBody, &resp); err != nil {
		return false, domain.WrapError(domain.ErrAuthorityUnavailable, err)
	}

	return resp.Valid, nil
}

// ResetDevices revokes every device binding of an account
func (b *GASBridge) ResetDevices(ctx context.Context, email string) (int, error) {
	reqBody := resetDevicesRequest{
		Email:        strings.ToLower(email),
		ResetDevices: true,
	}

	var resp resetDevicesResponse
	if err := b.postJSON(ctx, reqBody, &resp); err != nil {
		return 0, domain.WrapError(domain.ErrAuthorityUnavailable, err)
	}
	if !resp.Success {
		return 0, domain.WrapError(domain.ErrAuthorityUnavailable, fmt.Errorf("reset refused: %s", resp.Error))
	}

	return resp.Removed, nil
}

// FetchSignals returns the raw signal payload for all pairs, or a single pair's detail
func (b *GASBridge) FetchSignals(ctx context.Context, q domain.SignalQuery) ([]byte, error) {
	params := url.Values{}
	if q.Pair != "" {
		params.Set("pair", strings.ToUpper(q.Pair))
	}
	if q.DeviceID != "" {
		params.Set("device_id", q.DeviceID)
		params.Set("fingerprint", q.Fingerprint)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.buildURL(b.signalURL, params), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create signals request: %w", err)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, domain.WrapError(domain.ErrSignalFetchFailed, fmt.Errorf("failed to call signal script: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.WrapError(domain.ErrSignalFetchFailed, fmt.Errorf("failed to read signals: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return nil, domain.WrapError(domain.ErrSignalFetchFailed,
			fmt.Errorf("signal script returned error: status=%d, body=%s", resp.StatusCode, truncate(body)))
	}

	if !json.Valid(body) {
		return nil, domain.WrapError(domain.ErrSignalFetchFailed, fmt.Errorf("signal script returned invalid JSON"))
	}

	return body, nil
}

// HealthCheck checks whether the authority answers at all
func (b *GASBridge) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.buildURL(b.authURL, url.Values{}), nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach authority: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("authority is unhealthy: status=%d", resp.StatusCode)
	}

	return nil
}

func (b *GASBridge) buildURL(base string, params url.Values) string {
	if b.secret != "" {
		params.Set("secret", b.secret)
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	if len(params) == 0 {
		return base
	}
	return base + sep + params.Encode()
}

func (b *GASBridge) getJSON(ctx context.Context, base string, params url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.buildURL(base, params), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	return b.do(req, out)
}

func (b *GASBridge) postJSON(ctx context.Context, body, out any) error {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.buildURL(b.authURL, url.Values{}), bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return b.do(req, out)
}

func (b *GASBridge) do(req *http.Request, out any) error {
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call authority: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("authority returned error: status=%d, body=%s", resp.StatusCode, truncate(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode authority response: %w", err)
	}

	return nil
}

func truncate(b []byte) string {
	const limit = 256
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}
