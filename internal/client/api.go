package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"go.uber.org/zap"

	"fxhedz/internal/domain"
)

// APIError is a non-2xx gateway response
type APIError struct {
	Status  int
	Message string
	Code    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("gateway %d [%s]: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("gateway %d: %s", e.Status, e.Message)
}

var errorsByCode = map[string]*domain.Error{
	domain.ErrMissingFields.Code:        domain.ErrMissingFields,
	domain.ErrNoDevice.Code:             domain.ErrNoDevice,
	domain.ErrUnauthorized.Code:         domain.ErrUnauthorized,
	domain.ErrInvalidIdentityToken.Code: domain.ErrInvalidIdentityToken,
	domain.ErrInvalidRefreshToken.Code:  domain.ErrInvalidRefreshToken,
	domain.ErrSubscriptionInactive.Code: domain.ErrSubscriptionInactive,
	domain.ErrDeviceBlocked.Code:        domain.ErrDeviceBlocked,
	domain.ErrDeviceLimitExceeded.Code:  domain.ErrDeviceLimitExceeded,
	domain.ErrAuthorityUnavailable.Code: domain.ErrAuthorityUnavailable,
	domain.ErrSignalFetchFailed.Code:    domain.ErrSignalFetchFailed,
}

// Unwrap exposes the coded domain error so callers can use errors.Is
func (e *APIError) Unwrap() error {
	if de, ok := errorsByCode[e.Code]; ok {
		return de
	}
	if e.Status == http.StatusUnauthorized {
		return domain.ErrUnauthorized
	}
	return nil
}

// Gateway sends raw requests to the fxhedz server
type Gateway struct {
	base *url.URL
	http *http.Client
}

// NewGateway creates a gateway for baseURL; httpClient should carry the identity cookie jar
func NewGateway(baseURL string, httpClient *http.Client) (*Gateway, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base url: %q", baseURL)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Gateway{base: base, http: httpClient}, nil
}

// BaseURL returns the gateway root
func (g *Gateway) BaseURL() *url.URL {
	return g.base
}

func (g *Gateway) send(ctx context.Context, method, path string, query url.Values, body interface{}, header http.Header) (*http.Response, error) {
	u := g.base.ResolveReference(&url.URL{Path: strings.TrimPrefix(path, "/")})
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := g.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return resp, nil
}

// readJSON decodes a 2xx body into out, or returns an *APIError
func readJSON(resp *http.Response, out interface{}) error {
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(body))}
		var envelope struct {
			Message string      `json:"message"`
			Error   interface{} `json:"error"`
		}
		if json.Unmarshal(body, &envelope) == nil {
			if envelope.Message != "" {
				apiErr.Message = envelope.Message
			}
			if code, ok := envelope.Error.(string); ok {
				apiErr.Code = code
			}
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if raw, ok := out.(*[]byte); ok {
		*raw = body
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Client sends authorized requests, renewing the access token once on a 401
type Client struct {
	gw       *Gateway
	session  *Session
	identity *Identity
	logger   *zap.Logger

	// refreshMu makes concurrent 401s share one refresh
	refreshMu sync.Mutex
}

// NewClient creates an authorized gateway client
func NewClient(gw *Gateway, session *Session, identity *Identity, log *zap.Logger) *Client {
	return &Client{gw: gw, session: session, identity: identity, logger: log.Named("api")}
}

// GetJSON performs an authorized GET and decodes the response
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	return c.call(ctx, http.MethodGet, path, query, nil, out)
}

// PostJSON performs an authorized POST and decodes the response
func (c *Client) PostJSON(ctx context.Context, path string, body, out interface{}) error {
	return c.call(ctx, http.MethodPost, path, nil, body, out)
}

func (c *Client) call(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	used := c.session.AccessToken()
	err := c.attempt(ctx, method, path, query, body, out, used)
	if !isUnauthorized(err) || !c.session.Info().Authenticated {
		return err
	}

	// exactly one refresh, then exactly one retry
	if !c.refreshAfter(ctx, used) {
		c.logger.Info("refresh failed, signing out", zap.String("path", path))
		c.session.Clear()
		return err
	}

	err = c.attempt(ctx, method, path, query, body, out, c.session.AccessToken())
	if isUnauthorized(err) {
		c.logger.Info("retry unauthorized, signing out", zap.String("path", path))
		c.session.Clear()
	}
	return err
}

// refreshAfter renews the session unless another call already replaced the rejected token
func (c *Client) refreshAfter(ctx context.Context, rejected string) bool {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	if current := c.session.AccessToken(); current != "" && current != rejected {
		return true
	}
	return c.session.Refresh(ctx)
}

func (c *Client) attempt(ctx context.Context, method, path string, query url.Values, body, out interface{}, token string) error {
	q := url.Values{}
	for k, vs := range query {
		q[k] = vs
	}
	if fp := c.identity.Fingerprint(); fp != "" && q.Get("fingerprint") == "" {
		q.Set("fingerprint", fp)
	}

	header := http.Header{}
	if device := c.identity.DeviceID(); device != "" {
		header.Set("X-Device-ID", device)
	}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.gw.send(ctx, method, path, q, body, header)
	if err != nil {
		return err
	}
	return readJSON(resp, out)
}

func isUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized
}

// ResetDevices revokes every device of the signed-in account and signs out entirely
func (c *Client) ResetDevices(ctx context.Context) (int, error) {
	var out struct {
		Success bool `json:"success"`
		Removed int  `json:"removed"`
	}
	if err := c.PostJSON(ctx, "/api/reset-devices", nil, &out); err != nil {
		return 0, err
	}

	c.session.Clear()
	c.session.notifyHost(LogoutRequest)
	return out.Removed, nil
}
