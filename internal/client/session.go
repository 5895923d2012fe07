package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"go.uber.org/zap"

	"fxhedz/internal/domain"
)

// Messages posted to the host shell of an embedded client
const (
	LoginRequest  = "LOGIN_REQUEST"
	LogoutRequest = "LOGOUT_REQUEST"
)

// HostBridge posts messages to the native shell hosting an embedded client
type HostBridge interface {
	Post(message string) error
}

// SessionInfo is the observable part of a session
type SessionInfo struct {
	Email         string
	Authenticated bool
}

// Session stores the native token pair; anonymous by default
type Session struct {
	mu       sync.RWMutex
	storage  Storage
	gw       *Gateway
	identity *Identity
	bridge   HostBridge
	logger   *zap.Logger

	email        string
	accessToken  string
	refreshToken string

	listenersMu sync.Mutex
	listeners   []func(SessionInfo)
}

// NewSession restores any persisted tokens; bridge is nil for standalone clients
func NewSession(storage Storage, gw *Gateway, identity *Identity, bridge HostBridge, log *zap.Logger) *Session {
	s := &Session{
		storage:  storage,
		gw:       gw,
		identity: identity,
		bridge:   bridge,
		logger:   log.Named("session"),
	}

	s.email = s.load(keyEmail)
	s.accessToken = s.load(keyAccessToken)
	s.refreshToken = s.load(keyRefreshToken)
	if s.refreshToken == "" || s.email == "" {
		s.email, s.accessToken, s.refreshToken = "", "", ""
	}
	return s
}

func (s *Session) load(key string) string {
	v, _, err := s.storage.Get(key)
	if err != nil {
		s.logger.Warn("failed to read session", zap.String("key", key), zap.Error(err))
	}
	return v
}

// Info returns the current session state
func (s *Session) Info() SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return SessionInfo{Email: s.email, Authenticated: s.refreshToken != ""}
}

// AccessToken returns the current access token, or an empty string
func (s *Session) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

// OnChange registers a listener called after every sign-in and sign-out
func (s *Session) OnChange(fn func(SessionInfo)) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Session) notify() {
	info := s.Info()

	s.listenersMu.Lock()
	listeners := append([]func(SessionInfo){}, s.listeners...)
	s.listenersMu.Unlock()

	for _, fn := range listeners {
		fn(info)
	}
}

// SignIn exchanges a provider identity token for a token pair and persists it
func (s *Session) SignIn(ctx context.Context, idToken string) error {
	if strings.TrimSpace(idToken) == "" {
		return domain.ErrMissingFields
	}

	body := map[string]string{
		"idToken":     idToken,
		"deviceId":    s.identity.EnsureDeviceID(),
		"fingerprint": s.identity.Fingerprint(),
		"platform":    string(s.identity.Platform()),
	}
	if chatID := s.identity.TelegramChatID(); chatID != "" {
		body["telegramChatId"] = chatID
	}

	resp, err := s.gw.send(ctx, http.MethodPost, "/api/native-auth", nil, body, nil)
	if err != nil {
		return err
	}

	var pair domain.TokenPair
	if err := readJSON(resp, &pair); err != nil {
		return err
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		return errors.New("incomplete token pair")
	}

	if err := s.Adopt(pair); err != nil {
		return err
	}
	s.logger.Info("signed in", zap.String("email", pair.Email))
	return nil
}

// RequestSignIn asks the host shell to run the provider sign-in; the host hands tokens back via Adopt
func (s *Session) RequestSignIn() error {
	if s.bridge == nil {
		return errors.New("no host bridge")
	}
	return s.bridge.Post(LoginRequest)
}

// Adopt persists a token pair obtained elsewhere, such as from the host shell
func (s *Session) Adopt(pair domain.TokenPair) error {
	s.mu.Lock()
	s.email = strings.ToLower(pair.Email)
	s.accessToken = pair.AccessToken
	s.refreshToken = pair.RefreshToken
	s.mu.Unlock()

	for key, value := range map[string]string{
		keyEmail:        strings.ToLower(pair.Email),
		keyAccessToken:  pair.AccessToken,
		keyRefreshToken: pair.RefreshToken,
	} {
		if err := s.storage.Set(key, value); err != nil {
			return fmt.Errorf("failed to persist session: %w", err)
		}
	}

	s.notify()
	return nil
}

// Refresh renews the access token; false means the caller must re-authenticate
func (s *Session) Refresh(ctx context.Context) bool {
	s.mu.RLock()
	email, refreshToken := s.email, s.refreshToken
	s.mu.RUnlock()

	if refreshToken == "" {
		return false
	}

	resp, err := s.gw.send(ctx, http.MethodPost, "/api/refresh", nil, map[string]string{
		"refreshToken": refreshToken,
		"deviceId":     s.identity.EnsureDeviceID(),
		"email":        email,
	}, nil)
	if err != nil {
		s.logger.Debug("refresh request failed", zap.Error(err))
		return false
	}

	var out struct {
		AccessToken string `json:"accessToken"`
	}
	if err := readJSON(resp, &out); err != nil || out.AccessToken == "" {
		s.logger.Debug("refresh rejected", zap.Error(err))
		return false
	}

	s.mu.Lock()
	// a concurrent sign-out wins over a late refresh
	if s.refreshToken != refreshToken {
		s.mu.Unlock()
		return false
	}
	s.accessToken = out.AccessToken
	s.mu.Unlock()

	if err := s.storage.Set(keyAccessToken, out.AccessToken); err != nil {
		s.logger.Warn("failed to persist access token", zap.Error(err))
	}
	return true
}

// SignOut clears the session; embedded clients defer clearing to the host shell
func (s *Session) SignOut() error {
	if s.bridge != nil {
		return s.bridge.Post(LogoutRequest)
	}
	s.Clear()
	return nil
}

// Clear drops all tokens and notifies listeners; the session becomes anonymous
func (s *Session) Clear() {
	s.mu.Lock()
	wasAuthenticated := s.refreshToken != ""
	s.email, s.accessToken, s.refreshToken = "", "", ""
	s.mu.Unlock()

	if err := s.storage.Delete(keyEmail, keyAccessToken, keyRefreshToken); err != nil {
		s.logger.Warn("failed to clear session", zap.Error(err))
	}

	if wasAuthenticated {
		s.logger.Info("signed out")
		s.notify()
	}
}

func (s *Session) notifyHost(message string) {
	if s.bridge == nil {
		return
	}
	if err := s.bridge.Post(message); err != nil {
		s.logger.Warn("host bridge message failed", zap.String("message", message), zap.Error(err))
	}
}
