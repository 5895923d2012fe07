package middleware

import (
	"net/http"

	"github.com/gorilla/sessions"
)

const (
	sessionName     = "fx_session"
	sessionEmailKey = "email"
	sessionStateKey = "oauth_state"
	sessionMaxAge   = 30 * 24 * 60 * 60
)

// SessionManager holds the signed and encrypted web session cookie
type SessionManager struct {
	store *sessions.CookieStore
}

// NewSessionManager creates a cookie session store from derived keys
func NewSessionManager(keys *Keys, secure bool) *SessionManager {
	store := sessions.NewCookieStore(keys.SessionAuth, keys.SessionCipher)
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   sessionMaxAge,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return &SessionManager{store: store}
}

func (m *SessionManager) session(r *http.Request) *sessions.Session {
	// A cookie that fails to decode yields a fresh session
	s, _ := m.store.Get(r, sessionName)
	return s
}

// Email returns the signed-in email, or an empty string
func (m *SessionManager) Email(r *http.Request) string {
	email, _ := m.session(r).Values[sessionEmailKey].(string)
	return email
}

// SetEmail signs an email in
func (m *SessionManager) SetEmail(w http.ResponseWriter, r *http.Request, email string) error {
	s := m.session(r)
	s.Values[sessionEmailKey] = email
	delete(s.Values, sessionStateKey)
	return s.Save(r, w)
}

// SetState stores an OAuth state value until the callback
func (m *SessionManager) SetState(w http.ResponseWriter, r *http.Request, state string) error {
	s := m.session(r)
	s.Values[sessionStateKey] = state
	return s.Save(r, w)
}

// State returns the pending OAuth state value
func (m *SessionManager) State(r *http.Request) string {
	state, _ := m.session(r).Values[sessionStateKey].(string)
	return state
}

// Clear signs out by expiring the cookie
func (m *SessionManager) Clear(w http.ResponseWriter, r *http.Request) error {
	s := m.session(r)
	s.Values = map[interface{}]interface{}{}
	s.Options.MaxAge = -1
	return s.Save(r, w)
}
