package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeGateway stands in for the fxhedz server
type fakeGateway struct {
	mu sync.Mutex

	subscription string
	signals      []string
	details      map[string]string
	refreshOK    bool
	validAccess  map[string]bool
	issued       int

	nativeAuthCalls   int
	refreshCalls      int
	subscriptionCalls int
	signalCalls       int
	detailCalls       int
	resetCalls        int
	lastDevice        string
	lastFingerprint   string
	lastCookies       map[string]string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		subscription: `{"active":true,"blocked":false,"plan":"pro","expiry":"2030-01-01T00:00:00Z","state":"ACTIVE"}`,
		signals:      []string{`{"XAUUSD":{"direction":"BUY","price":2350}}`},
		details:      map[string]string{},
		refreshOK:    true,
		validAccess:  map[string]bool{},
		lastCookies:  map[string]string{},
	}
}

func writeError(w http.ResponseWriter, status int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"status": "error", "message": message, "error": code})
}

func writeJSON(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(body))
}

func (g *fakeGateway) issueLocked() string {
	g.issued++
	token := fmt.Sprintf("access-%d", g.issued)
	g.validAccess[token] = true
	return token
}

// expireAll invalidates every issued access token
func (g *fakeGateway) expireAll() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.validAccess = map[string]bool{}
}

func (g *fakeGateway) set(fn func(g *fakeGateway)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn(g)
}

func (g *fakeGateway) count(fn func(g *fakeGateway) int) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return fn(g)
}

func (g *fakeGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.lastDevice = r.Header.Get("X-Device-ID")
	if fp := r.URL.Query().Get("fingerprint"); fp != "" {
		g.lastFingerprint = fp
	}
	for _, ck := range r.Cookies() {
		g.lastCookies[ck.Name] = ck.Value
	}

	if auth := r.Header.Get("Authorization"); auth != "" {
		if !g.validAccess[strings.TrimPrefix(auth, "Bearer ")] {
			writeError(w, http.StatusUnauthorized, "Invalid or expired token", "UNAUTHORIZED")
			return
		}
	}

	switch r.URL.Path {
	case "/api/native-auth":
		g.nativeAuthCalls++
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		switch body["idToken"] {
		case "bad":
			writeError(w, http.StatusUnauthorized, "Invalid Google token", "INVALID_IDENTITY_TOKEN")
		case "limit":
			writeError(w, http.StatusForbidden, "Device blocked or limit exceeded", "DEVICE_LIMIT_EXCEEDED")
		default:
			writeJSON(w, fmt.Sprintf(`{"accessToken":%q,"refreshToken":"refresh-1","email":"Alice@Example.com"}`, g.issueLocked()))
		}

	case "/api/refresh":
		g.refreshCalls++
		if !g.refreshOK {
			writeError(w, http.StatusUnauthorized, "Invalid refresh token", "")
			return
		}
		writeJSON(w, fmt.Sprintf(`{"accessToken":%q}`, g.issueLocked()))

	case "/api/subscription":
		g.subscriptionCalls++
		if g.subscription == "" {
			writeError(w, http.StatusInternalServerError, "boom", "")
			return
		}
		writeJSON(w, g.subscription)

	case "/api/signals":
		if pair := r.URL.Query().Get("pair"); pair != "" {
			g.detailCalls++
			writeJSON(w, g.details[pair])
			return
		}
		g.signalCalls++
		p := g.signals[0]
		if len(g.signals) > 1 {
			g.signals = g.signals[1:]
		}
		writeJSON(w, p)

	case "/api/reset-devices":
		g.resetCalls++
		writeJSON(w, `{"success":true,"removed":2}`)

	default:
		http.NotFound(w, r)
	}
}

const (
	defaultWait = 2 * time.Second
	pollTick    = 5 * time.Millisecond
)

var testEnv = Environment{
	UserAgent:    "fxhedz-test",
	ScreenWidth:  1080,
	ScreenHeight: 2400,
	Timezone:     "Europe/London",
	Locale:       "en-GB",
}

func testConfig(baseURL string) Config {
	return Config{
		BaseURL:          baseURL,
		Platform:         "android",
		SnapshotInterval: 10 * time.Millisecond,
		DetailInterval:   10 * time.Millisecond,
		VerifyInterval:   20 * time.Millisecond,
		RequestTimeout:   2 * time.Second,
		Instruments:      []string{"XAUUSD", "EURUSD", "BTCUSD"},
	}
}

type runtimeHarness struct {
	gw      *fakeGateway
	server  *httptest.Server
	storage *MemoryStorage
	rt      *Runtime
	ctx     context.Context
}

func newHarness(t *testing.T, bridge HostBridge) *runtimeHarness {
	t.Helper()
	gw := newFakeGateway()
	server := httptest.NewServer(gw)
	t.Cleanup(server.Close)

	storage := NewMemoryStorage()
	rt, err := NewRuntime(testConfig(server.URL), storage, testEnv, bridge, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		rt.Stop()
	})

	return &runtimeHarness{gw: gw, server: server, storage: storage, rt: rt, ctx: ctx}
}

// signIn stores a session without starting the runtime
func (h *runtimeHarness) signIn(t *testing.T) {
	t.Helper()
	h.rt.Identity.EnsureDeviceID()
	require.NoError(t, h.rt.Session.SignIn(context.Background(), "good"))
}

type recordingBridge struct {
	mu       sync.Mutex
	messages []string
}

func (b *recordingBridge) Post(message string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, message)
	return nil
}

func (b *recordingBridge) Messages() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.messages...)
}
