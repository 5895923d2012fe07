package client

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fxhedz/internal/domain"
	"fxhedz/internal/logger"
)

// Cookies mirrored for the gateway
const (
	DeviceCookie      = "fx_device"
	FingerprintCookie = "fx_fp"
	PlatformCookie    = "fx_platform"
	TelegramCookie    = "fx_tg_id"

	cookieLifetime    = 365 * 24 * time.Hour
	fingerprintLength = 64
)

// Environment is the tuple of signals the fingerprint is derived from
type Environment struct {
	UserAgent    string
	ScreenWidth  int
	ScreenHeight int
	Timezone     string
	Locale       string
}

func (e Environment) raw() string {
	return strings.Join([]string{
		e.UserAgent,
		strconv.Itoa(e.ScreenWidth),
		strconv.Itoa(e.ScreenHeight),
		e.Timezone,
		e.Locale,
	}, "|")
}

// DetectEnvironment describes the current process
func DetectEnvironment(version string) Environment {
	locale := os.Getenv("LC_ALL")
	if locale == "" {
		locale = os.Getenv("LANG")
	}
	return Environment{
		UserAgent: fmt.Sprintf("fxhedz/%s (%s; %s)", version, runtime.GOOS, runtime.GOARCH),
		Timezone:  time.Local.String(),
		Locale:    locale,
	}
}

// Fingerprint is the hex SHA-256 of the environment tuple
func Fingerprint(env Environment) string {
	return sha256Hex(env.raw())
}

func sha256Hex(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// encodeFingerprint is the weaker fixed-length encoding used when hashing fails
func encodeFingerprint(raw string) string {
	encoded := base64.StdEncoding.EncodeToString([]byte(raw))
	if len(encoded) >= fingerprintLength {
		return encoded[:fingerprintLength]
	}
	return encoded + strings.Repeat("=", fingerprintLength-len(encoded))
}

func fallbackFingerprint(now time.Time) string {
	suffix := make([]byte, 6)
	if _, err := rand.Read(suffix); err != nil {
		return fmt.Sprintf("fallback_%d", now.UnixMilli())
	}
	return fmt.Sprintf("fallback_%d_%s", now.UnixMilli(), hex.EncodeToString(suffix))
}

// Identity owns the device id and fingerprint; no other component touches them in storage
type Identity struct {
	mu             sync.Mutex
	storage        Storage
	jar            http.CookieJar
	base           *url.URL
	platform       domain.Platform
	telegramChatID string
	logger         *zap.Logger

	environment func() (Environment, error)
	hash        func(raw string) (string, error)
	newID       func() (string, error)
	now         func() time.Time

	deviceID    string
	fingerprint string
}

// NewIdentity creates the device identity generator; jar receives the mirrored cookies
func NewIdentity(storage Storage, jar http.CookieJar, base *url.URL, platform domain.Platform, telegramChatID string, env Environment, log *zap.Logger) *Identity {
	if platform != domain.PlatformTelegram {
		telegramChatID = ""
	}
	return &Identity{
		storage:        storage,
		jar:            jar,
		base:           base,
		platform:       platform,
		telegramChatID: telegramChatID,
		logger:         log.Named("identity"),
		environment:    func() (Environment, error) { return env, nil },
		hash:           func(raw string) (string, error) { return sha256Hex(raw), nil },
		newID: func() (string, error) {
			id, err := uuid.NewRandom()
			if err != nil {
				return "", err
			}
			return id.String(), nil
		},
		now: time.Now,
	}
}

// EnsureDeviceID returns the persisted device id, generating and persisting one on first use
func (i *Identity) EnsureDeviceID() string {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.deviceID != "" {
		return i.deviceID
	}

	id, ok, err := i.storage.Get(keyDeviceID)
	switch {
	case err != nil:
		// a transient read failure must not overwrite a stored id
		i.logger.Warn("failed to read device id, using process-local id", zap.Error(err))
		id = i.generateID()
	case !ok || id == "":
		id = i.generateID()
		if err := i.storage.Set(keyDeviceID, id); err != nil {
			i.logger.Warn("failed to persist device id", zap.Error(err))
		}
		i.logger.Info("device id generated", zap.String("device_id", logger.ShortID(id)))
	}

	i.deviceID = id
	i.setCookie(DeviceCookie, id)
	i.setCookie(PlatformCookie, string(i.platform))
	if i.telegramChatID != "" {
		i.setCookie(TelegramCookie, i.telegramChatID)
	}
	return id
}

func (i *Identity) generateID() string {
	id, err := i.newID()
	if err != nil {
		i.logger.Warn("device id generation failed, using fallback", zap.Error(err))
		return fallbackFingerprint(i.now())
	}
	return id
}

// DeviceID returns the device id without generating one
func (i *Identity) DeviceID() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.deviceID
}

// ComputeFingerprint recomputes the fingerprint and mirrors it into a cookie; it always returns a value
func (i *Identity) ComputeFingerprint() string {
	i.mu.Lock()
	defer i.mu.Unlock()

	fp := i.computeLocked()
	i.fingerprint = fp
	i.setCookie(FingerprintCookie, fp)
	return fp
}

func (i *Identity) computeLocked() string {
	env, err := i.environment()
	if err != nil {
		i.logger.Debug("fingerprint environment unavailable", zap.Error(err))
		return fallbackFingerprint(i.now())
	}

	raw := env.raw()
	fp, err := i.hash(raw)
	if err != nil || len(fp) != fingerprintLength {
		return encodeFingerprint(raw)
	}
	return fp
}

// Fingerprint returns the last computed fingerprint, computing it if needed
func (i *Identity) Fingerprint() string {
	i.mu.Lock()
	fp := i.fingerprint
	i.mu.Unlock()

	if fp == "" {
		return i.ComputeFingerprint()
	}
	return fp
}

// Platform returns the shell this client runs in
func (i *Identity) Platform() domain.Platform {
	return i.platform
}

// TelegramChatID returns the chat id when the platform is telegram
func (i *Identity) TelegramChatID() string {
	return i.telegramChatID
}

// Forget drops the persisted device id so the next EnsureDeviceID generates a new one
func (i *Identity) Forget() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.deviceID = ""
	return i.storage.Delete(keyDeviceID)
}

func (i *Identity) setCookie(name, value string) {
	if i.jar == nil || i.base == nil || value == "" {
		return
	}
	i.jar.SetCookies(i.base, []*http.Cookie{{
		Name:    name,
		Value:   value,
		Path:    "/",
		Expires: i.now().Add(cookieLifetime),
	}})
}
