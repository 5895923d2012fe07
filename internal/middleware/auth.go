package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"fxhedz/internal/domain"
)

// Context keys set by the auth middleware
const (
	ctxEmail      = "email"
	ctxDeviceID   = "device_id"
	ctxAuthMethod = "auth_method"
)

// Auth methods
const (
	AuthMethodToken   = "token"
	AuthMethodSession = "session"
)

// JWTClaims represents the access token claims
type JWTClaims struct {
	Email    string `json:"email"`
	DeviceID string `json:"deviceId"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and parses short-lived access tokens
type TokenIssuer struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewTokenIssuer creates an issuer with the given signing key and lifetime
func NewTokenIssuer(key []byte, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &TokenIssuer{key: key, ttl: ttl, now: time.Now}
}

// TTL returns the access token lifetime
func (i *TokenIssuer) TTL() time.Duration {
	return i.ttl
}

// Generate issues an access token bound to (email, device)
func (i *TokenIssuer) Generate(email, deviceID string) (string, error) {
	now := i.now()
	claims := &JWTClaims{
		Email:    email,
		DeviceID: deviceID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.key)
}

// Parse validates an access token and returns its claims
func (i *TokenIssuer) Parse(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return i.key, nil
	}, jwt.WithTimeFunc(i.now))
	if err != nil {
		return nil, domain.WrapError(domain.ErrUnauthorized, err)
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid || claims.Email == "" || claims.DeviceID == "" {
		return nil, domain.WrapError(domain.ErrUnauthorized, errors.New("invalid token claims"))
	}

	return claims, nil
}

// Authenticator resolves the caller from a bearer access token or the web session cookie
type Authenticator struct {
	issuer   *TokenIssuer
	sessions *SessionManager
}

// NewAuthenticator creates an authenticator; sessions may be nil for token-only deployments
func NewAuthenticator(issuer *TokenIssuer, sessions *SessionManager) *Authenticator {
	return &Authenticator{issuer: issuer, sessions: sessions}
}

// Optional sets the caller context when credentials are present and rejects only invalid ones
func (a *Authenticator) Optional(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := a.authenticate(c); err != nil && !errors.Is(err, errNoCredentials) {
			return err
		}
		return next(c)
	}
}

// Required rejects callers without valid credentials
func (a *Authenticator) Required(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := a.authenticate(c); err != nil {
			if errors.Is(err, errNoCredentials) {
				return unauthorized("Missing authentication token")
			}
			return err
		}
		return next(c)
	}
}

var errNoCredentials = errors.New("no credentials")

func (a *Authenticator) authenticate(c echo.Context) error {
	authHeader := c.Request().Header.Get("Authorization")
	if authHeader == "" {
		if a.sessions != nil {
			if email := a.sessions.Email(c.Request()); email != "" {
				c.Set(ctxEmail, email)
				c.Set(ctxAuthMethod, AuthMethodSession)
				return nil
			}
		}
		return errNoCredentials
	}

	// Extract token from Bearer scheme
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return unauthorized("Invalid authorization header format")
	}

	claims, err := a.issuer.Parse(parts[1])
	if err != nil {
		return unauthorized("Invalid or expired token")
	}

	// The token only authorizes the device it was issued to
	if device := RequestDeviceID(c); device != "" && device != claims.DeviceID {
		return unauthorized("Token does not match device")
	}

	c.Set(ctxEmail, claims.Email)
	c.Set(ctxDeviceID, claims.DeviceID)
	c.Set(ctxAuthMethod, AuthMethodToken)
	return nil
}

func unauthorized(message string) error {
	return echo.NewHTTPError(http.StatusUnauthorized, message).SetInternal(domain.ErrUnauthorized)
}

// GetEmail extracts the authenticated email from echo context
func GetEmail(c echo.Context) (string, error) {
	email, ok := c.Get(ctxEmail).(string)
	if !ok || email == "" {
		return "", fmt.Errorf("email not found in context")
	}
	return email, nil
}

// GetAuthMethod reports how the caller authenticated, or an empty string
func GetAuthMethod(c echo.Context) string {
	method, _ := c.Get(ctxAuthMethod).(string)
	return method
}
