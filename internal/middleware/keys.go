package middleware

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Keys are the independent keys derived from the shared server secret
type Keys struct {
	AccessToken   []byte // HS256 signing key for access tokens
	SessionAuth   []byte // HMAC key for the web session cookie
	SessionCipher []byte // AES-256 key for the web session cookie
}

// DeriveKeys expands the shared secret into purpose-bound keys with HKDF-SHA256
func DeriveKeys(secret string) (*Keys, error) {
	if secret == "" {
		return nil, fmt.Errorf("secret is required")
	}

	derive := func(info string, size int) ([]byte, error) {
		key := make([]byte, size)
		r := hkdf.New(sha256.New, []byte(secret), nil, []byte(info))
		if _, err := io.ReadFull(r, key); err != nil {
			return nil, fmt.Errorf("failed to derive %s key: %w", info, err)
		}
		return key, nil
	}

	access, err := derive("fxhedz access token", 32)
	if err != nil {
		return nil, err
	}
	auth, err := derive("fxhedz session auth", 64)
	if err != nil {
		return nil, err
	}
	cipher, err := derive("fxhedz session cipher", 32)
	if err != nil {
		return nil, err
	}

	return &Keys{AccessToken: access, SessionAuth: auth, SessionCipher: cipher}, nil
}
