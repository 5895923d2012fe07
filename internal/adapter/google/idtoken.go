package google

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/api/idtoken"

	"fxhedz/internal/domain"
)

// PayloadValidator validates a Google ID token for an audience
type PayloadValidator interface {
	Validate(ctx context.Context, idToken, audience string) (*idtoken.Payload, error)
}

// Verifier checks Google ID tokens issued to our client id
type Verifier struct {
	clientID  string
	validator PayloadValidator
}

// NewVerifier creates a verifier backed by Google's published certificates
func NewVerifier(ctx context.Context, clientID string) (*Verifier, error) {
	v, err := idtoken.NewValidator(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create id token validator: %w", err)
	}
	return NewVerifierWithValidator(clientID, v), nil
}

// NewVerifierWithValidator creates a verifier with a custom validator
func NewVerifierWithValidator(clientID string, v PayloadValidator) *Verifier {
	return &Verifier{clientID: clientID, validator: v}
}

// Verify validates the token and returns the lower-cased account email
func (v *Verifier) Verify(ctx context.Context, idToken string) (string, error) {
	if idToken == "" {
		return "", domain.ErrMissingFields
	}

	payload, err := v.validator.Validate(ctx, idToken, v.clientID)
	if err != nil {
		return "", domain.WrapError(domain.ErrInvalidIdentityToken, err)
	}

	email, _ := payload.Claims["email"].(string)
	if email == "" {
		return "", domain.WrapError(domain.ErrInvalidIdentityToken, fmt.Errorf("token carries no email"))
	}
	if verified, ok := payload.Claims["email_verified"].(bool); ok && !verified {
		return "", domain.WrapError(domain.ErrInvalidIdentityToken, fmt.Errorf("email not verified"))
	}

	return strings.ToLower(email), nil
}
