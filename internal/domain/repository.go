package domain

import (
	"context"
	"time"
)

// AuthorityStore defines persistence for the local reference authority
type AuthorityStore interface {
	// GetSubscription returns the subscription for an email, or nil if none exists
	GetSubscription(ctx context.Context, email string) (*Subscription, error)

	// SaveSubscription creates or replaces a subscription
	SaveSubscription(ctx context.Context, sub *Subscription) error

	// ListBindings returns every device bound to an email
	ListBindings(ctx context.Context, email string) ([]*DeviceBinding, error)

	// GetBindingByDevice returns the binding of a device, or nil if it is unbound
	GetBindingByDevice(ctx context.Context, deviceID string) (*DeviceBinding, error)

	// SaveBinding creates or refreshes a binding
	SaveBinding(ctx context.Context, binding *DeviceBinding) error

	// BindDevice saves a binding unless the email already has maxDevices other devices.
	// The count and the write are atomic; bound is false when the account is full.
	BindDevice(ctx context.Context, binding *DeviceBinding, maxDevices int) (bound bool, err error)

	// DeleteBindings removes every binding of an email and returns how many were removed
	DeleteBindings(ctx context.Context, email string) (int, error)

	// IsDeviceBlocked reports an explicit device block
	IsDeviceBlocked(ctx context.Context, deviceID string) (bool, error)

	// BlockDevice adds an explicit device block
	BlockDevice(ctx context.Context, deviceID, reason string) error

	// SaveRefreshToken stores a refresh token hash for (email, device), replacing older ones
	SaveRefreshToken(ctx context.Context, record *RefreshTokenRecord) error

	// GetRefreshToken looks a token up by hash
	GetRefreshToken(ctx context.Context, tokenHash string) (*RefreshTokenRecord, error)

	// RevokeRefreshTokens revokes every refresh token of an email
	RevokeRefreshTokens(ctx context.Context, email string, at time.Time) error

	// PurgeExpiredRefreshTokens deletes tokens expired before the given instant
	PurgeExpiredRefreshTokens(ctx context.Context, before time.Time) (int, error)
}
