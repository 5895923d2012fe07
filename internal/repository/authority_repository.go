package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"fxhedz/internal/domain"
)

// AuthorityRepositoryImpl implements domain.AuthorityStore on PostgreSQL
type AuthorityRepositoryImpl struct {
	db *pgxpool.Pool
}

// NewAuthorityRepository creates a new AuthorityRepository
func NewAuthorityRepository(db *pgxpool.Pool) domain.AuthorityStore {
	return &AuthorityRepositoryImpl{db: db}
}

// GetSubscription retrieves a subscription by email
func (r *AuthorityRepositoryImpl) GetSubscription(ctx context.Context, email string) (*domain.Subscription, error) {
	query := `
		SELECT email, plan, expires_at, created_at, updated_at
		FROM subscriptions
		WHERE email = $1
	`

	sub := &domain.Subscription{}
	err := r.db.QueryRow(ctx, query, strings.ToLower(email)).Scan(
		&sub.Email,
		&sub.Plan,
		&sub.ExpiresAt,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}

	return sub, nil
}

// SaveSubscription creates or replaces a subscription
func (r *AuthorityRepositoryImpl) SaveSubscription(ctx context.Context, sub *domain.Subscription) error {
	query := `
		INSERT INTO subscriptions (email, plan, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (email) DO UPDATE
		SET plan = EXCLUDED.plan, expires_at = EXCLUDED.expires_at, updated_at = NOW()
	`

	createdAt := sub.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := r.db.Exec(ctx, query,
		strings.ToLower(sub.Email),
		sub.Plan,
		sub.ExpiresAt,
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save subscription: %w", err)
	}

	return nil
}

// ListBindings retrieves all device bindings of an email, oldest first
func (r *AuthorityRepositoryImpl) ListBindings(ctx context.Context, email string) ([]*domain.DeviceBinding, error) {
	query := `
		SELECT email, device_id, fingerprint, platform, COALESCE(telegram_chat_id, ''), created_at, last_seen_at
		FROM device_bindings
		WHERE email = $1
		ORDER BY created_at ASC
	`

	rows, err := r.db.Query(ctx, query, strings.ToLower(email))
	if err != nil {
		return nil, fmt.Errorf("failed to query bindings: %w", err)
	}
	defer rows.Close()

	var bindings []*domain.DeviceBinding
	for rows.Next() {
		b, err := scanBinding(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan binding: %w", err)
		}
		bindings = append(bindings, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bindings: %w", err)
	}

	return bindings, nil
}

// GetBindingByDevice retrieves the binding of a device
func (r *AuthorityRepositoryImpl) GetBindingByDevice(ctx context.Context, deviceID string) (*domain.DeviceBinding, error) {
	query := `
		SELECT email, device_id, fingerprint, platform, COALESCE(telegram_chat_id, ''), created_at, last_seen_at
		FROM device_bindings
		WHERE device_id = $1
	`

	b, err := scanBinding(r.db.QueryRow(ctx, query, deviceID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get binding: %w", err)
	}

	return b, nil
}

const upsertBindingQuery = `
	INSERT INTO device_bindings (device_id, email, fingerprint, platform, telegram_chat_id, created_at, last_seen_at)
	VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7)
	ON CONFLICT (device_id) DO UPDATE
	SET email = EXCLUDED.email,
	    fingerprint = EXCLUDED.fingerprint,
	    platform = EXCLUDED.platform,
	    telegram_chat_id = EXCLUDED.telegram_chat_id,
	    created_at = CASE WHEN device_bindings.email = EXCLUDED.email
	                      THEN device_bindings.created_at ELSE EXCLUDED.created_at END,
	    last_seen_at = EXCLUDED.last_seen_at
`

// execer is satisfied by both the pool and a transaction
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func upsertBinding(ctx context.Context, db execer, b *domain.DeviceBinding) error {
	_, err := db.Exec(ctx, upsertBindingQuery,
		b.DeviceID,
		strings.ToLower(b.Email),
		b.Fingerprint,
		string(b.Platform),
		b.TelegramChatID,
		b.CreatedAt,
		b.LastSeenAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save binding: %w", err)
	}
	return nil
}

// SaveBinding creates a binding or refreshes an existing one
func (r *AuthorityRepositoryImpl) SaveBinding(ctx context.Context, b *domain.DeviceBinding) error {
	return upsertBinding(ctx, r.db, b)
}

// BindDevice counts the account's other devices and saves the binding in one transaction.
// A transaction-scoped advisory lock on the email serializes concurrent sign-ins of one account.
func (r *AuthorityRepositoryImpl) BindDevice(ctx context.Context, b *domain.DeviceBinding, maxDevices int) (bool, error) {
	email := strings.ToLower(b.Email)

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, email); err != nil {
		return false, fmt.Errorf("failed to lock account: %w", err)
	}

	var others int
	err = tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM device_bindings WHERE email = $1 AND device_id <> $2`,
		email, b.DeviceID,
	).Scan(&others)
	if err != nil {
		return false, fmt.Errorf("failed to count bindings: %w", err)
	}
	if others >= maxDevices {
		return false, nil
	}

	if err := upsertBinding(ctx, tx, b); err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit binding: %w", err)
	}
	return true, nil
}

// DeleteBindings removes every binding of an email
func (r *AuthorityRepositoryImpl) DeleteBindings(ctx context.Context, email string) (int, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM device_bindings WHERE email = $1`, strings.ToLower(email))
	if err != nil {
		return 0, fmt.Errorf("failed to delete bindings: %w", err)
	}

	return int(tag.RowsAffected()), nil
}

// IsDeviceBlocked reports whether a device is explicitly blocked
func (r *AuthorityRepositoryImpl) IsDeviceBlocked(ctx context.Context, deviceID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM blocked_devices WHERE device_id = $1)`, deviceID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check blocked device: %w", err)
	}

	return exists, nil
}

// BlockDevice blocks a device
func (r *AuthorityRepositoryImpl) BlockDevice(ctx context.Context, deviceID, reason string) error {
	query := `
		INSERT INTO blocked_devices (device_id, reason)
		VALUES ($1, $2)
		ON CONFLICT (device_id) DO UPDATE SET reason = EXCLUDED.reason
	`

	if _, err := r.db.Exec(ctx, query, deviceID, reason); err != nil {
		return fmt.Errorf("failed to block device: %w", err)
	}

	return nil
}

// SaveRefreshToken stores a token hash, replacing older tokens of the same device
func (r *AuthorityRepositoryImpl) SaveRefreshToken(ctx context.Context, t *domain.RefreshTokenRecord) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	email := strings.ToLower(t.Email)
	if _, err := tx.Exec(ctx,
		`DELETE FROM refresh_tokens WHERE email = $1 AND device_id = $2`, email, t.DeviceID,
	); err != nil {
		return fmt.Errorf("failed to replace refresh tokens: %w", err)
	}

	createdAt := t.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO refresh_tokens (token_hash, email, device_id, expires_at, revoked_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, t.TokenHash, email, t.DeviceID, t.ExpiresAt, t.RevokedAt, createdAt); err != nil {
		return fmt.Errorf("failed to save refresh token: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit refresh token: %w", err)
	}

	return nil
}

// GetRefreshToken retrieves a token by hash
func (r *AuthorityRepositoryImpl) GetRefreshToken(ctx context.Context, tokenHash string) (*domain.RefreshTokenRecord, error) {
	query := `
		SELECT token_hash, email, device_id, expires_at, revoked_at, created_at
		FROM refresh_tokens
		WHERE token_hash = $1
	`

	t := &domain.RefreshTokenRecord{}
	err := r.db.QueryRow(ctx, query, tokenHash).Scan(
		&t.TokenHash,
		&t.Email,
		&t.DeviceID,
		&t.ExpiresAt,
		&t.RevokedAt,
		&t.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}

	return t, nil
}

// RevokeRefreshTokens revokes every live token of an email
func (r *AuthorityRepositoryImpl) RevokeRefreshTokens(ctx context.Context, email string, at time.Time) error {
	_, err := r.db.Exec(ctx,
		`UPDATE refresh_tokens SET revoked_at = $2 WHERE email = $1 AND revoked_at IS NULL`,
		strings.ToLower(email), at,
	)
	if err != nil {
		return fmt.Errorf("failed to revoke refresh tokens: %w", err)
	}

	return nil
}

// PurgeExpiredRefreshTokens deletes tokens that expired before the given instant
func (r *AuthorityRepositoryImpl) PurgeExpiredRefreshTokens(ctx context.Context, before time.Time) (int, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to purge refresh tokens: %w", err)
	}

	return int(tag.RowsAffected()), nil
}

func scanBinding(row pgx.Row) (*domain.DeviceBinding, error) {
	b := &domain.DeviceBinding{}
	var platform string
	err := row.Scan(
		&b.Email,
		&b.DeviceID,
		&b.Fingerprint,
		&platform,
		&b.TelegramChatID,
		&b.CreatedAt,
		&b.LastSeenAt,
	)
	if err != nil {
		return nil, err
	}
	b.Platform = domain.ParsePlatform(platform)
	return b, nil
}
