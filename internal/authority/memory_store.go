package authority

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"fxhedz/internal/domain"
)

// MemoryStore is a thread-safe in-memory domain.AuthorityStore for development and tests
type MemoryStore struct {
	mu            sync.RWMutex
	subscriptions map[string]domain.Subscription  // key: email
	bindings      map[string]domain.DeviceBinding // key: device id
	blocked       map[string]string               // device id -> reason
	tokens        map[string]domain.RefreshTokenRecord
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		subscriptions: make(map[string]domain.Subscription),
		bindings:      make(map[string]domain.DeviceBinding),
		blocked:       make(map[string]string),
		tokens:        make(map[string]domain.RefreshTokenRecord),
	}
}

func (m *MemoryStore) GetSubscription(_ context.Context, email string) (*domain.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if sub, ok := m.subscriptions[strings.ToLower(email)]; ok {
		return &sub, nil
	}
	return nil, nil
}

func (m *MemoryStore) SaveSubscription(_ context.Context, sub *domain.Subscription) error {
	if sub == nil || sub.Email == "" {
		return errors.New("subscription requires an email")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.subscriptions[strings.ToLower(sub.Email)] = *sub
	return nil
}

func (m *MemoryStore) ListBindings(_ context.Context, email string) ([]*domain.DeviceBinding, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	email = strings.ToLower(email)
	var out []*domain.DeviceBinding
	for _, b := range m.bindings {
		if b.Email == email {
			b := b
			out = append(out, &b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) GetBindingByDevice(_ context.Context, deviceID string) (*domain.DeviceBinding, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if b, ok := m.bindings[deviceID]; ok {
		return &b, nil
	}
	return nil, nil
}

func (m *MemoryStore) SaveBinding(_ context.Context, binding *domain.DeviceBinding) error {
	if binding == nil || binding.DeviceID == "" || binding.Email == "" {
		return errors.New("binding requires email and device id")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.saveBindingLocked(*binding)
	return nil
}

func (m *MemoryStore) BindDevice(_ context.Context, binding *domain.DeviceBinding, maxDevices int) (bool, error) {
	if binding == nil || binding.DeviceID == "" || binding.Email == "" {
		return false, errors.New("binding requires email and device id")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	email := strings.ToLower(binding.Email)
	others := 0
	for id, b := range m.bindings {
		if b.Email == email && id != binding.DeviceID {
			others++
		}
	}
	if others >= maxDevices {
		return false, nil
	}

	m.saveBindingLocked(*binding)
	return true, nil
}

func (m *MemoryStore) saveBindingLocked(b domain.DeviceBinding) {
	b.Email = strings.ToLower(b.Email)
	if existing, ok := m.bindings[b.DeviceID]; ok && existing.Email == b.Email {
		b.CreatedAt = existing.CreatedAt
	}
	m.bindings[b.DeviceID] = b
}

func (m *MemoryStore) DeleteBindings(_ context.Context, email string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	email = strings.ToLower(email)
	removed := 0
	for id, b := range m.bindings {
		if b.Email == email {
			delete(m.bindings, id)
			removed++
		}
	}
	return removed, nil
}

func (m *MemoryStore) IsDeviceBlocked(_ context.Context, deviceID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.blocked[deviceID]
	return ok, nil
}

func (m *MemoryStore) BlockDevice(_ context.Context, deviceID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.blocked[deviceID] = reason
	return nil
}

func (m *MemoryStore) SaveRefreshToken(_ context.Context, record *domain.RefreshTokenRecord) error {
	if record == nil || record.TokenHash == "" {
		return errors.New("refresh token requires a hash")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	r := *record
	r.Email = strings.ToLower(r.Email)
	for hash, existing := range m.tokens {
		if existing.Email == r.Email && existing.DeviceID == r.DeviceID {
			delete(m.tokens, hash)
		}
	}
	m.tokens[r.TokenHash] = r
	return nil
}

func (m *MemoryStore) GetRefreshToken(_ context.Context, tokenHash string) (*domain.RefreshTokenRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if r, ok := m.tokens[tokenHash]; ok {
		return &r, nil
	}
	return nil, nil
}

func (m *MemoryStore) RevokeRefreshTokens(_ context.Context, email string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	email = strings.ToLower(email)
	for hash, r := range m.tokens {
		if r.Email == email && r.RevokedAt == nil {
			revokedAt := at
			r.RevokedAt = &revokedAt
			m.tokens[hash] = r
		}
	}
	return nil
}

func (m *MemoryStore) PurgeExpiredRefreshTokens(_ context.Context, before time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	purged := 0
	for hash, r := range m.tokens {
		if r.ExpiresAt.Before(before) {
			delete(m.tokens, hash)
			purged++
		}
	}
	return purged, nil
}
