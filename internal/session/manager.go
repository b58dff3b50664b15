// Package session persists login sessions, keeps the registry of
// concurrently valid sessions and schedules their expiry or auto-refresh.
//
// The registry and timer table are owned by one Manager. All store and
// registry mutation is serialized on one mutex, because expiry timers fire on
// their own goroutine and race caller-driven writes otherwise. Store writes
// are last-writer-wins per key: the registry-add and value-write pair is
// atomic only with respect to this manager, matching the platform keychain
// this store stands in for.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"custody/go-client/internal/keys"
	"custody/go-client/pkg/models"
)

const (
	tokenKeyPrefix = "session/token/"
	metaKeyPrefix  = "session/meta/"
	ttlKeyPrefix   = "session/refresh-ttl/"
	registryKey    = "session/registry"
	pendingKey     = "session/pending-keys"
	selectedKey    = "session/selected"

	// DefaultExpiryBuffer is how far before exp the timer fires, leaving
	// room for a refresh round-trip.
	DefaultExpiryBuffer = 5 * time.Second
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrNoRefresher     = errors.New("no refresher configured")
	ErrNoStore         = errors.New("session manager requires a store")
	ErrNoBackend       = errors.New("session manager requires a key backend")
)

// Store is the persisted key-value surface the manager writes through.
type Store interface {
	Put(key string, value []byte) error
	Get(key string) ([]byte, error)
	Delete(key string) error
	Keys() ([]string, error)
}

// Refresher exchanges a near-expiry session for a fresh token. Implemented
// over the activity client; injected so the manager is testable offline.
type Refresher interface {
	RefreshSession(ctx context.Context, sess models.Session, expirationSeconds string) (string, error)
}

type Config struct {
	Store     Store
	Backend   keys.Backend
	Refresher Refresher
	Logger    *slog.Logger
	Buffer    time.Duration
	Now       func() time.Time
}

// Manager owns the session registry and expiry-timer table. One manager per
// process; construct it once and inject it.
//
// mu serializes every store/registry read-modify-write; timerMu guards only
// the timer table. ScheduleExpiry (and anything it reaches, Purge included)
// must never be called with mu held.
type Manager struct {
	store     Store
	backend   keys.Backend
	refresher Refresher
	logger    *slog.Logger
	buffer    time.Duration
	now       func() time.Time

	mu sync.Mutex

	timerMu sync.Mutex
	timers  map[string]*time.Timer
}

func NewManager(cfg Config) (*Manager, error) {
	if cfg.Store == nil {
		return nil, ErrNoStore
	}
	if cfg.Backend == nil {
		return nil, ErrNoBackend
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	buffer := cfg.Buffer
	if buffer <= 0 {
		buffer = DefaultExpiryBuffer
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Manager{
		store:     cfg.Store,
		backend:   cfg.Backend,
		refresher: cfg.Refresher,
		logger:    logger,
		buffer:    buffer,
		now:       now,
		timers:    make(map[string]*time.Timer),
	}, nil
}

// Persist stores a session under sessionKey, registers it and arms its
// expiry timer. The bound backend must actually hold the session's public
// key. A non-empty refreshTTL opts the session into refresh-instead-of-clear
// at expiry. An empty sessionKey gets a generated one.
func (m *Manager) Persist(token, sessionKey, refreshTTL string) (models.Session, string, error) {
	if sessionKey == "" {
		sessionKey = "session-" + uuid.NewString()
	}
	sess, err := ParseToken(token)
	if err != nil {
		return models.Session{}, "", err
	}
	held, err := keys.Holds(m.backend, sess.PublicKey)
	if err != nil {
		return models.Session{}, "", err
	}
	if !held {
		return models.Session{}, "", fmt.Errorf("%w: %s", keys.ErrKeyNotFound, sess.PublicKey)
	}

	m.mu.Lock()
	err = m.writeSessionLocked(token, sessionKey, sess)
	if err == nil && refreshTTL != "" {
		err = m.store.Put(ttlKeyPrefix+sessionKey, []byte(refreshTTL))
	}
	if err == nil {
		m.removePendingKeyLocked(sess.PublicKey)
	}
	m.mu.Unlock()
	if err != nil {
		return models.Session{}, "", err
	}

	m.ScheduleExpiry(sessionKey, sess.Expiry)
	return sess, sessionKey, nil
}

// Update replaces the stored token for an already-registered session, as
// after a refresh, and rearms the timer. The auto-refresh TTL is retained.
func (m *Manager) Update(token, sessionKey string) (models.Session, error) {
	sess, err := ParseToken(token)
	if err != nil {
		return models.Session{}, err
	}
	held, err := keys.Holds(m.backend, sess.PublicKey)
	if err != nil {
		return models.Session{}, err
	}
	if !held {
		return models.Session{}, fmt.Errorf("%w: %s", keys.ErrKeyNotFound, sess.PublicKey)
	}

	m.mu.Lock()
	err = m.writeSessionLocked(token, sessionKey, sess)
	m.mu.Unlock()
	if err != nil {
		return models.Session{}, err
	}

	m.ScheduleExpiry(sessionKey, sess.Expiry)
	return sess, nil
}

func (m *Manager) writeSessionLocked(token, sessionKey string, sess models.Session) error {
	meta, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	if err := m.store.Put(tokenKeyPrefix+sessionKey, []byte(token)); err != nil {
		return err
	}
	if err := m.store.Put(metaKeyPrefix+sessionKey, meta); err != nil {
		return err
	}
	return m.registryAddLocked(sessionKey)
}

// Refresh runs the refresh activity for the session and stores the result.
// The network round-trip runs outside the store lock.
func (m *Manager) Refresh(ctx context.Context, sessionKey, expirationSeconds string) error {
	if m.refresher == nil {
		return ErrNoRefresher
	}
	sess, err := m.Get(sessionKey)
	if err != nil {
		return err
	}
	token, err := m.refresher.RefreshSession(ctx, sess, expirationSeconds)
	if err != nil {
		return err
	}
	_, err = m.Update(token, sessionKey)
	return err
}

// Purge removes the session, its timer and the key material bound to it.
// keepAutoRefresh retains the TTL entry for a subsequent Update.
func (m *Manager) Purge(sessionKey string, keepAutoRefresh bool) error {
	m.cancelTimer(sessionKey)
	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, err := m.getLocked(sessionKey); err == nil {
		if err := m.backend.DeleteKeyPair(sess.PublicKey); err != nil {
			m.logger.Warn("failed to delete session key material",
				"session_key", sessionKey, "error", err)
		}
	}
	if err := m.store.Delete(tokenKeyPrefix + sessionKey); err != nil {
		return err
	}
	if err := m.store.Delete(metaKeyPrefix + sessionKey); err != nil {
		return err
	}
	if !keepAutoRefresh {
		if err := m.store.Delete(ttlKeyPrefix + sessionKey); err != nil {
			return err
		}
	}
	if sel, err := m.store.Get(selectedKey); err == nil && string(sel) == sessionKey {
		_ = m.store.Delete(selectedKey)
	}
	return m.registryRemoveLocked(sessionKey)
}

// Get returns the persisted session for the key.
func (m *Manager) Get(sessionKey string) (models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getLocked(sessionKey)
}

func (m *Manager) getLocked(sessionKey string) (models.Session, error) {
	raw, err := m.store.Get(metaKeyPrefix + sessionKey)
	if err != nil {
		return models.Session{}, ErrSessionNotFound
	}
	var sess models.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return models.Session{}, fmt.Errorf("%w: corrupt session record", ErrSessionNotFound)
	}
	return sess, nil
}

// Token returns the stored JWT for the key.
func (m *Manager) Token(sessionKey string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, err := m.store.Get(tokenKeyPrefix + sessionKey)
	if err != nil {
		return "", ErrSessionNotFound
	}
	return string(raw), nil
}

// List returns the registered session keys.
func (m *Manager) List() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stringListLocked(registryKey)
}

// SetSelected marks the session the process treats as active.
func (m *Manager) SetSelected(sessionKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	reg, err := m.stringListLocked(registryKey)
	if err != nil {
		return err
	}
	if !slices.Contains(reg, sessionKey) {
		return ErrSessionNotFound
	}
	return m.store.Put(selectedKey, []byte(sessionKey))
}

// RestoreSelected rehydrates the selected session at process start: reads
// the pointer, reloads the session and rearms its timer.
func (m *Manager) RestoreSelected() (models.Session, string, error) {
	m.mu.Lock()
	raw, err := m.store.Get(selectedKey)
	if err != nil {
		m.mu.Unlock()
		return models.Session{}, "", ErrSessionNotFound
	}
	sessionKey := string(raw)
	sess, err := m.getLocked(sessionKey)
	m.mu.Unlock()
	if err != nil {
		return models.Session{}, "", err
	}
	m.ScheduleExpiry(sessionKey, sess.Expiry)
	return sess, sessionKey, nil
}

// RescheduleAll rearms timers for every registered session, dropping
// registry entries whose records have gone missing.
func (m *Manager) RescheduleAll() error {
	m.mu.Lock()
	reg, err := m.stringListLocked(registryKey)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	live := make(map[string]models.Session, len(reg))
	for _, sessionKey := range reg {
		sess, err := m.getLocked(sessionKey)
		if err != nil {
			m.logger.Warn("dropping registered session without a record", "session_key", sessionKey)
			_ = m.registryRemoveLocked(sessionKey)
			continue
		}
		live[sessionKey] = sess
	}
	m.mu.Unlock()

	for sessionKey, sess := range live {
		m.ScheduleExpiry(sessionKey, sess.Expiry)
	}
	return nil
}

// ScheduleExpiry cancels any prior timer for the key and arms a one-shot
// timer for exp - now - buffer. A session already inside the buffer is
// cleared synchronously, no timer. Callers must not hold mu.
func (m *Manager) ScheduleExpiry(sessionKey string, exp int64) {
	m.cancelTimer(sessionKey)
	remaining := time.Duration(exp-m.now().Unix()) * time.Second
	if remaining <= m.buffer {
		m.clear(sessionKey)
		return
	}
	m.timerMu.Lock()
	m.timers[sessionKey] = time.AfterFunc(remaining-m.buffer, func() {
		m.onExpiry(sessionKey)
	})
	m.timerMu.Unlock()
}

// onExpiry recomputes remaining time when the timer fires: the device may
// have been suspended past exp, in which case the session is cleared
// immediately. Otherwise a configured TTL triggers a refresh, and a refresh
// failure — or no TTL — clears the session. Failures here have no
// synchronous caller, so they are logged and absorbed.
func (m *Manager) onExpiry(sessionKey string) {
	sess, err := m.Get(sessionKey)
	if err != nil {
		m.clear(sessionKey)
		return
	}
	if time.Duration(sess.Expiry-m.now().Unix())*time.Second <= 0 {
		m.logger.Info("session expired", "session_key", sessionKey)
		m.clear(sessionKey)
		return
	}
	ttl, err := m.store.Get(ttlKeyPrefix + sessionKey)
	if err != nil || m.refresher == nil {
		m.clear(sessionKey)
		return
	}
	if err := m.Refresh(context.Background(), sessionKey, string(ttl)); err != nil {
		m.logger.Warn("session auto-refresh failed", "session_key", sessionKey, "error", err)
		m.clear(sessionKey)
	}
}

func (m *Manager) clear(sessionKey string) {
	if err := m.Purge(sessionKey, false); err != nil {
		m.logger.Warn("failed to clear session", "session_key", sessionKey, "error", err)
	}
}

func (m *Manager) cancelTimer(sessionKey string) {
	m.timerMu.Lock()
	defer m.timerMu.Unlock()
	if t, ok := m.timers[sessionKey]; ok {
		t.Stop()
		delete(m.timers, sessionKey)
	}
}

// MarkPendingKey records a backend key created ahead of a login so it can be
// reaped if the login never completes.
func (m *Manager) MarkPendingKey(publicKeyHex string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	pending, _ := m.stringListLocked(pendingKey)
	if slices.Contains(pending, publicKeyHex) {
		return nil
	}
	return m.putStringListLocked(pendingKey, append(pending, publicKeyHex))
}

// PendingKeys lists keys awaiting a session binding.
func (m *Manager) PendingKeys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	pending, _ := m.stringListLocked(pendingKey)
	return pending
}

func (m *Manager) removePendingKeyLocked(publicKeyHex string) {
	pending, err := m.stringListLocked(pendingKey)
	if err != nil {
		return
	}
	filtered := slices.DeleteFunc(pending, func(k string) bool { return k == publicKeyHex })
	_ = m.putStringListLocked(pendingKey, filtered)
}

func (m *Manager) registryAddLocked(sessionKey string) error {
	reg, _ := m.stringListLocked(registryKey)
	if slices.Contains(reg, sessionKey) {
		return nil
	}
	return m.putStringListLocked(registryKey, append(reg, sessionKey))
}

func (m *Manager) registryRemoveLocked(sessionKey string) error {
	reg, err := m.stringListLocked(registryKey)
	if err != nil {
		return nil
	}
	return m.putStringListLocked(registryKey, slices.DeleteFunc(reg, func(k string) bool { return k == sessionKey }))
}

func (m *Manager) stringListLocked(key string) ([]string, error) {
	raw, err := m.store.Get(key)
	if err != nil {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("corrupt list at %s: %w", key, err)
	}
	return out, nil
}

func (m *Manager) putStringListLocked(key string, values []string) error {
	raw, err := json.Marshal(values)
	if err != nil {
		return err
	}
	return m.store.Put(key, raw)
}
