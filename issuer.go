package authgate

import (
	"context"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// ErrSessionNotFound is returned by SessionStore implementations when the
// identifier maps to nothing.
var ErrSessionNotFound = goerrors.New("session not found", goerrors.CategoryNotFound).
	WithCode(goerrors.CodeNotFound)

const (
	tokenBytes   = 32
	sessionBytes = 32
)

// MintToken mints the long-lived opaque API token set once at account
// creation. Drawn from a high-entropy random source, never a counter.
func MintToken() (string, error) {
	return RandomSecret(tokenBytes)
}

// Issuer mints and invalidates the ephemeral session identifiers handed out
// after successful authentication. Expiry and rotation are the store's
// concern.
type Issuer struct {
	store  SessionStore
	config Config
	logger Logger
}

// NewIssuer returns an Issuer over the given session store.
func NewIssuer(store SessionStore, config Config) *Issuer {
	return &Issuer{
		store:  store,
		config: config,
		logger: defLogger{},
	}
}

func (i *Issuer) WithLogger(logger Logger) *Issuer {
	i.logger = logger
	return i
}

// MintSession creates a fresh session identifier bound to the user id.
func (i *Issuer) MintSession(ctx context.Context, userID string) (string, error) {
	sessionID, err := RandomSecret(sessionBytes)
	if err != nil {
		return "", err
	}

	if err := i.store.Save(ctx, sessionID, userID, i.config.GetSessionTTL()); err != nil {
		return "", UpstreamError(err, "failed to persist session")
	}

	return sessionID, nil
}

// Invalidate destroys the session mapping. Unknown identifiers are a no-op.
func (i *Issuer) Invalidate(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}

	if err := i.store.Delete(ctx, sessionID); err != nil {
		return UpstreamError(err, "failed to invalidate session")
	}
	return nil
}

// MemorySessionStore is an in-process SessionStore for tests and embedded
// setups. Entries past their TTL are dropped lazily on read.
type MemorySessionStore struct {
	mu      sync.RWMutex
	entries map[string]memorySession
}

type memorySession struct {
	userID    string
	expiresAt time.Time
}

// NewMemorySessionStore returns an empty in-memory store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{entries: map[string]memorySession{}}
}

func (m *MemorySessionStore) Save(ctx context.Context, sessionID, userID string, ttl time.Duration) error {
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[sessionID] = memorySession{userID: userID, expiresAt: expiresAt}
	return nil
}

func (m *MemorySessionStore) Get(ctx context.Context, sessionID string) (string, error) {
	m.mu.RLock()
	entry, ok := m.entries[sessionID]
	m.mu.RUnlock()

	if !ok {
		return "", ErrSessionNotFound
	}

	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		m.mu.Lock()
		delete(m.entries, sessionID)
		m.mu.Unlock()
		return "", ErrSessionNotFound
	}

	return entry.userID, nil
}

func (m *MemorySessionStore) Delete(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, sessionID)
	return nil
}

var _ SessionStore = (*MemorySessionStore)(nil)
