package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"portfolio-chat/internal/pkg/logger"
	"portfolio-chat/pkg/store"

	"github.com/google/uuid"
)

const DefaultHealthTimeout = 5 * time.Second

// Pinger checks the backend's system health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthResult struct {
	Healthy bool
	Error   string
}

// Option configures a Manager.
type Option func(*Manager)

// WithHealthTimeout caps CheckHealth; it never exceeds DefaultHealthTimeout.
func WithHealthTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 && d < DefaultHealthTimeout {
			m.healthTimeout = d
		}
	}
}

// WithIDGenerator replaces uuid.NewString.
func WithIDGenerator(fn func() string) Option {
	return func(m *Manager) {
		if fn != nil {
			m.newID = fn
		}
	}
}

// Manager owns the single active conversation id and keeps it in durable
// storage so it survives restarts.
type Manager struct {
	store         store.Store
	pinger        Pinger
	logger        logger.ILogger
	healthTimeout time.Duration
	newID         func() string

	mu        sync.Mutex
	sessionID string
}

func NewManager(s store.Store, pinger Pinger, log logger.ILogger, opts ...Option) *Manager {
	m := &Manager{
		store:         s,
		pinger:        pinger,
		logger:        logger.OrNop(log),
		healthTimeout: DefaultHealthTimeout,
		newID:         uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Init loads a stored id as-is, or creates and persists a new one.
func (m *Manager) Init(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.initLocked(ctx)
}

func (m *Manager) initLocked(ctx context.Context) (string, error) {
	if m.sessionID != "" {
		return m.sessionID, nil
	}

	stored, found, err := m.store.Get(ctx, store.KeySessionID)
	if err != nil {
		return "", fmt.Errorf("load session id: %w", err)
	}
	if found && stored != "" {
		m.sessionID = stored
		m.logger.Debug("SESSION", "Reusing stored session", map[string]interface{}{"session_id": stored})
		return stored, nil
	}

	id := m.newID()
	if err := m.store.Set(ctx, store.KeySessionID, id); err != nil {
		return "", fmt.Errorf("persist session id: %w", err)
	}
	m.sessionID = id
	m.logger.Info("SESSION", "Created new session", map[string]interface{}{"session_id": id})
	return id, nil
}

// GetSessionID returns the active id, initialising lazily.
func (m *Manager) GetSessionID(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.initLocked(ctx)
}

// ResetSession replaces the active id with a fresh one and persists it.
func (m *Manager) ResetSession(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.newID()
	if err := m.store.Set(ctx, store.KeySessionID, id); err != nil {
		return "", fmt.Errorf("persist session id: %w", err)
	}

	previous := m.sessionID
	m.sessionID = id
	m.logger.Info("SESSION", "Session reset", map[string]interface{}{
		"previous_session_id": previous,
		"session_id":          id,
	})
	return id, nil
}

// CheckHealth never returns an error; failures are reported in the result.
func (m *Manager) CheckHealth(ctx context.Context) HealthResult {
	if m.pinger == nil {
		return HealthResult{Healthy: false, Error: "no health endpoint configured"}
	}

	ctx, cancel := context.WithTimeout(ctx, m.healthTimeout)
	defer cancel()

	if err := m.pinger.Ping(ctx); err != nil {
		m.logger.Warn("SESSION", "Backend health check failed", map[string]interface{}{"error": err.Error()})
		return HealthResult{Healthy: false, Error: err.Error()}
	}
	return HealthResult{Healthy: true}
}
