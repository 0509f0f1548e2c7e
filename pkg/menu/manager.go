package menu

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"hermes/pkg/errors"
	"hermes/pkg/logger"
)

// Manager owns the session table: creation with sharing-mode resolution and
// context-key reuse, TTL timers, and teardown.
type Manager struct {
	cfg       Config
	registry  *Registry
	messenger Messenger
	log       *logger.Logger
	stats     Stats

	mu       sync.RWMutex
	sessions map[string]Session
	timers   map[string]*time.Timer
}

// CreateRequest describes one session creation trigger.
type CreateRequest struct {
	MenuName  string
	UserID    string
	ChannelID string
	Params    Params

	// Overrides optionally override the definition's session options.
	Overrides *SessionOverrides
}

// NewManager creates a session manager.
func NewManager(cfg Config, registry *Registry, messenger Messenger, log *logger.Logger) *Manager {
	return &Manager{
		cfg:       cfg.WithDefaults(),
		registry:  registry,
		messenger: messenger,
		log:       log.With("component", "session_manager"),
		stats:     NopStats{},
		sessions:  make(map[string]Session),
		timers:    make(map[string]*time.Timer),
	}
}

// SetStats installs an observability sink. Must be called before sessions are
// created.
func (m *Manager) SetStats(stats Stats) {
	if stats != nil {
		m.stats = stats
	}
}

// CreateSession resolves the definition and sharing mode, derives the context
// key, and either attaches the triggering user to an existing session or
// constructs, initializes and stores a new one (arming the TTL timer when
// configured).
func (m *Manager) CreateSession(ctx context.Context, req CreateRequest) (Session, error) {
	def, err := m.registry.Get(req.MenuName)
	if err != nil {
		return nil, err
	}
	opts := def.Options.apply(req.Overrides)

	key, err := m.contextKey(ctx, def, req.Params)
	if err != nil {
		return nil, err
	}

	// Fast path: reuse an existing session under the same context key.
	if existing, ok := m.lookup(key); ok {
		return m.attach(existing, req)
	}

	session, err := m.construct(key, def, opts, req)
	if err != nil {
		return nil, err
	}

	// OnSessionStart runs before the session becomes visible in the table.
	if err := session.(initializer).initialize(ctx); err != nil {
		return nil, err
	}
	session.AttachUser(req.UserID, req.ChannelID)

	m.mu.Lock()
	if raced, ok := m.sessions[key]; ok {
		// Another trigger stored a session for this key while we were
		// initializing; ours is discarded in favor of the stored one.
		m.mu.Unlock()
		return m.attach(raced, req)
	}
	m.sessions[key] = session
	if opts.TTL > 0 {
		m.timers[key] = time.AfterFunc(opts.TTL, func() {
			m.expire(key)
		})
	}
	m.mu.Unlock()

	m.stats.SessionCreated(def.Name)
	m.log.Infow("Created session",
		"menu", def.Name,
		"session_id", key,
		"mode", opts.mode(),
		"creator", req.UserID,
		"ttl", opts.TTL,
	)
	return session, nil
}

// Open creates or reuses a session and renders it for the triggering user.
func (m *Manager) Open(ctx context.Context, req CreateRequest) (Session, *Payload, error) {
	session, err := m.CreateSession(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	payload, err := session.RenderForUser(ctx, req.UserID)
	if err != nil {
		return nil, nil, err
	}
	return session, payload, nil
}

// EndSession cancels the TTL timer, runs teardown and removes the session.
// Unknown ids are a warning, not an error, which makes the call safe against
// a timer firing concurrently with an explicit end.
func (m *Manager) EndSession(ctx context.Context, id string) error {
	return m.endSession(ctx, id, "explicit")
}

// GetSession returns a live session by id.
func (m *Manager) GetSession(id string) (Session, error) {
	if s, ok := m.lookup(id); ok {
		return s, nil
	}
	return nil, errors.Wrapf(errors.ErrNotFound, "session %q", id)
}

// HasSession reports whether a session is live.
func (m *Manager) HasSession(id string) bool {
	_, ok := m.lookup(id)
	return ok
}

// Sessions returns all live sessions.
func (m *Manager) Sessions() []Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sessions := make([]Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	return sessions
}

// SessionCount returns the number of live sessions.
func (m *Manager) SessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Shutdown ends every live session.
func (m *Manager) Shutdown(ctx context.Context) {
	for _, s := range m.Sessions() {
		if err := m.endSession(ctx, s.ID(), "shutdown"); err != nil {
			m.log.Warnw("Failed to end session during shutdown", "session_id", s.ID(), "error", err)
		}
	}
}

// initializer is satisfied by both concrete session types.
type initializer interface {
	initialize(ctx context.Context) error
}

func (m *Manager) lookup(id string) (Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// contextKey derives the session key: the definition's deterministic context
// key when it declares one, a generated token otherwise. CreateKey may
// perform I/O, so it runs outside the manager lock.
func (m *Manager) contextKey(ctx context.Context, def *Definition, params Params) (string, error) {
	if def.CreateKey == nil {
		return uuid.NewString(), nil
	}
	key, err := def.CreateKey(ctx, params)
	if err != nil {
		return "", errors.Wrapf(err, "menu %q: CreateKey failed", def.Name)
	}
	if !validSessionKey(key) {
		return "", errors.Wrapf(errors.ErrConfiguration, "menu %q: context key %q contains reserved characters", def.Name, key)
	}
	return key, nil
}

// attach applies the sharing-mode reuse rules to an existing session.
func (m *Manager) attach(s Session, req CreateRequest) (Session, error) {
	switch s.Mode() {
	case ModePrivate:
		if req.UserID != s.CreatorID() {
			return nil, errors.Wrapf(errors.ErrMenuInUse, "session %q", s.ID())
		}
		return s, nil
	default:
		// shared and locked both accept additional viewers; locked viewers
		// receive broadcasts but CanInteract keeps them read-only.
		if s.HasUser(req.UserID) {
			return s, nil
		}
		s.AttachUser(req.UserID, req.ChannelID)
		m.log.Debugw("Attached viewer to session", "session_id", s.ID(), "user_id", req.UserID)
		return s, nil
	}
}

// construct dispatches on the definition's variant tag.
func (m *Manager) construct(key string, def *Definition, opts SessionOptions, req CreateRequest) (Session, error) {
	switch def.Kind {
	case KindPagination:
		return newPaginationSession(key, def, m.cfg, req.Params, opts, req.UserID, m.messenger, m.stats, m.log)
	case KindSingle:
		return newSingleSession(key, def, m.cfg, req.Params, opts, req.UserID, m.messenger, m.stats, m.log)
	default:
		return nil, errors.Wrapf(errors.ErrConfiguration, "menu %q: unknown kind %q", def.Name, def.Kind)
	}
}

func (m *Manager) expire(id string) {
	if err := m.endSession(context.Background(), id, "ttl"); err != nil {
		m.log.Warnw("TTL teardown failed", "session_id", id, "error", err)
	}
}

// endSession removes the session from the table first, so a concurrent second
// invocation observes "not found" instead of double-running teardown.
func (m *Manager) endSession(ctx context.Context, id, reason string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		m.log.Warnw("EndSession for unknown session", "session_id", id, "reason", reason)
		return nil
	}
	delete(m.sessions, id)
	if timer, ok := m.timers[id]; ok {
		timer.Stop()
		delete(m.timers, id)
	}
	m.mu.Unlock()

	if err := s.Finalize(ctx); err != nil {
		m.log.Warnw("Session finalize failed", "session_id", id, "error", err)
	}

	err := s.Destroy(ctx, reason)

	m.stats.SessionEnded(s.Definition().Name, reason)
	m.log.Infow("Ended session", "session_id", id, "menu", s.Definition().Name, "reason", reason)
	return err
}
