package menu

import (
	"context"
	"sync"
	"time"

	"hermes/pkg/errors"
	"hermes/pkg/logger"
)

// Session is one live instance of a menu, addressed by its context key or a
// generated id. Both menu kinds implement it; the manager and router only
// speak this contract.
type Session interface {
	ID() string
	Definition() *Definition
	Params() Params
	CreatorID() string
	Mode() ShareMode
	Ephemeral() bool

	// Data returns the mutable session data produced by OnSessionStart.
	Data() interface{}

	// SetData replaces the session data and invalidates cached renders.
	SetData(data interface{})

	CanInteract(userID string) bool
	HasUser(userID string) bool
	AttachUser(userID, channelID string) *UserSession
	UserSessionFor(userID string) (*UserSession, bool)
	Users() []*UserSession

	// TrackMessage records where future updates for this viewer are pushed.
	TrackMessage(userID string, ic *Interaction)

	// Action looks up a registered user action by name.
	Action(name string) (*Action, bool)

	// Render builds the initial render for the creator.
	Render(ctx context.Context) (*Payload, error)

	// RenderForUser builds or returns the cached render at the viewer's
	// current position.
	RenderForUser(ctx context.Context, userID string) (*Payload, error)

	// Refetch re-runs the fetch hook, invalidates cached renders and
	// rebroadcasts to every attached viewer.
	Refetch(ctx context.Context, refreshItems bool) error

	// Broadcast pushes the current render to every attached viewer, pruning
	// viewers whose delivery targets are gone.
	Broadcast(ctx context.Context) error

	// Finalize applies the end-of-session message policy (best effort).
	Finalize(ctx context.Context) error

	// Destroy runs the OnSessionEnd hook. Safe to call more than once.
	Destroy(ctx context.Context, reason string) error

	// End-of-session policies, read-only.
	DeleteOnEnd() bool
	UpdateOnEnd() bool
	EndRender() EndRenderMode
}

// UserSession is one viewer's attachment to a session: their page cursor plus
// the coordinates future updates are routed through.
type UserSession struct {
	UserID    string
	ChannelID string

	// MessageID is the viewer's menu message, OriginalMessage for ephemeral
	// replies, or empty while not yet known.
	MessageID string

	// Ephemeral routing coordinates. Tokens expire; stale entries are pruned
	// lazily on the next push.
	InteractionID    string
	InteractionToken string
	TokenExpiresAt   time.Time

	CurrentPage int
	Ephemeral   bool
	CreatedAt   time.Time
}

// baseSession carries the behavior shared by both menu kinds: viewer
// bookkeeping, the action registry, action-id rewriting and per-viewer update
// delivery.
type baseSession struct {
	id        string
	def       *Definition
	cfg       Config
	params    Params
	opts      SessionOptions
	creatorID string
	color     int

	messenger Messenger
	log       *logger.Logger
	stats     Stats

	mu        sync.RWMutex
	data      interface{}
	users     map[string]*UserSession
	destroyed bool
}

func newBaseSession(id string, def *Definition, cfg Config, params Params, opts SessionOptions, creatorID string, messenger Messenger, stats Stats, log *logger.Logger) (*baseSession, error) {
	// Reserved names are also checked at registration; construction refuses
	// them again so a session can never shadow navigation.
	for name, action := range def.Actions {
		if IsReservedAction(name) {
			return nil, errors.Wrapf(errors.ErrReservedAction, "menu %q: action %q", def.Name, name)
		}
		if action == nil || action.Handler == nil {
			return nil, errors.Wrapf(errors.ErrConfiguration, "menu %q: action %q has no handler", def.Name, name)
		}
	}

	color := def.Color
	if color == 0 {
		color = cfg.DefaultColor
	}
	if stats == nil {
		stats = NopStats{}
	}

	return &baseSession{
		id:        id,
		def:       def,
		cfg:       cfg,
		params:    params,
		opts:      opts,
		creatorID: creatorID,
		color:     color,
		messenger: messenger,
		log:       log.With("session_id", id, "menu", def.Name),
		stats:     stats,
		users:     make(map[string]*UserSession),
	}, nil
}

// initialize runs the one-time OnSessionStart hook. It must complete before
// the session is stored in the manager's table.
func (s *baseSession) initialize(ctx context.Context) error {
	if s.def.OnSessionStart == nil {
		return nil
	}
	data, err := s.def.OnSessionStart(ctx, &StartContext{
		SessionID: s.id,
		Params:    s.params,
		CreatorID: s.creatorID,
	})
	if err != nil {
		return errors.Wrapf(err, "menu %q: OnSessionStart failed", s.def.Name)
	}
	s.mu.Lock()
	s.data = data
	s.mu.Unlock()
	return nil
}

func (s *baseSession) ID() string              { return s.id }
func (s *baseSession) Definition() *Definition { return s.def }
func (s *baseSession) Params() Params          { return s.params }
func (s *baseSession) CreatorID() string       { return s.creatorID }
func (s *baseSession) Mode() ShareMode         { return s.opts.mode() }
func (s *baseSession) Ephemeral() bool         { return s.opts.Ephemeral }
func (s *baseSession) DeleteOnEnd() bool       { return s.opts.DeleteOnEnd }
func (s *baseSession) UpdateOnEnd() bool       { return s.opts.UpdateOnEnd }
func (s *baseSession) EndRender() EndRenderMode {
	return s.opts.endRender()
}

func (s *baseSession) Data() interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data
}

func (s *baseSession) setData(data interface{}) {
	s.mu.Lock()
	s.data = data
	s.mu.Unlock()
}

// CanInteract enforces the sharing mode: shared sessions require an attached
// viewer entry, private and locked sessions restrict actions to the creator.
func (s *baseSession) CanInteract(userID string) bool {
	switch s.opts.mode() {
	case ModeShared:
		return s.HasUser(userID)
	default:
		return userID == s.creatorID
	}
}

func (s *baseSession) HasUser(userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.users[userID]
	return ok
}

// AttachUser adds a viewer entry with the page cursor reset to zero.
// Attaching an already-attached user returns the existing entry unchanged.
func (s *baseSession) AttachUser(userID, channelID string) *UserSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	if us, ok := s.users[userID]; ok {
		return us
	}
	us := &UserSession{
		UserID:    userID,
		ChannelID: channelID,
		Ephemeral: s.opts.Ephemeral,
		CreatedAt: time.Now(),
	}
	s.users[userID] = us
	return us
}

func (s *baseSession) UserSessionFor(userID string) (*UserSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	us, ok := s.users[userID]
	return us, ok
}

func (s *baseSession) Users() []*UserSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]*UserSession, 0, len(s.users))
	for _, us := range s.users {
		users = append(users, us)
	}
	return users
}

func (s *baseSession) removeUser(userID string) {
	s.mu.Lock()
	delete(s.users, userID)
	s.mu.Unlock()
}

// TrackMessage records the viewer's update coordinates after the surface first
// responded: the original-message sentinel plus token for ephemeral replies,
// the resolved message and channel id for persistent ones.
func (s *baseSession) TrackMessage(userID string, ic *Interaction) {
	if ic == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	us, ok := s.users[userID]
	if !ok {
		return
	}

	if us.Ephemeral || ic.Ephemeral {
		us.Ephemeral = true
		us.MessageID = OriginalMessage
		if ic.ID != "" {
			us.InteractionID = ic.ID
		}
		if ic.Token != "" {
			us.InteractionToken = ic.Token
			us.TokenExpiresAt = time.Now().Add(InteractionTokenTTL)
		}
	} else {
		if ic.MessageID != "" {
			us.MessageID = ic.MessageID
		}
	}
	if ic.ChannelID != "" {
		us.ChannelID = ic.ChannelID
	}
}

func (s *baseSession) Action(name string) (*Action, bool) {
	action, ok := s.def.Actions[name]
	return action, ok
}

// pushTo delivers a payload to one viewer. Delivery targets that turned stale
// (expired token, deleted message) prune the viewer entry and do not fail the
// caller; unrecognized delivery errors propagate.
func (s *baseSession) pushTo(ctx context.Context, us *UserSession, payload *Payload) error {
	if us.Ephemeral {
		if us.InteractionToken == "" {
			return nil
		}
		if !us.TokenExpiresAt.IsZero() && time.Now().After(us.TokenExpiresAt) {
			s.log.Debugw("Pruning viewer with expired interaction token", "user_id", us.UserID)
			s.removeUser(us.UserID)
			return nil
		}
		err := s.messenger.EditEphemeral(ctx, us.InteractionToken, payload)
		if errors.Is(err, errors.ErrTokenExpired) || errors.Is(err, errors.ErrMessageGone) {
			s.log.Debugw("Pruning viewer after stale ephemeral delivery", "user_id", us.UserID, "error", err)
			s.removeUser(us.UserID)
			return nil
		}
		return err
	}

	if us.MessageID == "" || us.MessageID == OriginalMessage {
		// Update coordinates not known yet; nothing to edit.
		return nil
	}
	err := s.messenger.EditMessage(ctx, us.ChannelID, us.MessageID, payload)
	if errors.Is(err, errors.ErrMessageGone) {
		s.log.Debugw("Pruning viewer whose message is gone", "user_id", us.UserID)
		s.removeUser(us.UserID)
		return nil
	}
	return err
}

// broadcast renders for every attached viewer and pushes the result. Stale
// viewers are pruned along the way; the broadcast continues for the rest.
func (s *baseSession) broadcast(ctx context.Context, render func(ctx context.Context, userID string) (*Payload, error)) error {
	merr := &errors.MultiError{}
	for _, us := range s.Users() {
		payload, err := render(ctx, us.UserID)
		if err != nil {
			merr.Add(errors.Wrapf(err, "render for user %s", us.UserID))
			continue
		}
		if err := s.pushTo(ctx, us, payload); err != nil {
			merr.Add(errors.Wrapf(err, "push to user %s", us.UserID))
		}
	}
	return merr.ToError()
}

// finalize applies the end-of-session message policy. Failures are logged,
// never propagated: teardown must not be blocked by delivery problems.
func (s *baseSession) finalize(ctx context.Context, render func(ctx context.Context, userID string) (*Payload, error)) error {
	switch {
	case s.opts.DeleteOnEnd:
		for _, us := range s.Users() {
			if us.Ephemeral || us.MessageID == "" || us.MessageID == OriginalMessage {
				continue
			}
			if err := s.messenger.DeleteMessage(ctx, us.ChannelID, us.MessageID); err != nil {
				s.log.Debugw("Failed to delete menu message on end", "user_id", us.UserID, "error", err)
			}
		}
	case s.opts.UpdateOnEnd:
		for _, us := range s.Users() {
			payload, err := render(ctx, us.UserID)
			if err != nil {
				s.log.Debugw("Failed to render final payload", "user_id", us.UserID, "error", err)
				continue
			}
			switch s.opts.endRender() {
			case EndRenderDisable:
				payload = payload.Clone()
				payload.DisableComponents()
			case EndRenderStrip:
				payload = payload.Clone()
				payload.StripComponents()
			}
			if err := s.pushTo(ctx, us, payload); err != nil {
				s.log.Debugw("Failed to push final payload", "user_id", us.UserID, "error", err)
			}
		}
	}
	return nil
}

// Destroy runs OnSessionEnd exactly once; later calls are no-ops so a firing
// TTL timer and an explicit end cannot double-run teardown.
func (s *baseSession) Destroy(ctx context.Context, reason string) error {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return nil
	}
	s.destroyed = true
	data := s.data
	s.mu.Unlock()

	if s.def.OnSessionEnd == nil {
		return nil
	}
	err := s.def.OnSessionEnd(ctx, &EndContext{
		SessionID:   s.id,
		Params:      s.params,
		SessionData: data,
		Reason:      reason,
	})
	return errors.Wrapf(err, "menu %q: OnSessionEnd failed", s.def.Name)
}

// renderContext builds the viewer-agnostic context handed to render hooks.
func (s *baseSession) renderContext(page int) *RenderContext {
	return &RenderContext{
		SessionID:   s.id,
		Params:      s.params,
		SessionData: s.Data(),
		Page:        page,
	}
}

// rewriteFragment rewrites raw action identifiers inside a fragment into their
// canonical session-scoped form. itemIndex is the global index for item
// fragments, -1 otherwise.
func (s *baseSession) rewriteFragment(f *Fragment, itemIndex int) {
	if f == nil {
		return
	}
	for i := range f.Components {
		for j := range f.Components[i] {
			s.rewriteComponent(&f.Components[i][j], itemIndex)
		}
	}
}

// rewriteComponent is recursive: fragments may nest interactive elements
// inside containers.
func (s *baseSession) rewriteComponent(c *Component, itemIndex int) {
	if c.CustomID != "" {
		if action, ok := s.def.Actions[c.CustomID]; ok {
			if itemIndex >= 0 && action.PerItem {
				c.CustomID = EncodeItemAction(s.cfg.ActionPrefix, s.id, c.CustomID, itemIndex)
			} else {
				c.CustomID = EncodeAction(s.cfg.ActionPrefix, s.id, c.CustomID)
			}
		}
	}
	for i := range c.Children {
		s.rewriteComponent(&c.Children[i], itemIndex)
	}
}
