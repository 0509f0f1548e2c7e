package menu

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"hermes/pkg/errors"
	"hermes/pkg/logger"
)

// Router dispatches component interactions to live sessions. Interactions it
// does not claim (foreign prefix) pass through untouched; interactions it
// claims but cannot resolve (stale session, malformed id, rate limited) are
// swallowed so the caller acknowledges them silently.
type Router struct {
	cfg     Config
	manager *Manager
	log     *logger.Logger
	stats   Stats

	limitMu  sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewRouter creates an interaction router on top of a session manager.
func NewRouter(cfg Config, manager *Manager, log *logger.Logger) *Router {
	return &Router{
		cfg:      cfg.WithDefaults(),
		manager:  manager,
		log:      log.With("component", "action_router"),
		stats:    NopStats{},
		limiters: make(map[string]*rate.Limiter),
	}
}

// SetStats installs an observability sink.
func (r *Router) SetStats(stats Stats) {
	if stats != nil {
		r.stats = stats
	}
}

// Route handles one interaction. handled=false means the custom id belongs to
// another subsystem. handled=true with a nil payload means the interaction was
// consumed without a re-render (dropped, boundary no-op, or a handler that
// pushed its own updates). Handler errors propagate to the caller.
func (r *Router) Route(ctx context.Context, ic *Interaction) (*Payload, bool, error) {
	if !strings.HasPrefix(ic.CustomID, r.cfg.ActionPrefix+actionDelimiter) {
		return nil, false, nil
	}

	if !r.allow(ic.UserID) {
		r.log.Debugw("Interaction rate limited", "user_id", ic.UserID, "custom_id", ic.CustomID)
		return nil, true, nil
	}

	aid, err := DecodeActionID(ic.CustomID)
	if err != nil {
		r.log.Warnw("Dropping malformed action id", "custom_id", ic.CustomID, "error", err)
		return nil, true, nil
	}

	session, err := r.manager.GetSession(aid.SessionID)
	if err != nil {
		// Stale component from an expired or ended session.
		r.log.Debugw("Interaction for unknown session", "session_id", aid.SessionID, "custom_id", ic.CustomID)
		return nil, true, nil
	}

	if session.HasUser(ic.UserID) {
		session.TrackMessage(ic.UserID, ic)
	}

	if !session.CanInteract(ic.UserID) {
		r.log.Debugw("Interaction denied",
			"session_id", aid.SessionID,
			"user_id", ic.UserID,
			"mode", session.Mode(),
		)
		r.stats.ActionHandled(session.Definition().Name, aid.Name, "denied")
		return nil, true, nil
	}

	var payload *Payload
	if aid.Navigation {
		payload, err = r.navigate(ctx, session, aid, ic)
	} else {
		payload, err = r.dispatch(ctx, session, aid, ic)
	}

	status := "ok"
	if err != nil {
		status = "error"
	}
	r.stats.ActionHandled(session.Definition().Name, aid.Name, status)
	return payload, true, err
}

// navigate resolves the built-in paging actions against a pagination session.
func (r *Router) navigate(ctx context.Context, session Session, aid ActionID, ic *Interaction) (*Payload, error) {
	ps, ok := session.(*PaginationSession)
	if !ok {
		r.log.Warnw("Navigation action on non-paginated session", "session_id", aid.SessionID, "action", aid.Name)
		return nil, nil
	}

	switch aid.Name {
	case NavFirst:
		return ps.FirstPage(ctx, ic.UserID)
	case NavPrevious:
		payload, _, err := ps.PreviousPage(ctx, ic.UserID)
		return payload, err
	case NavNext:
		payload, _, err := ps.NextPage(ctx, ic.UserID)
		return payload, err
	case NavLast:
		return ps.LastPage(ctx, ic.UserID)
	case NavGoto:
		if len(ic.Values) == 0 {
			return nil, nil
		}
		n, err := strconv.Atoi(ic.Values[0])
		if err != nil {
			r.log.Warnw("Dropping goto with non-numeric page", "session_id", aid.SessionID, "value", ic.Values[0])
			return nil, nil
		}
		return ps.GoToPage(ctx, ic.UserID, n)
	case NavIndicator:
		// The page indicator is rendered disabled; a click is inert.
		return nil, nil
	default:
		r.log.Warnw("Unknown navigation action", "session_id", aid.SessionID, "action", aid.Name)
		return nil, nil
	}
}

// dispatch runs a user-defined action handler and re-renders for the acting
// user on success.
func (r *Router) dispatch(ctx context.Context, session Session, aid ActionID, ic *Interaction) (*Payload, error) {
	def := session.Definition()
	action, ok := def.Actions[aid.Name]
	if !ok {
		r.log.Warnw("Unknown action", "session_id", aid.SessionID, "menu", def.Name, "action", aid.Name)
		return nil, nil
	}

	ac := &ActionContext{
		Interaction: ic,
		SessionID:   session.ID(),
		Params:      session.Params(),
		SessionData: session.Data(),
		UserID:      ic.UserID,
		ItemIndex:   -1,
		Session:     session,
	}

	if action.PerItem {
		if aid.ItemIndex < 0 {
			return nil, errors.Wrapf(errors.ErrInvalidInput, "action %q requires an item index", aid.Name)
		}
		ps, ok := session.(*PaginationSession)
		if !ok {
			return nil, errors.Wrapf(errors.ErrConfiguration, "menu %q: per-item action %q on a non-paginated menu", def.Name, aid.Name)
		}
		item, ok := ps.Item(aid.ItemIndex)
		if !ok {
			// Index from a stale render that no longer resolves.
			r.log.Warnw("Dropping action with out-of-range item index",
				"session_id", aid.SessionID,
				"action", aid.Name,
				"item_index", aid.ItemIndex,
			)
			return nil, nil
		}
		ac.Item = item
		ac.ItemIndex = aid.ItemIndex
	}

	if err := action.Handler(ctx, ac); err != nil {
		return nil, errors.Wrapf(err, "menu %q: action %q failed", def.Name, aid.Name)
	}

	return session.RenderForUser(ctx, ic.UserID)
}

// allow applies the per-user interaction rate limit.
func (r *Router) allow(userID string) bool {
	if r.cfg.ActionsPerSecond <= 0 {
		return true
	}

	r.limitMu.Lock()
	limiter, ok := r.limiters[userID]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(r.cfg.ActionsPerSecond), r.cfg.ActionBurst)
		r.limiters[userID] = limiter
	}
	r.limitMu.Unlock()

	return limiter.Allow()
}
