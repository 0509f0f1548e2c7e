package menu

import (
	"context"

	"hermes/pkg/errors"
	"hermes/pkg/logger"
)

// SingleSession renders one fetched item. There is no paging state; the whole
// surface is one cached payload, invalidated on refetch or data mutation.
type SingleSession struct {
	*baseSession

	// guarded by baseSession.mu
	item    interface{}
	fetched bool
	cached  *Payload
}

var _ Session = (*SingleSession)(nil)

func newSingleSession(id string, def *Definition, cfg Config, params Params, opts SessionOptions, creatorID string, messenger Messenger, stats Stats, log *logger.Logger) (*SingleSession, error) {
	base, err := newBaseSession(id, def, cfg, params, opts, creatorID, messenger, stats, log)
	if err != nil {
		return nil, err
	}
	return &SingleSession{baseSession: base}, nil
}

// SetData replaces session data and drops the cached payload.
func (s *SingleSession) SetData(data interface{}) {
	s.setData(data)
	s.mu.Lock()
	s.cached = nil
	s.mu.Unlock()
}

// Item returns the fetched item.
func (s *SingleSession) Item() (interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.item, s.fetched
}

// Render builds the initial render for the creator.
func (s *SingleSession) Render(ctx context.Context) (*Payload, error) {
	return s.RenderForUser(ctx, s.creatorID)
}

// RenderForUser builds or returns the cached payload. Single menus render the
// same surface for every viewer.
func (s *SingleSession) RenderForUser(ctx context.Context, _ string) (*Payload, error) {
	if err := s.ensureFetched(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	cached := s.cached
	item := s.item
	s.mu.RUnlock()
	if cached != nil {
		return cached, nil
	}

	payload, err := s.build(ctx, item)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.cached = payload
	s.mu.Unlock()
	return payload, nil
}

// Refetch re-runs FetchOne when refreshItems is set, invalidates the cached
// payload and rebroadcasts. A failing fetch leaves previous state intact.
func (s *SingleSession) Refetch(ctx context.Context, refreshItems bool) error {
	if refreshItems {
		item, err := s.def.FetchOne(ctx, s.params)
		if err != nil {
			return errors.Wrapf(err, "menu %q: fetch failed", s.def.Name)
		}
		s.mu.Lock()
		s.item = item
		s.fetched = true
		s.mu.Unlock()
	}

	s.mu.Lock()
	s.cached = nil
	s.mu.Unlock()

	return s.Broadcast(ctx)
}

// Broadcast pushes the current render to every attached viewer.
func (s *SingleSession) Broadcast(ctx context.Context) error {
	return s.broadcast(ctx, s.RenderForUser)
}

// Finalize applies the end-of-session message policy.
func (s *SingleSession) Finalize(ctx context.Context) error {
	return s.finalize(ctx, s.RenderForUser)
}

func (s *SingleSession) ensureFetched(ctx context.Context) error {
	s.mu.RLock()
	fetched := s.fetched
	s.mu.RUnlock()
	if fetched {
		return nil
	}

	item, err := s.def.FetchOne(ctx, s.params)
	if err != nil {
		return errors.Wrapf(err, "menu %q: fetch failed", s.def.Name)
	}

	s.mu.Lock()
	s.item = item
	s.fetched = true
	s.mu.Unlock()
	return nil
}

func (s *SingleSession) build(ctx context.Context, item interface{}) (*Payload, error) {
	rc := s.renderContext(-1)
	var fragments []Fragment

	if s.def.RenderTitle != nil {
		title, err := s.def.RenderTitle(ctx, rc)
		if err != nil {
			return nil, errors.Wrapf(err, "menu %q: RenderTitle failed", s.def.Name)
		}
		if title != nil {
			s.rewriteFragment(title, -1)
			fragments = append(fragments, *title)
		}
	}

	body, err := s.def.RenderBody(ctx, rc, item)
	if err != nil {
		return nil, errors.Wrapf(err, "menu %q: RenderBody failed", s.def.Name)
	}
	if body != nil {
		s.rewriteFragment(body, -1)
		fragments = append(fragments, *body)
	}

	return &Payload{Color: s.color, Fragments: fragments}, nil
}
