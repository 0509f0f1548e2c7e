package menu

import (
	"context"
	"time"

	"hermes/pkg/errors"
)

// Kind is the closed variant tag of a menu definition. Behavior is dispatched
// on the tag at session construction time, never inferred from field presence.
type Kind string

const (
	// KindSingle renders one fetched item.
	KindSingle Kind = "single"

	// KindPagination renders a fetched item collection page by page.
	KindPagination Kind = "pagination"
)

// ShareMode governs who may attach to and act upon a session.
type ShareMode string

const (
	// ModeShared lets any number of distinct users attach to the same session.
	ModeShared ShareMode = "shared"

	// ModePrivate dedups on the context key but only the creator may attach
	// or interact.
	ModePrivate ShareMode = "private"

	// ModeLocked lets others attach and receive broadcasts, but only the
	// creator may invoke actions.
	ModeLocked ShareMode = "locked"
)

// EndRenderMode controls what happens to viewer messages when a session ends
// with UpdateOnEnd set.
type EndRenderMode string

const (
	// EndRenderKeep leaves the last render as is.
	EndRenderKeep EndRenderMode = "keep"

	// EndRenderDisable re-renders with every component disabled.
	EndRenderDisable EndRenderMode = "disable"

	// EndRenderStrip re-renders with all components removed.
	EndRenderStrip EndRenderMode = "strip"
)

// Params is the immutable parameter bag a session is created with.
type Params map[string]interface{}

// SessionOptions are the per-definition session policies.
type SessionOptions struct {
	Mode      ShareMode
	Ephemeral bool

	// TTL arms an auto-expiry timer when set.
	TTL time.Duration

	// End-of-session policies, consumed by the manager teardown path.
	DeleteOnEnd bool
	UpdateOnEnd bool
	EndRender   EndRenderMode
}

// SessionOverrides optionally override definition session options at creation
// time. Nil fields keep the definition's value.
type SessionOverrides struct {
	Mode      *ShareMode
	Ephemeral *bool
	TTL       *time.Duration
}

// StartContext is passed to OnSessionStart.
type StartContext struct {
	SessionID string
	Params    Params
	CreatorID string
}

// EndContext is passed to OnSessionEnd.
type EndContext struct {
	SessionID   string
	Params      Params
	SessionData interface{}
	Reason      string
}

// RenderContext is passed to the render hooks. Rendered pages are cached and
// shared between viewers, so the context is deliberately viewer-agnostic.
type RenderContext struct {
	SessionID   string
	Params      Params
	SessionData interface{}

	// Page is the page being built, -1 for single menus.
	Page int
}

// ActionContext is the bundle passed to user action handlers.
type ActionContext struct {
	Interaction *Interaction
	SessionID   string
	Params      Params
	SessionData interface{}
	UserID      string

	// Item and ItemIndex are set for item-scoped actions.
	Item      interface{}
	ItemIndex int

	// Session allows handlers to mutate session data; mutations invalidate
	// the page cache wholesale.
	Session Session
}

// HandlerFunc handles one user action event.
type HandlerFunc func(ctx context.Context, ac *ActionContext) error

// Action declares a user action on a definition.
type Action struct {
	// PerItem marks the action item-scoped: identifiers rendered inside item
	// fragments get the item's global index appended, and dispatch requires
	// the index to be present.
	PerItem bool

	Handler HandlerFunc
}

// Definition is an immutable menu definition supplied by the integrator and
// registered once per name.
type Definition struct {
	Name  string
	Kind  Kind
	Color int

	Options SessionOptions

	// CreateKey derives the deterministic context key used for session reuse.
	// It may perform I/O. When nil, every creation gets a fresh generated id.
	CreateKey func(ctx context.Context, params Params) (string, error)

	// OnSessionStart produces the initial session data.
	OnSessionStart func(ctx context.Context, sc *StartContext) (interface{}, error)

	// OnSessionEnd runs during session teardown.
	OnSessionEnd func(ctx context.Context, ec *EndContext) error

	// RenderTitle renders the leading fragment, shared by both kinds.
	RenderTitle func(ctx context.Context, rc *RenderContext) (*Fragment, error)

	Actions map[string]*Action

	// Single variant.
	FetchOne   func(ctx context.Context, params Params) (interface{}, error)
	RenderBody func(ctx context.Context, rc *RenderContext, item interface{}) (*Fragment, error)

	// Pagination variant.
	PerPage    int
	Fetch      func(ctx context.Context, params Params) ([]interface{}, error)
	RenderItem func(ctx context.Context, rc *RenderContext, item interface{}, globalIndex, pageIndex int) (*Fragment, error)
}

// Validate checks variant-specific required fields and action declarations.
// Violations are configuration errors: the definition must be rejected rather
// than silently registered.
func (d *Definition) Validate() error {
	if d.Name == "" {
		return errors.Wrap(errors.ErrConfiguration, "menu name is required")
	}

	switch d.Kind {
	case KindSingle:
		if d.FetchOne == nil {
			return errors.Wrapf(errors.ErrConfiguration, "menu %q: single menus require FetchOne", d.Name)
		}
		if d.RenderBody == nil {
			return errors.Wrapf(errors.ErrConfiguration, "menu %q: single menus require RenderBody", d.Name)
		}
	case KindPagination:
		if d.PerPage <= 0 {
			return errors.Wrapf(errors.ErrConfiguration, "menu %q: pagination menus require PerPage > 0", d.Name)
		}
		if d.Fetch == nil {
			return errors.Wrapf(errors.ErrConfiguration, "menu %q: pagination menus require Fetch", d.Name)
		}
		if d.RenderItem == nil {
			return errors.Wrapf(errors.ErrConfiguration, "menu %q: pagination menus require RenderItem", d.Name)
		}
	default:
		return errors.Wrapf(errors.ErrConfiguration, "menu %q: unknown kind %q", d.Name, d.Kind)
	}

	for name, action := range d.Actions {
		if IsReservedAction(name) {
			return errors.Wrapf(errors.ErrReservedAction, "menu %q: action %q", d.Name, name)
		}
		if action == nil || action.Handler == nil {
			return errors.Wrapf(errors.ErrConfiguration, "menu %q: action %q has no handler", d.Name, name)
		}
	}

	return nil
}

// mode resolves the effective sharing mode; unset means shared.
func (o SessionOptions) mode() ShareMode {
	if o.Mode == "" {
		return ModeShared
	}
	return o.Mode
}

// endRender resolves the effective end-render mode; unset means keep.
func (o SessionOptions) endRender() EndRenderMode {
	if o.EndRender == "" {
		return EndRenderKeep
	}
	return o.EndRender
}

// apply merges overrides into a copy of the options.
func (o SessionOptions) apply(ov *SessionOverrides) SessionOptions {
	if ov == nil {
		return o
	}
	if ov.Mode != nil {
		o.Mode = *ov.Mode
	}
	if ov.Ephemeral != nil {
		o.Ephemeral = *ov.Ephemeral
	}
	if ov.TTL != nil {
		o.TTL = *ov.TTL
	}
	return o
}
