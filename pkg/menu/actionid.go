package menu

import (
	"strconv"
	"strings"

	"hermes/pkg/errors"
)

// Action identifiers are canonical strings of the form
//
//	prefix:sessionID:actionName
//	prefix:sessionID:actionName|itemIndex   (item-scoped user action)
//	prefix:sessionID:#actionName            (built-in navigation)
//
// The marker on navigation names keeps the built-in paging controls from ever
// colliding with user-declared actions.
const (
	actionDelimiter = ":"
	itemDelimiter   = "|"
	navMarker       = "#"
)

// Reserved navigation action names.
const (
	NavFirst     = "first"
	NavPrevious  = "previous"
	NavNext      = "next"
	NavLast      = "last"
	NavGoto      = "goto"
	NavIndicator = "indicator"
)

var reservedActions = map[string]struct{}{
	NavFirst:     {},
	NavPrevious:  {},
	NavNext:      {},
	NavLast:      {},
	NavGoto:      {},
	NavIndicator: {},
}

// IsReservedAction reports whether name collides with a navigation primitive.
func IsReservedAction(name string) bool {
	_, ok := reservedActions[name]
	return ok
}

// ActionID is a decoded action identifier.
type ActionID struct {
	Prefix     string
	SessionID  string
	Name       string
	Navigation bool

	// ItemIndex is the global item index for item-scoped actions, -1 when the
	// identifier carries none.
	ItemIndex int
}

// String encodes the identifier back to its canonical form.
func (a ActionID) String() string {
	payload := a.Name
	if a.Navigation {
		payload = navMarker + a.Name
	} else if a.ItemIndex >= 0 {
		payload = a.Name + itemDelimiter + strconv.Itoa(a.ItemIndex)
	}
	return a.Prefix + actionDelimiter + a.SessionID + actionDelimiter + payload
}

// EncodeAction builds the identifier for a session-scoped user action.
func EncodeAction(prefix, sessionID, name string) string {
	return ActionID{Prefix: prefix, SessionID: sessionID, Name: name, ItemIndex: -1}.String()
}

// EncodeItemAction builds the identifier for an item-scoped user action.
func EncodeItemAction(prefix, sessionID, name string, itemIndex int) string {
	return ActionID{Prefix: prefix, SessionID: sessionID, Name: name, ItemIndex: itemIndex}.String()
}

// EncodeNavigation builds the identifier for a built-in navigation action.
func EncodeNavigation(prefix, sessionID, name string) string {
	return ActionID{Prefix: prefix, SessionID: sessionID, Name: name, Navigation: true, ItemIndex: -1}.String()
}

// DecodeActionID parses a raw custom identifier. Malformed input fails closed
// with ErrInvalidInput; the caller drops the event rather than crashing.
func DecodeActionID(raw string) (ActionID, error) {
	parts := strings.SplitN(raw, actionDelimiter, 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return ActionID{}, errors.Wrapf(errors.ErrInvalidInput, "malformed action id %q", raw)
	}

	id := ActionID{Prefix: parts[0], SessionID: parts[1], ItemIndex: -1}
	payload := parts[2]

	if strings.HasPrefix(payload, navMarker) {
		id.Navigation = true
		id.Name = strings.TrimPrefix(payload, navMarker)
		if id.Name == "" {
			return ActionID{}, errors.Wrapf(errors.ErrInvalidInput, "empty navigation name in %q", raw)
		}
		return id, nil
	}

	if i := strings.LastIndex(payload, itemDelimiter); i >= 0 {
		idx, err := strconv.Atoi(payload[i+1:])
		if err != nil || idx < 0 {
			return ActionID{}, errors.Wrapf(errors.ErrInvalidInput, "malformed item index in %q", raw)
		}
		id.Name = payload[:i]
		id.ItemIndex = idx
	} else {
		id.Name = payload
	}

	if id.Name == "" {
		return ActionID{}, errors.Wrapf(errors.ErrInvalidInput, "empty action name in %q", raw)
	}
	return id, nil
}

// validSessionKey rejects context keys that would break identifier parsing.
func validSessionKey(key string) bool {
	return key != "" &&
		!strings.Contains(key, actionDelimiter) &&
		!strings.Contains(key, itemDelimiter)
}
