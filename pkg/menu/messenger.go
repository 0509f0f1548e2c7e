package menu

import (
	"context"
	"time"
)

// InteractionTokenTTL is how long an interaction token stays usable for
// ephemeral follow-up edits. The hosting platforms honor roughly 15 minutes.
const InteractionTokenTTL = 15 * time.Minute

// OriginalMessage is the message-id sentinel recorded for ephemeral replies,
// where the real message id is never known and updates go through the
// interaction token instead.
const OriginalMessage = "@original"

// Interaction is one inbound UI event from the hosting platform.
type Interaction struct {
	ID        string
	Token     string
	UserID    string
	ChannelID string
	MessageID string

	// CustomID is the raw action identifier attached to the triggering
	// component.
	CustomID string

	// Values carries selected values for select components (page jumps read
	// the target page from here).
	Values []string

	Ephemeral bool
}

// Messenger abstracts the platform SDK used to push menu updates. Error
// classification matters: implementations must return errors wrapping
// errors.ErrMessageGone when the target message no longer exists and
// errors.ErrTokenExpired when an interaction token has been invalidated, so
// sessions can prune the affected viewer instead of failing a broadcast.
type Messenger interface {
	// EditMessage replaces the content of a persistent message.
	EditMessage(ctx context.Context, channelID, messageID string, payload *Payload) error

	// EditEphemeral updates an ephemeral reply through its interaction token.
	EditEphemeral(ctx context.Context, interactionToken string, payload *Payload) error

	// DeleteMessage removes a persistent message.
	DeleteMessage(ctx context.Context, channelID, messageID string) error
}
