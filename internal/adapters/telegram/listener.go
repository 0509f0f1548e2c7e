package telegram

import (
	"context"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"hermes/pkg/logger"
	"hermes/pkg/menu"
)

// Listener long-polls the Bot API and feeds callback queries into the action
// router, pushing the returned payload back to the originating message.
type Listener struct {
	messenger *Messenger
	router    *menu.Router
	log       *logger.Logger
}

// NewListener creates an update listener.
func NewListener(messenger *Messenger, router *menu.Router, log *logger.Logger) *Listener {
	return &Listener{
		messenger: messenger,
		router:    router,
		log:       log.With("component", "telegram_listener"),
	}
}

// Run polls for updates until the context is cancelled.
func (l *Listener) Run(ctx context.Context) error {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = 60

	updates := l.messenger.api.GetUpdatesChan(cfg)
	l.log.Infow("Listening for telegram updates")

	for {
		select {
		case <-ctx.Done():
			l.messenger.api.StopReceivingUpdates()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.CallbackQuery == nil {
				continue
			}
			l.handleCallback(ctx, update.CallbackQuery)
		}
	}
}

func (l *Listener) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	customID, values := ParseCallback(cb.Data)

	ic := &menu.Interaction{
		ID:       cb.ID,
		UserID:   strconv.FormatInt(cb.From.ID, 10),
		CustomID: customID,
		Values:   values,
	}
	if cb.Message != nil {
		ic.ChannelID = strconv.FormatInt(cb.Message.Chat.ID, 10)
		ic.MessageID = strconv.Itoa(cb.Message.MessageID)
	}

	payload, handled, err := l.router.Route(ctx, ic)
	if err != nil {
		l.log.Errorw("Action dispatch failed", "custom_id", customID, "user_id", ic.UserID, "error", err)
	}
	if !handled {
		return
	}

	// Acknowledge so the client stops its spinner, then apply the re-render.
	if _, ackErr := l.messenger.api.Request(tgbotapi.NewCallback(cb.ID, "")); ackErr != nil {
		l.log.Debugw("Failed to answer callback", "error", ackErr)
	}

	if payload != nil && ic.ChannelID != "" && ic.MessageID != "" {
		if err := l.messenger.EditMessage(ctx, ic.ChannelID, ic.MessageID, payload); err != nil {
			l.log.Warnw("Failed to apply re-render", "custom_id", customID, "error", err)
		}
	}
}
