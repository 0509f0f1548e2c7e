package telegram

import (
	"context"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"hermes/internal/adapters/config"
	"hermes/pkg/errors"
	"hermes/pkg/logger"
	"hermes/pkg/menu"
)

// valueDelimiter separates the action identifier from a selected value inside
// callback data. Selects have no native Telegram widget, so each option becomes
// a button carrying "identifier=value".
const valueDelimiter = "="

// Messenger delivers menu payloads over the Telegram Bot API. It implements
// menu.Messenger on top of message edits: persistent targets are addressed by
// chat and message id, ephemeral tokens carry the same pair in "chat/message"
// form since Telegram has no ephemeral reply channel.
type Messenger struct {
	api     *tgbotapi.BotAPI
	limiter *rate.Limiter
	log     *logger.Logger
}

var _ menu.Messenger = (*Messenger)(nil)

// NewMessenger connects to the Bot API.
func NewMessenger(cfg config.TelegramConfig, log *logger.Logger) (*Messenger, error) {
	if cfg.BotToken == "" {
		return nil, errors.Wrap(errors.ErrConfiguration, "telegram bot token is required")
	}

	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create telegram bot")
	}
	api.Debug = cfg.Debug

	if cfg.SendsPerSecond <= 0 {
		cfg.SendsPerSecond = 25
	}
	if cfg.SendBurst <= 0 {
		cfg.SendBurst = 5
	}

	log.Infow("Connected to telegram", "bot", api.Self.UserName)

	return &Messenger{
		api:     api,
		limiter: rate.NewLimiter(rate.Limit(cfg.SendsPerSecond), cfg.SendBurst),
		log:     log.With("component", "telegram_messenger"),
	}, nil
}

// SendMessage posts a fresh menu message and returns its id for tracking.
func (m *Messenger) SendMessage(ctx context.Context, channelID string, payload *menu.Payload) (string, error) {
	chatID, err := strconv.ParseInt(channelID, 10, 64)
	if err != nil {
		return "", errors.Wrapf(errors.ErrInvalidInput, "channel id %q", channelID)
	}

	if err := m.limiter.Wait(ctx); err != nil {
		return "", err
	}

	msg := tgbotapi.NewMessage(chatID, payload.Text())
	if markup, ok := m.keyboard(payload); ok {
		msg.ReplyMarkup = markup
	}

	sent, err := m.api.Send(msg)
	if err != nil {
		return "", m.mapError(err)
	}
	return strconv.Itoa(sent.MessageID), nil
}

// EditMessage replaces the text and keyboard of a tracked menu message.
func (m *Messenger) EditMessage(ctx context.Context, channelID, messageID string, payload *menu.Payload) error {
	chatID, err := strconv.ParseInt(channelID, 10, 64)
	if err != nil {
		return errors.Wrapf(errors.ErrInvalidInput, "channel id %q", channelID)
	}
	msgID, err := strconv.Atoi(messageID)
	if err != nil {
		return errors.Wrapf(errors.ErrInvalidInput, "message id %q", messageID)
	}

	if err := m.limiter.Wait(ctx); err != nil {
		return err
	}

	var edit tgbotapi.Chattable
	if markup, ok := m.keyboard(payload); ok {
		e := tgbotapi.NewEditMessageTextAndMarkup(chatID, msgID, payload.Text(), markup)
		edit = e
	} else {
		e := tgbotapi.NewEditMessageText(chatID, msgID, payload.Text())
		edit = e
	}

	if _, err := m.api.Request(edit); err != nil {
		return m.mapError(err)
	}
	return nil
}

// EditEphemeral resolves a "chat/message" token and edits that message.
func (m *Messenger) EditEphemeral(ctx context.Context, token string, payload *menu.Payload) error {
	channelID, messageID, ok := strings.Cut(token, "/")
	if !ok {
		return errors.Wrapf(errors.ErrTokenExpired, "malformed token %q", token)
	}
	return m.EditMessage(ctx, channelID, messageID, payload)
}

// DeleteMessage removes a tracked menu message.
func (m *Messenger) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	chatID, err := strconv.ParseInt(channelID, 10, 64)
	if err != nil {
		return errors.Wrapf(errors.ErrInvalidInput, "channel id %q", channelID)
	}
	msgID, err := strconv.Atoi(messageID)
	if err != nil {
		return errors.Wrapf(errors.ErrInvalidInput, "message id %q", messageID)
	}

	if err := m.limiter.Wait(ctx); err != nil {
		return err
	}

	if _, err := m.api.Request(tgbotapi.NewDeleteMessage(chatID, msgID)); err != nil {
		return m.mapError(err)
	}
	return nil
}

// keyboard flattens payload component rows into an inline keyboard. Buttons
// map one to one; each select option becomes a button on its own row carrying
// the selected value in the callback data. Disabled components are skipped
// since Telegram has no disabled state.
func (m *Messenger) keyboard(payload *menu.Payload) (tgbotapi.InlineKeyboardMarkup, bool) {
	var rows [][]tgbotapi.InlineKeyboardButton

	for _, row := range payload.Rows() {
		var buttons []tgbotapi.InlineKeyboardButton
		for _, c := range row {
			switch c.Type {
			case menu.ComponentButton:
				if c.Disabled && c.URL == "" && c.CustomID == "" {
					continue
				}
				buttons = append(buttons, m.button(c))
			case menu.ComponentSelect:
				for _, opt := range c.Options {
					label := opt.Label
					if opt.Default {
						label = "• " + label
					}
					rows = append(rows, tgbotapi.NewInlineKeyboardRow(
						tgbotapi.NewInlineKeyboardButtonData(label, c.CustomID+valueDelimiter+opt.Value),
					))
				}
			case menu.ComponentContainer:
				for _, child := range c.Children {
					if child.Type == menu.ComponentButton {
						buttons = append(buttons, m.button(child))
					}
				}
			}
		}
		if len(buttons) > 0 {
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(buttons...))
		}
	}

	if len(rows) == 0 {
		return tgbotapi.InlineKeyboardMarkup{}, false
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...), true
}

func (m *Messenger) button(c menu.Component) tgbotapi.InlineKeyboardButton {
	label := c.Label
	if c.Emoji != "" {
		label = c.Emoji + " " + label
	}
	if c.URL != "" {
		return tgbotapi.NewInlineKeyboardButtonURL(label, c.URL)
	}
	return tgbotapi.NewInlineKeyboardButtonData(label, c.CustomID)
}

// ParseCallback splits callback data back into the action identifier and the
// selected values, inverting the select-option encoding.
func ParseCallback(data string) (customID string, values []string) {
	customID, value, ok := strings.Cut(data, valueDelimiter)
	if !ok {
		return data, nil
	}
	return customID, []string{value}
}

// mapError translates Bot API failures into the delivery sentinels the session
// layer prunes on.
func (m *Messenger) mapError(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "message is not modified"):
		// Identical re-render; nothing to deliver.
		return nil
	case strings.Contains(msg, "message to edit not found"),
		strings.Contains(msg, "message to delete not found"),
		strings.Contains(msg, "MESSAGE_ID_INVALID"):
		return errors.Wrap(errors.ErrMessageGone, msg)
	case strings.Contains(msg, "bot was blocked by the user"),
		strings.Contains(msg, "user is deactivated"),
		strings.Contains(msg, "chat not found"):
		return errors.Wrap(errors.ErrMessageGone, msg)
	default:
		return errors.Wrap(err, "telegram request failed")
	}
}
