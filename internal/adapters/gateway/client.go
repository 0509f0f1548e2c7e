package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"hermes/internal/adapters/config"
	"hermes/pkg/errors"
	"hermes/pkg/logger"
	"hermes/pkg/menu"
	"hermes/pkg/reconnect"
)

// interactionEvent is the wire shape of a component interaction pushed by the
// platform gateway.
type interactionEvent struct {
	Type          string   `json:"type"`
	InteractionID string   `json:"interaction_id"`
	Token         string   `json:"token"`
	UserID        string   `json:"user_id"`
	ChannelID     string   `json:"channel_id"`
	MessageID     string   `json:"message_id"`
	CustomID      string   `json:"custom_id"`
	Values        []string `json:"values,omitempty"`
	Ephemeral     bool     `json:"ephemeral"`
}

// Client keeps a websocket connection to the platform gateway and feeds
// component interactions into the action router. Connection loss is handled by
// the reconnect manager.
type Client struct {
	cfg       config.GatewayConfig
	router    *menu.Router
	messenger menu.Messenger
	reconnect *reconnect.Manager
	log       *logger.Logger
}

// NewClient creates a gateway client.
func NewClient(cfg config.GatewayConfig, router *menu.Router, messenger menu.Messenger, log *logger.Logger) *Client {
	return &Client{
		cfg:       cfg,
		router:    router,
		messenger: messenger,
		reconnect: reconnect.NewManager(reconnect.Policy{
			MinBackoff:       1 * time.Second,
			MaxBackoff:       2 * time.Minute,
			MaxRetries:       10,
			HeartbeatTimeout: 90 * time.Second,
		}, log),
		log: log.With("component", "gateway"),
	}
}

// Run connects and consumes events until the context is cancelled, redialing
// with backoff after every connection loss.
func (c *Client) Run(ctx context.Context) error {
	if c.cfg.URL == "" {
		return errors.Wrap(errors.ErrConfiguration, "gateway url is required")
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var conn *websocket.Conn
		err := c.reconnect.Attempt(ctx, func(ctx context.Context) error {
			var err error
			conn, err = c.dial(ctx)
			return err
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !c.reconnect.ShouldRetry() {
				return errors.Wrap(err, "gateway gave up reconnecting")
			}
			continue
		}

		c.log.Infow("Gateway connected", "url", c.cfg.URL)
		c.consume(ctx, conn)
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if c.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", c.cfg.URL)
	}
	return conn, nil
}

// consume reads events until the connection drops or the context ends.
func (c *Client) consume(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close()

	go func() {
		<-ctx.Done()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				c.log.Warnw("Gateway read failed", "error", err)
			}
			return
		}
		c.reconnect.Touch()

		var event interactionEvent
		if err := json.Unmarshal(data, &event); err != nil {
			c.log.Warnw("Dropping malformed gateway event", "error", err)
			continue
		}
		if event.Type != "component_interaction" {
			continue
		}

		c.handle(ctx, &event)
	}
}

func (c *Client) handle(ctx context.Context, event *interactionEvent) {
	ic := &menu.Interaction{
		ID:        event.InteractionID,
		Token:     event.Token,
		UserID:    event.UserID,
		ChannelID: event.ChannelID,
		MessageID: event.MessageID,
		CustomID:  event.CustomID,
		Values:    event.Values,
		Ephemeral: event.Ephemeral,
	}

	payload, handled, err := c.router.Route(ctx, ic)
	if err != nil {
		c.log.Errorw("Action dispatch failed", "custom_id", ic.CustomID, "user_id", ic.UserID, "error", err)
		return
	}
	if !handled || payload == nil {
		return
	}

	// Apply the re-render to the message the interaction came from.
	if ic.Ephemeral && ic.Token != "" {
		err = c.messenger.EditEphemeral(ctx, ic.Token, payload)
	} else if ic.ChannelID != "" && ic.MessageID != "" {
		err = c.messenger.EditMessage(ctx, ic.ChannelID, ic.MessageID, payload)
	}
	if err != nil {
		c.log.Warnw("Failed to apply re-render", "custom_id", ic.CustomID, "error", err)
	}
}

// Healthy exposes connection health for readiness checks.
func (c *Client) Healthy() bool {
	return c.reconnect.Healthy()
}
