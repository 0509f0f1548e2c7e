package menu

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"hermes/pkg/errors"
	"hermes/pkg/logger"
)

// Queue topics. Drivers may remap these to transport-legal names.
const (
	TopicUpdate = "menu:update"
	TopicClose  = "menu:close"
)

// Driver is the pub/sub transport behind the update queue. Redis and kafka
// implementations live in internal/adapters/queue; MemoryDriver covers
// single-process deployments and tests.
type Driver interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(ctx context.Context, topic string, handler func(ctx context.Context, payload []byte)) error
	Close() error
}

// RefreshSpec selects which parts of a session an update message refreshes.
// Items defaults to true, SessionData to false.
type RefreshSpec struct {
	Items       *bool `json:"items,omitempty"`
	SessionData *bool `json:"session_data,omitempty"`
}

func (r RefreshSpec) items() bool {
	if r.Items == nil {
		return true
	}
	return *r.Items
}

func (r RefreshSpec) sessionData() bool {
	if r.SessionData == nil {
		return false
	}
	return *r.SessionData
}

// UpdateMessage asks a live session, addressed by context key, to refresh and
// rebroadcast. UpdateSessionData, when present, merges into (or replaces)
// session data instead of re-running the start hook.
type UpdateMessage struct {
	ID                string                 `json:"id"`
	MenuName          string                 `json:"menu_name"`
	ContextKey        string                 `json:"context_key"`
	Refresh           RefreshSpec            `json:"refresh"`
	UpdateSessionData map[string]interface{} `json:"update_session_data,omitempty"`
	Timestamp         time.Time              `json:"timestamp"`
}

// CloseMessage asks a live session, addressed by context key, to end.
type CloseMessage struct {
	ContextKey string    `json:"context_key"`
	Reason     string    `json:"reason"`
	Timestamp  time.Time `json:"timestamp"`
}

// Queue connects external producers to live sessions over a pub/sub driver.
type Queue struct {
	driver  Driver
	manager *Manager
	log     *logger.Logger
}

// NewQueue creates an update queue on top of a driver and a session manager.
func NewQueue(driver Driver, manager *Manager, log *logger.Logger) *Queue {
	return &Queue{
		driver:  driver,
		manager: manager,
		log:     log.With("component", "update_queue"),
	}
}

// Start subscribes to the update and close topics. Handlers run on the
// driver's delivery goroutines.
func (q *Queue) Start(ctx context.Context) error {
	if err := q.driver.Subscribe(ctx, TopicUpdate, q.handleUpdate); err != nil {
		return errors.Wrapf(err, "subscribe %s", TopicUpdate)
	}
	if err := q.driver.Subscribe(ctx, TopicClose, q.handleClose); err != nil {
		return errors.Wrapf(err, "subscribe %s", TopicClose)
	}
	q.log.Infow("Update queue started")
	return nil
}

// Close shuts down the underlying driver.
func (q *Queue) Close() error {
	return q.driver.Close()
}

// PublishUpdate emits an update message for a context key.
func (q *Queue) PublishUpdate(ctx context.Context, msg UpdateMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "marshal update message")
	}
	return q.driver.Publish(ctx, TopicUpdate, payload)
}

// PublishClose emits a close message for a context key.
func (q *Queue) PublishClose(ctx context.Context, msg CloseMessage) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "marshal close message")
	}
	return q.driver.Publish(ctx, TopicClose, payload)
}

// handleUpdate refreshes an addressed session. A missing session is expected
// in multi-instance deployments where only one instance holds it.
func (q *Queue) handleUpdate(ctx context.Context, payload []byte) {
	var msg UpdateMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		q.log.Warnw("Dropping malformed update message", "error", err)
		return
	}

	session, err := q.manager.GetSession(msg.ContextKey)
	if err != nil {
		q.log.Debugw("Update for session not held here", "context_key", msg.ContextKey, "menu", msg.MenuName)
		return
	}

	if msg.UpdateSessionData != nil {
		q.applyDataPatch(session, msg.UpdateSessionData)
	} else if msg.Refresh.sessionData() {
		if err := q.rerunStart(ctx, session); err != nil {
			q.log.Errorw("Session data refresh failed", "context_key", msg.ContextKey, "error", err)
			return
		}
	}

	if err := session.Refetch(ctx, msg.Refresh.items()); err != nil {
		q.log.Errorw("Session refetch failed", "context_key", msg.ContextKey, "error", err)
	}
}

func (q *Queue) handleClose(ctx context.Context, payload []byte) {
	var msg CloseMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		q.log.Warnw("Dropping malformed close message", "error", err)
		return
	}

	reason := msg.Reason
	if reason == "" {
		reason = "queue"
	}
	if err := q.manager.endSession(ctx, msg.ContextKey, reason); err != nil {
		q.log.Errorw("Queue-triggered close failed", "context_key", msg.ContextKey, "error", err)
	}
}

// applyDataPatch merges a patch into map-shaped session data, or replaces the
// data wholesale when it is not a map.
func (q *Queue) applyDataPatch(session Session, patch map[string]interface{}) {
	if current, ok := session.Data().(map[string]interface{}); ok {
		merged := make(map[string]interface{}, len(current)+len(patch))
		for k, v := range current {
			merged[k] = v
		}
		for k, v := range patch {
			merged[k] = v
		}
		session.SetData(merged)
		return
	}
	session.SetData(patch)
}

// rerunStart re-derives session data from the start hook.
func (q *Queue) rerunStart(ctx context.Context, session Session) error {
	def := session.Definition()
	if def.OnSessionStart == nil {
		return nil
	}
	data, err := def.OnSessionStart(ctx, &StartContext{
		SessionID: session.ID(),
		Params:    session.Params(),
		CreatorID: session.CreatorID(),
	})
	if err != nil {
		return errors.Wrapf(err, "menu %q: OnSessionStart failed", def.Name)
	}
	session.SetData(data)
	return nil
}

// MemoryDriver is an in-process Driver. Delivery is asynchronous: each
// published payload is handed to subscribers on a fresh goroutine, matching
// the detached delivery semantics of the networked drivers.
type MemoryDriver struct {
	mu       sync.RWMutex
	handlers map[string][]func(ctx context.Context, payload []byte)
	closed   bool
}

// NewMemoryDriver creates an in-process pub/sub driver.
func NewMemoryDriver() *MemoryDriver {
	return &MemoryDriver{
		handlers: make(map[string][]func(ctx context.Context, payload []byte)),
	}
}

func (d *MemoryDriver) Publish(ctx context.Context, topic string, payload []byte) error {
	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		return errors.Wrap(errors.ErrInternal, "memory driver closed")
	}
	handlers := d.handlers[topic]
	d.mu.RUnlock()

	for _, handler := range handlers {
		go handler(ctx, payload)
	}
	return nil
}

func (d *MemoryDriver) Subscribe(_ context.Context, topic string, handler func(ctx context.Context, payload []byte)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return errors.Wrap(errors.ErrInternal, "memory driver closed")
	}
	d.handlers[topic] = append(d.handlers[topic], handler)
	return nil
}

func (d *MemoryDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	d.handlers = make(map[string][]func(ctx context.Context, payload []byte))
	return nil
}
