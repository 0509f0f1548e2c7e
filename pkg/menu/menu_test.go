package menu

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"hermes/pkg/logger"
)

func newTestLogger() *logger.Logger {
	zapLog, _ := zap.NewDevelopment()
	return &logger.Logger{SugaredLogger: zapLog.Sugar()}
}

func testConfig() Config {
	// Generous rate limit so dispatch tests never trip it.
	return Config{ActionsPerSecond: 1000, ActionBurst: 1000}.WithDefaults()
}

type recordedEdit struct {
	ChannelID string
	MessageID string
	Token     string
	Payload   *Payload
}

// fakeMessenger records deliveries and returns configurable errors.
type fakeMessenger struct {
	mu           sync.Mutex
	edits        []recordedEdit
	ephemeral    []recordedEdit
	deletes      []recordedEdit
	editErr      error
	ephemeralErr error
	deleteErr    error
}

func (f *fakeMessenger) EditMessage(_ context.Context, channelID, messageID string, payload *Payload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.editErr != nil {
		return f.editErr
	}
	f.edits = append(f.edits, recordedEdit{ChannelID: channelID, MessageID: messageID, Payload: payload})
	return nil
}

func (f *fakeMessenger) EditEphemeral(_ context.Context, token string, payload *Payload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ephemeralErr != nil {
		return f.ephemeralErr
	}
	f.ephemeral = append(f.ephemeral, recordedEdit{Token: token, Payload: payload})
	return nil
}

func (f *fakeMessenger) DeleteMessage(_ context.Context, channelID, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deletes = append(f.deletes, recordedEdit{ChannelID: channelID, MessageID: messageID})
	return nil
}

func (f *fakeMessenger) editCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.edits)
}

func (f *fakeMessenger) lastEdit() recordedEdit {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.edits[len(f.edits)-1]
}

// letterItems builds a deterministic item collection: "a", "b", "c", ...
func letterItems(n int) []interface{} {
	items := make([]interface{}, n)
	for i := 0; i < n; i++ {
		items[i] = string(rune('a' + i))
	}
	return items
}

// paginationDef builds a minimal paginated definition over a mutable item
// source so tests can swap the collection between refetches.
func paginationDef(name string, perPage int, source *[]interface{}) *Definition {
	return &Definition{
		Name:    name,
		Kind:    KindPagination,
		PerPage: perPage,
		Fetch: func(context.Context, Params) ([]interface{}, error) {
			return *source, nil
		},
		RenderItem: func(_ context.Context, _ *RenderContext, item interface{}, globalIndex, _ int) (*Fragment, error) {
			return &Fragment{Content: fmt.Sprintf("%v", item)}, nil
		},
	}
}

func singleDef(name string, item interface{}) *Definition {
	return &Definition{
		Name: name,
		Kind: KindSingle,
		FetchOne: func(context.Context, Params) (interface{}, error) {
			return item, nil
		},
		RenderBody: func(_ context.Context, _ *RenderContext, item interface{}) (*Fragment, error) {
			return &Fragment{Content: fmt.Sprintf("%v", item)}, nil
		},
	}
}

func fixedKey(key string) func(context.Context, Params) (string, error) {
	return func(context.Context, Params) (string, error) {
		return key, nil
	}
}

func newTestManager(defs ...*Definition) (*Manager, *fakeMessenger) {
	log := newTestLogger()
	registry := NewRegistry(log)
	registry.RegisterAll(defs...)
	messenger := &fakeMessenger{}
	return NewManager(testConfig(), registry, messenger, log), messenger
}
