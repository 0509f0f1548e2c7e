package menu

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hermes/pkg/errors"
)

func newSingleSessionForTest(t *testing.T, def *Definition, messenger *fakeMessenger) *SingleSession {
	t.Helper()
	require.NoError(t, def.Validate())
	s, err := newSingleSession("sess-1", def, testConfig(), nil, def.Options, "creator", messenger, NopStats{}, newTestLogger())
	require.NoError(t, err)
	require.NoError(t, s.initialize(context.Background()))
	s.AttachUser("creator", "chan-1")
	return s
}

func TestSingleSessionRendersAndCaches(t *testing.T) {
	fetches := 0
	def := singleDef("profile", "hello")
	fetchOne := def.FetchOne
	def.FetchOne = func(ctx context.Context, p Params) (interface{}, error) {
		fetches++
		return fetchOne(ctx, p)
	}

	s := newSingleSessionForTest(t, def, &fakeMessenger{})
	ctx := context.Background()

	payload, err := s.Render(ctx)
	require.NoError(t, err)
	assert.Equal(t, "hello", payload.Fragments[0].Content)

	_, err = s.RenderForUser(ctx, "viewer")
	require.NoError(t, err)
	assert.Equal(t, 1, fetches, "second render is served from cache")
}

func TestSingleSessionRefetchBroadcasts(t *testing.T) {
	value := "v1"
	def := singleDef("profile", nil)
	def.FetchOne = func(context.Context, Params) (interface{}, error) {
		return value, nil
	}

	messenger := &fakeMessenger{}
	s := newSingleSessionForTest(t, def, messenger)
	ctx := context.Background()

	_, err := s.Render(ctx)
	require.NoError(t, err)
	s.TrackMessage("creator", &Interaction{ChannelID: "chan-1", MessageID: "m1"})

	value = "v2"
	require.NoError(t, s.Refetch(ctx, true))

	require.Equal(t, 1, messenger.editCount())
	edit := messenger.lastEdit()
	assert.Equal(t, "chan-1", edit.ChannelID)
	assert.Equal(t, "m1", edit.MessageID)
	assert.Equal(t, "v2", edit.Payload.Fragments[0].Content)
}

func TestTrackMessagePersistent(t *testing.T) {
	s := newSingleSessionForTest(t, singleDef("profile", "x"), &fakeMessenger{})

	s.TrackMessage("creator", &Interaction{ChannelID: "c2", MessageID: "m7"})

	us, ok := s.UserSessionFor("creator")
	require.True(t, ok)
	assert.Equal(t, "m7", us.MessageID)
	assert.Equal(t, "c2", us.ChannelID)
	assert.False(t, us.Ephemeral)
}

func TestTrackMessageEphemeralToken(t *testing.T) {
	def := singleDef("profile", "x")
	def.Options.Ephemeral = true
	s := newSingleSessionForTest(t, def, &fakeMessenger{})

	before := time.Now()
	s.TrackMessage("creator", &Interaction{ID: "i1", Token: "tok-1", Ephemeral: true})

	us, ok := s.UserSessionFor("creator")
	require.True(t, ok)
	assert.True(t, us.Ephemeral)
	assert.Equal(t, OriginalMessage, us.MessageID)
	assert.Equal(t, "tok-1", us.InteractionToken)
	assert.WithinDuration(t, before.Add(InteractionTokenTTL), us.TokenExpiresAt, time.Second)
}

func TestBroadcastPrunesExpiredToken(t *testing.T) {
	def := singleDef("profile", "x")
	def.Options.Ephemeral = true
	messenger := &fakeMessenger{}
	s := newSingleSessionForTest(t, def, messenger)

	s.TrackMessage("creator", &Interaction{Token: "tok-1", Ephemeral: true})
	us, _ := s.UserSessionFor("creator")
	us.TokenExpiresAt = time.Now().Add(-time.Minute)

	require.NoError(t, s.Broadcast(context.Background()))
	assert.False(t, s.HasUser("creator"), "expired-token viewer is pruned")
	assert.Empty(t, messenger.ephemeral, "no delivery attempted for an expired token")
}

func TestBroadcastPrunesGoneMessage(t *testing.T) {
	messenger := &fakeMessenger{editErr: errors.Wrap(errors.ErrMessageGone, "edit failed")}
	s := newSingleSessionForTest(t, singleDef("profile", "x"), messenger)

	s.TrackMessage("creator", &Interaction{ChannelID: "c1", MessageID: "m1"})

	require.NoError(t, s.Broadcast(context.Background()))
	assert.False(t, s.HasUser("creator"), "gone-message viewer is pruned")
}

func TestBroadcastContinuesPastFailures(t *testing.T) {
	items := letterItems(4)
	s, messenger := newPaginationSessionForTest(t, 2, &items)
	ctx := context.Background()

	s.AttachUser("viewer", "chan-2")
	s.TrackMessage("creator", &Interaction{ChannelID: "chan-1", MessageID: "m1"})
	s.TrackMessage("viewer", &Interaction{ChannelID: "chan-2", MessageID: "m2"})

	// First push fails hard, second succeeds.
	messenger.editErr = errors.New("network down")
	err := s.Broadcast(ctx)
	require.Error(t, err)

	messenger.editErr = nil
	require.NoError(t, s.Broadcast(ctx))
	assert.Equal(t, 2, messenger.editCount())
	assert.True(t, s.HasUser("creator"))
	assert.True(t, s.HasUser("viewer"))
}

func TestFinalizeDeleteOnEnd(t *testing.T) {
	def := singleDef("profile", "x")
	def.Options.DeleteOnEnd = true
	messenger := &fakeMessenger{}
	s := newSingleSessionForTest(t, def, messenger)

	s.TrackMessage("creator", &Interaction{ChannelID: "c1", MessageID: "m1"})

	require.NoError(t, s.Finalize(context.Background()))
	require.Len(t, messenger.deletes, 1)
	assert.Equal(t, "m1", messenger.deletes[0].MessageID)
}

func TestFinalizeUpdateOnEndDisablesClone(t *testing.T) {
	def := singleDef("profile", nil)
	def.Options.UpdateOnEnd = true
	def.Options.EndRender = EndRenderDisable
	def.FetchOne = func(context.Context, Params) (interface{}, error) { return "x", nil }
	def.RenderBody = func(context.Context, *RenderContext, interface{}) (*Fragment, error) {
		return &Fragment{
			Content:    "body",
			Components: [][]Component{NewRow(NewButton("Go", "menu:sess-1:act"))},
		}, nil
	}

	messenger := &fakeMessenger{}
	s := newSingleSessionForTest(t, def, messenger)
	ctx := context.Background()

	cached, err := s.Render(ctx)
	require.NoError(t, err)
	s.TrackMessage("creator", &Interaction{ChannelID: "c1", MessageID: "m1"})

	require.NoError(t, s.Finalize(ctx))
	require.Equal(t, 1, messenger.editCount())

	final := messenger.lastEdit().Payload
	assert.True(t, final.Fragments[0].Components[0][0].Disabled)
	assert.False(t, cached.Fragments[0].Components[0][0].Disabled, "cached payload untouched by final render")
}

func TestFinalizeUpdateOnEndStrips(t *testing.T) {
	def := singleDef("profile", nil)
	def.Options.UpdateOnEnd = true
	def.Options.EndRender = EndRenderStrip
	def.FetchOne = func(context.Context, Params) (interface{}, error) { return "x", nil }
	def.RenderBody = func(context.Context, *RenderContext, interface{}) (*Fragment, error) {
		return &Fragment{
			Content:    "body",
			Components: [][]Component{NewRow(NewButton("Go", "menu:sess-1:act"))},
		}, nil
	}

	messenger := &fakeMessenger{}
	s := newSingleSessionForTest(t, def, messenger)
	ctx := context.Background()

	_, err := s.Render(ctx)
	require.NoError(t, err)
	s.TrackMessage("creator", &Interaction{ChannelID: "c1", MessageID: "m1"})

	require.NoError(t, s.Finalize(ctx))
	final := messenger.lastEdit().Payload
	assert.Empty(t, final.Fragments[0].Components)
	assert.Equal(t, "body", final.Fragments[0].Content)
}

func TestDestroyRunsEndHookOnce(t *testing.T) {
	ends := 0
	def := singleDef("profile", "x")
	def.OnSessionEnd = func(_ context.Context, ec *EndContext) error {
		ends++
		assert.Equal(t, "manual", ec.Reason)
		return nil
	}

	s := newSingleSessionForTest(t, def, &fakeMessenger{})
	ctx := context.Background()

	require.NoError(t, s.Destroy(ctx, "manual"))
	require.NoError(t, s.Destroy(ctx, "manual"))
	assert.Equal(t, 1, ends)
}

func TestActionIdentifierRewrite(t *testing.T) {
	items := letterItems(4)
	def := paginationDef("inventory", 2, &items)
	def.Actions = map[string]*Action{
		"pick":    {PerItem: true, Handler: func(context.Context, *ActionContext) error { return nil }},
		"refresh": {Handler: func(context.Context, *ActionContext) error { return nil }},
	}
	def.RenderItem = func(_ context.Context, _ *RenderContext, item interface{}, globalIndex, _ int) (*Fragment, error) {
		return &Fragment{
			Components: [][]Component{NewRow(
				NewButton("Pick", "pick"),
				NewButton("Refresh", "refresh"),
				NewLinkButton("Docs", "https://example.com"),
			)},
		}, nil
	}

	messenger := &fakeMessenger{}
	s, err := newPaginationSession("sess-1", def, testConfig(), nil, def.Options, "creator", messenger, NopStats{}, newTestLogger())
	require.NoError(t, err)
	s.AttachUser("creator", "chan-1")

	payload, err := s.Render(context.Background())
	require.NoError(t, err)

	// Second item on page zero has global index 1.
	row := payload.Fragments[1].Components[0]
	assert.Equal(t, "menu:sess-1:pick|1", row[0].CustomID, "per-item action carries the global index")
	assert.Equal(t, "menu:sess-1:refresh", row[1].CustomID, "session action carries no index")
	assert.Empty(t, row[2].CustomID, "link buttons are left alone")
}

func TestSessionDataFlow(t *testing.T) {
	def := singleDef("profile", "x")
	def.OnSessionStart = func(_ context.Context, sc *StartContext) (interface{}, error) {
		assert.Equal(t, "sess-1", sc.SessionID)
		assert.Equal(t, "creator", sc.CreatorID)
		return map[string]interface{}{"count": 0}, nil
	}

	s := newSingleSessionForTest(t, def, &fakeMessenger{})

	data, ok := s.Data().(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, 0, data["count"])

	s.SetData(map[string]interface{}{"count": 5})
	data = s.Data().(map[string]interface{})
	assert.Equal(t, 5, data["count"])
}

func TestBaseSessionRejectsReservedAction(t *testing.T) {
	def := singleDef("profile", "x")
	def.Actions = map[string]*Action{
		NavGoto: {Handler: func(context.Context, *ActionContext) error { return nil }},
	}

	_, err := newSingleSession("sess-1", def, testConfig(), nil, def.Options, "creator", &fakeMessenger{}, NopStats{}, newTestLogger())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrReservedAction))
}
