package menu

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hermes/pkg/errors"
)

// routerFixture wires a manager, a live shared session under key "list" and a
// router around them.
func routerFixture(t *testing.T, def *Definition) (*Router, *Manager, *fakeMessenger) {
	t.Helper()

	if def.CreateKey == nil {
		def.CreateKey = fixedKey("list")
	}

	m, messenger := newTestManager(def)
	_, _, err := m.Open(context.Background(), CreateRequest{MenuName: def.Name, UserID: "u1", ChannelID: "c1"})
	require.NoError(t, err)

	return NewRouter(testConfig(), m, newTestLogger()), m, messenger
}

func TestRouterIgnoresForeignPrefix(t *testing.T) {
	items := letterItems(7)
	router, _, _ := routerFixture(t, paginationDef("inventory", 3, &items))

	for _, customID := range []string{"other:list:#next", "poll_42", "menuless"} {
		payload, handled, err := router.Route(context.Background(), &Interaction{UserID: "u1", CustomID: customID})
		require.NoError(t, err)
		assert.False(t, handled, customID)
		assert.Nil(t, payload)
	}
}

func TestRouterDropsMalformedID(t *testing.T) {
	items := letterItems(7)
	router, _, _ := routerFixture(t, paginationDef("inventory", 3, &items))

	payload, handled, err := router.Route(context.Background(), &Interaction{UserID: "u1", CustomID: "menu:list:"})
	require.NoError(t, err)
	assert.True(t, handled, "claimed but consumed")
	assert.Nil(t, payload)
}

func TestRouterDropsStaleSession(t *testing.T) {
	items := letterItems(7)
	router, _, _ := routerFixture(t, paginationDef("inventory", 3, &items))

	payload, handled, err := router.Route(context.Background(), &Interaction{
		UserID:   "u1",
		CustomID: EncodeNavigation("menu", "gone", NavNext),
	})
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Nil(t, payload)
}

func TestRouterNavigation(t *testing.T) {
	items := letterItems(7)
	router, m, _ := routerFixture(t, paginationDef("inventory", 3, &items))
	ctx := context.Background()

	session, err := m.GetSession("list")
	require.NoError(t, err)
	ps := session.(*PaginationSession)

	next := func() (*Payload, bool, error) {
		return router.Route(ctx, &Interaction{UserID: "u1", CustomID: EncodeNavigation("menu", "list", NavNext)})
	}

	payload, handled, err := next()
	require.NoError(t, err)
	assert.True(t, handled)
	require.NotNil(t, payload)
	assert.Equal(t, "d", payload.Fragments[0].Content)
	assert.Equal(t, 1, ps.CurrentPage("u1"))

	// Advance to the boundary; the extra click is a silent no-op.
	_, _, err = next()
	require.NoError(t, err)
	payload, handled, err = next()
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Nil(t, payload)
	assert.Equal(t, 2, ps.CurrentPage("u1"))

	payload, _, err = router.Route(ctx, &Interaction{UserID: "u1", CustomID: EncodeNavigation("menu", "list", NavFirst)})
	require.NoError(t, err)
	require.NotNil(t, payload)
	assert.Equal(t, 0, ps.CurrentPage("u1"))
}

func TestRouterGoto(t *testing.T) {
	items := letterItems(7)
	router, m, _ := routerFixture(t, paginationDef("inventory", 3, &items))
	ctx := context.Background()

	payload, handled, err := router.Route(ctx, &Interaction{
		UserID:   "u1",
		CustomID: EncodeNavigation("menu", "list", NavGoto),
		Values:   []string{"2"},
	})
	require.NoError(t, err)
	assert.True(t, handled)
	require.NotNil(t, payload)

	session, err := m.GetSession("list")
	require.NoError(t, err)
	assert.Equal(t, 2, session.(*PaginationSession).CurrentPage("u1"))

	// Out-of-range target propagates the page error.
	_, _, err = router.Route(ctx, &Interaction{
		UserID:   "u1",
		CustomID: EncodeNavigation("menu", "list", NavGoto),
		Values:   []string{"9"},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidPage))

	// Non-numeric values are dropped, not errors.
	payload, handled, err = router.Route(ctx, &Interaction{
		UserID:   "u1",
		CustomID: EncodeNavigation("menu", "list", NavGoto),
		Values:   []string{"junk"},
	})
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Nil(t, payload)
}

func TestRouterIndicatorIsInert(t *testing.T) {
	items := letterItems(7)
	router, _, _ := routerFixture(t, paginationDef("inventory", 3, &items))

	payload, handled, err := router.Route(context.Background(), &Interaction{
		UserID:   "u1",
		CustomID: EncodeNavigation("menu", "list", NavIndicator),
	})
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Nil(t, payload)
}

func TestRouterItemAction(t *testing.T) {
	items := letterItems(7)
	def := paginationDef("inventory", 3, &items)

	var gotItem interface{}
	gotIndex := -1
	def.Actions = map[string]*Action{
		"pick": {
			PerItem: true,
			Handler: func(_ context.Context, ac *ActionContext) error {
				gotItem = ac.Item
				gotIndex = ac.ItemIndex
				return nil
			},
		},
	}

	router, _, _ := routerFixture(t, def)

	payload, handled, err := router.Route(context.Background(), &Interaction{
		UserID:   "u1",
		CustomID: EncodeItemAction("menu", "list", "pick", 4),
	})
	require.NoError(t, err)
	assert.True(t, handled)
	require.NotNil(t, payload, "successful action re-renders for the acting user")
	assert.Equal(t, "e", gotItem)
	assert.Equal(t, 4, gotIndex)
}

func TestRouterItemActionOutOfRange(t *testing.T) {
	items := letterItems(7)
	def := paginationDef("inventory", 3, &items)

	called := false
	def.Actions = map[string]*Action{
		"pick": {
			PerItem: true,
			Handler: func(context.Context, *ActionContext) error {
				called = true
				return nil
			},
		},
	}

	router, _, _ := routerFixture(t, def)

	payload, handled, err := router.Route(context.Background(), &Interaction{
		UserID:   "u1",
		CustomID: EncodeItemAction("menu", "list", "pick", 99),
	})
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Nil(t, payload)
	assert.False(t, called, "stale index never reaches the handler")
}

func TestRouterItemActionRequiresIndex(t *testing.T) {
	items := letterItems(7)
	def := paginationDef("inventory", 3, &items)
	def.Actions = map[string]*Action{
		"pick": {PerItem: true, Handler: func(context.Context, *ActionContext) error { return nil }},
	}

	router, _, _ := routerFixture(t, def)

	_, handled, err := router.Route(context.Background(), &Interaction{
		UserID:   "u1",
		CustomID: EncodeAction("menu", "list", "pick"),
	})
	require.Error(t, err)
	assert.True(t, handled)
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))
}

func TestRouterHandlerErrorPropagates(t *testing.T) {
	items := letterItems(7)
	def := paginationDef("inventory", 3, &items)
	def.Actions = map[string]*Action{
		"explode": {Handler: func(context.Context, *ActionContext) error {
			return errors.New("handler blew up")
		}},
	}

	router, _, _ := routerFixture(t, def)

	payload, handled, err := router.Route(context.Background(), &Interaction{
		UserID:   "u1",
		CustomID: EncodeAction("menu", "list", "explode"),
	})
	require.Error(t, err)
	assert.True(t, handled)
	assert.Nil(t, payload)
}

func TestRouterDeniesLockedViewer(t *testing.T) {
	items := letterItems(7)
	def := paginationDef("inventory", 3, &items)
	def.Options.Mode = ModeLocked
	def.Actions = map[string]*Action{
		"pick": {Handler: func(context.Context, *ActionContext) error { return nil }},
	}

	router, m, _ := routerFixture(t, def)
	ctx := context.Background()

	// Attach a second viewer through the manager.
	_, err := m.CreateSession(ctx, CreateRequest{MenuName: "inventory", UserID: "viewer", ChannelID: "c2"})
	require.NoError(t, err)

	payload, handled, err := router.Route(ctx, &Interaction{
		UserID:   "viewer",
		CustomID: EncodeNavigation("menu", "list", NavNext),
	})
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Nil(t, payload, "locked sessions swallow viewer interactions")

	// The creator still navigates.
	payload, _, err = router.Route(ctx, &Interaction{
		UserID:   "u1",
		CustomID: EncodeNavigation("menu", "list", NavNext),
	})
	require.NoError(t, err)
	require.NotNil(t, payload)
}

func TestRouterTracksMessageCoordinates(t *testing.T) {
	items := letterItems(7)
	router, m, _ := routerFixture(t, paginationDef("inventory", 3, &items))
	ctx := context.Background()

	_, _, err := router.Route(ctx, &Interaction{
		UserID:    "u1",
		ChannelID: "c9",
		MessageID: "m42",
		CustomID:  EncodeNavigation("menu", "list", NavNext),
	})
	require.NoError(t, err)

	session, err := m.GetSession("list")
	require.NoError(t, err)
	us, ok := session.UserSessionFor("u1")
	require.True(t, ok)
	assert.Equal(t, "m42", us.MessageID)
	assert.Equal(t, "c9", us.ChannelID)
}

func TestRouterRateLimitDropsBurst(t *testing.T) {
	items := letterItems(7)
	def := paginationDef("inventory", 3, &items)
	def.CreateKey = fixedKey("list")

	m, _ := newTestManager(def)
	_, _, err := m.Open(context.Background(), CreateRequest{MenuName: "inventory", UserID: "u1", ChannelID: "c1"})
	require.NoError(t, err)

	// One action per second, burst of one: the second immediate click drops.
	router := NewRouter(Config{ActionsPerSecond: 1, ActionBurst: 1}.WithDefaults(), m, newTestLogger())
	ctx := context.Background()

	payload, handled, err := router.Route(ctx, &Interaction{UserID: "u1", CustomID: EncodeNavigation("menu", "list", NavNext)})
	require.NoError(t, err)
	assert.True(t, handled)
	require.NotNil(t, payload)

	payload, handled, err = router.Route(ctx, &Interaction{UserID: "u1", CustomID: EncodeNavigation("menu", "list", NavNext)})
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Nil(t, payload, "rate-limited interaction is swallowed")
}
