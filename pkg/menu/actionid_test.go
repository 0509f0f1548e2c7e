package menu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hermes/pkg/errors"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want ActionID
	}{
		{
			name: "session action",
			raw:  EncodeAction("menu", "s1", "refresh"),
			want: ActionID{Prefix: "menu", SessionID: "s1", Name: "refresh", ItemIndex: -1},
		},
		{
			name: "item action",
			raw:  EncodeItemAction("menu", "s1", "pick", 4),
			want: ActionID{Prefix: "menu", SessionID: "s1", Name: "pick", ItemIndex: 4},
		},
		{
			name: "navigation",
			raw:  EncodeNavigation("menu", "s1", NavNext),
			want: ActionID{Prefix: "menu", SessionID: "s1", Name: NavNext, Navigation: true, ItemIndex: -1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeActionID(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.raw, got.String())
		})
	}
}

func TestEncodeNavigationFormat(t *testing.T) {
	assert.Equal(t, "menu:s1:#next", EncodeNavigation("menu", "s1", NavNext))
	assert.Equal(t, "menu:s1:pick|7", EncodeItemAction("menu", "s1", "pick", 7))
	assert.Equal(t, "menu:s1:refresh", EncodeAction("menu", "s1", "refresh"))
}

func TestDecodeActionIDMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"no delimiters", "menurefresh"},
		{"missing name", "menu:s1:"},
		{"missing session", "menu::refresh"},
		{"missing prefix", ":s1:refresh"},
		{"bare nav marker", "menu:s1:#"},
		{"non-numeric index", "menu:s1:pick|x"},
		{"negative index", "menu:s1:pick|-2"},
		{"empty name with index", "menu:s1:|3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeActionID(tt.raw)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrInvalidInput))
		})
	}
}

func TestDecodeActionIDKeepsExtraDelimiters(t *testing.T) {
	// Only the first two delimiters split; the payload may not contain more,
	// but a name with an item index uses the last pipe.
	got, err := DecodeActionID("menu:s1:pick|2")
	require.NoError(t, err)
	assert.Equal(t, "pick", got.Name)
	assert.Equal(t, 2, got.ItemIndex)
}

func TestIsReservedAction(t *testing.T) {
	for _, name := range []string{NavFirst, NavPrevious, NavNext, NavLast, NavGoto, NavIndicator} {
		assert.True(t, IsReservedAction(name), name)
	}
	assert.False(t, IsReservedAction("refresh"))
	assert.False(t, IsReservedAction("Next"))
}

func TestValidSessionKey(t *testing.T) {
	assert.True(t, validSessionKey("user-42"))
	assert.True(t, validSessionKey("room_1.main"))
	assert.False(t, validSessionKey(""))
	assert.False(t, validSessionKey("a:b"))
	assert.False(t, validSessionKey("a|b"))
}
