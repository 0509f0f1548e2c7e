package telegram

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hermes/pkg/errors"
	"hermes/pkg/menu"
)

func TestParseCallback(t *testing.T) {
	customID, values := ParseCallback("menu:s1:refresh")
	assert.Equal(t, "menu:s1:refresh", customID)
	assert.Nil(t, values)

	customID, values = ParseCallback("menu:s1:#goto=2")
	assert.Equal(t, "menu:s1:#goto", customID)
	assert.Equal(t, []string{"2"}, values)
}

func TestKeyboardFlattensPayload(t *testing.T) {
	m := &Messenger{}

	payload := &menu.Payload{Fragments: []menu.Fragment{
		{
			Content: "items",
			Components: [][]menu.Component{
				menu.NewRow(
					menu.NewButton("Pick", "menu:s1:pick|0"),
					menu.NewLinkButton("Docs", "https://example.com"),
				),
			},
		},
		{
			Components: [][]menu.Component{
				menu.NewRow(menu.NewSelect("menu:s1:#goto", "Jump", []menu.SelectOption{
					{Label: "Page 1", Value: "0", Default: true},
					{Label: "Page 2", Value: "1"},
				}...)),
			},
		},
	}}

	markup, ok := m.keyboard(payload)
	require.True(t, ok)

	// One button row plus one row per select option.
	require.Len(t, markup.InlineKeyboard, 3)

	first := markup.InlineKeyboard[0]
	require.Len(t, first, 2)
	require.NotNil(t, first[0].CallbackData)
	assert.Equal(t, "menu:s1:pick|0", *first[0].CallbackData)
	require.NotNil(t, first[1].URL)
	assert.Equal(t, "https://example.com", *first[1].URL)

	opt1 := markup.InlineKeyboard[1][0]
	require.NotNil(t, opt1.CallbackData)
	assert.Equal(t, "menu:s1:#goto=0", *opt1.CallbackData)
	assert.Equal(t, "• Page 1", opt1.Text, "default option is marked")

	opt2 := markup.InlineKeyboard[2][0]
	require.NotNil(t, opt2.CallbackData)
	assert.Equal(t, "menu:s1:#goto=1", *opt2.CallbackData)
}

func TestKeyboardEmptyPayload(t *testing.T) {
	m := &Messenger{}
	_, ok := m.keyboard(&menu.Payload{Fragments: []menu.Fragment{{Content: "text only"}}})
	assert.False(t, ok)
}

func TestMapError(t *testing.T) {
	m := &Messenger{}

	assert.NoError(t, m.mapError(errors.New("Bad Request: message is not modified")))

	err := m.mapError(errors.New("Bad Request: message to edit not found"))
	assert.True(t, errors.Is(err, errors.ErrMessageGone))

	err = m.mapError(errors.New("Forbidden: bot was blocked by the user"))
	assert.True(t, errors.Is(err, errors.ErrMessageGone))

	err = m.mapError(errors.New("Too Many Requests: retry after 5"))
	require.Error(t, err)
	assert.False(t, errors.Is(err, errors.ErrMessageGone))
}
