package menu

// Config is the plugin configuration threaded through registry, manager and
// router construction. It is always passed explicitly, never read from a
// package-level variable.
type Config struct {
	// ActionPrefix is the first segment of every action identifier this
	// subsystem claims. Inbound events with a different prefix are ignored.
	ActionPrefix string

	// PreloadAll eagerly builds every page on fetch/refetch instead of lazily
	// on first view.
	PreloadAll bool

	// DefaultColor is the accent color used when a definition supplies none.
	DefaultColor int

	// Navigation configures the paging control buttons.
	Navigation NavigationConfig

	// ActionsPerSecond limits how many action events a single user may trigger
	// per second. Zero disables rate limiting.
	ActionsPerSecond float64

	// ActionBurst is the rate limiter burst size.
	ActionBurst int
}

// NavigationConfig styles the built-in paging controls.
type NavigationConfig struct {
	First    ButtonConfig
	Previous ButtonConfig
	Next     ButtonConfig
	Last     ButtonConfig
}

// ButtonConfig describes one navigation button.
type ButtonConfig struct {
	Label string
	Style ButtonStyle
	Emoji string
}

// DefaultConfig returns the default plugin configuration.
func DefaultConfig() Config {
	return Config{
		ActionPrefix: "menu",
		PreloadAll:   false,
		DefaultColor: 0x5865F2,
		Navigation: NavigationConfig{
			First:    ButtonConfig{Label: "«", Style: StyleSecondary},
			Previous: ButtonConfig{Label: "‹", Style: StyleSecondary},
			Next:     ButtonConfig{Label: "›", Style: StyleSecondary},
			Last:     ButtonConfig{Label: "»", Style: StyleSecondary},
		},
		ActionsPerSecond: 5,
		ActionBurst:      10,
	}
}

// WithDefaults fills zero-valued fields from DefaultConfig, so integrators can
// override only the parts they care about.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()

	if c.ActionPrefix == "" {
		c.ActionPrefix = def.ActionPrefix
	}
	if c.DefaultColor == 0 {
		c.DefaultColor = def.DefaultColor
	}
	c.Navigation.First = c.Navigation.First.withDefaults(def.Navigation.First)
	c.Navigation.Previous = c.Navigation.Previous.withDefaults(def.Navigation.Previous)
	c.Navigation.Next = c.Navigation.Next.withDefaults(def.Navigation.Next)
	c.Navigation.Last = c.Navigation.Last.withDefaults(def.Navigation.Last)
	if c.ActionBurst == 0 {
		c.ActionBurst = def.ActionBurst
	}

	return c
}

func (b ButtonConfig) withDefaults(def ButtonConfig) ButtonConfig {
	if b.Label == "" && b.Emoji == "" {
		b.Label = def.Label
		b.Emoji = def.Emoji
	}
	if b.Style == "" {
		b.Style = def.Style
	}
	return b
}
