package menu

// Declarative rendering model. A Payload is an opaque description of a menu
// surface; a platform adapter (see internal/adapters/telegram) translates it
// into wire components. The model is an abstraction in the spirit of an inline
// keyboard: rows of interactive components attached to text fragments.

// ComponentType identifies the kind of an interactive component.
type ComponentType string

const (
	ComponentButton    ComponentType = "button"
	ComponentSelect    ComponentType = "select"
	ComponentContainer ComponentType = "container"
)

// ButtonStyle describes the visual style of a button.
type ButtonStyle string

const (
	StylePrimary   ButtonStyle = "primary"
	StyleSecondary ButtonStyle = "secondary"
	StyleSuccess   ButtonStyle = "success"
	StyleDanger    ButtonStyle = "danger"
	StyleLink      ButtonStyle = "link"
)

// SelectOption is one entry in a select component.
type SelectOption struct {
	Label       string
	Value       string
	Description string
	Default     bool
}

// Component is one interactive element. Containers nest further components,
// which is why action-id rewriting walks them recursively.
type Component struct {
	Type        ComponentType
	CustomID    string
	Label       string
	Style       ButtonStyle
	Emoji       string
	URL         string
	Disabled    bool
	Placeholder string
	Options     []SelectOption
	Children    []Component
}

// Fragment is one rendered piece of a menu: a text block plus rows of
// interactive components.
type Fragment struct {
	Content    string
	Components [][]Component
}

// Payload is a complete renderable menu surface.
type Payload struct {
	Color     int
	Fragments []Fragment
}

// NewButton creates a button with an action identifier.
func NewButton(label, customID string) Component {
	return Component{
		Type:     ComponentButton,
		Label:    label,
		CustomID: customID,
		Style:    StyleSecondary,
	}
}

// NewStyledButton creates a button with an explicit style and emoji.
func NewStyledButton(label, customID string, style ButtonStyle, emoji string) Component {
	return Component{
		Type:     ComponentButton,
		Label:    label,
		CustomID: customID,
		Style:    style,
		Emoji:    emoji,
	}
}

// NewLinkButton creates a button that opens a URL and carries no action.
func NewLinkButton(label, url string) Component {
	return Component{
		Type:  ComponentButton,
		Label: label,
		URL:   url,
		Style: StyleLink,
	}
}

// NewSelect creates a select component.
func NewSelect(customID, placeholder string, options ...SelectOption) Component {
	return Component{
		Type:        ComponentSelect,
		CustomID:    customID,
		Placeholder: placeholder,
		Options:     options,
	}
}

// NewContainer groups components into a nested container.
func NewContainer(children ...Component) Component {
	return Component{
		Type:     ComponentContainer,
		Children: children,
	}
}

// NewRow builds a row of components.
func NewRow(components ...Component) []Component {
	return components
}

// Text joins all fragment contents into one message body.
func (p *Payload) Text() string {
	out := ""
	for _, f := range p.Fragments {
		if f.Content == "" {
			continue
		}
		if out != "" {
			out += "\n\n"
		}
		out += f.Content
	}
	return out
}

// Rows flattens all component rows across fragments, in order.
func (p *Payload) Rows() [][]Component {
	var rows [][]Component
	for _, f := range p.Fragments {
		rows = append(rows, f.Components...)
	}
	return rows
}

// Clone returns a deep copy of the payload. Cached pages are shared between
// viewers, so anything that mutates a payload must clone it first.
func (p *Payload) Clone() *Payload {
	out := &Payload{Color: p.Color, Fragments: make([]Fragment, len(p.Fragments))}
	for i, f := range p.Fragments {
		nf := Fragment{Content: f.Content, Components: make([][]Component, len(f.Components))}
		for j, row := range f.Components {
			nrow := make([]Component, len(row))
			for k, c := range row {
				nrow[k] = c.clone()
			}
			nf.Components[j] = nrow
		}
		out.Fragments[i] = nf
	}
	return out
}

// DisableComponents marks every interactive component disabled.
func (p *Payload) DisableComponents() {
	for i := range p.Fragments {
		for j := range p.Fragments[i].Components {
			for k := range p.Fragments[i].Components[j] {
				disableComponent(&p.Fragments[i].Components[j][k])
			}
		}
	}
}

// StripComponents removes all interactive component rows.
func (p *Payload) StripComponents() {
	for i := range p.Fragments {
		p.Fragments[i].Components = nil
	}
}

func (c Component) clone() Component {
	out := c
	if len(c.Options) > 0 {
		out.Options = append([]SelectOption(nil), c.Options...)
	}
	if len(c.Children) > 0 {
		out.Children = make([]Component, len(c.Children))
		for i, ch := range c.Children {
			out.Children[i] = ch.clone()
		}
	}
	return out
}

func disableComponent(c *Component) {
	c.Disabled = true
	for i := range c.Children {
		disableComponent(&c.Children[i])
	}
}
