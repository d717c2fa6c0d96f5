// Package theme holds the color palettes and the palette currently applied
// to the process.
package theme

import "sync"

// Role names one of the eight palette colors.
type Role string

const (
	Primary    Role = "primary"
	Secondary  Role = "secondary"
	Accent     Role = "accent"
	Background Role = "background"
	Text       Role = "text"
	Button     Role = "button"
	Card       Role = "card"
	Block      Role = "block"
)

// Roles lists every palette role in display order.
func Roles() []Role {
	return []Role{Primary, Secondary, Accent, Background, Text, Button, Card, Block}
}

// Colors is a palette. Values are applied verbatim and never validated.
type Colors struct {
	Primary    string `json:"primary"`
	Secondary  string `json:"secondary"`
	Accent     string `json:"accent"`
	Background string `json:"background"`
	Text       string `json:"text"`
	Button     string `json:"button"`
	Card       string `json:"card"`
	Block      string `json:"block"`
}

// Get returns the color for role, or "" for an unknown role.
func (c Colors) Get(role Role) string {
	switch role {
	case Primary:
		return c.Primary
	case Secondary:
		return c.Secondary
	case Accent:
		return c.Accent
	case Background:
		return c.Background
	case Text:
		return c.Text
	case Button:
		return c.Button
	case Card:
		return c.Card
	case Block:
		return c.Block
	}
	return ""
}

// Theme is a named palette.
type Theme struct {
	Name   string `json:"name"`
	Colors Colors `json:"colors"`
}

var builtin = []Theme{
	{Name: "白天", Colors: Colors{
		Primary: "#3B82F6", Secondary: "#60A5FA", Accent: "#93C5FD", Background: "#FFFFFF",
		Text: "#1F2937", Button: "#3B82F6", Card: "#FFFFFF", Block: "#F3F4F6",
	}},
	{Name: "黑夜", Colors: Colors{
		Primary: "#60A5FA", Secondary: "#3B82F6", Accent: "#2563EB", Background: "#a4b0be",
		Text: "#ffffff", Button: "#60A5FA", Card: "#374151", Block: "#4B5563",
	}},
	{Name: "小满", Colors: Colors{
		Primary: "#B81A35", Secondary: "#C25160", Accent: "#DD6B7B", Background: "#E2A2AC",
		Text: "#1F2937", Button: "#DD6B7B", Card: "#C25160", Block: "#B81A35",
	}},
	{Name: "东风解冻", Colors: Colors{
		Primary: "#80A492", Secondary: "#99BCAC", Accent: "#B1D5C8", Background: "#D5EBE1",
		Text: "#1F2937", Button: "#99BCAC", Card: "#B1D5C8", Block: "#80A492",
	}},
}

// Builtin returns a copy of the built-in themes. The first is the default.
func Builtin() []Theme {
	return append([]Theme(nil), builtin...)
}

// Default returns the first built-in theme.
func Default() Theme {
	return builtin[0]
}

// Find looks up a built-in theme by name.
func Find(name string) (Theme, bool) {
	for _, t := range builtin {
		if t.Name == name {
			return t, true
		}
	}
	return Theme{}, false
}

var (
	mu      sync.RWMutex
	current = builtin[0]
)

// Apply makes t the process-wide palette.
func Apply(t Theme) {
	mu.Lock()
	current = t
	mu.Unlock()
}

// Current returns the applied theme.
func Current() Theme {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// Var returns the applied color for role.
func Var(role Role) string {
	return Current().Colors.Get(role)
}
