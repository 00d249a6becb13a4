// Package preset defines pads, the preset document that carries them and the
// adapter that keeps a local copy in sync with a remote document store.
package preset

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dokzlo13/padd/internal/wled"
)

// ErrInvalidPad is wrapped by every Validate failure.
var ErrInvalidPad = errors.New("invalid pad")

// Type is the kind of pad.
type Type string

const (
	TypeSolid        Type = "solid"
	TypeEffectByName Type = "effectByName"
	TypeOff          Type = "off"
)

// Pad is a named, user-activatable bundle of effect, colour and brightness.
type Pad struct {
	Label        string    `json:"label"`
	Type         Type      `json:"type"`
	EffectName   string    `json:"effectName,omitempty"`
	FixedPalette string    `json:"fixedPalette,omitempty"`
	DefaultBri   *int      `json:"defaultBri,omitempty"`
	DefaultSx    *int      `json:"defaultSx,omitempty"`
	DefaultIx    *int      `json:"defaultIx,omitempty"`
	DefaultColor *wled.RGB `json:"defaultColor,omitempty"`
}

// HasFixedPalette reports whether the pad pins a palette, in which case the
// user colour is not sent.
func (p Pad) HasFixedPalette() bool {
	return strings.TrimSpace(p.FixedPalette) != ""
}

// Validate checks the fields required by the pad's type.
func (p Pad) Validate() error {
	if strings.TrimSpace(p.Label) == "" {
		return fmt.Errorf("%w: pad has no label", ErrInvalidPad)
	}
	switch p.Type {
	case TypeSolid, TypeOff:
	case TypeEffectByName:
		if strings.TrimSpace(p.EffectName) == "" {
			return fmt.Errorf("%w: pad %q: effectByName requires effectName", ErrInvalidPad, p.Label)
		}
	default:
		return fmt.Errorf("%w: pad %q: unknown type %q", ErrInvalidPad, p.Label, p.Type)
	}
	return nil
}

// Find returns the first pad whose label matches, ignoring case.
func Find(pads []Pad, label string) (Pad, bool) {
	want := strings.ToLower(strings.TrimSpace(label))
	for _, p := range pads {
		if strings.ToLower(strings.TrimSpace(p.Label)) == want {
			return p, true
		}
	}
	return Pad{}, false
}

// DefaultPads is the built-in pad set used when no document exists.
func DefaultPads() []Pad {
	return []Pad{
		{Label: "Off", Type: TypeOff},
		{Label: "Solid", Type: TypeSolid},
		{Label: "Fade", Type: TypeEffectByName, EffectName: "Fade"},
		{Label: "Flash", Type: TypeEffectByName, EffectName: "Strobe Mega"},
		{Label: "Linea", Type: TypeEffectByName, EffectName: "Chase"},
		{Label: "Doble", Type: TypeEffectByName, EffectName: "Bpm"},
		{Label: "Rainbow", Type: TypeEffectByName, EffectName: "Chunchun"},
		{Label: "ChunChun", Type: TypeEffectByName, EffectName: "Fire 2012"},
		{Label: "Meteor", Type: TypeEffectByName, EffectName: "Meteor"},
		{Label: "Colorloop", Type: TypeEffectByName, EffectName: "Colorloop"},
	}
}
