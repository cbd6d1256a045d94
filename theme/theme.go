package theme

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

type Theme struct {
	Palette *Palette
	Symbols Symbols
}

type Symbols struct {
	// progress bar
	BarFilled rune // █ played
	BarEmpty  rune // ░ remaining
	Playhead  rune // ▶

	// note strip
	NoteOn   rune // ● note starting in this cell
	NoteHeld rune // ─ note still sounding
	NoteNone rune // · nothing

	// state
	Play  rune // ▶
	Pause rune // ‖
	Stop  rune // ■
}

// New builds a theme over palette, or the built-in palette when nil
func New(palette *Palette) *Theme {
	if palette == nil {
		palette = Default()
	}
	return &Theme{
		Palette: palette,
		Symbols: Symbols{
			BarFilled: '█',
			BarEmpty:  '░',
			Playhead:  '▶',

			NoteOn:   '●',
			NoteHeld: '─',
			NoteNone: '·',

			Play:  '▶',
			Pause: '‖',
			Stop:  '■',
		},
	}
}

// Color roles mapped to palette positions (0-1)
const (
	RoleMuted   = 0.15
	RoleFG      = 0.45
	RoleAccent  = 0.6
	RoleActive  = 0.7
	RoleWarning = 0.8
	RoleSuccess = 1.0
)

func (t *Theme) FG() lipgloss.Color {
	return t.Color(RoleFG)
}

func (t *Theme) Accent() lipgloss.Color {
	return t.Color(RoleAccent)
}

func (t *Theme) Muted() lipgloss.Color {
	return t.Color(RoleMuted)
}

func (t *Theme) Active() lipgloss.Color {
	return t.Color(RoleActive)
}

func (t *Theme) Warning() lipgloss.Color {
	return t.Color(RoleWarning)
}

func (t *Theme) Success() lipgloss.Color {
	return t.Color(RoleSuccess)
}

// Color returns lipgloss color for any normalized value 0-1
func (t *Theme) Color(norm float64) lipgloss.Color {
	c := t.Palette.Lookup(norm)
	return lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", c[0], c[1], c[2]))
}
