package widgets

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"notanalyzr/score"
	"notanalyzr/theme"
)

// RenderProgress renders a bar of width cells filled to progress (0-1)
func RenderProgress(th *theme.Theme, progress float64, width int) string {
	if width < 1 {
		width = 1
	}
	progress = clamp01(progress)
	filled := int(progress * float64(width))
	if filled > width {
		filled = width
	}

	var out strings.Builder
	for i := 0; i < width; i++ {
		switch {
		case i == filled && progress > 0:
			style := lipgloss.NewStyle().Foreground(th.Active())
			out.WriteString(style.Render(string(th.Symbols.Playhead)))
		case i < filled:
			style := lipgloss.NewStyle().Foreground(th.Color(float64(i) / float64(width)))
			out.WriteString(style.Render(string(th.Symbols.BarFilled)))
		default:
			style := lipgloss.NewStyle().Foreground(th.Muted())
			out.WriteString(style.Render(string(th.Symbols.BarEmpty)))
		}
	}
	return out.String()
}

// FormatTime renders seconds as m:ss.t
func FormatTime(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	tenths := int(seconds*10 + 0.5)
	return fmt.Sprintf("%d:%02d.%d", tenths/600, tenths/10%60, tenths%10)
}

// NoteStrip renders the notes sounding in a window of original-tempo
// seconds as a pitch-lane grid drawn with the theme's note symbols. Lanes
// are the distinct pitches in the window, highest first.
func NoteStrip(th *theme.Theme, notes []score.Note, from, window float64, width int) []string {
	if width < 1 || window <= 0 {
		return nil
	}
	to := from + window
	cell := window / float64(width)

	lanes := map[score.Pitch][]rune{}
	var order []score.Pitch
	for _, n := range notes {
		if n.Start >= to || n.End() <= from {
			continue
		}
		row, ok := lanes[n.Pitch]
		if !ok {
			row = []rune(strings.Repeat(string(th.Symbols.NoteNone), width))
			lanes[n.Pitch] = row
			order = append(order, n.Pitch)
		}
		first := int((n.Start - from) / cell)
		last := int(math.Ceil((n.End()-from)/cell)) - 1
		for i := max(first, 0); i <= last && i < width; i++ {
			if i == first {
				row[i] = th.Symbols.NoteOn
			} else if row[i] != th.Symbols.NoteOn {
				row[i] = th.Symbols.NoteHeld
			}
		}
	}

	// highest pitch on top
	for i := 1; i < len(order); i++ {
		for j := i; j > 0 && order[j] > order[j-1]; j-- {
			order[j], order[j-1] = order[j-1], order[j]
		}
	}
	out := make([]string, 0, len(order))
	for _, p := range order {
		out = append(out, fmt.Sprintf("%-4s %s", p, string(lanes[p])))
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
