package tui

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"notanalyzr/score"
	"notanalyzr/theme"
	"notanalyzr/transport"
	"notanalyzr/voice"
	"notanalyzr/widgets"
)

const (
	barWidth    = 48
	stripWindow = 4.0 // original-tempo seconds shown in the note strip
	tempoStep   = 5
)

// Opener loads a MIDI file into a new session
type Opener func(path string) (*transport.Session, error)

// Options are the player's collaborators
type Options struct {
	Registry *voice.Registry
	Open     Opener
	Logger   *zap.Logger
	// Instrument selected on start
	Instrument string
	// SeekStep in original-tempo seconds
	SeekStep float64
}

type Model struct {
	Session  *transport.Session
	Path     string
	Theme    *theme.Theme
	opts     Options
	keys     keyMap
	help     help.Model
	input    textinput.Model
	opening  bool
	status   string
	err      error
	quitting bool
}

// UpdateMsg reports a change in session state
type UpdateMsg struct {
	session *transport.Session
}

// InstrumentMsg is the result of an instrument load
type InstrumentMsg struct {
	session *transport.Session
	ID      string
	Err     error
}

func NewModel(session *transport.Session, path string, th *theme.Theme, opts Options) Model {
	if opts.Registry == nil {
		opts.Registry = voice.DefaultRegistry()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.SeekStep <= 0 {
		opts.SeekStep = 5
	}
	in := textinput.New()
	in.Placeholder = "path/to/score.mid"
	in.Prompt = "open: "
	in.CharLimit = 512

	return Model{
		Session: session,
		Path:    path,
		Theme:   th,
		opts:    opts,
		keys:    defaultKeys(),
		help:    help.New(),
		input:   in,
	}
}

func ListenForUpdates(session *transport.Session) tea.Cmd {
	return func() tea.Msg {
		<-session.Updates()
		return UpdateMsg{session: session}
	}
}

// selectInstrument starts the switch now, so playback stops before the
// key press returns, and waits for the load in a command
func selectInstrument(session *transport.Session, id string) tea.Cmd {
	done := session.SelectInstrument(context.Background(), id)
	return func() tea.Msg {
		return InstrumentMsg{session: session, ID: id, Err: <-done}
	}
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{ListenForUpdates(m.Session)}
	if m.opts.Instrument != "" {
		cmds = append(cmds, selectInstrument(m.Session, m.opts.Instrument))
	}
	return tea.Batch(cmds...)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.opening {
			return m.updateOpen(msg)
		}
		return m.updateKeys(msg)

	case UpdateMsg:
		if msg.session != m.Session {
			return m, nil
		}
		return m, ListenForUpdates(m.Session)

	case InstrumentMsg:
		if msg.session != m.Session {
			return m, nil
		}
		switch {
		case msg.Err == nil:
			m.err = nil
			m.status = "instrument: " + m.instrumentName(msg.ID)
		case !errors.Is(msg.Err, transport.ErrSuperseded):
			m.err = msg.Err
		}
	}

	return m, nil
}

func (m Model) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	s := m.Session
	var err error

	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		s.Stop()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Play):
		if s.Playing() {
			err = s.Pause()
		} else {
			err = s.Play()
		}

	case key.Matches(msg, m.keys.Stop):
		err = s.Stop()

	case key.Matches(msg, m.keys.Back):
		err = s.Seek(s.Position() - m.opts.SeekStep)

	case key.Matches(msg, m.keys.Forward):
		err = s.Seek(s.Position() + m.opts.SeekStep)

	case key.Matches(msg, m.keys.Faster):
		err = s.SetTempo(s.Tempo() + tempoStep)

	case key.Matches(msg, m.keys.Slower):
		err = s.SetTempo(s.Tempo() - tempoStep)

	case key.Matches(msg, m.keys.ResetTempo):
		err = s.SetTempo(s.OriginalTempo())

	case key.Matches(msg, m.keys.Instrument):
		idx := int(msg.String()[0] - '1')
		inst, ok := m.opts.Registry.At(idx)
		if !ok {
			return m, nil
		}
		m.status = "loading " + inst.Name + "..."
		m.err = nil
		return m, selectInstrument(s, inst.ID)

	case key.Matches(msg, m.keys.Open):
		m.opening = true
		m.input.SetValue("")
		return m, m.input.Focus()

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	}

	m.err = err
	return m, nil
}

func (m Model) updateOpen(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.opening = false
		m.input.Blur()
		return m, nil

	case tea.KeyEnter:
		m.opening = false
		m.input.Blur()
		path := strings.TrimSpace(m.input.Value())
		if path == "" || m.opts.Open == nil {
			return m, nil
		}
		return m.open(path)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// open replaces the session with one for path, keeping the instrument
func (m Model) open(path string) (tea.Model, tea.Cmd) {
	next, err := m.opts.Open(path)
	if err != nil {
		m.err = fault.Wrap(err, fmsg.WithDesc("open "+path, "Could not open "+filepath.Base(path)))
		return m, nil
	}

	instrument := m.Session.Instrument()
	if instrument == "" {
		instrument = m.opts.Instrument
	}
	if err := m.Session.Dispose(); err != nil {
		m.opts.Logger.Warn("dispose previous session", zap.Error(err))
	}
	m.Session = next
	m.Path = path
	m.err = nil
	m.status = "opened " + filepath.Base(path)

	cmds := []tea.Cmd{ListenForUpdates(next)}
	if instrument != "" {
		cmds = append(cmds, selectInstrument(next, instrument))
	}
	return m, tea.Batch(cmds...)
}

func (m Model) instrumentName(id string) string {
	if inst, ok := m.opts.Registry.Get(id); ok {
		return inst.Name
	}
	return id
}

// Err returns the error shown on the status line
func (m Model) Err() error {
	return m.err
}

// Status returns the status line text
func (m Model) Status() string {
	return m.status
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	s := m.Session
	th := m.Theme
	headerStyle := lipgloss.NewStyle().Foreground(th.Accent()).Bold(true)
	dimStyle := lipgloss.NewStyle().Foreground(th.Muted())
	activeStyle := lipgloss.NewStyle().Foreground(th.Active())
	errorStyle := lipgloss.NewStyle().Foreground(th.Warning())
	textStyle := lipgloss.NewStyle().Foreground(th.FG())

	state := s.State()
	symbol := th.Symbols.Stop
	switch state {
	case transport.Playing:
		symbol = th.Symbols.Play
	case transport.Paused:
		symbol = th.Symbols.Pause
	}

	tempo := fmt.Sprintf("%3.0fbpm", s.Tempo())
	if s.Tempo() != s.OriginalTempo() {
		tempo += fmt.Sprintf(" (file %.0f)", s.OriginalTempo())
	}
	header := headerStyle.Render(fmt.Sprintf("notanalyzr  %c %-7s  %s", symbol, strings.ToUpper(state.String()), tempo))

	var out strings.Builder
	out.WriteString("\n")
	out.WriteString(header)
	out.WriteString("\n")
	out.WriteString(dimStyle.Render(filepath.Base(m.Path)))
	out.WriteString("\n\n")

	// real-time clock at the current tempo
	ratio := s.OriginalTempo() / s.Tempo()
	out.WriteString(widgets.RenderProgress(th, s.Progress(), barWidth))
	out.WriteString(fmt.Sprintf("  %s / %s\n\n",
		widgets.FormatTime(s.Position()*ratio), widgets.FormatTime(s.TotalDuration())))

	lanes := widgets.NoteStrip(th, s.Score().Notes(), s.Position(), stripWindow, barWidth)
	if len(lanes) == 0 {
		out.WriteString(dimStyle.Render("(no notes here)"))
		out.WriteString("\n")
	}
	for _, lane := range lanes {
		out.WriteString(activeStyle.Render(lane))
		out.WriteString("\n")
	}
	out.WriteString("\n")

	out.WriteString(m.tracksView(s.Score(), textStyle))
	out.WriteString("\n")
	out.WriteString(m.instrumentsView(s.Instrument(), state, activeStyle, dimStyle))
	out.WriteString("\n\n")

	if m.opening {
		out.WriteString(m.input.View())
		out.WriteString("\n")
	}

	if m.err != nil {
		issue := fmsg.GetIssue(m.err)
		if issue == "" {
			issue = m.err.Error()
		}
		out.WriteString(errorStyle.Render("ERROR: " + issue))
	} else {
		out.WriteString(dimStyle.Render(m.status))
	}
	out.WriteString("\n\n")
	out.WriteString(m.help.View(m.keys))

	return out.String()
}

func (m Model) tracksView(sc *score.Score, style lipgloss.Style) string {
	var lines []string
	for i, t := range sc.Tracks {
		if len(t.Notes) == 0 {
			continue
		}
		name := t.Name
		if name == "" {
			name = fmt.Sprintf("Track %d", i+1)
		}
		lines = append(lines, fmt.Sprintf("  %-20s %-26s ch%-2d %4d notes",
			name, score.ProgramName(t.Program), t.Channel+1, len(t.Notes)))
	}
	if len(lines) == 0 {
		return style.Render("  (empty score)")
	}
	return style.Render(strings.Join(lines, "\n"))
}

func (m Model) instrumentsView(current string, state transport.State, active, dim lipgloss.Style) string {
	var parts []string
	for i, inst := range m.opts.Registry.List() {
		if i >= 9 {
			break
		}
		label := fmt.Sprintf("%d:%s", i+1, inst.Name)
		if inst.ID == current {
			if state == transport.Loading {
				label += "…"
			}
			parts = append(parts, active.Render("["+label+"]"))
		} else {
			parts = append(parts, dim.Render(label))
		}
	}
	return strings.Join(parts, "  ")
}
