package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Play       key.Binding
	Stop       key.Binding
	Back       key.Binding
	Forward    key.Binding
	Faster     key.Binding
	Slower     key.Binding
	ResetTempo key.Binding
	Instrument key.Binding
	Open       key.Binding
	Help       key.Binding
	Quit       key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Play:       key.NewBinding(key.WithKeys(" ", "p"), key.WithHelp("space", "play/pause")),
		Stop:       key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "stop")),
		Back:       key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←", "back")),
		Forward:    key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("→", "forward")),
		Faster:     key.NewBinding(key.WithKeys("+", "="), key.WithHelp("+", "faster")),
		Slower:     key.NewBinding(key.WithKeys("-", "_"), key.WithHelp("-", "slower")),
		ResetTempo: key.NewBinding(key.WithKeys("0"), key.WithHelp("0", "file tempo")),
		Instrument: key.NewBinding(key.WithKeys("1", "2", "3", "4", "5", "6", "7", "8", "9"), key.WithHelp("1-9", "instrument")),
		Open:       key.NewBinding(key.WithKeys("o"), key.WithHelp("o", "open file")),
		Help:       key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit:       key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Play, k.Stop, k.Back, k.Forward, k.Faster, k.Slower, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Play, k.Stop, k.Back, k.Forward},
		{k.Faster, k.Slower, k.ResetTempo},
		{k.Instrument, k.Open, k.Help, k.Quit},
	}
}
