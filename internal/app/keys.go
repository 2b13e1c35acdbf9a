package app

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Up, Down   key.Binding
	NextTab    key.Binding
	PrevTab    key.Binding
	Mute       key.Binding
	VolumeUp   key.Binding
	VolumeDown key.Binding
	VolumeSet  key.Binding
	Move       key.Binding
	Kill       key.Binding
	Profile    key.Binding
	Reconnect  key.Binding
	Help       key.Binding
	Quit       key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.NextTab, k.Mute, k.VolumeUp, k.VolumeDown, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.NextTab, k.PrevTab},
		{k.Mute, k.VolumeUp, k.VolumeDown, k.VolumeSet},
		{k.Move, k.Kill, k.Profile},
		{k.Reconnect, k.Help, k.Quit},
	}
}

func defaultKeys() keyMap {
	return keyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "down"),
		),
		NextTab: key.NewBinding(
			key.WithKeys("tab", "L"),
			key.WithHelp("tab", "next tab"),
		),
		PrevTab: key.NewBinding(
			key.WithKeys("shift+tab", "H"),
			key.WithHelp("shift+tab", "prev tab"),
		),
		Mute: key.NewBinding(
			key.WithKeys("m", " "),
			key.WithHelp("m", "toggle mute"),
		),
		VolumeUp: key.NewBinding(
			key.WithKeys("right", "l", "+", "="),
			key.WithHelp("→/l", "volume up"),
		),
		VolumeDown: key.NewBinding(
			key.WithKeys("left", "h", "-"),
			key.WithHelp("←/h", "volume down"),
		),
		VolumeSet: key.NewBinding(
			key.WithKeys("1", "2", "3", "4", "5", "6", "7", "8", "9", "0"),
			key.WithHelp("1-0", "volume 10-100%"),
		),
		Move: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "next device"),
		),
		Kill: key.NewBinding(
			key.WithKeys("x"),
			key.WithHelp("x", "kill stream"),
		),
		Profile: key.NewBinding(
			key.WithKeys("p"),
			key.WithHelp("p", "next card profile"),
		),
		Reconnect: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "reconnect"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "toggle help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}
