package main

import (
	"fmt"
	"os"

	"github.com/Southclaws/fault/fmsg"
	tea "github.com/charmbracelet/bubbletea"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
	"go.uber.org/zap"

	"notanalyzr/audio"
	"notanalyzr/config"
	"notanalyzr/debug"
	"notanalyzr/score"
	"notanalyzr/theme"
	"notanalyzr/transport"
	"notanalyzr/tui"
	"notanalyzr/voice"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		issue := fmsg.GetIssue(err)
		if issue == "" {
			issue = err.Error()
		}
		fmt.Printf("Error: %s\n", issue)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Warning: could not load config: %v\n", err)
		cfg = config.DefaultConfig()
	}

	logger, err := debug.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Warning: could not open debug log: %v\n", err)
	}
	defer debug.Close()
	defer logger.Sync()

	registry, err := cfg.Registry()
	if err != nil {
		return err
	}

	th := theme.New(nil)
	if cfg.UI.Palette != "" {
		palette, err := theme.LoadGPL(cfg.UI.Palette)
		if err != nil {
			logger.Warn("palette not loaded, using built-in", zap.String("path", cfg.UI.Palette), zap.Error(err))
		} else {
			th = theme.New(palette)
		}
	}

	// Port voices still work without a sound card
	mixer := audio.NewMixer(cfg.Audio.SampleRate)
	output, err := audio.Open(mixer, cfg.BufferSize())
	if err != nil {
		logger.Warn("audio output unavailable", zap.Error(err))
		mixer = nil
	} else {
		defer output.Close()
	}

	loader := voice.NewLoader(registry,
		voice.WithMixer(mixer),
		voice.WithLogger(logger.Named("voice")),
		voice.WithSoundFont(cfg.Audio.SoundFont),
		voice.WithFetchTimeout(cfg.FetchTimeout()),
		voice.WithDefaultPort(cfg.MIDIOutput.PortName),
	)

	sessionOpts := func() []transport.Option {
		opts := []transport.Option{
			transport.WithLoader(loader),
			transport.WithLogger(logger.Named("transport")),
			transport.WithPollInterval(cfg.PollInterval()),
			transport.WithTempoRange(cfg.Playback.MinTempo, cfg.Playback.MaxTempo),
		}
		if cfg.UI.LastTempo > 0 {
			opts = append(opts, transport.WithTempo(float64(cfg.UI.LastTempo)))
		}
		return opts
	}

	open := func(path string) (*transport.Session, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return transport.Load(data, sessionOpts()...)
	}

	path := ""
	var session *transport.Session
	if len(args) > 0 {
		path = args[0]
		session, err = open(path)
		if err != nil {
			return err
		}
	} else {
		// nothing loaded yet, press o to open a file
		session = transport.NewSession(score.FromNotes(score.DefaultTempo, nil), sessionOpts()...)
	}

	logger.Info("starting",
		zap.String("file", path),
		zap.Bool("audio", mixer != nil),
		zap.Int("instruments", registry.Len()))

	m := tui.NewModel(session, path, th, tui.Options{
		Registry:   registry,
		Open:       open,
		Logger:     logger.Named("tui"),
		Instrument: cfg.StartInstrument(),
		SeekStep:   cfg.SeekStep(),
	})
	p := tea.NewProgram(m, tea.WithAltScreen())

	final, err := p.Run()
	if fm, ok := final.(tui.Model); ok {
		session = fm.Session
	}
	saveState(cfg, session, logger)
	if derr := session.Dispose(); derr != nil {
		logger.Warn("dispose session", zap.Error(derr))
	}
	return err
}

// saveState remembers tempo and instrument for the next start
func saveState(cfg *config.Config, session *transport.Session, logger *zap.Logger) {
	cfg.UI.LastTempo = 0
	if session.Tempo() != session.OriginalTempo() {
		cfg.UI.LastTempo = int(session.Tempo() + 0.5)
	}
	if id := session.Instrument(); id != "" {
		cfg.UI.LastInstrument = id
	}
	if err := cfg.Save(); err != nil {
		logger.Warn("config not saved", zap.Error(err))
	}
}
