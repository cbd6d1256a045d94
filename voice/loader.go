package voice

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	"github.com/sinshu/go-meltysynth/meltysynth"
	"go.uber.org/zap"

	"notanalyzr/audio"
)

// DefaultFetchTimeout bounds a SoundFont download
const DefaultFetchTimeout = 20 * time.Second

// Loader builds voices from a Registry. Samples or ports that cannot be
// opened fall back to the oscillator synth so that something always plays.
type Loader struct {
	registry     *Registry
	mixer        *audio.Mixer
	client       *http.Client
	logger       *zap.Logger
	openPort     PortOpener
	defaultPort  string
	soundFont    string
	fetchTimeout time.Duration

	mu    sync.Mutex
	fonts map[string]*meltysynth.SoundFont
}

// LoaderOption configures a Loader
type LoaderOption func(*Loader)

// WithMixer sets the mixer in-process voices render into. Without one only
// port voices can be built.
func WithMixer(m *audio.Mixer) LoaderOption {
	return func(l *Loader) { l.mixer = m }
}

func WithLogger(logger *zap.Logger) LoaderOption {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

func WithHTTPClient(c *http.Client) LoaderOption {
	return func(l *Loader) {
		if c != nil {
			l.client = c
		}
	}
}

// WithPortOpener replaces the gomidi port lookup
func WithPortOpener(open PortOpener) LoaderOption {
	return func(l *Loader) {
		if open != nil {
			l.openPort = open
		}
	}
}

// WithDefaultPort names the output used by port instruments without one
func WithDefaultPort(name string) LoaderOption {
	return func(l *Loader) { l.defaultPort = name }
}

// WithSoundFont sets the SoundFont used by instruments that do not name one
func WithSoundFont(source string) LoaderOption {
	return func(l *Loader) { l.soundFont = source }
}

func WithFetchTimeout(d time.Duration) LoaderOption {
	return func(l *Loader) {
		if d > 0 {
			l.fetchTimeout = d
		}
	}
}

// NewLoader creates a loader over registry
func NewLoader(registry *Registry, opts ...LoaderOption) *Loader {
	if registry == nil {
		registry = DefaultRegistry()
	}
	l := &Loader{
		registry:     registry,
		client:       http.DefaultClient,
		logger:       zap.NewNop(),
		openPort:     OpenPort,
		fetchTimeout: DefaultFetchTimeout,
		fonts:        make(map[string]*meltysynth.SoundFont),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Registry returns the instrument table
func (l *Loader) Registry() *Registry {
	return l.registry
}

// Load builds the voice for instrument id. It fails only for unknown ids or
// when the fallback synth cannot be built.
func (l *Loader) Load(ctx context.Context, id string) (Voice, error) {
	inst, ok := l.registry.Get(id)
	if !ok {
		return nil, fault.Wrap(ErrUnknownInstrument,
			fmsg.WithDesc("instrument "+id, fmt.Sprintf("Unknown instrument %q", id)),
			ftag.With(ftag.NotFound))
	}
	log := l.logger.With(zap.String("instrument", inst.ID), zap.String("kind", string(inst.Kind)))

	switch inst.Kind {
	case KindSoundFont:
		v, err := l.loadSampler(ctx, inst)
		if err == nil {
			log.Info("soundfont voice loaded")
			return v, nil
		}
		if ctx.Err() != nil {
			return nil, fault.Wrap(ctx.Err(), fmsg.With("load instrument "+inst.ID))
		}
		log.Warn("soundfont unavailable, using synth", zap.Error(err))

	case KindPort:
		v, err := l.loadPort(inst)
		if err == nil {
			log.Info("midi port voice opened")
			return v, nil
		}
		log.Warn("midi port unavailable, using synth", zap.Error(err))
	}

	return l.synth(inst)
}

func (l *Loader) synth(inst Instrument) (Voice, error) {
	if l.mixer == nil {
		return nil, fault.Wrap(ErrNoOutput,
			fmsg.WithDesc("synth fallback for "+inst.ID, "No audio output available"),
			ftag.With(ftag.Internal))
	}
	return NewSynth(l.mixer, inst.Waveform), nil
}

func (l *Loader) loadPort(inst Instrument) (Voice, error) {
	name := inst.Port
	if name == "" {
		name = l.defaultPort
	}
	send, closer, err := l.openPort(name)
	if err != nil {
		return nil, err
	}
	return NewPortVoice(send, closer, inst.Program, inst.Channel), nil
}

func (l *Loader) loadSampler(ctx context.Context, inst Instrument) (Voice, error) {
	if l.mixer == nil {
		return nil, ErrNoOutput
	}
	source := inst.SoundFont
	if source == "" {
		source = l.soundFont
	}
	if source == "" {
		return nil, fault.New("no soundfont configured")
	}

	sf, err := l.font(ctx, source)
	if err != nil {
		return nil, err
	}
	s, err := NewSampler(l.mixer, sf, inst.Program, inst.Channel)
	if err != nil {
		return nil, fault.Wrap(err, fmsg.With("create synthesizer"))
	}
	return s, nil
}

// font returns the parsed SoundFont for source, reading it once
func (l *Loader) font(ctx context.Context, source string) (*meltysynth.SoundFont, error) {
	l.mu.Lock()
	sf, ok := l.fonts[source]
	l.mu.Unlock()
	if ok {
		return sf, nil
	}

	data, err := l.fetch(ctx, source)
	if err != nil {
		return nil, err
	}
	sf, err = meltysynth.NewSoundFont(bytes.NewReader(data))
	if err != nil {
		return nil, fault.Wrap(err, fmsg.With("parse soundfont "+source))
	}

	l.mu.Lock()
	l.fonts[source] = sf
	l.mu.Unlock()
	l.logger.Debug("soundfont cached", zap.String("source", source), zap.Int("bytes", len(data)))
	return sf, nil
}

func (l *Loader) fetch(ctx context.Context, source string) ([]byte, error) {
	if !strings.HasPrefix(source, "http://") && !strings.HasPrefix(source, "https://") {
		data, err := os.ReadFile(source)
		if err != nil {
			return nil, fault.Wrap(err, fmsg.With("read soundfont"))
		}
		return data, nil
	}

	ctx, cancel := context.WithTimeout(ctx, l.fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, fault.Wrap(err, fmsg.With("build soundfont request"))
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fault.Wrap(err, fmsg.With("fetch soundfont"))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fault.New(fmt.Sprintf("fetch soundfont: %s", resp.Status))
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fault.Wrap(err, fmsg.With("read soundfont body"))
	}
	return data, nil
}
