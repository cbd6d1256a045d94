// Package voice provides the instruments a session plays notes through:
// an oscillator synth, a SoundFont sampler and a hardware MIDI port.
package voice

import (
	"errors"
	"fmt"
	"time"

	"notanalyzr/score"
)

// Voice sounds notes. Implementations are safe for concurrent use and
// ignore triggers after Dispose.
type Voice interface {
	// TriggerAttackRelease starts pitch at (or as soon as possible after) at
	// and releases it d later. velocity is 0..1.
	TriggerAttackRelease(pitch score.Pitch, d time.Duration, at time.Time, velocity float64)
	Dispose() error
}

// Releaser is implemented by voices that can silence everything sounding
type Releaser interface {
	ReleaseAll()
}

var (
	ErrUnknownInstrument = errors.New("unknown instrument")
	ErrNoOutput          = errors.New("no audio output")
	ErrPortNotFound      = errors.New("midi output port not found")
)

// Kind selects how an instrument is realised
type Kind string

const (
	KindSynth     Kind = "synth"
	KindSoundFont Kind = "soundfont"
	KindPort      Kind = "port"
)

// Waveform of the oscillator synth
type Waveform string

const (
	Sine     Waveform = "sine"
	Triangle Waveform = "triangle"
	Square   Waveform = "square"
	Sawtooth Waveform = "sawtooth"
)

// Instrument describes one selectable voice
type Instrument struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Kind      Kind     `json:"kind"`
	Program   uint8    `json:"program,omitempty"`   // GM program for soundfont and port voices
	Channel   uint8    `json:"channel,omitempty"`   // MIDI channel, 9 for drums
	SoundFont string   `json:"soundfont,omitempty"` // file path or http(s) URL
	Waveform  Waveform `json:"waveform,omitempty"`  // synth voices and fallback
	Port      string   `json:"port,omitempty"`      // output port name for port voices
}

// Registry is an immutable, ordered instrument table
type Registry struct {
	order []Instrument
	byID  map[string]int
}

// NewRegistry validates instruments and keeps their order
func NewRegistry(instruments ...Instrument) (*Registry, error) {
	r := &Registry{byID: make(map[string]int, len(instruments))}
	for _, inst := range instruments {
		if inst.ID == "" {
			return nil, fmt.Errorf("instrument %q has no id", inst.Name)
		}
		if _, dup := r.byID[inst.ID]; dup {
			return nil, fmt.Errorf("duplicate instrument id %q", inst.ID)
		}
		switch inst.Kind {
		case KindSynth, KindSoundFont, KindPort:
		case "":
			inst.Kind = KindSynth
		default:
			return nil, fmt.Errorf("instrument %q: unknown kind %q", inst.ID, inst.Kind)
		}
		if inst.Channel > 15 {
			return nil, fmt.Errorf("instrument %q: channel %d out of range", inst.ID, inst.Channel)
		}
		if inst.Name == "" {
			inst.Name = inst.ID
		}
		r.byID[inst.ID] = len(r.order)
		r.order = append(r.order, inst)
	}
	return r, nil
}

// DefaultRegistry is used when the config does not list instruments.
// SoundFont instruments fall back to the synth until a SoundFont is set.
func DefaultRegistry() *Registry {
	r, _ := NewRegistry(DefaultInstruments()...)
	return r
}

// DefaultInstruments returns the built-in instrument table
func DefaultInstruments() []Instrument {
	return []Instrument{
		{ID: "piano", Name: "Acoustic Grand Piano", Kind: KindSoundFont, Program: 0, Waveform: Triangle},
		{ID: "guitar", Name: "Nylon Guitar", Kind: KindSoundFont, Program: 24, Waveform: Triangle},
		{ID: "strings", Name: "String Ensemble", Kind: KindSoundFont, Program: 48, Waveform: Sawtooth},
		{ID: "flute", Name: "Flute", Kind: KindSoundFont, Program: 73, Waveform: Sine},
		{ID: "synth", Name: "Triangle Synth", Kind: KindSynth, Waveform: Triangle},
		{ID: "square", Name: "Square Lead", Kind: KindSynth, Waveform: Square},
		{ID: "midi-out", Name: "MIDI Out", Kind: KindPort, Program: 0, Waveform: Triangle},
	}
}

// Get looks up an instrument by id
func (r *Registry) Get(id string) (Instrument, bool) {
	i, ok := r.byID[id]
	if !ok {
		return Instrument{}, false
	}
	return r.order[i], true
}

// List returns the instruments in registry order
func (r *Registry) List() []Instrument {
	out := make([]Instrument, len(r.order))
	copy(out, r.order)
	return out
}

// At returns the i-th instrument
func (r *Registry) At(i int) (Instrument, bool) {
	if i < 0 || i >= len(r.order) {
		return Instrument{}, false
	}
	return r.order[i], true
}

// Len returns the number of instruments
func (r *Registry) Len() int {
	return len(r.order)
}

// startDelay converts a scheduled wall time into a non-negative delay
func startDelay(at time.Time) time.Duration {
	if at.IsZero() {
		return 0
	}
	d := time.Until(at)
	if d < 0 {
		return 0
	}
	return d
}

func velocity127(v float64) uint8 {
	if v <= 0 {
		return 1
	}
	if v >= 1 {
		return 127
	}
	n := uint8(v*127 + 0.5)
	if n == 0 {
		n = 1
	}
	return n
}
