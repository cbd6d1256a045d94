// Package score turns Standard MIDI File bytes into a flat, time-ordered note list.
package score

import (
	"bytes"
	"errors"
	"sort"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

// DefaultTempo is used when a file carries no tempo event
const DefaultTempo = 120.0

// ErrParse matches every error returned for malformed MIDI input
var ErrParse = errors.New("malformed MIDI data")

// ParseError carries the underlying decoder error
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return "parse midi: " + e.Err.Error()
}

func (e *ParseError) Unwrap() error { return e.Err }

func (e *ParseError) Is(target error) bool { return target == ErrParse }

// Note is a single sounding note. Times are seconds from the start of the
// file as the file itself would play them (original tempo).
type Note struct {
	Pitch    Pitch
	Start    float64
	Duration float64
	Velocity float64 // 0.0-1.0
	Channel  uint8
	Track    int
}

// End returns Start + Duration
func (n Note) End() float64 {
	return n.Start + n.Duration
}

// Track holds the notes of one SMF track in source order
type Track struct {
	Name    string
	Channel uint8
	Program uint8
	Notes   []Note
}

// Score is the parsed content of a MIDI file
type Score struct {
	Tracks          []Track
	HeaderTempo     float64
	HasTempo        bool
	TicksPerQuarter int

	notes    []Note
	duration float64
}

// Notes returns all notes of all tracks ordered by start time.
// Notes starting together keep their track order.
func (s *Score) Notes() []Note {
	return s.notes
}

// Duration returns the end time of the last sounding note in seconds
func (s *Score) Duration() float64 {
	return s.duration
}

// NoteCount returns the total number of notes
func (s *Score) NoteCount() int {
	return len(s.notes)
}

// Parse decodes SMF bytes. Only metrical (ticks per quarter note) time
// formats are supported.
func Parse(data []byte) (*Score, error) {
	if len(data) == 0 {
		return nil, parseError(errors.New("empty input"), "no MIDI data")
	}

	file, err := smf.ReadFrom(bytes.NewReader(data))
	if err != nil {
		return nil, parseError(err, "could not read MIDI file")
	}

	ticks, ok := file.TimeFormat.(smf.MetricTicks)
	if !ok || ticks == 0 {
		return nil, parseError(errors.New("unsupported time format"), "SMPTE timed MIDI files are not supported")
	}

	tm := buildTempoMap(file)
	sc := &Score{
		TicksPerQuarter: int(ticks),
		HeaderTempo:     DefaultTempo,
	}
	if len(tm.changes) > 0 {
		sc.HeaderTempo = tm.changes[0].bpm
		sc.HasTempo = true
	}

	conv := tm.converter(float64(ticks))
	for i, track := range file.Tracks {
		sc.Tracks = append(sc.Tracks, readTrack(i, track, conv))
	}
	sc.flatten()

	return sc, nil
}

func parseError(err error, issue string) error {
	return fault.Wrap(&ParseError{Err: err},
		fmsg.WithDesc("parse midi", issue),
		ftag.With(ftag.InvalidArgument),
	)
}

type noteKey struct {
	channel, key uint8
}

type openNote struct {
	tick     int64
	velocity uint8
}

func readTrack(index int, track smf.Track, toSeconds func(int64) float64) Track {
	t := Track{}
	open := make(map[noteKey][]openNote)
	channelSet := false
	var abs int64

	closeNote := func(k noteKey, start openNote, endTick int64) {
		startSec := toSeconds(start.tick)
		t.Notes = append(t.Notes, Note{
			Pitch:    Pitch(k.key),
			Start:    startSec,
			Duration: toSeconds(endTick) - startSec,
			Velocity: float64(start.velocity) / 127,
			Channel:  k.channel,
			Track:    index,
		})
	}

	for _, ev := range track {
		abs += int64(ev.Delta)
		msg := midi.Message(ev.Message)

		var ch, key, vel uint8
		var name string
		switch {
		case msg.GetNoteStart(&ch, &key, &vel):
			k := noteKey{ch, key}
			open[k] = append(open[k], openNote{tick: abs, velocity: vel})
			if !channelSet {
				t.Channel = ch
				channelSet = true
			}
		case msg.GetNoteEnd(&ch, &key):
			k := noteKey{ch, key}
			if starts := open[k]; len(starts) > 0 {
				closeNote(k, starts[0], abs)
				open[k] = starts[1:]
			}
		case msg.GetProgramChange(&ch, &key):
			t.Program = key
		case ev.Message.GetMetaTrackName(&name):
			if t.Name == "" {
				t.Name = name
			}
		}
	}

	// notes never switched off end with the track
	keys := make([]noteKey, 0, len(open))
	for k := range open {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].channel != keys[j].channel {
			return keys[i].channel < keys[j].channel
		}
		return keys[i].key < keys[j].key
	})
	for _, k := range keys {
		for _, start := range open[k] {
			closeNote(k, start, abs)
		}
	}

	return t
}

func (s *Score) flatten() {
	var all []Note
	for _, t := range s.Tracks {
		all = append(all, t.Notes...)
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Start < all[j].Start
	})

	s.notes = all
	s.duration = 0
	for _, n := range all {
		if end := n.End(); end > s.duration {
			s.duration = end
		}
	}
}

// FromNotes builds a single-track score from already timed notes. The
// notes may be in any order.
func FromNotes(tempo float64, notes []Note) *Score {
	if tempo <= 0 {
		tempo = DefaultTempo
	}
	track := Track{Notes: append([]Note(nil), notes...)}
	sc := &Score{
		Tracks:      []Track{track},
		HeaderTempo: tempo,
		HasTempo:    true,
	}
	sc.flatten()
	return sc
}
