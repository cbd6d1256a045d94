package voice

import (
	"sort"
	"sync"
	"time"

	"github.com/sinshu/go-meltysynth/meltysynth"

	"notanalyzr/audio"
	"notanalyzr/score"
)

const (
	drumChannel   = 9
	ccAllSoundOff = 0x78
	ccAllNotesOff = 0x7B
)

type samplerEvent struct {
	frame int64 // absolute frame index
	on    bool
	key   int32
	vel   int32
	seq   uint64
}

// Sampler plays a SoundFont preset through meltysynth. Note timing is
// resolved to the frame: events are queued with their frame index and
// applied between render chunks.
type Sampler struct {
	mu         sync.Mutex
	mixer      *audio.Mixer
	synth      *meltysynth.Synthesizer
	channel    int32
	sampleRate float64

	frame    int64 // frames rendered so far
	rendered time.Time
	events   []samplerEvent
	seq      uint64
	disposed bool
}

// NewSampler creates a synthesizer for sf on the mixer's sample rate,
// selects program on channel and attaches it to mixer.
func NewSampler(mixer *audio.Mixer, sf *meltysynth.SoundFont, program, channel uint8) (*Sampler, error) {
	settings := meltysynth.NewSynthesizerSettings(int32(mixer.SampleRate()))
	synth, err := meltysynth.NewSynthesizer(sf, settings)
	if err != nil {
		return nil, err
	}
	ch := int32(channel & 0x0f)
	if ch != drumChannel {
		synth.ProcessMidiMessage(ch, 0xC0, int32(program&0x7f), 0)
	}

	s := &Sampler{
		mixer:      mixer,
		synth:      synth,
		channel:    ch,
		sampleRate: float64(mixer.SampleRate()),
		rendered:   time.Now(),
	}
	mixer.Add(s)
	return s, nil
}

func (s *Sampler) TriggerAttackRelease(pitch score.Pitch, d time.Duration, at time.Time, velocity float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return
	}

	start := s.frame
	if !at.IsZero() {
		if delay := at.Sub(s.rendered); delay > 0 {
			start += int64(delay.Seconds() * s.sampleRate)
		}
	}
	length := max(int64(d.Seconds()*s.sampleRate), 1)

	key := int32(pitch)
	s.push(samplerEvent{frame: start, on: true, key: key, vel: int32(velocity127(velocity))})
	s.push(samplerEvent{frame: start + length, key: key})
}

func (s *Sampler) push(e samplerEvent) {
	s.seq++
	e.seq = s.seq
	i := sort.Search(len(s.events), func(i int) bool {
		if s.events[i].frame == e.frame {
			return s.events[i].seq > e.seq
		}
		return s.events[i].frame > e.frame
	})
	s.events = append(s.events, samplerEvent{})
	copy(s.events[i+1:], s.events[i:])
	s.events[i] = e
}

// ReleaseAll drops queued notes and releases sounding ones
func (s *Sampler) ReleaseAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = s.events[:0]
	s.synth.ProcessMidiMessage(s.channel, 0xB0, ccAllNotesOff, 0)
}

// Pending returns the number of queued note on/off events
func (s *Sampler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func (s *Sampler) Dispose() error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return nil
	}
	s.disposed = true
	s.events = nil
	s.synth.ProcessMidiMessage(s.channel, 0xB0, ccAllSoundOff, 0)
	s.mu.Unlock()
	s.mixer.Remove(s)
	return nil
}

// Render implements audio.Source
func (s *Sampler) Render(left, right []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := int64(len(left))
	end := s.frame + n
	pos := int64(0)
	for pos < n {
		for len(s.events) > 0 && s.events[0].frame <= s.frame+pos {
			e := s.events[0]
			s.events = s.events[1:]
			if e.on {
				s.synth.NoteOn(s.channel, e.key, e.vel)
			} else {
				s.synth.NoteOff(s.channel, e.key)
			}
		}
		next := n
		if len(s.events) > 0 && s.events[0].frame < end {
			next = s.events[0].frame - s.frame
		}
		s.synth.Render(left[pos:next], right[pos:next])
		pos = next
	}
	s.frame = end
	s.rendered = time.Now()
}
