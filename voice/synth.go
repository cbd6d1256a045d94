package voice

import (
	"math"
	"sync"
	"time"

	"notanalyzr/audio"
	"notanalyzr/score"
)

const (
	synthAttack   = 5 * time.Millisecond
	synthRelease  = 120 * time.Millisecond
	synthLevel    = 0.18
	maxSynthNotes = 64
)

type synthNote struct {
	step    float64 // phase increment per frame, in cycles
	phase   float64
	amp     float64
	delay   int // frames until the attack
	hold    int // frames from attack to release
	age     int // frames since the attack
	release int // frames into the release, 0 while held
	relFrom float64
}

// Synth is an oscillator voice rendered through an audio.Mixer. It is the
// fallback for instruments whose samples or port cannot be opened.
type Synth struct {
	mu         sync.Mutex
	mixer      *audio.Mixer
	waveform   Waveform
	sampleRate float64
	notes      []*synthNote
	disposed   bool
}

// NewSynth creates an oscillator voice and attaches it to mixer
func NewSynth(mixer *audio.Mixer, wf Waveform) *Synth {
	switch wf {
	case Sine, Triangle, Square, Sawtooth:
	default:
		wf = Triangle
	}
	s := &Synth{
		mixer:      mixer,
		waveform:   wf,
		sampleRate: float64(mixer.SampleRate()),
	}
	mixer.Add(s)
	return s
}

// Waveform returns the oscillator shape
func (s *Synth) Waveform() Waveform {
	return s.waveform
}

func (s *Synth) TriggerAttackRelease(pitch score.Pitch, d time.Duration, at time.Time, velocity float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return
	}
	if len(s.notes) >= maxSynthNotes {
		// steal the oldest
		s.notes = s.notes[1:]
	}
	s.notes = append(s.notes, &synthNote{
		step:  pitch.Frequency() / s.sampleRate,
		amp:   synthLevel * clamp01(velocity),
		delay: s.frames(startDelay(at)),
		hold:  max(s.frames(d), 1),
	})
}

// ReleaseAll moves every held note into its release
func (s *Synth) ReleaseAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.notes[:0]
	for _, n := range s.notes {
		if n.delay > 0 {
			continue
		}
		if n.release == 0 {
			n.relFrom = n.envelope(s.frames(synthAttack))
			n.release = 1
		}
		kept = append(kept, n)
	}
	s.notes = kept
}

// Active returns the number of notes still sounding or waiting to start
func (s *Synth) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.notes)
}

func (s *Synth) Dispose() error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return nil
	}
	s.disposed = true
	s.notes = nil
	s.mu.Unlock()
	s.mixer.Remove(s)
	return nil
}

// Render implements audio.Source
func (s *Synth) Render(left, right []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	attack := s.frames(synthAttack)
	release := s.frames(synthRelease)
	kept := s.notes[:0]
	for _, n := range s.notes {
		done := false
		for i := range left {
			if n.delay > 0 {
				n.delay--
				continue
			}
			if n.release == 0 && n.age >= n.hold {
				n.relFrom = n.envelope(attack)
				n.release = 1
			}
			var env float64
			if n.release > 0 {
				if n.release >= release {
					done = true
					break
				}
				env = n.relFrom * (1 - float64(n.release)/float64(release))
				n.release++
			} else {
				env = n.envelope(attack)
			}
			v := float32(n.amp * env * oscillate(s.waveform, n.phase))
			left[i] += v
			right[i] += v
			n.phase += n.step
			if n.phase >= 1 {
				n.phase -= math.Floor(n.phase)
			}
			n.age++
		}
		if !done {
			kept = append(kept, n)
		}
	}
	s.notes = kept
}

func (n *synthNote) envelope(attack int) float64 {
	if attack <= 0 || n.age >= attack {
		return 1
	}
	return float64(n.age) / float64(attack)
}

func (s *Synth) frames(d time.Duration) int {
	return int(d.Seconds() * s.sampleRate)
}

// oscillate returns the waveform value at phase (0..1 cycles)
func oscillate(wf Waveform, phase float64) float64 {
	switch wf {
	case Sine:
		return math.Sin(2 * math.Pi * phase)
	case Square:
		if phase < 0.5 {
			return 1
		}
		return -1
	case Sawtooth:
		return 2*phase - 1
	default:
		return 1 - 4*math.Abs(phase-0.5)
	}
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
