// Package audio mixes in-process voices into a 16-bit stereo PCM stream.
package audio

import (
	"encoding/binary"
	"sync"
)

// DefaultSampleRate is used when the config does not set one
const DefaultSampleRate = 44100

// Source renders audio into left/right. Buffers arrive zeroed and a source
// may overwrite them.
type Source interface {
	Render(left, right []float32)
}

// Mixer sums its sources. It implements io.Reader producing interleaved
// little-endian int16 stereo frames, the format ebiten's audio player reads.
type Mixer struct {
	mu         sync.Mutex
	sampleRate int
	gain       float32
	sources    []Source

	left, right       []float32
	scratchL, scratchR []float32
}

// NewMixer creates an empty mixer
func NewMixer(sampleRate int) *Mixer {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	return &Mixer{sampleRate: sampleRate, gain: 0.8}
}

// SampleRate returns the mixer's frame rate
func (m *Mixer) SampleRate() int {
	return m.sampleRate
}

// SetGain sets the master gain (clamped to 0..2)
func (m *Mixer) SetGain(g float32) {
	if g < 0 {
		g = 0
	}
	if g > 2 {
		g = 2
	}
	m.mu.Lock()
	m.gain = g
	m.mu.Unlock()
}

// Add attaches a source. Adding the same source twice is a no-op.
func (m *Mixer) Add(s Source) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, have := range m.sources {
		if have == s {
			return
		}
	}
	m.sources = append(m.sources, s)
}

// Remove detaches a source
func (m *Mixer) Remove(s Source) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, have := range m.sources {
		if have == s {
			m.sources = append(m.sources[:i], m.sources[i+1:]...)
			return
		}
	}
}

// Len returns the number of attached sources
func (m *Mixer) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sources)
}

// Mix renders all sources summed into left/right
func (m *Mixer) Mix(left, right []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mixLocked(left, right)
}

func (m *Mixer) mixLocked(left, right []float32) {
	n := len(left)
	clear(left)
	clear(right)
	if cap(m.scratchL) < n {
		m.scratchL = make([]float32, n)
		m.scratchR = make([]float32, n)
	}
	sl, sr := m.scratchL[:n], m.scratchR[:n]
	for _, s := range m.sources {
		clear(sl)
		clear(sr)
		s.Render(sl, sr)
		for i := 0; i < n; i++ {
			left[i] += sl[i]
			right[i] += sr[i]
		}
	}
	for i := 0; i < n; i++ {
		left[i] *= m.gain
		right[i] *= m.gain
	}
}

// Read fills p with whole stereo frames. It never returns an error; a mixer
// without sources produces silence.
func (m *Mixer) Read(p []byte) (int, error) {
	frames := len(p) / 4
	if frames == 0 {
		return 0, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if cap(m.left) < frames {
		m.left = make([]float32, frames)
		m.right = make([]float32, frames)
	}
	left, right := m.left[:frames], m.right[:frames]
	m.mixLocked(left, right)

	for i := 0; i < frames; i++ {
		binary.LittleEndian.PutUint16(p[i*4:], uint16(toInt16(left[i])))
		binary.LittleEndian.PutUint16(p[i*4+2:], uint16(toInt16(right[i])))
	}
	return frames * 4, nil
}

func toInt16(v float32) int16 {
	if v > 1 {
		v = 1
	}
	if v < -1 {
		v = -1
	}
	return int16(v * 32767)
}
