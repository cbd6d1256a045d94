package score

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Pitch is a MIDI key number. C4 (middle C) is 60.
type Pitch uint8

var pitchNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// String returns the scientific pitch name, e.g. "C#4"
func (p Pitch) String() string {
	return fmt.Sprintf("%s%d", pitchNames[int(p)%12], int(p)/12-1)
}

// Octave returns the scientific octave number (-1..9)
func (p Pitch) Octave() int {
	return int(p)/12 - 1
}

// Frequency returns the equal-tempered frequency in Hz (A4 = 440)
func (p Pitch) Frequency() float64 {
	return 440 * math.Exp2((float64(p)-69)/12)
}

// ParsePitch parses names like "C4", "F#3", "Bb-1" or a bare key number.
func ParsePitch(s string) (Pitch, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty pitch")
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 || n > 127 {
			return 0, fmt.Errorf("pitch %d out of range", n)
		}
		return Pitch(n), nil
	}

	base := strings.Index("C D EF G A B", strings.ToUpper(s[:1]))
	if base < 0 {
		return 0, fmt.Errorf("invalid pitch name %q", s)
	}
	rest := s[1:]
	for len(rest) > 0 && (rest[0] == '#' || rest[0] == 'b') {
		if rest[0] == '#' {
			base++
		} else {
			base--
		}
		rest = rest[1:]
	}
	octave, err := strconv.Atoi(rest)
	if err != nil {
		return 0, fmt.Errorf("invalid octave in pitch %q", s)
	}
	key := (octave+1)*12 + base
	if key < 0 || key > 127 {
		return 0, fmt.Errorf("pitch %q out of range", s)
	}
	return Pitch(key), nil
}
