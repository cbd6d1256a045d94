package transport

import "notanalyzr/score"

// State returns the current playback state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Playing reports whether the transport is running
func (s *Session) Playing() bool {
	return s.State() == Playing
}

// Disposed reports whether Dispose was called
func (s *Session) Disposed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposed
}

// Position returns the playhead in original-tempo seconds. While playing it
// advances once per poll interval.
func (s *Session) Position() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position
}

// Duration returns the score length in original-tempo seconds
func (s *Session) Duration() float64 {
	return s.duration
}

// TotalDuration returns the real playing time of the score at the current
// tempo, in seconds
func (s *Session) TotalDuration() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.duration * s.originalTempo / s.tempo
}

// Progress returns the position as a fraction of the score (0..1). It does
// not depend on the tempo.
func (s *Session) Progress() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.duration == 0 {
		return 0
	}
	return s.position / s.duration
}

// Tempo returns the current tempo in BPM
func (s *Session) Tempo() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tempo
}

// OriginalTempo returns the file's header tempo in BPM
func (s *Session) OriginalTempo() float64 {
	return s.originalTempo
}

// TempoRange returns the bounds SetTempo clamps to
func (s *Session) TempoRange() (min, max float64) {
	return s.minTempo, s.maxTempo
}

// Instrument returns the selected instrument id, empty when none
func (s *Session) Instrument() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.instrument
}

// Score returns the loaded score
func (s *Session) Score() *score.Score {
	return s.score
}

// Scheduled returns the number of note callbacks still pending
func (s *Session) Scheduled() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}
