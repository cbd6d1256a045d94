// Package clock provides the transport clock that note callbacks are
// scheduled on. Clock time is measured in beats so that changing the tempo
// moves every pending event without rescheduling it.
package clock

import "time"

// Handle identifies a scheduled callback
type Handle uint64

// Func is a scheduled callback. at is the wall time the event was due,
// which may be slightly earlier than the moment it runs.
type Func func(at time.Time)

// Clock is a tempo-aware scheduler
type Clock interface {
	// Start runs the clock from beat 0. No-op when already running.
	Start()
	// Stop halts the clock and rewinds it to beat 0. Pending events stay
	// queued until cancelled.
	Stop()
	SetTempo(bpm float64)
	Tempo() float64
	// Elapsed returns beats since Start (0 when stopped)
	Elapsed() float64
	// Schedule registers fn to run when the clock reaches beat
	Schedule(beat float64, fn Func) Handle
	Cancel(h Handle)
	CancelAll()
	// Every runs fn at a fixed wall-clock interval until stop is called
	Every(interval time.Duration, fn func()) (stop func())
	Close() error
}

// DefaultTempo matches the MIDI default
const DefaultTempo = 120.0

// BeatsToDuration converts beats at bpm to wall time
func BeatsToDuration(beats, bpm float64) time.Duration {
	return time.Duration(beats * 60 / bpm * float64(time.Second))
}

// DurationToBeats converts wall time at bpm to beats
func DurationToBeats(d time.Duration, bpm float64) float64 {
	return d.Seconds() * bpm / 60
}

func sanitizeTempo(bpm float64) float64 {
	if bpm <= 0 {
		return DefaultTempo
	}
	return bpm
}
