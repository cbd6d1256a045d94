package transport

import (
	"errors"
	"fmt"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
)

// State is the playback state of a Session
type State int

const (
	// Idle: no instrument selected yet, or the last load failed
	Idle State = iota
	// Loading: an instrument is being loaded, transport is stopped
	Loading
	// Ready: stopped with a voice
	Ready
	Playing
	// Paused: stopped with the position kept for resuming
	Paused
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

var (
	// ErrDisposed is returned by every operation on a disposed session
	ErrDisposed = errors.New("session disposed")
	// ErrInvalidTransition is returned when an operation is not allowed in
	// the current state, e.g. seeking while an instrument loads
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrInstrumentLoad reports that no voice could be built
	ErrInstrumentLoad = errors.New("instrument load failed")
	// ErrSuperseded is delivered to a SelectInstrument caller whose load was
	// replaced by a newer selection or by Dispose
	ErrSuperseded = errors.New("instrument load superseded")

	errNoLoader = errors.New("no instrument loader configured")
)

func disposedError(op string) error {
	return fault.Wrap(ErrDisposed, fmsg.With(op), ftag.With(ftag.Internal))
}

func transitionError(op string, from State) error {
	return fault.Wrap(ErrInvalidTransition,
		fmsg.WithDesc(fmt.Sprintf("%s while %s", op, from), fmt.Sprintf("Cannot %s while %s", op, from)),
		ftag.With(ftag.InvalidArgument))
}

func loadError(id string, err error) error {
	return fault.Wrap(fmt.Errorf("%w: %w", ErrInstrumentLoad, err),
		fmsg.WithDesc("load instrument "+id, fmt.Sprintf("Could not load instrument %q", id)),
	)
}
