package voice

import (
	"strings"
	"sync"
	"time"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"

	"notanalyzr/score"
)

// SendFunc writes one message to a MIDI output
type SendFunc func(gomidi.Message) error

// PortOpener opens an output port by name. An empty name selects the first
// available port.
type PortOpener func(name string) (send SendFunc, close func() error, err error)

// OpenPort opens a MIDI output through the registered gomidi driver. The
// driver itself is registered by the program (rtmididrv).
func OpenPort(name string) (SendFunc, func() error, error) {
	out, err := findOutPort(name)
	if err != nil {
		return nil, nil, err
	}
	send, err := gomidi.SendTo(out)
	if err != nil {
		return nil, nil, fault.Wrap(err, fmsg.With("open midi output "+out.String()))
	}
	return send, out.Close, nil
}

func findOutPort(name string) (drivers.Out, error) {
	outs := gomidi.GetOutPorts()
	if len(outs) == 0 {
		return nil, fault.Wrap(ErrPortNotFound,
			fmsg.WithDesc("no midi outputs", "No MIDI output ports found"),
			ftag.With(ftag.NotFound))
	}
	if name == "" {
		return outs[0], nil
	}
	want := strings.ToLower(name)
	for _, p := range outs {
		if strings.Contains(strings.ToLower(p.String()), want) {
			return p, nil
		}
	}
	return nil, fault.Wrap(ErrPortNotFound,
		fmsg.WithDesc("no port matching "+name, "MIDI output "+name+" not found"),
		ftag.With(ftag.NotFound))
}

type portNote struct {
	key   uint8
	timer *time.Timer
	on    bool
}

// PortVoice sends notes to an external MIDI device. Attack and release are
// timed with wall-clock timers.
type PortVoice struct {
	mu       sync.Mutex
	send     SendFunc
	close    func() error
	channel  uint8
	notes    map[*portNote]struct{}
	disposed bool
}

// NewPortVoice selects program on channel and returns a voice writing to send
func NewPortVoice(send SendFunc, closer func() error, program, channel uint8) *PortVoice {
	v := &PortVoice{
		send:    send,
		close:   closer,
		channel: channel & 0x0f,
		notes:   make(map[*portNote]struct{}),
	}
	if v.channel != drumChannel {
		v.send(gomidi.ProgramChange(v.channel, program&0x7f))
	}
	return v
}

func (v *PortVoice) TriggerAttackRelease(pitch score.Pitch, d time.Duration, at time.Time, velocity float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.disposed {
		return
	}

	n := &portNote{key: uint8(pitch)}
	vel := velocity127(velocity)
	v.notes[n] = struct{}{}
	n.timer = time.AfterFunc(startDelay(at), func() {
		v.mu.Lock()
		defer v.mu.Unlock()
		if _, live := v.notes[n]; !live {
			return
		}
		v.send(gomidi.NoteOn(v.channel, n.key, vel))
		n.on = true
		n.timer = time.AfterFunc(d, func() {
			v.mu.Lock()
			defer v.mu.Unlock()
			if _, live := v.notes[n]; !live {
				return
			}
			v.send(gomidi.NoteOff(v.channel, n.key))
			delete(v.notes, n)
		})
	})
}

// ReleaseAll cancels pending notes and sends note off for sounding ones
func (v *PortVoice) ReleaseAll() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.releaseLocked()
}

func (v *PortVoice) releaseLocked() {
	for n := range v.notes {
		n.timer.Stop()
		if n.on {
			v.send(gomidi.NoteOff(v.channel, n.key))
		}
		delete(v.notes, n)
	}
}

// Sounding returns the number of notes started or waiting to start
func (v *PortVoice) Sounding() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.notes)
}

func (v *PortVoice) Dispose() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.disposed {
		return nil
	}
	v.disposed = true
	v.releaseLocked()
	if v.close != nil {
		return v.close()
	}
	return nil
}
