package audio

import (
	"sync"
	"time"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	ebaudio "github.com/hajimehoshi/ebiten/v2/audio"
)

var (
	// ebiten allows one audio context per process
	contextOnce sync.Once
	context     *ebaudio.Context
	contextRate int
)

func sharedContext(sampleRate int) *ebaudio.Context {
	contextOnce.Do(func() {
		context = ebaudio.NewContext(sampleRate)
		contextRate = sampleRate
	})
	return context
}

// Output plays a Mixer on the default audio device
type Output struct {
	mixer  *Mixer
	player *ebaudio.Player
	once   sync.Once
}

// Open starts streaming mixer to the sound card. bufferSize trades latency
// for robustness; zero keeps ebiten's default.
func Open(mixer *Mixer, bufferSize time.Duration) (*Output, error) {
	ctx := sharedContext(mixer.SampleRate())
	if contextRate != mixer.SampleRate() {
		return nil, fault.New("audio context already running at a different sample rate",
			fmsg.WithDesc("sample rate mismatch", "Restart the player to change the sample rate"))
	}

	player, err := ctx.NewPlayer(mixer)
	if err != nil {
		return nil, fault.Wrap(err, fmsg.With("create audio player"))
	}
	if bufferSize > 0 {
		player.SetBufferSize(bufferSize)
	}
	player.Play()

	return &Output{mixer: mixer, player: player}, nil
}

// Mixer returns the mixer being played
func (o *Output) Mixer() *Mixer {
	return o.mixer
}

// Close stops playback
func (o *Output) Close() error {
	var err error
	o.once.Do(func() {
		o.player.Pause()
		err = o.player.Close()
	})
	return err
}
