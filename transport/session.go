// Package transport plays a parsed score through a voice on a tempo-aware
// clock.
//
// Positions are kept in original-tempo seconds: the time a note has in the
// file itself. Scheduling converts them to clock beats once, when playback
// starts or seeks. A tempo change only moves the clock's tempo, so pending
// callbacks keep their beats and the position stays meaningful.
package transport

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"notanalyzr/clock"
	"notanalyzr/score"
	"notanalyzr/voice"
)

const (
	DefaultPollInterval = 100 * time.Millisecond
	DefaultMinTempo     = 50.0
	DefaultMaxTempo     = 200.0
)

// VoiceLoader builds the voice for an instrument id. voice.Loader
// implements it.
type VoiceLoader interface {
	Load(ctx context.Context, id string) (voice.Voice, error)
}

// Session owns the playback state of one loaded score. All methods are
// safe for concurrent use.
type Session struct {
	mu sync.Mutex

	clock        clock.Clock
	ownsClock    bool
	loader       VoiceLoader
	logger       *zap.Logger
	pollInterval time.Duration
	minTempo     float64
	maxTempo     float64

	score         *score.Score
	notes         []score.Note
	duration      float64 // original-tempo seconds
	originalTempo float64
	tempo         float64

	state        State
	disposed     bool
	position     float64
	segmentStart float64 // position when the current segment started

	voice      voice.Voice
	instrument string

	handles    map[clock.Handle]struct{}
	generation uint64
	stopPoll   func()

	loadGeneration uint64
	cancelLoad     context.CancelFunc

	updates chan struct{}
}

// Option configures a Session
type Option func(*Session)

// WithClock plays on c instead of a private clock.Transport. The session
// does not close c.
func WithClock(c clock.Clock) Option {
	return func(s *Session) {
		if c != nil {
			s.clock = c
			s.ownsClock = false
		}
	}
}

// WithLoader sets how SelectInstrument builds voices
func WithLoader(l VoiceLoader) Option {
	return func(s *Session) { s.loader = l }
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithPollInterval sets how often the position is read from the clock
func WithPollInterval(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// WithTempoRange sets the bounds SetTempo clamps to
func WithTempoRange(min, max float64) Option {
	return func(s *Session) {
		if min > 0 && max >= min {
			s.minTempo, s.maxTempo = min, max
		}
	}
}

// WithTempo starts the session at bpm instead of the file tempo
func WithTempo(bpm float64) Option {
	return func(s *Session) {
		if bpm > 0 {
			s.tempo = bpm
		}
	}
}

// Load parses MIDI bytes into a new session. Parse failures match
// score.ErrParse and create nothing.
func Load(data []byte, opts ...Option) (*Session, error) {
	sc, err := score.Parse(data)
	if err != nil {
		return nil, err
	}
	return NewSession(sc, opts...), nil
}

// NewSession creates an Idle session over an already parsed score
func NewSession(sc *score.Score, opts ...Option) *Session {
	s := &Session{
		logger:        zap.NewNop(),
		pollInterval:  DefaultPollInterval,
		minTempo:      DefaultMinTempo,
		maxTempo:      DefaultMaxTempo,
		score:         sc,
		notes:         sc.Notes(),
		duration:      sc.Duration(),
		originalTempo: sc.HeaderTempo,
		handles:       make(map[clock.Handle]struct{}),
		updates:       make(chan struct{}, 1),
	}
	if s.originalTempo <= 0 {
		s.originalTempo = score.DefaultTempo
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.clock == nil {
		s.clock = clock.NewTransport()
		s.ownsClock = true
	}
	if s.tempo == 0 {
		s.tempo = s.originalTempo
	} else {
		s.tempo = s.clampTempo(s.tempo)
	}

	s.logger.Info("session loaded",
		zap.Int("tracks", len(sc.Tracks)),
		zap.Int("notes", len(s.notes)),
		zap.Float64("duration", s.duration),
		zap.Float64("tempo", s.originalTempo),
	)
	return s
}

// Updates receives a value whenever state, position, tempo or instrument
// changed. Notifications coalesce; read the current values after receiving.
func (s *Session) Updates() <-chan struct{} {
	return s.updates
}

func (s *Session) notify() {
	select {
	case s.updates <- struct{}{}:
	default:
	}
}

func (s *Session) setState(st State) {
	if s.state == st {
		return
	}
	s.logger.Debug("state", zap.Stringer("from", s.state), zap.Stringer("to", st))
	s.state = st
}

func (s *Session) clampTempo(bpm float64) float64 {
	if bpm < s.minTempo {
		return s.minTempo
	}
	if bpm > s.maxTempo {
		return s.maxTempo
	}
	return bpm
}

func (s *Session) clampPosition(pos float64) float64 {
	if pos < 0 || math.IsNaN(pos) {
		return 0
	}
	if pos > s.duration {
		return s.duration
	}
	return pos
}

// Play starts playback from the current position. It is a no-op while
// playing. An empty score, or a position at the end, leaves the session
// stopped at 0.
func (s *Session) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return disposedError("play")
	}
	if s.state == Playing {
		return nil
	}
	return s.playLocked(s.position)
}

// PlayFrom starts playback at from (original-tempo seconds). It is a no-op
// while playing; use Seek to move a running playback.
func (s *Session) PlayFrom(from float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return disposedError("play")
	}
	if s.state == Playing {
		return nil
	}
	return s.playLocked(from)
}

func (s *Session) playLocked(from float64) error {
	if s.duration == 0 {
		s.cancelLocked()
		s.position = 0
		if s.state == Paused {
			s.setState(Ready)
		}
		s.notify()
		return nil
	}
	if s.state != Ready && s.state != Paused {
		return transitionError("play", s.state)
	}

	s.cancelLocked()
	from = s.clampPosition(from)
	if from >= s.duration {
		s.position = 0
		s.setState(Ready)
		s.notify()
		return nil
	}

	s.clock.SetTempo(s.tempo)
	gen := s.generation
	beatsPerSecond := s.originalTempo / 60

	first := sort.Search(len(s.notes), func(i int) bool {
		return s.notes[i].Start >= from
	})
	for _, n := range s.notes[first:] {
		s.scheduleLocked(gen, (n.Start-from)*beatsPerSecond, n)
	}

	s.position = from
	s.segmentStart = from
	s.setState(Playing)
	s.clock.Start()
	s.stopPoll = s.clock.Every(s.pollInterval, func() { s.poll(gen) })

	s.logger.Debug("playing",
		zap.Float64("from", from),
		zap.Int("scheduled", len(s.handles)),
		zap.Float64("tempo", s.tempo),
	)
	s.notify()
	return nil
}

func (s *Session) scheduleLocked(gen uint64, beat float64, n score.Note) {
	var h clock.Handle
	h = s.clock.Schedule(beat, func(at time.Time) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.disposed || gen != s.generation {
			return
		}
		delete(s.handles, h)
		if s.voice == nil {
			return
		}
		d := time.Duration(n.Duration * s.originalTempo / s.tempo * float64(time.Second))
		s.voice.TriggerAttackRelease(n.Pitch, d, at, n.Velocity)
	})
	s.handles[h] = struct{}{}
}

// poll moves the position from the clock and stops at the end
func (s *Session) poll(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed || gen != s.generation || s.state != Playing {
		return
	}

	s.position = s.clampPosition(s.elapsedLocked())
	if s.position >= s.duration {
		s.logger.Debug("reached end", zap.Float64("duration", s.duration))
		s.haltLocked()
		s.position = 0
		s.setState(Ready)
	}
	s.notify()
}

// elapsedLocked converts clock beats back to original-tempo seconds. Beats
// are tempo-independent so tempo changes during the segment do not matter.
func (s *Session) elapsedLocked() float64 {
	return s.segmentStart + s.clock.Elapsed()*60/s.originalTempo
}

// cancelLocked invalidates every scheduled callback and stops the clock
// and poller. Callbacks already dequeued by the clock see a new generation
// and drop themselves.
func (s *Session) cancelLocked() {
	s.generation++
	for h := range s.handles {
		s.clock.Cancel(h)
		delete(s.handles, h)
	}
	if s.stopPoll != nil {
		s.stopPoll()
		s.stopPoll = nil
	}
	s.clock.Stop()
}

// haltLocked cancels playback and silences the voice
func (s *Session) haltLocked() {
	s.cancelLocked()
	if r, ok := s.voice.(voice.Releaser); ok {
		r.ReleaseAll()
	}
}

// Pause stops playback and keeps the position. Idempotent.
func (s *Session) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return disposedError("pause")
	}
	if s.state != Playing {
		return nil
	}
	pos := s.clampPosition(s.elapsedLocked())
	s.haltLocked()
	s.position = pos
	s.setState(Paused)
	s.notify()
	return nil
}

// Stop stops playback and rewinds to 0. Idempotent.
func (s *Session) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return disposedError("stop")
	}
	s.stopLocked()
	return nil
}

func (s *Session) stopLocked() {
	if s.state == Playing {
		s.haltLocked()
	}
	if s.state == Playing || s.state == Paused {
		s.setState(Ready)
	}
	s.position = 0
	s.notify()
}

// Seek moves the playhead to pos, clamped to the score. While playing,
// playback continues from pos; seeking to the end stops it there.
func (s *Session) Seek(pos float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return disposedError("seek")
	}
	if s.state == Loading {
		return transitionError("seek", s.state)
	}

	pos = s.clampPosition(pos)
	if s.state != Playing {
		s.position = pos
		s.notify()
		return nil
	}
	// the polled position lags the clock, compare with the live playhead
	if pos == s.clampPosition(s.elapsedLocked()) {
		return nil
	}

	s.haltLocked()
	s.setState(Paused)
	if pos >= s.duration {
		s.position = pos
		s.notify()
		return nil
	}
	return s.playLocked(pos)
}

// SetTempo clamps bpm to the session's range and applies it. Pending
// callbacks follow the clock's tempo without being rescheduled.
func (s *Session) SetTempo(bpm float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return disposedError("set tempo")
	}
	bpm = s.clampTempo(bpm)
	if bpm == s.tempo {
		return nil
	}
	s.tempo = bpm
	if s.state == Playing {
		s.clock.SetTempo(bpm)
	}
	s.logger.Debug("tempo", zap.Float64("bpm", bpm))
	s.notify()
	return nil
}

// SelectInstrument switches to instrument id. A playing session is stopped
// before this returns and the previous voice is disposed; the new voice
// loads in the background. The returned channel yields the load result
// once and is then closed.
func (s *Session) SelectInstrument(ctx context.Context, id string) <-chan error {
	done := make(chan error, 1)
	finish := func(err error) {
		done <- err
		close(done)
	}

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		finish(disposedError("select instrument"))
		return done
	}
	if s.state == Playing {
		s.stopLocked()
	}
	if s.cancelLoad != nil {
		s.cancelLoad()
		s.cancelLoad = nil
	}
	old := s.voice
	s.voice = nil
	s.instrument = id
	s.loadGeneration++
	gen := s.loadGeneration
	loader := s.loader

	if loader == nil {
		s.setState(Idle)
		s.notify()
		s.mu.Unlock()
		disposeVoice(s.logger, old)
		finish(loadError(id, errNoLoader))
		return done
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancelLoad = cancel
	s.setState(Loading)
	s.notify()
	s.mu.Unlock()

	disposeVoice(s.logger, old)
	s.logger.Info("loading instrument", zap.String("instrument", id))

	go func() {
		defer cancel()
		v, err := loader.Load(ctx, id)
		finish(s.installVoice(gen, id, v, err))
	}()
	return done
}

// installVoice makes v the session voice if its load is still current
func (s *Session) installVoice(gen uint64, id string, v voice.Voice, err error) error {
	s.mu.Lock()
	if s.disposed || gen != s.loadGeneration {
		s.mu.Unlock()
		disposeVoice(s.logger, v)
		return ErrSuperseded
	}
	s.cancelLoad = nil
	if err != nil {
		s.instrument = ""
		s.setState(Idle)
		s.notify()
		s.mu.Unlock()
		s.logger.Warn("instrument load failed", zap.String("instrument", id), zap.Error(err))
		return loadError(id, err)
	}

	s.voice = v
	s.setState(Ready)
	s.notify()
	s.mu.Unlock()
	s.logger.Info("instrument ready", zap.String("instrument", id))
	return nil
}

func disposeVoice(logger *zap.Logger, v voice.Voice) {
	if v == nil {
		return
	}
	if err := v.Dispose(); err != nil {
		logger.Warn("dispose voice", zap.Error(err))
	}
}

// Dispose stops playback, releases the voice and closes an owned clock.
// Every later call, including a second Dispose, returns ErrDisposed.
func (s *Session) Dispose() error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return disposedError("dispose")
	}
	s.cancelLocked()
	s.disposed = true
	if s.cancelLoad != nil {
		s.cancelLoad()
		s.cancelLoad = nil
	}
	v := s.voice
	s.voice = nil
	s.instrument = ""
	s.position = 0
	s.setState(Idle)
	s.notify()
	s.mu.Unlock()

	// outside the lock: closing waits for the clock's callback goroutine,
	// which may be blocked on mu
	disposeVoice(s.logger, v)
	var err error
	if s.ownsClock {
		err = s.clock.Close()
	}
	s.logger.Info("session disposed")
	return err
}
