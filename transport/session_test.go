package transport

import (
	"bytes"
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"testing"
	"time"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"notanalyzr/clock"
	"notanalyzr/score"
	"notanalyzr/voice"
)

type trigger struct {
	pitch    score.Pitch
	duration time.Duration
	at       time.Time
	velocity float64
}

type fakeVoice struct {
	mu       sync.Mutex
	id       string
	triggers []trigger
	released int
	disposed bool
}

func (v *fakeVoice) TriggerAttackRelease(p score.Pitch, d time.Duration, at time.Time, vel float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.triggers = append(v.triggers, trigger{p, d, at, vel})
}

func (v *fakeVoice) ReleaseAll() {
	v.mu.Lock()
	v.released++
	v.mu.Unlock()
}

func (v *fakeVoice) Dispose() error {
	v.mu.Lock()
	v.disposed = true
	v.mu.Unlock()
	return nil
}

func (v *fakeVoice) take() []trigger {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := v.triggers
	v.triggers = nil
	return out
}

func (v *fakeVoice) isDisposed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.disposed
}

type fakeLoader struct {
	mu     sync.Mutex
	gate   chan struct{} // loads block until closed when set
	err    error
	voices []*fakeVoice
}

func (l *fakeLoader) Load(ctx context.Context, id string) (voice.Voice, error) {
	l.mu.Lock()
	gate, err := l.gate, l.err
	l.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
		}
	}
	if err != nil {
		return nil, err
	}
	v := &fakeVoice{id: id}
	l.mu.Lock()
	l.voices = append(l.voices, v)
	l.mu.Unlock()
	return v, nil
}

func (l *fakeLoader) last() *fakeVoice {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.voices) == 0 {
		return nil
	}
	return l.voices[len(l.voices)-1]
}

func twoNotes() *score.Score {
	return score.FromNotes(120, []score.Note{
		{Pitch: 64, Start: 1, Duration: 1, Velocity: 0.5},
		{Pitch: 60, Start: 0, Duration: 1, Velocity: 1},
	})
}

func waitLoad(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("instrument load did not finish")
		return nil
	}
}

// newReady returns a Ready session on a manual clock and its voice
func newReady(t *testing.T, sc *score.Score, opts ...Option) (*Session, *clock.Manual, *fakeVoice) {
	t.Helper()
	m := clock.NewManual()
	loader := &fakeLoader{}
	s := NewSession(sc, append([]Option{WithClock(m), WithLoader(loader)}, opts...)...)
	if err := waitLoad(t, s.SelectInstrument(context.Background(), "piano")); err != nil {
		t.Fatalf("SelectInstrument: %v", err)
	}
	if s.State() != Ready {
		t.Fatalf("state = %v, want ready", s.State())
	}
	return s, m, loader.last()
}

func near(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func TestTwoNoteScenario(t *testing.T) {
	s, m, v := newReady(t, twoNotes())
	if s.Duration() != 2 || s.TotalDuration() != 2 {
		t.Fatalf("duration %v total %v, want 2", s.Duration(), s.TotalDuration())
	}

	start := m.Now()
	if err := s.Play(); err != nil {
		t.Fatalf("Play: %v", err)
	}
	m.Advance(0)
	got := v.take()
	if len(got) != 1 || got[0].pitch.String() != "C4" || !got[0].at.Equal(start) || got[0].duration != time.Second {
		t.Fatalf("at start got %+v, want C4 immediately", got)
	}

	m.Advance(999 * time.Millisecond)
	if got := v.take(); len(got) != 0 {
		t.Fatalf("E4 fired early: %+v", got)
	}
	m.Advance(time.Millisecond)
	got = v.take()
	if len(got) != 1 || got[0].pitch.String() != "E4" || got[0].at.Sub(start) != time.Second {
		t.Fatalf("got %+v, want E4 after 1s", got)
	}

	m.Advance(time.Second)
	if s.State() != Ready || s.Position() != 0 {
		t.Fatalf("after end state %v position %v, want ready at 0", s.State(), s.Position())
	}
	if m.Pending() != 0 || m.Tickers() != 0 || s.Scheduled() != 0 {
		t.Fatalf("leftover work: pending %d tickers %d scheduled %d", m.Pending(), m.Tickers(), s.Scheduled())
	}
}

func TestSeekThenPlayTriggersOnlyLaterNotes(t *testing.T) {
	s, m, v := newReady(t, twoNotes())

	s.Seek(0.5)
	start := m.Now()
	s.Play()
	m.Advance(0)
	if got := v.take(); len(got) != 0 {
		t.Fatalf("note before the seek point fired: %+v", got)
	}
	m.Advance(500 * time.Millisecond)
	got := v.take()
	if len(got) != 1 || got[0].pitch != 64 || got[0].at.Sub(start) != 500*time.Millisecond {
		t.Fatalf("got %+v, want E4 0.5s after seek", got)
	}
	s.Stop()

	// E4 starts at 1s, so nothing is left to start after 1.5s
	s.Seek(1.5)
	s.Play()
	m.Advance(time.Second)
	if got := v.take(); len(got) != 0 {
		t.Fatalf("seek to 1.5 triggered %+v", got)
	}
	if s.State() != Ready {
		t.Fatalf("state = %v, want ready after reaching the end", s.State())
	}
}

func TestSlowerTempoDoublesOffsets(t *testing.T) {
	s, m, v := newReady(t, twoNotes())
	if err := s.SetTempo(60); err != nil {
		t.Fatalf("SetTempo: %v", err)
	}
	if s.TotalDuration() != 4 || s.Duration() != 2 {
		t.Fatalf("total %v duration %v", s.TotalDuration(), s.Duration())
	}

	s.Seek(0.5)
	if s.Position() != 0.5 {
		t.Fatalf("position = %v, want 0.5 original-tempo seconds", s.Position())
	}
	start := m.Now()
	s.Play()
	m.Advance(999 * time.Millisecond)
	if got := v.take(); len(got) != 0 {
		t.Fatalf("fired early: %+v", got)
	}
	m.Advance(time.Millisecond)
	got := v.take()
	if len(got) != 1 || got[0].at.Sub(start) != time.Second || got[0].duration != 2*time.Second {
		t.Fatalf("got %+v, want E4 after 1s lasting 2s", got)
	}
	if !near(s.Position(), 1) {
		t.Fatalf("position = %v, want 1", s.Position())
	}
}

func TestPlayThenStopFiresNothing(t *testing.T) {
	s, m, v := newReady(t, twoNotes())
	s.Play()
	if s.Scheduled() != 2 {
		t.Fatalf("scheduled = %d, want 2", s.Scheduled())
	}
	s.Stop()
	if s.Scheduled() != 0 || m.Pending() != 0 || m.Tickers() != 0 {
		t.Fatalf("stop left work behind: scheduled %d pending %d tickers %d", s.Scheduled(), m.Pending(), m.Tickers())
	}
	m.Advance(5 * time.Second)
	if got := v.take(); len(got) != 0 {
		t.Fatalf("cancelled notes fired: %+v", got)
	}
}

func TestSeekPropertyRandomScores(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	var notes []score.Note
	for i := 0; i < 50; i++ {
		notes = append(notes, score.Note{
			Pitch:    score.Pitch(30 + i),
			Start:    math.Round(rng.Float64()*1000) / 100,
			Duration: 0.1 + rng.Float64(),
			Velocity: rng.Float64(),
		})
	}
	s, m, v := newReady(t, score.FromNotes(120, notes))

	for _, from := range []float64{0, 0.37, 2, 4.5, 9.99, s.Duration() - 0.01} {
		s.Stop()
		s.Seek(from)
		start := m.Now()
		s.Play()
		m.Advance(15 * time.Second)

		want := make(map[score.Pitch]float64)
		for _, n := range notes {
			if n.Start >= from {
				want[n.Pitch] = n.Start
			}
		}
		got := v.take()
		if len(got) != len(want) {
			t.Fatalf("from %v: %d triggers, want %d", from, len(got), len(want))
		}
		for _, tr := range got {
			noteStart, ok := want[tr.pitch]
			if !ok {
				t.Fatalf("from %v: note %s starting before the seek point fired", from, tr.pitch)
			}
			if off := tr.at.Sub(start).Seconds(); math.Abs(off-(noteStart-from)) > 1e-6 {
				t.Errorf("from %v: %s at %v, want %v", from, tr.pitch, off, noteStart-from)
			}
		}
		if s.State() != Ready {
			t.Fatalf("from %v: state %v after the end", from, s.State())
		}
	}
}

func TestPauseResumes(t *testing.T) {
	s, m, v := newReady(t, twoNotes())
	s.Play()
	m.Advance(700 * time.Millisecond)
	v.take()

	if err := s.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if s.State() != Paused || !near(s.Position(), 0.7) {
		t.Fatalf("state %v position %v, want paused at 0.7", s.State(), s.Position())
	}
	if v.released == 0 {
		t.Error("voice not released on pause")
	}
	m.Advance(time.Second)
	if got := v.take(); len(got) != 0 {
		t.Fatalf("fired while paused: %+v", got)
	}

	start := m.Now()
	s.Play()
	m.Advance(300 * time.Millisecond)
	got := v.take()
	if len(got) != 1 || got[0].pitch != 64 || !near(got[0].at.Sub(start).Seconds(), 0.3) {
		t.Fatalf("resume got %+v, want E4 after 0.3s", got)
	}
}

func TestPauseAndStopAreIdempotent(t *testing.T) {
	s, m, _ := newReady(t, twoNotes())
	s.Play()
	m.Advance(400 * time.Millisecond)

	s.Pause()
	state, pos := s.State(), s.Position()
	s.Pause()
	if s.State() != state || s.Position() != pos {
		t.Fatalf("second pause changed state: %v %v -> %v %v", state, pos, s.State(), s.Position())
	}

	s.Stop()
	state, pos = s.State(), s.Position()
	s.Stop()
	if s.State() != state || s.Position() != pos || state != Ready || pos != 0 {
		t.Fatalf("stop twice: %v %v -> %v %v", state, pos, s.State(), s.Position())
	}
}

func TestProgressIsTempoInvariant(t *testing.T) {
	s, m, _ := newReady(t, twoNotes())
	s.Play()
	m.Advance(500 * time.Millisecond)
	if !near(s.Progress(), 0.25) {
		t.Fatalf("progress = %v, want 0.25", s.Progress())
	}

	s.SetTempo(60)
	if !near(s.Progress(), 0.25) {
		t.Fatalf("progress jumped to %v on tempo change", s.Progress())
	}
	if s.TotalDuration() != 4 {
		t.Fatalf("total duration = %v, want 4", s.TotalDuration())
	}

	// half a second at 60 BPM is half a beat, a quarter original second
	m.Advance(500 * time.Millisecond)
	if !near(s.Position(), 0.75) || !near(s.Progress(), 0.375) {
		t.Fatalf("position %v progress %v, want 0.75 and 0.375", s.Position(), s.Progress())
	}
}

func TestSeekRoundTrip(t *testing.T) {
	s, _, _ := newReady(t, twoNotes())
	for _, x := range []float64{-1, 0, 0.3, 1.7, 2, 5, math.NaN()} {
		if err := s.Seek(x); err != nil {
			t.Fatalf("Seek(%v): %v", x, err)
		}
		want := math.Max(0, math.Min(x, 2))
		if math.IsNaN(x) {
			want = 0
		}
		if got := s.Position(); got != want {
			t.Errorf("Seek(%v) -> %v, want %v", x, got, want)
		}
	}

	s.Seek(0)
	s.Play()
	for _, x := range []float64{0.3, 1.7} {
		s.Seek(x)
		if got := s.Position(); got != x || s.State() != Playing {
			t.Errorf("playing Seek(%v) -> %v %v", x, got, s.State())
		}
	}
}

func TestSeekPastEndWhilePlayingHalts(t *testing.T) {
	s, m, v := newReady(t, twoNotes())
	s.Play()
	m.Advance(0)
	v.take()

	s.Seek(10)
	if s.State() != Paused || s.Position() != 2 {
		t.Fatalf("state %v position %v, want paused at the end", s.State(), s.Position())
	}
	if s.Scheduled() != 0 || m.Pending() != 0 {
		t.Fatalf("work left after seeking past the end")
	}
	m.Advance(3 * time.Second)
	if got := v.take(); len(got) != 0 {
		t.Fatalf("fired after seek to end: %+v", got)
	}

	// playing from the end stops straight away
	s.Play()
	if s.State() != Ready || s.Position() != 0 {
		t.Fatalf("state %v position %v, want ready at 0", s.State(), s.Position())
	}
}

func TestSeekToSamePositionKeepsSchedule(t *testing.T) {
	s, m, _ := newReady(t, twoNotes())
	s.Seek(0.5)
	s.Play()
	before := m.Pending()
	s.Seek(0.5)
	if m.Pending() != before || s.State() != Playing {
		t.Fatalf("same-position seek rescheduled: %d -> %d", before, m.Pending())
	}
}

func TestEmptyScore(t *testing.T) {
	s, m, _ := newReady(t, score.FromNotes(120, nil))
	if s.Duration() != 0 || s.TotalDuration() != 0 {
		t.Fatalf("duration %v total %v", s.Duration(), s.TotalDuration())
	}
	if err := s.Play(); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if s.State() != Ready || s.Position() != 0 || m.Tickers() != 0 {
		t.Fatalf("state %v position %v tickers %d", s.State(), s.Position(), m.Tickers())
	}
	if s.Progress() != 0 {
		t.Fatalf("progress = %v", s.Progress())
	}
}

func TestSetTempoClamps(t *testing.T) {
	s, m, _ := newReady(t, twoNotes())
	s.SetTempo(500)
	if s.Tempo() != DefaultMaxTempo {
		t.Errorf("tempo = %v, want %v", s.Tempo(), DefaultMaxTempo)
	}
	s.SetTempo(1)
	if s.Tempo() != DefaultMinTempo {
		t.Errorf("tempo = %v, want %v", s.Tempo(), DefaultMinTempo)
	}
	s.SetTempo(90)
	s.Play()
	if m.Tempo() != 90 {
		t.Errorf("clock tempo = %v, want 90", m.Tempo())
	}
	s.SetTempo(150)
	if m.Tempo() != 150 {
		t.Errorf("live clock tempo = %v, want 150", m.Tempo())
	}
	if s.OriginalTempo() != 120 {
		t.Errorf("original tempo changed to %v", s.OriginalTempo())
	}

	r := NewSession(twoNotes(), WithClock(clock.NewManual()), WithTempoRange(100, 110), WithTempo(300))
	if r.Tempo() != 110 {
		t.Errorf("WithTempo not clamped: %v", r.Tempo())
	}
}

func TestInstrumentSwitchWhilePlayingStops(t *testing.T) {
	m := clock.NewManual()
	loader := &fakeLoader{}
	s := NewSession(twoNotes(), WithClock(m), WithLoader(loader))
	waitLoad(t, s.SelectInstrument(context.Background(), "piano"))
	first := loader.last()

	s.Play()
	m.Advance(300 * time.Millisecond)
	first.take()

	gate := make(chan struct{})
	loader.mu.Lock()
	loader.gate = gate
	loader.mu.Unlock()

	done := s.SelectInstrument(context.Background(), "strings")
	if s.Playing() || s.State() != Loading {
		t.Fatalf("state = %v right after switching, want loading", s.State())
	}
	if s.Position() != 0 || s.Scheduled() != 0 || m.Pending() != 0 || m.Tickers() != 0 {
		t.Fatalf("switch did not stop playback")
	}
	if !first.isDisposed() {
		t.Fatal("previous voice not disposed")
	}
	if err := s.Play(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Play while loading: %v", err)
	}
	if err := s.Seek(1); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Seek while loading: %v", err)
	}

	close(gate)
	if err := waitLoad(t, done); err != nil {
		t.Fatalf("load: %v", err)
	}
	if s.State() != Ready || s.Instrument() != "strings" {
		t.Fatalf("state %v instrument %q", s.State(), s.Instrument())
	}
	m.Advance(2 * time.Second)
	if got := first.take(); len(got) != 0 {
		t.Fatalf("old voice played after the switch: %+v", got)
	}
}

func TestSupersededLoadIsDiscarded(t *testing.T) {
	gate := make(chan struct{})
	loader := &fakeLoader{gate: gate}
	s := NewSession(twoNotes(), WithClock(clock.NewManual()), WithLoader(loader))

	first := s.SelectInstrument(context.Background(), "a")
	second := s.SelectInstrument(context.Background(), "b")
	close(gate)

	if err := waitLoad(t, first); !errors.Is(err, ErrSuperseded) {
		t.Fatalf("first load: %v, want ErrSuperseded", err)
	}
	if err := waitLoad(t, second); err != nil {
		t.Fatalf("second load: %v", err)
	}
	if s.Instrument() != "b" || s.State() != Ready {
		t.Fatalf("instrument %q state %v", s.Instrument(), s.State())
	}

	loader.mu.Lock()
	defer loader.mu.Unlock()
	live := 0
	for _, v := range loader.voices {
		if !v.isDisposed() {
			live++
		}
	}
	if live != 1 {
		t.Fatalf("%d live voices, want exactly 1", live)
	}
}

func TestInstrumentLoadFailure(t *testing.T) {
	errBroken := errors.New("broken synth")
	s := NewSession(twoNotes(), WithClock(clock.NewManual()), WithLoader(&fakeLoader{err: errBroken}))
	err := waitLoad(t, s.SelectInstrument(context.Background(), "piano"))
	if !errors.Is(err, ErrInstrumentLoad) || !errors.Is(err, errBroken) {
		t.Fatalf("err = %v", err)
	}
	if s.State() != Idle || s.Instrument() != "" {
		t.Fatalf("state %v instrument %q after failure", s.State(), s.Instrument())
	}
	if err := s.Play(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Play without a voice: %v", err)
	}

	none := NewSession(twoNotes(), WithClock(clock.NewManual()))
	if err := waitLoad(t, none.SelectInstrument(context.Background(), "piano")); !errors.Is(err, ErrInstrumentLoad) {
		t.Fatalf("no loader: %v", err)
	}
}

func TestDispose(t *testing.T) {
	s, m, v := newReady(t, twoNotes())
	s.Play()
	m.Advance(100 * time.Millisecond)
	v.take()

	if err := s.Dispose(); err != nil {
		t.Fatalf("Dispose: %v", err)
	}
	if !v.isDisposed() {
		t.Error("voice not disposed")
	}
	if m.Pending() != 0 || m.Tickers() != 0 {
		t.Fatalf("pending %d tickers %d after dispose", m.Pending(), m.Tickers())
	}
	if m.Closed() {
		t.Error("borrowed clock closed")
	}
	m.Advance(3 * time.Second)
	if got := v.take(); len(got) != 0 {
		t.Fatalf("fired after dispose: %+v", got)
	}

	ops := map[string]func() error{
		"play":    s.Play,
		"pause":   s.Pause,
		"stop":    s.Stop,
		"seek":    func() error { return s.Seek(1) },
		"tempo":   func() error { return s.SetTempo(100) },
		"from":    func() error { return s.PlayFrom(0) },
		"dispose": s.Dispose,
		"select":  func() error { return waitLoad(t, s.SelectInstrument(context.Background(), "x")) },
	}
	for name, op := range ops {
		if err := op(); !errors.Is(err, ErrDisposed) {
			t.Errorf("%s after dispose: %v, want ErrDisposed", name, err)
		}
	}
}

func TestDisposeDuringLoad(t *testing.T) {
	gate := make(chan struct{})
	loader := &fakeLoader{gate: gate}
	s := NewSession(twoNotes(), WithClock(clock.NewManual()), WithLoader(loader))
	done := s.SelectInstrument(context.Background(), "piano")
	s.Dispose()

	// the load context is cancelled, so the gate need not open
	if err := waitLoad(t, done); !errors.Is(err, ErrSuperseded) {
		t.Fatalf("load after dispose: %v", err)
	}
	if v := loader.last(); v != nil && !v.isDisposed() {
		t.Fatal("voice loaded after dispose was kept")
	}
	close(gate)
}

// leakyClock never cancels, like a scheduler that already dequeued the
// callbacks when playback is cancelled
type leakyClock struct {
	*clock.Manual
}

func (leakyClock) Cancel(clock.Handle) {}

func TestStaleCallbacksAreDropped(t *testing.T) {
	m := clock.NewManual()
	loader := &fakeLoader{}
	s := NewSession(twoNotes(), WithClock(leakyClock{m}), WithLoader(loader))
	waitLoad(t, s.SelectInstrument(context.Background(), "piano"))
	v := loader.last()

	s.Play()
	s.Stop()
	s.Seek(0.5)
	s.Play()
	// both the stale and the current E4 callbacks are still queued
	m.Advance(2 * time.Second)

	got := v.take()
	if len(got) != 1 || got[0].pitch != 64 {
		t.Fatalf("got %+v, want only the current E4", got)
	}
}

func TestUpdatesNotify(t *testing.T) {
	s, _, _ := newReady(t, twoNotes())
	select {
	case <-s.Updates():
	default:
	}
	s.SetTempo(100)
	select {
	case <-s.Updates():
	default:
		t.Fatal("no update after SetTempo")
	}
}

func writeSMF(t *testing.T) []byte {
	t.Helper()
	var tr smf.Track
	tr.Add(0, smf.MetaTempo(600))
	tr.Add(0, midi.NoteOn(0, 60, 100))
	tr.Add(240, midi.NoteOff(0, 60))
	tr.Add(0, midi.NoteOn(0, 62, 100))
	tr.Add(240, midi.NoteOff(0, 62))
	tr.Close(0)

	f := smf.New()
	f.TimeFormat = smf.MetricTicks(480)
	if err := f.Add(tr); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestLoadMalformed(t *testing.T) {
	s, err := Load([]byte("not midi at all"))
	if s != nil || !errors.Is(err, score.ErrParse) {
		t.Fatalf("Load = %v, %v; want ErrParse", s, err)
	}
}

func TestLoadAndPlayOnRealClock(t *testing.T) {
	loader := &fakeLoader{}
	s, err := Load(writeSMF(t), WithLoader(loader), WithPollInterval(10*time.Millisecond), WithTempoRange(50, 600))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.OriginalTempo() != 600 || s.Tempo() != 600 || !near(s.Duration(), 0.1) {
		t.Fatalf("tempo %v/%v duration %v", s.OriginalTempo(), s.Tempo(), s.Duration())
	}
	if err := waitLoad(t, s.SelectInstrument(context.Background(), "piano")); err != nil {
		t.Fatal(err)
	}
	v := loader.last()

	s.Play()
	deadline := time.Now().Add(2 * time.Second)
	for s.State() == Playing && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if s.State() != Ready {
		t.Fatalf("state = %v, playback did not finish", s.State())
	}
	got := v.take()
	if len(got) != 2 || got[0].pitch != 60 || got[1].pitch != 62 {
		t.Fatalf("got %+v", got)
	}
	if err := s.Dispose(); err != nil {
		t.Fatalf("Dispose: %v", err)
	}
}

func TestSeekToLastPolledPositionRestarts(t *testing.T) {
	sc := score.FromNotes(120, []score.Note{
		{Pitch: 60, Start: 0, Duration: 0.5, Velocity: 1},
		{Pitch: 62, Start: 0.05, Duration: 0.5, Velocity: 1},
		{Pitch: 64, Start: 1, Duration: 0.5, Velocity: 1},
	})
	s, m, v := newReady(t, sc)
	if err := s.Play(); err != nil {
		t.Fatalf("Play: %v", err)
	}
	m.Advance(90 * time.Millisecond)
	if got := len(v.take()); got != 2 {
		t.Fatalf("fired %d notes before the seek, want 2", got)
	}
	// no poll yet, so the reported position is still 0
	if s.Position() != 0 {
		t.Fatalf("position = %v before first poll", s.Position())
	}

	if err := s.Seek(0); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	if s.State() != Playing || s.Scheduled() != 3 {
		t.Fatalf("state %v scheduled %d, want playing with 3", s.State(), s.Scheduled())
	}
	m.Advance(0)
	got := v.take()
	if len(got) != 1 || got[0].pitch != 60 {
		t.Fatalf("after seek fired %+v, want C4 again", got)
	}

	m.Advance(100 * time.Millisecond)
	if pos := s.Position(); !near(pos, 0.1) {
		t.Errorf("position = %v, want 0.1 from the seek target", pos)
	}
}

func TestPlayEmptyScoreWithoutInstrument(t *testing.T) {
	m := clock.NewManual()
	s := NewSession(score.FromNotes(120, nil), WithClock(m), WithLoader(&fakeLoader{}))
	if err := s.Play(); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if s.State() != Idle || s.Position() != 0 || m.Tickers() != 0 {
		t.Fatalf("state %v position %v tickers %d", s.State(), s.Position(), m.Tickers())
	}
}
