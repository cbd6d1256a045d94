package clock

import (
	"sync"
	"time"
)

// Manual is a Clock driven by Advance instead of wall time. Callbacks run
// synchronously on the goroutine calling Advance, in time order.
type Manual struct {
	mu          sync.Mutex
	base        time.Time
	now         time.Duration
	tempo       float64
	running     bool
	anchorNow   time.Duration
	anchorBeats float64
	queue       *events

	tickers map[int]*manualTicker
	nextTID int
	closed  bool
}

type manualTicker struct {
	interval time.Duration
	next     time.Duration
	fn       func()
}

// NewManual creates a stopped manual clock at the default tempo
func NewManual() *Manual {
	return &Manual{
		base:    time.Unix(0, 0),
		tempo:   DefaultTempo,
		queue:   newEvents(),
		tickers: make(map[int]*manualTicker),
	}
}

func (m *Manual) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	m.running = true
	m.anchorNow = m.now
	m.anchorBeats = 0
}

func (m *Manual) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = false
	m.anchorBeats = 0
}

func (m *Manual) SetTempo(bpm float64) {
	bpm = sanitizeTempo(bpm)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		m.anchorBeats = m.elapsedLocked()
		m.anchorNow = m.now
	}
	m.tempo = bpm
}

func (m *Manual) Tempo() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tempo
}

func (m *Manual) Elapsed() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return 0
	}
	return m.elapsedLocked()
}

func (m *Manual) elapsedLocked() float64 {
	return m.anchorBeats + DurationToBeats(m.now-m.anchorNow, m.tempo)
}

func (m *Manual) Schedule(beat float64, fn Func) Handle {
	if beat < 0 {
		beat = 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queue.add(beat, fn)
}

func (m *Manual) Cancel(h Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue.remove(h)
}

func (m *Manual) CancelAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue.clear()
}

func (m *Manual) Every(interval time.Duration, fn func()) (stop func()) {
	if interval <= 0 {
		interval = time.Millisecond
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextTID++
	id := m.nextTID
	m.tickers[id] = &manualTicker{interval: interval, next: m.now + interval, fn: fn}
	return func() {
		m.mu.Lock()
		delete(m.tickers, id)
		m.mu.Unlock()
	}
}

func (m *Manual) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.running = false
	m.queue.clear()
	m.tickers = make(map[int]*manualTicker)
	return nil
}

// Advance moves time forward by d, firing every event and tick that falls
// inside the window, including ones exactly at its end. Advance(0) fires
// events that are already due.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now + d
	for {
		at, fire := m.nextDueLocked(target)
		if fire == nil {
			break
		}
		m.now = at
		m.mu.Unlock()
		fire()
		m.mu.Lock()
	}
	m.now = target
	m.mu.Unlock()
}

// nextDueLocked pops the earliest event or tick at or before target.
// Events win ties with ticks so a poll sees the notes of its instant.
func (m *Manual) nextDueLocked(target time.Duration) (time.Duration, func()) {
	var (
		eventAt time.Duration
		next    *event
	)
	if m.running {
		if next = m.queue.peek(); next != nil {
			eventAt = m.anchorNow + BeatsToDuration(next.beat-m.anchorBeats, m.tempo)
			if eventAt < m.now {
				eventAt = m.now
			}
			if eventAt > target {
				next = nil
			}
		}
	}

	var tick *manualTicker
	tickID := 0
	for id, tk := range m.tickers {
		if tk.next > target {
			continue
		}
		if tick == nil || tk.next < tick.next || (tk.next == tick.next && id < tickID) {
			tick, tickID = tk, id
		}
	}

	switch {
	case tick != nil && (next == nil || tick.next < eventAt):
		at := tick.next
		tick.next += tick.interval
		return at, tick.fn
	case next != nil:
		m.queue.pop()
		wall := m.base.Add(eventAt)
		fn := next.fn
		return eventAt, func() { fn(wall) }
	}
	return 0, nil
}

// Now returns the manual clock's current wall time
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.base.Add(m.now)
}

// Pending returns the number of queued events
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queue.len()
}

// Tickers returns the number of live Every registrations
func (m *Manual) Tickers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tickers)
}

// Closed reports whether Close was called
func (m *Manual) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
