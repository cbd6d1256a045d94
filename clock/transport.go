package clock

import (
	"sync"
	"time"
)

// Transport is the wall-clock Clock. A single dispatch goroutine sleeps
// until the earliest pending event and is woken through interruptChan
// whenever the queue, tempo or run state changes.
type Transport struct {
	mu          sync.Mutex
	tempo       float64
	running     bool
	anchorTime  time.Time // wall time at anchorBeats
	anchorBeats float64
	queue       *events

	interruptChan chan struct{}
	stopChan      chan struct{}
	closeOnce     sync.Once
	wg            sync.WaitGroup

	now func() time.Time
}

// NewTransport creates a stopped transport at the default tempo and starts
// its dispatch goroutine. Close releases it.
func NewTransport() *Transport {
	t := &Transport{
		tempo:         DefaultTempo,
		queue:         newEvents(),
		interruptChan: make(chan struct{}, 1),
		stopChan:      make(chan struct{}),
		now:           time.Now,
	}
	t.wg.Add(1)
	go t.dispatchLoop()
	return t
}

func (t *Transport) Start() {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return
	}
	t.running = true
	t.anchorTime = t.now()
	t.anchorBeats = 0
	t.mu.Unlock()
	t.interrupt()
}

func (t *Transport) Stop() {
	t.mu.Lock()
	t.running = false
	t.anchorBeats = 0
	t.mu.Unlock()
	t.interrupt()
}

func (t *Transport) SetTempo(bpm float64) {
	bpm = sanitizeTempo(bpm)
	t.mu.Lock()
	if t.running {
		now := t.now()
		t.anchorBeats = t.elapsedAt(now)
		t.anchorTime = now
	}
	t.tempo = bpm
	t.mu.Unlock()
	t.interrupt()
}

func (t *Transport) Tempo() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tempo
}

func (t *Transport) Elapsed() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return 0
	}
	return t.elapsedAt(t.now())
}

// elapsedAt must be called with mu held
func (t *Transport) elapsedAt(now time.Time) float64 {
	return t.anchorBeats + DurationToBeats(now.Sub(t.anchorTime), t.tempo)
}

// timeOf returns the wall time of beat at the current tempo. mu held.
func (t *Transport) timeOf(beat float64) time.Time {
	return t.anchorTime.Add(BeatsToDuration(beat-t.anchorBeats, t.tempo))
}

func (t *Transport) Schedule(beat float64, fn Func) Handle {
	if beat < 0 {
		beat = 0
	}
	t.mu.Lock()
	h := t.queue.add(beat, fn)
	t.mu.Unlock()
	t.interrupt()
	return h
}

func (t *Transport) Cancel(h Handle) {
	t.mu.Lock()
	t.queue.remove(h)
	t.mu.Unlock()
	t.interrupt()
}

func (t *Transport) CancelAll() {
	t.mu.Lock()
	t.queue.clear()
	t.mu.Unlock()
	t.interrupt()
}

// Pending returns the number of queued events
func (t *Transport) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.queue.len()
}

// Every runs fn from its own ticker goroutine. Calling stop from inside fn
// is allowed.
func (t *Transport) Every(interval time.Duration, fn func()) (stop func()) {
	if interval <= 0 {
		interval = time.Millisecond
	}
	done := make(chan struct{})
	var once sync.Once
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-t.stopChan:
				return
			case <-ticker.C:
				select {
				case <-done:
					return
				default:
				}
				fn()
			}
		}
	}()
	return func() { once.Do(func() { close(done) }) }
}

// Close stops the dispatch goroutine and every ticker, and drops pending
// events. It waits for the dispatch goroutine, so it must not be called
// from a scheduled callback.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.running = false
		t.queue.clear()
		t.mu.Unlock()
		close(t.stopChan)
	})
	t.wg.Wait()
	return nil
}

// interrupt wakes the dispatch loop so it can recalculate
func (t *Transport) interrupt() {
	select {
	case t.interruptChan <- struct{}{}:
	default:
	}
}

func (t *Transport) dispatchLoop() {
	defer t.wg.Done()

	for {
		t.mu.Lock()
		var (
			due  *event
			at   time.Time
			wait time.Duration = -1
		)
		if t.running {
			if next := t.queue.peek(); next != nil {
				at = t.timeOf(next.beat)
				wait = at.Sub(t.now())
				if wait <= 0 {
					due = t.queue.pop()
				}
			}
		}
		t.mu.Unlock()

		if due != nil {
			// run without the lock so callbacks may call back into the clock
			due.fn(at)
			continue
		}

		var timerC <-chan time.Time
		var timer *time.Timer
		if wait > 0 {
			timer = time.NewTimer(wait)
			timerC = timer.C
		}

		select {
		case <-t.stopChan:
			if timer != nil {
				timer.Stop()
			}
			return
		case <-t.interruptChan:
		case <-timerC:
		}
		if timer != nil {
			timer.Stop()
		}
	}
}
