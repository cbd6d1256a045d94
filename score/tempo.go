package score

import (
	"sort"

	"gitlab.com/gomidi/midi/v2/smf"
)

type tempoChange struct {
	tick int64
	bpm  float64
}

type tempoMap struct {
	changes []tempoChange
}

// buildTempoMap collects tempo events from every track, ordered by tick.
// Format 1 files keep them in the first track but nothing forbids others.
func buildTempoMap(file *smf.SMF) tempoMap {
	var changes []tempoChange
	for _, track := range file.Tracks {
		var abs int64
		for _, ev := range track {
			abs += int64(ev.Delta)
			var bpm float64
			if ev.Message.GetMetaTempo(&bpm) && bpm > 0 {
				changes = append(changes, tempoChange{tick: abs, bpm: bpm})
			}
		}
	}
	sort.SliceStable(changes, func(i, j int) bool {
		return changes[i].tick < changes[j].tick
	})
	return tempoMap{changes: changes}
}

// converter returns a tick -> seconds function. The default tempo applies
// until the first tempo event.
func (m tempoMap) converter(ticksPerQuarter float64) func(int64) float64 {
	type segment struct {
		tick    int64
		seconds float64
		bpm     float64
	}
	segments := []segment{{tick: 0, seconds: 0, bpm: DefaultTempo}}
	for _, c := range m.changes {
		last := segments[len(segments)-1]
		secs := last.seconds + float64(c.tick-last.tick)/ticksPerQuarter*60/last.bpm
		if c.tick == last.tick {
			segments[len(segments)-1].bpm = c.bpm
			continue
		}
		segments = append(segments, segment{tick: c.tick, seconds: secs, bpm: c.bpm})
	}

	return func(tick int64) float64 {
		i := sort.Search(len(segments), func(i int) bool { return segments[i].tick > tick }) - 1
		if i < 0 {
			i = 0
		}
		s := segments[i]
		return s.seconds + float64(tick-s.tick)/ticksPerQuarter*60/s.bpm
	}
}
