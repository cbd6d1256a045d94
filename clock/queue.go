package clock

import "container/heap"

type event struct {
	id    Handle
	beat  float64
	fn    Func
	index int
}

// eventQueue is a min-heap on (beat, id) so same-beat events fire in
// scheduling order
type eventQueue []*event

func (q eventQueue) Len() int { return len(q) }

func (q eventQueue) Less(i, j int) bool {
	if q[i].beat == q[j].beat {
		return q[i].id < q[j].id
	}
	return q[i].beat < q[j].beat
}

func (q eventQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *eventQueue) Push(x any) {
	e := x.(*event)
	e.index = len(*q)
	*q = append(*q, e)
}

func (q *eventQueue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*q = old[:n-1]
	return e
}

// events couples the heap with a handle index for O(log n) cancel
type events struct {
	queue  eventQueue
	byID   map[Handle]*event
	nextID Handle
}

func newEvents() *events {
	return &events{byID: make(map[Handle]*event)}
}

func (es *events) add(beat float64, fn Func) Handle {
	es.nextID++
	e := &event{id: es.nextID, beat: beat, fn: fn}
	heap.Push(&es.queue, e)
	es.byID[e.id] = e
	return e.id
}

func (es *events) remove(h Handle) {
	e, ok := es.byID[h]
	if !ok {
		return
	}
	delete(es.byID, h)
	heap.Remove(&es.queue, e.index)
}

func (es *events) clear() {
	es.queue = nil
	es.byID = make(map[Handle]*event)
}

func (es *events) peek() *event {
	if len(es.queue) == 0 {
		return nil
	}
	return es.queue[0]
}

func (es *events) pop() *event {
	e := heap.Pop(&es.queue).(*event)
	delete(es.byID, e.id)
	return e
}

func (es *events) len() int {
	return len(es.queue)
}
