package softseq

import (
	"container/heap"
	"time"

	"go-midiseq/backend"
)

type item struct {
	ev  backend.Event
	seq uint64 // insertion order, breaks tick ties
	// sounding marks note-offs generated when their note went out
	sounding bool
}

// eventHeap orders items by tick, then insertion
type eventHeap []item

func (h eventHeap) Len() int { return len(h) }
func (h eventHeap) Less(i, j int) bool {
	if h[i].ev.Tick != h[j].ev.Tick {
		return h[i].ev.Tick < h[j].ev.Tick
	}
	return h[i].seq < h[j].seq
}
func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *eventHeap) Push(x any)   { *h = append(*h, x.(item)) }
func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

// queue is a timer queue: a tick clock plus its scheduled events
type queue struct {
	tempo   backend.Tempo
	running bool
	origin  time.Time // wall time of baseTick
	base    uint64
	events  eventHeap
	nextSeq uint64
}

func newQueue() *queue {
	return &queue{tempo: backend.TempoFromBPM(96, 120)}
}

// tick returns the queue position at now
func (q *queue) tick(now time.Time) uint64 {
	if !q.running || q.tempo.MicrosPerBeat == 0 {
		return q.base
	}
	elapsed := now.Sub(q.origin)
	if elapsed < 0 {
		return q.base
	}
	us := uint64(elapsed / time.Microsecond)
	return q.base + us*uint64(q.tempo.PPQ)/uint64(q.tempo.MicrosPerBeat)
}

// until returns the wall time remaining before tick is reached
func (q *queue) until(now time.Time, tick uint64) time.Duration {
	cur := q.tick(now)
	if tick <= cur || q.tempo.PPQ == 0 {
		return 0
	}
	us := (tick - cur) * uint64(q.tempo.MicrosPerBeat) / uint64(q.tempo.PPQ)
	return time.Duration(us) * time.Microsecond
}

func (q *queue) push(ev backend.Event, sounding bool) {
	heap.Push(&q.events, item{ev: ev, seq: q.nextSeq, sounding: sounding})
	q.nextSeq++
}

// popDue removes and returns the events at or before tick
func (q *queue) popDue(tick uint64) []item {
	var due []item
	for len(q.events) > 0 && q.events[0].ev.Tick <= tick {
		due = append(due, heap.Pop(&q.events).(item))
	}
	return due
}

// remove drops matching events, returning how many went
func (q *queue) remove(match func(backend.Event) bool) int {
	kept := q.events[:0]
	n := 0
	for _, it := range q.events {
		if match(it.ev) {
			n++
			continue
		}
		kept = append(kept, it)
	}
	q.events = kept
	heap.Init(&q.events)
	return n
}

// drain empties the queue, returning the note-offs of sounding notes
func (q *queue) drain() []backend.Event {
	var offs []backend.Event
	for _, it := range q.events {
		if it.sounding {
			offs = append(offs, it.ev)
		}
	}
	q.events = nil
	return offs
}
