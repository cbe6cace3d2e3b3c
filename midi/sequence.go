package midi

import "sort"

// DefaultTicksPerBeat is used when a sequence has no resolution set
const DefaultTicksPerBeat = 960

// TimedEvent is an event at an absolute tick within a sequence
type TimedEvent struct {
	Tick  uint64
	Event Event
}

// Sequence is an ordered list of events for one output stream.
// Events stay sorted by tick; equal ticks keep insertion order.
type Sequence struct {
	Name         string
	Channel      uint8
	TicksPerBeat uint16

	events []TimedEvent
}

// NewSequence creates an empty sequence
func NewSequence(name string, channel uint8, tpb uint16) *Sequence {
	if tpb == 0 {
		tpb = DefaultTicksPerBeat
	}
	return &Sequence{Name: name, Channel: channel & 0x0f, TicksPerBeat: tpb}
}

// Add inserts ev at tick
func (s *Sequence) Add(tick uint64, ev Event) {
	// first index strictly after tick, so equal ticks stay in insertion order
	i := sort.Search(len(s.events), func(i int) bool {
		return s.events[i].Tick > tick
	})
	s.events = append(s.events, TimedEvent{})
	copy(s.events[i+1:], s.events[i:])
	s.events[i] = TimedEvent{Tick: tick, Event: ev}
}

// Events returns the events in tick order. The slice must not be modified.
func (s *Sequence) Events() []TimedEvent {
	return s.events
}

func (s *Sequence) Len() int {
	return len(s.events)
}

// Clear removes all events
func (s *Sequence) Clear() {
	s.events = nil
}

// Between returns the events with from <= tick < to
func (s *Sequence) Between(from, to uint64) []TimedEvent {
	if to <= from {
		return nil
	}
	lo := sort.Search(len(s.events), func(i int) bool {
		return s.events[i].Tick >= from
	})
	hi := sort.Search(len(s.events), func(i int) bool {
		return s.events[i].Tick >= to
	})
	return s.events[lo:hi]
}

// Duration returns the tick at which the last event (or note) ends
func (s *Sequence) Duration() uint64 {
	var end uint64
	for _, te := range s.events {
		t := te.Tick
		if n, ok := te.Event.(NoteOn); ok {
			t += uint64(n.Duration)
		}
		if t > end {
			end = t
		}
	}
	return end
}
