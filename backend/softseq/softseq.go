// Package softseq is an in-process sequencer backend. Scheduled events sit
// in tick-ordered timer queues and are handed to a Deliver func when due.
package softseq

import (
	"container/heap"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"

	"go-midiseq/backend"
	"go-midiseq/debug"
)

// firstClientID mirrors the first user client id of kernel sequencers
const firstClientID = 128

var nextClientID atomic.Int32

// DeliverFunc sends a message out of the named port
type DeliverFunc func(port string, msg gomidi.Message) error

// Options configure a software sequencer
type Options struct {
	Deliver DeliverFunc
	Now     func() time.Time
	// Manual disables the dispatcher goroutine; call DispatchDue instead.
	Manual bool
}

// Stats counts mutations of the pending buffer and queues
type Stats struct {
	Outputs   int // events appended to the pending buffer
	Drains    int
	Removals  int // RemoveEvents calls
	Removed   int // events dropped by RemoveEvents
	Drops     int // DropOutput calls
	Delivered int // messages handed to Deliver
	Failed    int // deliveries that returned an error
}

type port struct {
	name string
	caps backend.PortCaps
}

// Sequencer implements backend.Sequencer in process
type Sequencer struct {
	name string
	id   int
	opts Options

	mu        sync.Mutex
	ports     map[int]port
	nextPort  int
	queues    map[int]*queue
	nextQueue int
	pending   []backend.Event
	stats     Stats
	closed    bool

	wake chan struct{}
	done chan struct{}
	wg   sync.WaitGroup
}

var _ backend.Sequencer = (*Sequencer)(nil)

// Open creates a client named name
func Open(name string, opts Options) *Sequencer {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Deliver == nil {
		opts.Deliver = func(string, gomidi.Message) error { return nil }
	}
	s := &Sequencer{
		name:   name,
		id:     firstClientID + int(nextClientID.Add(1)) - 1,
		opts:   opts,
		ports:  make(map[int]port),
		queues: make(map[int]*queue),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	if !opts.Manual {
		s.wg.Add(1)
		go s.dispatchLoop()
	}
	debug.Log("softseq", "open client=%d name=%q", s.id, name)
	return s
}

// Opener returns a backend.Opener creating software sequencers
func Opener(opts Options) backend.Opener {
	return func(clientName string) (backend.Sequencer, error) {
		return Open(clientName, opts), nil
	}
}

func (s *Sequencer) ClientID() int { return s.id }
func (s *Sequencer) Name() string  { return s.name }

func (s *Sequencer) CreatePort(name string, caps backend.PortCaps) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, backend.ErrClosed
	}
	id := s.nextPort
	s.nextPort++
	s.ports[id] = port{name: name, caps: caps}
	return id, nil
}

func (s *Sequencer) DeletePort(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return backend.ErrClosed
	}
	if _, ok := s.ports[id]; !ok {
		return fmt.Errorf("%w: %d", backend.ErrNoPort, id)
	}
	delete(s.ports, id)
	return nil
}

// Port returns a port's name and capabilities
func (s *Sequencer) Port(id int) (string, backend.PortCaps, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.ports[id]
	return p.name, p.caps, ok
}

// PortCount returns the number of open ports
func (s *Sequencer) PortCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ports)
}

func (s *Sequencer) AllocQueue() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, backend.ErrClosed
	}
	id := s.nextQueue
	s.nextQueue++
	s.queues[id] = newQueue()
	return id, nil
}

func (s *Sequencer) FreeQueue(q int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.queue(q); err != nil {
		return err
	}
	delete(s.queues, q)
	return nil
}

// queue looks up q; caller holds mu
func (s *Sequencer) queue(q int) (*queue, error) {
	if s.closed {
		return nil, backend.ErrClosed
	}
	qu, ok := s.queues[q]
	if !ok {
		return nil, fmt.Errorf("%w: %d", backend.ErrNoQueue, q)
	}
	return qu, nil
}

func (s *Sequencer) QueueTempo(q int) (backend.Tempo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	qu, err := s.queue(q)
	if err != nil {
		return backend.Tempo{}, err
	}
	return qu.tempo, nil
}

func (s *Sequencer) SetQueueTempo(q int, tempo backend.Tempo) error {
	if tempo.PPQ <= 0 || tempo.MicrosPerBeat == 0 {
		return fmt.Errorf("softseq: invalid tempo %+v", tempo)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	qu, err := s.queue(q)
	if err != nil {
		return err
	}
	// rebase so the tick position is continuous across the change
	now := s.opts.Now()
	qu.base = qu.tick(now)
	qu.origin = now
	qu.tempo = tempo
	s.signal()
	return nil
}

// StartQueue resets the queue position to tick zero and runs its timer
func (s *Sequencer) StartQueue(q int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	qu, err := s.queue(q)
	if err != nil {
		return err
	}
	qu.base = 0
	qu.origin = s.opts.Now()
	qu.running = true
	s.signal()
	debug.Log("softseq", "start queue=%d ppq=%d tempo=%d", q, qu.tempo.PPQ, qu.tempo.MicrosPerBeat)
	return nil
}

func (s *Sequencer) StopQueue(q int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	qu, err := s.queue(q)
	if err != nil {
		return err
	}
	qu.base = qu.tick(s.opts.Now())
	qu.running = false
	debug.Log("softseq", "stop queue=%d tick=%d", q, qu.base)
	return nil
}

func (s *Sequencer) QueueTick(q int) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	qu, err := s.queue(q)
	if err != nil {
		return 0, err
	}
	return qu.tick(s.opts.Now()), nil
}

// Running reports whether queue q's timer runs
func (s *Sequencer) Running(q int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	qu, ok := s.queues[q]
	return ok && qu.running
}

// Queued returns the scheduled events of q in delivery order
func (s *Sequencer) Queued(q int) []backend.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	qu, ok := s.queues[q]
	if !ok {
		return nil
	}
	items := append(eventHeap(nil), qu.events...)
	out := make([]backend.Event, 0, len(items))
	for items.Len() > 0 {
		out = append(out, heap.Pop(&items).(item).ev)
	}
	return out
}

// Pending returns the undrained output buffer
func (s *Sequencer) Pending() []backend.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]backend.Event(nil), s.pending...)
}

// Stats returns the mutation counters
func (s *Sequencer) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *Sequencer) Output(ev backend.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return backend.ErrClosed
	}
	s.pending = append(s.pending, ev)
	s.stats.Outputs++
	return nil
}

type delivery struct {
	port string
	msg  gomidi.Message
}

// Drain sends direct events and schedules the rest on their queues
func (s *Sequencer) Drain() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return backend.ErrClosed
	}
	var direct []delivery
	var err error
	for _, ev := range s.pending {
		if ev.Direct {
			direct = append(direct, s.delivery(ev))
			continue
		}
		qu, ok := s.queues[ev.Queue]
		if !ok {
			err = fmt.Errorf("%w: %d", backend.ErrNoQueue, ev.Queue)
			continue
		}
		qu.push(ev, false)
	}
	s.pending = s.pending[:0]
	s.stats.Drains++
	s.signal()
	s.mu.Unlock()

	s.deliver(direct)
	return err
}

// DropOutput clears pending and queued output. Notes already sounding
// are released immediately so nothing hangs.
func (s *Sequencer) DropOutput() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return backend.ErrClosed
	}
	s.pending = s.pending[:0]
	var offs []delivery
	for _, qu := range s.queues {
		for _, ev := range qu.drain() {
			offs = append(offs, s.delivery(ev))
		}
	}
	s.stats.Drops++
	s.mu.Unlock()

	s.deliver(offs)
	return nil
}

func (s *Sequencer) RemoveEvents(f backend.RemoveFilter) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, backend.ErrClosed
	}
	s.stats.Removals++
	if !f.Condition.Has(backend.RemoveOutput) {
		return 0, nil
	}

	n := 0
	kept := s.pending[:0]
	for _, ev := range s.pending {
		if f.Match(ev) {
			n++
			continue
		}
		kept = append(kept, ev)
	}
	s.pending = kept

	for id, qu := range s.queues {
		if f.Condition.Has(backend.RemoveDest) && id != f.Queue {
			continue
		}
		n += qu.remove(f.Match)
	}
	s.stats.Removed += n
	debug.Log("softseq", "remove tag=%d ch=%d tick>=%d removed=%d", f.Tag, f.Channel, f.Tick, n)
	return n, nil
}

// DispatchDue delivers every event whose tick has been reached.
// Delivered notes schedule their note-off. Returns the number delivered.
func (s *Sequencer) DispatchDue() int {
	s.mu.Lock()
	now := s.opts.Now()
	var out []delivery
	for _, qu := range s.queues {
		if !qu.running {
			continue
		}
		for _, it := range qu.popDue(qu.tick(now)) {
			out = append(out, s.delivery(it.ev))
			if it.ev.Type == backend.EvNote {
				qu.push(it.ev.NoteOff(), true)
			}
		}
		// zero-length notes release in the same pass
		for _, it := range qu.popDue(qu.tick(now)) {
			out = append(out, s.delivery(it.ev))
		}
	}
	s.mu.Unlock()

	s.deliver(out)
	return len(out)
}

// nextDue returns how long until the earliest scheduled event
func (s *Sequencer) nextDue() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.opts.Now()
	var best time.Duration
	found := false
	for _, qu := range s.queues {
		if !qu.running || len(qu.events) == 0 {
			continue
		}
		d := qu.until(now, qu.events[0].ev.Tick)
		if !found || d < best {
			best, found = d, true
		}
	}
	return best, found
}

// dispatchLoop waits for the next due event or a wake
func (s *Sequencer) dispatchLoop() {
	defer s.wg.Done()

	idle := time.NewTimer(time.Hour)
	defer idle.Stop()

	for {
		wait, ok := s.nextDue()
		if ok && wait <= 0 {
			s.DispatchDue()
			continue
		}
		if !ok {
			wait = time.Hour
		}
		idle.Reset(wait)

		select {
		case <-s.done:
			return
		case <-s.wake:
			idle.Stop()
		case <-idle.C:
			s.DispatchDue()
		}
	}
}

// signal wakes the dispatcher; caller holds mu
func (s *Sequencer) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// delivery resolves an event's source port; caller holds mu
func (s *Sequencer) delivery(ev backend.Event) delivery {
	return delivery{port: s.ports[ev.Source].name, msg: ev.Message()}
}

func (s *Sequencer) deliver(out []delivery) {
	if len(out) == 0 {
		return
	}
	failed := 0
	for _, d := range out {
		if err := s.opts.Deliver(d.port, d.msg); err != nil {
			failed++
			debug.LogEvery(50, "softseq", "deliver port=%q: %v", d.port, err)
		}
	}
	s.mu.Lock()
	s.stats.Delivered += len(out)
	s.stats.Failed += failed
	s.mu.Unlock()
}

// Close stops the dispatcher and releases ports and queues
func (s *Sequencer) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.ports = make(map[int]port)
	s.queues = make(map[int]*queue)
	s.pending = nil
	s.mu.Unlock()

	close(s.done)
	s.wg.Wait()
	debug.Log("softseq", "close client=%d", s.id)
	return nil
}
