package sequencer

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"go-midiseq/backend"
	"go-midiseq/debug"
	"go-midiseq/midi"
)

var (
	ErrNoClient       = errors.New("sequencer: no backend client")
	ErrNotActivated   = errors.New("sequencer: engine not activated")
	ErrNoSession      = errors.New("sequencer: no session")
	ErrNoOutputThread = errors.New("sequencer: no output thread")
	ErrNoCursor       = errors.New("sequencer: no midi cursor")
	ErrNoEngine       = errors.New("sequencer: bus has no engine")
)

// DefaultStopTimeout bounds how long Clean waits for the output thread
const DefaultStopTimeout = 500 * time.Millisecond

// Engine owns the backend client and queue, the buses and the output
// thread, and bridges the session's audio clock to MIDI output.
type Engine struct {
	session *Session
	opener  backend.Opener

	mu        sync.RWMutex
	seq       backend.Sequencer
	queue     int
	thread    *OutputThread
	cursor    *Cursor
	activated bool
	buses     []*Bus

	readAhead   uint64
	stopTimeout time.Duration

	timeStart atomic.Uint64
	tags      atomic.Uint32
}

// NewEngine creates an engine for session opening clients through opener
func NewEngine(session *Session, opener backend.Opener) *Engine {
	return &Engine{
		session:     session,
		opener:      opener,
		queue:       -1,
		stopTimeout: DefaultStopTimeout,
	}
}

func (e *Engine) Session() *Session {
	return e.session
}

// SetReadAhead sets the output window in frames (0 = one second). It
// applies to a running thread immediately.
func (e *Engine) SetReadAhead(frames uint64) {
	e.mu.Lock()
	e.readAhead = frames
	th := e.thread
	e.mu.Unlock()
	if th != nil {
		if frames == 0 {
			frames = uint64(e.session.SampleRate())
		}
		th.SetReadAhead(frames)
	}
}

// SetStopTimeout bounds the wait for the output thread in Clean
func (e *Engine) SetStopTimeout(d time.Duration) {
	e.mu.Lock()
	e.stopTimeout = d
	e.mu.Unlock()
}

// nextTag hands out track tags, skipping zero
func (e *Engine) nextTag() uint8 {
	for {
		if tag := uint8(e.tags.Add(1)); tag != 0 {
			return tag
		}
	}
}

// Sequencer returns the backend client, or nil before Init
func (e *Engine) Sequencer() backend.Sequencer {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.seq
}

// Queue returns the timer queue, or -1 before Init
func (e *Engine) Queue() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.queue
}

func (e *Engine) OutputThread() *OutputThread {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.thread
}

// Cursor returns the MIDI cursor, or nil when not activated
func (e *Engine) Cursor() *Cursor {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cursor
}

func (e *Engine) IsActivated() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.activated
}

// TimeStart is the session tick at which the queue timer started
func (e *Engine) TimeStart() uint64 {
	return e.timeStart.Load()
}

func (e *Engine) handles() (backend.Sequencer, int) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.seq, e.queue
}

// Init opens the backend client and allocates its queue
func (e *Engine) Init(clientName string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.seq != nil {
		return nil
	}

	seq, err := e.opener(clientName)
	if err != nil {
		return fmt.Errorf("open client %q: %w", clientName, err)
	}
	if seq == nil {
		return fmt.Errorf("open client %q: %w", clientName, ErrNoClient)
	}

	queue, err := seq.AllocQueue()
	if err != nil {
		seq.Close()
		return fmt.Errorf("alloc queue: %w", err)
	}

	e.seq = seq
	e.queue = queue
	debug.Log("engine", "init client=%d name=%q queue=%d", seq.ClientID(), clientName, queue)
	return nil
}

// Activate creates the MIDI cursor and starts the output thread
func (e *Engine) Activate() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.seq == nil {
		return ErrNoClient
	}
	if e.activated {
		return nil
	}

	e.cursor = NewCursor(e.session.Frame())
	e.thread = newOutputThread(e.session, e, e.readAhead)
	e.thread.Start()
	e.timeStart.Store(0)
	e.activated = true

	debug.Log("engine", "activated readahead=%d", e.thread.ReadAhead())
	return nil
}

// Start programs the queue tempo, aligns the MIDI cursor with the audio
// cursor, starts the queue timer and primes the first window.
func (e *Engine) Start() error {
	e.mu.RLock()
	activated, seq, queue, th := e.activated, e.seq, e.queue, e.thread
	e.mu.RUnlock()

	if !activated || seq == nil {
		return ErrNotActivated
	}
	if e.session == nil {
		return ErrNoSession
	}
	if th == nil {
		return ErrNoOutputThread
	}

	tempo := backend.TempoFromBPM(int(e.session.TicksPerBeat()), e.session.Tempo())
	if err := seq.SetQueueTempo(queue, tempo); err != nil {
		return fmt.Errorf("set queue tempo: %w", err)
	}

	cursor := th.MidiCursorSync(true)
	if cursor == nil {
		return ErrNoCursor
	}
	e.timeStart.Store(e.session.TickFromFrame(cursor.Frame()))

	if err := seq.StartQueue(queue); err != nil {
		return fmt.Errorf("start queue: %w", err)
	}
	debug.Log("engine", "start frame=%d timeStart=%d ppq=%d tempo=%d",
		cursor.Frame(), e.TimeStart(), tempo.PPQ, tempo.MicrosPerBeat)

	th.ProcessSync()
	return nil
}

// Stop drops everything not yet delivered and stops the queue timer
func (e *Engine) Stop() error {
	e.mu.RLock()
	activated, seq, queue := e.activated, e.seq, e.queue
	e.mu.RUnlock()

	if !activated || seq == nil {
		return nil
	}
	if err := seq.DropOutput(); err != nil {
		return fmt.Errorf("drop output: %w", err)
	}
	if err := seq.StopQueue(queue); err != nil {
		return fmt.Errorf("stop queue: %w", err)
	}
	debug.Log("engine", "stop")
	return nil
}

// Deactivate stops playback and tells the output thread to exit
func (e *Engine) Deactivate() {
	e.session.SetPlaying(false)

	th := e.OutputThread()
	if th == nil {
		return
	}
	th.SetRunState(false)
	th.Sync()
}

// Clean joins the output thread and releases the queue and client.
// Safe to call repeatedly.
func (e *Engine) Clean() {
	e.mu.Lock()
	th := e.thread
	timeout := e.stopTimeout
	e.thread = nil
	e.activated = false
	e.mu.Unlock()

	if th != nil {
		if err := th.Close(timeout); err != nil {
			debug.Warn("engine", err, "output thread")
		}
	}
	e.timeStart.Store(0)

	e.mu.Lock()
	seq, queue := e.seq, e.queue
	e.seq = nil
	e.queue = -1
	e.cursor = nil
	e.mu.Unlock()

	if seq == nil {
		return
	}
	if queue >= 0 {
		seq.FreeQueue(queue)
	}
	seq.Close()
	debug.Log("engine", "clean")
}

// Open initializes the client, opens every bus and activates. A bus
// that fails to open undoes the whole call.
func (e *Engine) Open(clientName string) error {
	if err := e.Init(clientName); err != nil {
		return err
	}
	for _, bus := range e.Buses() {
		if err := bus.Open(); err != nil {
			e.Close()
			return fmt.Errorf("open bus %q: %w", bus.Name(), err)
		}
	}
	return e.Activate()
}

// Close deactivates, closes the buses and cleans up
func (e *Engine) Close() {
	e.Stop()
	e.Deactivate()
	for _, bus := range e.Buses() {
		bus.Close()
	}
	e.Clean()
}

// AddBus attaches bus to the engine
func (e *Engine) AddBus(bus *Bus) {
	bus.setEngine(e)
	e.mu.Lock()
	e.buses = append(e.buses, bus)
	e.mu.Unlock()
}

// RemoveBus closes and detaches bus
func (e *Engine) RemoveBus(bus *Bus) {
	bus.Close()
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, b := range e.buses {
		if b == bus {
			e.buses = append(e.buses[:i], e.buses[i+1:]...)
			return
		}
	}
}

// Buses returns a snapshot of the buses
func (e *Engine) Buses() []*Bus {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]*Bus(nil), e.buses...)
}

// FindBus returns the bus with name, or nil
func (e *Engine) FindBus(name string) *Bus {
	for _, bus := range e.Buses() {
		if bus.Name() == name {
			return bus
		}
	}
	return nil
}

// Enqueue schedules ev for track at session tick atTick, scaling note
// velocity by gain. It only buffers; Flush sends.
func (e *Engine) Enqueue(track Track, ev midi.Event, atTick uint64, gain float64) error {
	bus := track.Bus()
	if bus == nil {
		return nil
	}
	seq, queue := e.handles()
	port := bus.Port()
	if seq == nil || port < 0 {
		return nil
	}

	out := backend.FromEvent(track.MidiChannel(), ev)
	out.Tag = track.MidiTag()
	out.Source = port
	out.Queue = queue
	if ts := e.timeStart.Load(); atTick > ts {
		out.Tick = atTick - ts
	}
	if out.Type == backend.EvNote {
		out.Velocity = scaleVelocity(out.Velocity, gain)
	}

	return seq.Output(out)
}

func scaleVelocity(vel uint8, gain float64) uint8 {
	v := math.Round(gain * float64(vel))
	return uint8(math.Max(0, math.Min(127, v)))
}

// Flush drains the pending output buffer
func (e *Engine) Flush() error {
	seq, _ := e.handles()
	if seq == nil {
		return nil
	}
	return seq.Drain()
}

// Sync wakes the output thread when the MIDI side needs another window.
// Called periodically by whatever drives the audio clock.
func (e *Engine) Sync() {
	th := e.OutputThread()
	if th != nil && th.MidiCursorSync(false) != nil {
		th.Sync()
	}
}

// removeConditions select a track's undelivered output from a tick on,
// keeping note-offs of notes already sounding
const removeConditions = backend.RemoveOutput | backend.RemoveTimeAfter | backend.RemoveTimeTick |
	backend.RemoveDestChannel | backend.RemoveIgnoreOff | backend.RemoveTagMatch

// TrackMute drops track's queued events from the play head on when
// muting, and backfills them when unmuting during playback. A stopped
// transport has nothing committed; the next Start renders the track.
func (e *Engine) TrackMute(track Track, mute bool) error {
	frame := e.session.PlayHead()
	th := e.OutputThread()

	if !mute {
		if th != nil && e.session.IsPlaying() {
			th.TrackSync(track, frame)
		}
		return nil
	}

	seq, queue := e.handles()
	if seq == nil {
		return nil
	}

	var tick uint64
	if now, ts := e.session.TickFromFrame(frame), e.timeStart.Load(); now > ts {
		tick = now - ts
	}

	if th != nil {
		th.mu.Lock()
		defer th.mu.Unlock()
	}
	n, err := seq.RemoveEvents(backend.RemoveFilter{
		Condition: removeConditions,
		Queue:     queue,
		Tag:       track.MidiTag(),
		Channel:   track.MidiChannel(),
		Tick:      tick,
	})
	if err != nil {
		return fmt.Errorf("remove events: %w", err)
	}
	debug.Log("engine", "mute tag=%d ch=%d tick>=%d removed=%d", track.MidiTag(), track.MidiChannel(), tick, n)
	return nil
}
