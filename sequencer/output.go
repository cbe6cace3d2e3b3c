package sequencer

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go-midiseq/debug"
)

var ErrOutputThreadTimeout = errors.New("sequencer: output thread did not stop in time")

// OutputThread keeps the backend queue filled a readahead window ahead
// of the audio cursor. It sleeps until woken by Sync and renders one
// window per wake while the session plays.
//
// The mutex guards the MIDI cursor and queue mutations. Sync never
// blocks; ProcessSync, TrackSync and mute removal wait for it.
type OutputThread struct {
	session *Session
	engine  *Engine

	readAhead atomic.Uint64
	runState  atomic.Bool

	mu       sync.Mutex
	cond     *sync.Cond
	finished chan struct{}
}

// newOutputThread creates an idle thread. A zero readAhead means one
// second of audio.
func newOutputThread(session *Session, engine *Engine, readAhead uint64) *OutputThread {
	t := &OutputThread{
		session:  session,
		engine:   engine,
		finished: make(chan struct{}),
	}
	t.cond = sync.NewCond(&t.mu)
	if readAhead == 0 {
		readAhead = uint64(session.SampleRate())
	}
	t.readAhead.Store(readAhead)
	return t
}

// SetReadAhead sets the lookahead window in frames, from the next cycle on
func (t *OutputThread) SetReadAhead(frames uint64) {
	t.readAhead.Store(frames)
}

func (t *OutputThread) ReadAhead() uint64 {
	return t.readAhead.Load()
}

func (t *OutputThread) SetRunState(run bool) {
	t.runState.Store(run)
}

func (t *OutputThread) RunState() bool {
	return t.runState.Load()
}

// Finished is closed when the thread body returns
func (t *OutputThread) Finished() <-chan struct{} {
	return t.finished
}

// Start runs the thread body on its own locked OS thread
func (t *OutputThread) Start() {
	t.runState.Store(true)
	go t.run()
}

func (t *OutputThread) run() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(t.finished)

	debug.Log("output", "thread started readahead=%d", t.ReadAhead())

	t.mu.Lock()
	for t.runState.Load() {
		t.cond.Wait()
		if t.runState.Load() && t.session.IsPlaying() {
			t.process()
		}
	}
	t.mu.Unlock()

	debug.Log("output", "thread stopped")
}

// MidiCursorSync returns the MIDI cursor when a cycle should run, or nil
// when a cursor is missing or the MIDI side is already more than one
// readahead ahead of audio. With start set the MIDI cursor is snapped to
// the audio cursor first.
func (t *OutputThread) MidiCursorSync(start bool) *Cursor {
	audio := t.session.AudioCursor()
	if audio == nil {
		return nil
	}
	midi := t.engine.Cursor()
	if midi == nil {
		return nil
	}

	if start {
		midi.Seek(audio.Frame())
	} else if midi.Frame() > audio.Frame()+t.ReadAhead() {
		return nil
	}
	return midi
}

// process renders one readahead window; caller holds mu
func (t *OutputThread) process() {
	cursor := t.MidiCursorSync(false)
	if cursor == nil {
		return
	}

	start := cursor.Frame()
	end := start + t.ReadAhead()

	for _, track := range t.session.Tracks() {
		if track.Type() == TrackMidi {
			track.Process(1.0, start, end)
		}
	}

	if err := t.engine.Flush(); err != nil {
		debug.LogEvery(100, "output", "flush: %v", err)
	}
	cursor.Seek(end)

	debug.LogEvery(50, "output", "window [%d,%d)", start, end)
}

// ProcessSync runs one cycle now, e.g. to prime the queue on start
func (t *OutputThread) ProcessSync() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.process()
}

// TrackSync backfills track from fromFrame up to the MIDI cursor, the
// span already committed for every other track. Clips that end before
// fromFrame or start at or after the cursor are left alone. Processed
// curves of a MIDI track are rendered over the same span.
func (t *OutputThread) TrackSync(track Track, fromFrame uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	cursor := t.engine.Cursor()
	if cursor == nil {
		return
	}
	toFrame := cursor.Frame()
	if fromFrame >= toFrame {
		return
	}

	for _, clip := range track.Clips() {
		if clip.Start() >= toFrame {
			continue
		}
		if fromFrame < clip.Start()+clip.Length() {
			clip.Process(1.0, fromFrame, toFrame)
		}
	}
	if mt, ok := track.(*MidiTrack); ok {
		mt.processCurves(fromFrame, toFrame)
	}

	if err := t.engine.Flush(); err != nil {
		debug.Log("output", "track sync flush: %v", err)
	}
	debug.Log("output", "track sync tag=%d [%d,%d)", track.MidiTag(), fromFrame, toFrame)
}

// Sync wakes the thread unless a cycle is in progress, in which case the
// wake is skipped and the next call retries.
func (t *OutputThread) Sync() {
	if t.mu.TryLock() {
		t.cond.Broadcast()
		t.mu.Unlock()
	}
}

// Close clears the run flag and waits up to timeout for the thread body
// to return, re-waking it while it is still parked. On timeout the
// thread is abandoned.
func (t *OutputThread) Close(timeout time.Duration) error {
	t.runState.Store(false)
	t.Sync()

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	retry := time.NewTicker(10 * time.Millisecond)
	defer retry.Stop()

	for {
		select {
		case <-t.finished:
			return nil
		case <-retry.C:
			t.Sync()
		case <-deadline.C:
			debug.Log("output", "thread did not stop within %v, abandoning", timeout)
			return ErrOutputThreadTimeout
		}
	}
}
