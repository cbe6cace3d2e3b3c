package sequencer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func finished(th *OutputThread) bool {
	select {
	case <-th.Finished():
		return true
	default:
		return false
	}
}

func TestNewOutputThreadDefaults(t *testing.T) {
	s := NewSession("s", 44100, testTPB, testTempo)
	th := newOutputThread(s, NewEngine(s, failingOpener), 0)
	assert.Equal(t, uint64(44100), th.ReadAhead())
	assert.False(t, th.RunState())

	th.SetReadAhead(512)
	assert.Equal(t, uint64(512), th.ReadAhead())
}

func TestMidiCursorSyncNeedsBothCursors(t *testing.T) {
	s := NewSession("s", testRate, testTPB, testTempo)
	e := NewEngine(s, failingOpener)
	th := newOutputThread(s, e, 0)

	assert.Nil(t, th.MidiCursorSync(true), "no MIDI cursor before activation")
}

func TestMidiCursorSyncStartSnaps(t *testing.T) {
	h := newHarness(t)
	th := h.engine.OutputThread()

	h.session.Seek(1234)
	cursor := th.MidiCursorSync(true)
	require.NotNil(t, cursor)
	assert.Equal(t, uint64(1234), cursor.Frame())

	cursor.Seek(1234 + th.ReadAhead())
	assert.NotNil(t, th.MidiCursorSync(false), "exactly one window ahead still runs")
	cursor.Seek(1234 + th.ReadAhead() + 1)
	assert.Nil(t, th.MidiCursorSync(false))
}

func TestSyncNeverBlocks(t *testing.T) {
	h := newHarness(t)
	th := h.engine.OutputThread()

	th.mu.Lock()
	done := make(chan struct{})
	go func() {
		th.Sync()
		h.engine.Sync()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Sync blocked on the thread lock")
	}
	th.mu.Unlock()
}

func TestThreadRendersOnSync(t *testing.T) {
	h := newHarness(t)
	h.track("lead", 0).AddClip(notes(960), 0, 0)
	h.start(t, 0)
	require.Empty(t, h.Queued())

	h.session.Advance(48000)
	require.Eventually(t, func() bool {
		h.engine.Sync()
		return len(h.Queued()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, uint64(960), h.Queued()[0].Tick)
}

func TestThreadIdleWhileStopped(t *testing.T) {
	h := newHarness(t)
	h.track("lead", 0).AddClip(notes(0), 0, 0)

	for i := 0; i < 5; i++ {
		h.engine.Sync()
		time.Sleep(2 * time.Millisecond)
	}
	assert.Equal(t, uint64(0), h.engine.Cursor().Frame())
	assert.Zero(t, h.Seq().Stats().Outputs)
}

func TestCloseJoinsThread(t *testing.T) {
	s := NewSession("s", testRate, testTPB, testTempo)
	th := newOutputThread(s, NewEngine(s, failingOpener), 0)
	th.Start()
	require.True(t, th.RunState())

	require.NoError(t, th.Close(time.Second))
	assert.True(t, finished(th))
	assert.False(t, th.RunState())

	// closing a finished thread returns at once
	assert.NoError(t, th.Close(time.Millisecond))
}

func TestCloseTimesOut(t *testing.T) {
	s := NewSession("s", testRate, testTPB, testTempo)
	th := newOutputThread(s, NewEngine(s, failingOpener), 0)
	th.Start()

	th.mu.Lock()
	err := th.Close(30 * time.Millisecond)
	assert.ErrorIs(t, err, ErrOutputThreadTimeout)
	assert.False(t, finished(th))
	th.mu.Unlock()

	// released, the abandoned thread still exits
	require.Eventually(t, func() bool {
		th.Sync()
		return finished(th)
	}, time.Second, 5*time.Millisecond)
}

func TestTrackSyncNoopWhenCursorBehind(t *testing.T) {
	h := newHarness(t)
	a := h.track("a", 0)
	a.AddClip(notes(0, 480), 0, 0)
	h.start(t, 0)
	before := h.Seq().Stats()

	h.engine.OutputThread().TrackSync(a, 48000)
	assert.Equal(t, before.Outputs, h.Seq().Stats().Outputs)
	assert.Equal(t, before.Drains, h.Seq().Stats().Drains)
}
