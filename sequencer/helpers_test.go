package sequencer

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	gomidi "gitlab.com/gomidi/midi/v2"

	"go-midiseq/backend"
	"go-midiseq/backend/softseq"
	"go-midiseq/midi"
)

// 48 kHz, 480 ppq, 120 bpm: 50 frames per tick, one second readahead is
// 960 ticks
const (
	testRate  = 48000
	testTPB   = 480
	testTempo = 120
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type sent struct {
	port string
	msg  gomidi.Message
}

type recorder struct {
	mu   sync.Mutex
	msgs []sent
}

func (r *recorder) Deliver(port string, msg gomidi.Message) error {
	r.mu.Lock()
	r.msgs = append(r.msgs, sent{port, msg})
	r.mu.Unlock()
	return nil
}

func (r *recorder) Sent() []sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sent(nil), r.msgs...)
}

type harness struct {
	session *Session
	engine  *Engine
	bus     *Bus
	clk     *clock
	rec     *recorder

	mu  sync.Mutex
	seq *softseq.Sequencer
}

// newEngine builds an engine over a manual software sequencer without
// opening it
func newEngine(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		session: NewSession("test", testRate, testTPB, testTempo),
		clk:     &clock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		rec:     &recorder{},
	}
	opener := func(name string) (backend.Sequencer, error) {
		s := softseq.Open(name, softseq.Options{Deliver: h.rec.Deliver, Now: h.clk.Now, Manual: true})
		h.mu.Lock()
		h.seq = s
		h.mu.Unlock()
		return s, nil
	}
	h.engine = NewEngine(h.session, opener)
	h.engine.SetStopTimeout(2 * time.Second)
	h.bus = NewBus("Master", BusDuplex)
	h.engine.AddBus(h.bus)
	t.Cleanup(h.engine.Close)
	return h
}

// newHarness returns an opened, activated engine
func newHarness(t *testing.T) *harness {
	t.Helper()
	h := newEngine(t)
	require.NoError(t, h.engine.Open("test"))
	return h
}

func (h *harness) Seq() *softseq.Sequencer {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.seq
}

func (h *harness) Queued() []backend.Event {
	return h.Seq().Queued(h.engine.Queue())
}

// start plays from frame
func (h *harness) start(t *testing.T, frame uint64) {
	t.Helper()
	h.session.Seek(frame)
	h.session.SetPlaying(true)
	require.NoError(t, h.engine.Start())
}

// track adds a MIDI track on the harness bus
func (h *harness) track(name string, channel uint8) *MidiTrack {
	tr := NewMidiTrack(h.engine, name, h.bus, channel)
	h.session.AddTrack(tr)
	return tr
}

// notes builds a sequence with a short note at each tick
func notes(ticks ...uint64) *midi.Sequence {
	seq := midi.NewSequence("notes", 0, testTPB)
	for i, tick := range ticks {
		seq.Add(tick, midi.NoteOn{Note: uint8(60 + i), Velocity: 100, Duration: 60})
	}
	return seq
}

func ticksOf(events []backend.Event) []uint64 {
	var out []uint64
	for _, ev := range events {
		out = append(out, ev.Tick)
	}
	return out
}

func failingOpener(string) (backend.Sequencer, error) {
	return nil, errors.New("no sequencer device")
}
