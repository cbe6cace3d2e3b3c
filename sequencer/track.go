package sequencer

import (
	"sort"
	"sync"
	"sync/atomic"

	"go-midiseq/curve"
	"go-midiseq/debug"
	"go-midiseq/midi"
)

// TrackType identifies what a track renders
type TrackType int

const (
	TrackNone TrackType = iota
	TrackAudio
	TrackMidi
)

func (t TrackType) String() string {
	switch t {
	case TrackAudio:
		return "audio"
	case TrackMidi:
		return "midi"
	}
	return "none"
}

// Track is a lane of clips routed to a bus
type Track interface {
	Type() TrackType
	MidiChannel() uint8
	MidiTag() uint8
	Bus() *Bus
	Clips() []Clip
	// Process renders the events due in frames [from, to) into the engine.
	Process(gain float64, from, to uint64)
}

// Clip is a placed region of a track
type Clip interface {
	Start() uint64  // frame
	Length() uint64 // frames
	Process(gain float64, from, to uint64)
}

// curveStep is the sampling interval for interpolated curves, in
// fractions of a beat
const curveStep = 32

// MidiTrack is a track of MIDI clips
type MidiTrack struct {
	name    string
	engine  *Engine
	channel uint8
	tag     uint8

	mu     sync.RWMutex
	bus    *Bus
	clips  []*MidiClip
	curves *curve.List
	gain   float64

	mute atomic.Bool
}

// NewMidiTrack creates a track on engine's session routed to bus
func NewMidiTrack(engine *Engine, name string, bus *Bus, channel uint8) *MidiTrack {
	return &MidiTrack{
		name:    name,
		engine:  engine,
		channel: channel & 0x0f,
		tag:     engine.nextTag(),
		bus:     bus,
		curves:  curve.NewList(),
		gain:    1.0,
	}
}

func (t *MidiTrack) Type() TrackType     { return TrackMidi }
func (t *MidiTrack) MidiChannel() uint8  { return t.channel }
func (t *MidiTrack) MidiTag() uint8      { return t.tag }
func (t *MidiTrack) Curves() *curve.List { return t.curves }

func (t *MidiTrack) Name() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.name
}

func (t *MidiTrack) SetName(name string) {
	t.mu.Lock()
	t.name = name
	t.mu.Unlock()
}

func (t *MidiTrack) Bus() *Bus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.bus
}

func (t *MidiTrack) SetBus(bus *Bus) {
	t.mu.Lock()
	t.bus = bus
	t.mu.Unlock()
}

// Gain scales note velocities
func (t *MidiTrack) Gain() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.gain
}

func (t *MidiTrack) SetGain(gain float64) {
	if gain < 0 {
		gain = 0
	}
	t.mu.Lock()
	t.gain = gain
	t.mu.Unlock()
}

func (t *MidiTrack) IsMute() bool {
	return t.mute.Load()
}

// SetMute changes the mute state. Only a real change reaches the engine:
// muting drops the track's queued events, unmuting backfills them.
func (t *MidiTrack) SetMute(mute bool) error {
	if t.mute.Swap(mute) == mute {
		return nil
	}
	debug.Log("track", "%s mute=%v", t.Name(), mute)
	return t.engine.TrackMute(t, mute)
}

// Clips returns the clips ordered by start frame
func (t *MidiTrack) Clips() []Clip {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Clip, len(t.clips))
	for i, c := range t.clips {
		out[i] = c
	}
	return out
}

// MidiClips returns the concrete clips ordered by start frame
func (t *MidiTrack) MidiClips() []*MidiClip {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]*MidiClip(nil), t.clips...)
}

// AddClip places seq at frame start. A zero length spans the sequence.
func (t *MidiTrack) AddClip(seq *midi.Sequence, start, length uint64) *MidiClip {
	c := &MidiClip{track: t, seq: seq, start: start, length: length}
	if length == 0 {
		c.length = c.naturalLength()
	}

	t.mu.Lock()
	i := sort.Search(len(t.clips), func(i int) bool {
		return t.clips[i].start > start
	})
	t.clips = append(t.clips, nil)
	copy(t.clips[i+1:], t.clips[i:])
	t.clips[i] = c
	t.mu.Unlock()
	return c
}

// RemoveClip detaches c from the track
func (t *MidiTrack) RemoveClip(c *MidiClip) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, cl := range t.clips {
		if cl == c {
			t.clips = append(t.clips[:i], t.clips[i+1:]...)
			return
		}
	}
}

// Process renders clips and processed curves due in [from, to)
func (t *MidiTrack) Process(gain float64, from, to uint64) {
	if t.IsMute() {
		return
	}
	for _, c := range t.MidiClips() {
		if c.start >= to || c.start+c.length <= from {
			continue
		}
		c.Process(gain, from, to)
	}
	t.processCurves(from, to)
}

func (t *MidiTrack) processCurves(from, to uint64) {
	session := t.engine.Session()
	t0 := session.TickFromFrame(from)
	t1 := session.TickFromFrame(to)
	step := uint64(session.TicksPerBeat()) / curveStep
	for _, c := range t.curves.Curves() {
		if !c.Enabled || !c.Process {
			continue
		}
		for _, te := range c.Render(t0, t1, step) {
			t.engine.Enqueue(t, te.Event, te.Tick, 1.0)
		}
	}
}

// MidiClip places a sequence on a track
type MidiClip struct {
	track  *MidiTrack
	seq    *midi.Sequence
	start  uint64
	length uint64
}

func (c *MidiClip) Start() uint64            { return c.start }
func (c *MidiClip) Length() uint64           { return c.length }
func (c *MidiClip) Sequence() *midi.Sequence { return c.seq }
func (c *MidiClip) Track() *MidiTrack        { return c.track }
func (c *MidiClip) End() uint64              { return c.start + c.length }

// naturalLength spans the sequence's last event
func (c *MidiClip) naturalLength() uint64 {
	session := c.track.engine.Session()
	clipTick := session.TickFromFrame(c.start)
	end := clipTick + c.toSession(c.seq.Duration())
	return session.FrameFromTick(end) - c.start + 1
}

// toSession rescales a sequence tick to session resolution
func (c *MidiClip) toSession(tick uint64) uint64 {
	src := uint64(c.seq.TicksPerBeat)
	dst := uint64(c.track.engine.Session().TicksPerBeat())
	if src == 0 || src == dst {
		return tick
	}
	return tick * dst / src
}

// Process enqueues the clip's events whose session tick falls in the
// part of [from, to) the clip covers, in tick order.
func (c *MidiClip) Process(gain float64, from, to uint64) {
	from = max(from, c.start)
	to = min(to, c.End())
	if from >= to {
		return
	}

	session := c.track.engine.Session()
	clipTick := session.TickFromFrame(c.start)
	t0 := session.TickFromFrame(from)
	t1 := session.TickFromFrame(to)
	if t0 >= t1 {
		return
	}

	// sequence-relative search bounds, widened for rescale rounding
	src := uint64(c.seq.TicksPerBeat)
	dst := uint64(session.TicksPerBeat())
	if src == 0 {
		src = dst
	}
	lo := (t0 - min(t0, clipTick)) * src / dst
	hi := (t1-min(t1, clipTick))*src/dst + 2

	gain *= c.track.Gain()
	n := 0
	for _, te := range c.seq.Between(lo, hi) {
		abs := clipTick + c.toSession(te.Tick)
		if abs < t0 || abs >= t1 {
			continue
		}
		ev := te.Event
		if n, ok := ev.(midi.NoteOn); ok {
			n.Duration = uint32(c.toSession(uint64(n.Duration)))
			ev = n
		}
		if err := c.track.engine.Enqueue(c.track, ev, abs, gain); err != nil {
			debug.LogEvery(100, "clip", "enqueue %s: %v", c.seq.Name, err)
			continue
		}
		n++
	}
	debug.LogEvery(200, "clip", "%s frames=[%d,%d) ticks=[%d,%d) events=%d", c.seq.Name, from, to, t0, t1, n)
}
