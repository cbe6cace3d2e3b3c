// Package curve holds automation curves: breakpoints over ticks for one
// MIDI control subject, stored as standard MIDI file tracks.
package curve

import (
	"fmt"
	"math"
	"sort"

	"go-midiseq/midi"
)

// Mode is how values are interpolated between nodes
type Mode int

const (
	Hold Mode = iota
	Linear
	Spline
)

// ModeFromText decodes a mode. Anything but Spline or Linear is Hold.
func ModeFromText(text string) Mode {
	switch text {
	case "Spline":
		return Spline
	case "Linear":
		return Linear
	}
	return Hold
}

// TextFromMode encodes a mode
func TextFromMode(mode Mode) string {
	switch mode {
	case Spline:
		return "Spline"
	case Linear:
		return "Linear"
	}
	return "Hold"
}

func (m Mode) String() string { return TextFromMode(m) }

// controlTypes are the kinds a curve can drive
var controlTypes = []midi.Kind{
	midi.KindNoteOn,
	midi.KindKeyPress,
	midi.KindController,
	midi.KindProgramChange,
	midi.KindChannelPressure,
	midi.KindPitchBend,
}

// TextFromControlType encodes a control kind
func TextFromControlType(kind midi.Kind) string {
	return kind.String()
}

// ControlTypeFromText decodes a control kind
func ControlTypeFromText(text string) (midi.Kind, bool) {
	for _, k := range controlTypes {
		if k.String() == text {
			return k, true
		}
	}
	return 0, false
}

// Subject is what a curve drives
type Subject struct {
	Type    midi.Kind
	Channel uint8
	Param   uint8 // controller number or note
}

func (s Subject) String() string {
	return fmt.Sprintf("%s ch=%d param=%d", s.Type, s.Channel+1, s.Param)
}

// Range returns the value range of the subject's type
func (s Subject) Range() (min, max float64) {
	if s.Type == midi.KindPitchBend {
		return -8192, 8191
	}
	return 0, 127
}

// Event builds the event carrying value for the subject
func (s Subject) Event(value int) midi.Event {
	lo, hi := s.Range()
	value = int(math.Max(lo, math.Min(hi, float64(value))))
	switch s.Type {
	case midi.KindNoteOn:
		return midi.NoteOn{Note: s.Param, Velocity: uint8(value)}
	case midi.KindKeyPress:
		return midi.KeyPress{Note: s.Param, Value: uint8(value)}
	case midi.KindProgramChange:
		return midi.ProgramChange{Program: uint8(value)}
	case midi.KindChannelPressure:
		return midi.ChannelPressure{Value: uint8(value)}
	case midi.KindPitchBend:
		return midi.PitchBend{Value: int16(value)}
	}
	return midi.Controller{Param: s.Param, Value: uint8(value)}
}

// Node is a breakpoint
type Node struct {
	Tick  uint64
	Value float64
}

// Curve is an ordered set of nodes for one subject
type Curve struct {
	Subject Subject
	Mode    Mode
	Process bool // render during playback
	Capture bool // record incoming changes
	Enabled bool

	nodes []Node
}

// New creates an empty, enabled curve
func New(subject Subject, mode Mode) *Curve {
	return &Curve{Subject: subject, Mode: mode, Enabled: true}
}

// AddNode inserts a node, replacing any at the same tick
func (c *Curve) AddNode(tick uint64, value float64) {
	i := sort.Search(len(c.nodes), func(i int) bool {
		return c.nodes[i].Tick >= tick
	})
	if i < len(c.nodes) && c.nodes[i].Tick == tick {
		c.nodes[i].Value = value
		return
	}
	c.nodes = append(c.nodes, Node{})
	copy(c.nodes[i+1:], c.nodes[i:])
	c.nodes[i] = Node{Tick: tick, Value: value}
}

// Nodes returns the nodes in tick order
func (c *Curve) Nodes() []Node {
	return c.nodes
}

func (c *Curve) Clear() {
	c.nodes = nil
}

// Value returns the curve value at tick
func (c *Curve) Value(tick uint64) float64 {
	n := len(c.nodes)
	if n == 0 {
		return 0
	}
	// index of the first node after tick
	i := sort.Search(n, func(i int) bool {
		return c.nodes[i].Tick > tick
	})
	if i == 0 {
		return c.nodes[0].Value
	}
	if i == n || c.Mode == Hold {
		return c.nodes[i-1].Value
	}

	a, b := c.nodes[i-1], c.nodes[i]
	x := float64(tick-a.Tick) / float64(b.Tick-a.Tick)
	if c.Mode == Linear {
		return a.Value + x*(b.Value-a.Value)
	}

	// Catmull-Rom through the neighbours
	p0, p3 := a.Value, b.Value
	if i >= 2 {
		p0 = c.nodes[i-2].Value
	}
	if i+1 < n {
		p3 = c.nodes[i+1].Value
	}
	x2, x3 := x*x, x*x*x
	v := 0.5 * ((2 * a.Value) +
		(-p0+b.Value)*x +
		(2*p0-5*a.Value+4*b.Value-p3)*x2 +
		(-p0+3*a.Value-3*b.Value+p3)*x3)
	lo, hi := c.Subject.Range()
	return math.Max(lo, math.Min(hi, v))
}

// WriteSequence stores the raw nodes as events, one per node
func (c *Curve) WriteSequence(seq *midi.Sequence) {
	seq.Channel = c.Subject.Channel
	for _, n := range c.nodes {
		seq.Add(n.Tick, c.Subject.Event(int(math.Round(n.Value))))
	}
}

// ReadSequence replaces the nodes with the sequence's events of the
// curve's subject. Ticks are rescaled from the sequence resolution to tpb.
func (c *Curve) ReadSequence(seq *midi.Sequence, tpb uint16) {
	c.nodes = nil
	src := uint64(seq.TicksPerBeat)
	if src == 0 || tpb == 0 {
		src, tpb = 1, 1
	}
	for _, te := range seq.Events() {
		if te.Event.Kind() != c.Subject.Type {
			continue
		}
		switch e := te.Event.(type) {
		case midi.NoteOn:
			if e.Note != c.Subject.Param {
				continue
			}
		case midi.KeyPress:
			if e.Note != c.Subject.Param {
				continue
			}
		case midi.Controller:
			if e.Param != c.Subject.Param {
				continue
			}
		}
		c.AddNode(te.Tick*uint64(tpb)/src, float64(midi.Value(te.Event)))
	}
}

// Render returns the events the curve sends in [from, to): node values
// for Hold, and values sampled every step ticks otherwise. Repeated
// values are skipped.
func (c *Curve) Render(from, to, step uint64) []midi.TimedEvent {
	if len(c.nodes) == 0 || to <= from {
		return nil
	}
	if step == 0 {
		step = 1
	}

	var out []midi.TimedEvent
	last := math.NaN()
	emit := func(tick uint64) {
		v := math.Round(c.Value(tick))
		if v == last {
			return
		}
		last = v
		out = append(out, midi.TimedEvent{Tick: tick, Event: c.Subject.Event(int(v))})
	}

	if c.Mode == Hold {
		for _, n := range c.nodes {
			if n.Tick >= from && n.Tick < to {
				emit(n.Tick)
			}
		}
		return out
	}

	first := c.nodes[0].Tick
	end := c.nodes[len(c.nodes)-1].Tick
	for tick := alignUp(max(from, first), step); tick < to && tick <= end; tick += step {
		emit(tick)
	}
	// land exactly on the last node
	if end >= from && end < to && end%step != 0 {
		emit(end)
	}
	return out
}

func alignUp(tick, step uint64) uint64 {
	if r := tick % step; r != 0 {
		return tick + step - r
	}
	return tick
}

// List is a set of curves, at most one per subject
type List struct {
	curves []*Curve
}

func NewList() *List {
	return &List{}
}

// FindCurve returns the curve for subject, or nil
func (l *List) FindCurve(subject Subject) *Curve {
	for _, c := range l.curves {
		if c.Subject == subject {
			return c
		}
	}
	return nil
}

// AddCurve adds c, replacing a curve with the same subject
func (l *List) AddCurve(c *Curve) {
	for i, old := range l.curves {
		if old.Subject == c.Subject {
			l.curves[i] = c
			return
		}
	}
	l.curves = append(l.curves, c)
}

// RemoveCurve drops the curve for subject
func (l *List) RemoveCurve(subject Subject) {
	for i, c := range l.curves {
		if c.Subject == subject {
			l.curves = append(l.curves[:i], l.curves[i+1:]...)
			return
		}
	}
}

// Curves returns the curves in insertion order
func (l *List) Curves() []*Curve {
	return l.curves
}

func (l *List) Len() int {
	return len(l.curves)
}
