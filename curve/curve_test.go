package curve

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-midiseq/document"
	"go-midiseq/midi"
)

func TestModeText(t *testing.T) {
	for _, s := range []string{"Spline", "Linear", "Hold"} {
		assert.Equal(t, s, TextFromMode(ModeFromText(s)))
	}
	for _, s := range []string{"", "spline", "LINEAR", "Step", "hold"} {
		assert.Equal(t, Hold, ModeFromText(s), s)
	}
	assert.Equal(t, "Linear", Linear.String())
}

func TestControlTypeText(t *testing.T) {
	for _, k := range controlTypes {
		got, ok := ControlTypeFromText(TextFromControlType(k))
		require.True(t, ok)
		assert.Equal(t, k, got)
	}
	_, ok := ControlTypeFromText("SYSEX")
	assert.False(t, ok)
}

func TestAddNodeKeepsOrder(t *testing.T) {
	c := New(Subject{Type: midi.KindController, Param: 7}, Hold)
	c.AddNode(480, 100)
	c.AddNode(0, 10)
	c.AddNode(240, 50)
	c.AddNode(240, 60)

	assert.Equal(t, []Node{{0, 10}, {240, 60}, {480, 100}}, c.Nodes())
}

func TestValueModes(t *testing.T) {
	c := New(Subject{Type: midi.KindController, Param: 1}, Hold)
	c.AddNode(100, 0)
	c.AddNode(200, 100)

	assert.Equal(t, 0.0, c.Value(0), "before first node")
	assert.Equal(t, 0.0, c.Value(150))
	assert.Equal(t, 100.0, c.Value(500), "after last node")

	c.Mode = Linear
	assert.Equal(t, 50.0, c.Value(150))

	c.Mode = Spline
	assert.InDelta(t, 50.0, c.Value(150), 1e-9, "symmetric segment passes the midpoint")
	assert.Equal(t, 100.0, c.Value(200))
}

func TestRender(t *testing.T) {
	c := New(Subject{Type: midi.KindController, Channel: 2, Param: 74}, Hold)
	c.AddNode(0, 10)
	c.AddNode(480, 20)
	c.AddNode(960, 20)

	got := c.Render(0, 960, 60)
	require.Len(t, got, 2, "repeated values are skipped")
	assert.Equal(t, midi.Controller{Param: 74, Value: 20}, got[1].Event)

	c.Mode = Linear
	got = c.Render(0, 480, 120)
	var ticks []uint64
	for _, te := range got {
		ticks = append(ticks, te.Tick)
	}
	assert.Equal(t, []uint64{0, 120, 240, 360}, ticks)

	assert.Empty(t, c.Render(480, 480, 1))
	assert.Empty(t, New(c.Subject, Linear).Render(0, 100, 1))
}

func TestSubjectEventClamps(t *testing.T) {
	cc := Subject{Type: midi.KindController, Param: 1}
	assert.Equal(t, midi.Controller{Param: 1, Value: 127}, cc.Event(300))
	bend := Subject{Type: midi.KindPitchBend}
	assert.Equal(t, midi.PitchBend{Value: -8192}, bend.Event(-9000))
}

func TestListFindCurve(t *testing.T) {
	l := NewList()
	a := New(Subject{Type: midi.KindController, Param: 1}, Hold)
	b := New(Subject{Type: midi.KindPitchBend, Channel: 1}, Linear)
	l.AddCurve(a)
	l.AddCurve(b)

	assert.Same(t, b, l.FindCurve(Subject{Type: midi.KindPitchBend, Channel: 1}))
	assert.Nil(t, l.FindCurve(Subject{Type: midi.KindPitchBend}))

	a2 := New(a.Subject, Spline)
	l.AddCurve(a2)
	assert.Equal(t, 2, l.Len())
	assert.Same(t, a2, l.FindCurve(a.Subject))

	l.RemoveCurve(a.Subject)
	assert.Equal(t, 1, l.Len())
}

func TestFileSaveApply(t *testing.T) {
	dir := t.TempDir()
	doc := document.New(filepath.Join(dir, "song.yml"))

	list := NewList()
	vol := New(Subject{Type: midi.KindController, Channel: 0, Param: 7}, Linear)
	vol.Process = true
	vol.AddNode(0, 100)
	vol.AddNode(960, 40)
	list.AddCurve(vol)

	bend := New(Subject{Type: midi.KindPitchBend, Channel: 3}, Spline)
	bend.Capture = true
	bend.AddNode(480, -2000)
	list.AddCurve(bend)

	off := New(Subject{Type: midi.KindChannelPressure}, Hold)
	off.Enabled = false
	off.AddNode(0, 1)
	list.AddCurve(off)

	el, err := Save(doc, doc.FilePath("curves.mid"), list, 480)
	require.NoError(t, err)
	assert.Equal(t, "song-curves.mid", el.Filename)
	require.Len(t, el.Items, 2, "disabled curves are not saved")
	assert.Equal(t, ItemElement{
		Index: 0, Type: "CONTROLLER", Channel: 0, Param: 7,
		Mode: "Linear", Process: "true", Capture: "false",
	}, el.Items[0])
	assert.Equal(t, 1, el.Items[1].Index)
	assert.Equal(t, "PITCHBEND", el.Items[1].Type)

	var f File
	f.Load(doc, el)
	require.Len(t, f.Items, 2)

	// apply at double resolution into a fresh list
	got := NewList()
	require.NoError(t, f.Apply(got, 960))
	require.Equal(t, 2, got.Len())

	v := got.FindCurve(vol.Subject)
	require.NotNil(t, v)
	assert.Equal(t, Linear, v.Mode)
	assert.True(t, v.Process)
	assert.False(t, v.Capture)
	assert.Equal(t, []Node{{0, 100}, {1920, 40}}, v.Nodes())

	b := got.FindCurve(bend.Subject)
	require.NotNil(t, b)
	assert.Equal(t, Spline, b.Mode)
	assert.True(t, b.Capture)
	assert.Equal(t, []Node{{960, -2000}}, b.Nodes())
}

func TestFileEmpty(t *testing.T) {
	doc := document.New(filepath.Join(t.TempDir(), "song.yml"))
	el, err := Save(doc, doc.FilePath("curves.mid"), NewList(), 480)
	require.NoError(t, err)
	assert.Equal(t, FileElement{}, el)

	var f File
	assert.ErrorIs(t, f.Apply(NewList(), 480), ErrNoFile)
}

func TestFileLoadSkipsUnknownTypes(t *testing.T) {
	doc := document.New("/tmp/song.yml")
	var f File
	f.Load(doc, FileElement{
		Filename: "c.mid",
		Items: []ItemElement{
			{Index: 0, Type: "BOGUS"},
			{Index: 1, Type: "CHANPRESS", Channel: 0x12, Mode: "weird", Process: "on"},
		},
	})
	require.Len(t, f.Items, 1)
	assert.Equal(t, "/tmp/c.mid", f.Filename)
	assert.Equal(t, uint8(2), f.Items[0].Subject.Channel)
	assert.Equal(t, Hold, f.Items[0].Mode)
	assert.True(t, f.Items[0].Process)
}
