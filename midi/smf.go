package midi

import (
	"errors"
	"fmt"
	"io"
	"sort"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

var ErrNoSuchTrack = errors.New("midi: no such track")

type wireEvent struct {
	tick uint64
	msg  gomidi.Message
}

// trackEvents flattens a sequence to wire messages, expanding notes into
// note-on/note-off pairs.
func trackEvents(seq *Sequence) []wireEvent {
	out := make([]wireEvent, 0, seq.Len()*2)
	for _, te := range seq.Events() {
		out = append(out, wireEvent{tick: te.Tick, msg: Message(seq.Channel, te.Event)})
		if n, ok := te.Event.(NoteOn); ok {
			off := gomidi.NoteOff(seq.Channel&0x0f, n.Note&0x7f)
			out = append(out, wireEvent{tick: te.Tick + uint64(n.Duration), msg: off})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].tick < out[j].tick
	})
	return out
}

// WriteSMF writes a format 1 standard MIDI file with one track per sequence
func WriteSMF(w io.Writer, tpb uint16, seqs ...*Sequence) error {
	if tpb == 0 {
		tpb = DefaultTicksPerBeat
	}
	sm := smf.New()
	sm.TimeFormat = smf.MetricTicks(tpb)

	for i, seq := range seqs {
		var track smf.Track
		if seq.Name != "" {
			track.Add(0, smf.MetaTrackSequenceName(seq.Name))
		}
		var last uint64
		for _, we := range trackEvents(seq) {
			track.Add(uint32(we.tick-last), we.msg)
			last = we.tick
		}
		track.Close(0)
		if err := sm.Add(track); err != nil {
			return fmt.Errorf("add track %d: %w", i, err)
		}
	}

	if _, err := sm.WriteTo(w); err != nil {
		return fmt.Errorf("write smf: %w", err)
	}
	return nil
}

// ReadSMF parses a standard MIDI file
func ReadSMF(r io.Reader) (*smf.SMF, error) {
	sm, err := smf.ReadFrom(r)
	if err != nil {
		return nil, fmt.Errorf("read smf: %w", err)
	}
	return sm, nil
}

// Resolution returns the ticks per beat of a parsed file
func Resolution(sm *smf.SMF) uint16 {
	if mt, ok := sm.TimeFormat.(smf.MetricTicks); ok {
		return uint16(mt)
	}
	return DefaultTicksPerBeat
}

// LoadTrack fills seq from track index of sm. Note-on/note-off pairs
// become NoteOn events with a duration; ticks are rescaled to the
// sequence resolution.
func LoadTrack(sm *smf.SMF, index int, seq *Sequence) error {
	if index < 0 || index >= len(sm.Tracks) {
		return fmt.Errorf("%w: %d of %d", ErrNoSuchTrack, index, len(sm.Tracks))
	}

	src := uint64(Resolution(sm))
	dst := uint64(seq.TicksPerBeat)
	if dst == 0 {
		dst = src
		seq.TicksPerBeat = uint16(src)
	}
	scale := func(t uint64) uint64 { return t * dst / src }

	// notes are placed at their start so same-tick ordering survives
	type placed struct {
		tick uint64
		ev   Event
	}
	var out []placed
	open := make(map[[2]uint8][]int) // (channel, key) -> indexes of unreleased notes
	var tick uint64

	release := func(i int, at uint64) {
		n := out[i].ev.(NoteOn)
		n.Duration = uint32(scale(at) - scale(out[i].tick))
		out[i].ev = n
	}

	for _, ev := range sm.Tracks[index] {
		tick += uint64(ev.Delta)
		msg := gomidi.Message(ev.Message)

		var name string
		if ev.Message.GetMetaTrackName(&name) {
			if seq.Name == "" {
				seq.Name = name
			}
			continue
		}

		var ch, key, vel uint8
		switch {
		case msg.GetNoteOn(&ch, &key, &vel) && vel > 0:
			k := [2]uint8{ch, key}
			open[k] = append(open[k], len(out))
			out = append(out, placed{tick: tick, ev: NoteOn{Note: key, Velocity: vel}})
			seq.Channel = ch
			continue
		case msg.GetNoteOff(&ch, &key, &vel), msg.GetNoteOn(&ch, &key, &vel):
			k := [2]uint8{ch, key}
			if starts := open[k]; len(starts) > 0 {
				release(starts[0], tick)
				open[k] = starts[1:]
			}
			continue
		}

		if e, c, ok := FromMessage(msg); ok {
			if e.Kind() != KindSysEx {
				seq.Channel = c
			}
			out = append(out, placed{tick: tick, ev: e})
		}
	}

	// notes never released last until the end of the track
	for _, starts := range open {
		for _, i := range starts {
			release(i, tick)
		}
	}

	for _, p := range out {
		seq.Add(scale(p.tick), p.ev)
	}
	return nil
}

// ReadSMFTrack reads track index from r into seq
func ReadSMFTrack(r io.Reader, index int, seq *Sequence) error {
	sm, err := ReadSMF(r)
	if err != nil {
		return err
	}
	return LoadTrack(sm, index, seq)
}
