package sequencer

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"
)

// Cursor is a read position in frames
type Cursor struct {
	frame atomic.Uint64
}

// NewCursor creates a cursor at frame
func NewCursor(frame uint64) *Cursor {
	c := &Cursor{}
	c.frame.Store(frame)
	return c
}

func (c *Cursor) Frame() uint64 {
	return c.frame.Load()
}

func (c *Cursor) Seek(frame uint64) {
	c.frame.Store(frame)
}

// Session is the song clock and track list. The audio cursor is the
// master clock every other subsystem follows.
type Session struct {
	mu         sync.RWMutex
	name       string
	sampleRate uint32
	tpb        uint16
	tempo      float64
	tracks     []Track

	playing atomic.Bool
	audio   *Cursor
}

// NewSession creates a stopped session at frame zero
func NewSession(name string, sampleRate uint32, tpb uint16, tempo float64) *Session {
	if sampleRate == 0 {
		sampleRate = 48000
	}
	if tpb == 0 {
		tpb = 960
	}
	if tempo <= 0 {
		tempo = 120
	}
	return &Session{
		name:       name,
		sampleRate: sampleRate,
		tpb:        tpb,
		tempo:      tempo,
		audio:      NewCursor(0),
	}
}

func (s *Session) Name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.name
}

func (s *Session) SetName(name string) {
	s.mu.Lock()
	s.name = name
	s.mu.Unlock()
}

func (s *Session) SampleRate() uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sampleRate
}

func (s *Session) TicksPerBeat() uint16 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tpb
}

// Tempo returns beats per minute
func (s *Session) Tempo() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tempo
}

// SetTempo changes beats per minute. Clamped to 1..999.
func (s *Session) SetTempo(bpm float64) {
	bpm = math.Max(1, math.Min(999, bpm))
	s.mu.Lock()
	s.tempo = bpm
	s.mu.Unlock()
}

// SetTiming replaces sample rate and resolution, used on document load
func (s *Session) SetTiming(sampleRate uint32, tpb uint16) {
	s.mu.Lock()
	if sampleRate > 0 {
		s.sampleRate = sampleRate
	}
	if tpb > 0 {
		s.tpb = tpb
	}
	s.mu.Unlock()
}

// framesPerTick at the current tempo
func (s *Session) framesPerTick() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return 60 * float64(s.sampleRate) / (s.tempo * float64(s.tpb))
}

// TickFromFrame converts frames to ticks, rounding down
func (s *Session) TickFromFrame(frame uint64) uint64 {
	return uint64(math.Floor(float64(frame)/s.framesPerTick() + 1e-9))
}

// FrameFromTick converts ticks to frames, rounding down
func (s *Session) FrameFromTick(tick uint64) uint64 {
	return uint64(math.Floor(float64(tick)*s.framesPerTick() + 1e-9))
}

// AudioCursor is the master cursor
func (s *Session) AudioCursor() *Cursor {
	return s.audio
}

// Frame returns the master clock position
func (s *Session) Frame() uint64 {
	return s.audio.Frame()
}

// PlayHead is where playback currently sounds
func (s *Session) PlayHead() uint64 {
	return s.audio.Frame()
}

// Seek moves the master clock
func (s *Session) Seek(frame uint64) {
	s.audio.Seek(frame)
}

// Advance moves the master clock forward by frames
func (s *Session) Advance(frames uint64) uint64 {
	return s.audio.frame.Add(frames)
}

func (s *Session) IsPlaying() bool {
	return s.playing.Load()
}

func (s *Session) SetPlaying(playing bool) {
	s.playing.Store(playing)
}

// Tracks returns a snapshot of the track list
func (s *Session) Tracks() []Track {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Track(nil), s.tracks...)
}

// AddTrack appends a track
func (s *Session) AddTrack(t Track) {
	s.mu.Lock()
	s.tracks = append(s.tracks, t)
	s.mu.Unlock()
}

// RemoveTrack removes a track, reporting whether it was present
func (s *Session) RemoveTrack(t Track) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, tr := range s.tracks {
		if tr == t {
			s.tracks = append(s.tracks[:i], s.tracks[i+1:]...)
			return true
		}
	}
	return false
}

// UniqueTrackName returns name, numbered from 2 on when a MIDI track
// already uses it
func (s *Session) UniqueTrackName(name string) string {
	taken := make(map[string]bool)
	for _, t := range s.MidiTracks() {
		taken[t.Name()] = true
	}
	unique := name
	for n := 2; taken[unique]; n++ {
		unique = fmt.Sprintf("%s %d", name, n)
	}
	return unique
}

// MidiTracks returns the MIDI tracks in order
func (s *Session) MidiTracks() []*MidiTrack {
	var out []*MidiTrack
	for _, t := range s.Tracks() {
		if mt, ok := t.(*MidiTrack); ok {
			out = append(out, mt)
		}
	}
	return out
}
