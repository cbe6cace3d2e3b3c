package sequencer

import (
	"fmt"

	"go-midiseq/debug"
)

// Transport groups the play/stop/locate sequences the UI drives
type Transport struct {
	session *Session
	engine  *Engine
}

func NewTransport(session *Session, engine *Engine) *Transport {
	return &Transport{session: session, engine: engine}
}

// Play starts playback from the current audio frame
func (t *Transport) Play() error {
	if t.session.IsPlaying() {
		return nil
	}
	t.session.SetPlaying(true)
	if err := t.engine.Start(); err != nil {
		t.session.SetPlaying(false)
		return fmt.Errorf("play: %w", err)
	}
	debug.Log("transport", "play frame=%d", t.session.Frame())
	return nil
}

// Stop halts playback and drops everything still queued
func (t *Transport) Stop() error {
	if !t.session.IsPlaying() {
		return nil
	}
	t.session.SetPlaying(false)
	if err := t.engine.Stop(); err != nil {
		return fmt.Errorf("stop: %w", err)
	}
	debug.Log("transport", "stop frame=%d", t.session.Frame())
	return nil
}

// Toggle plays when stopped and stops when playing
func (t *Transport) Toggle() error {
	if t.session.IsPlaying() {
		return t.Stop()
	}
	return t.Play()
}

// Locate moves the audio cursor. While playing the queue is restarted so
// output follows the new position.
func (t *Transport) Locate(frame uint64) error {
	if !t.session.IsPlaying() {
		t.session.Seek(frame)
		return nil
	}
	if err := t.engine.Stop(); err != nil {
		return fmt.Errorf("locate: %w", err)
	}
	t.session.Seek(frame)
	if err := t.engine.Start(); err != nil {
		t.session.SetPlaying(false)
		return fmt.Errorf("locate: %w", err)
	}
	return nil
}

// SetTempo changes the session tempo. While playing the queue is
// restarted at the current frame so the new tempo takes effect.
func (t *Transport) SetTempo(bpm float64) error {
	t.session.SetTempo(bpm)
	if !t.session.IsPlaying() {
		return nil
	}
	return t.Locate(t.session.Frame())
}
