package sequencer

import (
	"context"
	"time"
)

// uiRate is how often the driver notifies UpdateChan
const uiRate = time.Second / 30

// ClockDriver advances the session's audio cursor in real time and keeps
// the engine's output thread fed. It stands in for an audio process cycle.
type ClockDriver struct {
	session *Session
	engine  *Engine
	period  time.Duration
	now     func() time.Time

	remainder float64 // fractional frames carried between steps

	// UpdateChan receives a value at most uiRate while running
	UpdateChan chan struct{}
}

// NewClockDriver creates a driver ticking every period
func NewClockDriver(session *Session, engine *Engine, period time.Duration) *ClockDriver {
	if period <= 0 {
		period = 10 * time.Millisecond
	}
	return &ClockDriver{
		session:    session,
		engine:     engine,
		period:     period,
		now:        time.Now,
		UpdateChan: make(chan struct{}, 1),
	}
}

// Step advances the audio cursor by elapsed while playing, then syncs the
// engine. Returns the frames advanced.
func (d *ClockDriver) Step(elapsed time.Duration) uint64 {
	var frames uint64
	if d.session.IsPlaying() {
		exact := elapsed.Seconds()*float64(d.session.SampleRate()) + d.remainder
		frames = uint64(exact)
		d.remainder = exact - float64(frames)
		d.session.Advance(frames)
	} else {
		d.remainder = 0
	}
	d.engine.Sync()
	return frames
}

// Run drives the clock until ctx is done
func (d *ClockDriver) Run(ctx context.Context) {
	ticker := time.NewTicker(d.period)
	uiTicker := time.NewTicker(uiRate)
	defer ticker.Stop()
	defer uiTicker.Stop()

	last := d.now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := d.now()
			d.Step(now.Sub(last))
			last = now
		case <-uiTicker.C:
			select {
			case d.UpdateChan <- struct{}{}:
			default:
			}
		}
	}
}
