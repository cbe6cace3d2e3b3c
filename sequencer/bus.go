package sequencer

import (
	"fmt"
	"strings"
	"sync"

	"go-midiseq/backend"
	"go-midiseq/debug"
)

// BusMode is the direction of a bus port
type BusMode int

const (
	BusNone BusMode = iota
	BusInput
	BusOutput
	BusDuplex
)

func (m BusMode) String() string {
	switch m {
	case BusInput:
		return "input"
	case BusOutput:
		return "output"
	case BusDuplex:
		return "duplex"
	}
	return "none"
}

// ParseBusMode is the inverse of String; unknown text is BusNone
func ParseBusMode(s string) BusMode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "input":
		return BusInput
	case "output":
		return BusOutput
	case "duplex":
		return BusDuplex
	}
	return BusNone
}

// caps maps a mode to the port capabilities it advertises
func (m BusMode) caps() backend.PortCaps {
	var caps backend.PortCaps
	if m == BusInput || m == BusDuplex {
		caps |= backend.CapWrite | backend.CapSubsWrite
	}
	if m == BusOutput || m == BusDuplex {
		caps |= backend.CapRead | backend.CapSubsRead
	}
	return caps
}

// BankSelectMethod picks which bank-select controllers SetPatch sends
type BankSelectMethod int

const (
	BankSelectNormal BankSelectMethod = iota // MSB then LSB
	BankSelectMSB
	BankSelectLSB
)

// Bank-select controller numbers
const (
	ccBankMSB = 0x00
	ccBankLSB = 0x20
)

// Bus is a named port on the engine's client with a per-channel patch map
type Bus struct {
	name string
	mode BusMode

	mu      sync.Mutex
	engine  *Engine
	port    int
	patches [16]string
}

// NewBus creates a closed bus. Attach it with Engine.AddBus.
func NewBus(name string, mode BusMode) *Bus {
	return &Bus{name: name, mode: mode, port: -1}
}

func (b *Bus) Name() string  { return b.name }
func (b *Bus) Mode() BusMode { return b.mode }

// Port returns the backend port id, or -1 when closed
func (b *Bus) Port() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.port
}

func (b *Bus) setEngine(e *Engine) {
	b.mu.Lock()
	b.engine = e
	b.mu.Unlock()
}

func (b *Bus) sequencer() backend.Sequencer {
	b.mu.Lock()
	e := b.engine
	b.mu.Unlock()
	if e == nil {
		return nil
	}
	return e.Sequencer()
}

// Open (re)creates the bus port on the engine's client
func (b *Bus) Open() error {
	b.Close()

	b.mu.Lock()
	e := b.engine
	b.mu.Unlock()
	if e == nil {
		return ErrNoEngine
	}
	seq := e.Sequencer()
	if seq == nil {
		return ErrNoClient
	}

	port, err := seq.CreatePort(b.name, b.mode.caps())
	if err != nil {
		return fmt.Errorf("create port %q: %w", b.name, err)
	}

	b.mu.Lock()
	b.port = port
	b.mu.Unlock()
	debug.Log("bus", "open %s mode=%s port=%d", b.name, b.mode, port)
	return nil
}

// Close deletes the port. Safe to repeat.
func (b *Bus) Close() {
	b.mu.Lock()
	port := b.port
	b.port = -1
	b.mu.Unlock()
	if port < 0 {
		return
	}

	if seq := b.sequencer(); seq != nil {
		if err := seq.DeletePort(port); err != nil {
			debug.Warn("bus", err, "delete port %d", port)
		}
	}
	debug.Log("bus", "close %s port=%d", b.name, port)
}

// Instrument returns the instrument name recorded for channel
func (b *Bus) Instrument(channel uint8) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.patches[channel&0x0f]
}

// Patches returns the per-channel instrument names
func (b *Bus) Patches() [16]string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.patches
}

// SetPatch records instrument on channel and sends the bank select and
// program change right away. A negative bank sends no bank select.
func (b *Bus) SetPatch(channel uint8, instrument string, bank, program int, method BankSelectMethod) error {
	channel &= 0x0f
	if instrument != "" {
		b.mu.Lock()
		b.patches[channel] = instrument
		b.mu.Unlock()
	}

	seq := b.sequencer()
	if seq == nil {
		return nil
	}
	port := b.Port()

	direct := func(ev backend.Event) error {
		ev.Channel = channel
		ev.Source = port
		ev.Direct = true
		return seq.Output(ev)
	}

	if bank >= 0 && (method == BankSelectNormal || method == BankSelectMSB) {
		err := direct(backend.Event{Type: backend.EvController, Param: ccBankMSB, Value: int32((bank & 0x3f80) >> 7)})
		if err != nil {
			return err
		}
	}
	if bank >= 0 && (method == BankSelectNormal || method == BankSelectLSB) {
		err := direct(backend.Event{Type: backend.EvController, Param: ccBankLSB, Value: int32(bank & 0x7f)})
		if err != nil {
			return err
		}
	}
	if err := direct(backend.Event{Type: backend.EvPgmChange, Value: int32(program & 0x7f)}); err != nil {
		return err
	}

	debug.Log("bus", "%s patch ch=%d bank=%d prog=%d %q", b.name, channel+1, bank, program, instrument)
	return seq.Drain()
}
