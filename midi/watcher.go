package midi

import (
	"context"
	"sync"
	"time"
)

// PortEvent is emitted when an output port appears or disappears
type PortEvent struct {
	Type PortEventType
	Name string
}

type PortEventType int

const (
	PortAdded PortEventType = iota
	PortRemoved
)

func (t PortEventType) String() string {
	if t == PortRemoved {
		return "removed"
	}
	return "added"
}

// PortWatcher polls the output ports for hot-plug changes
type PortWatcher struct {
	known    map[string]bool
	mu       sync.RWMutex
	events   chan PortEvent
	pollRate time.Duration

	// list returns the current output names; replaced in tests
	list func() ([]string, error)
}

// NewPortWatcher creates a watcher polling every pollRate
func NewPortWatcher(pollRate time.Duration) *PortWatcher {
	if pollRate <= 0 {
		pollRate = time.Second
	}
	return &PortWatcher{
		known:    make(map[string]bool),
		events:   make(chan PortEvent, 16),
		pollRate: pollRate,
		list: func() ([]string, error) {
			ports, err := ListPorts()
			if err != nil {
				return nil, err
			}
			return ports.OutNames(), nil
		},
	}
}

// Events returns a channel of port events, closed when Run returns
func (w *PortWatcher) Events() <-chan PortEvent {
	return w.events
}

// Ports returns the output names seen by the last scan
func (w *PortWatcher) Ports() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	names := make([]string, 0, len(w.known))
	for name := range w.known {
		names = append(names, name)
	}
	return names
}

// Run polls until ctx is done (blocking - run in goroutine)
func (w *PortWatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.pollRate)
	defer ticker.Stop()
	defer close(w.events)

	w.scan(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.scan(ctx)
		}
	}
}

func (w *PortWatcher) scan(ctx context.Context) {
	names, err := w.list()
	if err != nil {
		// hung driver: skip this scan
		return
	}

	seen := make(map[string]bool, len(names))
	var events []PortEvent

	w.mu.Lock()
	for _, name := range names {
		seen[name] = true
		if !w.known[name] {
			events = append(events, PortEvent{Type: PortAdded, Name: name})
		}
	}
	for name := range w.known {
		if !seen[name] {
			events = append(events, PortEvent{Type: PortRemoved, Name: name})
		}
	}
	w.known = seen
	w.mu.Unlock()

	for _, ev := range events {
		select {
		case w.events <- ev:
		case <-ctx.Done():
			return
		}
	}
}
