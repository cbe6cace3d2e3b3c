package midi

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePorts struct {
	mu    sync.Mutex
	names []string
	err   error
}

func (f *fakePorts) set(err error, names ...string) {
	f.mu.Lock()
	f.names, f.err = names, err
	f.mu.Unlock()
}

func (f *fakePorts) list() ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.names...), f.err
}

func TestPortWatcherScan(t *testing.T) {
	ports := &fakePorts{}
	w := NewPortWatcher(time.Hour)
	w.list = ports.list
	ctx := context.Background()

	ports.set(nil, "Synth", "Drums")
	w.scan(ctx)
	assert.Equal(t, PortEvent{PortAdded, "Synth"}, <-w.Events())
	assert.Equal(t, PortEvent{PortAdded, "Drums"}, <-w.Events())
	assert.ElementsMatch(t, []string{"Synth", "Drums"}, w.Ports())

	// a failed scan changes nothing
	ports.set(errors.New("hung"))
	w.scan(ctx)
	assert.Len(t, w.Ports(), 2)

	ports.set(nil, "Synth")
	w.scan(ctx)
	ev := <-w.Events()
	assert.Equal(t, PortRemoved, ev.Type)
	assert.Equal(t, "Drums", ev.Name)
	assert.Equal(t, "removed", ev.Type.String())
}

func TestPortWatcherRunClosesEvents(t *testing.T) {
	ports := &fakePorts{}
	ports.set(nil, "Synth")
	w := NewPortWatcher(time.Millisecond)
	w.list = ports.list

	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)

	require.Equal(t, PortEvent{PortAdded, "Synth"}, <-w.Events())
	cancel()
	for range w.Events() {
	}
}
