package midi

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

var (
	ErrPortScanTimeout = errors.New("midi: port scan timed out")
	ErrNoSuchPort      = errors.New("midi: no such output port")
)

// scanTimeout bounds port enumeration (CoreMIDI can hang)
const scanTimeout = 3 * time.Second

// Ports is a snapshot of the available MIDI ports
type Ports struct {
	In  []drivers.In
	Out []drivers.Out
}

// InNames returns the input port names
func (p Ports) InNames() []string {
	names := make([]string, len(p.In))
	for i, in := range p.In {
		names[i] = in.String()
	}
	return names
}

// OutNames returns the output port names
func (p Ports) OutNames() []string {
	names := make([]string, len(p.Out))
	for i, out := range p.Out {
		names[i] = out.String()
	}
	return names
}

// ListPorts enumerates ports with a timeout
func ListPorts() (Ports, error) {
	ch := make(chan Ports, 1)
	go func() {
		ch <- Ports{In: gomidi.GetInPorts(), Out: gomidi.GetOutPorts()}
	}()

	select {
	case p := <-ch:
		return p, nil
	case <-time.After(scanTimeout):
		// User needs to run: sudo killall coreaudiod midiserver
		return Ports{}, ErrPortScanTimeout
	}
}

// Sender writes one message to an output
type Sender func(gomidi.Message) error

// Router delivers messages to output ports by name, opening them lazily
type Router struct {
	defaultPort string
	senders     map[string]Sender
	mu          sync.RWMutex

	// open resolves a port name to a sender; replaced in tests
	open func(name string) (Sender, error)
}

// NewRouter creates a router backed by the registered MIDI driver
func NewRouter(defaultPort string) *Router {
	return &Router{
		defaultPort: defaultPort,
		senders:     make(map[string]Sender),
		open:        openOutPort,
	}
}

// NewRouterWith creates a router that resolves ports through open
func NewRouterWith(defaultPort string, open func(name string) (Sender, error)) *Router {
	r := NewRouter(defaultPort)
	r.open = open
	return r
}

func openOutPort(name string) (Sender, error) {
	ports, err := ListPorts()
	if err != nil {
		return nil, err
	}
	for _, port := range ports.Out {
		if port.String() == name || strings.Contains(port.String(), name) {
			send, err := gomidi.SendTo(port)
			if err != nil {
				return nil, fmt.Errorf("open output %q: %w", name, err)
			}
			return send, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrNoSuchPort, name)
}

// SetDefaultPort sets the port used when Send is given an empty name
func (r *Router) SetDefaultPort(portName string) {
	r.mu.Lock()
	r.defaultPort = portName
	r.mu.Unlock()
}

// DefaultPort returns the fallback port name
func (r *Router) DefaultPort() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultPort
}

// sender returns a sender for the given port name, lazily opening it
func (r *Router) sender(portName string) (Sender, error) {
	r.mu.RLock()
	if portName == "" {
		portName = r.defaultPort
	}
	if sender, ok := r.senders[portName]; ok {
		r.mu.RUnlock()
		return sender, nil
	}
	r.mu.RUnlock()

	if portName == "" {
		return nil, ErrNoSuchPort
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check after acquiring write lock
	if sender, ok := r.senders[portName]; ok {
		return sender, nil
	}

	sender, err := r.open(portName)
	if err != nil {
		return nil, err
	}
	r.senders[portName] = sender
	return sender, nil
}

// Send writes msg to the named port
func (r *Router) Send(portName string, msg gomidi.Message) error {
	sender, err := r.sender(portName)
	if err != nil {
		return err
	}
	return sender(msg)
}

// Forget drops a cached sender so the next Send reopens the port
func (r *Router) Forget(portName string) {
	r.mu.Lock()
	delete(r.senders, portName)
	r.mu.Unlock()
}

// Close releases all ports held by the driver
func (r *Router) Close() {
	r.mu.Lock()
	r.senders = make(map[string]Sender)
	r.mu.Unlock()
	gomidi.CloseDriver()
}
