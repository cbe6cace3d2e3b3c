package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// BusConfig defines a saved bus configuration
type BusConfig struct {
	Name     string `json:"name"`
	Mode     string `json:"mode"`               // input, output or duplex
	PortName string `json:"portName,omitempty"` // hardware port the bus routes to
}

// EngineConfig stores scheduling parameters
type EngineConfig struct {
	ClientName   string `json:"clientName,omitempty"`
	SampleRate   int    `json:"sampleRate,omitempty"`
	TicksPerBeat int    `json:"ticksPerBeat,omitempty"`
	ReadAhead    int64  `json:"readAhead,omitempty"` // frames, 0 = one second
	DriverPeriod int    `json:"driverPeriodMs,omitempty"`
	StopTimeout  int    `json:"stopTimeoutMs,omitempty"`
	PortPoll     int    `json:"portPollMs,omitempty"`
}

// ImportConfig holds the patches given to tracks of an imported MIDI
// file. A negative bank sends no bank select.
type ImportConfig struct {
	Instrument     string `json:"instrument,omitempty"`
	InstrumentBank int    `json:"instrumentBank"`
	DrumInstrument string `json:"drumInstrument,omitempty"`
	DrumBank       int    `json:"drumBank"`
	TrackName      string `json:"trackName,omitempty"` // file, track or patch
}

// UIConfig stores UI preferences
type UIConfig struct {
	LastTempo   float64 `json:"lastTempo,omitempty"`
	LastProject string  `json:"lastProject,omitempty"`
}

// Config is the main configuration structure
type Config struct {
	Engine EngineConfig `json:"engine"`
	Buses  []BusConfig  `json:"buses,omitempty"`
	Import ImportConfig `json:"import"`
	UI     UIConfig     `json:"ui,omitempty"`
	Debug  bool         `json:"debug,omitempty"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			ClientName:   "go-midiseq",
			SampleRate:   48000,
			TicksPerBeat: 480,
			DriverPeriod: 10,
			StopTimeout:  500,
		},
		Buses: []BusConfig{
			{Name: "Master", Mode: "duplex"},
		},
		Import: ImportConfig{
			InstrumentBank: -1,
			DrumBank:       -1,
			TrackName:      "file",
		},
		UI: UIConfig{
			LastTempo: 120,
		},
	}
}

// DriverPeriodDuration returns the clock driver period, defaulting to 10ms
func (c *Config) DriverPeriodDuration() time.Duration {
	if c.Engine.DriverPeriod <= 0 {
		return 10 * time.Millisecond
	}
	return time.Duration(c.Engine.DriverPeriod) * time.Millisecond
}

// StopTimeoutDuration returns how long to wait for the output thread to exit
func (c *Config) StopTimeoutDuration() time.Duration {
	if c.Engine.StopTimeout <= 0 {
		return 500 * time.Millisecond
	}
	return time.Duration(c.Engine.StopTimeout) * time.Millisecond
}

// PortPollDuration returns the hot-plug scan period, defaulting to 1s
func (c *Config) PortPollDuration() time.Duration {
	if c.Engine.PortPoll <= 0 {
		return time.Second
	}
	return time.Duration(c.Engine.PortPoll) * time.Millisecond
}

// ConfigDir returns the config directory path
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "go-midiseq"), nil
}

// ConfigPath returns the full path to config.json
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads the config from disk, or returns defaults if not found
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return DefaultConfig(), nil
	}
	return LoadFile(path)
}

// LoadFile reads the config at path. Missing fields keep their defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the config to disk
func (c *Config) Save() error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return c.SaveFile(path)
}

// SaveFile writes the config to path, creating its directory
func (c *Config) SaveFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// FindBus finds a bus config by name
func (c *Config) FindBus(name string) *BusConfig {
	for i := range c.Buses {
		if c.Buses[i].Name == name {
			return &c.Buses[i]
		}
	}
	return nil
}

// AddBus adds or updates a bus config
func (c *Config) AddBus(bus BusConfig) {
	for i := range c.Buses {
		if c.Buses[i].Name == bus.Name {
			c.Buses[i] = bus
			return
		}
	}
	c.Buses = append(c.Buses, bus)
}

// OutputBuses returns buses that send to hardware
func (c *Config) OutputBuses() []BusConfig {
	var result []BusConfig
	for _, bus := range c.Buses {
		if bus.Mode == "output" || bus.Mode == "duplex" {
			result = append(result, bus)
		}
	}
	return result
}
