// Package config loads and validates the multishiva configuration document:
// identity, mode, network settings, screen topology edges, hotkeys, and the
// behavior tuning knobs that govern edge friction and reconnect timing.
package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sync"
)

// DefaultPort is the TCP port multishiva listens on and dials by default.
const DefaultPort = 53421

const (
	defaultEdgeThresholdPx  = 10
	defaultFrictionMS       = 100
	defaultReconnectDelayMS = 5000
	defaultScreenWidth      = 1920
	defaultScreenHeight     = 1080
)

// Config is the on-disk configuration document. An agent's HostAddress may
// be left empty, in which case it browses for a peer advertising
// HostName (or the first one seen, if HostName is also empty) instead of
// dialing a fixed address.
type Config struct {
	SelfName    string       `json:"self_name"`
	Mode        string       `json:"mode"`
	Port        uint16       `json:"port"`
	HostAddress string       `json:"host_address,omitempty"`
	HostName    string       `json:"host_name,omitempty"`
	TLS         TLSConfig    `json:"tls"`
	Screen      ScreenConfig `json:"screen"`
	Edges       EdgesConfig  `json:"edges"`
	Hotkeys     Hotkeys      `json:"hotkeys"`
	Behavior    Behavior     `json:"behavior"`
}

// ScreenConfig gives this machine's pixel dimensions, used both to hit-test
// the local cursor against configured edges and, on the host, as the
// remoteBounds argument to topology.EntryPoint. The host has no copy of an
// agent's dimensions; the agent clamps the entry point it receives to its
// own ScreenConfig.
type ScreenConfig struct {
	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`
}

// TLSConfig carries the pre-shared key used for handshake authentication.
// The field is named tls for continuity with the wire spec even though the
// transport itself is not TLS; the PSK feeds the handshake proof, not a
// certificate.
type TLSConfig struct {
	PSK string `json:"psk"`
}

// EdgesConfig maps each of the four screen edges to a neighbor machine
// name. Unset edges have no neighbor and never trigger a transition.
type EdgesConfig struct {
	Left   string `json:"left,omitempty"`
	Right  string `json:"right,omitempty"`
	Top    string `json:"top,omitempty"`
	Bottom string `json:"bottom,omitempty"`
}

// Hotkeys carries the optional global hotkey strings, parsed by
// internal/hotkey using the same "Ctrl+Alt+Key" grammar throughout.
type Hotkeys struct {
	FocusReturn string `json:"focus_return,omitempty"`
	KillSwitch  string `json:"kill_switch,omitempty"`
}

// Behavior tunes edge sensitivity, transition friction, and reconnect
// pacing. Zero values are replaced by their documented defaults on load.
type Behavior struct {
	EdgeThresholdPx  uint32 `json:"edge_threshold_px,omitempty"`
	FrictionMS       uint32 `json:"friction_ms,omitempty"`
	ReconnectDelayMS uint32 `json:"reconnect_delay_ms,omitempty"`
}

// DefaultConfig returns a Config with every optional field set to its
// documented default. SelfName and TLS.PSK still require the caller to fill
// them in; there is no sane default for identity or a shared secret. Mode
// defaults to "host", so a document that names no mode loads as a host.
func DefaultConfig() *Config {
	return &Config{
		Mode: "host",
		Port: DefaultPort,
		Screen: ScreenConfig{
			Width:  defaultScreenWidth,
			Height: defaultScreenHeight,
		},
		Behavior: Behavior{
			EdgeThresholdPx:  defaultEdgeThresholdPx,
			FrictionMS:       defaultFrictionMS,
			ReconnectDelayMS: defaultReconnectDelayMS,
		},
	}
}

// applyDefaults fills zero-valued optional fields after a Load, so old
// configs written before a field existed still behave sensibly.
func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Screen.Width == 0 {
		c.Screen.Width = defaultScreenWidth
	}
	if c.Screen.Height == 0 {
		c.Screen.Height = defaultScreenHeight
	}
	if c.Behavior.EdgeThresholdPx == 0 {
		c.Behavior.EdgeThresholdPx = defaultEdgeThresholdPx
	}
	if c.Behavior.FrictionMS == 0 {
		c.Behavior.FrictionMS = defaultFrictionMS
	}
	if c.Behavior.ReconnectDelayMS == 0 {
		c.Behavior.ReconnectDelayMS = defaultReconnectDelayMS
	}
}

// Validate checks the invariants the rest of the system assumes hold:
// identity and mode are set and a shared secret is present, in either mode.
// An agent with no HostAddress is valid; it falls back to LAN discovery at
// connect time.
func (c *Config) Validate() error {
	if c.SelfName == "" {
		return fmt.Errorf("config: self_name is required")
	}
	switch c.Mode {
	case "host", "agent":
	default:
		return fmt.Errorf("config: mode must be \"host\" or \"agent\", got %q", c.Mode)
	}
	if c.TLS.PSK == "" {
		return fmt.Errorf("config: tls.psk is required")
	}
	for edge, neighbor := range c.edgeMap() {
		if neighbor == c.SelfName {
			return fmt.Errorf("config: edges.%s names this machine as its own neighbor", edge)
		}
	}
	return nil
}

func (c *Config) edgeMap() map[string]string {
	return map[string]string{
		"left":   c.Edges.Left,
		"right":  c.Edges.Right,
		"top":    c.Edges.Top,
		"bottom": c.Edges.Bottom,
	}
}

// Manager owns the loaded configuration and its on-disk path, guarding
// concurrent access the way the CLI, the status API, and hot-reload all
// need to.
type Manager struct {
	mu         sync.Mutex
	configPath string
	config     *Config
	onChanged  func(*Config)
}

// NewManager resolves the default config path and seeds an unloaded
// Manager with documented defaults.
func NewManager(explicitPath string) (*Manager, error) {
	path := explicitPath
	if path == "" {
		var err error
		path, err = defaultConfigPath()
		if err != nil {
			return nil, err
		}
	}
	return &Manager{
		configPath: path,
		config:     DefaultConfig(),
	}, nil
}

func defaultConfigPath() (string, error) {
	dir, err := UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// UserConfigDir returns the platform config directory for multishiva,
// creating it if necessary. Also used by internal/fingerprint to colocate
// the trust store next to the config file.
func UserConfigDir() (string, error) {
	var base string
	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, "Library", "Application Support", "multishiva")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			appData = filepath.Join(home, "AppData", "Roaming")
		}
		base = filepath.Join(appData, "multishiva")
	default:
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config", "multishiva")
	}

	if err := os.MkdirAll(base, 0755); err != nil {
		return "", err
	}
	return base, nil
}

// Load reads and validates the configuration file, replacing whatever the
// Manager currently holds. A missing file is a ConfigError, since the CLI
// requires an explicit config document (unlike the teacher's optional
// preferences file, PSKs cannot default to zero values).
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", m.configPath, err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: parse %s: %w", m.configPath, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}

	m.config = cfg
	if m.onChanged != nil {
		m.onChanged(cfg)
	}
	return nil
}

// Save writes the current configuration to disk.
func (m *Manager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := json.MarshalIndent(m.config, "", "  ")
	if err != nil {
		return err
	}
	log.Printf("config: saving to %s (%d bytes)", m.configPath, len(data))
	return os.WriteFile(m.configPath, data, 0600)
}

// Get returns the current configuration.
func (m *Manager) Get() *Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.config
}

// Set replaces the configuration and notifies any registered callback.
func (m *Manager) Set(cfg *Config) {
	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	if m.onChanged != nil {
		m.onChanged(cfg)
	}
}

// RegisterChangeCallback registers a function invoked after every Load or
// Set, used by the orchestrators to re-apply topology and behavior changes
// without a restart.
func (m *Manager) RegisterChangeCallback(fn func(*Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChanged = fn
}

// Path returns the resolved configuration file path.
func (m *Manager) Path() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.configPath
}
