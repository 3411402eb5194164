package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfigHasSaneDefaults(t *testing.T) {
	c := DefaultConfig()
	if c.Port != DefaultPort {
		t.Fatalf("expected default port %d, got %d", DefaultPort, c.Port)
	}
	if c.Screen.Width != defaultScreenWidth || c.Screen.Height != defaultScreenHeight {
		t.Fatalf("expected default screen %dx%d, got %dx%d", defaultScreenWidth, defaultScreenHeight, c.Screen.Width, c.Screen.Height)
	}
	if c.Behavior.EdgeThresholdPx != defaultEdgeThresholdPx {
		t.Fatalf("expected default edge threshold %d, got %d", defaultEdgeThresholdPx, c.Behavior.EdgeThresholdPx)
	}
	if c.Behavior.FrictionMS != defaultFrictionMS {
		t.Fatalf("expected default friction %d, got %d", defaultFrictionMS, c.Behavior.FrictionMS)
	}
	if c.Behavior.ReconnectDelayMS != defaultReconnectDelayMS {
		t.Fatalf("expected default reconnect delay %d, got %d", defaultReconnectDelayMS, c.Behavior.ReconnectDelayMS)
	}
}

func TestApplyDefaultsBackfillsZeroFields(t *testing.T) {
	c := &Config{SelfName: "host-a", Mode: "host", TLS: TLSConfig{PSK: "secret"}}
	c.applyDefaults()

	if c.Port != DefaultPort {
		t.Fatalf("expected backfilled port %d, got %d", DefaultPort, c.Port)
	}
	if c.Screen.Width != defaultScreenWidth || c.Screen.Height != defaultScreenHeight {
		t.Fatalf("expected backfilled screen %dx%d, got %dx%d", defaultScreenWidth, defaultScreenHeight, c.Screen.Width, c.Screen.Height)
	}
	if c.Behavior.EdgeThresholdPx != defaultEdgeThresholdPx {
		t.Fatalf("expected backfilled edge threshold, got %d", c.Behavior.EdgeThresholdPx)
	}
}

func TestApplyDefaultsPreservesExplicitValues(t *testing.T) {
	c := &Config{
		SelfName: "host-a",
		Mode:     "host",
		TLS:      TLSConfig{PSK: "secret"},
		Port:     9999,
		Screen:   ScreenConfig{Width: 2560, Height: 1440},
		Behavior: Behavior{EdgeThresholdPx: 25, FrictionMS: 250, ReconnectDelayMS: 1000},
	}
	c.applyDefaults()

	if c.Port != 9999 {
		t.Fatalf("expected explicit port preserved, got %d", c.Port)
	}
	if c.Screen.Width != 2560 || c.Screen.Height != 1440 {
		t.Fatalf("expected explicit screen size preserved, got %dx%d", c.Screen.Width, c.Screen.Height)
	}
	if c.Behavior.EdgeThresholdPx != 25 {
		t.Fatalf("expected explicit edge threshold preserved, got %d", c.Behavior.EdgeThresholdPx)
	}
}

func TestValidateRequiresSelfName(t *testing.T) {
	c := DefaultConfig()
	c.Mode = "host"
	c.TLS.PSK = "secret"
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for missing self_name")
	}
}

func TestValidateRejectsUnknownMode(t *testing.T) {
	c := DefaultConfig()
	c.SelfName = "host-a"
	c.Mode = "bystander"
	c.TLS.PSK = "secret"
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}

func TestValidateRequiresPSK(t *testing.T) {
	c := DefaultConfig()
	c.SelfName = "host-a"
	c.Mode = "host"
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for missing tls.psk")
	}
}

func TestValidateAgentWithoutHostAddressFallsBackToDiscovery(t *testing.T) {
	c := DefaultConfig()
	c.SelfName = "agent-a"
	c.Mode = "agent"
	c.TLS.PSK = "secret"
	if err := c.Validate(); err != nil {
		t.Fatalf("expected agent with no host_address to be valid (discovery fallback), got %v", err)
	}
	c.HostAddress = "192.168.1.10:53421"
	if err := c.Validate(); err != nil {
		t.Fatalf("expected valid agent config, got %v", err)
	}
}

func TestValidateRejectsSelfAsNeighbor(t *testing.T) {
	c := DefaultConfig()
	c.SelfName = "host-a"
	c.Mode = "host"
	c.TLS.PSK = "secret"
	c.Edges.Right = "host-a"
	if err := c.Validate(); err == nil {
		t.Fatal("expected error when an edge names this machine as its own neighbor")
	}
}

func TestManagerLoadRejectsMissingFile(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(filepath.Join(dir, "config.json"))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if err := m.Load(); err == nil {
		t.Fatal("expected error loading a missing config file")
	}
}

func TestManagerLoadValidatesAndAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	doc := `{"self_name":"host-a","mode":"host","tls":{"psk":"secret"}}`
	if err := os.WriteFile(path, []byte(doc), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	m, err := NewManager(path)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	cfg := m.Get()
	if cfg.Port != DefaultPort {
		t.Fatalf("expected backfilled default port, got %d", cfg.Port)
	}
	if cfg.Screen.Width != defaultScreenWidth || cfg.Screen.Height != defaultScreenHeight {
		t.Fatalf("expected backfilled default screen size, got %dx%d", cfg.Screen.Width, cfg.Screen.Height)
	}
}

func TestManagerLoadRejectsInvalidDocument(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	doc := `{"self_name":"agent-a","mode":"agent"}`
	if err := os.WriteFile(path, []byte(doc), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	m, err := NewManager(path)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if err := m.Load(); err == nil {
		t.Fatal("expected validation error for config missing tls.psk")
	}
}

func TestManagerSaveRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	m, err := NewManager(path)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	cfg := DefaultConfig()
	cfg.SelfName = "host-a"
	cfg.TLS.PSK = "secret"
	cfg.Edges.Right = "agent-a"
	m.Set(cfg)

	if err := m.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read saved config: %v", err)
	}
	var got Config
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal saved config: %v", err)
	}
	if got.SelfName != "host-a" || got.Edges.Right != "agent-a" {
		t.Fatalf("unexpected round-tripped config: %+v", got)
	}
}

func TestManagerRegisterChangeCallbackFiresOnSet(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(filepath.Join(dir, "config.json"))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	var got *Config
	m.RegisterChangeCallback(func(c *Config) { got = c })

	cfg := DefaultConfig()
	cfg.SelfName = "host-a"
	m.Set(cfg)

	if got != cfg {
		t.Fatal("expected change callback to fire with the new config on Set")
	}
}
