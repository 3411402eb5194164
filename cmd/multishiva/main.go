// multishiva controls multiple computers with one keyboard and mouse: a
// host machine captures local input and forwards it to a paired agent when
// the cursor crosses a configured screen edge.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/yrbane/multishiva/internal/agentd"
	"github.com/yrbane/multishiva/internal/autostart"
	"github.com/yrbane/multishiva/internal/config"
	"github.com/yrbane/multishiva/internal/discovery"
	"github.com/yrbane/multishiva/internal/fingerprint"
	"github.com/yrbane/multishiva/internal/focus"
	"github.com/yrbane/multishiva/internal/hostd"
	"github.com/yrbane/multishiva/internal/hotkey"
	"github.com/yrbane/multishiva/internal/input"
	"github.com/yrbane/multishiva/internal/osutils"
	"github.com/yrbane/multishiva/internal/statusapi"
	"github.com/yrbane/multishiva/internal/topology"
	"github.com/yrbane/multishiva/internal/tray"
)

// Exit codes, per the CLI contract.
const (
	exitOK          = 0
	exitConfigError = 1
	exitAuthError   = 2
	exitDeviceError = 3
	exitArgConflict = 4
)

// Args holds the parsed command line. The mode and config flags are each
// registered twice (long form and short alias, -m and -c) writing into the
// same variable, the only way to get GNU-style short/long aliasing out of
// the standard flag package; the other flags have a long form only.
type Args struct {
	mode      string
	config    string
	host      string
	simulate  bool
	gui       bool
	autostart string
}

func parseArgs() *Args {
	a := &Args{}
	flag.StringVar(&a.mode, "mode", envOr("MULTISHIVA_MODE", ""), "mode of operation: host or agent")
	flag.StringVar(&a.mode, "m", envOr("MULTISHIVA_MODE", ""), "shorthand for -mode")
	flag.StringVar(&a.config, "config", envOr("MULTISHIVA_CONFIG", ""), "path to configuration file")
	flag.StringVar(&a.config, "c", envOr("MULTISHIVA_CONFIG", ""), "shorthand for -config")
	flag.StringVar(&a.host, "host", envOr("MULTISHIVA_HOST", ""), "agent-mode override for host address")
	flag.BoolVar(&a.simulate, "simulate", false, "run without real device capture, using a synthetic event source")
	flag.BoolVar(&a.gui, "gui", false, "launch the tray configuration UI")
	flag.StringVar(&a.autostart, "autostart", "", "manage login autostart: enable, disable, or status, then exit")
	flag.Parse()
	return a
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (a *Args) validate() error {
	if a.gui && a.simulate {
		return fmt.Errorf("cannot use --gui and --simulate together")
	}
	if a.mode != "" && a.gui {
		return fmt.Errorf("cannot specify --mode %s with --gui (GUI auto-detects mode)", a.mode)
	}
	if a.mode != "" && a.mode != "host" && a.mode != "agent" {
		return fmt.Errorf("--mode must be \"host\" or \"agent\", got %q", a.mode)
	}
	return nil
}

func main() {
	os.Exit(run())
}

func run() int {
	args := parseArgs()
	if err := args.validate(); err != nil {
		log.Printf("multishiva: %v", err)
		return exitArgConflict
	}

	if args.autostart != "" {
		return runAutostart(args.autostart)
	}

	cfgMgr, err := config.NewManager(args.config)
	if err != nil {
		log.Printf("multishiva: resolve config path: %v", err)
		return exitConfigError
	}
	if err := cfgMgr.Load(); err != nil {
		log.Printf("multishiva: %v", err)
		log.Printf("hint: run once with a valid config document at %s, self_name/mode/tls.psk are required", cfgMgr.Path())
		return exitConfigError
	}
	cfg := cfgMgr.Get()

	if args.mode != "" {
		cfg.Mode = args.mode
	}
	if args.host != "" {
		cfg.HostAddress = args.host
	}
	if err := cfg.Validate(); err != nil {
		log.Printf("multishiva: %v", err)
		return exitConfigError
	}

	fpPath := filepath.Join(mustConfigDir(), "fingerprints.json")
	store, err := fingerprint.Open(fpPath)
	if err != nil {
		log.Printf("multishiva: open fingerprint store: %v", err)
		return exitConfigError
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("multishiva: shutting down...")
		cancel()
	}()

	switch cfg.Mode {
	case "host":
		return runHost(ctx, cfg, cfgMgr, store, args)
	case "agent":
		return runAgent(ctx, cfg, store, args)
	default:
		log.Printf("multishiva: unknown mode %q", cfg.Mode)
		return exitConfigError
	}
}

func runAutostart(action string) int {
	switch action {
	case "enable":
		if err := autostart.Enable(); err != nil {
			log.Printf("multishiva: enable autostart: %v", err)
			return exitConfigError
		}
	case "disable":
		if err := autostart.Disable(); err != nil {
			log.Printf("multishiva: disable autostart: %v", err)
			return exitConfigError
		}
	case "status":
		fmt.Printf("autostart enabled: %v\n", autostart.IsEnabled())
	default:
		log.Printf("multishiva: --autostart must be enable, disable, or status")
		return exitArgConflict
	}
	return exitOK
}

func mustConfigDir() string {
	dir, err := config.UserConfigDir()
	if err != nil {
		return "."
	}
	return dir
}

func buildTopology(cfg *config.Config) *topology.Topology {
	topo := topology.New()
	for dir, neighbor := range map[topology.Direction]string{
		topology.Left:   cfg.Edges.Left,
		topology.Right:  cfg.Edges.Right,
		topology.Top:    cfg.Edges.Top,
		topology.Bottom: cfg.Edges.Bottom,
	} {
		if neighbor != "" {
			topo.SetEdge(cfg.SelfName, dir, neighbor)
		}
	}
	return topo
}

func runHost(ctx context.Context, cfg *config.Config, cfgMgr *config.Manager, store *fingerprint.Store, args *Args) int {
	topo := buildTopology(cfg)
	h, err := hostd.New(cfg, topo, store)
	if err != nil {
		log.Printf("multishiva: %v", err)
		return exitDeviceError
	}
	if args.simulate {
		h.SetCapture(input.NewSimulatedCapture())
	}

	if runtime.GOOS == "windows" {
		go func() {
			if err := osutils.EnsureFirewallRule(int(cfg.Port)); err != nil {
				log.Printf("multishiva: firewall rule: %v", err)
			}
		}()
	}

	status := statusapi.New(cfg.SelfName, cfg.Mode, cfg.TLS.PSK)
	h.AddStateObserver(status.OnFocusChanged)
	h.OnPeerConnected = func(peer string) {
		status.SetPeers([]statusapi.PeerStatus{{Name: peer, State: "authenticated"}})
	}
	h.OnPeerDisconnected = func(peer string) {
		status.SetPeers(nil)
	}
	if addr, closeFn, err := status.Listen(0); err != nil {
		log.Printf("multishiva: status API: %v", err)
	} else {
		defer closeFn()
		log.Printf("multishiva: status API on %s", addr)
	}

	announcer := discovery.NewAnnouncer(cfg.SelfName, int(cfg.Port), fingerprint.Digest(cfg.SelfName, []byte(cfg.TLS.PSK)))
	if err := announcer.Start(ctx); err != nil {
		log.Printf("multishiva: mDNS announce: %v", err)
	}
	defer announcer.Stop()

	hkMgr := hotkey.NewManager()
	if cfg.Hotkeys.KillSwitch != "" {
		if _, err := hkMgr.Register(cfg.Hotkeys.KillSwitch, h.Focus.KillSwitch); err != nil {
			log.Printf("multishiva: hotkeys.kill_switch: %v", err)
		}
	}
	if cfg.Hotkeys.FocusReturn != "" {
		if _, err := hkMgr.Register(cfg.Hotkeys.FocusReturn, h.Focus.FocusReturnHotkey); err != nil {
			log.Printf("multishiva: hotkeys.focus_return: %v", err)
		}
	}
	if err := hkMgr.Start(); err != nil {
		log.Printf("multishiva: hotkey engine: %v", err)
	}
	h.OnKeyEvent = hkMgr.UpdateState

	var indicator *tray.StatusIndicator
	if args.gui {
		indicator = tray.NewStatusIndicator(cfg.SelfName, h.Focus.KillSwitch)
		h.AddStateObserver(func(st focus.State) {
			indicator.SetFocusLabel(fmt.Sprintf("multishiva: %s", st.Kind))
		})
		go indicator.Run()
	}

	go func() {
		if err := h.Serve(ctx, int(cfg.Port)); err != nil {
			log.Printf("multishiva: listener: %v", err)
		}
	}()

	if err := h.Run(ctx); err != nil {
		log.Printf("multishiva: %v", err)
		if indicator != nil {
			indicator.Stop()
		}
		return exitDeviceError
	}
	if indicator != nil {
		indicator.Stop()
	}
	return exitOK
}

func runAgent(ctx context.Context, cfg *config.Config, store *fingerprint.Store, args *Args) int {
	a, err := agentd.New(cfg, store)
	if err != nil {
		log.Printf("multishiva: %v", err)
		return exitDeviceError
	}
	if args.simulate {
		a.SetInjector(input.NewSimulatedInjector())
	}

	status := statusapi.New(cfg.SelfName, cfg.Mode, cfg.TLS.PSK)
	a.OnFocusChanged = func(focused bool, hostName string) {
		st := focus.State{Kind: focus.Local}
		if focused {
			st = focus.State{Kind: focus.Remote, Peer: hostName}
		}
		status.OnFocusChanged(st)
	}
	if addr, closeFn, err := status.Listen(0); err != nil {
		log.Printf("multishiva: status API: %v", err)
	} else {
		defer closeFn()
		log.Printf("multishiva: status API on %s", addr)
	}

	browser := discovery.NewBrowser()
	browser.OnPeerFound = func(p discovery.Peer) {
		log.Printf("multishiva: discovered peer %s at %s:%d", p.Name, p.Address, p.Port)
	}
	if err := browser.Start(ctx); err != nil {
		log.Printf("multishiva: mDNS browse: %v", err)
	}
	defer browser.Stop()

	if cfg.HostAddress == "" {
		peer, ok := browser.Discover(ctx, cfg.HostName, 5*time.Second)
		if !ok {
			log.Printf("multishiva: discovery: no host found on the LAN within 5s")
			return exitDeviceError
		}
		log.Printf("multishiva: discovery: resolved host %s at %s", peer.Name, peer.Address)
		a.SetHostAddress(peer.Address)
	}

	var indicator *tray.StatusIndicator
	if args.gui {
		indicator = tray.NewStatusIndicator(cfg.SelfName, func() {})
		a.OnFocusChanged = func(focused bool, hostName string) {
			label := "multishiva: local"
			if focused {
				label = fmt.Sprintf("multishiva: remote (%s)", hostName)
			}
			indicator.SetFocusLabel(label)
			status.OnFocusChanged(focusStateFor(focused, hostName))
		}
		go indicator.Run()
	}

	reconnectDelay := msToDuration(cfg.Behavior.ReconnectDelayMS)
	if err := a.Run(ctx, reconnectDelay); err != nil {
		log.Printf("multishiva: %v", err)
		if indicator != nil {
			indicator.Stop()
		}
		return exitAuthError
	}
	if indicator != nil {
		indicator.Stop()
	}
	return exitOK
}

func msToDuration(ms uint32) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func focusStateFor(focused bool, hostName string) focus.State {
	if focused {
		return focus.State{Kind: focus.Remote, Peer: hostName}
	}
	return focus.State{Kind: focus.Local}
}
