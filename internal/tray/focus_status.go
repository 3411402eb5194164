package tray

import "fmt"

// StatusIndicator wraps a Tray with the fixed menu multishiva needs: a
// status line reading "Focus: Local", a kill-switch action, and Quit. The
// current focus is shown through the tray title.
type StatusIndicator struct {
	tray       *Tray
	statusID   int
	OnKillSwitch func()
}

// NewStatusIndicator builds the tray menu for the given self name.
func NewStatusIndicator(selfName string, onKillSwitch func()) *StatusIndicator {
	t := New(fmt.Sprintf("multishiva (%s)", selfName))
	si := &StatusIndicator{tray: t, OnKillSwitch: onKillSwitch}

	si.statusID = t.AddMenuItem("Focus: Local", nil)
	t.AddSeparator()
	t.AddMenuItem("Return focus (kill switch)", func() {
		if si.OnKillSwitch != nil {
			si.OnKillSwitch()
		}
	})
	t.AddMenuItem("Quit", func() {
		t.Stop()
	})

	return si
}

// SetFocusLabel sets the tray title to label. The "Focus: Local" menu line
// keeps its initial text.
func (si *StatusIndicator) SetFocusLabel(label string) {
	si.tray.SetTitle(label)
}

// Run blocks running the tray event loop.
func (si *StatusIndicator) Run() { si.tray.Run() }

// Stop tears down the tray.
func (si *StatusIndicator) Stop() { si.tray.Stop() }
