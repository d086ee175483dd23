// Package tray provides the system tray interface for the Bagwatch
// monitoring daemon.
package tray

import (
	"sync"

	"github.com/getlantern/systray"
)

// Tray is the system tray application.
type Tray struct {
	onToggle    func(monitoring bool)
	onDashboard func()
	onQuit      func()
	monitoring  bool
	mu          sync.RWMutex

	// Menu items stored for later updates
	menuToggle       *systray.MenuItem
	menuLastIncident *systray.MenuItem
}

// New creates a new Tray instance. Monitoring starts off until the user
// enables it.
func New() *Tray {
	return &Tray{}
}

// OnToggle sets the callback for the monitoring toggle.
func (t *Tray) OnToggle(fn func(monitoring bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onToggle = fn
}

// OnDashboard sets the callback for the dashboard menu item.
func (t *Tray) OnDashboard(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onDashboard = fn
}

// OnQuit sets the callback for the quit menu item.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application. Blocks until systray.Quit() is
// called.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit tears the tray down.
func (t *Tray) Quit() {
	systray.Quit()
}

// onReady sets up the menu structure once the tray is available.
func (t *Tray) onReady() {
	systray.SetTitle("Bagwatch")
	systray.SetTooltip("Bagwatch Theft Monitoring")

	t.menuToggle = systray.AddMenuItem("○ Monitoring off", "Toggle bag monitoring")
	systray.AddSeparator()

	t.menuLastIncident = systray.AddMenuItem("Last incident: none", "Most recent incident")
	t.menuLastIncident.Disable()
	systray.AddSeparator()

	menuDashboard := systray.AddMenuItem("Open Dashboard...", "Open the dashboard in a browser")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit Bagwatch")

	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.handleToggle()
			case <-menuDashboard.ClickedCh:
				t.handleDashboard()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

func (t *Tray) onExit() {
}

// handleToggle flips the monitoring state and notifies the callback.
func (t *Tray) handleToggle() {
	t.mu.Lock()
	t.monitoring = !t.monitoring
	monitoring := t.monitoring

	if monitoring {
		t.menuToggle.SetTitle("● Monitoring on")
	} else {
		t.menuToggle.SetTitle("○ Monitoring off")
	}

	callback := t.onToggle
	t.mu.Unlock()

	// Call the callback outside the lock to prevent deadlocks
	if callback != nil {
		callback(monitoring)
	}
}

func (t *Tray) handleDashboard() {
	t.mu.RLock()
	callback := t.onDashboard
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}

	systray.Quit()
}

// SetMonitoring forces the toggle state, for when monitoring is started or
// stopped from the HTTP API rather than the menu.
func (t *Tray) SetMonitoring(monitoring bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.monitoring = monitoring
	if t.menuToggle != nil {
		if monitoring {
			t.menuToggle.SetTitle("● Monitoring on")
		} else {
			t.menuToggle.SetTitle("○ Monitoring off")
		}
	}
}

// SetLastIncident updates the last incident display in the menu.
func (t *Tray) SetLastIncident(summary string) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.menuLastIncident != nil {
		if summary == "" {
			t.menuLastIncident.SetTitle("Last incident: none")
		} else {
			t.menuLastIncident.SetTitle("Last incident: " + summary)
		}
	}
}

// IsMonitoring returns the current toggle state.
func (t *Tray) IsMonitoring() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.monitoring
}
