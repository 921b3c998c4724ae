// Package tray provides the system tray menu for mudra.
package tray

import (
	"fmt"
	"sync"

	"github.com/getlantern/systray"
)

// Tray is the system tray menu. It shows backend status and the last
// emitted gesture, and toggles detection and reference mode.
type Tray struct {
	onToggle    func(enabled bool)
	onReference func(on bool)
	onBenchmark func()
	onDashboard func()
	onQuit      func()

	enabled   bool
	reference bool
	status    string
	last      string
	benchmark string
	mu        sync.RWMutex

	menuStatus      *systray.MenuItem
	menuToggle      *systray.MenuItem
	menuReference   *systray.MenuItem
	menuLastGesture *systray.MenuItem
	menuBenchmark   *systray.MenuItem
}

// New creates a Tray reflecting the given initial state.
func New(enabled, reference bool) *Tray {
	return &Tray{
		enabled:   enabled,
		reference: reference,
		status:    "loading",
	}
}

// OnToggle sets the callback for the detection toggle.
func (t *Tray) OnToggle(fn func(enabled bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onToggle = fn
}

// OnReferenceMode sets the callback for the reference mode toggle.
func (t *Tray) OnReferenceMode(fn func(on bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onReference = fn
}

// OnBenchmark sets the callback for the benchmark menu item.
func (t *Tray) OnBenchmark(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onBenchmark = fn
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

// Run starts the tray. It blocks until Quit is called and must run on the
// main goroutine.
func (t *Tray) Run() {
	systray.Run(t.onReady, func() {})
}

// Quit removes the tray and makes Run return.
func (t *Tray) Quit() {
	systray.Quit()
}

func (t *Tray) onReady() {
	systray.SetTitle("mudra")
	systray.SetTooltip("mudra gesture recognition")

	t.mu.Lock()
	t.menuStatus = systray.AddMenuItem(statusTitle(t.status), "Compiled backend status")
	t.menuStatus.Disable()
	t.menuLastGesture = systray.AddMenuItem(lastTitle(t.last), "Last emitted gesture")
	t.menuLastGesture.Disable()
	systray.AddSeparator()

	t.menuToggle = systray.AddMenuItem(toggleTitle(t.enabled), "Toggle gesture recognition")
	t.menuReference = systray.AddMenuItemCheckbox("Reference mode", "Classify with the interpreted backend", t.reference)
	systray.AddSeparator()

	t.menuBenchmark = systray.AddMenuItem(benchmarkTitle(t.benchmark), "Compare the compiled and interpreted backends")
	menuDashboard := systray.AddMenuItem("Open Dashboard...", "Open the dashboard in a browser")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit mudra")
	t.mu.Unlock()

	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.handleToggle()
			case <-t.menuReference.ClickedCh:
				t.handleReference()
			case <-t.menuBenchmark.ClickedCh:
				t.handle(func() func() { return t.onBenchmark })
			case <-menuDashboard.ClickedCh:
				t.handle(func() func() { return t.onDashboard })
			case <-menuQuit.ClickedCh:
				t.handle(func() func() { return t.onQuit })
				systray.Quit()
				return
			}
		}
	}()
}

func (t *Tray) handleToggle() {
	t.mu.Lock()
	t.enabled = !t.enabled
	enabled := t.enabled
	t.menuToggle.SetTitle(toggleTitle(enabled))
	callback := t.onToggle
	t.mu.Unlock()

	if callback != nil {
		callback(enabled)
	}
}

func (t *Tray) handleReference() {
	t.mu.Lock()
	t.reference = !t.reference
	on := t.reference
	setChecked(t.menuReference, on)
	callback := t.onReference
	t.mu.Unlock()

	if callback != nil {
		callback(on)
	}
}

// handle reads a callback under the lock and runs it outside of it.
func (t *Tray) handle(pick func() func()) {
	t.mu.RLock()
	callback := pick()
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

func setChecked(item *systray.MenuItem, on bool) {
	if item == nil {
		return
	}
	if on {
		item.Check()
	} else {
		item.Uncheck()
	}
}

// SetEnabled reflects a detection state changed elsewhere.
func (t *Tray) SetEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = enabled
	if t.menuToggle != nil {
		t.menuToggle.SetTitle(toggleTitle(enabled))
	}
}

// SetReferenceMode reflects a reference mode changed elsewhere.
func (t *Tray) SetReferenceMode(on bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reference = on
	setChecked(t.menuReference, on)
}

// SetStatus updates the backend status line.
func (t *Tray) SetStatus(status string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = status
	if t.menuStatus != nil {
		t.menuStatus.SetTitle(statusTitle(status))
	}
}

// SetLastGesture updates the last gesture display in the menu.
func (t *Tray) SetLastGesture(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last = name
	if t.menuLastGesture != nil {
		t.menuLastGesture.SetTitle(lastTitle(name))
	}
}

// SetBenchmark shows a benchmark summary on the benchmark item.
func (t *Tray) SetBenchmark(summary string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.benchmark = summary
	if t.menuBenchmark != nil {
		t.menuBenchmark.SetTitle(benchmarkTitle(summary))
	}
}

// IsEnabled returns the current enabled state.
func (t *Tray) IsEnabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}

// ReferenceMode returns the current reference mode state.
func (t *Tray) ReferenceMode() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.reference
}

func toggleTitle(enabled bool) string {
	if enabled {
		return "● Enabled"
	}
	return "○ Disabled"
}

func statusTitle(status string) string {
	return "Backend: " + status
}

func lastTitle(name string) string {
	if name == "" {
		return "Last: none"
	}
	return "Last: " + name
}

func benchmarkTitle(summary string) string {
	if summary == "" {
		return "Run Benchmark"
	}
	return "Run Benchmark (" + summary + ")"
}

// BenchmarkSummary formats a speedup for the benchmark item. A zero
// speedup means the compiled backend was not measured.
func BenchmarkSummary(speedup float64) string {
	if speedup <= 0 {
		return "compiled unavailable"
	}
	return fmt.Sprintf("%.1fx faster", speedup)
}
