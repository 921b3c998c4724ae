package tray

import "testing"

func TestTray_State(t *testing.T) {
	tr := New(false, true)
	if tr.IsEnabled() {
		t.Error("expected disabled")
	}
	if !tr.ReferenceMode() {
		t.Error("expected reference mode on")
	}

	// Setters work before the menu exists.
	tr.SetEnabled(true)
	tr.SetReferenceMode(false)
	tr.SetStatus("ready")
	tr.SetLastGesture("fist")
	tr.SetBenchmark("3.2x faster")

	if !tr.IsEnabled() || tr.ReferenceMode() {
		t.Error("setters did not update state")
	}
	if tr.status != "ready" || tr.last != "fist" || tr.benchmark != "3.2x faster" {
		t.Errorf("unexpected state %q %q %q", tr.status, tr.last, tr.benchmark)
	}
}

func TestTray_Handle(t *testing.T) {
	tr := New(true, false)
	called := 0
	tr.OnBenchmark(func() { called++ })

	tr.handle(func() func() { return tr.onBenchmark })
	tr.handle(func() func() { return tr.onDashboard })
	if called != 1 {
		t.Errorf("expected 1 call, got %d", called)
	}
}

func TestTitles(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{toggleTitle(true), "● Enabled"},
		{toggleTitle(false), "○ Disabled"},
		{statusTitle("backend unavailable"), "Backend: backend unavailable"},
		{lastTitle(""), "Last: none"},
		{lastTitle("victory"), "Last: victory"},
		{benchmarkTitle(""), "Run Benchmark"},
		{benchmarkTitle("2.0x faster"), "Run Benchmark (2.0x faster)"},
		{BenchmarkSummary(0), "compiled unavailable"},
		{BenchmarkSummary(3.24), "3.2x faster"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("expected %q, got %q", tt.want, tt.got)
		}
	}
}
