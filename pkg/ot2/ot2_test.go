package ot2

import (
	"math"
	"testing"
)

func TestRunStatus_Terminal(t *testing.T) {
	tests := []struct {
		status   RunStatus
		expected bool
	}{
		{StatusIdle, false},
		{StatusRunning, false},
		{StatusPaused, false},
		{StatusStopRequested, false},
		{StatusStopped, true},
		{StatusFailed, true},
		{StatusSucceeded, true},
	}

	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.expected {
			t.Errorf("Terminal(%s) = %v, want %v", tt.status, got, tt.expected)
		}
	}
}

func TestProgress_Percent(t *testing.T) {
	tests := []struct {
		index    int
		total    int
		expected float64
	}{
		{0, 0, 0},     // unknown total
		{0, 100, 1},   // first command
		{49, 100, 50}, // halfway
		{99, 100, 100},
		{120, 100, 100}, // index past total is clamped
	}

	for _, tt := range tests {
		got := Progress{Index: tt.index, Total: tt.total}.Percent()
		if math.Abs(got-tt.expected) > 0.001 {
			t.Errorf("Percent(%d/%d) = %f, want %f", tt.index, tt.total, got, tt.expected)
		}
	}
}

func TestNew_AddrNormalization(t *testing.T) {
	tests := []struct {
		addr     string
		expected string
	}{
		{"169.254.110.39:31950", "169.254.110.39:31950"},
		{"169.254.110.39", "169.254.110.39:31950"},
		{"http://10.0.0.5:8080", "10.0.0.5:8080"},
		{"ot2.local", "ot2.local:31950"},
		{"http://ot2.local:31950/", "ot2.local:31950"},
	}

	for _, tt := range tests {
		c := New(tt.addr)
		if c.Addr() != tt.expected {
			t.Errorf("New(%q).Addr() = %s, want %s", tt.addr, c.Addr(), tt.expected)
		}
	}
}

func TestRun_Detail(t *testing.T) {
	run := Run{}
	if run.Detail() != "" {
		t.Errorf("Detail() on clean run = %q, want empty", run.Detail())
	}

	run.Errors = []RunError{
		{Detail: "pipette overpressure"},
		{Detail: "secondary"},
	}
	if run.Detail() != "pipette overpressure" {
		t.Errorf("Detail() = %q, want first error detail", run.Detail())
	}
}
