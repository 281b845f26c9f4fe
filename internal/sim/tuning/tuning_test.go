package tuning

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_AppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	body := "protocol_version: \"1.0\"\ntick_rate_hz: 10\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	tune, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tune.TickRateHz != 10 {
		t.Fatalf("tick_rate_hz: got %d want 10", tune.TickRateHz)
	}
	if tune.InteractionRange != 2.0 {
		t.Fatalf("interaction_range default: got %v", tune.InteractionRange)
	}
	if tune.BarrierCloseDelayTicks != 40 {
		t.Fatalf("barrier_close_delay_ticks default: got %d", tune.BarrierCloseDelayTicks)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error")
	}
}

func TestDefault_IsComplete(t *testing.T) {
	d := Default()
	if d.TickRateHz <= 0 || d.MoveSpeed <= 0 || d.RoundEndTicks <= 0 {
		t.Fatalf("incomplete defaults: %+v", d)
	}
}
