package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	TickRateHz         int `yaml:"tick_rate_hz"`
	SnapshotEveryTicks int `yaml:"snapshot_every_ticks"`

	// Agent movement/interaction.
	MoveSpeed        float64 `yaml:"move_speed"` // units per tick
	InteractionRange float64 `yaml:"interaction_range"`

	// Token handling.
	CarryDistance float64 `yaml:"carry_distance"`
	CarryHeight   float64 `yaml:"carry_height"`
	DropScatter   float64 `yaml:"drop_scatter"`
	ReleaseRadius float64 `yaml:"release_radius"`

	// Barrier auto-close.
	BarrierCloseDelayTicks int `yaml:"barrier_close_delay_ticks"`

	// Round end countdown once a winner is recorded.
	RoundEndTicks int `yaml:"round_end_ticks"`
}

func Load(path string) (Tuning, error) {
	var t Tuning
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	t.applyDefaults()
	return t, nil
}

func (t *Tuning) applyDefaults() {
	if t.TickRateHz <= 0 {
		t.TickRateHz = 20
	}
	if t.MoveSpeed <= 0 {
		t.MoveSpeed = 0.25
	}
	if t.InteractionRange <= 0 {
		t.InteractionRange = 2.0
	}
	if t.CarryDistance <= 0 {
		t.CarryDistance = 0.8
	}
	if t.CarryHeight <= 0 {
		t.CarryHeight = 1.1
	}
	if t.DropScatter <= 0 {
		t.DropScatter = 0.5
	}
	if t.ReleaseRadius <= 0 {
		t.ReleaseRadius = 3.0
	}
	if t.BarrierCloseDelayTicks <= 0 {
		t.BarrierCloseDelayTicks = 40
	}
	if t.RoundEndTicks <= 0 {
		t.RoundEndTicks = 100
	}
}

// Default returns the tuning used when no tuning.yaml is present (tests, replay).
func Default() Tuning {
	var t Tuning
	t.ProtocolVersion = "1.0"
	t.applyDefaults()
	return t
}
