package snapshot

import (
	"path/filepath"
	"reflect"
	"testing"
)

func TestSnapshot_WriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snapshots", "000000000042.snap.zst")

	snap := SnapshotV1{
		Header:       Header{Version: 1, SessionID: "session_1", Tick: 42},
		Seed:         1337,
		TickRate:     20,
		LayoutDigest: "deadbeef",
		Round: RoundV1{
			Number:        2,
			SolvedCount:   1,
			RequiredCount: 2,
			StartedTick:   10,
		},
		Tokens: []TokenV1{
			{ID: "T_CIR", Kind: "CIRCLE", State: "HELD", HeldBy: "A0001", Pos: [3]float64{1, 1.1, 2}, Yaw: 0.5},
		},
		Zones: []ZoneV1{
			{ID: "Z_SQ", Unlocked: true, SolvedTick: 30},
		},
		Barriers: []BarrierV1{
			{ID: "B_EXIT", Open: true, Unlocked: true, Occupants: []string{"A0001"}, OpenedTick: 35, CloseAtTick: 0},
		},
		Agents: []AgentV1{
			{ID: "A0001", Name: "bot", Pos: [3]float64{1, 0, 2}, Yaw: 0.5, HeldToken: "T_CIR"},
		},
		Authority: map[string]string{"T_CIR": "A0001"},
		Counters:  CountersV1{NextAgent: 1, RNGDraws: 4},
	}

	if err := WriteSnapshot(path, snap); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !reflect.DeepEqual(got, snap) {
		t.Fatalf("roundtrip mismatch:\n got %+v\nwant %+v", got, snap)
	}
}

func TestSnapshot_ReadMissingFile(t *testing.T) {
	if _, err := ReadSnapshot(filepath.Join(t.TempDir(), "nope.snap.zst")); err == nil {
		t.Fatalf("expected error")
	}
}
