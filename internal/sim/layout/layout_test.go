package layout

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleYAML = `
name: test
required_count: 0
spawns:
  - pos: [0, 0, 0]
tokens:
  - id: T1
    kind: CIRCLE
    pos: [5, 1.5, 0]
zones:
  - id: Z1
    kind: SQUARE
    pos: [10, 0, 10]
    radius: 1.5
  - id: Z2
    kind: TRIANGLE
    pos: [-10, 0, 10]
    radius: 1.5
barriers:
  - id: B1
    pos: [0, 0, 20]
    half: [2, 2.5, 1]
    requires_gate: true
`

func writeLayout(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "layout.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestLoad_DefaultsRequiredCountToAllZones(t *testing.T) {
	l, err := Load(writeLayout(t, sampleYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if l.RequiredCount != 2 {
		t.Fatalf("required_count: got %d want 2", l.RequiredCount)
	}
	if !l.Barriers[0].RequiresGate {
		t.Fatalf("requires_gate not parsed")
	}
}

func TestDigest_StableAcrossLoads(t *testing.T) {
	path := writeLayout(t, sampleYAML)
	l1, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	l2, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if l1.Digest() == "" || l1.Digest() != l2.Digest() {
		t.Fatalf("digest unstable: %q vs %q", l1.Digest(), l2.Digest())
	}
}

func TestValidate_Failures(t *testing.T) {
	cases := []struct {
		name string
		l    Layout
	}{
		{"no zones", Layout{}},
		{"dup id", Layout{
			Zones: []ZoneDef{
				{ID: "X", Kind: KindSquare, Radius: 1},
				{ID: "X", Kind: KindCircle, Radius: 1},
			},
		}},
		{"bad kind", Layout{
			Zones: []ZoneDef{{ID: "Z1", Kind: "HEXAGON", Radius: 1}},
		}},
		{"zero radius", Layout{
			Zones: []ZoneDef{{ID: "Z1", Kind: KindSquare}},
		}},
		{"bad half", Layout{
			Zones:    []ZoneDef{{ID: "Z1", Kind: KindSquare, Radius: 1}},
			Barriers: []BarrierDef{{ID: "B1", Half: [3]float64{1, 0, 1}}},
		}},
		{"required too high", Layout{
			RequiredCount: 3,
			Zones:         []ZoneDef{{ID: "Z1", Kind: KindSquare, Radius: 1}},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			l := tc.l
			if err := l.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}
