package session

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"keyhunt.gg/internal/protocol"
	"keyhunt.gg/internal/sim/layout"
	"keyhunt.gg/internal/sim/tuning"
)

// testLayout: two zones (both must be solved), two tokens whose kinds can
// open them, one gated exit and one plain door. Token spawns sit far from
// the agent spawns so resting tokens do not auto-release during setup.
func testLayout() *layout.Layout {
	return &layout.Layout{
		Name: "test",
		Spawns: []layout.SpawnDef{
			{Pos: [3]float64{0, 0, 0}},
			{Pos: [3]float64{1, 0, 0}},
		},
		Tokens: []layout.TokenDef{
			{ID: "T_CIR", Kind: layout.KindCircle, Pos: [3]float64{30, 1.5, 0}},
			{ID: "T_SQ", Kind: layout.KindSquare, Pos: [3]float64{-30, 1.5, 0}},
		},
		Zones: []layout.ZoneDef{
			{ID: "Z_SQ", Kind: layout.KindSquare, Pos: [3]float64{40, 0, 40}, Radius: 1.5},
			{ID: "Z_TRI", Kind: layout.KindTriangle, Pos: [3]float64{-40, 0, 40}, Radius: 1.5},
		},
		Barriers: []layout.BarrierDef{
			{ID: "B_EXIT", Pos: [3]float64{0, 0, 50}, Half: [3]float64{2, 2.5, 1}, RequiresGate: true},
			{ID: "B_SIDE", Pos: [3]float64{50, 0, 0}, Half: [3]float64{1.5, 2.5, 1.5}, RequiresGate: false},
		},
	}
}

func newTestSession(t *testing.T) *Session {
	t.Helper()
	s, err := New(Config{ID: "test", Seed: 1, Tune: tuning.Default()}, testLayout())
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	return s
}

func join(t *testing.T, s *Session, name string) *Agent {
	t.Helper()
	resp := s.joinAgent(name, nil)
	a := s.agents[resp.Welcome.AgentID]
	if a == nil {
		t.Fatalf("join %q: missing agent", name)
	}
	return a
}

// stepN advances the session with no external input.
func stepN(s *Session, n int) {
	for i := 0; i < n; i++ {
		s.step(nil, nil, nil)
	}
}

func act(s *Session, a *Agent, inst protocol.InstantReq) {
	s.step(nil, nil, []ActionEnvelope{{AgentID: a.ID, Act: protocol.ActMsg{Instants: []protocol.InstantReq{inst}}}})
}

// makeAvailable releases a resting token in place onto the floor.
func makeAvailable(t *testing.T, s *Session, id string) *Token {
	t.Helper()
	tk := s.tokens[id]
	if tk == nil {
		t.Fatalf("no token %q", id)
	}
	s.tokenStartFalling(tk, s.tick.Load())
	return tk
}

func moveAgent(a *Agent, pos mgl64.Vec3) { a.Pos = pos }

// countEvents counts events of one type accumulated on the agent.
func countEvents(a *Agent, typ string) int {
	n := 0
	for _, e := range a.Events {
		if e["type"] == typ {
			n++
		}
	}
	return n
}
