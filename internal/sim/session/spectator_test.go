package session

import (
	"encoding/json"
	"testing"

	"keyhunt.gg/internal/observerproto"
)

func TestSpectator_ReceivesFullStateEachTick(t *testing.T) {
	s := newTestSession(t)
	a := join(t, s, "a")

	out := make(chan []byte, 8)
	s.handleSpectatorJoin(SpectatorJoinRequest{ID: "O1", Out: out})

	tkc := makeAvailable(t, s, "T_CIR")
	tkc.Pos = s.zones["Z_SQ"].Pos
	stepN(s, 1)

	var msg observerproto.TickMsg
	select {
	case b := <-out:
		if err := json.Unmarshal(b, &msg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
	default:
		t.Fatalf("no spectator message")
	}

	if msg.Type != "TICK" || msg.ProtocolVersion != observerproto.Version {
		t.Fatalf("header: %+v", msg)
	}
	if len(msg.Tokens) != 2 || len(msg.Zones) != 2 || len(msg.Barriers) != 2 {
		t.Fatalf("object counts: %d/%d/%d", len(msg.Tokens), len(msg.Zones), len(msg.Barriers))
	}
	if len(msg.Agents) != 1 || msg.Agents[0].ID != a.ID {
		t.Fatalf("agents: %+v", msg.Agents)
	}
	if msg.Round.SolvedCount != 1 {
		t.Fatalf("round solved: got %d want 1", msg.Round.SolvedCount)
	}

	// The unlock audit rides along on the same tick.
	found := false
	for _, e := range msg.Audits {
		if e.Action == "ZONE_UNLOCK" && e.Target == "Z_SQ" {
			found = true
		}
	}
	if !found {
		t.Fatalf("missing ZONE_UNLOCK audit: %+v", msg.Audits)
	}

	// Detached spectators stop receiving.
	s.handleSpectatorLeave("O1")
	drain := len(out)
	for i := 0; i < drain; i++ {
		<-out
	}
	stepN(s, 1)
	if len(out) != 0 {
		t.Fatalf("spectator still receives after leave")
	}
}
