package session

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"keyhunt.gg/internal/protocol"
)

func TestToken_ReleaseOnProximity(t *testing.T) {
	s := newTestSession(t)
	a := join(t, s, "a")

	tk := s.tokens["T_CIR"]
	if tk.State != TokenResting {
		t.Fatalf("state: got %q want RESTING", tk.State)
	}

	// Out of release radius: nothing happens.
	moveAgent(a, mgl64.Vec3{20, 0, 0})
	stepN(s, 1)
	if tk.State != TokenResting {
		t.Fatalf("released early at distance 10")
	}

	moveAgent(a, mgl64.Vec3{28, 0, 0})
	stepN(s, 1)
	if tk.State != TokenAvailable {
		t.Fatalf("state: got %q want AVAILABLE", tk.State)
	}
	if tk.Pos.Y() != 0 {
		t.Fatalf("token should land on the floor, y=%v", tk.Pos.Y())
	}
	if n := countEvents(a, "TOKEN_RELEASED"); n != 1 {
		t.Fatalf("TOKEN_RELEASED events: got %d want 1", n)
	}
}

func TestToken_PickupRace_OneWinner(t *testing.T) {
	s := newTestSession(t)
	a := join(t, s, "a")
	b := join(t, s, "b")

	tk := makeAvailable(t, s, "T_CIR")
	moveAgent(a, mgl64.Vec3{29, 0, 0})
	moveAgent(b, mgl64.Vec3{31, 0, 0})

	// Both requests land in the same tick; receive order arbitrates.
	s.step(nil, nil, []ActionEnvelope{
		{AgentID: a.ID, Act: protocol.ActMsg{Instants: []protocol.InstantReq{{ID: "r1", Type: "PICKUP", TargetID: "T_CIR"}}}},
		{AgentID: b.ID, Act: protocol.ActMsg{Instants: []protocol.InstantReq{{ID: "r2", Type: "PICKUP", TargetID: "T_CIR"}}}},
	})

	if tk.State != TokenHeld || tk.HeldBy != a.ID {
		t.Fatalf("token: state=%q held_by=%q, want HELD by %s", tk.State, tk.HeldBy, a.ID)
	}
	if a.HeldToken != "T_CIR" {
		t.Fatalf("winner held_token: got %q", a.HeldToken)
	}
	if b.HeldToken != "" {
		t.Fatalf("loser held_token: got %q want empty", b.HeldToken)
	}
	if got := s.authority.HolderOf("T_CIR"); got != a.ID {
		t.Fatalf("authority: got %q want %q", got, a.ID)
	}
	if n := countEvents(a, "TOKEN_PICKUP"); n != 1 {
		t.Fatalf("TOKEN_PICKUP events: got %d want 1", n)
	}
}

func TestToken_PickupGuards(t *testing.T) {
	s := newTestSession(t)
	a := join(t, s, "a")

	tk := s.tokens["T_CIR"]

	// Resting tokens cannot be grabbed.
	moveAgent(a, mgl64.Vec3{29, 0, 0})
	if s.tokenRequestPickup(tk, a, 0) {
		t.Fatalf("pickup of RESTING token succeeded")
	}

	makeAvailable(t, s, "T_CIR")

	// Out of range.
	moveAgent(a, mgl64.Vec3{20, 0, 0})
	if s.tokenRequestPickup(tk, a, 0) {
		t.Fatalf("pickup out of range succeeded")
	}

	// Hands full.
	moveAgent(a, mgl64.Vec3{29, 0, 0})
	a.HeldToken = "T_SQ"
	if s.tokenRequestPickup(tk, a, 0) {
		t.Fatalf("pickup with full hands succeeded")
	}
	a.HeldToken = ""

	if !s.tokenRequestPickup(tk, a, 0) {
		t.Fatalf("valid pickup failed")
	}
}

func TestToken_CarryPoseFollowsHolder(t *testing.T) {
	s := newTestSession(t)
	a := join(t, s, "a")

	tk := makeAvailable(t, s, "T_CIR")
	moveAgent(a, mgl64.Vec3{29, 0, 0})
	act(s, a, protocol.InstantReq{ID: "r1", Type: "PICKUP", TargetID: "T_CIR"})

	moveAgent(a, mgl64.Vec3{10, 0, 5})
	a.Yaw = 0
	stepN(s, 1)

	want := mgl64.Vec3{10, s.cfg.Tune.CarryHeight, 5 + s.cfg.Tune.CarryDistance}
	if !tk.Pos.ApproxEqual(want) {
		t.Fatalf("carry pose: got %v want %v", tk.Pos, want)
	}
	if tk.Yaw != a.Yaw {
		t.Fatalf("carry yaw: got %v want %v", tk.Yaw, a.Yaw)
	}
}

func TestToken_DropAtFeet_SecondDropIsNoop(t *testing.T) {
	s := newTestSession(t)
	a := join(t, s, "a")

	tk := makeAvailable(t, s, "T_CIR")
	moveAgent(a, mgl64.Vec3{29, 0, 0})
	act(s, a, protocol.InstantReq{ID: "r1", Type: "PICKUP", TargetID: "T_CIR"})

	moveAgent(a, mgl64.Vec3{12, 0, 3})
	act(s, a, protocol.InstantReq{ID: "r2", Type: "DROP"})

	if tk.State != TokenAvailable || tk.HeldBy != "" {
		t.Fatalf("after drop: state=%q held_by=%q", tk.State, tk.HeldBy)
	}
	if tk.Pos.X() != 12 || tk.Pos.Y() != 0 || tk.Pos.Z() != 3 {
		t.Fatalf("drop pos: got %v", tk.Pos)
	}
	if a.HeldToken != "" {
		t.Fatalf("agent still holds %q", a.HeldToken)
	}
	if got := s.authority.HolderOf("T_CIR"); got != HostAuthority {
		t.Fatalf("authority after drop: got %q want host", got)
	}

	drops := countEvents(a, "TOKEN_DROP")
	act(s, a, protocol.InstantReq{ID: "r3", Type: "DROP"})
	if got := countEvents(a, "TOKEN_DROP"); got != drops {
		t.Fatalf("stale DROP produced an event: %d -> %d", drops, got)
	}
}

func TestToken_DepartureForceDropsWithScatter(t *testing.T) {
	s := newTestSession(t)
	a := join(t, s, "a")
	b := join(t, s, "b")

	tk := makeAvailable(t, s, "T_CIR")
	moveAgent(a, mgl64.Vec3{29, 0, 0})
	act(s, a, protocol.InstantReq{ID: "r1", Type: "PICKUP", TargetID: "T_CIR"})
	carryPos := tk.Pos

	s.step(nil, []string{a.ID}, nil)

	if tk.State != TokenAvailable || tk.HeldBy != "" {
		t.Fatalf("after departure: state=%q held_by=%q", tk.State, tk.HeldBy)
	}
	if tk.Pos.Y() != 0 {
		t.Fatalf("force-dropped token floats: y=%v", tk.Pos.Y())
	}
	if d := dist2D(tk.Pos, carryPos); d > s.cfg.Tune.DropScatter {
		t.Fatalf("scatter too large: %v > %v", d, s.cfg.Tune.DropScatter)
	}
	if got := s.authority.HolderOf("T_CIR"); got != HostAuthority {
		t.Fatalf("authority after departure: got %q want host", got)
	}
	if n := countEvents(b, "AGENT_DEPARTED"); n != 1 {
		t.Fatalf("AGENT_DEPARTED events on survivor: got %d want 1", n)
	}
}

func TestToken_PickupNearestPicksClosest(t *testing.T) {
	s := newTestSession(t)
	a := join(t, s, "a")

	near := makeAvailable(t, s, "T_CIR")
	far := makeAvailable(t, s, "T_SQ")
	near.Pos = mgl64.Vec3{10, 0, 0}
	far.Pos = mgl64.Vec3{11.5, 0, 0}
	moveAgent(a, mgl64.Vec3{10.5, 0, 0})

	act(s, a, protocol.InstantReq{ID: "r1", Type: "PICKUP_NEAREST"})

	if a.HeldToken != "T_CIR" {
		t.Fatalf("picked %q want T_CIR", a.HeldToken)
	}
	if far.State != TokenAvailable {
		t.Fatalf("far token state: %q", far.State)
	}
}
