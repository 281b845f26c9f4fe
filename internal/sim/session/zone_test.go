package session

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

func TestZone_MismatchUnlocks(t *testing.T) {
	s := newTestSession(t)
	a := join(t, s, "a")

	z := s.zones["Z_SQ"]
	tk := makeAvailable(t, s, "T_CIR") // CIRCLE vs SQUARE zone
	tk.Pos = z.Pos
	stepN(s, 1)

	if !z.Unlocked {
		t.Fatalf("mismatched token did not unlock the zone")
	}
	if s.round.SolvedCount != 1 {
		t.Fatalf("solved count: got %d want 1", s.round.SolvedCount)
	}
	if n := countEvents(a, "ZONE_UNLOCKED"); n != 1 {
		t.Fatalf("ZONE_UNLOCKED events: got %d want 1", n)
	}

	// Unlocked zones are never re-evaluated.
	solvedTick := z.SolvedTick
	stepN(s, 3)
	if z.SolvedTick != solvedTick || s.round.SolvedCount != 1 {
		t.Fatalf("unlocked zone re-evaluated: solved_tick=%d count=%d", z.SolvedTick, s.round.SolvedCount)
	}
}

func TestZone_MatchingKindRejectedOncePerPresentation(t *testing.T) {
	s := newTestSession(t)
	a := join(t, s, "a")

	z := s.zones["Z_SQ"]
	tk := makeAvailable(t, s, "T_SQ") // SQUARE vs SQUARE: wrong
	tk.Pos = z.Pos
	stepN(s, 5)

	if z.Unlocked {
		t.Fatalf("matching kind unlocked the zone")
	}
	if n := countEvents(a, "ZONE_REJECT"); n != 1 {
		t.Fatalf("ZONE_REJECT cue fired %d times over 5 ticks, want 1", n)
	}

	// Leaving and re-presenting re-arms the cue.
	tk.Pos = mgl64.Vec3{0, 0, -20}
	stepN(s, 1)
	tk.Pos = z.Pos
	stepN(s, 1)
	if n := countEvents(a, "ZONE_REJECT"); n != 2 {
		t.Fatalf("ZONE_REJECT after re-entry: got %d want 2", n)
	}
}

func TestZone_ForceUnlockIsIdempotentAndSilent(t *testing.T) {
	s := newTestSession(t)
	join(t, s, "a")

	z := s.zones["Z_TRI"]
	s.zoneForceUnlock(z, 9, "RECONCILE")
	if !z.Unlocked || z.SolvedTick != 9 {
		t.Fatalf("force unlock: unlocked=%v tick=%d", z.Unlocked, z.SolvedTick)
	}
	if s.round.SolvedCount != 0 {
		t.Fatalf("force unlock notified the coordinator: count=%d", s.round.SolvedCount)
	}

	s.zoneForceUnlock(z, 12, "RECONCILE")
	if z.SolvedTick != 9 {
		t.Fatalf("second force unlock moved solved tick to %d", z.SolvedTick)
	}
}

func TestZone_HeldTokenCanUnlock(t *testing.T) {
	s := newTestSession(t)
	a := join(t, s, "a")

	tk := makeAvailable(t, s, "T_CIR")
	moveAgent(a, mgl64.Vec3{29, 0, 0})
	if !s.tokenRequestPickup(tk, a, 0) {
		t.Fatalf("pickup failed")
	}

	z := s.zones["Z_SQ"]
	// Stand in the zone; the carry pose drags the token inside too.
	moveAgent(a, z.Pos)
	stepN(s, 1)

	if !z.Unlocked {
		t.Fatalf("held token inside the zone did not unlock it")
	}
	if tk.State != TokenHeld {
		t.Fatalf("unlock consumed the token: state=%q", tk.State)
	}
}
