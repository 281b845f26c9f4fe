package session

import (
	"testing"

	"keyhunt.gg/internal/protocol"
)

type memRounds struct {
	recs []RoundRecord
}

func (m *memRounds) RecordRound(rec RoundRecord) { m.recs = append(m.recs, rec) }

type memAudit struct {
	entries []AuditEntry
}

func (m *memAudit) WriteAudit(e AuditEntry) error {
	m.entries = append(m.entries, e)
	return nil
}

func solveAll(t *testing.T, s *Session) {
	t.Helper()
	tkc := makeAvailable(t, s, "T_CIR")
	tkc.Pos = s.zones["Z_SQ"].Pos
	tks := makeAvailable(t, s, "T_SQ")
	tks.Pos = s.zones["Z_TRI"].Pos
	stepN(s, 1)
	if !s.round.AllSolved {
		t.Fatalf("setup: round not solved (count=%d)", s.round.SolvedCount)
	}
}

func TestRound_ThresholdBroadcastsOnceAndUnlocksBarriers(t *testing.T) {
	s := newTestSession(t)
	a := join(t, s, "a")

	solveAll(t, s)

	if s.round.SolvedCount != 2 {
		t.Fatalf("solved count: got %d want 2", s.round.SolvedCount)
	}
	if n := countEvents(a, "PUZZLE_SOLVED"); n != 1 {
		t.Fatalf("PUZZLE_SOLVED events: got %d want 1", n)
	}
	for _, id := range []string{"B_EXIT", "B_SIDE"} {
		if !s.barriers[id].Unlocked {
			t.Fatalf("barrier %s not unlocked after solve", id)
		}
	}

	// Extra ticks never re-broadcast.
	stepN(s, 5)
	if n := countEvents(a, "PUZZLE_SOLVED"); n != 1 {
		t.Fatalf("PUZZLE_SOLVED re-broadcast: got %d", n)
	}
}

func TestRound_WinnerAndCountdownReset(t *testing.T) {
	s := newTestSession(t)
	a := join(t, s, "a")
	rounds := &memRounds{}
	s.SetRoundRecorder(rounds)

	solveAll(t, s)

	gate := s.barriers["B_EXIT"]
	moveAgent(a, gate.Pos)
	stepN(s, 1)

	if s.round.Winner != a.ID {
		t.Fatalf("winner: got %q want %q", s.round.Winner, a.ID)
	}
	if n := countEvents(a, "ROUND_WON"); n != 1 {
		t.Fatalf("ROUND_WON events: got %d want 1", n)
	}

	// The countdown holds the round open, then resets everything.
	stepN(s, s.cfg.Tune.RoundEndTicks-1)
	if s.round.Number != 1 {
		t.Fatalf("reset fired early: round=%d", s.round.Number)
	}
	stepN(s, 1)

	if s.round.Number != 2 {
		t.Fatalf("round number after reset: got %d want 2", s.round.Number)
	}
	if s.round.SolvedCount != 0 || s.round.AllSolved || s.round.Winner != "" {
		t.Fatalf("round state not cleared: %+v", s.round)
	}
	for _, z := range s.zones {
		if z.Unlocked {
			t.Fatalf("zone %s still unlocked after reset", z.ID)
		}
	}
	for _, tk := range s.tokens {
		if tk.State != TokenResting || !tk.Pos.ApproxEqual(tk.spawnPos) {
			t.Fatalf("token %s not respawned: state=%q pos=%v", tk.ID, tk.State, tk.Pos)
		}
	}
	for _, b := range s.barriers {
		if b.Open || b.Unlocked || b.OccupantCount() != 0 {
			t.Fatalf("barrier %s not reset", b.ID)
		}
	}
	if !a.Pos.ApproxEqual(s.spawnPos(0)) {
		t.Fatalf("agent not respawned: pos=%v", a.Pos)
	}
	if n := countEvents(a, "ROUND_RESET"); n != 1 {
		t.Fatalf("ROUND_RESET events: got %d want 1", n)
	}

	if len(rounds.recs) != 1 {
		t.Fatalf("round records: got %d want 1", len(rounds.recs))
	}
	rec := rounds.recs[0]
	if rec.Number != 1 || rec.Winner != a.ID || rec.Reason != "WIN" || rec.Solved != 2 {
		t.Fatalf("round record: %+v", rec)
	}
}

func TestRound_VerifyPassForcesStragglers(t *testing.T) {
	s := newTestSession(t)
	join(t, s, "a")
	aud := &memAudit{}
	s.SetAuditLogger(aud)

	s.roundResetRound(s.tick.Load(), "RESET")
	stepN(s, 1)

	// A straggler that ignored the reset fan-out.
	z := s.zones["Z_SQ"]
	z.Unlocked = true
	stepN(s, 1)

	if z.Unlocked {
		t.Fatalf("verification pass did not force the zone back")
	}
	forced := false
	for _, e := range aud.entries {
		if e.Action == "RESET_FORCE" && e.Target == "Z_SQ" {
			forced = true
		}
	}
	if !forced {
		t.Fatalf("missing RESET_FORCE audit entry: %+v", aud.entries)
	}
}

func TestRound_ResetInstantPolicy(t *testing.T) {
	s := newTestSession(t)
	a := join(t, s, "a")

	// Nothing solved yet: an early restart is harmless and honored.
	act(s, a, protocol.InstantReq{ID: "r1", Type: "RESET_ROUND", Reason: "restart"})
	if s.round.Number != 2 {
		t.Fatalf("fresh-round reset denied: round=%d", s.round.Number)
	}
	stepN(s, 1) // let the reset verification pass run

	// Mid-round with progress: denied, nothing regresses.
	tkc := makeAvailable(t, s, "T_CIR")
	tkc.Pos = s.zones["Z_SQ"].Pos
	stepN(s, 1)
	if s.round.SolvedCount != 1 {
		t.Fatalf("setup: solved=%d want 1", s.round.SolvedCount)
	}
	act(s, a, protocol.InstantReq{ID: "r2", Type: "RESET_ROUND"})
	if s.round.Number != 2 || s.round.SolvedCount != 1 {
		t.Fatalf("mid-round reset went through: round=%d solved=%d", s.round.Number, s.round.SolvedCount)
	}
	if n := countEvents(a, "REQUEST_REJECTED"); n != 1 {
		t.Fatalf("REQUEST_REJECTED events: got %d want 1", n)
	}

	// After a win the countdown can be skipped.
	tks := makeAvailable(t, s, "T_SQ")
	tks.Pos = s.zones["Z_TRI"].Pos
	stepN(s, 1)
	moveAgent(a, s.barriers["B_EXIT"].Pos)
	stepN(s, 1)
	if s.round.Winner != a.ID {
		t.Fatalf("setup: no winner")
	}
	act(s, a, protocol.InstantReq{ID: "r3", Type: "RESET_ROUND"})
	if s.round.Number != 3 {
		t.Fatalf("post-win reset denied: round=%d", s.round.Number)
	}
}
