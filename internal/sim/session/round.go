package session

import (
	"keyhunt.gg/internal/protocol"
)

// Round is the explicit round-state object owned by the session; there are
// no ambient globals. SolvedCount is monotonic non-decreasing within a round
// and only ResetRound may zero it.
type Round struct {
	Number        int
	SolvedCount   int
	RequiredCount int
	AllSolved     bool
	Winner        string

	startedTick uint64

	// When non-zero, the round resets at this tick (win countdown).
	resetAtTick uint64

	// When non-zero, the reset fan-out is re-verified at this tick.
	verifyResetAtTick uint64
}

func newRound(required int) *Round {
	return &Round{Number: 1, RequiredCount: required}
}

// roundNotifySolved is invoked by a zone's authority exactly once per unlock.
// Crossing the threshold broadcasts the barrier gate flag exactly once.
func (s *Session) roundNotifySolved(z *Zone, nowTick uint64) {
	r := s.round
	if r.SolvedCount < r.RequiredCount {
		r.SolvedCount++
	}
	if r.SolvedCount >= r.RequiredCount && !r.AllSolved {
		s.roundAllSolved(nowTick)
	}
}

func (s *Session) roundAllSolved(nowTick uint64) {
	r := s.round
	r.AllSolved = true
	s.broadcast(protocol.Event{
		"t":      nowTick,
		"type":   "PUZZLE_SOLVED",
		"solved": r.SolvedCount,
	})
	s.audit(nowTick, "", "PUZZLE_SOLVED", "", "")
	for _, bid := range sortedKeys(s.barriers) {
		s.barrierSetUnlocked(s.barriers[bid], true, nowTick)
	}
}

// roundResetRound resets the whole puzzle: counters, every barrier, every
// token, every zone, and every agent's pose. The fan-out is re-verified one
// tick later because it lands as several independent calls that must all
// take effect before the round truly restarts.
func (s *Session) roundResetRound(nowTick uint64, reason string) {
	r := s.round
	s.recordRound(nowTick, reason)

	r.Number++
	r.SolvedCount = 0
	r.AllSolved = false
	r.Winner = ""
	r.startedTick = nowTick
	r.resetAtTick = 0
	r.verifyResetAtTick = nowTick + 1

	for _, bid := range sortedKeys(s.barriers) {
		s.barrierReset(s.barriers[bid])
	}
	for _, tid := range sortedKeys(s.tokens) {
		s.tokenReset(s.tokens[tid])
	}
	for _, zid := range sortedKeys(s.zones) {
		s.zoneReset(s.zones[zid])
	}
	for i, aid := range sortedKeys(s.agents) {
		s.respawnAgent(s.agents[aid], s.spawnPos(i), true, nowTick)
	}

	s.broadcast(protocol.Event{
		"t":      nowTick,
		"type":   "ROUND_RESET",
		"round":  r.Number,
		"reason": reason,
	})
	s.audit(nowTick, "", "ROUND_RESET", "", reason)
}

// roundVerifyReset is the defensive re-verification pass: one tick after a
// reset, re-check all three collections and force any straggler back to the
// reset state.
func (s *Session) roundVerifyReset(nowTick uint64) {
	r := s.round
	if r.verifyResetAtTick == 0 || nowTick < r.verifyResetAtTick {
		return
	}
	r.verifyResetAtTick = 0
	for _, tid := range sortedKeys(s.tokens) {
		if tk := s.tokens[tid]; tk.State != TokenResting {
			s.tokenReset(tk)
			s.audit(nowTick, "", "RESET_FORCE", tk.ID, "token")
		}
	}
	for _, zid := range sortedKeys(s.zones) {
		if z := s.zones[zid]; z.Unlocked {
			s.zoneReset(z)
			s.audit(nowTick, "", "RESET_FORCE", z.ID, "zone")
		}
	}
	for _, bid := range sortedKeys(s.barriers) {
		if b := s.barriers[bid]; b.Open || b.Unlocked || len(b.occupants) > 0 {
			s.barrierReset(b)
			s.audit(nowTick, "", "RESET_FORCE", b.ID, "barrier")
		}
	}
}

// roundReconcile enforces the "never regress an achieved unlock" invariant
// after a departure or shutdown. Unlocked zones are taken as ground truth:
// the solved count, the all-solved flag and the barrier gate flags are all
// raised to match. A full reset happens only when nothing has been unlocked
// and nobody is left in the session.
func (s *Session) roundReconcile(nowTick uint64, reason string) {
	r := s.round
	unlocked := 0
	for _, zid := range sortedKeys(s.zones) {
		if s.zones[zid].Unlocked {
			unlocked++
		}
	}
	if unlocked == 0 {
		if len(s.agents) != 0 {
			return
		}
		if r.SolvedCount > 0 || r.AllSolved || r.Winner != "" {
			s.roundResetRound(nowTick, reason)
			return
		}
		// Nothing solved and nobody left: restock released tokens without
		// burning a round number, so the next joiner starts clean.
		for _, tid := range sortedKeys(s.tokens) {
			if tk := s.tokens[tid]; tk.State != TokenResting {
				s.tokenReset(tk)
				s.audit(nowTick, "", "TOKEN_RESTOCK", tk.ID, reason)
			}
		}
		return
	}
	// Progress exists: make every derived flag consistent with it.
	for _, zid := range sortedKeys(s.zones) {
		if z := s.zones[zid]; z.Unlocked {
			s.zoneForceUnlock(z, nowTick, reason)
		}
	}
	if unlocked > r.SolvedCount {
		r.SolvedCount = unlocked
		if r.SolvedCount > r.RequiredCount {
			r.SolvedCount = r.RequiredCount
		}
	}
	if r.SolvedCount >= r.RequiredCount && !r.AllSolved {
		s.roundAllSolved(nowTick)
	}
	if r.AllSolved {
		for _, bid := range sortedKeys(s.barriers) {
			s.barrierSetUnlocked(s.barriers[bid], true, nowTick)
		}
	}
}

func (r *Round) HandleDeparture(s *Session, agentID string, nowTick uint64) {
	s.roundReconcile(nowTick, "DEPARTURE")
}

func (r *Round) HandleShutdown(s *Session, nowTick uint64) {
	s.roundReconcile(nowTick, "SHUTDOWN")
}

func (s *Session) recordRound(endTick uint64, reason string) {
	if s.roundSink == nil {
		return
	}
	r := s.round
	s.roundSink.RecordRound(RoundRecord{
		Number:      r.Number,
		StartedTick: r.startedTick,
		EndedTick:   endTick,
		Solved:      r.SolvedCount,
		Required:    r.RequiredCount,
		Winner:      r.Winner,
		Reason:      reason,
	})
}

// systemRound runs the coordinator's per-tick duties: reset verification,
// winner detection once the puzzle is solved, and the end-of-round countdown.
func (s *Session) systemRound(nowTick uint64) {
	r := s.round
	s.roundVerifyReset(nowTick)

	if r.AllSolved && r.Winner == "" {
		// First agent standing inside a gated barrier wins the round.
		for _, bid := range sortedKeys(s.barriers) {
			b := s.barriers[bid]
			if !b.RequiresGate || !b.Open {
				continue
			}
			for _, aid := range sortedKeys(s.agents) {
				if _, ok := b.occupants[aid]; ok {
					r.Winner = aid
					r.resetAtTick = nowTick + uint64(s.cfg.Tune.RoundEndTicks)
					s.broadcast(protocol.Event{
						"t":      nowTick,
						"type":   "ROUND_WON",
						"winner": aid,
						"round":  r.Number,
					})
					s.audit(nowTick, aid, "ROUND_WON", b.ID, "")
					break
				}
			}
			if r.Winner != "" {
				break
			}
		}
	}

	if r.resetAtTick != 0 && nowTick >= r.resetAtTick {
		s.roundResetRound(nowTick, "WIN")
	}
}
