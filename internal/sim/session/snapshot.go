package session

import (
	"fmt"
	"math/rand"

	"keyhunt.gg/internal/persistence/snapshot"
)

const snapshotVersion = 1

// ExportSnapshot captures the full authoritative state at a tick. Resume
// tokens are deliberately excluded: a snapshot never grants reconnects.
func (s *Session) ExportSnapshot(nowTick uint64) snapshot.SnapshotV1 {
	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version:   snapshotVersion,
			SessionID: s.cfg.ID,
			Tick:      nowTick,
		},
		Seed:         s.cfg.Seed,
		TickRate:     s.cfg.Tune.TickRateHz,
		LayoutDigest: s.layout.Digest(),
		Round: snapshot.RoundV1{
			Number:        s.round.Number,
			SolvedCount:   s.round.SolvedCount,
			RequiredCount: s.round.RequiredCount,
			AllSolved:     s.round.AllSolved,
			Winner:        s.round.Winner,
			StartedTick:   s.round.startedTick,
			ResetAtTick:   s.round.resetAtTick,
			VerifyAtTick:  s.round.verifyResetAtTick,
		},
		Counters: snapshot.CountersV1{NextAgent: s.nextAgentNum.Load(), RNGDraws: s.rngDraws},
	}

	for _, id := range sortedKeys(s.tokens) {
		tk := s.tokens[id]
		snap.Tokens = append(snap.Tokens, snapshot.TokenV1{
			ID:     tk.ID,
			Kind:   tk.Kind,
			State:  tk.State,
			HeldBy: tk.HeldBy,
			Pos:    vecToArray(tk.Pos),
			Yaw:    tk.Yaw,
		})
	}
	for _, id := range sortedKeys(s.zones) {
		z := s.zones[id]
		snap.Zones = append(snap.Zones, snapshot.ZoneV1{
			ID:         z.ID,
			Unlocked:   z.Unlocked,
			SolvedTick: z.SolvedTick,
		})
	}
	for _, id := range sortedKeys(s.barriers) {
		b := s.barriers[id]
		snap.Barriers = append(snap.Barriers, snapshot.BarrierV1{
			ID:          b.ID,
			Open:        b.Open,
			Unlocked:    b.Unlocked,
			Occupants:   sortedKeys(b.occupants),
			OpenedTick:  b.openedTick,
			CloseAtTick: b.closeAtTick,
		})
	}
	for _, id := range sortedKeys(s.agents) {
		a := s.agents[id]
		snap.Agents = append(snap.Agents, snapshot.AgentV1{
			ID:        a.ID,
			Name:      a.Name,
			Pos:       vecToArray(a.Pos),
			Yaw:       a.Yaw,
			HeldToken: a.HeldToken,
		})
	}
	if len(s.authority.holder) > 0 {
		snap.Authority = make(map[string]string, len(s.authority.holder))
		for id, h := range s.authority.holder {
			snap.Authority[id] = h
		}
	}
	return snap
}

// ImportSnapshot restores a session created from the same layout. Objects
// are matched by id against the layout; a snapshot referencing unknown
// objects is rejected.
func (s *Session) ImportSnapshot(snap snapshot.SnapshotV1) error {
	if snap.LayoutDigest != "" && snap.LayoutDigest != s.layout.Digest() {
		return fmt.Errorf("snapshot layout digest mismatch: snap=%s layout=%s", snap.LayoutDigest, s.layout.Digest())
	}

	for _, tv := range snap.Tokens {
		tk := s.tokens[tv.ID]
		if tk == nil {
			return fmt.Errorf("snapshot references unknown token %q", tv.ID)
		}
		tk.State = tv.State
		tk.HeldBy = tv.HeldBy
		tk.Pos = arrayToVec(tv.Pos)
		tk.Yaw = tv.Yaw
	}
	for _, zv := range snap.Zones {
		z := s.zones[zv.ID]
		if z == nil {
			return fmt.Errorf("snapshot references unknown zone %q", zv.ID)
		}
		z.Unlocked = zv.Unlocked
		z.SolvedTick = zv.SolvedTick
	}
	for _, bv := range snap.Barriers {
		b := s.barriers[bv.ID]
		if b == nil {
			return fmt.Errorf("snapshot references unknown barrier %q", bv.ID)
		}
		b.Open = bv.Open
		b.Unlocked = bv.Unlocked
		b.openedTick = bv.OpenedTick
		b.closeAtTick = bv.CloseAtTick
		b.occupants = map[string]struct{}{}
		for _, occ := range bv.Occupants {
			b.occupants[occ] = struct{}{}
		}
	}

	s.agents = map[string]*Agent{}
	for _, av := range snap.Agents {
		s.agents[av.ID] = &Agent{
			ID:        av.ID,
			Name:      av.Name,
			Pos:       arrayToVec(av.Pos),
			Yaw:       av.Yaw,
			HeldToken: av.HeldToken,
		}
	}

	s.authority = newAuthorityLedger()
	for id, h := range snap.Authority {
		s.authority.grant(id, h)
	}

	s.round.Number = snap.Round.Number
	s.round.SolvedCount = snap.Round.SolvedCount
	if snap.Round.RequiredCount > 0 {
		s.round.RequiredCount = snap.Round.RequiredCount
	}
	s.round.AllSolved = snap.Round.AllSolved
	s.round.Winner = snap.Round.Winner
	s.round.startedTick = snap.Round.StartedTick
	s.round.resetAtTick = snap.Round.ResetAtTick
	s.round.verifyResetAtTick = snap.Round.VerifyAtTick

	// Restore the deterministic rng by replaying its draws from the
	// recording's seed; without this, post-resume scatter (and therefore the
	// digests) would diverge from the original run.
	seed := snap.Seed
	if seed == 0 {
		seed = s.cfg.Seed
	}
	s.cfg.Seed = seed
	s.rng = rand.New(rand.NewSource(seed))
	for i := uint64(0); i < snap.Counters.RNGDraws; i++ {
		s.rng.Float64()
	}
	s.rngDraws = snap.Counters.RNGDraws

	s.nextAgentNum.Store(snap.Counters.NextAgent)
	s.tick.Store(snap.Header.Tick + 1)
	return nil
}
