package session

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"keyhunt.gg/internal/protocol"
	"keyhunt.gg/internal/sim/layout"
)

// Barrier is a door-like volume. Open is driven by occupancy; Unlocked gates
// whether it may open at all (unless the barrier ignores the gate).
type Barrier struct {
	ID string

	Open         bool
	Unlocked     bool
	RequiresGate bool

	Pos  mgl64.Vec3
	Half mgl64.Vec3

	occupants map[string]struct{}

	openedTick  uint64
	closeAtTick uint64
}

func newBarrier(bd layout.BarrierDef) *Barrier {
	return &Barrier{
		ID:           bd.ID,
		RequiresGate: bd.RequiresGate,
		Pos:          mgl64.Vec3{bd.Pos[0], bd.Pos[1], bd.Pos[2]},
		Half:         mgl64.Vec3{bd.Half[0], bd.Half[1], bd.Half[2]},
		occupants:    map[string]struct{}{},
	}
}

func (b *Barrier) OccupantCount() int { return len(b.occupants) }

func (b *Barrier) canOpen() bool { return !b.RequiresGate || b.Unlocked }

func (b *Barrier) contains(p mgl64.Vec3) bool {
	return math.Abs(p.X()-b.Pos.X()) <= b.Half.X() &&
		math.Abs(p.Y()-b.Pos.Y()) <= b.Half.Y() &&
		math.Abs(p.Z()-b.Pos.Z()) <= b.Half.Z()
}

func (s *Session) barrierOnEnter(b *Barrier, agentID string, nowTick uint64) {
	if _, ok := b.occupants[agentID]; ok {
		return
	}
	b.occupants[agentID] = struct{}{}
	b.closeAtTick = 0
	if !b.Open && b.canOpen() {
		b.Open = true
		b.openedTick = nowTick
		s.broadcast(protocol.Event{
			"t":       nowTick,
			"type":    "BARRIER_OPEN",
			"barrier": b.ID,
		})
	}
}

func (s *Session) barrierOnExit(b *Barrier, agentID string, nowTick uint64) {
	// Clamped at zero: tolerate an agent that vanished without a matching
	// exit event.
	delete(b.occupants, agentID)
	if len(b.occupants) == 0 && b.Open {
		b.closeAtTick = nowTick + uint64(s.cfg.Tune.BarrierCloseDelayTicks)
	}
}

// barrierSetUnlocked is the coordinator-issued gate flag. Locking an open
// barrier forces an immediate close.
func (s *Session) barrierSetUnlocked(b *Barrier, v bool, nowTick uint64) {
	if b.Unlocked == v {
		return
	}
	b.Unlocked = v
	s.broadcast(protocol.Event{
		"t":        nowTick,
		"type":     "BARRIER_UNLOCKED",
		"barrier":  b.ID,
		"unlocked": v,
	})
	if !v && b.Open {
		s.barrierClose(b, nowTick)
	}
}

func (s *Session) barrierClose(b *Barrier, nowTick uint64) {
	if !b.Open {
		return
	}
	b.Open = false
	b.closeAtTick = 0
	s.broadcast(protocol.Event{
		"t":       nowTick,
		"type":    "BARRIER_CLOSE",
		"barrier": b.ID,
	})
}

func (s *Session) barrierReset(b *Barrier) {
	b.Open = false
	b.Unlocked = false
	b.occupants = map[string]struct{}{}
	b.openedTick = 0
	b.closeAtTick = 0
}

func (b *Barrier) HandleDeparture(s *Session, agentID string, nowTick uint64) {
	s.barrierOnExit(b, agentID, nowTick)
}

func (b *Barrier) HandleShutdown(s *Session, nowTick uint64) {
	// Occupancy is meaningless once the session tears down; nothing to
	// reconcile beyond what departure handling already did.
}

// systemBarriers diffs per-tick occupancy from agent positions and applies
// the auto-close cooldown.
func (s *Session) systemBarriers(nowTick uint64) {
	agentIDs := sortedKeys(s.agents)
	for _, bid := range sortedKeys(s.barriers) {
		b := s.barriers[bid]
		for _, aid := range agentIDs {
			inside := b.contains(s.agents[aid].Pos)
			_, occ := b.occupants[aid]
			switch {
			case inside && !occ:
				s.barrierOnEnter(b, aid, nowTick)
			case !inside && occ:
				s.barrierOnExit(b, aid, nowTick)
			}
		}
		if b.Open && len(b.occupants) == 0 && b.closeAtTick != 0 && nowTick >= b.closeAtTick {
			s.barrierClose(b, nowTick)
		}
	}
}
