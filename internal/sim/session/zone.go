package session

import (
	"github.com/go-gl/mathgl/mgl64"

	"keyhunt.gg/internal/protocol"
	"keyhunt.gg/internal/sim/layout"
)

// Zone is a one-way lock. Unlocked is monotonic within a round: only the
// coordinator's round reset may ever take it back to false.
type Zone struct {
	ID   string
	Kind string

	Unlocked   bool
	SolvedTick uint64

	Pos    mgl64.Vec3
	Radius float64

	// Last token id rejected on a type match, so the wrong-match cue fires
	// once per presented token instead of every tick it overlaps.
	lastRejected string
}

func newZone(zd layout.ZoneDef) *Zone {
	return &Zone{
		ID:     zd.ID,
		Kind:   zd.Kind,
		Pos:    mgl64.Vec3{zd.Pos[0], zd.Pos[1], zd.Pos[2]},
		Radius: zd.Radius,
	}
}

// zoneTryUnlock applies the "mismatch unlocks" rule on the zone's authority
// replica. Returns true only on the single false->true transition; every
// other call is a side-effect-free no-op apart from the wrong-match cue.
func (s *Session) zoneTryUnlock(z *Zone, tk *Token, nowTick uint64) bool {
	if z.Unlocked {
		return false
	}
	if tk.Kind == z.Kind {
		if z.lastRejected != tk.ID {
			z.lastRejected = tk.ID
			s.broadcast(protocol.Event{
				"t":     nowTick,
				"type":  "ZONE_REJECT",
				"zone":  z.ID,
				"token": tk.ID,
			})
		}
		return false
	}
	z.Unlocked = true
	z.SolvedTick = nowTick
	z.lastRejected = ""
	s.broadcast(protocol.Event{
		"t":     nowTick,
		"type":  "ZONE_UNLOCKED",
		"zone":  z.ID,
		"token": tk.ID,
	})
	s.audit(nowTick, tk.HeldBy, "ZONE_UNLOCK", z.ID, "token="+tk.ID)
	s.roundNotifySolved(z, nowTick)
	return true
}

// zoneForceUnlock is the disconnect-reconciliation escape hatch. It must only
// be called for zones that already contributed to the solved count; it never
// notifies the coordinator and is idempotent.
func (s *Session) zoneForceUnlock(z *Zone, nowTick uint64, reason string) {
	if z.Unlocked {
		return
	}
	z.Unlocked = true
	z.SolvedTick = nowTick
	s.audit(nowTick, "", "ZONE_FORCE_UNLOCK", z.ID, reason)
}

// zoneReset relocks the zone. Round boundary only; disconnect handling must
// never call this (unlocks never regress).
func (s *Session) zoneReset(z *Zone) {
	z.Unlocked = false
	z.SolvedTick = 0
	z.lastRejected = ""
}

func (z *Zone) HandleDeparture(s *Session, agentID string, nowTick uint64) {
	// A departure never relocks a zone. Progress reconciliation is owned by
	// the round coordinator.
}

func (z *Zone) HandleShutdown(s *Session, nowTick uint64) {
	// Same as departure: the zone itself never regresses on teardown.
}

// systemZones evaluates locked zones against overlapping tokens. A zone
// never re-evaluates once unlocked.
func (s *Session) systemZones(nowTick uint64) {
	for _, zid := range sortedKeys(s.zones) {
		z := s.zones[zid]
		if z.Unlocked {
			continue
		}
		anyOverlap := false
		for _, tid := range sortedKeys(s.tokens) {
			tk := s.tokens[tid]
			if tk.State != TokenAvailable && tk.State != TokenHeld {
				continue
			}
			if dist2D(tk.Pos, z.Pos) > z.Radius {
				continue
			}
			anyOverlap = true
			if s.zoneTryUnlock(z, tk, nowTick) {
				break
			}
		}
		if !anyOverlap {
			// Token left the zone; allow the cue to fire again on re-entry.
			z.lastRejected = ""
		}
	}
}
