package session

import (
	"keyhunt.gg/internal/protocol"
)

// Instant request types. All are fire-and-forget remote calls routed to the
// target object's authority; a request whose guard has already been
// invalidated is discarded silently.
const (
	InstantTypePickup           = "PICKUP"
	InstantTypePickupNearest    = "PICKUP_NEAREST"
	InstantTypeDrop             = "DROP"
	InstantTypeMoveTo           = "MOVE_TO"
	InstantTypeRequestAuthority = "REQUEST_AUTHORITY"
	InstantTypeResetRound       = "RESET_ROUND"
)

type instantHandler func(*Session, *Agent, protocol.InstantReq, uint64)

var instantDispatch = map[string]instantHandler{
	InstantTypePickup:           handleInstantPickup,
	InstantTypePickupNearest:    handleInstantPickupNearest,
	InstantTypeDrop:             handleInstantDrop,
	InstantTypeMoveTo:           handleInstantMoveTo,
	InstantTypeRequestAuthority: handleInstantRequestAuthority,
	InstantTypeResetRound:       handleInstantResetRound,
}

func (s *Session) applyAct(a *Agent, act protocol.ActMsg, nowTick uint64) {
	for _, inst := range act.Instants {
		h := instantDispatch[inst.Type]
		if h == nil {
			a.AddEvent(errorEvent(nowTick, inst.Type, protocol.ErrBadRequest, inst.TargetID))
			continue
		}
		h(s, a, inst, nowTick)
	}
}

func handleInstantPickup(s *Session, a *Agent, inst protocol.InstantReq, nowTick uint64) {
	tk := s.tokens[inst.TargetID]
	if tk == nil {
		a.AddEvent(errorEvent(nowTick, inst.Type, protocol.ErrInvalidTarget, inst.TargetID))
		return
	}
	// Stale guards (already held, out of range, hands full) are silent.
	s.tokenRequestPickup(tk, a, nowTick)
}

func handleInstantPickupNearest(s *Session, a *Agent, inst protocol.InstantReq, nowTick uint64) {
	var best *Token
	bestD := s.cfg.Tune.InteractionRange
	for _, tid := range sortedKeys(s.tokens) {
		tk := s.tokens[tid]
		if tk.State != TokenAvailable {
			continue
		}
		if d := dist2D(tk.Pos, a.Pos); d <= bestD {
			best, bestD = tk, d
		}
	}
	if best == nil {
		return
	}
	s.tokenRequestPickup(best, a, nowTick)
}

func handleInstantDrop(s *Session, a *Agent, inst protocol.InstantReq, nowTick uint64) {
	if a.HeldToken == "" {
		return
	}
	tk := s.tokens[a.HeldToken]
	if tk == nil {
		a.HeldToken = ""
		return
	}
	s.tokenRequestDrop(tk, nowTick)
}

func handleInstantMoveTo(s *Session, a *Agent, inst protocol.InstantReq, nowTick uint64) {
	t := arrayToVec(inst.Target)
	a.moveTarget = &t
}

func handleInstantRequestAuthority(s *Session, a *Agent, inst protocol.InstantReq, nowTick uint64) {
	s.handleRequestAuthority(a, inst.TargetID, nowTick)
}

// handleInstantResetRound lets a participant restart the round early. It is
// honored once the round is already won (skip the countdown) or when nothing
// has been solved yet; mid-round resets would regress progress and require
// the coordinator capability, which agents never hold.
func handleInstantResetRound(s *Session, a *Agent, inst protocol.InstantReq, nowTick uint64) {
	r := s.round
	switch {
	case r.Winner != "":
		s.roundResetRound(nowTick, "RESET")
	case r.SolvedCount == 0 && !r.AllSolved:
		s.roundResetRound(nowTick, "RESET")
	default:
		a.AddEvent(errorEvent(nowTick, inst.Type, protocol.ErrNoAuthority, ""))
	}
}
