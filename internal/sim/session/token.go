package session

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"keyhunt.gg/internal/protocol"
	"keyhunt.gg/internal/sim/layout"
)

// Token states.
const (
	TokenResting   = "RESTING"
	TokenAvailable = "AVAILABLE"
	TokenHeld      = "HELD"
)

// Token is a pickupable puzzle piece. Kind never changes after spawn;
// HeldBy is set iff State is HELD.
type Token struct {
	ID   string
	Kind string

	State  string
	HeldBy string

	Pos mgl64.Vec3
	Yaw float64

	spawnPos      mgl64.Vec3
	releaseRadius float64
}

func newToken(td layout.TokenDef, defaultReleaseRadius float64) *Token {
	r := td.ReleaseRadius
	if r <= 0 {
		r = defaultReleaseRadius
	}
	pos := mgl64.Vec3{td.Pos[0], td.Pos[1], td.Pos[2]}
	return &Token{
		ID:            td.ID,
		Kind:          td.Kind,
		State:         TokenResting,
		Pos:           pos,
		spawnPos:      pos,
		releaseRadius: r,
	}
}

// tokenStartFalling releases a resting token onto the floor and activates its
// pickup trigger. No-op unless the token is still resting.
func (s *Session) tokenStartFalling(tk *Token, nowTick uint64) {
	if tk.State != TokenResting {
		return
	}
	tk.State = TokenAvailable
	tk.Pos = mgl64.Vec3{tk.Pos.X(), 0, tk.Pos.Z()}
	s.broadcast(protocol.Event{
		"t":     nowTick,
		"type":  "TOKEN_RELEASED",
		"token": tk.ID,
	})
	s.audit(nowTick, "", "TOKEN_RELEASE", tk.ID, "")
}

// tokenRequestPickup applies a pickup request on the token's authority
// replica. The guard makes concurrent requests resolve deterministically:
// whichever request is processed first wins, any later one fails the guard
// and has no effect.
func (s *Session) tokenRequestPickup(tk *Token, a *Agent, nowTick uint64) bool {
	if tk.State == TokenHeld {
		return false
	}
	if tk.State != TokenAvailable {
		return false
	}
	if a.HeldToken != "" {
		return false
	}
	if dist2D(tk.Pos, a.Pos) > s.cfg.Tune.InteractionRange {
		return false
	}
	tk.State = TokenHeld
	tk.HeldBy = a.ID
	a.HeldToken = tk.ID
	// Holding an object carries its mutation capability.
	s.authority.grant(tk.ID, a.ID)
	s.broadcast(protocol.Event{
		"t":     nowTick,
		"type":  "TOKEN_PICKUP",
		"token": tk.ID,
		"agent": a.ID,
	})
	s.audit(nowTick, a.ID, "TOKEN_PICKUP", tk.ID, "")
	return true
}

// tokenRequestDrop releases a held token at the holder's feet. Silent no-op
// if the token is not held (stale guard).
func (s *Session) tokenRequestDrop(tk *Token, nowTick uint64) bool {
	if tk.State != TokenHeld {
		return false
	}
	holder := s.agents[tk.HeldBy]
	if holder != nil {
		tk.Pos = mgl64.Vec3{holder.Pos.X(), 0, holder.Pos.Z()}
		holder.HeldToken = ""
	}
	tk.State = TokenAvailable
	tk.HeldBy = ""
	s.authority.release(tk.ID)
	s.broadcast(protocol.Event{
		"t":     nowTick,
		"type":  "TOKEN_DROP",
		"token": tk.ID,
	})
	s.audit(nowTick, "", "TOKEN_DROP", tk.ID, "")
	return true
}

// tokenFollowHeld writes the authoritative carry pose for a held token:
// in front of the holder at carry height. Observers interpolate toward the
// replicated pose on their own render pass; nothing gameplay-relevant ever
// reads the pose.
func (s *Session) tokenFollowHeld(tk *Token) {
	holder := s.agents[tk.HeldBy]
	if holder == nil {
		return
	}
	d := s.cfg.Tune.CarryDistance
	tk.Pos = mgl64.Vec3{
		holder.Pos.X() + math.Sin(holder.Yaw)*d,
		holder.Pos.Y() + s.cfg.Tune.CarryHeight,
		holder.Pos.Z() + math.Cos(holder.Yaw)*d,
	}
	tk.Yaw = holder.Yaw
}

// tokenReset forces the token back to its spawn pose. Round boundary only.
func (s *Session) tokenReset(tk *Token) {
	if h := s.agents[tk.HeldBy]; h != nil && h.HeldToken == tk.ID {
		h.HeldToken = ""
	}
	tk.State = TokenResting
	tk.HeldBy = ""
	tk.Pos = tk.spawnPos
	tk.Yaw = 0
	s.authority.release(tk.ID)
}

// HandleDeparture force-drops the token if the departed agent was holding
// it, with a small scatter offset so it does not restack exactly where the
// agent stood. Idempotent: a token not held by the agent is untouched.
func (tk *Token) HandleDeparture(s *Session, agentID string, nowTick uint64) {
	if tk.State != TokenHeld || tk.HeldBy != agentID {
		return
	}
	ang := s.randFloat() * 2 * math.Pi
	r := s.cfg.Tune.DropScatter * (0.5 + s.randFloat()*0.5)
	tk.Pos = mgl64.Vec3{
		tk.Pos.X() + math.Sin(ang)*r,
		0,
		tk.Pos.Z() + math.Cos(ang)*r,
	}
	tk.State = TokenAvailable
	tk.HeldBy = ""
	s.authority.release(tk.ID)
	s.broadcast(protocol.Event{
		"t":     nowTick,
		"type":  "TOKEN_DROP",
		"token": tk.ID,
		"cause": "DEPARTURE",
	})
	s.audit(nowTick, agentID, "TOKEN_DROP", tk.ID, "DEPARTURE")
}

// HandleShutdown detaches the token from any holder so a teardown race can
// never leave it stuck HELD by a gone agent.
func (tk *Token) HandleShutdown(s *Session, nowTick uint64) {
	if tk.State != TokenHeld {
		return
	}
	tk.HandleDeparture(s, tk.HeldBy, nowTick)
}

// systemTokens runs the per-tick token behaviors: proximity release of
// resting tokens and the carry pose of held tokens.
func (s *Session) systemTokens(nowTick uint64) {
	for _, id := range sortedKeys(s.tokens) {
		tk := s.tokens[id]
		switch tk.State {
		case TokenResting:
			for _, aid := range sortedKeys(s.agents) {
				if dist2D(tk.Pos, s.agents[aid].Pos) <= tk.releaseRadius {
					s.tokenStartFalling(tk, nowTick)
					break
				}
			}
		case TokenHeld:
			s.tokenFollowHeld(tk)
		}
	}
}
