package session

import (
	"fmt"
	"math"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"

	"keyhunt.gg/internal/protocol"
)

// Agent is the per-participant actor. HeldToken mirrors the held token's
// HeldBy field; the two references always agree.
type Agent struct {
	ID   string
	Name string

	// ResumeToken is a transport-level token used for reconnects.
	// It is intentionally NOT included in snapshots/digests.
	ResumeToken string

	Pos mgl64.Vec3
	Yaw float64

	HeldToken string

	moveTarget *mgl64.Vec3

	Events []protocol.Event
}

// maxPendingEvents bounds the per-agent event queue. A client-less agent
// (replay, a disconnected reconnect slot) never drains its queue, so the
// oldest events are shed once the cap is hit.
const maxPendingEvents = 256

func (a *Agent) AddEvent(e protocol.Event) {
	a.Events = append(a.Events, e)
	if len(a.Events) > maxPendingEvents {
		a.Events = a.Events[len(a.Events)-maxPendingEvents:]
	}
}

func (a *Agent) TakeEvents() []protocol.Event {
	ev := a.Events
	a.Events = nil
	return ev
}

func errorEvent(nowTick uint64, req, code, target string) protocol.Event {
	return protocol.Event{
		"t":      nowTick,
		"type":   "REQUEST_REJECTED",
		"req":    req,
		"code":   code,
		"target": target,
	}
}

func authorityEvent(nowTick uint64, typ, objectID string) protocol.Event {
	return protocol.Event{
		"t":      nowTick,
		"type":   typ,
		"object": objectID,
	}
}

func normalizeAgentName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "agent"
	}
	if len(name) > 32 {
		name = name[:32]
	}
	return name
}

func (s *Session) spawnPos(i int) mgl64.Vec3 {
	if len(s.layout.Spawns) == 0 {
		return mgl64.Vec3{}
	}
	sp := s.layout.Spawns[i%len(s.layout.Spawns)]
	return arrayToVec(sp.Pos)
}

func (s *Session) buildWelcome(agentID, resumeToken string) protocol.WelcomeMsg {
	return protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       s.cfg.ID,
		AgentID:         agentID,
		ResumeToken:     resumeToken,
		SessionParams: protocol.SessionParams{
			TickRateHz:       s.cfg.Tune.TickRateHz,
			Seed:             s.cfg.Seed,
			InteractionRange: s.cfg.Tune.InteractionRange,
			RequiredCount:    s.round.RequiredCount,
		},
		LayoutDigest: s.layout.Digest(),
	}
}

func (s *Session) buildLayoutMsg() protocol.LayoutMsg {
	return protocol.LayoutMsg{
		Type:            protocol.TypeLayout,
		ProtocolVersion: protocol.Version,
		Digest:          s.layout.Digest(),
		Data:            s.layout,
	}
}

func (s *Session) joinAgent(name string, out chan []byte) JoinResponse {
	name = normalizeAgentName(name)

	idNum := s.nextAgentNum.Add(1)
	agentID := fmt.Sprintf("A%04d", idNum)

	a := &Agent{
		ID:   agentID,
		Name: name,
		Pos:  s.spawnPos(int(idNum) - 1),
	}
	s.agents[agentID] = a
	if out != nil {
		s.clients[agentID] = &clientState{Out: out}
	}

	token := uuid.NewString()
	a.ResumeToken = token

	return JoinResponse{Welcome: s.buildWelcome(agentID, token), Layout: s.buildLayoutMsg()}
}

func (s *Session) handleAttach(req AttachRequest) {
	token := strings.TrimSpace(req.ResumeToken)
	if token == "" || req.Out == nil {
		if req.Resp != nil {
			req.Resp <- JoinResponse{}
		}
		return
	}

	// Find the agent deterministically by iterating sorted ids.
	var a *Agent
	for _, id := range sortedKeys(s.agents) {
		if s.agents[id].ResumeToken == token {
			a = s.agents[id]
			break
		}
	}
	if a == nil {
		if req.Resp != nil {
			req.Resp <- JoinResponse{}
		}
		return
	}

	// Attach the client (does not affect simulation determinism) and rotate
	// the token on successful resume. Reconnecting never resets progress.
	s.clients[a.ID] = &clientState{Out: req.Out}
	newToken := uuid.NewString()
	a.ResumeToken = newToken

	if req.Resp != nil {
		req.Resp <- JoinResponse{Welcome: s.buildWelcome(a.ID, newToken), Layout: s.buildLayoutMsg()}
	}
}

// respawnAgent is the coordinator->agent targeted call: reset pose, force a
// drop, and optionally tell the client its round progress was reset.
func (s *Session) respawnAgent(a *Agent, pos mgl64.Vec3, resetProgress bool, nowTick uint64) {
	if a.HeldToken != "" {
		if tk := s.tokens[a.HeldToken]; tk != nil {
			s.tokenRequestDrop(tk, nowTick)
		}
		a.HeldToken = ""
	}
	a.Pos = pos
	a.Yaw = 0
	a.moveTarget = nil
	a.AddEvent(protocol.Event{
		"t":              nowTick,
		"type":           "RESPAWN",
		"pos":            vecToArray(pos),
		"reset_progress": resetProgress,
	})
}

// systemMovement advances each agent toward its move target at a fixed speed
// per tick. Movement exists to drive overlap and occupancy; it is not a
// physics integration.
func (s *Session) systemMovement(nowTick uint64) {
	speed := s.cfg.Tune.MoveSpeed
	for _, aid := range sortedKeys(s.agents) {
		a := s.agents[aid]
		if a.moveTarget == nil {
			continue
		}
		to := a.moveTarget.Sub(a.Pos)
		d := to.Len()
		if d <= speed {
			a.Pos = *a.moveTarget
			a.moveTarget = nil
			continue
		}
		step := to.Mul(speed / d)
		a.Pos = a.Pos.Add(step)
		a.Yaw = yawToward(step)
	}
}

func yawToward(dir mgl64.Vec3) float64 {
	if dir.X() == 0 && dir.Z() == 0 {
		return 0
	}
	return math.Atan2(dir.X(), dir.Z())
}
