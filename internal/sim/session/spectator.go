package session

import (
	"encoding/json"

	"keyhunt.gg/internal/observerproto"
	"keyhunt.gg/internal/protocol"
)

// Spectators receive the whole session state every tick over a read-only
// feed. They are not agents: attaching or detaching one never touches the
// simulation state and therefore never shows up in the tick log.
type SpectatorJoinRequest struct {
	ID  string
	Out chan []byte
}

func (s *Session) SpectatorJoin() chan<- SpectatorJoinRequest { return s.spectatorJoin }
func (s *Session) SpectatorLeave() chan<- string              { return s.spectatorLeave }

func (s *Session) handleSpectatorJoin(req SpectatorJoinRequest) {
	if req.ID == "" || req.Out == nil {
		return
	}
	s.spectators[req.ID] = req.Out
}

func (s *Session) handleSpectatorLeave(id string) {
	delete(s.spectators, id)
}

// BuildBootstrap answers the spectator bootstrap query. Immutable session
// parameters only, so it is safe to call from HTTP handlers.
func (s *Session) BuildBootstrap() observerproto.BootstrapResponse {
	return observerproto.BootstrapResponse{
		ProtocolVersion: observerproto.Version,
		SessionID:       s.cfg.ID,
		Tick:            s.tick.Load(),
		SessionParams: protocol.SessionParams{
			TickRateHz:       s.cfg.Tune.TickRateHz,
			Seed:             s.cfg.Seed,
			InteractionRange: s.cfg.Tune.InteractionRange,
			RequiredCount:    s.round.RequiredCount,
		},
		LayoutDigest: s.layout.Digest(),
	}
}

// broadcastSpectators fans the tick summary out to every spectator with the
// same drop-one backpressure policy as agent observations.
func (s *Session) broadcastSpectators(nowTick uint64, joins []RecordedJoin, leaves []string) {
	if len(s.spectators) == 0 {
		return
	}

	msg := observerproto.TickMsg{
		Type:            "TICK",
		ProtocolVersion: observerproto.Version,
		Tick:            nowTick,
		Round: protocol.RoundObs{
			Number:        s.round.Number,
			SolvedCount:   s.round.SolvedCount,
			RequiredCount: s.round.RequiredCount,
			AllSolved:     s.round.AllSolved,
			Winner:        s.round.Winner,
			ResetAtTick:   s.round.resetAtTick,
		},
		Leaves: leaves,
	}
	for _, id := range sortedKeys(s.tokens) {
		tk := s.tokens[id]
		msg.Tokens = append(msg.Tokens, protocol.TokenObs{
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
		msg.Zones = append(msg.Zones, protocol.ZoneObs{
			ID:       z.ID,
			Kind:     z.Kind,
			Unlocked: z.Unlocked,
			Pos:      vecToArray(z.Pos),
			Radius:   z.Radius,
		})
	}
	for _, id := range sortedKeys(s.barriers) {
		b := s.barriers[id]
		msg.Barriers = append(msg.Barriers, protocol.BarrierObs{
			ID:        b.ID,
			Open:      b.Open,
			Unlocked:  b.Unlocked,
			Occupants: b.OccupantCount(),
			Pos:       vecToArray(b.Pos),
			Half:      vecToArray(b.Half),
		})
	}
	for _, id := range sortedKeys(s.agents) {
		a := s.agents[id]
		_, connected := s.clients[id]
		msg.Agents = append(msg.Agents, observerproto.AgentState{
			ID:        a.ID,
			Name:      a.Name,
			Pos:       vecToArray(a.Pos),
			Yaw:       a.Yaw,
			HeldToken: a.HeldToken,
			Connected: connected,
			Authority: s.authority.heldBy(a.ID),
		})
	}
	for _, j := range joins {
		msg.Joins = append(msg.Joins, observerproto.JoinInfo{AgentID: j.AgentID, Name: j.Name})
	}
	for _, e := range s.auditsThisTick {
		msg.Audits = append(msg.Audits, observerproto.AuditEntry{
			Tick:   e.Tick,
			Actor:  e.Actor,
			Action: e.Action,
			Target: e.Target,
			Reason: e.Reason,
		})
	}

	b, err := json.Marshal(msg)
	if err != nil {
		return
	}
	for _, out := range s.spectators {
		sendLatest(out, b)
	}
}
