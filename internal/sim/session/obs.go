package session

import "keyhunt.gg/internal/protocol"

// buildObs assembles the replicated snapshot for one agent. Non-authority
// replicas only ever see state changes through these snapshots, atomically
// between two ticks; partial states are never observable.
func (s *Session) buildObs(a *Agent, nowTick uint64) protocol.ObsMsg {
	r := s.round
	obs := protocol.ObsMsg{
		Type:            protocol.TypeObs,
		ProtocolVersion: protocol.Version,
		Tick:            nowTick,
		AgentID:         a.ID,
		Round: protocol.RoundObs{
			Number:        r.Number,
			SolvedCount:   r.SolvedCount,
			RequiredCount: r.RequiredCount,
			AllSolved:     r.AllSolved,
			Winner:        r.Winner,
			ResetAtTick:   r.resetAtTick,
		},
		Self: protocol.SelfObs{
			Pos:       vecToArray(a.Pos),
			Yaw:       a.Yaw,
			HeldToken: a.HeldToken,
			Authority: s.authority.heldBy(a.ID),
		},
		Events: a.TakeEvents(),
	}

	obs.Tokens = make([]protocol.TokenObs, 0, len(s.tokens))
	for _, id := range sortedKeys(s.tokens) {
		tk := s.tokens[id]
		obs.Tokens = append(obs.Tokens, protocol.TokenObs{
			ID:     tk.ID,
			Kind:   tk.Kind,
			State:  tk.State,
			HeldBy: tk.HeldBy,
			Pos:    vecToArray(tk.Pos),
			Yaw:    tk.Yaw,
		})
	}

	obs.Zones = make([]protocol.ZoneObs, 0, len(s.zones))
	for _, id := range sortedKeys(s.zones) {
		z := s.zones[id]
		obs.Zones = append(obs.Zones, protocol.ZoneObs{
			ID:       z.ID,
			Kind:     z.Kind,
			Unlocked: z.Unlocked,
			Pos:      vecToArray(z.Pos),
			Radius:   z.Radius,
		})
	}

	obs.Barriers = make([]protocol.BarrierObs, 0, len(s.barriers))
	for _, id := range sortedKeys(s.barriers) {
		b := s.barriers[id]
		obs.Barriers = append(obs.Barriers, protocol.BarrierObs{
			ID:        b.ID,
			Open:      b.Open,
			Unlocked:  b.Unlocked,
			Occupants: b.OccupantCount(),
			Pos:       vecToArray(b.Pos),
			Half:      vecToArray(b.Half),
		})
	}

	obs.Agents = make([]protocol.AgentObs, 0, len(s.agents))
	for _, id := range sortedKeys(s.agents) {
		other := s.agents[id]
		if other.ID == a.ID {
			continue
		}
		obs.Agents = append(obs.Agents, protocol.AgentObs{
			ID:        other.ID,
			Name:      other.Name,
			Pos:       vecToArray(other.Pos),
			Yaw:       other.Yaw,
			HeldToken: other.HeldToken,
		})
	}

	return obs
}
