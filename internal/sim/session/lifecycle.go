package session

import "keyhunt.gg/internal/protocol"

// lifecycleHandler is the small reconciliation interface every stateful
// component implements. Handlers must be idempotent and order-independent:
// the fan-out may repeat and the delivery order is not part of the contract.
type lifecycleHandler interface {
	HandleDeparture(s *Session, agentID string, nowTick uint64)
	HandleShutdown(s *Session, nowTick uint64)
}

// lifecycleTargets returns every component in a deterministic order. The
// round coordinator goes last so its reconciliation sees the post-departure
// state of the other components.
func (s *Session) lifecycleTargets() []lifecycleHandler {
	out := make([]lifecycleHandler, 0, len(s.tokens)+len(s.zones)+len(s.barriers)+1)
	for _, id := range sortedKeys(s.tokens) {
		out = append(out, s.tokens[id])
	}
	for _, id := range sortedKeys(s.zones) {
		out = append(out, s.zones[id])
	}
	for _, id := range sortedKeys(s.barriers) {
		out = append(out, s.barriers[id])
	}
	out = append(out, s.round)
	return out
}

// handleDeparture removes the agent and broadcasts AgentDeparted to every
// component. Safe to call for unknown ids.
func (s *Session) handleDeparture(agentID string, nowTick uint64) {
	a := s.agents[agentID]
	if a == nil {
		delete(s.clients, agentID)
		return
	}
	delete(s.agents, agentID)
	delete(s.clients, agentID)
	s.authority.releaseAll(agentID)

	for _, h := range s.lifecycleTargets() {
		h.HandleDeparture(s, agentID, nowTick)
	}

	s.broadcast(protocol.Event{
		"t":     nowTick,
		"type":  "AGENT_DEPARTED",
		"agent": agentID,
	})
	s.audit(nowTick, agentID, "AGENT_DEPARTED", "", "")
}

// handleShutdown runs the teardown reconciliation before the session loop
// exits: every component gets SessionShutdown, and the coordinator's pass
// guarantees an achieved unlock never regresses during teardown.
func (s *Session) handleShutdown(reason string) {
	nowTick := s.tick.Load()
	for _, h := range s.lifecycleTargets() {
		h.HandleShutdown(s, nowTick)
	}
	s.recordRound(nowTick, "SHUTDOWN")
	s.audit(nowTick, "", "SESSION_SHUTDOWN", "", reason)
}
