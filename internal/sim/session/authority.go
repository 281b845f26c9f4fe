package session

import "sort"

// HostAuthority is the implicit holder of every capability that no agent
// holds: the session loop itself.
const HostAuthority = ""

// authorityLedger tracks the single mutation capability per shared object.
// Any mutation path checks the ledger first; a replica that does not hold
// the capability must request-and-defer instead of mutating shadow state.
type authorityLedger struct {
	holder map[string]string // object id -> agent id; absent/"" means host
}

func newAuthorityLedger() *authorityLedger {
	return &authorityLedger{holder: map[string]string{}}
}

func (l *authorityLedger) HolderOf(objectID string) string {
	return l.holder[objectID]
}

func (l *authorityLedger) grant(objectID, agentID string) {
	if agentID == HostAuthority {
		delete(l.holder, objectID)
		return
	}
	l.holder[objectID] = agentID
}

func (l *authorityLedger) release(objectID string) {
	delete(l.holder, objectID)
}

// releaseAll migrates every capability the agent holds back to the host.
// Returns the released object ids in sorted order.
func (l *authorityLedger) releaseAll(agentID string) []string {
	var ids []string
	for id, h := range l.holder {
		if h == agentID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	for _, id := range ids {
		delete(l.holder, id)
	}
	return ids
}

// heldBy lists the object ids whose capability the agent holds, sorted.
func (l *authorityLedger) heldBy(agentID string) []string {
	var ids []string
	for id, h := range l.holder {
		if h == agentID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// handleRequestAuthority resolves an explicit handoff request. Capabilities
// parked on the host are granted immediately; a capability held by another
// agent is denied (it migrates only on that agent's drop or departure).
func (s *Session) handleRequestAuthority(a *Agent, objectID string, nowTick uint64) {
	if !s.objectExists(objectID) {
		a.AddEvent(errorEvent(nowTick, "REQUEST_AUTHORITY", "E_INVALID_TARGET", objectID))
		return
	}
	cur := s.authority.HolderOf(objectID)
	switch cur {
	case a.ID:
		// Already held; idempotent.
	case HostAuthority:
		s.authority.grant(objectID, a.ID)
		a.AddEvent(authorityEvent(nowTick, "AUTHORITY_GRANTED", objectID))
	default:
		a.AddEvent(authorityEvent(nowTick, "AUTHORITY_DENIED", objectID))
	}
}

func (s *Session) objectExists(id string) bool {
	if _, ok := s.tokens[id]; ok {
		return true
	}
	if _, ok := s.zones[id]; ok {
		return true
	}
	if _, ok := s.barriers[id]; ok {
		return true
	}
	return false
}
