// Package observerproto defines the spectator wire protocol. Spectators get
// the whole session state every tick, not a per-agent observation; the feed
// is read-only and never influences the simulation.
package observerproto

import "keyhunt.gg/internal/protocol"

// Version is the spectator protocol version (separate from the agent WS protocol).
const Version = "0.1"

// Client -> Server. First message on the spectator WS connection.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
}

// HTTP response for GET /admin/v1/observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string                 `json:"protocol_version"`
	SessionID       string                 `json:"session_id"`
	Tick            uint64                 `json:"tick"`
	SessionParams   protocol.SessionParams `json:"session_params"`
	LayoutDigest    string                 `json:"layout_digest"`
}

// Server -> Client. Sent every tick.
type TickMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`

	Round    protocol.RoundObs     `json:"round"`
	Tokens   []protocol.TokenObs   `json:"tokens"`
	Zones    []protocol.ZoneObs    `json:"zones"`
	Barriers []protocol.BarrierObs `json:"barriers"`
	Agents   []AgentState          `json:"agents"`

	Joins  []JoinInfo `json:"joins,omitempty"`
	Leaves []string   `json:"leaves,omitempty"`

	// Unlock/reset audit entries emitted this tick.
	Audits []AuditEntry `json:"audits,omitempty"`
}

type AgentState struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Pos       [3]float64 `json:"pos"`
	Yaw       float64    `json:"yaw"`
	HeldToken string     `json:"held_token,omitempty"`
	Connected bool       `json:"connected"`

	// Object ids whose mutation capability the agent holds.
	Authority []string `json:"authority,omitempty"`
}

type JoinInfo struct {
	AgentID string `json:"agent_id"`
	Name    string `json:"name"`
}

type AuditEntry struct {
	Tick   uint64 `json:"tick"`
	Actor  string `json:"actor"`
	Action string `json:"action"`
	Target string `json:"target"`
	Reason string `json:"reason,omitempty"`
}
