package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string            `json:"type"`
	ProtocolVersion string            `json:"protocol_version"`
	AgentName       string            `json:"agent_name"`
	Capabilities    HelloCapabilities `json:"capabilities"`
	Auth            *HelloAuth        `json:"auth,omitempty"`
}

type HelloCapabilities struct {
	MaxQueue int `json:"max_queue,omitempty"`
}

type HelloAuth struct {
	// ResumeToken reattaches an existing agent after a disconnect.
	Token string `json:"token,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string        `json:"type"`
	ProtocolVersion string        `json:"protocol_version"`
	SessionID       string        `json:"session_id"`
	AgentID         string        `json:"agent_id"`
	ResumeToken     string        `json:"resume_token"`
	SessionParams   SessionParams `json:"session_params"`
	LayoutDigest    string        `json:"layout_digest"`
}

type SessionParams struct {
	TickRateHz       int     `json:"tick_rate_hz"`
	Seed             int64   `json:"seed"`
	InteractionRange float64 `json:"interaction_range"`
	RequiredCount    int     `json:"required_count"`
}

// LAYOUT (server -> client): the static level layout, sent once after WELCOME.
type LayoutMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	Digest          string      `json:"digest"`
	Data            interface{} `json:"data"`
}
