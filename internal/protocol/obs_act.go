package protocol

type ObsMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`
	AgentID         string `json:"agent_id"`

	Round RoundObs `json:"round"`
	Self  SelfObs  `json:"self"`

	Tokens   []TokenObs   `json:"tokens"`
	Zones    []ZoneObs    `json:"zones"`
	Barriers []BarrierObs `json:"barriers"`
	Agents   []AgentObs   `json:"agents,omitempty"`
	Events   []Event      `json:"events"`
}

type RoundObs struct {
	Number        int    `json:"number"`
	SolvedCount   int    `json:"solved_count"`
	RequiredCount int    `json:"required_count"`
	AllSolved     bool   `json:"all_solved"`
	Winner        string `json:"winner,omitempty"`
	ResetAtTick   uint64 `json:"reset_at_tick,omitempty"`
}

type SelfObs struct {
	Pos       [3]float64 `json:"pos"`
	Yaw       float64    `json:"yaw"`
	HeldToken string     `json:"held_token,omitempty"`

	// Authority lists object ids whose mutation capability this agent holds.
	Authority []string `json:"authority,omitempty"`
}

type TokenObs struct {
	ID     string     `json:"id"`
	Kind   string     `json:"kind"`
	State  string     `json:"state"` // "RESTING","AVAILABLE","HELD"
	HeldBy string     `json:"held_by,omitempty"`
	Pos    [3]float64 `json:"pos"`
	Yaw    float64    `json:"yaw"`
}

type ZoneObs struct {
	ID       string     `json:"id"`
	Kind     string     `json:"kind"`
	Unlocked bool       `json:"unlocked"`
	Pos      [3]float64 `json:"pos"`
	Radius   float64    `json:"radius"`
}

type BarrierObs struct {
	ID        string     `json:"id"`
	Open      bool       `json:"open"`
	Unlocked  bool       `json:"unlocked"`
	Occupants int        `json:"occupants"`
	Pos       [3]float64 `json:"pos"`
	Half      [3]float64 `json:"half"`
}

type AgentObs struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Pos       [3]float64 `json:"pos"`
	Yaw       float64    `json:"yaw"`
	HeldToken string     `json:"held_token,omitempty"`
}

type Event map[string]interface{}

// ACT (client -> server)
type ActMsg struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	Tick            uint64       `json:"tick"`
	AgentID         string       `json:"agent_id"`
	Instants        []InstantReq `json:"instants,omitempty"`
}

type InstantReq struct {
	ID   string `json:"id"`
	Type string `json:"type"`

	TargetID string     `json:"target_id,omitempty"`
	Target   [3]float64 `json:"target,omitempty"`
	Reason   string     `json:"reason,omitempty"`
}
