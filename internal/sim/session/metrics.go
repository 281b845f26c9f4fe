package session

// SessionMetrics is a thread-safe read-only view of key runtime signals.
// It is updated from the session loop goroutine and read from HTTP
// handlers/tests.
type SessionMetrics struct {
	Tick uint64 `json:"tick"`

	Agents     int `json:"agents"`
	Clients    int `json:"clients"`
	TokensHeld int `json:"tokens_held"`

	RoundNumber int  `json:"round_number"`
	Solved      int  `json:"solved"`
	Required    int  `json:"required"`
	AllSolved   bool `json:"all_solved"`

	QueueDepths QueueDepths `json:"queue_depths"`

	StepMS float64 `json:"step_ms"`
}

type QueueDepths struct {
	Inbox  int `json:"inbox"`
	Join   int `json:"join"`
	Leave  int `json:"leave"`
	Attach int `json:"attach"`
}

func (s *Session) Metrics() SessionMetrics {
	if s == nil {
		return SessionMetrics{}
	}
	v := s.metrics.Load()
	if v == nil {
		return SessionMetrics{}
	}
	m, ok := v.(SessionMetrics)
	if !ok {
		return SessionMetrics{}
	}
	return m
}
