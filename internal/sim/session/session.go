package session

import (
	"context"
	"math/rand"
	"sync/atomic"
	"time"

	"keyhunt.gg/internal/persistence/snapshot"
	"keyhunt.gg/internal/protocol"
	"keyhunt.gg/internal/sim/layout"
	"keyhunt.gg/internal/sim/tuning"
)

type Config struct {
	ID   string
	Seed int64
	Tune tuning.Tuning
}

type JoinRequest struct {
	Name string
	Out  chan []byte
	Resp chan JoinResponse
}

type AttachRequest struct {
	ResumeToken string
	Out         chan []byte
	Resp        chan JoinResponse
}

type JoinResponse struct {
	Welcome protocol.WelcomeMsg
	Layout  protocol.LayoutMsg
}

type ActionEnvelope struct {
	AgentID string
	Act     protocol.ActMsg
}

// LeaveRequest is a transport-level leave. Out identifies the connection it
// came from; a leave from a connection that has since been superseded by a
// reconnect is discarded. A nil Out leaves unconditionally.
type LeaveRequest struct {
	AgentID string
	Out     chan []byte
}

type RecordedJoin struct {
	AgentID string `json:"agent_id"`
	Name    string `json:"name"`
}

type RecordedAction struct {
	AgentID string          `json:"agent_id"`
	Act     protocol.ActMsg `json:"act"`
}

// Session is a single-threaded authoritative simulation of one puzzle level.
// All state must be accessed only from the session loop goroutine.
type Session struct {
	cfg    Config
	layout *layout.Layout

	tick atomic.Uint64

	agents  map[string]*Agent
	clients map[string]*clientState

	tokens   map[string]*Token
	zones    map[string]*Zone
	barriers map[string]*Barrier

	round     *Round
	authority *authorityLedger

	// Deterministic rng (drop scatter). Seeded from cfg.Seed; advanced only
	// from the session loop so replays stay bit-identical. rngDraws counts
	// draws so a snapshot can restore the rng position exactly.
	rng      *rand.Rand
	rngDraws uint64

	inbox  chan ActionEnvelope
	join   chan JoinRequest
	attach chan AttachRequest
	leave  chan LeaveRequest
	stop   chan struct{}

	spectators     map[string]chan []byte
	spectatorJoin  chan SpectatorJoinRequest
	spectatorLeave chan string

	stopped atomic.Bool

	nextAgentNum atomic.Uint64
	roundsTotal  uint64

	// Optional loggers (may be nil). Implemented in internal/persistence/*.
	tickLogger  TickLogger
	auditLogger AuditLogger
	roundSink   RoundRecorder

	// Optional snapshot sink (may be nil). Snapshot writing is off-thread.
	snapshotSink chan<- snapshot.SnapshotV1

	// Unlock/reset audit entries emitted during the current tick.
	auditsThisTick []AuditEntry

	metrics atomic.Value
}

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

type AuditLogger interface {
	WriteAudit(entry AuditEntry) error
}

// RoundRecorder receives one record per finished round (win or reset).
type RoundRecorder interface {
	RecordRound(rec RoundRecord)
}

type TickLogEntry struct {
	Tick    uint64           `json:"tick"`
	Joins   []RecordedJoin   `json:"joins,omitempty"`
	Leaves  []string         `json:"leaves,omitempty"`
	Actions []RecordedAction `json:"actions,omitempty"`
	Digest  string           `json:"digest"`
}

type AuditEntry struct {
	Tick   uint64 `json:"tick"`
	Actor  string `json:"actor"`
	Action string `json:"action"` // e.g. "ZONE_UNLOCK"
	Target string `json:"target"`
	Reason string `json:"reason,omitempty"`
}

type RoundRecord struct {
	Number      int    `json:"number"`
	StartedTick uint64 `json:"started_tick"`
	EndedTick   uint64 `json:"ended_tick"`
	Solved      int    `json:"solved"`
	Required    int    `json:"required"`
	Winner      string `json:"winner,omitempty"`
	Reason      string `json:"reason"` // "WIN","RESET","SHUTDOWN"
}

type clientState struct {
	Out chan []byte
}

func New(cfg Config, lay *layout.Layout) (*Session, error) {
	if err := lay.Validate(); err != nil {
		return nil, err
	}
	s := &Session{
		cfg:       cfg,
		layout:    lay,
		agents:    map[string]*Agent{},
		clients:   map[string]*clientState{},
		tokens:    map[string]*Token{},
		zones:     map[string]*Zone{},
		barriers:  map[string]*Barrier{},
		authority: newAuthorityLedger(),
		rng:       rand.New(rand.NewSource(cfg.Seed)),
		inbox:     make(chan ActionEnvelope, 1024),
		join:      make(chan JoinRequest, 64),
		attach:    make(chan AttachRequest, 64),
		leave:     make(chan LeaveRequest, 64),
		stop:      make(chan struct{}),

		spectators:     map[string]chan []byte{},
		spectatorJoin:  make(chan SpectatorJoinRequest, 16),
		spectatorLeave: make(chan string, 16),
	}
	s.round = newRound(lay.RequiredCount)
	for _, td := range lay.Tokens {
		s.tokens[td.ID] = newToken(td, cfg.Tune.ReleaseRadius)
	}
	for _, zd := range lay.Zones {
		s.zones[zd.ID] = newZone(zd)
	}
	for _, bd := range lay.Barriers {
		s.barriers[bd.ID] = newBarrier(bd)
	}
	return s, nil
}

func (s *Session) SetTickLogger(l TickLogger)       { s.tickLogger = l }
func (s *Session) SetAuditLogger(l AuditLogger)     { s.auditLogger = l }
func (s *Session) SetRoundRecorder(r RoundRecorder) { s.roundSink = r }

func (s *Session) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) { s.snapshotSink = ch }

func (s *Session) Inbox() chan<- ActionEnvelope { return s.inbox }
func (s *Session) Join() chan<- JoinRequest     { return s.join }
func (s *Session) Attach() chan<- AttachRequest { return s.attach }
func (s *Session) Leave() chan<- LeaveRequest   { return s.leave }

func (s *Session) CurrentTick() uint64 { return s.tick.Load() }

func (s *Session) ID() string {
	if s == nil {
		return ""
	}
	return s.cfg.ID
}

func (s *Session) TickRateHz() int {
	if s == nil {
		return 0
	}
	return s.cfg.Tune.TickRateHz
}

func (s *Session) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(s.cfg.Tune.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pendingActions []ActionEnvelope
	var pendingJoins []JoinRequest
	var pendingLeaves []LeaveRequest

	for {
		select {
		case <-ctx.Done():
			s.handleShutdown("CONTEXT_DONE")
			return ctx.Err()
		case <-s.stop:
			s.handleShutdown("STOP")
			return nil
		case req := <-s.join:
			pendingJoins = append(pendingJoins, req)
		case req := <-s.attach:
			s.handleAttach(req)
		case req := <-s.leave:
			pendingLeaves = append(pendingLeaves, req)
		case req := <-s.spectatorJoin:
			s.handleSpectatorJoin(req)
		case id := <-s.spectatorLeave:
			s.handleSpectatorLeave(id)
		case env := <-s.inbox:
			pendingActions = append(pendingActions, env)
		case <-ticker.C:
			s.step(pendingJoins, s.filterLeaves(pendingLeaves), pendingActions)
			pendingJoins = pendingJoins[:0]
			pendingLeaves = pendingLeaves[:0]
			pendingActions = pendingActions[:0]
		}
	}
}

func (s *Session) Stop() {
	if s.stopped.CompareAndSwap(false, true) {
		close(s.stop)
	}
}

// StepOnce advances the session by a single tick using the same ordering
// semantics as the server. It is primarily intended for deterministic
// replays/tests.
func (s *Session) StepOnce(joins []JoinRequest, leaves []string, actions []ActionEnvelope) (tick uint64, digest string) {
	tick = s.tick.Load()
	s.step(joins, leaves, actions)
	return tick, s.stateDigest(tick)
}

// filterLeaves discards leaves from superseded connections: a reconnect
// rotates the client registration, and the dead connection's trailing leave
// must not take down the resumed agent. Runs on the session goroutine.
func (s *Session) filterLeaves(reqs []LeaveRequest) []string {
	if len(reqs) == 0 {
		return nil
	}
	ids := make([]string, 0, len(reqs))
	for _, req := range reqs {
		if req.Out != nil {
			cl := s.clients[req.AgentID]
			if cl == nil || cl.Out != req.Out {
				continue
			}
		}
		ids = append(ids, req.AgentID)
	}
	return ids
}

// randFloat draws from the deterministic rng, counting the draw so snapshot
// import can re-advance a fresh rng to the same position.
func (s *Session) randFloat() float64 {
	s.rngDraws++
	return s.rng.Float64()
}

func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}

func (s *Session) broadcast(ev protocol.Event) {
	for _, a := range s.agents {
		a.AddEvent(ev)
	}
}

func (s *Session) audit(nowTick uint64, actor, action, target, reason string) {
	e := AuditEntry{Tick: nowTick, Actor: actor, Action: action, Target: target, Reason: reason}
	s.auditsThisTick = append(s.auditsThisTick, e)
	if s.auditLogger != nil {
		_ = s.auditLogger.WriteAudit(e)
	}
}
