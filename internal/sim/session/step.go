package session

import (
	"encoding/json"
	"time"
)

func (s *Session) step(joins []JoinRequest, leaves []string, actions []ActionEnvelope) {
	stepStart := time.Now()
	nowTick := s.tick.Load()

	s.auditsThisTick = s.auditsThisTick[:0]

	// Apply leaves and joins deterministically at the tick boundary. Leaves
	// run first so a departed agent's requests queued behind them are
	// discarded by the guards rather than executed on a ghost.
	recordedLeaves := make([]string, 0, len(leaves))
	for _, id := range leaves {
		if _, ok := s.agents[id]; ok {
			s.handleDeparture(id, nowTick)
			recordedLeaves = append(recordedLeaves, id)
		}
	}
	recordedJoins := make([]RecordedJoin, 0, len(joins))
	for _, req := range joins {
		resp := s.joinAgent(req.Name, req.Out)
		if req.Resp != nil {
			req.Resp <- resp
		}
		recordedJoins = append(recordedJoins, RecordedJoin{AgentID: resp.Welcome.AgentID, Name: req.Name})
	}

	// Apply requests in server receive order (the inbox order). This order
	// is the only arbiter between concurrent requests against one object.
	recorded := make([]RecordedAction, 0, len(actions))
	for _, env := range actions {
		a := s.agents[env.AgentID]
		if a == nil {
			continue
		}
		env.Act.AgentID = env.AgentID // trust session identity
		recorded = append(recorded, RecordedAction{AgentID: env.AgentID, Act: env.Act})
		s.applyAct(a, env.Act, nowTick)
	}

	// Systems: movement -> tokens -> zones -> barriers -> round.
	s.systemMovement(nowTick)
	s.systemTokens(nowTick)
	s.systemZones(nowTick)
	s.systemBarriers(nowTick)
	s.systemRound(nowTick)

	// Build + send OBS for each connected agent.
	for id, a := range s.agents {
		cl := s.clients[id]
		if cl == nil {
			continue
		}
		obs := s.buildObs(a, nowTick)
		b, err := json.Marshal(obs)
		if err != nil {
			continue
		}
		sendLatest(cl.Out, b)
	}

	s.broadcastSpectators(nowTick, recordedJoins, recordedLeaves)

	digest := s.stateDigest(nowTick)
	if s.tickLogger != nil {
		_ = s.tickLogger.WriteTick(TickLogEntry{Tick: nowTick, Joins: recordedJoins, Leaves: recordedLeaves, Actions: recorded, Digest: digest})
	}

	// Snapshot every N ticks, starting after tick 0.
	if s.snapshotSink != nil && nowTick != 0 && s.cfg.Tune.SnapshotEveryTicks > 0 {
		every := uint64(s.cfg.Tune.SnapshotEveryTicks)
		if nowTick%every == 0 {
			snap := s.ExportSnapshot(nowTick)
			select {
			case s.snapshotSink <- snap:
			default:
				// Drop the snapshot if the sink is backed up.
			}
		}
	}

	stepMS := float64(time.Since(stepStart).Microseconds()) / 1000.0
	s.tick.Add(1)

	held := 0
	for _, tk := range s.tokens {
		if tk.State == TokenHeld {
			held++
		}
	}
	s.metrics.Store(SessionMetrics{
		Tick:        s.tick.Load(),
		Agents:      len(s.agents),
		Clients:     len(s.clients),
		TokensHeld:  held,
		RoundNumber: s.round.Number,
		Solved:      s.round.SolvedCount,
		Required:    s.round.RequiredCount,
		AllSolved:   s.round.AllSolved,
		QueueDepths: QueueDepths{
			Inbox:  len(s.inbox),
			Join:   len(s.join),
			Leave:  len(s.leave),
			Attach: len(s.attach),
		},
		StepMS: stepMS,
	})
}
