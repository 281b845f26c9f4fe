// Command bot is a scripted test client. It connects over websocket, then
// plays a greedy strategy: grab the nearest available token, carry it to a
// locked zone whose shape differs from the token's, and once the round is
// solved walk into an open gate. Useful for soak-testing a server and for
// eyeballing the interpolated view output.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"keyhunt.gg/internal/protocol"
	"keyhunt.gg/internal/sim/view"
)

func main() {
	var (
		url      = flag.String("url", "ws://127.0.0.1:8080/v1/ws", "server websocket url")
		name     = flag.String("name", "bot", "agent name")
		resume   = flag.String("resume", "", "resume token (reconnect as an existing agent)")
		duration = flag.Duration("duration", 0, "exit after this long (0 = run forever)")
		showPose = flag.Bool("poses", false, "print interpolated poses once per second")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags)

	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial %s: %v", *url, err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		AgentName:       *name,
		Capabilities:    protocol.HelloCapabilities{MaxQueue: 8},
	}
	if *resume != "" {
		hello.Auth = &protocol.HelloAuth{Token: *resume}
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send hello: %v", err)
	}

	var welcome protocol.WelcomeMsg
	if err := readExpected(conn, protocol.TypeWelcome, &welcome); err != nil {
		logger.Fatalf("welcome: %v", err)
	}
	var lay protocol.LayoutMsg
	if err := readExpected(conn, protocol.TypeLayout, &lay); err != nil {
		logger.Fatalf("layout: %v", err)
	}
	logger.Printf("joined session=%s agent=%s resume_token=%s", welcome.SessionID, welcome.AgentID, welcome.ResumeToken)

	v := view.New()
	obsCh := make(chan protocol.ObsMsg, 1)
	go func() {
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				logger.Printf("read: %v", err)
				close(obsCh)
				return
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil || base.Type != protocol.TypeObs {
				continue
			}
			var obs protocol.ObsMsg
			if err := json.Unmarshal(msg, &obs); err != nil {
				continue
			}
			v.Apply(obs)
			select {
			case obsCh <- obs:
			default:
			}
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	var deadline <-chan time.Time
	if *duration > 0 {
		deadline = time.After(*duration)
	}
	poseTicker := time.NewTicker(time.Second)
	defer poseTicker.Stop()

	reqNum := 0
	for {
		select {
		case <-stop:
			logger.Printf("bye")
			return
		case <-deadline:
			logger.Printf("duration elapsed")
			return
		case <-poseTicker.C:
			if *showPose {
				for id, p := range v.Render(0.3) {
					fmt.Printf("  %s pos=(%.2f,%.2f,%.2f) yaw=%.2f\n", id, p.Pos.X(), p.Pos.Y(), p.Pos.Z(), p.Yaw)
				}
			}
		case obs, ok := <-obsCh:
			if !ok {
				return
			}
			instants := decide(obs, welcome.SessionParams.InteractionRange, &reqNum)
			if len(instants) == 0 {
				continue
			}
			act := protocol.ActMsg{
				Type:            protocol.TypeAct,
				ProtocolVersion: protocol.Version,
				Tick:            obs.Tick,
				AgentID:         welcome.AgentID,
				Instants:        instants,
			}
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(act); err != nil {
				logger.Printf("write: %v", err)
				return
			}
		}
	}
}

// decide picks at most one instant per observation.
func decide(obs protocol.ObsMsg, reach float64, reqNum *int) []protocol.InstantReq {
	next := func(typ string) protocol.InstantReq {
		*reqNum++
		return protocol.InstantReq{ID: fmt.Sprintf("r%06d", *reqNum), Type: typ}
	}

	// Round solved: walk into an open gate to claim the win.
	if obs.Round.AllSolved {
		for _, b := range obs.Barriers {
			if !b.Open {
				continue
			}
			r := next("MOVE_TO")
			r.Target = b.Pos
			return []protocol.InstantReq{r}
		}
		return nil
	}

	if obs.Self.HeldToken != "" {
		// Carry the token to the closest locked zone of a different shape.
		var held *protocol.TokenObs
		for i := range obs.Tokens {
			if obs.Tokens[i].ID == obs.Self.HeldToken {
				held = &obs.Tokens[i]
				break
			}
		}
		if held == nil {
			return nil
		}
		bestD := math.MaxFloat64
		var best *protocol.ZoneObs
		for i := range obs.Zones {
			z := &obs.Zones[i]
			if z.Unlocked || z.Kind == held.Kind {
				continue
			}
			if d := dist2(obs.Self.Pos, z.Pos); d < bestD {
				bestD, best = d, z
			}
		}
		if best == nil {
			// Nothing this token can open; put it down for someone else.
			return []protocol.InstantReq{next("DROP")}
		}
		r := next("MOVE_TO")
		r.Target = best.Pos
		return []protocol.InstantReq{r}
	}

	// Hands free: head for the nearest available token and try to grab it.
	bestD := math.MaxFloat64
	var best *protocol.TokenObs
	for i := range obs.Tokens {
		tk := &obs.Tokens[i]
		if tk.State == "HELD" {
			continue
		}
		if d := dist2(obs.Self.Pos, tk.Pos); d < bestD {
			bestD, best = d, tk
		}
	}
	if best == nil {
		return nil
	}
	if bestD <= reach*reach {
		return []protocol.InstantReq{next("PICKUP_NEAREST")}
	}
	r := next("MOVE_TO")
	r.Target = best.Pos
	return []protocol.InstantReq{r}
}

func dist2(a, b [3]float64) float64 {
	dx := a[0] - b[0]
	dz := a[2] - b[2]
	return dx*dx + dz*dz
}

func readExpected(conn *websocket.Conn, typ string, v any) error {
	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return err
	}
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return err
	}
	if base.Type != typ {
		return fmt.Errorf("expected %s, got %s", typ, base.Type)
	}
	return json.Unmarshal(msg, v)
}
