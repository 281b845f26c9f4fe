// Package view is the replica-side cosmetic layer: it keeps the last
// replicated snapshot and interpolates displayed poses toward it on the
// client's own render pass. It never feeds anything back into the
// authoritative state and reading it requires no coordination with the
// server tick.
package view

import (
	"math"
	"sync"

	"github.com/go-gl/mathgl/mgl64"

	"keyhunt.gg/internal/protocol"
)

type Pose struct {
	Pos mgl64.Vec3
	Yaw float64
}

type View struct {
	mu sync.Mutex

	last      protocol.ObsMsg
	haveObs   bool
	displayed map[string]Pose
}

func New() *View {
	return &View{displayed: map[string]Pose{}}
}

// Apply stores the latest authoritative snapshot. Snapshots arrive whole:
// a replica never observes a partial state between two ticks.
func (v *View) Apply(obs protocol.ObsMsg) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.last = obs
	v.haveObs = true
}

// Latest returns the last applied snapshot.
func (v *View) Latest() (protocol.ObsMsg, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.last, v.haveObs
}

// Render advances every displayed pose a fraction of the way toward its
// replicated target. alpha is the interpolation factor for this render
// frame, 0..1; 1 snaps to the authoritative pose.
func (v *View) Render(alpha float64) map[string]Pose {
	v.mu.Lock()
	defer v.mu.Unlock()

	alpha = mgl64.Clamp(alpha, 0, 1)
	if !v.haveObs {
		return map[string]Pose{}
	}

	targets := make(map[string]Pose, len(v.last.Tokens)+len(v.last.Agents))
	for _, tk := range v.last.Tokens {
		targets[tk.ID] = Pose{Pos: mgl64.Vec3{tk.Pos[0], tk.Pos[1], tk.Pos[2]}, Yaw: tk.Yaw}
	}
	for _, a := range v.last.Agents {
		targets[a.ID] = Pose{Pos: mgl64.Vec3{a.Pos[0], a.Pos[1], a.Pos[2]}, Yaw: a.Yaw}
	}

	for id := range v.displayed {
		if _, ok := targets[id]; !ok {
			delete(v.displayed, id)
		}
	}

	out := make(map[string]Pose, len(targets))
	for id, target := range targets {
		cur, ok := v.displayed[id]
		if !ok {
			cur = target
		} else {
			cur.Pos = cur.Pos.Add(target.Pos.Sub(cur.Pos).Mul(alpha))
			cur.Yaw = lerpAngle(cur.Yaw, target.Yaw, alpha)
		}
		v.displayed[id] = cur
		out[id] = cur
	}
	return out
}

func lerpAngle(from, to, alpha float64) float64 {
	d := math.Mod(to-from+3*math.Pi, 2*math.Pi) - math.Pi
	return from + d*alpha
}
