// Package layout loads the static level layout: token spawns, unlock zones,
// gated barriers and agent spawn points. The layout is immutable for the
// lifetime of a session; its digest is part of the WELCOME handshake so
// clients can detect a mismatched level.
package layout

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Token kinds. A zone of kind K is solved by presenting any token whose kind
// differs from K ("mismatch unlocks").
const (
	KindTriangle = "TRIANGLE"
	KindSquare   = "SQUARE"
	KindCircle   = "CIRCLE"
)

type Layout struct {
	Name string `yaml:"name" json:"name"`

	// RequiredCount is the number of solved zones that unlocks the barriers.
	// Zero means "all zones".
	RequiredCount int `yaml:"required_count" json:"required_count"`

	Spawns   []SpawnDef   `yaml:"spawns" json:"spawns"`
	Tokens   []TokenDef   `yaml:"tokens" json:"tokens"`
	Zones    []ZoneDef    `yaml:"zones" json:"zones"`
	Barriers []BarrierDef `yaml:"barriers" json:"barriers"`

	digest string
}

type SpawnDef struct {
	Pos [3]float64 `yaml:"pos" json:"pos"`
}

type TokenDef struct {
	ID   string     `yaml:"id" json:"id"`
	Kind string     `yaml:"kind" json:"kind"`
	Pos  [3]float64 `yaml:"pos" json:"pos"`

	// ReleaseRadius overrides the tuning release radius for this token's
	// proximity trigger. Zero keeps the tuning value.
	ReleaseRadius float64 `yaml:"release_radius,omitempty" json:"release_radius,omitempty"`
}

type ZoneDef struct {
	ID     string     `yaml:"id" json:"id"`
	Kind   string     `yaml:"kind" json:"kind"`
	Pos    [3]float64 `yaml:"pos" json:"pos"`
	Radius float64    `yaml:"radius" json:"radius"`
}

type BarrierDef struct {
	ID   string     `yaml:"id" json:"id"`
	Pos  [3]float64 `yaml:"pos" json:"pos"`
	Half [3]float64 `yaml:"half" json:"half"`

	// RequiresGate barriers stay closed until the coordinator unlocks them.
	// Non-gated barriers open on occupancy alone.
	RequiresGate bool `yaml:"requires_gate" json:"requires_gate"`
}

var validKinds = map[string]struct{}{
	KindTriangle: {},
	KindSquare:   {},
	KindCircle:   {},
}

func Load(path string) (*Layout, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var l Layout
	if err := yaml.Unmarshal(raw, &l); err != nil {
		return nil, fmt.Errorf("layout.yaml: %w", err)
	}
	if err := l.Validate(); err != nil {
		return nil, err
	}
	l.digest = computeDigest(&l)
	return &l, nil
}

func (l *Layout) Validate() error {
	if len(l.Zones) == 0 {
		return fmt.Errorf("layout: no zones")
	}
	if l.RequiredCount < 0 || l.RequiredCount > len(l.Zones) {
		return fmt.Errorf("layout: required_count %d out of range (zones=%d)", l.RequiredCount, len(l.Zones))
	}
	if l.RequiredCount == 0 {
		l.RequiredCount = len(l.Zones)
	}
	seen := map[string]struct{}{}
	check := func(id, what string) error {
		if id == "" {
			return fmt.Errorf("layout: %s with empty id", what)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("layout: duplicate id %q", id)
		}
		seen[id] = struct{}{}
		return nil
	}
	for _, td := range l.Tokens {
		if err := check(td.ID, "token"); err != nil {
			return err
		}
		if _, ok := validKinds[td.Kind]; !ok {
			return fmt.Errorf("layout: token %s: unknown kind %q", td.ID, td.Kind)
		}
	}
	for _, zd := range l.Zones {
		if err := check(zd.ID, "zone"); err != nil {
			return err
		}
		if _, ok := validKinds[zd.Kind]; !ok {
			return fmt.Errorf("layout: zone %s: unknown kind %q", zd.ID, zd.Kind)
		}
		if zd.Radius <= 0 {
			return fmt.Errorf("layout: zone %s: radius must be positive", zd.ID)
		}
	}
	for _, bd := range l.Barriers {
		if err := check(bd.ID, "barrier"); err != nil {
			return err
		}
		for i, h := range bd.Half {
			if h <= 0 {
				return fmt.Errorf("layout: barrier %s: half[%d] must be positive", bd.ID, i)
			}
		}
	}
	return nil
}

func (l *Layout) Digest() string {
	if l.digest == "" {
		l.digest = computeDigest(l)
	}
	return l.digest
}

func computeDigest(l *Layout) string {
	b, _ := json.Marshal(l)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
