package session

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"keyhunt.gg/internal/protocol"
)

func TestAuthority_HostParkedCapabilityIsGranted(t *testing.T) {
	s := newTestSession(t)
	a := join(t, s, "a")

	act(s, a, protocol.InstantReq{ID: "r1", Type: "REQUEST_AUTHORITY", TargetID: "Z_SQ"})

	if got := s.authority.HolderOf("Z_SQ"); got != a.ID {
		t.Fatalf("holder: got %q want %q", got, a.ID)
	}
	if n := countEvents(a, "AUTHORITY_GRANTED"); n != 1 {
		t.Fatalf("AUTHORITY_GRANTED events: got %d want 1", n)
	}

	// Re-requesting a capability you already hold is a silent no-op.
	act(s, a, protocol.InstantReq{ID: "r2", Type: "REQUEST_AUTHORITY", TargetID: "Z_SQ"})
	if n := countEvents(a, "AUTHORITY_GRANTED"); n != 1 {
		t.Fatalf("idempotent re-request emitted an event: %d", n)
	}
}

func TestAuthority_HeldCapabilityIsDenied(t *testing.T) {
	s := newTestSession(t)
	a := join(t, s, "a")
	b := join(t, s, "b")

	makeAvailable(t, s, "T_CIR")
	moveAgent(a, mgl64.Vec3{29, 0, 0})
	act(s, a, protocol.InstantReq{ID: "r1", Type: "PICKUP", TargetID: "T_CIR"})

	act(s, b, protocol.InstantReq{ID: "r2", Type: "REQUEST_AUTHORITY", TargetID: "T_CIR"})

	if got := s.authority.HolderOf("T_CIR"); got != a.ID {
		t.Fatalf("holder changed hands: got %q want %q", got, a.ID)
	}
	if n := countEvents(b, "AUTHORITY_DENIED"); n != 1 {
		t.Fatalf("AUTHORITY_DENIED events: got %d want 1", n)
	}
}

func TestAuthority_UnknownObjectIsRejected(t *testing.T) {
	s := newTestSession(t)
	a := join(t, s, "a")

	act(s, a, protocol.InstantReq{ID: "r1", Type: "REQUEST_AUTHORITY", TargetID: "NOPE"})

	found := false
	for _, e := range a.Events {
		if e["type"] == "REQUEST_REJECTED" && e["code"] == protocol.ErrInvalidTarget {
			found = true
		}
	}
	if !found {
		t.Fatalf("missing E_INVALID_TARGET rejection: %+v", a.Events)
	}
}

func TestAuthority_DepartureMigratesEverythingToHost(t *testing.T) {
	s := newTestSession(t)
	a := join(t, s, "a")

	act(s, a, protocol.InstantReq{ID: "r1", Type: "REQUEST_AUTHORITY", TargetID: "Z_SQ"})
	act(s, a, protocol.InstantReq{ID: "r2", Type: "REQUEST_AUTHORITY", TargetID: "B_EXIT"})
	if got := len(s.authority.heldBy(a.ID)); got != 2 {
		t.Fatalf("setup: held %d capabilities, want 2", got)
	}

	s.step(nil, []string{a.ID}, nil)

	if got := len(s.authority.holder); got != 0 {
		t.Fatalf("capabilities survived departure: %v", s.authority.holder)
	}
}
