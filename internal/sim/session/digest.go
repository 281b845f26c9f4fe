package session

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// stateDigest hashes the full authoritative state at a tick. Two sessions
// fed the same join/leave/action sequence must produce identical digests;
// the replay tool relies on this.
func (s *Session) stateDigest(nowTick uint64) string {
	h := sha256.New()
	var tmp [8]byte

	digestWriteU64(h, &tmp, nowTick)
	digestWriteU64(h, &tmp, uint64(s.cfg.Seed))
	digestWriteString(h, &tmp, s.layout.Digest())

	r := s.round
	digestWriteU64(h, &tmp, uint64(r.Number))
	digestWriteU64(h, &tmp, uint64(r.SolvedCount))
	digestWriteU64(h, &tmp, uint64(r.RequiredCount))
	h.Write([]byte{boolByte(r.AllSolved)})
	digestWriteString(h, &tmp, r.Winner)
	digestWriteU64(h, &tmp, r.resetAtTick)
	digestWriteU64(h, &tmp, r.verifyResetAtTick)

	for _, id := range sortedKeys(s.tokens) {
		tk := s.tokens[id]
		digestWriteString(h, &tmp, tk.ID)
		digestWriteString(h, &tmp, tk.Kind)
		digestWriteString(h, &tmp, tk.State)
		digestWriteString(h, &tmp, tk.HeldBy)
		digestWriteVec(h, &tmp, tk.Pos)
		digestWriteF64(h, &tmp, tk.Yaw)
	}

	for _, id := range sortedKeys(s.zones) {
		z := s.zones[id]
		digestWriteString(h, &tmp, z.ID)
		digestWriteString(h, &tmp, z.Kind)
		h.Write([]byte{boolByte(z.Unlocked)})
		digestWriteU64(h, &tmp, z.SolvedTick)
	}

	for _, id := range sortedKeys(s.barriers) {
		b := s.barriers[id]
		digestWriteString(h, &tmp, b.ID)
		h.Write([]byte{boolByte(b.Open), boolByte(b.Unlocked), boolByte(b.RequiresGate)})
		digestWriteU64(h, &tmp, b.closeAtTick)
		for _, occ := range sortedKeys(b.occupants) {
			digestWriteString(h, &tmp, occ)
		}
	}

	for _, id := range sortedKeys(s.agents) {
		a := s.agents[id]
		digestWriteString(h, &tmp, a.ID)
		digestWriteString(h, &tmp, a.Name)
		digestWriteString(h, &tmp, a.HeldToken)
		digestWriteVec(h, &tmp, a.Pos)
		digestWriteF64(h, &tmp, a.Yaw)
	}

	for _, id := range sortedKeys(s.authority.holder) {
		digestWriteString(h, &tmp, id)
		digestWriteString(h, &tmp, s.authority.holder[id])
	}

	return hex.EncodeToString(h.Sum(nil))
}

func digestWriteU64(h hash.Hash, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func digestWriteF64(h hash.Hash, tmp *[8]byte, v float64) {
	digestWriteU64(h, tmp, math.Float64bits(v))
}

func digestWriteVec(h hash.Hash, tmp *[8]byte, v mgl64.Vec3) {
	digestWriteF64(h, tmp, v.X())
	digestWriteF64(h, tmp, v.Y())
	digestWriteF64(h, tmp, v.Z())
}

func digestWriteString(h hash.Hash, tmp *[8]byte, v string) {
	digestWriteU64(h, tmp, uint64(len(v)))
	h.Write([]byte(v))
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
