package world

import (
	"encoding/binary"
	"encoding/hex"
	"math"
	"sort"

	"lukechampine.com/blake3"

	modelpkg "factorysim.ai/internal/sim/world/kernel/model"
)

// stateDigest hashes everything that influences future ticks, in id order.
func (w *World) stateDigest(nowTick uint64) string {
	h := blake3.New(32, nil)
	var tmp [8]byte

	digestWriteU64(h, &tmp, nowTick)
	w.digestStructures(h, &tmp)
	w.digestPorters(h, &tmp)
	w.digestGrids(h, &tmp)
	h.Write([]byte(w.routes.Digest()))

	return hex.EncodeToString(h.Sum(nil))
}

// StateDigest is the digest of the current state. Not safe to call concurrently with Run.
func (w *World) StateDigest() string { return w.stateDigest(w.tick.Load()) }

func (w *World) digestStructures(h hashWriter, tmp *[8]byte) {
	for _, s := range w.structures {
		if !s.Alive() {
			continue
		}
		digestWriteU64(h, tmp, uint64(s.ID))
		h.Write([]byte(s.DefID))
		digestWriteI64(h, tmp, int64(s.Pos.X))
		digestWriteI64(h, tmp, int64(s.Pos.Y))
		h.Write([]byte(s.RecipeID))
		h.Write([]byte{byte(s.Machine.State), boolByte(s.Powered), boolByte(s.Working), boolByte(s.Machine.Stalled)})
		digestWriteU64(h, tmp, s.Machine.Remaining)
		digestWriteU64(h, tmp, s.Machine.Cycles)
		digestWriteU64(h, tmp, uint64(s.Grid))
		digestWriteU64(h, tmp, s.DispatchTicks)
		writeItemMap(h, tmp, s.Input)
		writeItemMap(h, tmp, s.Output)
	}
}

func (w *World) digestPorters(h hashWriter, tmp *[8]byte) {
	digestWriteU64(h, tmp, uint64(len(w.porters)))
	for _, p := range w.porters {
		digestWriteU64(h, tmp, uint64(p.ID))
		h.Write([]byte(p.Resource))
		digestWriteU64(h, tmp, uint64(p.Origin))
		digestWriteU64(h, tmp, uint64(p.Dest))
		digestWriteU64(h, tmp, p.TTL)
		digestWriteU64(h, tmp, math.Float64bits(p.X))
		digestWriteU64(h, tmp, math.Float64bits(p.Y))
		digestWriteU64(h, tmp, uint64(len(p.Path)))
	}
}

func (w *World) digestGrids(h hashWriter, tmp *[8]byte) {
	for _, gid := range w.power.GridIDs() {
		g := w.power.Grid(gid)
		digestWriteU64(h, tmp, uint64(gid))
		digestWriteI64(h, tmp, int64(g.Production))
		digestWriteI64(h, tmp, int64(g.Consumption))
		digestWriteU64(h, tmp, uint64(len(g.Members)))
		for _, m := range g.Members {
			digestWriteU64(h, tmp, uint64(m))
		}
	}
}

func digestWriteU64(h hashWriter, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func digestWriteI64(h hashWriter, tmp *[8]byte, v int64) {
	digestWriteU64(h, tmp, uint64(v))
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// writeItemMap writes non-zero entries in key order.
func writeItemMap(h hashWriter, tmp *[8]byte, m modelpkg.Inventory) {
	keys := make([]string, 0, len(m))
	for k, v := range m {
		if v != 0 {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	digestWriteU64(h, tmp, uint64(len(keys)))
	for _, k := range keys {
		h.Write([]byte(k))
		digestWriteI64(h, tmp, int64(m[k]))
	}
}

type hashWriter interface {
	Write(p []byte) (n int, err error)
}
