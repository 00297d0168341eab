// Package projection implements the fixed-layout, integrity-hashed
// summary exchanged between braided kernels.
//
// The wire layout is fixed, little-endian, and unpadded: identity,
// counters, boundary sample, boundary constraints, global constraints,
// a legacy constraint vector, heartbeat+health, process census, and
// finally a 64-bit FNV-1a hash over everything before it, except that
// only every hashSampleStride-th boundary cell is hashed. Serializing
// and deserializing are bit-for-bit inverses of each other on
// well-formed input; a mismatched buffer size yields the sentinel
// torus id InvalidTorusID rather than an error, per spec.
package projection

import (
	"bytes"
	"encoding/binary"
	"hash/fnv"
)

// Health is the wrapper's health status, carried in every projection.
type Health uint32

const (
	Healthy Health = iota
	Degraded
	Failed
)

// Global constraint kinds.
const (
	EventConservation uint32 = iota
	TimeSync
	LoadBalance
	globalConstraintSlots = 4 // three canonical kinds + one inactive slot
)

const (
	// BoundarySampleLen is the number of cells sampled from the x=0 face.
	BoundarySampleLen = 32 * 32
	// BoundaryConstraintCount is N in spec's "N boundary constraints".
	BoundaryConstraintCount = 32
	// CensusCap is the maximum number of process-census entries carried.
	CensusCap = 64
	// ConstraintVectorLen is the legacy 16 x int32 constraint vector.
	ConstraintVectorLen = 16

	// hashSampleStride strides the boundary array when computing the
	// integrity hash, bounding hash cost to a few hundred bytes
	// regardless of BoundarySampleLen.
	hashSampleStride = 8

	// InvalidTorusID marks a projection produced by a failed
	// deserialize (size mismatch): consumers must treat it as invalid.
	InvalidTorusID uint32 = 0xFFFFFFFF

	// InvalidPID is the census sentinel for an unused slot.
	InvalidPID uint32 = 0xFFFFFFFF
)

// BoundaryConstraint names one expected boundary-cell value.
type BoundaryConstraint struct {
	CellIndex uint32
	Expected  uint32
	Tolerance uint32
}

// GlobalConstraint names one expected aggregate counter value.
type GlobalConstraint struct {
	Kind      uint32
	Active    uint32 // 1 if this slot is in use, 0 otherwise
	Expected  int64
	Tolerance int64
}

// CensusEntry records one active process as of the projection's
// snapshot time.
type CensusEntry struct {
	PID   uint32
	Cell  uint32 // linear node id, see lattice.NodeID
	State int32
}

// Projection is the fixed-size summary exchanged between kernels.
type Projection struct {
	// Identity
	TorusID   uint32
	LocalTime uint64

	// Counters
	TotalEventsProcessed uint64
	CurrentTime          uint64
	ActiveProcesses      uint32
	PendingEvents        uint32
	EdgeCount            uint32

	// Boundary sample: x=0 face, row-major (y, z).
	BoundarySample [BoundarySampleLen]uint32

	// Constraints
	BoundaryConstraints [BoundaryConstraintCount]BoundaryConstraint
	GlobalConstraints   [globalConstraintSlots]GlobalConstraint
	ConstraintVector    [ConstraintVectorLen]int32

	// Liveness
	Heartbeat uint64
	Health    Health

	// Process census
	ProcessCensus     [CensusCap]CensusEntry
	ActiveCensusCount uint32

	// Integrity
	Hash uint64
}

// New returns a Projection with every census slot marked unused.
func New() *Projection {
	p := &Projection{}
	for i := range p.ProcessCensus {
		p.ProcessCensus[i].PID = InvalidPID
	}
	return p
}

// InitializeBoundaryConstraints samples BoundaryConstraintCount cells
// of the current boundary at a fixed stride, recording the current
// value as "expected" with the supplied tolerance.
func (p *Projection) InitializeBoundaryConstraints(tolerance uint32) {
	stride := BoundarySampleLen / BoundaryConstraintCount
	for i := 0; i < BoundaryConstraintCount; i++ {
		cellIdx := uint32(i * stride)
		p.BoundaryConstraints[i] = BoundaryConstraint{
			CellIndex: cellIdx,
			Expected:  p.BoundarySample[cellIdx],
			Tolerance: tolerance,
		}
	}
}

// Default conservative tolerances for the canonical global constraints.
const (
	DefaultEventToleranceAbs = 1000
	DefaultTimeToleranceAbs  = 1000
	DefaultLoadToleranceAbs  = 100
)

// InitializeGlobalConstraints fills the three canonical global
// constraint entries from the projection's own counters; the fourth
// slot is left inactive.
func (p *Projection) InitializeGlobalConstraints() {
	p.GlobalConstraints[0] = GlobalConstraint{
		Kind: EventConservation, Active: 1,
		Expected: int64(p.TotalEventsProcessed), Tolerance: DefaultEventToleranceAbs,
	}
	p.GlobalConstraints[1] = GlobalConstraint{
		Kind: TimeSync, Active: 1,
		Expected: int64(p.CurrentTime), Tolerance: DefaultTimeToleranceAbs,
	}
	p.GlobalConstraints[2] = GlobalConstraint{
		Kind: LoadBalance, Active: 1,
		Expected: int64(p.ActiveProcesses), Tolerance: DefaultLoadToleranceAbs,
	}
	p.GlobalConstraints[3] = GlobalConstraint{Active: 0}
}

// writeBody writes every field except Hash, in layout order, to w.
func writeBody(w *bytes.Buffer, p *Projection) {
	_ = binary.Write(w, binary.LittleEndian, p.TorusID)
	_ = binary.Write(w, binary.LittleEndian, p.LocalTime)
	_ = binary.Write(w, binary.LittleEndian, p.TotalEventsProcessed)
	_ = binary.Write(w, binary.LittleEndian, p.CurrentTime)
	_ = binary.Write(w, binary.LittleEndian, p.ActiveProcesses)
	_ = binary.Write(w, binary.LittleEndian, p.PendingEvents)
	_ = binary.Write(w, binary.LittleEndian, p.EdgeCount)
	_ = binary.Write(w, binary.LittleEndian, p.BoundarySample)
	_ = binary.Write(w, binary.LittleEndian, p.BoundaryConstraints)
	_ = binary.Write(w, binary.LittleEndian, p.GlobalConstraints)
	_ = binary.Write(w, binary.LittleEndian, p.ConstraintVector)
	_ = binary.Write(w, binary.LittleEndian, p.Heartbeat)
	_ = binary.Write(w, binary.LittleEndian, p.Health)
	_ = binary.Write(w, binary.LittleEndian, p.ProcessCensus)
	_ = binary.Write(w, binary.LittleEndian, p.ActiveCensusCount)
}

// computeHashBytes computes the FNV-1a hash over a strided subset of
// the layout-order byte stream: the identity, counters, and every
// hashSampleStride-th boundary cell, followed by the remaining fields
// unstrided.
func computeHashBytes(p *Projection) uint64 {
	h := fnv.New64a()

	var head bytes.Buffer
	_ = binary.Write(&head, binary.LittleEndian, p.TorusID)
	_ = binary.Write(&head, binary.LittleEndian, p.LocalTime)
	_ = binary.Write(&head, binary.LittleEndian, p.TotalEventsProcessed)
	_ = binary.Write(&head, binary.LittleEndian, p.CurrentTime)
	_ = binary.Write(&head, binary.LittleEndian, p.ActiveProcesses)
	_ = binary.Write(&head, binary.LittleEndian, p.PendingEvents)
	_ = binary.Write(&head, binary.LittleEndian, p.EdgeCount)
	_, _ = h.Write(head.Bytes())

	var sampled bytes.Buffer
	for i := 0; i < BoundarySampleLen; i += hashSampleStride {
		_ = binary.Write(&sampled, binary.LittleEndian, p.BoundarySample[i])
	}
	_, _ = h.Write(sampled.Bytes())

	var tail bytes.Buffer
	_ = binary.Write(&tail, binary.LittleEndian, p.BoundaryConstraints)
	_ = binary.Write(&tail, binary.LittleEndian, p.GlobalConstraints)
	_ = binary.Write(&tail, binary.LittleEndian, p.ConstraintVector)
	_ = binary.Write(&tail, binary.LittleEndian, p.Heartbeat)
	_ = binary.Write(&tail, binary.LittleEndian, p.Health)
	_ = binary.Write(&tail, binary.LittleEndian, p.ProcessCensus)
	_ = binary.Write(&tail, binary.LittleEndian, p.ActiveCensusCount)
	_, _ = h.Write(tail.Bytes())

	return h.Sum64()
}

// ComputeHash recomputes and sets p.Hash. Call this last, after every
// other field has been populated.
func (p *Projection) ComputeHash() {
	p.Hash = computeHashBytes(p)
}

// Verify reports whether p.Hash matches a fresh recomputation.
func (p *Projection) Verify() bool {
	return p.Hash == computeHashBytes(p)
}

// Serialize writes the fixed-layout wire form of p.
func (p *Projection) Serialize() []byte {
	var buf bytes.Buffer
	writeBody(&buf, p)
	_ = binary.Write(&buf, binary.LittleEndian, p.Hash)
	return buf.Bytes()
}

// Size is the exact byte length of a serialized Projection.
var Size = len((&Projection{}).Serialize())

// Deserialize parses buf into a Projection. On a buffer-size mismatch
// it returns a Projection whose TorusID is InvalidTorusID instead of
// an error, matching spec's "invalid/under-sized buffer" contract.
func Deserialize(buf []byte) *Projection {
	if len(buf) != Size {
		return &Projection{TorusID: InvalidTorusID}
	}

	r := bytes.NewReader(buf)
	p := &Projection{}
	_ = binary.Read(r, binary.LittleEndian, &p.TorusID)
	_ = binary.Read(r, binary.LittleEndian, &p.LocalTime)
	_ = binary.Read(r, binary.LittleEndian, &p.TotalEventsProcessed)
	_ = binary.Read(r, binary.LittleEndian, &p.CurrentTime)
	_ = binary.Read(r, binary.LittleEndian, &p.ActiveProcesses)
	_ = binary.Read(r, binary.LittleEndian, &p.PendingEvents)
	_ = binary.Read(r, binary.LittleEndian, &p.EdgeCount)
	_ = binary.Read(r, binary.LittleEndian, &p.BoundarySample)
	_ = binary.Read(r, binary.LittleEndian, &p.BoundaryConstraints)
	_ = binary.Read(r, binary.LittleEndian, &p.GlobalConstraints)
	_ = binary.Read(r, binary.LittleEndian, &p.ConstraintVector)
	_ = binary.Read(r, binary.LittleEndian, &p.Heartbeat)
	_ = binary.Read(r, binary.LittleEndian, &p.Health)
	_ = binary.Read(r, binary.LittleEndian, &p.ProcessCensus)
	_ = binary.Read(r, binary.LittleEndian, &p.ActiveCensusCount)
	_ = binary.Read(r, binary.LittleEndian, &p.Hash)

	return p
}
