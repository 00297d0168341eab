// Package lattice implements the 32x32x32 toroidal process lattice.
//
// Every axis wraps: coordinates outside [0, Size) are folded back in
// with modulo arithmetic, so the lattice has no edge cells. Each cell
// holds a small, fixed-capacity list of resident process ids; indices,
// not pointers, are what the rest of the engine holds onto, matching
// the arena-and-index discipline used throughout the kernel.
package lattice

import "fmt"

// Size is the lattice's extent along every axis.
const Size = 32

// NodeCount is the total number of addressable cells.
const NodeCount = Size * Size * Size

// MaxProcessesPerCell bounds how many processes may be pinned to a
// single cell. Exceeding it is a fatal error for the caller of
// AddProcess, per spec: cell overflow is not retried.
const MaxProcessesPerCell = 64

// Coord is a lattice cell coordinate. Components may be any integer,
// including negative; wrapping is applied on use.
type Coord struct {
	X, Y, Z int32
}

// Side names one of the six Von Neumann neighbor directions.
type Side int

const (
	PosX Side = iota
	NegX
	PosY
	NegY
	PosZ
	NegZ
)

var sideNames = [...]string{"+X", "-X", "+Y", "-Y", "+Z", "-Z"}

// Name returns the human-readable name of the side.
func (s Side) Name() string {
	if int(s) < len(sideNames) {
		return sideNames[s]
	}
	return fmt.Sprintf("Side(%d)", s)
}

// wrap folds v into [0, Size) under modulo arithmetic that also
// handles negative deltas correctly.
func wrap(v int32) int32 {
	return ((v % Size) + Size) % Size
}

// Wrap returns c with every axis folded into [0, Size).
func Wrap(c Coord) Coord {
	return Coord{X: wrap(c.X), Y: wrap(c.Y), Z: wrap(c.Z)}
}

// NodeID returns the linear node id of a (already-wrapped) coordinate,
// in [0, NodeCount).
func NodeID(c Coord) uint32 {
	c = Wrap(c)
	return uint32(c.X) + Size*uint32(c.Y) + Size*Size*uint32(c.Z)
}

// CoordFromNodeID is the inverse of NodeID.
func CoordFromNodeID(id uint32) Coord {
	x := int32(id % Size)
	y := int32((id / Size) % Size)
	z := int32(id / (Size * Size))
	return Coord{X: x, Y: y, Z: z}
}

// Neighbors returns the six Von Neumann neighbors of c, each wrapped.
func Neighbors(c Coord) [6]Coord {
	return [6]Coord{
		Wrap(Coord{c.X + 1, c.Y, c.Z}),
		Wrap(Coord{c.X - 1, c.Y, c.Z}),
		Wrap(Coord{c.X, c.Y + 1, c.Z}),
		Wrap(Coord{c.X, c.Y - 1, c.Z}),
		Wrap(Coord{c.X, c.Y, c.Z + 1}),
		Wrap(Coord{c.X, c.Y, c.Z - 1}),
	}
}

// cell holds the processes pinned to one lattice point.
type cell struct {
	processes []uint32
}

// Lattice is the 32^3 toroidal grid of cells.
type Lattice struct {
	cells [NodeCount]cell
	count int
}

// New creates an empty lattice.
func New() *Lattice {
	return &Lattice{}
}

// AddProcess appends pid to the process list of the cell at c. It
// returns false (and adds nothing) if the cell is already at
// MaxProcessesPerCell.
func (l *Lattice) AddProcess(c Coord, pid uint32) bool {
	id := NodeID(c)
	cl := &l.cells[id]
	if len(cl.processes) >= MaxProcessesPerCell {
		return false
	}
	cl.processes = append(cl.processes, pid)
	l.count++
	return true
}

// RemoveProcess erases pid from the process list of the cell at c
// using swap-and-pop. Returns false if pid was not present.
func (l *Lattice) RemoveProcess(c Coord, pid uint32) bool {
	id := NodeID(c)
	cl := &l.cells[id]
	for i, p := range cl.processes {
		if p == pid {
			last := len(cl.processes) - 1
			cl.processes[i] = cl.processes[last]
			cl.processes = cl.processes[:last]
			l.count--
			return true
		}
	}
	return false
}

// ProcessesAt returns the (shared, read-only-by-convention) slice of
// process ids resident at c.
func (l *Lattice) ProcessesAt(c Coord) []uint32 {
	return l.cells[NodeID(c)].processes
}

// ActiveCount returns the total number of (cell, pid) residencies
// across the whole lattice.
func (l *Lattice) ActiveCount() int {
	return l.count
}

// Iterate calls fn once per non-empty cell with its coordinate and
// resident process list.
func (l *Lattice) Iterate(fn func(c Coord, pids []uint32)) {
	for id := range l.cells {
		if len(l.cells[id].processes) == 0 {
			continue
		}
		fn(CoordFromNodeID(uint32(id)), l.cells[id].processes)
	}
}

// Reset clears every cell's process list without shrinking backing
// arrays further than Go's slice semantics already guarantee on
// re-append; this keeps cell-list capacity stable across resets.
func (l *Lattice) Reset() {
	for i := range l.cells {
		l.cells[i].processes = l.cells[i].processes[:0]
	}
	l.count = 0
}

// BoundarySample fills a 32x32 (Size*Size) array with one activity
// value per cell of the x=0 face, row-major in (y, z), using the
// caller-supplied activity function. This is the lattice's half of
// the "true activity sample" resolution of the boundary-extraction
// open question (see SPEC_FULL.md §9): callers pass a function that reports
// real per-cell state (e.g. outgoing edge count), not a synthetic
// hash, and the same function must be used symmetrically when a peer
// applies the resulting projection as a constraint.
func (l *Lattice) BoundarySample(activity func(c Coord, pids []uint32) uint32) [Size * Size]uint32 {
	var out [Size * Size]uint32
	for y := int32(0); y < Size; y++ {
		for z := int32(0); z < Size; z++ {
			c := Coord{X: 0, Y: y, Z: z}
			pids := l.ProcessesAt(c)
			out[y*Size+z] = activity(c, pids)
		}
	}
	return out
}
