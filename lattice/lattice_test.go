package lattice_test

import (
	"testing"

	"github.com/sarchlab/rdlbraid/lattice"
)

func TestWrapNegativeAndOverflow(t *testing.T) {
	cases := []struct {
		in, want lattice.Coord
	}{
		{lattice.Coord{X: -1, Y: 0, Z: 0}, lattice.Coord{X: 31, Y: 0, Z: 0}},
		{lattice.Coord{X: 32, Y: 0, Z: 0}, lattice.Coord{X: 0, Y: 0, Z: 0}},
		{lattice.Coord{X: -33, Y: 0, Z: 0}, lattice.Coord{X: 31, Y: 0, Z: 0}},
	}
	for _, c := range cases {
		got := lattice.Wrap(c.in)
		if got != c.want {
			t.Fatalf("Wrap(%+v) = %+v, want %+v", c.in, got, c.want)
		}
	}
}

func TestNodeIDRoundTrip(t *testing.T) {
	c := lattice.Coord{X: 5, Y: 17, Z: 30}
	id := lattice.NodeID(c)
	if got := lattice.CoordFromNodeID(id); got != c {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, c)
	}
}

func TestNeighborsWrapAtEdges(t *testing.T) {
	n := lattice.Neighbors(lattice.Coord{X: 0, Y: 0, Z: 0})
	foundNegX := false
	for _, c := range n {
		if c.X == 31 {
			foundNegX = true
		}
	}
	if !foundNegX {
		t.Fatalf("expected a wrapped -X neighbor at x=31, got %+v", n)
	}
}

func TestAddRemoveProcess(t *testing.T) {
	l := lattice.New()
	c := lattice.Coord{X: 1, Y: 1, Z: 1}

	if !l.AddProcess(c, 7) {
		t.Fatalf("expected AddProcess to succeed")
	}
	if l.ActiveCount() != 1 {
		t.Fatalf("expected ActiveCount()==1, got %d", l.ActiveCount())
	}
	if procs := l.ProcessesAt(c); len(procs) != 1 || procs[0] != 7 {
		t.Fatalf("expected [7], got %v", procs)
	}

	if !l.RemoveProcess(c, 7) {
		t.Fatalf("expected RemoveProcess to succeed")
	}
	if l.ActiveCount() != 0 {
		t.Fatalf("expected ActiveCount()==0 after remove, got %d", l.ActiveCount())
	}
	if l.RemoveProcess(c, 7) {
		t.Fatalf("expected second RemoveProcess of the same pid to fail")
	}
}

func TestCellCapacityEnforced(t *testing.T) {
	l := lattice.New()
	c := lattice.Coord{X: 2, Y: 2, Z: 2}
	for i := 0; i < lattice.MaxProcessesPerCell; i++ {
		if !l.AddProcess(c, uint32(i)) {
			t.Fatalf("add %d: expected success before hitting capacity", i)
		}
	}
	if l.AddProcess(c, 9999) {
		t.Fatalf("expected AddProcess to fail once cell is at capacity")
	}
}

func TestBoundarySampleCoversXZeroFace(t *testing.T) {
	l := lattice.New()
	l.AddProcess(lattice.Coord{X: 0, Y: 3, Z: 4}, 1)

	seen := false
	sample := l.BoundarySample(func(c lattice.Coord, pids []uint32) uint32 {
		if c.Y == 3 && c.Z == 4 {
			seen = true
			return uint32(len(pids))
		}
		return 0
	})
	if !seen {
		t.Fatalf("expected BoundarySample to visit (0,3,4)")
	}
	if sample[3*lattice.Size+4] != 1 {
		t.Fatalf("expected row-major (y,z) indexing, got %d", sample[3*lattice.Size+4])
	}
}

func TestResetClearsCells(t *testing.T) {
	l := lattice.New()
	l.AddProcess(lattice.Coord{X: 0, Y: 0, Z: 0}, 1)
	l.Reset()
	if l.ActiveCount() != 0 {
		t.Fatalf("expected ActiveCount()==0 after reset")
	}
	if len(l.ProcessesAt(lattice.Coord{X: 0, Y: 0, Z: 0})) != 0 {
		t.Fatalf("expected empty cell after reset")
	}
}
