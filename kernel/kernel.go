// Package kernel implements the single-node RDL kernel: a tick loop
// over a 32^3 toroidal lattice, driven by a time-ordered event queue,
// backed by fixed-capacity pools for processes, edges, and events.
//
// A Kernel is thread-affine: every exported method except InjectEvent
// must be called from the single goroutine that owns it. InjectEvent
// is the one cross-goroutine entry point, guarded by a short mutex
// that only ever touches the staging buffer (see FlushPendingEvents).
package kernel

import (
	"log/slog"
	"sync"

	"github.com/sarchlab/rdlbraid/event"
	"github.com/sarchlab/rdlbraid/lattice"
	"github.com/sarchlab/rdlbraid/pool"
	"github.com/sarchlab/rdlbraid/telemetry"
)

// Process and Edge are the pool package's concrete element types
// (see pool.Process, pool.Edge); aliased here so kernel's own code
// reads naturally.
type Process = pool.Process
type Edge = pool.Edge

// Config sizes a Kernel's fixed-capacity pools and staging buffer.
type Config struct {
	ProcessCapacity int
	EdgeCapacity    int
	EventCapacity   int
	StagingCapacity int
}

// DefaultConfig returns capacities sized for well-formed workloads
// (bounded cascade depth x batch size) that will not overflow.
func DefaultConfig() Config {
	return Config{
		ProcessCapacity: 8192,
		EdgeCapacity:    32768,
		EventCapacity:   65536,
		StagingCapacity: 4096,
	}
}

// Kernel is the RDL execution engine owning one lattice, one event
// queue, and the pools backing its processes and edges.
type Kernel struct {
	Name string

	processes *pool.ProcessPool
	edges     *pool.EdgePool
	queue     *event.Queue
	space     *lattice.Lattice

	currentTime     uint64
	sequence        uint64
	eventsProcessed uint64
	overflowCount   uint64

	stagingMu sync.Mutex
	staging   []event.Event
	stagingCp int

	log *slog.Logger
}

// New constructs a Kernel with all pools preallocated to cfg's
// capacities; no further growth ever occurs.
func New(name string, cfg Config, log *slog.Logger) *Kernel {
	if log == nil {
		log = slog.Default()
	}
	return &Kernel{
		Name:      name,
		processes: pool.NewProcessPool(cfg.ProcessCapacity),
		edges:     pool.NewEdgePool(cfg.EdgeCapacity),
		queue:     event.NewQueue(cfg.EventCapacity),
		space:     lattice.New(),
		staging:   make([]event.Event, 0, cfg.StagingCapacity),
		stagingCp: cfg.StagingCapacity,
		log:       log.With("kernel", name),
	}
}

// SpawnProcess acquires a process slot and pins it to (x, y, z),
// wrapping the coordinate. Fails if either the process pool or the
// destination cell is full.
func (k *Kernel) SpawnProcess(x, y, z int32) (bool, uint32) {
	idx, ok := k.processes.Acquire()
	if !ok {
		return false, pool.Invalid
	}

	cell := lattice.Wrap(lattice.Coord{X: x, Y: y, Z: z})
	if !k.space.AddProcess(cell, idx) {
		k.processes.Release(idx)
		return false, pool.Invalid
	}

	proc := k.processes.Get(idx)
	proc.ID = idx
	proc.Cell = cell
	proc.EdgeHead = pool.Invalid

	return true, idx
}

// findProcessInCell resolves the process at cell with the smallest
// id, the deterministic "first by id" tie-break rule spec.md requires
// whenever multiple processes occupy the same cell.
func (k *Kernel) findProcessInCell(cell lattice.Coord) (uint32, bool) {
	pids := k.space.ProcessesAt(cell)
	if len(pids) == 0 {
		return pool.Invalid, false
	}
	best := pids[0]
	for _, p := range pids[1:] {
		if p < best {
			best = p
		}
	}
	return best, true
}

// CreateEdge resolves the processes pinned to srcCell/dstCell
// (first-by-id if several share a cell), acquires an edge slot, and
// links it into the source's out-list. Fails if either endpoint is
// absent or the edge pool is full.
func (k *Kernel) CreateEdge(srcX, srcY, srcZ, dstX, dstY, dstZ int32, delay uint64) bool {
	srcCell := lattice.Wrap(lattice.Coord{X: srcX, Y: srcY, Z: srcZ})
	dstCell := lattice.Wrap(lattice.Coord{X: dstX, Y: dstY, Z: dstZ})

	srcPid, ok := k.findProcessInCell(srcCell)
	if !ok {
		return false
	}
	dstPid, ok := k.findProcessInCell(dstCell)
	if !ok {
		return false
	}

	idx, ok := k.edges.Acquire()
	if !ok {
		return false
	}

	src := k.processes.Get(srcPid)
	e := k.edges.Get(idx)
	e.Src = srcPid
	e.Dst = dstPid
	e.Delay = delay
	e.Next = src.EdgeHead

	src.EdgeHead = idx
	src.EdgeCount++

	return true
}

// InjectEvent creates an event timestamped at current_time+1 and
// appends it to the injection staging buffer, guarded by a mutex so
// any goroutine may call this concurrently. The event is not visible
// to Tick/Run until FlushPendingEvents moves it into the main queue.
func (k *Kernel) InjectEvent(dstX, dstY, dstZ, srcX, srcY, srcZ int32, payload int32) bool {
	dst := lattice.Wrap(lattice.Coord{X: dstX, Y: dstY, Z: dstZ})
	src := lattice.Wrap(lattice.Coord{X: srcX, Y: srcY, Z: srcZ})

	k.stagingMu.Lock()
	defer k.stagingMu.Unlock()

	if len(k.staging) >= k.stagingCp {
		return false
	}

	// Sequence and timestamp are assigned against currentTime/sequence
	// as observed under the lock, so two concurrent injectors serialize
	// their sequence numbers against each other here. The owning thread
	// may advance currentTime (in Tick, after its flush) before this
	// event is flushed, so its timestamp can end up behind currentTime;
	// Tick's max() keeps virtual time non-decreasing in that case.
	k.sequence++
	k.staging = append(k.staging, event.Event{
		Timestamp: k.currentTime + 1,
		Sequence:  k.sequence,
		DestCell:  dst,
		SrcCell:   src,
		Payload:   payload,
	})
	return true
}

// FlushPendingEvents moves every staged event into the main heap. It
// is called automatically at the start of every Tick, and may also be
// called directly by the owning thread.
func (k *Kernel) FlushPendingEvents() {
	k.stagingMu.Lock()
	pending := k.staging
	k.staging = make([]event.Event, 0, k.stagingCp)
	k.stagingMu.Unlock()

	for _, e := range pending {
		if !k.queue.Push(e) {
			k.overflowCount++
			k.log.Warn("event queue overflow on flush", "dest", e.DestCell)
		}
	}
}

// activityOf reports the outgoing-edge-count activity of a cell's
// resident processes, mod 256 — the "true activity sample" resolution
// of the boundary-extraction open question (see SPEC_FULL.md §9). Used
// identically by the braid wrapper's extract and apply paths.
func (k *Kernel) activityOf(_ lattice.Coord, pids []uint32) uint32 {
	var total uint32
	for _, pid := range pids {
		total += k.processes.Get(pid).EdgeCount
	}
	return total % 256
}

// FillBoundaryStates writes one activity value per cell of the x=0
// face, row-major in (y, z), into out. out must have length
// lattice.Size*lattice.Size.
func (k *Kernel) FillBoundaryStates(out []uint32) {
	sample := k.space.BoundarySample(k.activityOf)
	copy(out, sample[:])
}

// deliver applies the per-cell reducer and emits follow-up events for
// every outgoing edge of every process at the destination cell.
func (k *Kernel) deliver(e event.Event) {
	pids := k.space.ProcessesAt(e.DestCell)
	for _, pid := range pids {
		proc := k.processes.Get(pid)
		proc.State += e.Payload

		edgeIdx := proc.EdgeHead
		for edgeIdx != pool.Invalid {
			edge := k.edges.Get(edgeIdx)
			dst := k.processes.Get(edge.Dst)

			k.sequence++
			follow := event.Event{
				Timestamp: k.currentTime + edge.Delay,
				Sequence:  k.sequence,
				DestCell:  dst.Cell,
				SrcCell:   e.DestCell,
				Payload:   e.Payload + 1,
			}
			if !k.queue.Push(follow) {
				k.overflowCount++
				k.log.Warn("event queue overflow on delivery", "dest", follow.DestCell)
			}

			edgeIdx = edge.Next
		}
	}
}

// Tick flushes pending injections, then pops and delivers exactly one
// event if the queue is non-empty. It returns whether an event was
// delivered.
func (k *Kernel) Tick() bool {
	k.FlushPendingEvents()

	e, ok := k.queue.Pop()
	if !ok {
		return false
	}

	if e.Timestamp > k.currentTime {
		k.currentTime = e.Timestamp
	}
	k.deliver(e)
	k.eventsProcessed++

	return true
}

// Run executes Tick until either maxEvents new events have been
// delivered or the queue (after flushing) is empty. It returns the
// number of events delivered in this call, not lifetime.
func (k *Kernel) Run(maxEvents int) int {
	delivered := 0
	for delivered < maxEvents {
		if !k.Tick() {
			break
		}
		delivered++
	}
	return delivered
}

// EventsProcessed returns the lifetime count of delivered events.
func (k *Kernel) EventsProcessed() uint64 { return k.eventsProcessed }

// CurrentTime returns the kernel's virtual time.
func (k *Kernel) CurrentTime() uint64 { return k.currentTime }

// ProcessCount returns the number of live processes.
func (k *Kernel) ProcessCount() int { return k.processes.Len() }

// PendingEvents returns the number of events currently queued (not
// counting un-flushed staged injections).
func (k *Kernel) PendingEvents() int { return k.queue.Len() }

// EdgeCount returns the number of live edges.
func (k *Kernel) EdgeCount() int { return k.edges.Len() }

// OverflowCount returns the lifetime count of non-fatal queue-full
// events recorded during delivery or flush.
func (k *Kernel) OverflowCount() uint64 { return k.overflowCount }

// ForEachProcess calls fn once per currently live process, in pool
// index order. Used by the braid wrapper to populate a projection's
// process census.
func (k *Kernel) ForEachProcess(fn func(pid uint32, cell lattice.Coord, state int32)) {
	k.processes.Each(func(idx uint32, p *Process) {
		fn(idx, p.Cell, p.State)
	})
}

// ProcessState returns the accumulated state of pid, or 0 if unknown.
func (k *Kernel) ProcessState(pid uint32) int32 {
	if !k.processes.InUse(pid) {
		return 0
	}
	return k.processes.Get(pid).State
}

// SetProcessState overwrites pid's accumulated state. Used to complete
// restoration from a projection's process census, whose entries carry
// state alongside pid and cell.
func (k *Kernel) SetProcessState(pid uint32, state int32) {
	if !k.processes.InUse(pid) {
		return
	}
	k.processes.Get(pid).State = state
}

// Telemetry returns the stable four-field telemetry struct. MemoryUsed
// is the deterministic sum of pool/queue backing bytes, which is
// unchanged by Reset (spec.md §8's bounded-memory property).
func (k *Kernel) Telemetry() telemetry.Telemetry {
	return telemetry.Telemetry{
		EventsProcessed: k.eventsProcessed,
		CurrentTime:     k.currentTime,
		ProcessCount:    uint64(k.processes.Len()),
		MemoryUsed:      uint64(k.BackingBytes()),
	}
}

// BackingBytes is the total byte size of every pool/queue backing
// array, constant across the kernel's lifetime.
func (k *Kernel) BackingBytes() uintptr {
	return k.processes.BackingBytes() + k.edges.BackingBytes() + k.queue.BackingBytes()
}

// Reset logically clears processes, edges, events, and counters while
// preserving every pool's backing storage, so the next SpawnProcess
// reuses the same memory. Per SPEC_FULL.md §9's resolution of spec.md §9's
// open question, Reset clears both state and telemetry counters.
func (k *Kernel) Reset() {
	k.processes.Reset()
	k.edges.Reset()
	k.queue.Reset()
	k.space.Reset()

	k.stagingMu.Lock()
	k.staging = k.staging[:0]
	k.stagingMu.Unlock()

	k.currentTime = 0
	k.sequence = 0
	k.eventsProcessed = 0
	k.overflowCount = 0

	k.log.Info("kernel reset")
}
