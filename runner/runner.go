// Package runner implements the parallel variant of the braid
// coordinator (§4.8): one worker goroutine per kernel, a four-party
// barrier rendezvous at every exchange, and lock-free double-buffered
// projection publication between a worker and the coordinator thread.
package runner

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/tebeka/atexit"

	"github.com/sarchlab/rdlbraid/braid"
	"github.com/sarchlab/rdlbraid/projection"

	"github.com/sarchlab/akita/v4/sim"
)

// slot is one half of a projection double buffer.
type slot struct {
	value projection.Projection
}

// buffer is a two-slot, lock-free publication channel for one
// kernel's projections. A worker writes into the inactive slot, then
// swaps published with release ordering; the coordinator loads
// published with acquire ordering and copies out of that slot. Go's
// atomic operations already carry release/acquire semantics, so no
// additional lock is needed across this boundary.
type buffer struct {
	slots     [2]slot
	published atomic.Int32
}

// publish writes p into the currently-inactive slot and swaps the
// published index, making p visible to any concurrent reader.
func (b *buffer) publish(p *projection.Projection) {
	cur := b.published.Load()
	next := 1 - cur
	b.slots[next].value = *p
	b.published.Store(next)
}

// read copies out the currently-published slot.
func (b *buffer) read() projection.Projection {
	cur := b.published.Load()
	return b.slots[cur].value
}

// unit ties a braid wrapper to an akita scheduling identity and the
// buffer it publishes its projections through. The TickingComponent
// itself drives nothing here (the kernel's own event queue is the
// real scheduler, per spec.md §4.3); it exists so every worker carries
// the same named, frequency-tagged identity the rest of the pack gives
// its simulation components.
type unit struct {
	*sim.TickingComponent
	wrapper *braid.Wrapper
	out     buffer
}

// Tick is the method sim.NewTickingComponent requires of its fourth
// argument. It is never driven by an akita engine here; a worker
// goroutine calls it directly.
func (u *unit) Tick(now sim.VTimeInSec) bool {
	return u.wrapper.Kernel.Tick()
}

// barrier is a reusable N-party rendezvous built on sync.WaitGroup.
// Since one WaitGroup cannot be re-armed while a party may still be
// blocked in Wait from the previous round, arrive swaps in a fresh
// WaitGroup for the next round under a mutex; exactly one party (the
// one that observes the swap still pending) performs the swap, so
// every round starts from a clean count of n.
type barrier struct {
	n  int
	mu sync.Mutex
	wg *sync.WaitGroup
}

func newBarrier(n int) *barrier {
	wg := &sync.WaitGroup{}
	wg.Add(n)
	return &barrier{n: n, wg: wg}
}

func (b *barrier) arrive() {
	b.mu.Lock()
	wg := b.wg
	b.mu.Unlock()

	wg.Done()
	wg.Wait()

	b.mu.Lock()
	if b.wg == wg {
		next := &sync.WaitGroup{}
		next.Add(b.n)
		b.wg = next
	}
	b.mu.Unlock()
}

// Runner drives three braid wrappers in parallel, one worker goroutine
// each, plus a fourth goroutine running the coordinator role: applying
// each worker's freshly published projection and performing failure
// detection/reconstruction/adaptive-interval bookkeeping.
type Runner struct {
	units [3]*unit
	co    *braid.Coordinator

	publishBarrier *barrier
	applyBarrier   *barrier

	stopRequested atomic.Bool
	keepGoing     atomic.Bool

	wg  sync.WaitGroup
	log *slog.Logger
}

// New builds a Runner over three wrappers, using engine purely to
// satisfy sim.NewTickingComponent's constructor (see unit's doc
// comment); it is never run directly.
func New(engine sim.Engine, freq sim.Freq, a, b, c *braid.Wrapper, interval uint64, log *slog.Logger) *Runner {
	if log == nil {
		log = slog.Default()
	}

	r := &Runner{
		co:             braid.NewCoordinator(a, b, c, interval, log),
		publishBarrier: newBarrier(4),
		applyBarrier:   newBarrier(4),
		log:            log,
	}
	r.keepGoing.Store(true)

	wrappers := [3]*braid.Wrapper{a, b, c}
	names := [3]string{"braid-worker-a", "braid-worker-b", "braid-worker-c"}
	for i, w := range wrappers {
		u := &unit{wrapper: w}
		u.TickingComponent = sim.NewTickingComponent(names[i], engine, freq, u)
		r.units[i] = u
	}

	return r
}

// Start launches the three kernel workers and the coordinator
// goroutine, and registers an atexit hook so Stop runs even if the
// embedding host process exits without calling it explicitly.
func (r *Runner) Start() {
	atexit.Register(r.Stop)

	r.wg.Add(4)
	go r.runWorker(0)
	go r.runWorker(1)
	go r.runWorker(2)
	go r.runCoordinator()
}

// Stop requests the braid to wind down at the end of its current
// exchange and blocks until every worker and the coordinator have
// exited. Safe to call more than once or before Start.
func (r *Runner) Stop() {
	r.stopRequested.Store(true)
	r.wg.Wait()
}

// Stats returns the coordinator's cumulative braid metrics.
func (r *Runner) Stats() braid.Stats {
	return r.co.Stats()
}

// runWorker drives one kernel: tick it for one interval's worth of
// virtual time, publish its projection, then arrive at the two
// per-exchange barriers so the coordinator can apply constraints
// before the next interval begins. It exits only after a lap in which
// the coordinator has signaled keepGoing=false, so every worker and
// the coordinator always complete a lap's barriers together.
func (r *Runner) runWorker(idx int) {
	defer r.wg.Done()
	u := r.units[idx]

	for {
		interval := r.co.Interval()
		for i := uint64(0); i < interval; i++ {
			if !u.wrapper.Kernel.Tick() {
				break
			}
		}
		u.wrapper.UpdateHeartbeat()

		p := u.wrapper.ExtractProjection()
		u.out.publish(p)

		r.publishBarrier.arrive()
		r.applyBarrier.arrive()

		if !r.keepGoing.Load() {
			return
		}
	}
}

// runCoordinator is the barrier's fourth party: once every worker has
// published (publishBarrier), it reads each buffer, applies the
// braid's predecessor wiring (A<-C, B<-A, C<-B), runs failure
// detection/reconstruction and interval adaptation, and — if a stop
// was requested — sets keepGoing to false before releasing the workers
// via applyBarrier. Because that write happens-before its own
// applyBarrier.arrive(), and every worker's arrive() on the same
// barrier only returns after the coordinator's does, every worker is
// guaranteed to observe the same decision this lap.
func (r *Runner) runCoordinator() {
	defer r.wg.Done()

	for {
		r.publishBarrier.arrive()

		var snapshots [3]projection.Projection
		for i, u := range r.units {
			snapshots[i] = u.out.read()
		}
		for i, u := range r.units {
			predecessor := snapshots[(i+2)%3]
			u.wrapper.ApplyConstraint(&predecessor)
		}
		r.co.Reconcile()

		if r.stopRequested.Load() {
			r.keepGoing.Store(false)
		}

		r.applyBarrier.arrive()

		if !r.keepGoing.Load() {
			return
		}
	}
}
