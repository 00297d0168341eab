package engine

import (
	"log/slog"
	"time"

	"github.com/rs/xid"

	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/rdlbraid/braid"
	"github.com/sarchlab/rdlbraid/kernel"
	"github.com/sarchlab/rdlbraid/runner"
)

// BraidStats mirrors braid.Stats in the embedding API's naming
// (spec.md §6's statistics row uses snake_case concept names; this
// struct is the Go-native equivalent the façade returns).
type BraidStats = braid.Stats

// Braid is a handle over a three-kernel braid: construction, access to
// each kernel's own handle, sequential or parallel driving, and the
// cumulative metrics named in spec.md's braid handle row.
type Braid struct {
	// ID opaquely correlates this braid instance across log lines and
	// external callers, the way a request or trace id would.
	ID xid.ID

	kernels [3]*Kernel
	co      *braid.Coordinator
	r       *runner.Runner

	log *slog.Logger
}

// NewBraid constructs a braid over three freshly created kernels with
// the given initial exchange interval.
func NewBraid(initialInterval uint64, log *slog.Logger) *Braid {
	if log == nil {
		log = slog.Default()
	}
	id := xid.New()
	log = log.With("braid_id", id.String())

	ka := Create("torus-a", log)
	kb := Create("torus-b", log)
	kc := Create("torus-c", log)

	wa := braid.NewWrapper(0, ka.k, log)
	wb := braid.NewWrapper(1, kb.k, log)
	wc := braid.NewWrapper(2, kc.k, log)

	return &Braid{
		ID:      id,
		kernels: [3]*Kernel{ka, kb, kc},
		co:      braid.NewCoordinator(wa, wb, wc, initialInterval, log),
		log:     log,
	}
}

// Kernel returns the handle for braid index i (0=A, 1=B, 2=C).
func (br *Braid) Kernel(i int) *Kernel {
	return br.kernels[i]
}

// Run drives the braid sequentially for ticks virtual-time units,
// performing an exchange (and recovery/adaptation pass) every time the
// adaptive interval is crossed. Use this, not Start, unless true
// worker parallelism is needed.
func (br *Braid) Run(ticks uint64) {
	br.co.Run(ticks)
}

// PerformBraidExchange runs exactly one extract/apply exchange across
// all three kernels.
func (br *Braid) PerformBraidExchange() {
	br.co.PerformExchange()
}

// DetectAndRecover runs exactly one liveness check and reconstruction
// attempt.
func (br *Braid) DetectAndRecover() {
	br.co.DetectAndRecover()
}

// Start launches the parallel runner: one worker goroutine per
// kernel plus a coordinator goroutine, synchronized by a four-party
// barrier every exchange. engine/freq are the akita scheduling
// identity each worker's TickingComponent is constructed with (see
// runner.New); a fresh in-process serial engine is the usual choice
// since no akita engine run loop actually drives these components.
func (br *Braid) Start(simEngine sim.Engine, freq sim.Freq) {
	br.r = runner.New(simEngine, freq, br.co.Wrapper(0), br.co.Wrapper(1), br.co.Wrapper(2), br.co.Interval(), br.log)
	br.r.Start()
}

// Stop tears down the parallel runner, blocking until its worker and
// coordinator goroutines have exited. A no-op if Start was never
// called.
func (br *Braid) Stop() {
	if br.r != nil {
		br.r.Stop()
	}
}

// RunFor starts the parallel runner, lets it run for duration, then
// stops it and returns its cumulative stats.
func (br *Braid) RunFor(simEngine sim.Engine, freq sim.Freq, duration time.Duration) BraidStats {
	br.Start(simEngine, freq)
	time.Sleep(duration)
	br.Stop()
	return br.Stats()
}

// Stats returns the braid's cumulative statistics. Before Start is
// called these come from the coordinator Run drives sequentially.
// Once Start has been called they come from the parallel runner's own
// coordinator, which runner.New builds fresh with zeroed counters, so
// metrics accumulated by earlier sequential Run calls are not included.
func (br *Braid) Stats() BraidStats {
	if br.r != nil {
		return br.r.Stats()
	}
	return br.co.Stats()
}

// Close tears down the braid's parallel runner, if any, and destroys
// every kernel handle. Grounded on api/driver.go's total Driver
// surface, extended here with an explicit teardown step the teacher's
// own Driver never needed (its lifetime was the whole process).
func (br *Braid) Close() {
	br.Stop()
	for _, k := range br.kernels {
		k.Destroy()
	}
}

// underlyingKernels exposes the three raw kernels for code in this
// package that needs to drive them directly rather than through the
// façade. Nothing calls it at present.
func (br *Braid) underlyingKernels() [3]*kernel.Kernel {
	return [3]*kernel.Kernel{br.kernels[0].k, br.kernels[1].k, br.kernels[2].k}
}
