package braid

import (
	"log/slog"

	"github.com/sarchlab/rdlbraid/lattice"
	"github.com/sarchlab/rdlbraid/projection"
)

// Braid-level adaptive-interval bounds.
const (
	MinBraidInterval uint64 = 100
	MaxBraidInterval uint64 = 10000
)

// Thresholds governing adaptiveInterval's shrink/grow decision, and
// the minimum number of completed cycles before it engages at all.
const (
	shrinkViolationRate   = 0.05
	growViolationRate     = 0.025
	intervalAdjustPercent = 20
	minCyclesForAdaption  = 10
)

// Stats is the braid-level metrics snapshot exposed by the
// coordinator, accumulated across the braid's whole lifetime.
type Stats struct {
	BraidCycles             uint64
	ProjectionExchanges     uint64
	FailuresDetected        uint64
	Reconstructions         uint64
	Migrations              uint64
	CurrentInterval         uint64
	TotalBoundaryViolations uint64
	TotalGlobalViolations   uint64
	CorrectiveEvents        uint64
}

// Coordinator drives the three-node cyclic braid A->B->C->A: each
// cycle, every wrapper extracts a projection and applies its
// predecessor's, heartbeats are refreshed, and liveness is checked for
// possible reconstruction.
type Coordinator struct {
	wrappers [3]*Wrapper

	interval        uint64
	heartbeatTimeout uint64

	lastProjections [3]*projection.Projection

	braidCycles         uint64
	projectionExchanges uint64
	failuresDetected    uint64
	reconstructions     uint64
	migrations          uint64

	currentTick uint64

	log *slog.Logger
}

// NewCoordinator builds a coordinator over exactly three wrappers,
// indexed A=0, B=1, C=2, with the given initial braid interval.
func NewCoordinator(a, b, c *Wrapper, interval uint64, log *slog.Logger) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{
		wrappers:        [3]*Wrapper{a, b, c},
		interval:        interval,
		heartbeatTimeout: interval * 3,
		log:             log,
	}
}

// Run advances the braid by ticks coordinator ticks. Each tick calls
// Tick once on every wrapper's kernel that is not marked failed, and a
// braid exchange and recovery check is performed every time
// currentTick crosses a multiple of the (adaptive) interval.
func (co *Coordinator) Run(ticks uint64) {
	for i := uint64(0); i < ticks; i++ {
		for _, w := range co.wrappers {
			if w.Health != projection.Failed {
				w.Kernel.Tick()
			}
		}
		co.currentTick++
		if co.currentTick%co.interval != 0 {
			continue
		}
		co.performBraidExchange()
		co.detectAndRecover()
		co.adaptiveInterval()
	}
}

// performBraidExchange extracts every wrapper's projection, caches it,
// refreshes heartbeats, then applies each predecessor's projection to
// its successor in the cycle A->B, B->C, C->A.
func (co *Coordinator) performBraidExchange() {
	for i, w := range co.wrappers {
		co.lastProjections[i] = w.ExtractProjection()
		w.UpdateHeartbeat()
	}

	for i, w := range co.wrappers {
		predecessor := co.lastProjections[(i+2)%3]
		w.ApplyConstraint(predecessor)
		co.projectionExchanges++
	}

	co.braidCycles++
}

// detectAndRecover checks every wrapper's liveness against the
// coordinator's notion of "now" (the maximum heartbeat across the
// braid) and reconstructs any newly-failed wrapper while 2-of-3
// survive.
func (co *Coordinator) detectAndRecover() {
	var now uint64
	for _, w := range co.wrappers {
		if w.Heartbeat > now {
			now = w.Heartbeat
		}
	}

	for i, w := range co.wrappers {
		if w.Health != projection.Failed {
			if w.IsAlive(now, co.heartbeatTimeout) {
				continue
			}
			w.MarkFailed()
			co.failuresDetected++
		}

		// w is failed, whether just detected above or left over from a
		// prior cycle: retry reconstruction every exchange until it
		// succeeds or the braid drops below 2-of-3 survival.
		survivors := 0
		for j, other := range co.wrappers {
			if j != i && other.Health != projection.Failed {
				survivors++
			}
		}
		if survivors >= 2 {
			co.reconstruct(i)
		} else {
			co.log.Error("braid below 2-of-3 survival, cannot reconstruct", "torus_id", i)
		}
	}
}

// reconstruct migrates every active process recorded in the failed
// torus's last projection onto the two surviving wrappers, round-robin,
// then restores the failed wrapper itself from the freshest surviving
// projection available (preferring its direct predecessor in the
// cycle).
func (co *Coordinator) reconstruct(idx int) {
	predecessor := (idx + 2) % 3
	source := co.lastProjections[predecessor]
	if source == nil || !source.Verify() {
		for j, p := range co.lastProjections {
			if j != idx && p != nil && p.Verify() {
				source = p
				break
			}
		}
	}
	if source == nil {
		co.log.Error("no verifiable projection available for reconstruction", "torus_id", idx)
		return
	}

	migrated := co.migrateCensus(idx)

	co.wrappers[idx].RestoreFromProjection(source)
	co.migrations += migrated
	co.reconstructions++

	co.log.Info("reconstructed torus", "torus_id", idx, "processes_migrated", migrated)
}

// migrateCensus round-robin spawns every active process entry in the
// failed torus idx's own last projection onto the surviving wrappers'
// kernels, restoring each process's recorded state. It returns the
// number of processes actually migrated.
func (co *Coordinator) migrateCensus(idx int) uint64 {
	failed := co.lastProjections[idx]
	if failed == nil {
		return 0
	}

	survivors := make([]*Wrapper, 0, 2)
	for j, w := range co.wrappers {
		if j != idx && w.Health != projection.Failed {
			survivors = append(survivors, w)
		}
	}
	if len(survivors) == 0 {
		return 0
	}

	var migrated uint64
	for i := uint32(0); i < failed.ActiveCensusCount; i++ {
		entry := failed.ProcessCensus[i]
		if entry.PID == projection.InvalidPID {
			continue
		}

		target := survivors[int(migrated)%len(survivors)]
		c := lattice.CoordFromNodeID(entry.Cell)
		ok, pid := target.Kernel.SpawnProcess(c.X, c.Y, c.Z)
		if !ok {
			continue
		}
		target.Kernel.SetProcessState(pid, entry.State)
		migrated++
	}

	return migrated
}

// adaptiveInterval tightens or relaxes the braid interval based on the
// cumulative violation rate observed so far, per spec's shrink-by-20%/
// grow-by-20% rule with floor MinBraidInterval and ceiling
// MaxBraidInterval. It only engages once at least minCyclesForAdaption
// cycles have completed, to avoid reacting to early noise.
func (co *Coordinator) adaptiveInterval() {
	if co.braidCycles < minCyclesForAdaption {
		return
	}

	var violations uint64
	for _, w := range co.wrappers {
		violations += w.BoundaryViolations + w.GlobalViolations
	}
	rate := float64(violations) / float64(co.braidCycles)

	switch {
	case rate > shrinkViolationRate:
		next := co.interval - (co.interval * intervalAdjustPercent / 100)
		if next < MinBraidInterval {
			next = MinBraidInterval
		}
		co.interval = next
	case rate < growViolationRate:
		next := co.interval + (co.interval * intervalAdjustPercent / 100)
		if next > MaxBraidInterval {
			next = MaxBraidInterval
		}
		co.interval = next
	}

	co.heartbeatTimeout = co.interval * 3
}

// Reconcile runs the failure-detection/reconstruction and
// adaptive-interval bookkeeping for one exchange whose extraction and
// constraint application already happened elsewhere (the parallel
// runner's workers do this directly against their double buffers
// rather than through performBraidExchange).
func (co *Coordinator) Reconcile() {
	co.braidCycles++
	co.projectionExchanges += 3
	co.detectAndRecover()
	co.adaptiveInterval()
}

// Interval returns the braid's current adaptive interval.
func (co *Coordinator) Interval() uint64 {
	return co.interval
}

// PerformExchange runs exactly one extract/apply exchange across all
// three wrappers, without any failure detection or interval
// adaptation. Exposed for embedders that want the braid handle's
// perform_braid_exchange operation directly (spec.md §6).
func (co *Coordinator) PerformExchange() {
	co.performBraidExchange()
}

// DetectAndRecover runs exactly one liveness check and, for any
// failed wrapper while 2-of-3 survive, a reconstruction attempt.
// Exposed for the braid handle's detect_and_recover operation.
func (co *Coordinator) DetectAndRecover() {
	co.detectAndRecover()
}

// Stats returns a snapshot of the braid's cumulative metrics.
func (co *Coordinator) Stats() Stats {
	var boundary, global, corrective uint64
	for _, w := range co.wrappers {
		boundary += w.BoundaryViolations
		global += w.GlobalViolations
		corrective += w.CorrectiveEvents
	}
	return Stats{
		BraidCycles:             co.braidCycles,
		ProjectionExchanges:     co.projectionExchanges,
		FailuresDetected:        co.failuresDetected,
		Reconstructions:         co.reconstructions,
		Migrations:              co.migrations,
		CurrentInterval:         co.interval,
		TotalBoundaryViolations: boundary,
		TotalGlobalViolations:   global,
		CorrectiveEvents:        corrective,
	}
}

// Wrapper returns the wrapper at braid index i (0=A, 1=B, 2=C).
func (co *Coordinator) Wrapper(i int) *Wrapper {
	return co.wrappers[i]
}
