package braid_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rdlbraid/braid"
	"github.com/sarchlab/rdlbraid/kernel"
	"github.com/sarchlab/rdlbraid/lattice"
	"github.com/sarchlab/rdlbraid/projection"
)

var _ = Describe("Wrapper", func() {
	var w *braid.Wrapper

	BeforeEach(func() {
		k := kernel.NewBuilder().Build("w")
		w = braid.NewWrapper(1, k, nil)
	})

	Describe("extraction", func() {
		It("produces a self-verifying projection stamped with its torus id", func() {
			k := w.Kernel
			k.SpawnProcess(0, 5, 5)

			p := w.ExtractProjection()
			Expect(p.TorusID).To(Equal(uint32(1)))
			Expect(p.Verify()).To(BeTrue())
			Expect(p.ActiveCensusCount).To(Equal(uint32(1)))
		})
	})

	Describe("integrity", func() {
		It("rejects a tampered projection without moving violation counters", func() {
			source := w.ExtractProjection()
			buf := source.Serialize()
			buf[4] ^= 0xFF
			tampered := projection.Deserialize(buf)

			before := w.BoundaryViolations
			ok := w.ApplyConstraint(tampered)

			Expect(ok).To(BeFalse())
			Expect(w.BoundaryViolations).To(Equal(before))
		})

		It("rejects a projection from a source marked failed", func() {
			source := w.ExtractProjection()
			source.Health = projection.Failed
			source.ComputeHash()

			Expect(w.ApplyConstraint(source)).To(BeFalse())
		})
	})

	Describe("apply constraint", func() {
		It("accepts a matching projection and leaves the wrapper healthy", func() {
			source := w.ExtractProjection()
			Expect(w.ApplyConstraint(source)).To(BeTrue())
			Expect(w.Health).To(Equal(projection.Healthy))
		})

		It("injects a corrective event when a boundary constraint is violated", func() {
			source := w.ExtractProjection()
			source.BoundaryConstraints[0].Expected += 50
			source.ComputeHash()

			before := w.CorrectiveEvents
			w.ApplyConstraint(source)
			Expect(w.CorrectiveEvents).To(BeNumerically(">", before))
		})
	})

	Describe("liveness", func() {
		It("reports alive within the timeout window and dead beyond it", func() {
			w.UpdateHeartbeat()
			Expect(w.IsAlive(w.Heartbeat+5, 10)).To(BeTrue())
			Expect(w.IsAlive(w.Heartbeat+50, 10)).To(BeFalse())
		})

		It("reports not alive once marked failed regardless of heartbeat", func() {
			w.UpdateHeartbeat()
			w.MarkFailed()
			Expect(w.IsAlive(w.Heartbeat, 1000)).To(BeFalse())
		})
	})

	Describe("restoration", func() {
		It("re-spawns every census process at its recorded cell", func() {
			k := w.Kernel
			k.SpawnProcess(3, 4, 5)
			k.SpawnProcess(6, 7, 8)
			snapshot := w.ExtractProjection()

			w.RestoreFromProjection(snapshot)

			Expect(w.Kernel.ProcessCount()).To(Equal(2))
			Expect(w.Health).To(Equal(projection.Healthy))
		})

		It("restores each process's accumulated state, not just its cell", func() {
			k := w.Kernel
			k.SpawnProcess(1, 1, 1)
			k.InjectEvent(1, 1, 1, 1, 1, 1, 42)
			k.Run(1)

			snapshot := w.ExtractProjection()
			Expect(snapshot.ProcessCensus[0].State).To(Equal(int32(42)))

			w.RestoreFromProjection(snapshot)

			var restoredState int32
			w.Kernel.ForEachProcess(func(pid uint32, cell lattice.Coord, state int32) {
				restoredState = state
			})
			Expect(restoredState).To(Equal(int32(42)))
		})
	})
})
