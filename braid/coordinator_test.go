package braid_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rdlbraid/braid"
	"github.com/sarchlab/rdlbraid/kernel"
	"github.com/sarchlab/rdlbraid/projection"
)

func newTestWrapper(id uint32) *braid.Wrapper {
	k := kernel.NewBuilder().Build("braid-test")
	return braid.NewWrapper(id, k, nil)
}

var _ = Describe("Coordinator", func() {
	var a, b, c *braid.Wrapper
	var co *braid.Coordinator

	BeforeEach(func() {
		a = newTestWrapper(0)
		b = newTestWrapper(1)
		c = newTestWrapper(2)
		co = braid.NewCoordinator(a, b, c, 100, nil)
	})

	Describe("braid exchange", func() {
		It("advances cycle count and exchanges on every wrapper", func() {
			co.Run(100)
			stats := co.Stats()
			Expect(stats.BraidCycles).To(Equal(uint64(1)))
			Expect(stats.ProjectionExchanges).To(Equal(uint64(3)))
		})

		It("refreshes every wrapper's heartbeat each cycle", func() {
			a.Kernel.SpawnProcess(0, 0, 0)
			a.Kernel.InjectEvent(0, 0, 0, 0, 0, 0, 1)
			a.Kernel.Run(1)

			co.Run(100)
			Expect(a.Heartbeat).To(Equal(a.Kernel.CurrentTime()))
		})
	})

	Describe("reconstruction", func() {
		It("reconstructs a failed torus from a surviving neighbor within one exchange", func() {
			b.Kernel.SpawnProcess(1, 1, 1)
			co.Run(100) // populate lastProjections from a healthy braid first

			co.Wrapper(2).MarkFailed()

			co.Run(100)

			stats := co.Stats()
			Expect(stats.Reconstructions).To(BeNumerically(">=", uint64(1)))
			Expect(co.Wrapper(2).Health).To(Equal(projection.Healthy))
		})

		It("round-robin migrates the failed torus's active processes onto the surviving wrappers", func() {
			c.Kernel.SpawnProcess(2, 2, 2)
			co.Run(100) // populate lastProjections, including c's own census

			aBefore := a.Kernel.ProcessCount()
			bBefore := b.Kernel.ProcessCount()

			co.Wrapper(2).MarkFailed()
			co.Run(100)

			Expect(a.Kernel.ProcessCount() + b.Kernel.ProcessCount()).
				To(BeNumerically(">", aBefore+bBefore))
			Expect(co.Stats().Migrations).To(BeNumerically(">=", uint64(1)))
		})
	})

	Describe("adaptive interval", func() {
		It("shrinks the interval once a sustained violation rate is observed", func() {
			// Start above the floor so a shrink is observable.
			co = braid.NewCoordinator(a, b, c, 1000, nil)
			for i := 0; i < 12; i++ {
				a.BoundaryViolations += 10
			}
			initial := co.Stats().CurrentInterval

			for i := 0; i < minCyclesPlusOne; i++ {
				co.Run(co.Stats().CurrentInterval)
			}

			Expect(co.Stats().CurrentInterval).To(BeNumerically("<", initial))
		})

		It("never shrinks the interval below the floor", func() {
			a.BoundaryViolations = 100000
			for i := 0; i < 50; i++ {
				co.Run(co.Stats().CurrentInterval)
			}
			Expect(co.Stats().CurrentInterval).To(BeNumerically(">=", braid.MinBraidInterval))
		})
	})
})

const minCyclesPlusOne = 11
