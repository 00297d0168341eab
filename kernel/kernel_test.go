package kernel_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rdlbraid/kernel"
)

var _ = Describe("Kernel", func() {
	var k *kernel.Kernel

	BeforeEach(func() {
		k = kernel.NewBuilder().Build("test")
	})

	Describe("deterministic delivery count", func() {
		It("delivers exactly the injected events", func() {
			for x := int32(0); x < 10; x++ {
				ok, _ := k.SpawnProcess(x, 0, 0)
				Expect(ok).To(BeTrue())
			}

			Expect(k.InjectEvent(9, 0, 0, 9, 0, 0, 1)).To(BeTrue())
			Expect(k.InjectEvent(9, 0, 0, 9, 0, 0, 2)).To(BeTrue())

			delivered := k.Run(10)
			Expect(delivered).To(Equal(2))
			Expect(k.EventsProcessed()).To(Equal(uint64(2)))
		})
	})

	Describe("budget respect", func() {
		It("honors max_events across successive Run calls", func() {
			ok, _ := k.SpawnProcess(9, 0, 0)
			Expect(ok).To(BeTrue())

			for i := 0; i < 10; i++ {
				Expect(k.InjectEvent(9, 0, 0, 9, 0, 0, int32(i))).To(BeTrue())
			}

			Expect(k.Run(5)).To(Equal(5))
			Expect(k.Run(10)).To(Equal(5))
			Expect(k.EventsProcessed()).To(Equal(uint64(10)))
		})
	})

	Describe("ordering", func() {
		It("delivers same-timestamp events in insertion order", func() {
			ok, pid := k.SpawnProcess(0, 0, 0)
			Expect(ok).To(BeTrue())

			Expect(k.InjectEvent(0, 0, 0, 0, 0, 0, 10)).To(BeTrue())
			Expect(k.InjectEvent(0, 0, 0, 0, 0, 0, 5)).To(BeTrue())
			Expect(k.InjectEvent(0, 0, 0, 0, 0, 0, 1)).To(BeTrue())

			k.Tick()
			Expect(k.ProcessState(pid)).To(Equal(int32(10)))
			k.Tick()
			Expect(k.ProcessState(pid)).To(Equal(int32(15)))
			k.Tick()
			Expect(k.ProcessState(pid)).To(Equal(int32(16)))
		})
	})

	Describe("edge delay and follow-up emission", func() {
		It("emits a follow-up event after the edge's delay", func() {
			_, _ = k.SpawnProcess(0, 0, 0)
			_, _ = k.SpawnProcess(1, 0, 0)

			Expect(k.CreateEdge(0, 0, 0, 1, 0, 0, 3)).To(BeTrue())
			Expect(k.InjectEvent(0, 0, 0, 0, 0, 0, 7)).To(BeTrue())

			Expect(k.Tick()).To(BeTrue())
			Expect(k.CurrentTime()).To(Equal(uint64(1)))
			Expect(k.PendingEvents()).To(Equal(1))

			Expect(k.Tick()).To(BeTrue())
			Expect(k.CurrentTime()).To(Equal(uint64(4)))
		})
	})

	Describe("reset", func() {
		It("clears processes, events, and counters, and reuses memory", func() {
			before := k.Telemetry().MemoryUsed

			_, _ = k.SpawnProcess(0, 0, 0)
			Expect(k.InjectEvent(0, 0, 0, 0, 0, 0, 1)).To(BeTrue())
			k.Run(10)

			k.Reset()

			Expect(k.ProcessCount()).To(Equal(0))
			Expect(k.EventsProcessed()).To(Equal(uint64(0)))
			Expect(k.CurrentTime()).To(Equal(uint64(0)))
			Expect(k.Telemetry().MemoryUsed).To(Equal(before))

			ok, pid := k.SpawnProcess(0, 0, 0)
			Expect(ok).To(BeTrue())
			Expect(pid).To(Equal(uint32(0)))
		})
	})

	Describe("determinism", func() {
		It("produces identical state across two independently driven kernels", func() {
			k1 := kernel.NewBuilder().Build("k1")
			k2 := kernel.NewBuilder().Build("k2")

			run := func(kk *kernel.Kernel) {
				for x := int32(0); x < 5; x++ {
					_, _ = kk.SpawnProcess(x, 0, 0)
				}
				Expect(kk.CreateEdge(0, 0, 0, 1, 0, 0, 2)).To(BeTrue())
				Expect(kk.InjectEvent(0, 0, 0, 0, 0, 0, 3)).To(BeTrue())
				Expect(kk.InjectEvent(4, 0, 0, 4, 0, 0, 9)).To(BeTrue())
				kk.Run(20)
			}

			run(k1)
			run(k2)

			Expect(k1.EventsProcessed()).To(Equal(k2.EventsProcessed()))
			Expect(k1.CurrentTime()).To(Equal(k2.CurrentTime()))
			Expect(k1.ProcessCount()).To(Equal(k2.ProcessCount()))
			for pid := uint32(0); pid < 5; pid++ {
				Expect(k1.ProcessState(pid)).To(Equal(k2.ProcessState(pid)))
			}
		})
	})

	Describe("invalid process lookups", func() {
		It("returns 0 for an unknown pid without panicking", func() {
			Expect(k.ProcessState(999)).To(Equal(int32(0)))
		})
	})
})
