// Package engine is the embedding façade (§6): a thin, total,
// builder-constructed API over a single kernel or a three-kernel
// braid, in the shape of the teacher's own Driver/DriverBuilder
// surface (api/driver.go, api/builder.go) — every call on a live (not
// yet destroyed) handle returns a value (bool, count, struct), never an
// error or a panic, matching
// spec.md §7's "the kernel surface is total" propagation policy.
package engine

import (
	"log/slog"

	"github.com/sarchlab/rdlbraid/kernel"
	"github.com/sarchlab/rdlbraid/telemetry"
)

// Kernel is a handle over one RDL kernel, exposing exactly the
// embedding API table of spec.md §6.
type Kernel struct {
	k *kernel.Kernel
}

// Create allocates a new kernel handle named name, with all pools
// preallocated to kernel.DefaultConfig's capacities.
func Create(name string, log *slog.Logger) *Kernel {
	return &Kernel{k: kernel.NewBuilder().WithLogger(log).Build(name)}
}

// CreateWithConfig allocates a new kernel handle with custom pool
// capacities.
func CreateWithConfig(name string, cfg kernel.Config, log *slog.Logger) *Kernel {
	return &Kernel{k: kernel.New(name, cfg, log)}
}

// Destroy releases the handle's reference to its kernel. Go's pools
// are plain slices backed by the garbage collector rather than
// manually managed memory, so there is nothing to free explicitly;
// Destroy exists to give embedders a symmetric create/destroy pair and
// to make the handle unusable for further calls: any call on the
// handle after Destroy dereferences a nil kernel and panics.
func (h *Kernel) Destroy() {
	h.k = nil
}

// SpawnProcess allocates a process pinned to (x, y, z), wrapping the
// coordinate. Returns false if either the process pool or destination
// cell is full.
func (h *Kernel) SpawnProcess(x, y, z int32) bool {
	ok, _ := h.k.SpawnProcess(x, y, z)
	return ok
}

// CreateEdge links the process at src to the process at dst with the
// given delay. Returns false if either endpoint is absent or the edge
// pool is full.
func (h *Kernel) CreateEdge(srcX, srcY, srcZ, dstX, dstY, dstZ int32, delay uint64) bool {
	return h.k.CreateEdge(srcX, srcY, srcZ, dstX, dstY, dstZ, delay)
}

// InjectEvent stages an event for delivery at current_time+1. Safe to
// call from any goroutine.
func (h *Kernel) InjectEvent(dstX, dstY, dstZ, srcX, srcY, srcZ int32, payload int32) bool {
	return h.k.InjectEvent(dstX, dstY, dstZ, srcX, srcY, srcZ, payload)
}

// Run delivers up to maxEvents events and returns how many were
// delivered in this call.
func (h *Kernel) Run(maxEvents int) int {
	return h.k.Run(maxEvents)
}

// Telemetry returns the stable four-field telemetry snapshot.
func (h *Kernel) Telemetry() telemetry.Telemetry {
	return h.k.Telemetry()
}

// GetProcessState returns pid's accumulated state, or 0 if unknown.
func (h *Kernel) GetProcessState(pid uint32) int32 {
	return h.k.ProcessState(pid)
}

// Underlying exposes the wrapped kernel for callers (notably the
// braid/runner packages) that need direct access beyond this façade.
func (h *Kernel) Underlying() *kernel.Kernel {
	return h.k
}
