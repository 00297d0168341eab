// Package telemetry defines the embedding API's stable telemetry
// struct and an auxiliary host-resource sampler.
package telemetry

import "github.com/shirou/gopsutil/v3/process"

// Telemetry is the four-field struct returned by the embedding API's
// telemetry call, in the stable order spec.md §6 specifies.
type Telemetry struct {
	EventsProcessed uint64
	CurrentTime     uint64
	ProcessCount    uint64
	MemoryUsed      uint64
}

// HostStats is an auxiliary, non-authoritative snapshot of the
// engine's host process, used only for operational logging. It is
// deliberately kept out of Telemetry.MemoryUsed: live RSS fluctuates
// with GC and unrelated allocations, which would violate the
// bounded-memory testable property that MemoryUsed (pool-backing
// bytes) must satisfy.
type HostStats struct {
	ResidentBytes uint64
	Sampled       bool
}

// HostSampler abstracts the source SampleHostStatsVia reads from, so
// callers can substitute a fake process table in tests instead of
// depending on the real OS.
//
//go:generate mockgen -write_package_comment=false -package=telemetry_test -destination=mock_sampler_test.go github.com/sarchlab/rdlbraid/telemetry HostSampler
type HostSampler interface {
	// ResidentBytes reports the sampled process's RSS. ok is false if
	// the sample could not be taken.
	ResidentBytes() (bytes uint64, ok bool)
}

// gopsutilSampler is the default HostSampler, backed by the real
// process table via gopsutil.
type gopsutilSampler struct {
	pid int32
}

func (s gopsutilSampler) ResidentBytes() (uint64, bool) {
	proc, err := process.NewProcess(s.pid)
	if err != nil {
		return 0, false
	}

	info, err := proc.MemoryInfo()
	if err != nil || info == nil {
		return 0, false
	}

	return info.RSS, true
}

// SampleHostStats reads the current process's resident set size via
// gopsutil. If the sample fails (e.g. /proc is unavailable in a
// sandboxed environment), Sampled is false and ResidentBytes is zero.
func SampleHostStats() HostStats {
	return SampleHostStatsVia(gopsutilSampler{pid: int32(processPID())})
}

// SampleHostStatsVia samples through an arbitrary HostSampler.
func SampleHostStatsVia(s HostSampler) HostStats {
	bytes, ok := s.ResidentBytes()
	if !ok {
		return HostStats{}
	}
	return HostStats{ResidentBytes: bytes, Sampled: true}
}
