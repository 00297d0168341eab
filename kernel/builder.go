package kernel

import "log/slog"

// Builder constructs Kernels, mirroring the With*/Build chain used
// throughout the pack for simulation components.
type Builder struct {
	cfg Config
	log *slog.Logger
}

// NewBuilder returns a Builder preset with DefaultConfig.
func NewBuilder() Builder {
	return Builder{cfg: DefaultConfig()}
}

// WithProcessCapacity sets the process pool capacity.
func (b Builder) WithProcessCapacity(n int) Builder {
	b.cfg.ProcessCapacity = n
	return b
}

// WithEdgeCapacity sets the edge pool capacity.
func (b Builder) WithEdgeCapacity(n int) Builder {
	b.cfg.EdgeCapacity = n
	return b
}

// WithEventCapacity sets the event queue capacity.
func (b Builder) WithEventCapacity(n int) Builder {
	b.cfg.EventCapacity = n
	return b
}

// WithStagingCapacity sets the cross-thread injection staging buffer
// capacity.
func (b Builder) WithStagingCapacity(n int) Builder {
	b.cfg.StagingCapacity = n
	return b
}

// WithLogger sets the structured logger new Kernels log through.
func (b Builder) WithLogger(log *slog.Logger) Builder {
	b.log = log
	return b
}

// Build creates a Kernel named name.
func (b Builder) Build(name string) *Kernel {
	return New(name, b.cfg, b.log)
}
