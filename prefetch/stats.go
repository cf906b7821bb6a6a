package prefetch

import (
	"sync/atomic"
	"time"
)

// Stats summarises an engine's work so far.
type Stats struct {
	// Batches is the number of fills that completed successfully.
	Batches uint64
	// Wraps counts how often the cursor ran off the end of the manifest.
	Wraps uint64
	// PlanTime is the total time spent drawing samples and resolving paths;
	// LoadTime the total time spent decoding and transforming frames.
	PlanTime time.Duration
	LoadTime time.Duration
}

// counters are written by the worker and read by Stats.
type counters struct {
	batches atomic.Uint64
	wraps   atomic.Uint64
	plan    atomic.Int64
	load    atomic.Int64
}

func (c *counters) add(st fillStats) {
	c.batches.Add(1)
	c.wraps.Add(uint64(st.wraps))
	c.plan.Add(int64(st.plan))
	c.load.Add(int64(st.load))
}

func (c *counters) snapshot() Stats {
	return Stats{
		Batches:  c.batches.Load(),
		Wraps:    c.wraps.Load(),
		PlanTime: time.Duration(c.plan.Load()),
		LoadTime: time.Duration(c.load.Load()),
	}
}
