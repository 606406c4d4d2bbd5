package dispatcher

import "sync/atomic"

type counters struct {
	raw           atomic.Uint64
	skipped       atomic.Uint64
	accepted      atomic.Uint64
	captureErrors atomic.Uint64
}

// Stats is a point in time copy of the loop counters
type Stats struct {
	Raw           uint64 `json:"raw"`
	Skipped       uint64 `json:"skipped"`
	Accepted      uint64 `json:"accepted"`
	CaptureErrors uint64 `json:"capture_errors"`
}

func (c *counters) Snapshot() Stats {
	return Stats{
		Raw:           c.raw.Load(),
		Skipped:       c.skipped.Load(),
		Accepted:      c.accepted.Load(),
		CaptureErrors: c.captureErrors.Load(),
	}
}
