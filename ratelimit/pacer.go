// Package ratelimit implements the copy engine's throughput pacer: a post-chunk sleep
// computed from how long a chunk "should" have taken at the configured rate, rather than
// a pre-chunk token bucket. This keeps the per-file copy loop allocation-free. The sleep
// ends early when its context is cancelled; it does not observe a job pause, which the job
// manager checks only between files.
package ratelimit

import (
	"context"
	"time"
)

// Pacer throttles a stream of chunk transfers to a target bytes-per-second rate. A zero
// BytesPerSecond means unlimited: WaitFor always returns immediately.
type Pacer struct {
	bytesPerSecond uint64
	start          time.Time
	bytesSoFar     uint64
	sleep          func(time.Duration)
}

// NewPacer constructs a Pacer targeting bytesPerSecond; 0 disables pacing entirely.
func NewPacer(bytesPerSecond uint64) *Pacer {
	return &Pacer{
		bytesPerSecond: bytesPerSecond,
		start:          time.Now(),
		sleep:          time.Sleep,
	}
}

// WaitFor accounts for n additional bytes transferred and sleeps just long enough to keep
// cumulative throughput at or below the target rate. It also serves as a context
// cancellation point: a cancelled ctx returns immediately without sleeping.
func (p *Pacer) WaitFor(ctx context.Context, n int64) {
	if p.bytesPerSecond == 0 || n <= 0 {
		return
	}
	p.bytesSoFar += uint64(n)

	shouldHaveTaken := time.Duration(float64(p.bytesSoFar) / float64(p.bytesPerSecond) * float64(time.Second))
	for {
		deficit := shouldHaveTaken - time.Since(p.start)
		if deficit <= 0 {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(clamp(deficit)):
		}
	}
}

// clamp caps a single wait, so WaitFor covers a long deficit in several sleeps and
// re-measures elapsed time between them.
func clamp(d time.Duration) time.Duration {
	const max = 250 * time.Millisecond
	if d > max {
		return max
	}
	return d
}
