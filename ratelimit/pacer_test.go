package ratelimit_test

import (
	"context"
	"testing"
	"time"

	"github.com/copyd/copyd/ratelimit"
	"github.com/stretchr/testify/assert"
)

func TestPacerUnlimitedDoesNotSleep(t *testing.T) {
	p := ratelimit.NewPacer(0)
	start := time.Now()
	p.WaitFor(context.Background(), 1<<30)
	assert.Less(t, time.Since(start), 10*time.Millisecond)
}

func TestPacerLimitedSleepsProportionally(t *testing.T) {
	p := ratelimit.NewPacer(1024) // 1KiB/s
	start := time.Now()
	p.WaitFor(context.Background(), 1024) // one second's worth, should induce some sleep
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestPacerRespectsCancellation(t *testing.T) {
	p := ratelimit.NewPacer(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	p.WaitFor(ctx, 1<<20)
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}
