package extract

import (
	"context"
	"time"

	"github.com/spherical/flyer-extractor/internal/llm"
)

// Pacer inserts the fixed pause between consecutive pages of a job.
type Pacer struct {
	delay time.Duration
	sleep func(ctx context.Context, d time.Duration) error
}

// NewPacer creates a pacer. A nil sleep waits on a timer and honours ctx.
func NewPacer(delay time.Duration, sleep func(ctx context.Context, d time.Duration) error) *Pacer {
	if sleep == nil {
		sleep = llm.SleepContext
	}
	return &Pacer{delay: delay, sleep: sleep}
}

// Pause blocks for the configured delay or until ctx is done.
func (p *Pacer) Pause(ctx context.Context) error {
	if p.delay <= 0 {
		return nil
	}
	return p.sleep(ctx, p.delay)
}
