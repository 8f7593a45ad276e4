package main

import (
	"context"
	"math/rand"
	"time"
)

const (
	maxBackoff   = 10 * time.Second
	jitterWindow = 250 * time.Millisecond
)

// backoff doubles from base up to ceiling on consecutive failures.
type backoff struct {
	base    time.Duration
	ceiling time.Duration
	current time.Duration
}

func (b *backoff) next() time.Duration {
	if b.current <= 0 {
		b.current = b.base
	}
	b.current *= 2
	if b.current > b.ceiling {
		b.current = b.ceiling
	}
	return b.current
}

func (b *backoff) reset() { b.current = 0 }

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + time.Duration(rand.Int63n(int64(jitterWindow)))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
