package ledger

import (
	"math/rand"
	"sync"
	"time"
)

// Backoff computes retry delays: base doubled per attempt, capped, plus up to 20% jitter.
type Backoff struct {
	Base time.Duration
	Max  time.Duration

	mu     sync.Mutex
	source *rand.Rand
}

func NewBackoff(base, max time.Duration) *Backoff {
	if base <= 0 {
		base = 30 * time.Second
	}
	if max < base {
		max = base
	}
	return &Backoff{Base: base, Max: max, source: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// Delay returns the wait before the given attempt (1-based) is retried.
func (b *Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := b.Base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= b.Max {
			delay = b.Max
			break
		}
	}
	window := int64(delay / 5)
	if window <= 0 {
		return delay
	}
	b.mu.Lock()
	jitter := time.Duration(b.source.Int63n(window))
	b.mu.Unlock()
	return delay + jitter
}
