package realtime

import "time"

// Default reconnect policy
const (
	DefaultBackoffBase = time.Second
	DefaultBackoffMax  = 30 * time.Second
)

// Backoff computes exponential reconnect delays
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// DefaultBackoff returns min(30s, 1s * 2^retry)
func DefaultBackoff() Backoff {
	return Backoff{Base: DefaultBackoffBase, Max: DefaultBackoffMax}
}

// Delay returns min(Max, Base * 2^retry). It never overflows for large retry counts.
func (b Backoff) Delay(retry int) time.Duration {
	if retry < 0 {
		retry = 0
	}
	if b.Base <= 0 {
		return 0
	}
	d := b.Base
	for i := 0; i < retry; i++ {
		if b.Max > 0 && d >= b.Max {
			return b.Max
		}
		if d > time.Duration(1<<62)/2 {
			d = time.Duration(1<<63 - 1)
			break
		}
		d *= 2
	}
	if b.Max > 0 && d > b.Max {
		return b.Max
	}
	return d
}
