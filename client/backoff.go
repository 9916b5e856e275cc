package client

import "time"

// backoff returns the wait before reconnect attempt n (1-based): base,
// doubling each attempt, never more than ceiling.
func backoff(n int, base, ceiling time.Duration) time.Duration {
	if n < 1 {
		n = 1
	}
	d := base
	for i := 1; i < n; i++ {
		d *= 2
		if d >= ceiling {
			return ceiling
		}
	}
	if d > ceiling {
		return ceiling
	}
	return d
}
