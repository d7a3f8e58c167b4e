// Package server throttles inbound frames per connection so one client
// cannot flood the coordinator.
package server

import (
	"time"

	"golang.org/x/time/rate"
)

// newMessageLimiter builds a token bucket that admits burst messages per
// refill interval, with the full burst available up front.
func newMessageLimiter(burst int, interval time.Duration) *rate.Limiter {
	if burst <= 0 {
		burst = 1
	}
	if interval <= 0 {
		interval = time.Second
	}
	return rate.NewLimiter(rate.Limit(float64(burst)/interval.Seconds()), burst)
}
