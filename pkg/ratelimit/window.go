package ratelimit

import "time"

// bucket is the counting state of one limit for one identifier.
//
// Fixed windows use count, burstCount and windowStart. Sliding windows keep
// ascending request timestamps.
type bucket struct {
	limitID     string
	algorithm   Algorithm
	count       int
	burstCount  int
	windowStart time.Time
	timestamps  []time.Time
}

// usage returns the requests counted at now and when capacity frees up,
// without mutating the bucket.
func (b *bucket) usage(cfg *Config, now time.Time) (count, burst int, resetAt time.Time) {
	switch cfg.Algorithm {
	case AlgorithmSliding:
		cutoff := now.Add(-cfg.Window)
		var oldest time.Time
		for _, ts := range b.timestamps {
			if ts.Before(cutoff) || ts.After(now) {
				continue
			}
			if count == 0 {
				oldest = ts
			}
			count++
		}
		if count == 0 {
			return 0, 0, now.Add(cfg.Window)
		}
		return count, count, oldest.Add(cfg.Window)

	default:
		if b.windowStart.IsZero() || now.Sub(b.windowStart) >= cfg.Window {
			return 0, 0, now.Add(cfg.Window)
		}
		return b.count, b.burstCount, b.windowStart.Add(cfg.Window)
	}
}

// record counts one request at now.
func (b *bucket) record(cfg *Config, now time.Time) {
	switch cfg.Algorithm {
	case AlgorithmSliding:
		b.timestamps = append(b.timestamps, now)
		b.prune(cfg.Window, now)
		b.count = len(b.timestamps)
		b.burstCount = b.count

	default:
		if b.windowStart.IsZero() || now.Sub(b.windowStart) >= cfg.Window {
			b.count = 0
			b.burstCount = 0
			b.windowStart = now
		}
		b.count++
		b.burstCount++
	}
}

// prune drops sliding timestamps older than window plus a grace second.
func (b *bucket) prune(window time.Duration, now time.Time) {
	cutoff := now.Add(-(window + slidingGrace))
	i := 0
	for ; i < len(b.timestamps); i++ {
		if !b.timestamps[i].Before(cutoff) {
			break
		}
	}
	if i > 0 {
		b.timestamps = append(b.timestamps[:0], b.timestamps[i:]...)
	}
}

// lastActivity is the reference time the sweep compares against.
func (b *bucket) lastActivity() time.Time {
	if b.algorithm == AlgorithmSliding {
		if len(b.timestamps) == 0 {
			return time.Time{}
		}
		return b.timestamps[len(b.timestamps)-1]
	}
	return b.windowStart
}
