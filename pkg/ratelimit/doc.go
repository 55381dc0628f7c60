// Package ratelimit provides scoped admission control for agent actions.
//
// # Algorithms
//
// Fixed window: a bucket holds count, burstCount and windowStart. When the
// window has elapsed the bucket resets. A request is admitted while
// count < MaxRequests and burstCount < BurstLimit.
//
// Sliding window: a bucket holds request timestamps. The current count is the
// number of timestamps in [now-window, now]. Timestamps older than the window
// plus one second are pruned on write.
//
// # Keys
//
// Buckets are keyed {limit}:{scope}:{identifier}. A missing identifier maps
// to "unknown" so anonymous requests share a bucket. Identifier segments have
// '%' and ':' percent-escaped, so distinct identifiers never share a key.
//
// # Memory
//
// Start schedules a sweep (default every 5 minutes) that deletes buckets
// idle for more than twice the largest configured window.
package ratelimit
