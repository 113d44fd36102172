// Package cache implements the capability cache: a generic expiring map keyed by opaque
// strings.
//
// Every entry carries exactly one [Expiry]. An [Absolute] expiry counts from the write and
// never moves. A [Sliding] expiry is pushed forward by every successful [Store.Get], so an
// entry that keeps being read stays alive.
//
// Expired entries are indistinguishable from absent ones. They are dropped lazily when a
// lookup finds them and in bulk by [Store.Sweep], which the optional janitor goroutine
// calls on a fixed interval.
//
// Lookups never fail: a miss is reported as "absent" through the ok result.
package cache
