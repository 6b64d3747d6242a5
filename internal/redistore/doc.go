// Package redistore backs the store contracts with Redis so several
// processes can share one challenge, rate-limit, lockout and idempotency
// space. Atomicity relies on Redis primitives: a Lua script for the
// check-then-count rate limiter, SET NX for first-use-wins idempotency, and
// single-key INCR/DEL for counters and records.
//
// Key reclamation is delegated to native key TTLs; no sweeper runs here.
package redistore
