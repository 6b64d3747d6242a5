// Package otpgate implements a one-time-password second-factor challenge
// core for authorizing sensitive actions: issue a short random code to a
// principal over an external channel, then verify a single submission of it.
//
// The engine composes four time-windowed, concurrency-safe stores (a
// fixed-window rate limiter, an idempotency key store, a lockout tracker, and
// the challenge state store) into one request/verify protocol with these
// guarantees:
//
//   - at most one live challenge per principal; a new request supersedes
//   - issuance is rate limited per principal and per source IP
//   - duplicate client retries are absorbed by idempotency keys
//   - repeated verification failures trip a per-principal lockout
//   - every record expires and self-cleans without an external scheduler
//
// # Architecture boundaries
//
// otpgate is a library, not a service: it has no wire protocol and is invoked
// in-process. Delivery of the code (SMS, push) is an injected [Sender];
// numeric limits come from an injected [SettingsProvider] read at call time;
// structured events go to an injected [AuditSink]. The backing stores are the
// contracts in the store package: the default is in-process, a Redis client
// switches all four to a shared backing, and any contract can be replaced
// individually through the [Builder].
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build]. The plaintext code exists only
// between generation and the Sender call; it is never stored or logged.
package otpgate
