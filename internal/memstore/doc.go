// Package memstore is the in-process backing for the challenge engine:
// mutex-guarded maps with lazy, read-time expiry and inline opportunistic
// sweeps. It is the default backing when no Redis client is injected and the
// reference implementation of the store contracts.
//
// All types accept an injectable clock so expiry behavior is testable without
// sleeping.
package memstore
