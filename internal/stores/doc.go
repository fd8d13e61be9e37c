// Package stores provides the Redis-backed persistence used by the carebook
// auth flows: the credential store, the OTP ledger and the magic-link ledger.
//
// # Design
//
// Records are Redis hashes. Every key that belongs to one email carries the
// email as a hash tag ({email}) so multi-key Lua scripts stay on one slot.
// State transitions that must not race (issue with supersession, consume,
// attempt counting) run inside Lua scripts or single atomic commands.
// Only SHA-256 hashes of codes and tokens are stored.
//
// # Architecture boundaries
//
// This package owns persistence and concurrency control. It does NOT generate
// codes or tokens, enforce rate limits, or decide whether a verification
// succeeds. Those responsibilities belong to the carebook Engine.
//
// # What this package must NOT do
//
//   - Import carebook or any sibling internal package.
//   - Log or expose plaintext codes or tokens.
//   - Use non-constant-time comparisons for secret matching.
package stores
