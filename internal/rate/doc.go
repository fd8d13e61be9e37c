// Package rate provides the Redis-backed sliding-window limiter used to throttle
// code and link issuance per email address.
//
// # Window semantics
//
// Each (scope, email) pair owns a sorted set of attempt timestamps in
// milliseconds. One Lua script trims entries older than the window, counts the
// rest and either records the new attempt or reports how long until the oldest
// attempt leaves the window. Check and consumption are therefore a single
// atomic step even when requests for the same email race.
//
// Key layout: <prefix>:<scope>:{<email>}
//
// # What this package must NOT do
//
//   - Look up accounts or ledgers. The limiter answers before any of that happens.
//   - Be imported outside the carebook module.
package rate
