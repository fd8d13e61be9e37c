// Package middleware adapts session-token checks and role-based access to
// net/http.
//
// # Guards
//
//   - [Guard] verifies the bearer token through carebook.Engine.ValidateToken
//     and stores the claims on the request context.
//   - [RequirePermission] checks the caller's role against the practice
//     permission table.
//   - [RequireRole] checks the caller's role against an explicit list.
//
// # What this package must NOT do
//
//   - Parse or sign JWTs itself.
//   - Touch Redis or the credential store. A role change takes effect when the
//     holder's token is next issued.
package middleware
