// Package carebook provides passwordless authentication for a counselling
// practice: emailed one-time codes, magic links, password login and
// role-based access over the user, counselor and admin roles.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build]. Every piece of shared state (code
// ledgers, rate windows, used flags, email uniqueness) lives in Redis and is
// changed only through atomic scripts or compare-and-set commands.
//
// # Architecture boundaries
//
// carebook is the public surface. It exposes [Engine], [Builder], [Config],
// the [CredentialStore] and [EmailGateway] collaborator interfaces, and value
// types ([AuthResult], [IssueResult], [User], [Claims]). Ledgers, the sliding
// window limiter and code generation live under internal/ and are never
// exported.
//
// # Flows
//
//   - [Engine.RequestCode] provisions unknown accounts and always answers with
//     the same generic message. [Engine.ResendCode] never provisions.
//   - [Engine.VerifyCode] checks format, existence, attempts, used, expiry and
//     recency in that order.
//   - [Engine.RequestMagicLink] and [Engine.VerifyMagicLink] issue and consume
//     single-use links.
//   - [Engine.Login] and [Engine.Signup] cover password accounts.
//
// # What this package must NOT do
//
//   - Return codes, link tokens or password hashes to callers.
//   - Let a rate-limit answer depend on whether the email is registered.
//   - Roll back an issued code because its email failed to send.
package carebook
