// Package permission maps the practice roles (user, counselor, admin) onto
// 64-bit permission masks.
//
// A [Registry] assigns each permission name a stable bit; a [RoleManager]
// composes role masks from those names. [NewPracticeRoles] builds the fixed
// role table used by the HTTP layer.
//
// # What this package must NOT do
//
//   - Access Redis, databases, or the network.
//   - Import carebook, jwt, or middleware.
package permission
