// Package password hashes account passwords with argon2id and verifies both
// argon2id and legacy bcrypt hashes.
//
// # Output format
//
// New hashes are PHC strings:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Hashes imported from the previous system use bcrypt ($2a$ / $2b$). They keep
// verifying, and [Hasher.NeedsRehash] reports true for them so the Engine can
// store an argon2id hash after the next successful login.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords. Callers supply plaintext and receive hashes.
//   - Import any other carebook package.
//   - Log plaintext passwords.
package password
