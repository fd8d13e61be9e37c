// Package jwt issues and verifies the stateless HS256 session tokens handed
// out after a successful OTP, magic-link or password sign-in.
//
// The payload is {userId, email, role} plus exp, iat, iss and sub. Tokens are
// not stored server-side; a token is valid until it expires.
//
// Key rotation: set KeyID for the current secret and keep retired secrets in
// VerifyKeys under their old ids.
package jwt
