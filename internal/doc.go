// Package internal contains helpers that are private to carebook, mainly
// secure random generation for one-time codes and magic-link tokens.
//
// # Sub-packages
//
//   - rate: Redis sliding-window limiter for code, link and login requests
//   - stores: Redis-backed credential store, OTP ledger and magic-link ledger
//   - sweeper: cron-driven pruning of expired ledger index entries
//   - httpapi: chi router exposing the auth flows over JSON
//   - config: process configuration loaded from the environment
//   - logging: zap logger construction with optional rotated files
//
// # What this package must NOT do
//
//   - Export types that appear in the public carebook API.
//   - Persist or log raw codes or tokens.
package internal
