// Package sweeper periodically prunes expired OTP and magic-link index
// entries. Records themselves carry Redis TTLs; the sweep keeps the per-email
// indexes from growing.
package sweeper
