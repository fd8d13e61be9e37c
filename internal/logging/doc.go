// Package logging builds the server's zap logger: JSON or console on stdout,
// optionally teed into a daily-rotated file.
package logging
