// Package config loads the server's settings from a .env file and the
// environment.
package config
