// Package httpapi is the JSON HTTP surface of the authentication service.
//
// Handlers decode the request, call one Engine operation and translate the
// result. Domain errors map to fixed user-safe messages in respond.go;
// anything else is logged and answered with a generic 500.
package httpapi
