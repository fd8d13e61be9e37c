// Package mail renders the practice's transactional emails and delivers them.
//
// Gateway satisfies carebook.EmailGateway. Two transports are provided:
// HTTPTransport posts to a JSON email API and LogTransport writes messages to
// a zap logger for development.
package mail
