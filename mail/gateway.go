package mail

import (
	"context"
	"errors"
)

// ErrUnknownTemplate is returned by Render for names without a template.
var ErrUnknownTemplate = errors.New("unknown email template")

// Message is a rendered email ready for a Transport.
type Message struct {
	To       string
	Subject  string
	HTML     string
	Template string
}

// Transport delivers rendered messages.
type Transport interface {
	Deliver(ctx context.Context, msg Message) error
}

// Gateway renders templates and hands the result to a Transport. It
// implements carebook.EmailGateway.
type Gateway struct {
	renderer  *Renderer
	transport Transport
}

func NewGateway(renderer *Renderer, transport Transport) (*Gateway, error) {
	if renderer == nil {
		return nil, errors.New("mail: renderer required")
	}
	if transport == nil {
		return nil, errors.New("mail: transport required")
	}
	return &Gateway{renderer: renderer, transport: transport}, nil
}

func (g *Gateway) Send(ctx context.Context, to, template string, data map[string]string) error {
	msg, err := g.renderer.Render(to, template, data)
	if err != nil {
		return err
	}
	return g.transport.Deliver(ctx, msg)
}
