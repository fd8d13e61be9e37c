package mail

import (
	"context"

	"go.uber.org/zap"
)

// LogTransport writes messages to a zap logger instead of sending them. It is
// meant for local development, where the rendered body is the only way to
// read a code or link.
type LogTransport struct {
	logger *zap.Logger
}

func NewLogTransport(logger *zap.Logger) *LogTransport {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogTransport{logger: logger.Named("mail")}
}

func (t *LogTransport) Deliver(_ context.Context, msg Message) error {
	t.logger.Info("email",
		zap.String("to", msg.To),
		zap.String("template", msg.Template),
		zap.String("subject", msg.Subject),
	)
	t.logger.Debug("email body", zap.String("to", msg.To), zap.String("html", msg.HTML))
	return nil
}
