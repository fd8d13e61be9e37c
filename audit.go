package carebook

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
)

// AuditEvent is one entry of the authentication audit trail. Email is
// recorded as submitted after normalization; codes and tokens never are.
type AuditEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	UserID    string            `json:"user_id,omitempty"`
	Email     string            `json:"email,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
	IP        string            `json:"ip,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// AuditSink receives events from the Engine's dispatcher goroutine.
type AuditSink interface {
	Emit(ctx context.Context, event AuditEvent)
}

type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, AuditEvent) {}

// ChannelSink forwards events to a buffered channel. Tests read from Events.
type ChannelSink struct {
	events chan AuditEvent
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan AuditEvent, buffer),
	}
}

func (s *ChannelSink) Emit(ctx context.Context, event AuditEvent) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan AuditEvent {
	return s.events
}

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

func (s *JSONWriterSink) Emit(ctx context.Context, event AuditEvent) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}

// ZapAuditSink mirrors events into a zap logger under the "audit" name.
type ZapAuditSink struct {
	logger *zap.Logger
}

func NewZapAuditSink(logger *zap.Logger) *ZapAuditSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapAuditSink{logger: logger.Named("audit")}
}

func (s *ZapAuditSink) Emit(_ context.Context, event AuditEvent) {
	if s == nil {
		return
	}
	fields := []zap.Field{
		zap.Time("timestamp", event.Timestamp),
		zap.Bool("success", event.Success),
	}
	if event.UserID != "" {
		fields = append(fields, zap.String("user_id", event.UserID))
	}
	if event.Email != "" {
		fields = append(fields, zap.String("email", event.Email))
	}
	if event.RequestID != "" {
		fields = append(fields, zap.String("request_id", event.RequestID))
	}
	if event.IP != "" {
		fields = append(fields, zap.String("ip", event.IP))
	}
	if event.Error != "" {
		fields = append(fields, zap.String("error", event.Error))
	}
	if len(event.Metadata) > 0 {
		fields = append(fields, zap.Any("metadata", event.Metadata))
	}

	if event.Success {
		s.logger.Info(event.EventType, fields...)
		return
	}
	s.logger.Warn(event.EventType, fields...)
}
