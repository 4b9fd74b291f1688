package audit

import (
	"context"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// LoggerSink writes every audit event to a structured logger. It wraps
// another sink so events still reach the primary stream.
type LoggerSink struct {
	logger log.Logger
	next   Sink
}

func NewLoggerSink(logger log.Logger, next Sink) *LoggerSink {
	return &LoggerSink{logger: logger, next: next}
}

func (s *LoggerSink) Ingest(ctx context.Context, event Event) error {
	level.Info(s.logger).Log(
		"kind", event.Kind,
		"device_id", event.DeviceId,
		"user_id", event.UserId,
		"msg", event.Message,
	)
	if s.next != nil {
		return s.next.Ingest(ctx, event)
	}
	return nil
}
