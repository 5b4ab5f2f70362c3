package dispatch

import (
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"
)

// EventType names the structured events the dispatch layer emits.
type EventType string

const (
	EventRateLimitRejected EventType = "rate_limit_rejected"
	EventCircuitOpened     EventType = "circuit_opened"
	EventCircuitClosed     EventType = "circuit_closed"
	EventRequestFailed     EventType = "request_failed"
	EventAllUnavailable    EventType = "all_providers_unavailable"
)

// Event is a structured dispatch event. The sink persists or forwards it;
// this layer only emits.
type Event struct {
	Type     EventType
	Model    string
	Endpoint string
	Error    string
	Cooldown time.Duration
	Time     time.Time
}

// EventSink receives dispatch events. Implementations must be safe for
// concurrent use and should never block the dispatch path.
type EventSink interface {
	Emit(Event)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) Emit(Event) {}

// LogSink writes events to a structured logger.
type LogSink struct {
	Logger *logging.Logger
}

func (s *LogSink) Emit(ev Event) {
	if s == nil || s.Logger == nil {
		return
	}

	fields := []zap.Field{
		zap.String("event", string(ev.Type)),
		zap.String("model", ev.Model),
		zap.Time("time", ev.Time),
	}
	if ev.Endpoint != "" {
		fields = append(fields, zap.String("endpoint", ev.Endpoint))
	}
	if ev.Error != "" {
		fields = append(fields, zap.String("error", ev.Error))
	}
	if ev.Cooldown > 0 {
		fields = append(fields, zap.Duration("cooldown", ev.Cooldown))
	}

	switch ev.Type {
	case EventAllUnavailable:
		s.Logger.Error("dispatch event", fields...)
	case EventCircuitOpened, EventRequestFailed:
		s.Logger.Warn("dispatch event", fields...)
	default:
		s.Logger.Info("dispatch event", fields...)
	}
}
