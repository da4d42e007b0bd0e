package observability

import (
	"log/slog"

	"staychain/core/events"
	"staychain/core/types"
)

type eventCarrier interface {
	Event() *types.Event
}

// SlogEmitter forwards ledger events to structured logs and the event
// counter. It satisfies events.Emitter and is the production emitter wired
// into every native module.
type SlogEmitter struct {
	logger *slog.Logger
}

// NewSlogEmitter creates an emitter writing through the supplied logger. A
// nil logger falls back to the process default.
func NewSlogEmitter(logger *slog.Logger) *SlogEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogEmitter{logger: logger}
}

// Emit logs the event with its attributes and bumps the per-type counter.
func (e *SlogEmitter) Emit(evt events.Event) {
	if e == nil || evt == nil {
		return
	}
	eventType := evt.EventType()
	RPCMetrics().ObserveEvent(eventType)
	args := []any{slog.String("type", eventType)}
	if carrier, ok := evt.(eventCarrier); ok {
		if payload := carrier.Event(); payload != nil {
			for key, value := range payload.Attributes {
				args = append(args, slog.String(key, value))
			}
		}
	}
	e.logger.Info("ledger event", args...)
}
