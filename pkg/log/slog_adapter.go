package log

import (
	"context"
	"log/slog"
)

// SlogAdapter writes delivery events to an slog.Logger.
// Useful for development when you want to see events in the console.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a new SlogAdapter that writes to the given slog.Logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event to the slog logger.
// Errors log at Warn level, everything else at Debug.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("layer", event.Layer.String()),
		slog.String("category", event.Category.String()),
	}

	if event.ConnectionID != "" {
		attrs = append(attrs, slog.String("conn_id", event.ConnectionID))
	}
	if event.Topic != "" {
		attrs = append(attrs, slog.String("topic", event.Topic))
	}
	if event.SubscriberID != "" {
		attrs = append(attrs, slog.String("subscriber", event.SubscriberID))
	}

	level := slog.LevelDebug

	switch {
	case event.Frame != nil:
		attrs = append(attrs,
			slog.Int("frame_size", event.Frame.Size),
			slog.Bool("truncated", event.Frame.Truncated),
		)
	case event.Drop != nil:
		attrs = append(attrs, slog.String("reason", event.Drop.Reason.String()))
		if event.Drop.MessageID != "" {
			attrs = append(attrs, slog.String("msg_id", event.Drop.MessageID))
		}
		if event.Drop.Field != "" {
			attrs = append(attrs, slog.String("field", event.Drop.Field))
		}
	case event.Delivery != nil:
		attrs = append(attrs,
			slog.Int("fields", event.Delivery.FieldCount),
			slog.Int64("msg_time", event.Delivery.MessageTime),
			slog.Int("coalesced", event.Delivery.Coalesced),
		)
	case event.Fetch != nil:
		attrs = append(attrs,
			slog.String("endpoint", event.Fetch.Endpoint),
			slog.Int("page_size", event.Fetch.PageSize),
			slog.Int("rows", event.Fetch.Rows),
			slog.Bool("from_cache", event.Fetch.FromCache),
		)
		if event.Fetch.Duration > 0 {
			attrs = append(attrs, slog.Duration("duration", event.Fetch.Duration))
		}
	case event.StateChange != nil:
		attrs = append(attrs,
			slog.String("entity", event.StateChange.Entity.String()),
			slog.String("old_state", event.StateChange.OldState),
			slog.String("new_state", event.StateChange.NewState),
		)
		if event.StateChange.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.StateChange.Reason))
		}
	case event.Error != nil:
		level = slog.LevelWarn
		attrs = append(attrs,
			slog.String("error_layer", event.Error.Layer.String()),
			slog.String("error_msg", event.Error.Message),
		)
		if event.Error.Context != "" {
			attrs = append(attrs, slog.String("error_context", event.Error.Context))
		}
	}

	a.logger.LogAttrs(context.Background(), level, "telemetry", attrs...)
}

// Compile-time interface satisfaction check.
var _ Logger = (*SlogAdapter)(nil)
