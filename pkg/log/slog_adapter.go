package log

import (
	"context"
	"log/slog"
)

// SlogAdapter renders events as Debug records on an slog.Logger, one
// "protocol" message per event.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter returns an adapter for logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("direction", event.Direction.String()),
		slog.String("protocol", event.Protocol.String()),
		slog.String("category", event.Category.String()),
	}

	if event.ExchangeID != "" {
		attrs = append(attrs, slog.String("exchange_id", event.ExchangeID))
	}
	if event.RemoteAddr != "" {
		attrs = append(attrs, slog.String("remote", event.RemoteAddr))
	}
	if event.UDN != "" {
		attrs = append(attrs, slog.String("udn", event.UDN))
	}
	if event.ServiceID != "" {
		attrs = append(attrs, slog.String("service_id", event.ServiceID))
	}

	switch {
	case event.Datagram != nil:
		d := event.Datagram
		attrs = append(attrs, slog.Int("size", d.Size))
		if d.Method != "" {
			attrs = append(attrs, slog.String("method", d.Method))
		}
		if d.NTS != "" {
			attrs = append(attrs, slog.String("nts", d.NTS))
		}
		if d.Target != "" {
			attrs = append(attrs, slog.String("target", d.Target))
		}
		if d.USN != "" {
			attrs = append(attrs, slog.String("usn", d.USN))
		}
		if d.Dropped {
			attrs = append(attrs, slog.Bool("dropped", true))
		}
	case event.Action != nil:
		attrs = append(attrs,
			slog.String("action", event.Action.Name),
			slog.String("msg_type", event.Action.Type.String()),
		)
		if event.Action.FaultCode != 0 {
			attrs = append(attrs, slog.Int("fault_code", event.Action.FaultCode))
		}
		if event.Action.ProcessingTime != nil {
			attrs = append(attrs, slog.Duration("processing_time", *event.Action.ProcessingTime))
		}
	case event.Notify != nil:
		attrs = append(attrs,
			slog.String("method", event.Notify.Method),
			slog.String("msg_type", event.Notify.Type.String()),
		)
		if event.Notify.SID != "" {
			attrs = append(attrs, slog.String("sid", event.Notify.SID))
		}
		if event.Notify.Seq != nil {
			attrs = append(attrs, slog.Uint64("seq", uint64(*event.Notify.Seq)))
		}
		if event.Notify.StatusCode != 0 {
			attrs = append(attrs, slog.Int("status", event.Notify.StatusCode))
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
		attrs = append(attrs,
			slog.String("error_protocol", event.Error.Protocol.String()),
			slog.String("error_msg", event.Error.Message),
			slog.String("error_context", event.Error.Context),
		)
		if event.Error.Code != nil {
			attrs = append(attrs, slog.Int("error_code", *event.Error.Code))
		}
	}

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "protocol", attrs...)
}

var _ Logger = (*SlogAdapter)(nil)
