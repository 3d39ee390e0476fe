package ygggo_pg

import (
	"context"
	"log/slog"
	"time"
)

const logComponent = "ygggo_pg"

// SetLogger sets a custom logger for this manager, its connections and the
// pools driving it, including connections created earlier. Nil restores
// slog.Default.
func (m *Manager) SetLogger(logger *slog.Logger) {
	if m == nil {
		return
	}
	m.obs.logger.Store(logger)
}

// log returns the configured logger, falling back to slog.Default.
func (o *observer) log() *slog.Logger {
	if o != nil {
		if logger := o.logger.Load(); logger != nil {
			return logger
		}
	}
	return slog.Default().With(slog.String("component", logComponent))
}

// logCreate logs the outcome of a connection attempt
func (o *observer) logCreate(ctx context.Context, id uint64, duration time.Duration, err error) {
	attrs := []slog.Attr{
		slog.String("event", "create"),
		slog.Float64("duration_ms", float64(duration.Nanoseconds())/1e6),
	}
	if err != nil {
		attrs = append(attrs,
			slog.String("status", "error"),
			slog.String("error", err.Error()),
		)
		o.log().LogAttrs(ctx, slog.LevelError, "database connection event", attrs...)
		return
	}
	attrs = append(attrs, slog.Uint64("conn_id", id), slog.String("status", "success"))
	o.log().LogAttrs(ctx, slog.LevelDebug, "database connection event", attrs...)
}

// logRecycle logs a connection that could not be recycled
func (o *observer) logRecycle(ctx context.Context, id uint64, err error) {
	o.log().LogAttrs(ctx, slog.LevelInfo, "Connection could not be recycled",
		slog.Uint64("conn_id", id),
		slog.String("error", err.Error()),
	)
}

// logStatementRelease logs a statement whose server side could not be closed
func (o *observer) logStatementRelease(ctx context.Context, id uint64, name string, err error) {
	o.log().LogAttrs(ctx, slog.LevelWarn, "Statement could not be closed",
		slog.Uint64("conn_id", id),
		slog.String("statement", name),
		slog.String("error", err.Error()),
	)
}

// logDriverError logs an asynchronous failure of a connection. There is no
// caller to return it to; it surfaces later through IsClosed.
func (o *observer) logDriverError(id uint64, err error) {
	o.log().LogAttrs(context.Background(), slog.LevelWarn, "Connection error",
		slog.Uint64("conn_id", id),
		slog.String("error", err.Error()),
	)
}

// logConnectionGone logs the end of a connection's life
func (o *observer) logConnectionGone(id uint64, lifetime time.Duration) {
	o.log().LogAttrs(context.Background(), slog.LevelDebug, "database connection closed",
		slog.Uint64("conn_id", id),
		slog.Float64("lifetime_s", lifetime.Seconds()),
	)
}

// logTransaction logs database transaction events
func (o *observer) logTransaction(ctx context.Context, event string, duration time.Duration, err error) {
	attrs := []slog.Attr{
		slog.String("event", event),
		slog.Float64("duration_ms", float64(duration.Nanoseconds())/1e6),
	}
	if err != nil {
		attrs = append(attrs,
			slog.String("status", "error"),
			slog.String("error", err.Error()),
		)
		o.log().LogAttrs(ctx, slog.LevelError, "database transaction event", attrs...)
		return
	}
	attrs = append(attrs, slog.String("status", "success"))
	o.log().LogAttrs(ctx, slog.LevelDebug, "database transaction event", attrs...)
}

// logPool logs pool level events such as discarded connections
func (o *observer) logPool(ctx context.Context, msg string, attrs ...slog.Attr) {
	o.log().LogAttrs(ctx, slog.LevelDebug, msg, attrs...)
}
