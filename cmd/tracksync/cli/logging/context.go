package logging

import (
	"context"
	"log/slog"
)

type contextKey string

const (
	sessionIDKey contextKey = "session_id"
	recordIDKey  contextKey = "record_id"
	componentKey contextKey = "component"
)

// WithSession returns a context carrying a session ID for log attribution.
func WithSession(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

// WithRecord returns a context carrying a queue record ID.
func WithRecord(ctx context.Context, recordID string) context.Context {
	return context.WithValue(ctx, recordIDKey, recordID)
}

// WithComponent returns a context carrying a component name (hooks,
// processor, matcher, ...).
func WithComponent(ctx context.Context, component string) context.Context {
	return context.WithValue(ctx, componentKey, component)
}

// attrsFromContext extracts logging attributes from a context.
func attrsFromContext(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}

	var attrs []slog.Attr
	for _, key := range []contextKey{sessionIDKey, recordIDKey, componentKey} {
		if v := ctx.Value(key); v != nil {
			if s, ok := v.(string); ok && s != "" {
				attrs = append(attrs, slog.String(string(key), s))
			}
		}
	}
	return attrs
}
