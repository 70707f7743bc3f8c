package context

import stdcontext "context"

type ctxKey int

const (
	requestIDKey ctxKey = iota
	tenantIDKey
	actorIDKey
)

func WithRequestID(ctx stdcontext.Context, requestID string) stdcontext.Context {
	if requestID == "" {
		return ctx
	}
	return stdcontext.WithValue(ctx, requestIDKey, requestID)
}

func RequestIDFromContext(ctx stdcontext.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}

// WithActor records the resolved principal on the context for log enrichment.
// Services never read it back: authorization uses the explicit principal.
func WithActor(ctx stdcontext.Context, tenantID, actorID string) stdcontext.Context {
	if tenantID != "" {
		ctx = stdcontext.WithValue(ctx, tenantIDKey, tenantID)
	}
	if actorID != "" {
		ctx = stdcontext.WithValue(ctx, actorIDKey, actorID)
	}
	return ctx
}

func TenantIDFromContext(ctx stdcontext.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(tenantIDKey).(string)
	return v
}

func ActorIDFromContext(ctx stdcontext.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(actorIDKey).(string)
	return v
}
