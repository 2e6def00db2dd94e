package auth

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/portalkit/viewdata/internal/domain"
)

type contextKey string

const callerKey contextKey = "caller"

// ContextWithCaller returns a new context that carries the authenticated
// caller.
func ContextWithCaller(ctx context.Context, caller domain.CallerContext) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, callerKey, caller)
}

// CallerFromContext retrieves the authenticated caller from the context, if
// any.
func CallerFromContext(ctx context.Context) (domain.CallerContext, bool) {
	if ctx == nil {
		return domain.CallerContext{}, false
	}
	caller, ok := ctx.Value(callerKey).(domain.CallerContext)
	if !ok || caller.UserID == uuid.Nil {
		return domain.CallerContext{}, false
	}
	return caller, true
}

// RequireCaller returns the authenticated caller or an error when the request
// carries none.
func RequireCaller(ctx context.Context) (domain.CallerContext, error) {
	caller, ok := CallerFromContext(ctx)
	if !ok {
		return domain.CallerContext{}, fmt.Errorf("request is not authenticated")
	}
	return caller, nil
}
