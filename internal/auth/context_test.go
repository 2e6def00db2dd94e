package auth

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/portalkit/viewdata/internal/domain"
)

func TestCallerRoundTrip(t *testing.T) {
	caller := domain.CallerContext{UserID: uuid.New(), AccountID: uuid.New(), Roles: []string{"agent"}}
	ctx := ContextWithCaller(context.Background(), caller)

	got, ok := CallerFromContext(ctx)
	if !ok {
		t.Fatalf("caller not recovered from context")
	}
	if got.UserID != caller.UserID || got.AccountID != caller.AccountID {
		t.Fatalf("caller mismatch: %+v", got)
	}
}

func TestCallerMissing(t *testing.T) {
	if _, ok := CallerFromContext(context.Background()); ok {
		t.Fatalf("empty context should carry no caller")
	}
	if _, err := RequireCaller(context.Background()); err == nil {
		t.Fatalf("RequireCaller must fail without a caller")
	}
}

func TestAnonymousCallerRejected(t *testing.T) {
	ctx := ContextWithCaller(context.Background(), domain.CallerContext{})
	if _, ok := CallerFromContext(ctx); ok {
		t.Fatalf("a caller without a user id is anonymous")
	}
}
