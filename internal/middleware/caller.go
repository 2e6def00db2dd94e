package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/portalkit/viewdata/internal/auth"
	"github.com/portalkit/viewdata/internal/domain"
)

// Caller attaches the portal caller identity to the request context. The
// identity arrives in trusted headers set by the portal front door:
// X-User-Id, X-Account-Id, X-Website-Id and a comma-separated X-Roles.
func Caller() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller := domain.CallerContext{}
			if id, err := uuid.Parse(r.Header.Get("X-User-Id")); err == nil {
				caller.UserID = id
			}
			if id, err := uuid.Parse(r.Header.Get("X-Account-Id")); err == nil {
				caller.AccountID = id
			}
			if id, err := uuid.Parse(r.Header.Get("X-Website-Id")); err == nil {
				caller.WebsiteID = id
			}
			if roles := r.Header.Get("X-Roles"); roles != "" {
				for _, role := range strings.Split(roles, ",") {
					if role = strings.TrimSpace(role); role != "" {
						caller.Roles = append(caller.Roles, role)
					}
				}
			}

			ctx := auth.ContextWithCaller(r.Context(), caller)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
