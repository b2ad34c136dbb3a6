package middleware

import (
	"net/http"

	"github.com/ajirinow/backend/internal"
	"github.com/ajirinow/backend/internal/transport"
	"github.com/ajirinow/backend/pkg/logger"
)

// RequireRoles admits authenticated users holding any of roles. It must run
// after the auth middleware.
func RequireRoles(roles ...string) func(http.Handler) http.Handler {
	base := transport.NewBaseHandler(logger.LoggerWrapper())
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := internal.UserFromContext(r.Context())
			if !ok {
				base.HandleError(w, internal.NewUnauthorizedError("Authentication required", internal.ErrCodeUnauthorizedAccess))
				return
			}
			if !user.HasRole(roles...) {
				logger.From(r.Context()).Warn("access denied: role not allowed",
					"user_id", user.ID,
					"role", user.Role,
					"required_roles", roles)
				base.HandleError(w, internal.ErrRoleNotAllowed)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
