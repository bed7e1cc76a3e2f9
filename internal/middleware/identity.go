package middleware

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

type contextKey string

const (
	ActorIDKey   contextKey = "actor_id"
	ActorRoleKey contextKey = "actor_role"
)

// Request headers that carry the caller's identity.
const (
	ActorIDHeader   = "X-Actor-ID"
	ActorRoleHeader = "X-Actor-Role"
)

const (
	RoleCustomer = "customer"
	RoleVendor   = "vendor"
	RoleAdmin    = "admin"
)

var knownRoles = map[string]bool{
	RoleCustomer: true,
	RoleVendor:   true,
	RoleAdmin:    true,
}

// IdentityMiddleware reads the actor id and role headers into the request
// context. A missing role means customer.
func IdentityMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actorID := strings.TrimSpace(r.Header.Get(ActorIDHeader))
			if actorID == "" {
				logger.Debug("Missing actor id header")
				RespondWithError(w, http.StatusUnauthorized, "missing "+ActorIDHeader+" header")
				return
			}

			role := strings.ToLower(strings.TrimSpace(r.Header.Get(ActorRoleHeader)))
			if role == "" {
				role = RoleCustomer
			}
			if !knownRoles[role] {
				logger.Debug("Unknown actor role", zap.String("role", role))
				RespondWithError(w, http.StatusUnauthorized, "unknown actor role")
				return
			}

			ctx := context.WithValue(r.Context(), ActorIDKey, actorID)
			ctx = context.WithValue(ctx, ActorRoleKey, role)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetActorID extracts the actor id from request context
func GetActorID(ctx context.Context) (string, bool) {
	actorID, ok := ctx.Value(ActorIDKey).(string)
	return actorID, ok
}

// GetActorRole extracts the actor role from request context
func GetActorRole(ctx context.Context) (string, bool) {
	role, ok := ctx.Value(ActorRoleKey).(string)
	return role, ok
}
