// Package middleware provides HTTP authorization middleware backed by the
// Steward privilege engine.
package middleware

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/xraph/forge"

	"github.com/xraph/steward"
)

// Require allows the request only if the caller holds the permission.
func Require(eng *steward.Engine, permission string) forge.Middleware {
	return RequireAll(eng, permission)
}

// RequireAll allows the request only if the caller holds every permission.
func RequireAll(eng *steward.Engine, permissions ...string) forge.Middleware {
	return guard(eng, func(priv *steward.EffectivePrivileges) bool {
		return priv.HasAllPermissions(permissions...)
	})
}

// RequireAny allows the request if the caller holds ANY of the permissions.
func RequireAny(eng *steward.Engine, permissions ...string) forge.Middleware {
	return guard(eng, func(priv *steward.EffectivePrivileges) bool {
		return priv.HasAnyPermission(permissions...)
	})
}

// RequireModule allows the request only if the caller may access the module.
func RequireModule(eng *steward.Engine, module string) forge.Middleware {
	return guard(eng, func(priv *steward.EffectivePrivileges) bool {
		return priv.CanAccessModule(module)
	})
}

// RequirePrecedence allows the request only if the caller holds a role at
// least as authoritative as maxPrecedence.
func RequirePrecedence(eng *steward.Engine, maxPrecedence int) forge.Middleware {
	return guard(eng, func(priv *steward.EffectivePrivileges) bool {
		return !priv.IsEmpty() && priv.HighestPrecedence <= maxPrecedence
	})
}

func guard(eng *steward.Engine, allow func(*steward.EffectivePrivileges) bool) forge.Middleware {
	return func(next forge.Handler) forge.Handler {
		return func(ctx forge.Context) error {
			principalID := forge.UserIDFromContext(ctx.Context())
			if principalID == "" {
				return denyResponse(ctx, http.StatusForbidden, "access denied")
			}

			priv, err := eng.Resolve(ctx.Context(), principalID)
			switch {
			case errors.Is(err, steward.ErrCollaboratorUnavailable):
				return denyResponse(ctx, http.StatusServiceUnavailable, "privilege source unavailable")
			case err != nil:
				return denyResponse(ctx, http.StatusForbidden, "access denied")
			case !allow(priv):
				return denyResponse(ctx, http.StatusForbidden, "access denied")
			}
			return next(ctx)
		}
	}
}

func denyResponse(ctx forge.Context, status int, msg string) error {
	ctx.SetHeader("Content-Type", "application/json")
	ctx.Response().WriteHeader(status)
	return json.NewEncoder(ctx.Response()).Encode(map[string]string{"error": msg})
}
