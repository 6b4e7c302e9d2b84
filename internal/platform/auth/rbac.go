package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// RequireRole returns middleware that rejects requests whose principal does
// not carry one of the given roles. There is no implicit admin override; an
// admin-only route must name RoleAdmin.
func RequireRole(roles ...Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p := PrincipalFromEcho(c)
			if p == nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
			}
			for _, required := range roles {
				if p.Role == required {
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", joinRoles(roles)))
		}
	}
}

// RequireAdminType further narrows an admin route to specific admin scopes.
// Non-admin principals are rejected outright.
func RequireAdminType(types ...AdminType) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p := PrincipalFromEcho(c)
			if p == nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
			}
			if p.Role != RoleAdmin {
				return echo.NewHTTPError(http.StatusForbidden, "admin access required")
			}
			for _, required := range types {
				if p.AdminType == required {
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusForbidden, "insufficient admin scope")
		}
	}
}

func joinRoles(roles []Role) string {
	parts := make([]string, len(roles))
	for i, r := range roles {
		parts[i] = string(r)
	}
	return strings.Join(parts, " or ")
}
