package middleware

import (
	"auction-engine/internal/domain"
	"fmt"
	"strings"

	"github.com/labstack/echo/v4"
)

// Identity headers set by the upstream authentication gateway.
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
)

const callerKey = "caller"

// Caller resolves the caller identity from the gateway headers and rejects
// requests that carry none.
func Caller() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			caller, err := callerFromHeaders(c)
			if err != nil {
				return err
			}
			c.Set(callerKey, caller)
			return next(c)
		}
	}
}

func callerFromHeaders(c echo.Context) (domain.Caller, error) {
	userID := strings.TrimSpace(c.Request().Header.Get(HeaderUserID))
	if userID == "" {
		return domain.Caller{}, domain.ErrUnauthenticated
	}

	role := domain.Role(strings.ToLower(strings.TrimSpace(c.Request().Header.Get(HeaderUserRole))))
	switch role {
	case "":
		role = domain.RoleUser
	case domain.RoleUser, domain.RoleModerator, domain.RoleAdmin:
	default:
		return domain.Caller{}, fmt.Errorf("caller: %w - unknown role %q", domain.ErrUnauthenticated, role)
	}

	return domain.Caller{UserID: userID, Role: role}, nil
}

// CallerFrom returns the caller stored by Caller, or the zero Caller.
func CallerFrom(c echo.Context) domain.Caller {
	caller, _ := c.Get(callerKey).(domain.Caller)
	return caller
}
